package secrets

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "castline/pkg/domain-errors"
)

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, TokenBytes)
	assert.Len(t, a, 43)
}

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("shared-webhook-secret")
	require.NoError(t, err)

	require.NoError(t, Verify("shared-webhook-secret", hash))

	err = Verify("wrong", hash)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = Hash("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = Hash(strings.Repeat("x", 73))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("s3cret", "s3cret"))
	assert.False(t, Equal("s3cret", "S3cret"))
	assert.False(t, Equal("", ""), "unset secret never matches")
}
