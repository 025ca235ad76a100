package authz

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "castline/pkg/domain"
	dErrors "castline/pkg/domain-errors"
	"castline/pkg/requestcontext"
)

func TestParseBindings(t *testing.T) {
	bindings, err := ParseBindings(map[string]string{
		"reviewer": "subjects:adjudicate|subjects:read",
		"finance":  "payments:manage|payments:read|tokens:issue",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []Capability{CapabilityAdjudicateSubjects, CapabilityReadSubjects}, bindings["reviewer"])
	assert.Len(t, bindings["finance"], 3)

	bindings, err = ParseBindings(map[string]string{"support": " Subjects:Read || subjects:read "})
	require.NoError(t, err)
	assert.Equal(t, []Capability{CapabilityReadSubjects}, bindings["support"])

	_, err = ParseBindings(map[string]string{"reviewer": "subjects:delete"})
	assert.Error(t, err)
}

func TestRoleAuthorizer_Require(t *testing.T) {
	a := NewRoleAuthorizer(map[string][]Capability{
		"reviewer": {CapabilityAdjudicateSubjects},
	})
	account := id.AccountID(uuid.New())

	t.Run("no principal is unauthorized", func(t *testing.T) {
		err := a.Require(context.Background(), CapabilityAdjudicateSubjects)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("bound role is allowed", func(t *testing.T) {
		ctx := requestcontext.WithPrincipal(context.Background(), account, []string{"reviewer"})
		assert.NoError(t, a.Require(ctx, CapabilityAdjudicateSubjects))
	})

	t.Run("unbound capability is forbidden", func(t *testing.T) {
		ctx := requestcontext.WithPrincipal(context.Background(), account, []string{"reviewer"})
		err := a.Require(ctx, CapabilityOverrideSubjects)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
