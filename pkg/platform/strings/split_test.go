package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"blank", "   ", nil},
		{"single", "subjects:read", []string{"subjects:read"}},
		{"trims and lowercases", " Subjects:Read | payments:read ", []string{"subjects:read", "payments:read"}},
		{"drops repeats keeping first", "a|b|A|| b", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.in, "|"))
		})
	}
}

func TestDedupeLower(t *testing.T) {
	assert.Equal(t, []string{"admin", "support"}, DedupeLower([]string{"Admin", " support", "ADMIN", ""}))
	assert.Empty(t, DedupeLower(nil))
}
