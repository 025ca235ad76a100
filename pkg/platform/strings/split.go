// Package strings holds list helpers for configuration values.
package strings

import (
	"strings"
)

// SplitList splits s on sep, trims and lowercases each element, and drops
// empties and repeats. Order of first appearance is kept.
func SplitList(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return DedupeLower(strings.Split(s, sep))
}

// DedupeLower trims and lowercases values, dropping empties and repeats.
func DedupeLower(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
