// Package email derives presentation values from payer addresses.
package email

import (
	"strings"
	"unicode"
)

// GreetingName returns a name for addressing someone who has only given an
// email: "jane.doe+fish@example.com" becomes "Jane Doe". An unusable local
// part yields "there", as in "Hi there".
func GreetingName(addr string) string {
	local := strings.TrimSpace(addr)
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	names := make([]string, 0, 2)
	for _, p := range parts {
		if !hasLetter(p) {
			continue
		}
		names = append(names, capitalize(p))
	}
	switch len(names) {
	case 0:
		return "there"
	case 1:
		return names[0]
	default:
		return names[0] + " " + names[len(names)-1]
	}
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
