// Package attrs reads values back out of slog-style key/value slices, so a
// single attribute list can feed both the audit log line and the audit event.
package attrs

import (
	"fmt"

	id "castline/pkg/domain"
)

// Extract returns the first value stored under key that has type T.
// The slice is formatted as [key1, value1, key2, value2, ...].
func Extract[T any](attrs []any, key string) (T, bool) {
	var zero T
	for i := 0; i+1 < len(attrs); i += 2 {
		if k, ok := attrs[i].(string); !ok || k != key {
			continue
		}
		if v, ok := attrs[i+1].(T); ok {
			return v, true
		}
	}
	return zero, false
}

// ExtractString returns the value under key as a string. Stringers are
// rendered; anything else yields "".
func ExtractString(attrs []any, key string) string {
	for i := 0; i+1 < len(attrs); i += 2 {
		if k, ok := attrs[i].(string); !ok || k != key {
			continue
		}
		switch v := attrs[i+1].(type) {
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		}
	}
	return ""
}

// ExtractAccountID returns the account under key, given either as an
// id.AccountID or its string form. Missing or malformed values yield the
// nil account.
func ExtractAccountID(attrs []any, key string) id.AccountID {
	if v, ok := Extract[id.AccountID](attrs, key); ok {
		return v
	}
	accountID, err := id.ParseAccountID(ExtractString(attrs, key))
	if err != nil {
		return id.AccountID{}
	}
	return accountID
}
