// Package models holds rate limit types shared by stores and middleware.
package models

import "time"

// Limit is a sliding-window budget: at most Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is whole seconds until a denied caller should retry.
	RetryAfter int
}

// Key scopes a bucket to an endpoint class and a caller.
func Key(class, caller string) string {
	return "ratelimit:" + class + ":" + caller
}

// RetryAfterSeconds rounds d up to whole seconds, never below one.
func RetryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"error_description"`
	RetryAfter int    `json:"retry_after"`
}
