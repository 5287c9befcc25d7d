package exchange

import (
	"fmt"
	"strings"
)

// TransientError wraps network/timeout/5xx failures. Callers choose retry
// policy; the adapter itself never retries.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("exchange: transient error in %s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// APIError wraps an exchange-returned business error (HTTP 4xx with a
// structured error body carrying a code and message).
type APIError struct {
	Op      string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange: api error in %s: code=%d message=%s", e.Op, e.Code, e.Message)
}

// AuthError wraps signature or key failures.
type AuthError struct {
	Op   string
	Hint string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("exchange: auth error in %s: %s", e.Op, e.Hint)
}

// noopMessages lists lower-case substrings of exchange business-error
// messages that mean "already in the requested state" and should be
// demoted to debug rather than surfaced as failures (e.g. setting margin
// type to what it already is).
var noopMessages = []string{
	"no need to change margin type",
	"already isolated",
	"leverage not modified",
}

// IsNoop reports whether err represents one of the known no-op business
// errors that callers should treat as success.
func IsNoop(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	lowerMsg := strings.ToLower(apiErr.Message)
	for _, m := range noopMessages {
		if strings.Contains(lowerMsg, m) {
			return true
		}
	}
	return false
}
