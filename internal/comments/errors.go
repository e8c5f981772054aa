package comments

import (
	"errors"
	"fmt"
	"time"
)

// ErrVerificationFailed is returned when the bot verification token is rejected
var ErrVerificationFailed = errors.New("turnstile failed")

// ValidationError reports a request that is missing or has malformed fields
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RateLimitedError reports an action refused by the abuse guard
type RateLimitedError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
}
