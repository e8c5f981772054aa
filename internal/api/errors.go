package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/steemit/commentd/internal/comments"
)

// Error represents an API error
type Error struct {
	Code       int
	Message    string
	RetryAfter int64 // milliseconds, set for 429
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// FromError maps a pipeline error onto its HTTP status and public message
func FromError(err error) *Error {
	var apiErr *Error
	var verr *comments.ValidationError
	var rerr *comments.RateLimitedError

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &verr):
		return NewError(http.StatusBadRequest, verr.Message)
	case errors.As(err, &rerr):
		e := NewError(http.StatusTooManyRequests, rerr.Message)
		e.RetryAfter = rerr.RetryAfter.Milliseconds()
		return e
	case errors.Is(err, comments.ErrVerificationFailed):
		return NewError(http.StatusForbidden, comments.ErrVerificationFailed.Error())
	default:
		return NewError(http.StatusInternalServerError, "internal error")
	}
}

func (e *Error) body() gin.H {
	if e.Code == http.StatusTooManyRequests {
		return gin.H{"error": e.Message, "retryAfter": e.RetryAfter}
	}
	return gin.H{"error": e.Message}
}

// writeError responds with the mapped error. Server errors are logged with their cause.
func writeError(c *gin.Context, err error) {
	apiErr := FromError(err)

	if apiErr.Code >= http.StatusInternalServerError {
		requestLogger(c).Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	if apiErr.Code == http.StatusTooManyRequests {
		secs := (apiErr.RetryAfter + 999) / 1000
		c.Header("Retry-After", strconv.FormatInt(secs, 10))
	}

	c.AbortWithStatusJSON(apiErr.Code, apiErr.body())
}
