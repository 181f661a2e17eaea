package publisher

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrInvalidToken        = errors.New("invalid access token")
	ErrTokenExpired        = errors.New("access token expired")
	ErrRateLimited         = errors.New("rate limited")
	ErrNoMedia             = errors.New("no publishable media")
)

// RateLimitError matches ErrRateLimited with errors.Is.
type RateLimitError struct {
	Platform   models.Platform
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s: %s", e.Platform, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("%s rate limited: %s", e.Platform, e.Message)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

type APIError struct {
	Platform   models.Platform
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %s", e.Platform, e.StatusCode, e.Message)
}

// Retryable reports whether err is a transient failure worth another attempt later.
func Retryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return false
}

func statusError(platform models.Platform, resp *http.Response, message string) error {
	message = strings.TrimSpace(message)
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &RateLimitError{
			Platform:   platform,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    message,
		}
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrInvalidToken, message)
	}
	return &APIError{Platform: platform, StatusCode: resp.StatusCode, Message: message}
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
