// Package publish drains the post queue through per-platform adapters with
// bounded retry and exponential backoff.
package publish

import (
	"context"
	"errors"
	"fmt"
)

// Post is the adapter-facing view of a queue item.
type Post struct {
	Title string
	Body  string
}

// Adapter publishes one post to one platform. On success it returns the
// platform-assigned identifier.
type Adapter interface {
	Platform() string
	Publish(ctx context.Context, post Post) (string, error)
}

// PlatformError is an adapter failure classified for the retry loop.
// Retryable covers transient conditions (rate limits, 5xx, network).
// Content marks rejections the fallback body might cure.
type PlatformError struct {
	Platform  string
	Code      int
	Message   string
	Retryable bool
	Content   bool
}

func (e *PlatformError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s: %s error (status %d): %s", e.Platform, kind, e.Code, e.Message)
}

// IsRetryable reports whether err should be retried. Unclassified errors
// (network failures, timeouts) count as retryable; only an explicit
// non-retryable classification stops the retry loop early.
func IsRetryable(err error) bool {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}

// IsContentError reports whether err is a content rejection that a
// fallback body may cure.
func IsContentError(err error) bool {
	var pe *PlatformError
	return errors.As(err, &pe) && pe.Content
}
