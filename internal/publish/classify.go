package publish

import (
	"net/http"
	"strings"
)

// classifyStatus turns an HTTP rejection into a PlatformError. Rate limits
// and server errors are transient; auth and validation failures are not.
// 422 is additionally flagged as a content error so the fallback body gets
// a chance.
func classifyStatus(platform string, status int, body string) *PlatformError {
	msg := strings.TrimSpace(body)
	if len(msg) > 300 {
		msg = msg[:300]
	}

	pe := &PlatformError{Platform: platform, Code: status, Message: msg}
	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		pe.Retryable = true
	case status == http.StatusUnprocessableEntity, status == http.StatusRequestEntityTooLarge:
		pe.Content = true
	}
	return pe
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimLeft(s, "# ")
	if runes := []rune(s); len(runes) > 120 {
		return string(runes[:120])
	}
	return s
}
