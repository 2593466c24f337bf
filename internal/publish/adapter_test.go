package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status    int
		retryable bool
		content   bool
	}{
		{429, true, false},
		{500, true, false},
		{503, true, false},
		{401, false, false},
		{403, false, false},
		{404, false, false},
		{422, false, true},
		{413, false, true},
	}
	for _, tc := range cases {
		pe := classifyStatus("devto", tc.status, "message")
		if pe.Retryable != tc.retryable {
			t.Fatalf("status %d: retryable = %v, want %v", tc.status, pe.Retryable, tc.retryable)
		}
		if pe.Content != tc.content {
			t.Fatalf("status %d: content = %v, want %v", tc.status, pe.Content, tc.content)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	if !IsRetryable(&PlatformError{Retryable: true}) {
		t.Fatalf("retryable platform error misclassified")
	}
	if IsRetryable(&PlatformError{Retryable: false}) {
		t.Fatalf("permanent platform error misclassified")
	}
	// Network-level errors carry no classification and stay retryable.
	if !IsRetryable(errors.New("connection reset by peer")) {
		t.Fatalf("unclassified error should be retryable")
	}
	if !IsRetryable(fmt.Errorf("wrap: %w", context.DeadlineExceeded)) {
		t.Fatalf("timeout should be retryable")
	}
}

func TestDevtoAdapterPublish(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "key-123" {
			t.Errorf("missing api key header")
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 77, "url": "https://dev.to/u/post-77"}`)
	}))
	defer server.Close()

	adapter := NewDevtoAdapter("key-123", server.Client())
	adapter.baseURL = server.URL

	id, err := adapter.Publish(context.Background(), Post{Title: "T", Body: "B"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "https://dev.to/u/post-77" {
		t.Fatalf("unexpected platform id: %q", id)
	}
}

func TestDevtoAdapterClassifiesRejection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error": "body too long"}`)
	}))
	defer server.Close()

	adapter := NewDevtoAdapter("key-123", server.Client())
	adapter.baseURL = server.URL

	_, err := adapter.Publish(context.Background(), Post{Title: "T", Body: "B"})
	if err == nil {
		t.Fatalf("expected rejection")
	}
	if !IsContentError(err) || IsRetryable(err) {
		t.Fatalf("422 should be a non-retryable content error, got %v", err)
	}
}

func TestHashnodeGraphQLErrorIsContentError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"errors": [{"message": "title too short"}]}`)
	}))
	defer server.Close()

	adapter := NewHashnodeAdapter("key", "pub-1", server.Client())
	adapter.baseURL = server.URL

	_, err := adapter.Publish(context.Background(), Post{Title: "T", Body: "B"})
	if err == nil {
		t.Fatalf("expected error from GraphQL errors array")
	}
	if !IsContentError(err) {
		t.Fatalf("GraphQL-level rejection should be a content error, got %v", err)
	}
}

func TestFirstLine(t *testing.T) {
	t.Parallel()

	if got := firstLine("# Heading\nrest of body"); got != "Heading" {
		t.Fatalf("unexpected first line: %q", got)
	}
	if got := firstLine("single line only"); got != "single line only" {
		t.Fatalf("unexpected first line: %q", got)
	}
}
