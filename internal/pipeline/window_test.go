package pipeline

import (
	"fmt"
	"testing"
	"time"
)

func TestDedupWindowSizeEviction(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewDedupWindow(3, time.Hour)

	for i := 0; i < 5; i++ {
		w.Add(fmt.Sprintf("title %d", i), now)
	}
	if w.Len() != 3 {
		t.Fatalf("expected window capped at 3, got %d", w.Len())
	}
	if w.Contains("title 0", now) || w.Contains("title 1", now) {
		t.Fatalf("oldest entries should have been evicted")
	}
	if !w.Contains("title 4", now) {
		t.Fatalf("newest entry should remain")
	}
}

func TestDedupWindowAgeEviction(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewDedupWindow(100, time.Hour)

	w.Add("old title", now)
	if !w.Contains("old title", now.Add(59*time.Minute)) {
		t.Fatalf("entry should survive inside the age window")
	}
	if w.Contains("old title", now.Add(2*time.Hour)) {
		t.Fatalf("entry should expire past the age window")
	}
	if w.Len() != 0 {
		t.Fatalf("expired entry should be removed, len=%d", w.Len())
	}
}

func TestDedupWindowReAddRefreshes(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewDedupWindow(100, time.Hour)

	w.Add("repeat title", now)
	w.Add("repeat title", now.Add(50*time.Minute))
	if w.Len() != 1 {
		t.Fatalf("re-add should not duplicate, len=%d", w.Len())
	}
	if !w.Contains("repeat title", now.Add(90*time.Minute)) {
		t.Fatalf("refreshed entry should survive from its newest timestamp")
	}
}
