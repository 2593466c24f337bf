package signals

import (
	"context"
	"testing"
	"time"

	"github.com/chrbailey/lex-intel/internal/db"
	"github.com/chrbailey/lex-intel/internal/globaltime"
)

type fakeSignalStore struct {
	articles []db.SignalArticle

	gotCutoff       time.Time
	gotMinRelevance int
	countWindows    [][2]time.Time
}

func (f *fakeSignalStore) SignalArticles(_ context.Context, cutoff time.Time, minRelevance, _ int) ([]db.SignalArticle, error) {
	f.gotCutoff = cutoff
	f.gotMinRelevance = minRelevance
	out := make([]db.SignalArticle, 0, len(f.articles))
	for _, a := range f.articles {
		if a.Relevance >= minRelevance {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeSignalStore) CategoryCounts(_ context.Context, from, to time.Time) (map[string]int, error) {
	f.countWindows = append(f.countWindows, [2]time.Time{from, to})
	return map[string]int{"funding": 3}, nil
}

func TestDetectUsesConfiguredDefaults(t *testing.T) {
	globaltime.SetMockTime(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	defer globaltime.ResetTime()

	store := &fakeSignalStore{}
	svc := NewService(store, Options{WindowDays: 7, MinRelevance: 4})

	report, err := svc.Detect(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if report.WindowDays != 7 {
		t.Fatalf("WindowDays = %d, want 7", report.WindowDays)
	}
	if store.gotMinRelevance != 4 {
		t.Fatalf("min relevance = %d, want 4", store.gotMinRelevance)
	}
	want := globaltime.UTC().AddDate(0, 0, -7)
	if !store.gotCutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", store.gotCutoff, want)
	}
}

func TestDetectOverridesWindowAndRelevance(t *testing.T) {
	globaltime.SetMockTime(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	defer globaltime.ResetTime()

	store := &fakeSignalStore{
		articles: []db.SignalArticle{
			{ArticleID: 1, Source: "36kr", EnglishTitle: "Moonshot raises new round", Category: "funding", Relevance: 5},
			{ArticleID: 2, Source: "pandaily", EnglishTitle: "Minor model refresh", Category: "product", Relevance: 3},
		},
	}
	svc := NewService(store, Options{WindowDays: 7, MinRelevance: 4})

	report, err := svc.Detect(context.Background(), 14, 5)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if report.WindowDays != 14 {
		t.Fatalf("WindowDays = %d, want 14", report.WindowDays)
	}
	if store.gotMinRelevance != 5 {
		t.Fatalf("min relevance = %d, want 5", store.gotMinRelevance)
	}
	if len(report.Clusters) != 1 {
		t.Fatalf("expected one cluster from the relevance-5 article, got %d", len(report.Clusters))
	}

	now := globaltime.UTC()
	if len(store.countWindows) != 2 {
		t.Fatalf("expected two count windows, got %d", len(store.countWindows))
	}
	cur, pri := store.countWindows[0], store.countWindows[1]
	if !cur[0].Equal(now.AddDate(0, 0, -14)) || !cur[1].Equal(now) {
		t.Fatalf("current window = %v..%v", cur[0], cur[1])
	}
	if !pri[0].Equal(now.AddDate(0, 0, -28)) || !pri[1].Equal(now.AddDate(0, 0, -14)) {
		t.Fatalf("prior window = %v..%v", pri[0], pri[1])
	}
}
