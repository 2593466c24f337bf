package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/chrbailey/lex-intel/internal/db"
	"github.com/chrbailey/lex-intel/internal/globaltime"
)

// Store is the read surface the signal detector needs.
type Store interface {
	SignalArticles(ctx context.Context, cutoff time.Time, minRelevance, limit int) ([]db.SignalArticle, error)
	CategoryCounts(ctx context.Context, from, to time.Time) (map[string]int, error)
}

// Options tunes the detector.
type Options struct {
	WindowDays   int
	MinRelevance int
	MaxArticles  int
	Similarity   float64
}

// Report is the combined signal view over one window.
type Report struct {
	WindowDays int        `json:"window_days"`
	Clusters   []*Cluster `json:"clusters"`
	Momentum   []Momentum `json:"momentum"`
}

type Service struct {
	store Store
	opts  Options
}

func NewService(store Store, opts Options) *Service {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 7
	}
	if opts.MinRelevance <= 0 {
		opts.MinRelevance = 4
	}
	if opts.MaxArticles <= 0 {
		opts.MaxArticles = 200
	}
	if opts.Similarity <= 0 {
		opts.Similarity = DefaultSimilarity
	}
	return &Service{store: store, opts: opts}
}

// Detect clusters the current window and computes momentum against the
// equal-length window immediately before it. windowDays and minRelevance
// override the configured defaults when positive.
func (s *Service) Detect(ctx context.Context, windowDays, minRelevance int) (*Report, error) {
	if windowDays <= 0 {
		windowDays = s.opts.WindowDays
	}
	if minRelevance <= 0 {
		minRelevance = s.opts.MinRelevance
	}

	now := globaltime.UTC()
	windowStart := now.AddDate(0, 0, -windowDays)
	priorStart := now.AddDate(0, 0, -2*windowDays)

	articles, err := s.store.SignalArticles(ctx, windowStart, minRelevance, s.opts.MaxArticles)
	if err != nil {
		return nil, fmt.Errorf("load signal articles: %w", err)
	}

	current, err := s.store.CategoryCounts(ctx, windowStart, now)
	if err != nil {
		return nil, fmt.Errorf("current window counts: %w", err)
	}
	prior, err := s.store.CategoryCounts(ctx, priorStart, windowStart)
	if err != nil {
		return nil, fmt.Errorf("prior window counts: %w", err)
	}

	return &Report{
		WindowDays: windowDays,
		Clusters:   ClusterArticles(articles, s.opts.Similarity),
		Momentum:   ComputeMomentum(current, prior),
	}, nil
}
