package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrbailey/lex-intel/internal/db"
	"github.com/chrbailey/lex-intel/internal/embed"
	"github.com/chrbailey/lex-intel/internal/globaltime"
)

// DefaultSemanticThreshold is inclusive: a nearest-neighbor cosine equal to
// the threshold counts as a duplicate.
const DefaultSemanticThreshold = 0.85

// Outcome classifies one dedup decision.
type Outcome string

const (
	Accepted         Outcome = "accepted"
	RejectedExact    Outcome = "rejected-exact"
	RejectedSemantic Outcome = "rejected-semantic"
)

// Decision is the result of Deduplicator.Accept.
type Decision struct {
	Outcome    Outcome
	ArticleID  int64
	Similarity float64
	NearestID  int64
	// Unverified marks articles accepted on exact-dedup alone because the
	// embedding service was unavailable.
	Unverified bool
}

// Store is the persistence surface the deduplicator needs.
type Store interface {
	SeenTitle(ctx context.Context, titleNorm string, cutoff time.Time) (bool, error)
	RecordTitle(ctx context.Context, titleNorm, source string, seenAt time.Time) error
	RecentTitles(ctx context.Context, cutoff time.Time, limit int) ([]db.RecentTitleEntry, error)
	CleanupDedupTitles(ctx context.Context, cutoff time.Time, maxRows int) (int64, error)
	RecentEmbeddedArticles(ctx context.Context, cutoff time.Time, limit int) ([]db.EmbeddedArticle, error)
	InsertArticle(ctx context.Context, a db.NewArticle) (int64, bool, error)
}

// DedupOptions tunes the deduplicator.
type DedupOptions struct {
	WindowDays         int
	SemanticThreshold  float64
	SemanticCandidates int
	// MaxPersistedTitles caps the dedup_titles table; eviction removes the
	// oldest surplus rows past the age cutoff.
	MaxPersistedTitles int
}

// Deduplicator rejects exact and near-duplicate candidates before they enter
// storage. Within one run, insertion order into the window reflects
// processing order, so the second of two near-identical candidates in the
// same batch is rejected.
type Deduplicator struct {
	store    Store
	embedder embed.Embedder
	window   *DedupWindow
	logger   zerolog.Logger
	opts     DedupOptions
}

func NewDeduplicator(store Store, embedder embed.Embedder, window *DedupWindow, logger zerolog.Logger, opts DedupOptions) *Deduplicator {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 30
	}
	if opts.SemanticThreshold <= 0 {
		opts.SemanticThreshold = DefaultSemanticThreshold
	}
	if opts.SemanticCandidates <= 0 {
		opts.SemanticCandidates = 500
	}
	if opts.MaxPersistedTitles <= 0 {
		opts.MaxPersistedTitles = 20000
	}
	return &Deduplicator{
		store:    store,
		embedder: embedder,
		window:   window,
		logger:   logger,
		opts:     opts,
	}
}

// Accept runs the exact check, then the semantic check, and persists the
// candidate when both pass. Embedding unavailability never blocks ingestion:
// the candidate is accepted on the exact result alone and flagged unverified.
func (d *Deduplicator) Accept(ctx context.Context, cand Candidate, scrapeRunID *int64) (Decision, error) {
	if d == nil || d.store == nil {
		return Decision{}, fmt.Errorf("deduplicator is not initialized")
	}
	if cand.TitleNorm == "" {
		return Decision{}, fmt.Errorf("candidate has empty normalized title")
	}

	now := globaltime.UTC()
	cutoff := now.AddDate(0, 0, -d.opts.WindowDays)

	// Exact check: batch-local window first, then the persisted window.
	if d.window != nil && d.window.Contains(cand.TitleNorm, now) {
		return Decision{Outcome: RejectedExact}, nil
	}
	seen, err := d.store.SeenTitle(ctx, cand.TitleNorm, cutoff)
	if err != nil {
		return Decision{}, fmt.Errorf("exact dedup lookup: %w", err)
	}
	if seen {
		return Decision{Outcome: RejectedExact}, nil
	}

	// Semantic check against a bounded recent corpus.
	var vector []float64
	unverified := false
	if d.embedder != nil {
		vectors, err := d.embedder.Embed(ctx, []string{embeddingInput(cand)})
		if err != nil || len(vectors) != 1 {
			unverified = true
			d.logger.Warn().Err(err).Str("source", cand.Source).Msg("embedding unavailable, accepting on exact dedup alone")
		} else {
			vector = vectors[0]
		}
	} else {
		unverified = true
	}

	if len(vector) > 0 {
		nearestID, best, err := d.nearestNeighbor(ctx, cutoff, vector)
		if err != nil {
			unverified = true
			d.logger.Warn().Err(err).Msg("semantic corpus lookup failed, accepting on exact dedup alone")
		} else if best >= d.opts.SemanticThreshold {
			d.logger.Debug().
				Str("title", cand.TitleNorm).
				Float64("similarity", best).
				Int64("nearest", nearestID).
				Msg("semantic duplicate rejected")
			return Decision{Outcome: RejectedSemantic, Similarity: best, NearestID: nearestID}, nil
		}
	}

	var embedding json.RawMessage
	if len(vector) > 0 {
		embedding, err = json.Marshal(vector)
		if err != nil {
			return Decision{}, fmt.Errorf("marshal embedding: %w", err)
		}
	}

	articleID, inserted, err := d.store.InsertArticle(ctx, db.NewArticle{
		Source:           cand.Source,
		SourceID:         cand.SourceID,
		Title:            cand.Title,
		TitleNorm:        cand.TitleNorm,
		URL:              cand.URL,
		Body:             cand.Body,
		Language:         cand.Language,
		PublishedAt:      cand.PublishedAt,
		ScrapedAt:        now,
		SemanticVerified: !unverified,
		Embedding:        embedding,
		ScrapeRunID:      scrapeRunID,
	})
	if err != nil {
		return Decision{}, err
	}
	if !inserted {
		// Same (source, source_id) already persisted: an exact duplicate the
		// title window missed, typically a re-scrape of an old item.
		return Decision{Outcome: RejectedExact}, nil
	}

	if err := d.store.RecordTitle(ctx, cand.TitleNorm, cand.Source, now); err != nil {
		return Decision{}, fmt.Errorf("record dedup title: %w", err)
	}
	if d.window != nil {
		d.window.Add(cand.TitleNorm, now)
	}

	return Decision{Outcome: Accepted, ArticleID: articleID, Unverified: unverified}, nil
}

// WarmWindow replays persisted window entries into the in-memory window so
// exact checks stay O(1) from the first batch after a restart.
func (d *Deduplicator) WarmWindow(ctx context.Context) (int, error) {
	if d == nil || d.store == nil || d.window == nil {
		return 0, nil
	}
	now := globaltime.UTC()
	cutoff := now.AddDate(0, 0, -d.opts.WindowDays)

	entries, err := d.store.RecentTitles(ctx, cutoff, d.window.maxSize)
	if err != nil {
		return 0, fmt.Errorf("warm dedup window: %w", err)
	}
	for _, entry := range entries {
		d.window.Add(entry.TitleNorm, entry.SeenAt)
	}
	return len(entries), nil
}

// EvictExpired removes persisted window entries past the age cutoff and any
// surplus beyond the row cap. Returns rows removed.
func (d *Deduplicator) EvictExpired(ctx context.Context) (int64, error) {
	if d == nil || d.store == nil {
		return 0, nil
	}
	cutoff := globaltime.UTC().AddDate(0, 0, -d.opts.WindowDays)
	removed, err := d.store.CleanupDedupTitles(ctx, cutoff, d.opts.MaxPersistedTitles)
	if err != nil {
		return 0, fmt.Errorf("evict dedup titles: %w", err)
	}
	return removed, nil
}

// nearestNeighbor returns the max cosine over the recent corpus. Ties on
// equal similarity resolve to the maximum by construction.
func (d *Deduplicator) nearestNeighbor(ctx context.Context, cutoff time.Time, vector []float64) (int64, float64, error) {
	corpus, err := d.store.RecentEmbeddedArticles(ctx, cutoff, d.opts.SemanticCandidates)
	if err != nil {
		return 0, 0, err
	}

	var nearestID int64
	best := -1.0
	for _, article := range corpus {
		score := embed.Cosine(vector, article.Embedding)
		if score > best {
			best = score
			nearestID = article.ArticleID
		}
	}
	if best < 0 {
		best = 0
	}
	return nearestID, best, nil
}

func embeddingInput(cand Candidate) string {
	body := cand.Body
	if len([]rune(body)) > 2000 {
		body = string([]rune(body)[:2000])
	}
	if body == "" {
		return cand.Title
	}
	return cand.Title + "\n\n" + body
}
