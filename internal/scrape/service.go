package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrbailey/lex-intel/internal/globaltime"
	"github.com/chrbailey/lex-intel/internal/pipeline"
)

// RunStore is the persistence surface for scrape run bookkeeping.
type RunStore interface {
	StartScrapeRun(ctx context.Context, mode string, startedAt time.Time) (int64, error)
	FinishScrapeRun(ctx context.Context, runID int64, found, inserted int, sourcesOK, sourcesFailed []string, errMsg *string, finishedAt time.Time) error
}

// Result summarizes one scrape cycle. Per-source failures are data here,
// not errors: one broken source never aborts the batch.
type Result struct {
	RunID            int64    `json:"run_id"`
	Found            int      `json:"found"`
	New              int      `json:"new"`
	RejectedExact    int      `json:"rejected_exact"`
	RejectedSemantic int      `json:"rejected_semantic"`
	Unverified       int      `json:"unverified_semantic"`
	SourcesOK        []string `json:"sources_ok"`
	SourcesFailed    []string `json:"sources_failed"`
}

// Service runs the scrape cycle: fetch every source, normalize, dedup,
// persist accepted articles.
type Service struct {
	runs       RunStore
	normalizer *pipeline.Normalizer
	deduper    *pipeline.Deduplicator
	fetchers   []Fetcher
	timeout    time.Duration
	logger     zerolog.Logger
}

func NewService(runs RunStore, normalizer *pipeline.Normalizer, deduper *pipeline.Deduplicator, fetchers []Fetcher, timeout time.Duration, logger zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Service{
		runs:       runs,
		normalizer: normalizer,
		deduper:    deduper,
		fetchers:   fetchers,
		timeout:    timeout,
		logger:     logger,
	}
}

// Run executes one scrape cycle. Only storage failures return an error;
// everything per-source is aggregated into the result.
func (s *Service) Run(ctx context.Context) (Result, error) {
	if s == nil || s.runs == nil {
		return Result{}, fmt.Errorf("scrape service is not initialized")
	}

	s.prepareWindow(ctx)

	started := globaltime.UTC()
	runID, err := s.runs.StartScrapeRun(ctx, "scrape", started)
	if err != nil {
		return Result{}, fmt.Errorf("start scrape run: %w", err)
	}

	result := Result{
		RunID:         runID,
		SourcesOK:     make([]string, 0, len(s.fetchers)),
		SourcesFailed: make([]string, 0, 2),
	}

	for _, fetcher := range s.fetchers {
		records, err := s.fetchSource(ctx, fetcher)
		if err != nil {
			s.logger.Warn().Err(err).Str("source", fetcher.Name()).Msg("source fetch failed")
			result.SourcesFailed = append(result.SourcesFailed, fetcher.Name())
			continue
		}
		result.SourcesOK = append(result.SourcesOK, fetcher.Name())
		result.Found += len(records)
		s.logger.Info().Str("source", fetcher.Name()).Int("records", len(records)).Msg("source fetched")

		for _, record := range records {
			if err := s.ingestRecord(ctx, record, runID, &result); err != nil {
				// Storage failure is fatal to the cycle; state so far stays
				// consistent because each accept is its own write.
				_ = s.finish(ctx, runID, result, err)
				return result, err
			}
		}
	}

	if err := s.finish(ctx, runID, result, nil); err != nil {
		return result, err
	}

	s.logger.Info().
		Int64("run_id", runID).
		Int("found", result.Found).
		Int("new", result.New).
		Int("failed_sources", len(result.SourcesFailed)).
		Msg("scrape cycle complete")
	return result, nil
}

// prepareWindow replays persisted titles into the in-memory window and
// evicts expired rows from the persisted one. Both are best effort: the
// persisted SeenTitle check still backstops a cold window.
func (s *Service) prepareWindow(ctx context.Context) {
	if s.deduper == nil {
		return
	}
	if warmed, err := s.deduper.WarmWindow(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("dedup window warm failed")
	} else if warmed > 0 {
		s.logger.Debug().Int("entries", warmed).Msg("dedup window warmed")
	}
	if removed, err := s.deduper.EvictExpired(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("dedup title eviction failed")
	} else if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("expired dedup titles evicted")
	}
}

func (s *Service) fetchSource(ctx context.Context, fetcher Fetcher) ([]pipeline.RawRecord, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fetcher.Fetch(fetchCtx)
}

func (s *Service) ingestRecord(ctx context.Context, record pipeline.RawRecord, runID int64, result *Result) error {
	cand, err := s.normalizer.Normalize(record)
	if err != nil {
		s.logger.Debug().Err(err).Str("source", record.Source).Msg("record skipped by normalizer")
		return nil
	}

	decision, err := s.deduper.Accept(ctx, cand, &runID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", cand.SourceID, err)
	}

	switch decision.Outcome {
	case pipeline.Accepted:
		result.New++
		if decision.Unverified {
			result.Unverified++
		}
	case pipeline.RejectedExact:
		result.RejectedExact++
	case pipeline.RejectedSemantic:
		result.RejectedSemantic++
	}
	return nil
}

func (s *Service) finish(ctx context.Context, runID int64, result Result, runErr error) error {
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}
	if err := s.runs.FinishScrapeRun(ctx, runID, result.Found, result.New, result.SourcesOK, result.SourcesFailed, errMsg, globaltime.UTC()); err != nil {
		return fmt.Errorf("finish scrape run %d: %w", runID, err)
	}
	return nil
}
