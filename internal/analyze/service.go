// Package analyze runs the two-stage pipeline: per-article classification,
// then cross-source synthesis into a briefing and draft posts.
package analyze

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrbailey/lex-intel/internal/db"
	"github.com/chrbailey/lex-intel/internal/globaltime"
	"github.com/chrbailey/lex-intel/internal/llm"
	"github.com/chrbailey/lex-intel/schema"
)

// Store is the persistence surface the analyzer needs.
type Store interface {
	PendingArticles(ctx context.Context, limit int) ([]db.PendingArticle, error)
	UpdateArticleEnrichment(ctx context.Context, articleID int64, englishTitle, category string, relevance int) error
	RecentEmbeddedArticles(ctx context.Context, cutoff time.Time, limit int) ([]db.EmbeddedArticle, error)
	InsertBriefing(ctx context.Context, text string, articleCount int, modelUsed string, scrapeRunID *int64, createdAt time.Time) (int64, error)
	StartAnalysisRun(ctx context.Context, model string, startedAt time.Time) (int64, error)
	FinishAnalysisRun(ctx context.Context, runID int64, articleCount int, briefingID *int64, status string, errMsg *string, finishedAt time.Time) error
	EnqueuePost(ctx context.Context, post db.EnqueuePost, now time.Time) (int64, error)
}

// Options tunes the analyzer.
type Options struct {
	BatchSize    int
	PendingLimit int
	MinRelevance int
	// MaxRetries is stamped onto every enqueued post; zero falls back to
	// the queue default.
	MaxRetries int
	// LongFormPlatforms receive each draft's long-form variant,
	// ShortFormPlatforms the short-form one.
	LongFormPlatforms  []string
	ShortFormPlatforms []string
}

// EnrichedArticle is a stage-1 output joined back to its article row.
type EnrichedArticle struct {
	ArticleID    int64
	Source       string
	EnglishTitle string
	Category     string
	Relevance    int
	Body         string
}

// Result summarizes one analysis cycle.
type Result struct {
	RunID        int64  `json:"run_id"`
	Analyzed     int    `json:"analyzed"`
	LeftPending  int    `json:"left_pending"`
	Relevant     int    `json:"relevant"`
	BriefingID   *int64 `json:"briefing_id,omitempty"`
	Drafts       int    `json:"drafts"`
	PostsQueued  int    `json:"posts_queued"`
	Stage2Failed bool   `json:"stage2_failed,omitempty"`
}

type Service struct {
	store  Store
	client llm.Client
	logger zerolog.Logger
	opts   Options
}

func NewService(store Store, client llm.Client, logger zerolog.Logger, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.PendingLimit <= 0 {
		opts.PendingLimit = 500
	}
	if opts.MinRelevance <= 0 {
		opts.MinRelevance = 3
	}
	if len(opts.LongFormPlatforms) == 0 {
		opts.LongFormPlatforms = []string{"devto", "hashnode"}
	}
	if len(opts.ShortFormPlatforms) == 0 {
		opts.ShortFormPlatforms = []string{"linkedin"}
	}
	return &Service{store: store, client: client, logger: logger, opts: opts}
}

// Run executes both stages. Stage-1 results persist even when stage 2 fails;
// a stage-2 failure marks the AnalysisRun failed but never unwinds the cycle.
func (s *Service) Run(ctx context.Context) (Result, error) {
	if s == nil || s.store == nil || s.client == nil {
		return Result{}, fmt.Errorf("analyze service is not initialized")
	}

	started := globaltime.UTC()
	runID, err := s.store.StartAnalysisRun(ctx, s.client.Model(), started)
	if err != nil {
		return Result{}, fmt.Errorf("start analysis run: %w", err)
	}
	result := Result{RunID: runID}

	pending, err := s.store.PendingArticles(ctx, s.opts.PendingLimit)
	if err != nil {
		return result, s.finishFailed(ctx, runID, result, fmt.Errorf("load pending articles: %w", err))
	}
	if len(pending) == 0 {
		s.logger.Info().Msg("no pending articles to analyze")
		return result, s.finish(ctx, runID, result, nil, "completed", nil)
	}

	enriched := s.runStage1(ctx, pending)
	result.Analyzed = len(enriched)
	result.LeftPending = len(pending) - len(enriched)

	relevant := make([]EnrichedArticle, 0, len(enriched))
	for _, article := range enriched {
		if article.Relevance >= s.opts.MinRelevance {
			relevant = append(relevant, article)
		}
	}
	result.Relevant = len(relevant)
	s.logger.Info().
		Int("analyzed", result.Analyzed).
		Int("left_pending", result.LeftPending).
		Int("relevant", result.Relevant).
		Msg("stage 1 complete")

	if len(relevant) == 0 {
		return result, s.finish(ctx, runID, result, nil, "completed", nil)
	}

	synthesis, err := s.runStage2(ctx, relevant)
	if err != nil {
		// Stage 1 enrichment is already persisted; only the run is failed.
		result.Stage2Failed = true
		s.logger.Error().Err(err).Msg("stage 2 failed after retry")
		return result, s.finish(ctx, runID, result, nil, "failed", err)
	}

	briefingID, err := s.store.InsertBriefing(ctx, synthesis.Briefing, len(relevant), s.client.Model(), nil, globaltime.UTC())
	if err != nil {
		return result, s.finishFailed(ctx, runID, result, fmt.Errorf("insert briefing: %w", err))
	}
	result.BriefingID = &briefingID
	result.Drafts = len(synthesis.Drafts)

	queued, err := s.enqueueDrafts(ctx, synthesis, briefingID)
	if err != nil {
		return result, s.finishFailed(ctx, runID, result, err)
	}
	result.PostsQueued = queued

	return result, s.finish(ctx, runID, result, &briefingID, "completed", nil)
}

// runStage1 classifies pending articles in batches. Articles whose result is
// missing or malformed stay pending; they are never defaulted to a guessed
// category.
func (s *Service) runStage1(ctx context.Context, pending []db.PendingArticle) []EnrichedArticle {
	enriched := make([]EnrichedArticle, 0, len(pending))

	for start := 0; start < len(pending); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(pending))
		batch := pending[start:end]

		items, err := s.classifyBatch(ctx, batch)
		if err != nil {
			s.logger.Warn().Err(err).
				Int("batch_start", start).
				Int("batch_size", len(batch)).
				Msg("stage 1 batch failed, articles stay pending")
			continue
		}

		matched := make(map[int]bool, len(items))
		for _, item := range items {
			if item.Index < 0 || item.Index >= len(batch) || matched[item.Index] {
				s.logger.Warn().Int("index", item.Index).Msg("stage 1 result index invalid or duplicated")
				continue
			}
			if !schema.ValidCategory(item.Category) || item.Relevance < 1 || item.Relevance > 5 || strings.TrimSpace(item.EnglishTitle) == "" {
				s.logger.Warn().Int("index", item.Index).Str("category", item.Category).Msg("stage 1 result malformed, article stays pending")
				continue
			}

			article := batch[item.Index]
			if err := s.store.UpdateArticleEnrichment(ctx, article.ArticleID, item.EnglishTitle, item.Category, item.Relevance); err != nil {
				s.logger.Warn().Err(err).Int64("article_id", article.ArticleID).Msg("enrichment update failed")
				continue
			}
			matched[item.Index] = true
			enriched = append(enriched, EnrichedArticle{
				ArticleID:    article.ArticleID,
				Source:       article.Source,
				EnglishTitle: item.EnglishTitle,
				Category:     item.Category,
				Relevance:    item.Relevance,
				Body:         article.Body,
			})
		}

		for i := range batch {
			if !matched[i] {
				s.logger.Info().Int64("article_id", batch[i].ArticleID).Msg("no stage 1 result, article left pending")
			}
		}
	}

	return enriched
}

func (s *Service) classifyBatch(ctx context.Context, batch []db.PendingArticle) ([]schema.Stage1Item, error) {
	raw, err := s.client.Complete(ctx, stage1Prompt(batch))
	if err != nil {
		return nil, fmt.Errorf("stage 1 completion: %w", err)
	}
	items, err := schema.ValidateStage1Output(raw)
	if err != nil {
		return nil, fmt.Errorf("stage 1 validation: %w", err)
	}
	return items, nil
}

// runStage2 synthesizes the briefing. Malformed output is retried once with
// the same input before the run is reported failed.
func (s *Service) runStage2(ctx context.Context, relevant []EnrichedArticle) (*schema.Stage2Result, error) {
	historical, err := s.historicalContext(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("historical context unavailable, synthesizing without it")
		historical = ""
	}
	prompt := stage2Prompt(relevant, historical)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := s.client.Complete(ctx, prompt)
		if err != nil {
			lastErr = fmt.Errorf("stage 2 completion: %w", err)
			continue
		}
		synthesis, err := schema.ValidateStage2Output(raw)
		if err != nil {
			lastErr = fmt.Errorf("stage 2 validation: %w", err)
			continue
		}
		if err := s.checkDraftReferences(synthesis, relevant); err != nil {
			lastErr = err
			continue
		}
		return synthesis, nil
	}
	return nil, lastErr
}

func (s *Service) checkDraftReferences(synthesis *schema.Stage2Result, relevant []EnrichedArticle) error {
	known := make(map[int64]bool, len(relevant))
	for _, article := range relevant {
		known[article.ArticleID] = true
	}
	for _, draft := range synthesis.Drafts {
		if !known[draft.ArticleID] {
			return fmt.Errorf("draft references unknown article_id %d", draft.ArticleID)
		}
	}
	return nil
}

// historicalContext surfaces recent high-relevance coverage so stage 2 can
// distinguish genuinely new developments from running stories.
func (s *Service) historicalContext(ctx context.Context) (string, error) {
	cutoff := globaltime.UTC().AddDate(0, 0, -30)
	corpus, err := s.store.RecentEmbeddedArticles(ctx, cutoff, 10)
	if err != nil {
		return "", err
	}
	if len(corpus) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("HISTORICAL CONTEXT (related past coverage):\n")
	for _, article := range corpus {
		category := "other"
		if article.Category != nil {
			category = *article.Category
		}
		date := ""
		if article.PublishedAt != nil {
			date = article.PublishedAt.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "- [%s] (%s, %s) %s\n", article.Source, date, category, truncate(article.Title, 150))
	}
	return b.String(), nil
}

func (s *Service) enqueueDrafts(ctx context.Context, synthesis *schema.Stage2Result, briefingID int64) (int, error) {
	lead := extractLead(synthesis.Briefing)
	var fallback *string
	if lead != "" {
		fallback = &lead
	}

	queued := 0
	now := globaltime.UTC()
	for _, draft := range synthesis.Drafts {
		articleID := draft.ArticleID
		var title *string
		if strings.TrimSpace(draft.Title) != "" {
			t := draft.Title
			title = &t
		}

		for _, platform := range s.opts.LongFormPlatforms {
			if _, err := s.store.EnqueuePost(ctx, db.EnqueuePost{
				Platform:     platform,
				Title:        title,
				Body:         draft.LongForm,
				FallbackBody: fallback,
				Urgency:      draft.Urgency,
				MaxRetries:   s.opts.MaxRetries,
				BriefingID:   &briefingID,
				ArticleID:    &articleID,
			}, now); err != nil {
				return queued, fmt.Errorf("enqueue long-form post: %w", err)
			}
			queued++
		}
		for _, platform := range s.opts.ShortFormPlatforms {
			if _, err := s.store.EnqueuePost(ctx, db.EnqueuePost{
				Platform:     platform,
				Body:         draft.ShortForm,
				FallbackBody: fallback,
				Urgency:      draft.Urgency,
				MaxRetries:   s.opts.MaxRetries,
				BriefingID:   &briefingID,
				ArticleID:    &articleID,
			}, now); err != nil {
				return queued, fmt.Errorf("enqueue short-form post: %w", err)
			}
			queued++
		}
	}
	return queued, nil
}

func (s *Service) finish(ctx context.Context, runID int64, result Result, briefingID *int64, status string, runErr error) error {
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}
	if err := s.store.FinishAnalysisRun(ctx, runID, result.Analyzed, briefingID, status, errMsg, globaltime.UTC()); err != nil {
		return fmt.Errorf("finish analysis run %d: %w", runID, err)
	}
	return nil
}

func (s *Service) finishFailed(ctx context.Context, runID int64, result Result, runErr error) error {
	if err := s.finish(ctx, runID, result, nil, "failed", runErr); err != nil {
		s.logger.Error().Err(err).Msg("failed to record analysis run failure")
	}
	return runErr
}
