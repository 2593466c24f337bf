package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrbailey/lex-intel/internal/db"
	"github.com/chrbailey/lex-intel/internal/globaltime"
)

// Store is the queue persistence surface the manager drives.
type Store interface {
	DueQueueItems(ctx context.Context, platform string, now time.Time, limit int) ([]db.QueueItem, error)
	ClaimQueueItem(ctx context.Context, queueID int64, now time.Time) (bool, error)
	MarkQueuePublished(ctx context.Context, queueID int64, platformID string, usedFallback bool, now time.Time) error
	MarkQueueRetry(ctx context.Context, queueID int64, nextRetryAt time.Time, errMsg string, now time.Time) error
	MarkQueueFailed(ctx context.Context, queueID int64, errMsg string, now time.Time) error
	MarkQueueSkipped(ctx context.Context, queueID int64, reason string, now time.Time) error
	ReclaimStalePublishing(ctx context.Context, lease time.Duration, now time.Time) (int64, error)
	MarkArticlesStatus(ctx context.Context, articleIDs []int64, status string) error
}

// Options tunes the drain loop.
type Options struct {
	BatchSize      int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	Lease          time.Duration
	PublishTimeout time.Duration
}

// Result summarizes one drain pass.
type Result struct {
	Processed int   `json:"processed"`
	Published int   `json:"published"`
	Retried   int   `json:"retried"`
	Failed    int   `json:"failed"`
	Skipped   int   `json:"skipped"`
	Conflicts int   `json:"conflicts"`
	Reclaimed int64 `json:"reclaimed"`
}

type Manager struct {
	store    Store
	adapters map[string]Adapter
	logger   zerolog.Logger
	opts     Options
}

func NewManager(store Store, adapters []Adapter, logger zerolog.Logger, opts Options) *Manager {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 5 * time.Minute
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 12 * time.Hour
	}
	if opts.Lease <= 0 {
		opts.Lease = 10 * time.Minute
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 30 * time.Second
	}
	byPlatform := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byPlatform[a.Platform()] = a
	}
	return &Manager{store: store, adapters: byPlatform, logger: logger, opts: opts}
}

// Backoff returns the delay before the next attempt after retryCount prior
// failures. It doubles from the base each retry and never exceeds the cap,
// so successive retries can never be scheduled earlier than their
// predecessors.
func (m *Manager) Backoff(retryCount int) time.Duration {
	delay := m.opts.BackoffBase
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= m.opts.BackoffCap {
			return m.opts.BackoffCap
		}
	}
	if delay > m.opts.BackoffCap {
		return m.opts.BackoffCap
	}
	return delay
}

// Drain takes due items for one platform ("" = all) and pushes each through
// its adapter. Item failures never abort the pass; only queue storage
// errors do.
func (m *Manager) Drain(ctx context.Context, platform string) (Result, error) {
	var result Result

	reclaimed, err := m.store.ReclaimStalePublishing(ctx, m.opts.Lease, globaltime.UTC())
	if err != nil {
		return result, fmt.Errorf("reclaim stale items: %w", err)
	}
	result.Reclaimed = reclaimed
	if reclaimed > 0 {
		m.logger.Warn().Int64("count", reclaimed).Msg("reclaimed stale publishing items")
	}

	items, err := m.store.DueQueueItems(ctx, platform, globaltime.UTC(), m.opts.BatchSize)
	if err != nil {
		return result, fmt.Errorf("load due queue items: %w", err)
	}

	for _, item := range items {
		result.Processed++
		if err := m.processItem(ctx, item, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (m *Manager) processItem(ctx context.Context, item db.QueueItem, result *Result) error {
	logger := m.logger.With().
		Int64("queue_id", item.QueueID).
		Str("platform", item.Platform).
		Logger()

	adapter, ok := m.adapters[item.Platform]
	if !ok {
		result.Skipped++
		logger.Warn().Msg("no adapter configured, skipping item")
		return m.store.MarkQueueSkipped(ctx, item.QueueID, "platform not configured", globaltime.UTC())
	}

	claimed, err := m.store.ClaimQueueItem(ctx, item.QueueID, globaltime.UTC())
	if err != nil {
		return fmt.Errorf("claim queue item %d: %w", item.QueueID, err)
	}
	if !claimed {
		result.Conflicts++
		logger.Debug().Msg("claim lost, item taken by another worker")
		return nil
	}

	platformID, usedFallback, pubErr := m.attempt(ctx, adapter, item)
	if pubErr == nil {
		result.Published++
		logger.Info().Str("platform_id", platformID).Bool("fallback", usedFallback).Msg("post published")
		if err := m.store.MarkQueuePublished(ctx, item.QueueID, platformID, usedFallback, globaltime.UTC()); err != nil {
			return err
		}
		if item.ArticleID != nil {
			if err := m.store.MarkArticlesStatus(ctx, []int64{*item.ArticleID}, db.ArticleStatusPublished); err != nil {
				return fmt.Errorf("mark article %d published: %w", *item.ArticleID, err)
			}
		}
		return nil
	}

	if IsRetryable(pubErr) && item.RetryCount < item.MaxRetries {
		delay := m.Backoff(item.RetryCount)
		nextRetry := globaltime.UTC().Add(delay)
		result.Retried++
		logger.Warn().Err(pubErr).Dur("delay", delay).Msg("publish failed, retry scheduled")
		return m.store.MarkQueueRetry(ctx, item.QueueID, nextRetry, pubErr.Error(), globaltime.UTC())
	}

	result.Failed++
	logger.Error().Err(pubErr).Int("retry_count", item.RetryCount).Msg("post failed permanently")
	return m.store.MarkQueueFailed(ctx, item.QueueID, pubErr.Error(), globaltime.UTC())
}

// attempt publishes the item body, and on a content rejection retries once
// with the fallback body when one is present. The fallback is reserved for
// the item's first publishing attempt; a content rejection on a later retry
// fails without it.
func (m *Manager) attempt(ctx context.Context, adapter Adapter, item db.QueueItem) (string, bool, error) {
	post := Post{Body: item.Body}
	if item.Title != nil {
		post.Title = *item.Title
	}

	platformID, err := m.publishWithTimeout(ctx, adapter, post)
	if err == nil {
		return platformID, false, nil
	}
	if !IsContentError(err) || item.RetryCount > 0 || item.FallbackBody == nil || *item.FallbackBody == "" {
		return "", false, err
	}

	post.Body = *item.FallbackBody
	platformID, fbErr := m.publishWithTimeout(ctx, adapter, post)
	if fbErr != nil {
		// Report the original rejection; the fallback outcome rides along.
		return "", false, fmt.Errorf("%w (fallback also failed: %v)", err, fbErr)
	}
	return platformID, true, nil
}

func (m *Manager) publishWithTimeout(ctx context.Context, adapter Adapter, post Post) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.PublishTimeout)
	defer cancel()
	return adapter.Publish(ctx, post)
}
