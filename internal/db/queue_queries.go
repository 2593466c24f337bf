package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PriorityForUrgency maps the urgency enum onto the numeric drain priority.
// Unknown urgencies are rejected at the enqueue boundary, not defaulted.
func PriorityForUrgency(urgency string) (int, error) {
	switch urgency {
	case "high":
		return 1, nil
	case "medium":
		return 2, nil
	case "low":
		return 3, nil
	default:
		return 0, fmt.Errorf("unknown urgency %q", urgency)
	}
}

// EnqueuePost adds one rendered post to the publish queue.
type EnqueuePost struct {
	Platform     string
	Title        *string
	Body         string
	FallbackBody *string
	Urgency      string
	MaxRetries   int
	BriefingID   *int64
	ArticleID    *int64
}

func (p *Pool) EnqueuePost(ctx context.Context, post EnqueuePost, now time.Time) (int64, error) {
	priority, err := PriorityForUrgency(post.Urgency)
	if err != nil {
		return 0, err
	}
	if post.Body == "" {
		return 0, fmt.Errorf("post body is empty")
	}
	maxRetries := post.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	const q = `
INSERT INTO lex.publish_queue (
	queue_uuid, platform, title, body, fallback_body, urgency, priority,
	status, max_retries, publish_log, briefing_id, article_id, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'queued', $8, '[]'::jsonb, $9, $10, $11, $11)
RETURNING queue_id
`

	var id int64
	err = p.QueryRow(ctx, q,
		uuid.NewString(),
		post.Platform,
		post.Title,
		post.Body,
		post.FallbackBody,
		post.Urgency,
		priority,
		maxRetries,
		post.BriefingID,
		post.ArticleID,
		now.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue post platform=%s: %w", post.Platform, err)
	}
	return id, nil
}

// QueueItem is the drain-loop read model for one publishable item.
type QueueItem struct {
	QueueID      int64
	QueueUUID    string
	Platform     string
	Title        *string
	Body         string
	FallbackBody *string
	Urgency      string
	Priority     int
	Status       string
	RetryCount   int
	MaxRetries   int
	NextRetryAt  *time.Time
	ArticleID    *int64
	CreatedAt    time.Time
}

// DueQueueItems selects items eligible for publishing: queued, or retry_queued
// whose next_retry_at has passed. Ordering is priority ascending then
// created_at ascending; that ordering is a guarantee, not best effort.
func (p *Pool) DueQueueItems(ctx context.Context, platform string, now time.Time, limit int) ([]QueueItem, error) {
	if limit <= 0 {
		limit = 20
	}

	const q = `
SELECT queue_id, queue_uuid::text, platform, title, body, fallback_body,
       urgency, priority, status, retry_count, max_retries, next_retry_at,
       article_id, created_at
FROM lex.publish_queue
WHERE (status = 'queued' OR (status = 'retry_queued' AND next_retry_at <= $1))
  AND ($2 = '' OR platform = $2)
ORDER BY priority ASC, created_at ASC, queue_id ASC
LIMIT $3
`

	rows, err := p.Query(ctx, q, now.UTC(), platform, limit)
	if err != nil {
		return nil, fmt.Errorf("query due queue items: %w", err)
	}
	defer rows.Close()

	items := make([]QueueItem, 0, limit)
	for rows.Next() {
		var row QueueItem
		if err := rows.Scan(
			&row.QueueID,
			&row.QueueUUID,
			&row.Platform,
			&row.Title,
			&row.Body,
			&row.FallbackBody,
			&row.Urgency,
			&row.Priority,
			&row.Status,
			&row.RetryCount,
			&row.MaxRetries,
			&row.NextRetryAt,
			&row.ArticleID,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

// ClaimQueueItem moves one item to publishing with a compare-and-set on
// status. Exactly one drain execution wins; a false return is a claim
// conflict and the caller skips the item.
func (p *Pool) ClaimQueueItem(ctx context.Context, queueID int64, now time.Time) (bool, error) {
	const q = `
UPDATE lex.publish_queue
SET status = 'publishing', claimed_at = $2, updated_at = $2
WHERE queue_id = $1
  AND (status = 'queued' OR (status = 'retry_queued' AND (next_retry_at IS NULL OR next_retry_at <= $2)))
`

	tag, err := p.Exec(ctx, q, queueID, now.UTC())
	if err != nil {
		return false, fmt.Errorf("claim queue item %d: %w", queueID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkQueuePublished finalizes a successful publish and appends the attempt
// to the publish log.
func (p *Pool) MarkQueuePublished(ctx context.Context, queueID int64, platformID string, usedFallback bool, now time.Time) error {
	entry, err := logEntryJSON(PublishLogEntry{
		At:         now.UTC(),
		Status:     "published",
		PlatformID: platformID,
		Fallback:   usedFallback,
	})
	if err != nil {
		return err
	}

	const q = `
UPDATE lex.publish_queue
SET status = 'published',
    published_at = $2,
    platform_id = $3,
    publish_log = COALESCE(publish_log, '[]'::jsonb) || $4::jsonb,
    error_message = NULL,
    claimed_at = NULL,
    updated_at = $2
WHERE queue_id = $1
  AND status = 'publishing'
`

	tag, err := p.Exec(ctx, q, queueID, now.UTC(), platformID, entry)
	if err != nil {
		return fmt.Errorf("mark queue item %d published: %w", queueID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("queue item %d was not in publishing state", queueID)
	}
	return nil
}

// MarkQueueRetry schedules a retry after a retryable failure. retry_count is
// incremented here and never exceeds max_retries because the caller routes
// exhausted items to MarkQueueFailed instead.
func (p *Pool) MarkQueueRetry(ctx context.Context, queueID int64, nextRetryAt time.Time, errMsg string, now time.Time) error {
	entry, err := logEntryJSON(PublishLogEntry{At: now.UTC(), Status: "failed", Error: errMsg})
	if err != nil {
		return err
	}

	const q = `
UPDATE lex.publish_queue
SET status = 'retry_queued',
    retry_count = retry_count + 1,
    next_retry_at = $2,
    publish_log = COALESCE(publish_log, '[]'::jsonb) || $3::jsonb,
    error_message = $4,
    claimed_at = NULL,
    updated_at = $5
WHERE queue_id = $1
  AND status = 'publishing'
  AND retry_count < max_retries
`

	tag, err := p.Exec(ctx, q, queueID, nextRetryAt.UTC(), entry, errMsg, now.UTC())
	if err != nil {
		return fmt.Errorf("mark queue item %d retry: %w", queueID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("queue item %d not eligible for retry", queueID)
	}
	return nil
}

// MarkQueueFailed moves an item to the terminal failed state.
func (p *Pool) MarkQueueFailed(ctx context.Context, queueID int64, errMsg string, now time.Time) error {
	entry, err := logEntryJSON(PublishLogEntry{At: now.UTC(), Status: "failed", Error: errMsg})
	if err != nil {
		return err
	}

	const q = `
UPDATE lex.publish_queue
SET status = 'failed',
    publish_log = COALESCE(publish_log, '[]'::jsonb) || $2::jsonb,
    error_message = $3,
    claimed_at = NULL,
    updated_at = $4
WHERE queue_id = $1
  AND status = 'publishing'
`

	tag, err := p.Exec(ctx, q, queueID, entry, errMsg, now.UTC())
	if err != nil {
		return fmt.Errorf("mark queue item %d failed: %w", queueID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("queue item %d was not in publishing state", queueID)
	}
	return nil
}

// MarkQueueSkipped retires an item without publishing (operator decision or
// unconfigured platform).
func (p *Pool) MarkQueueSkipped(ctx context.Context, queueID int64, reason string, now time.Time) error {
	entry, err := logEntryJSON(PublishLogEntry{At: now.UTC(), Status: "skipped", Error: reason})
	if err != nil {
		return err
	}

	const q = `
UPDATE lex.publish_queue
SET status = 'skipped',
    publish_log = COALESCE(publish_log, '[]'::jsonb) || $2::jsonb,
    error_message = $3,
    claimed_at = NULL,
    updated_at = $4
WHERE queue_id = $1
  AND status IN ('queued', 'retry_queued', 'publishing')
`

	if _, err := p.Exec(ctx, q, queueID, entry, reason, now.UTC()); err != nil {
		return fmt.Errorf("mark queue item %d skipped: %w", queueID, err)
	}
	return nil
}

// ReclaimStalePublishing rolls publishing claims older than the lease back to
// retry_queued without consuming a retry. This is the cleanup pass that keeps
// cancelled or crashed drains from leaving items stuck in publishing.
func (p *Pool) ReclaimStalePublishing(ctx context.Context, lease time.Duration, now time.Time) (int64, error) {
	cutoff := now.UTC().Add(-lease)

	const q = `
UPDATE lex.publish_queue
SET status = 'retry_queued',
    next_retry_at = NULL,
    claimed_at = NULL,
    updated_at = $2
WHERE status = 'publishing'
  AND claimed_at IS NOT NULL
  AND claimed_at < $1
`

	tag, err := p.Exec(ctx, q, cutoff, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("reclaim stale publishing items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// QueueDepths returns item counts per queue status.
func (p *Pool) QueueDepths(ctx context.Context) (map[string]int64, error) {
	const q = `
SELECT status, COUNT(*)::bigint
FROM lex.publish_queue
GROUP BY status
`

	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query queue depths: %w", err)
	}
	defer rows.Close()

	depths := make(map[string]int64, 6)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue depth: %w", err)
		}
		depths[status] = count
	}
	return depths, rows.Err()
}

func logEntryJSON(entry PublishLogEntry) (string, error) {
	raw, err := json.Marshal([]PublishLogEntry{entry})
	if err != nil {
		return "", fmt.Errorf("marshal publish log entry: %w", err)
	}
	return string(raw), nil
}
