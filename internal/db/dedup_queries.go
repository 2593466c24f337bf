package db

import (
	"context"
	"fmt"
	"time"
)

// SeenTitle reports whether a normalized title was recorded in the rolling
// dedup window on or after cutoff.
func (p *Pool) SeenTitle(ctx context.Context, titleNorm string, cutoff time.Time) (bool, error) {
	const q = `
SELECT 1
FROM lex.dedup_titles
WHERE title_norm = $1
  AND seen_at >= $2
LIMIT 1
`

	var one int
	err := p.QueryRow(ctx, q, titleNorm, cutoff.UTC()).Scan(&one)
	if err != nil {
		if err == ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check dedup title: %w", err)
	}
	return true, nil
}

// RecordTitle appends a normalized title to the dedup window.
func (p *Pool) RecordTitle(ctx context.Context, titleNorm, source string, seenAt time.Time) error {
	const q = `
INSERT INTO lex.dedup_titles (title_norm, source, seen_at)
VALUES ($1, $2, $3)
`
	if _, err := p.Exec(ctx, q, titleNorm, source, seenAt.UTC()); err != nil {
		return fmt.Errorf("record dedup title: %w", err)
	}
	return nil
}

// CleanupDedupTitles evicts window entries older than cutoff and, when the
// table still exceeds maxRows, the oldest surplus entries. Returns rows removed.
func (p *Pool) CleanupDedupTitles(ctx context.Context, cutoff time.Time, maxRows int) (int64, error) {
	const byAge = `
DELETE FROM lex.dedup_titles
WHERE seen_at < $1
`
	tag, err := p.Exec(ctx, byAge, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup dedup titles by age: %w", err)
	}
	removed := tag.RowsAffected()

	if maxRows > 0 {
		const bySize = `
DELETE FROM lex.dedup_titles
WHERE dedup_title_id IN (
	SELECT dedup_title_id
	FROM lex.dedup_titles
	ORDER BY seen_at DESC, dedup_title_id DESC
	OFFSET $1
)
`
		tag, err = p.Exec(ctx, bySize, maxRows)
		if err != nil {
			return removed, fmt.Errorf("cleanup dedup titles by size: %w", err)
		}
		removed += tag.RowsAffected()
	}

	return removed, nil
}

// RecentTitleEntry seeds the in-memory window from persisted state.
type RecentTitleEntry struct {
	TitleNorm string
	SeenAt    time.Time
}

// RecentTitles returns window entries on or after cutoff, oldest first, so
// replaying them into the in-memory window preserves insertion order.
func (p *Pool) RecentTitles(ctx context.Context, cutoff time.Time, limit int) ([]RecentTitleEntry, error) {
	if limit <= 0 {
		limit = 5000
	}

	const q = `
SELECT title_norm, seen_at
FROM lex.dedup_titles
WHERE seen_at >= $1
ORDER BY seen_at ASC, dedup_title_id ASC
LIMIT $2
`

	rows, err := p.Query(ctx, q, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent dedup titles: %w", err)
	}
	defer rows.Close()

	items := make([]RecentTitleEntry, 0, 256)
	for rows.Next() {
		var row RecentTitleEntry
		if err := rows.Scan(&row.TitleNorm, &row.SeenAt); err != nil {
			return nil, fmt.Errorf("scan dedup title: %w", err)
		}
		items = append(items, row)
	}
	return items, rows.Err()
}
