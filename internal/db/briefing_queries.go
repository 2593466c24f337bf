package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertBriefing persists a stage-2 briefing and returns its id.
func (p *Pool) InsertBriefing(ctx context.Context, text string, articleCount int, modelUsed string, scrapeRunID *int64, createdAt time.Time) (int64, error) {
	const q = `
INSERT INTO lex.briefings (briefing_uuid, briefing_text, article_count, model_used, scrape_run_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING briefing_id
`

	var id int64
	err := p.QueryRow(ctx, q, uuid.NewString(), text, articleCount, modelUsed, scrapeRunID, createdAt.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert briefing: %w", err)
	}
	return id, nil
}

// BriefingDetail is the read model for briefing queries.
type BriefingDetail struct {
	BriefingID   int64     `json:"briefing_id"`
	BriefingUUID string    `json:"briefing_uuid"`
	BriefingText string    `json:"briefing_text"`
	ArticleCount int       `json:"article_count"`
	ModelUsed    string    `json:"model_used"`
	CreatedAt    time.Time `json:"created_at"`
}

// LatestBriefing returns the newest briefing, or nil when none exists.
func (p *Pool) LatestBriefing(ctx context.Context) (*BriefingDetail, error) {
	const q = `
SELECT briefing_id, briefing_uuid::text, briefing_text, article_count, model_used, created_at
FROM lex.briefings
ORDER BY created_at DESC, briefing_id DESC
LIMIT 1
`
	return p.scanBriefing(p.QueryRow(ctx, q))
}

// BriefingForDay returns the newest briefing created on the given UTC day.
func (p *Pool) BriefingForDay(ctx context.Context, day time.Time) (*BriefingDetail, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	const q = `
SELECT briefing_id, briefing_uuid::text, briefing_text, article_count, model_used, created_at
FROM lex.briefings
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at DESC, briefing_id DESC
LIMIT 1
`
	return p.scanBriefing(p.QueryRow(ctx, q, start, end))
}

func (p *Pool) scanBriefing(row *Row) (*BriefingDetail, error) {
	var b BriefingDetail
	err := row.Scan(
		&b.BriefingID,
		&b.BriefingUUID,
		&b.BriefingText,
		&b.ArticleCount,
		&b.ModelUsed,
		&b.CreatedAt,
	)
	if err != nil {
		if err == ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan briefing: %w", err)
	}
	return &b, nil
}
