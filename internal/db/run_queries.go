package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StartScrapeRun creates a running scrape_runs row and returns its id.
func (p *Pool) StartScrapeRun(ctx context.Context, mode string, startedAt time.Time) (int64, error) {
	const q = `
INSERT INTO lex.scrape_runs (run_uuid, mode, started_at)
VALUES ($1, $2, $3)
RETURNING run_id
`

	var id int64
	if err := p.QueryRow(ctx, q, uuid.NewString(), mode, startedAt.UTC()).Scan(&id); err != nil {
		return 0, fmt.Errorf("start scrape run: %w", err)
	}
	return id, nil
}

// FinishScrapeRun records the outcome of a scrape run. Per-source failures
// land in sources_failed; they never fail the run itself.
func (p *Pool) FinishScrapeRun(ctx context.Context, runID int64, found, inserted int, sourcesOK, sourcesFailed []string, errMsg *string, finishedAt time.Time) error {
	okJSON, err := json.Marshal(emptyIfNil(sourcesOK))
	if err != nil {
		return fmt.Errorf("marshal sources_ok: %w", err)
	}
	failedJSON, err := json.Marshal(emptyIfNil(sourcesFailed))
	if err != nil {
		return fmt.Errorf("marshal sources_failed: %w", err)
	}

	const q = `
UPDATE lex.scrape_runs
SET finished_at = $2,
    articles_found = $3,
    articles_new = $4,
    sources_ok = $5::jsonb,
    sources_failed = $6::jsonb,
    error_message = $7
WHERE run_id = $1
`

	if _, err := p.Exec(ctx, q, runID, finishedAt.UTC(), found, inserted, string(okJSON), string(failedJSON), errMsg); err != nil {
		return fmt.Errorf("finish scrape run %d: %w", runID, err)
	}
	return nil
}

// ScrapeRunSummary is the operator-facing run read model.
type ScrapeRunSummary struct {
	RunID         int64      `json:"run_id"`
	RunUUID       string     `json:"run_uuid"`
	Mode          string     `json:"mode"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	ArticlesFound int        `json:"articles_found"`
	ArticlesNew   int        `json:"articles_new"`
	SourcesOK     []string   `json:"sources_ok"`
	SourcesFailed []string   `json:"sources_failed"`
	ErrorMessage  *string    `json:"error,omitempty"`
}

// LatestScrapeRun returns the most recent run, or nil when none exists.
func (p *Pool) LatestScrapeRun(ctx context.Context) (*ScrapeRunSummary, error) {
	const q = `
SELECT run_id, run_uuid::text, mode, started_at, finished_at,
       articles_found, articles_new, sources_ok, sources_failed, error_message
FROM lex.scrape_runs
ORDER BY started_at DESC, run_id DESC
LIMIT 1
`

	var row ScrapeRunSummary
	var okJSON, failedJSON []byte
	err := p.QueryRow(ctx, q).Scan(
		&row.RunID,
		&row.RunUUID,
		&row.Mode,
		&row.StartedAt,
		&row.FinishedAt,
		&row.ArticlesFound,
		&row.ArticlesNew,
		&okJSON,
		&failedJSON,
		&row.ErrorMessage,
	)
	if err != nil {
		if err == ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest scrape run: %w", err)
	}

	if len(okJSON) > 0 {
		_ = json.Unmarshal(okJSON, &row.SourcesOK)
	}
	if len(failedJSON) > 0 {
		_ = json.Unmarshal(failedJSON, &row.SourcesFailed)
	}
	return &row, nil
}

// StartAnalysisRun creates a running analysis_runs row.
func (p *Pool) StartAnalysisRun(ctx context.Context, model string, startedAt time.Time) (int64, error) {
	const q = `
INSERT INTO lex.analysis_runs (run_uuid, model, started_at, status)
VALUES ($1, $2, $3, 'running')
RETURNING analysis_run_id
`

	var id int64
	if err := p.QueryRow(ctx, q, uuid.NewString(), model, startedAt.UTC()).Scan(&id); err != nil {
		return 0, fmt.Errorf("start analysis run: %w", err)
	}
	return id, nil
}

// FinishAnalysisRun seals an analysis run. A finished run is never updated
// again.
func (p *Pool) FinishAnalysisRun(ctx context.Context, runID int64, articleCount int, briefingID *int64, status string, errMsg *string, finishedAt time.Time) error {
	const q = `
UPDATE lex.analysis_runs
SET finished_at = $2,
    article_count = $3,
    briefing_id = $4,
    status = $5,
    error_message = $6
WHERE analysis_run_id = $1
  AND finished_at IS NULL
`

	tag, err := p.Exec(ctx, q, runID, finishedAt.UTC(), articleCount, briefingID, status, errMsg)
	if err != nil {
		return fmt.Errorf("finish analysis run %d: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("analysis run %d already finished", runID)
	}
	return nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
