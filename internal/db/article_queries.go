package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/chrbailey/lex-intel/internal/globaltime"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// NewArticle carries the fields the ingestion path supplies for a fresh row.
type NewArticle struct {
	Source           string
	SourceID         string
	Title            string
	TitleNorm        string
	URL              *string
	Body             string
	Language         string
	PublishedAt      *time.Time
	ScrapedAt        time.Time
	SemanticVerified bool
	Embedding        json.RawMessage
	ScrapeRunID      *int64
}

// InsertArticle persists a deduplicated article with status pending.
// Returns the new article id and false when the (source, source_id) pair
// already exists.
func (p *Pool) InsertArticle(ctx context.Context, a NewArticle) (int64, bool, error) {
	const q = `
INSERT INTO lex.articles (
	article_uuid, source, source_id, title, title_norm, url, body, language,
	published_at, scraped_at, status, semantic_verified, embedding, scrape_run_id,
	created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'pending', $11, $12, $13, $10, $10)
ON CONFLICT (source, source_id) DO NOTHING
RETURNING article_id
`

	var embedding any
	if len(a.Embedding) > 0 {
		embedding = string(a.Embedding)
	}

	var id int64
	err := p.QueryRow(ctx, q,
		uuid.NewString(),
		a.Source,
		a.SourceID,
		a.Title,
		a.TitleNorm,
		a.URL,
		a.Body,
		a.Language,
		a.PublishedAt,
		a.ScrapedAt.UTC(),
		a.SemanticVerified,
		embedding,
		a.ScrapeRunID,
	).Scan(&id)
	if err != nil {
		if err == ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("insert article source=%s source_id=%s: %w", a.Source, a.SourceID, err)
	}
	return id, true, nil
}

// PendingArticle is the stage-1 input read model.
type PendingArticle struct {
	ArticleID   int64
	ArticleUUID string
	Source      string
	Title       string
	Body        string
	Language    string
	URL         *string
	PublishedAt *time.Time
	ScrapedAt   time.Time
}

// PendingArticles returns articles awaiting stage-1 analysis, oldest first.
func (p *Pool) PendingArticles(ctx context.Context, limit int) ([]PendingArticle, error) {
	if limit <= 0 {
		limit = 500
	}

	const q = `
SELECT a.article_id, a.article_uuid::text, a.source, a.title, a.body,
       a.language, a.url, a.published_at, a.scraped_at
FROM lex.articles a
WHERE a.status = 'pending'
ORDER BY a.scraped_at ASC, a.article_id ASC
LIMIT $1
`

	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending articles: %w", err)
	}
	defer rows.Close()

	items := make([]PendingArticle, 0, limit)
	for rows.Next() {
		var row PendingArticle
		if err := rows.Scan(
			&row.ArticleID,
			&row.ArticleUUID,
			&row.Source,
			&row.Title,
			&row.Body,
			&row.Language,
			&row.URL,
			&row.PublishedAt,
			&row.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pending article: %w", err)
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

// UpdateArticleEnrichment applies validated stage-1 output and moves the
// article to analyzed. The pending guard keeps the transition monotonic.
func (p *Pool) UpdateArticleEnrichment(ctx context.Context, articleID int64, englishTitle, category string, relevance int) error {
	if relevance < 1 || relevance > 5 {
		return fmt.Errorf("relevance out of range: %d", relevance)
	}

	const q = `
UPDATE lex.articles
SET english_title = $2,
    category = $3,
    relevance = $4,
    status = 'analyzed',
    updated_at = now()
WHERE article_id = $1
  AND status = 'pending'
`

	tag, err := p.Exec(ctx, q, articleID, englishTitle, category, relevance)
	if err != nil {
		return fmt.Errorf("update article enrichment article_id=%d: %w", articleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article_id=%d not pending, enrichment not applied", articleID)
	}
	return nil
}

// MarkArticlesStatus advances article statuses. Regressions (including any
// move away from archived) are silently skipped, keeping transitions monotonic.
func (p *Pool) MarkArticlesStatus(ctx context.Context, articleIDs []int64, status string) error {
	if len(articleIDs) == 0 {
		return nil
	}
	rank, ok := articleStatusRank[status]
	if !ok {
		return fmt.Errorf("unknown article status %q", status)
	}

	const q = `
UPDATE lex.articles
SET status = $2, updated_at = now()
WHERE article_id = ANY($1)
  AND CASE status
      WHEN 'pending' THEN 1
      WHEN 'analyzed' THEN 2
      WHEN 'published' THEN 3
      WHEN 'archived' THEN 4
      ELSE 0
      END < $3
`

	if _, err := p.Exec(ctx, q, int64Array(articleIDs), status, rank); err != nil {
		return fmt.Errorf("mark %d articles %s: %w", len(articleIDs), status, err)
	}
	return nil
}

var articleStatusRank = map[string]int{
	ArticleStatusPending:   1,
	ArticleStatusAnalyzed:  2,
	ArticleStatusPublished: 3,
	ArticleStatusArchived:  4,
}

// EmbeddedArticle is a corpus row carrying its embedding vector.
type EmbeddedArticle struct {
	ArticleID   int64
	Source      string
	Title       string
	TitleNorm   string
	Category    *string
	Relevance   *int
	PublishedAt *time.Time
	Embedding   []float64
}

// RecentEmbeddedArticles returns the bounded recent corpus used as the
// semantic-dedup comparison set, newest first.
func (p *Pool) RecentEmbeddedArticles(ctx context.Context, cutoff time.Time, limit int) ([]EmbeddedArticle, error) {
	if limit <= 0 {
		limit = 500
	}

	const q = `
SELECT a.article_id, a.source, a.title, a.title_norm, a.category, a.relevance,
       a.published_at, a.embedding
FROM lex.articles a
WHERE a.scraped_at >= $1
  AND a.embedding IS NOT NULL
ORDER BY a.scraped_at DESC, a.article_id DESC
LIMIT $2
`

	rows, err := p.Query(ctx, q, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query embedded articles: %w", err)
	}
	defer rows.Close()

	return scanEmbeddedArticles(rows)
}

// SignalArticle is the clusterer's read model.
type SignalArticle struct {
	ArticleID    int64
	ArticleUUID  string
	Source       string
	EnglishTitle string
	Category     string
	Relevance    int
	PublishedAt  *time.Time
	Embedding    []float64
}

// SignalArticles returns analyzed in-window articles at or above the
// relevance threshold, strongest first.
func (p *Pool) SignalArticles(ctx context.Context, cutoff time.Time, minRelevance, limit int) ([]SignalArticle, error) {
	if limit <= 0 {
		limit = 200
	}

	const q = `
SELECT a.article_id, a.article_uuid::text, a.source,
       COALESCE(a.english_title, a.title), COALESCE(a.category, 'other'),
       COALESCE(a.relevance, 1), a.published_at, a.embedding
FROM lex.articles a
WHERE a.scraped_at >= $1
  AND a.relevance >= $2
  AND a.status <> 'pending'
ORDER BY a.relevance DESC, a.scraped_at DESC
LIMIT $3
`

	rows, err := p.Query(ctx, q, cutoff.UTC(), minRelevance, limit)
	if err != nil {
		return nil, fmt.Errorf("query signal articles: %w", err)
	}
	defer rows.Close()

	items := make([]SignalArticle, 0, limit)
	for rows.Next() {
		var row SignalArticle
		var embedding []byte
		if err := rows.Scan(
			&row.ArticleID,
			&row.ArticleUUID,
			&row.Source,
			&row.EnglishTitle,
			&row.Category,
			&row.Relevance,
			&row.PublishedAt,
			&embedding,
		); err != nil {
			return nil, fmt.Errorf("scan signal article: %w", err)
		}
		if len(embedding) > 0 {
			if err := json.Unmarshal(embedding, &row.Embedding); err != nil {
				row.Embedding = nil
			}
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

// CategoryCounts counts articles per category scraped in [from, to).
func (p *Pool) CategoryCounts(ctx context.Context, from, to time.Time) (map[string]int, error) {
	const q = `
SELECT COALESCE(a.category, 'other'), COUNT(*)::int
FROM lex.articles a
WHERE a.scraped_at >= $1
  AND a.scraped_at < $2
  AND a.status <> 'pending'
GROUP BY 1
`

	rows, err := p.Query(ctx, q, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query category counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		counts[category] = count
	}
	return counts, rows.Err()
}

// ArticleStatusCounts counts articles per lifecycle status.
func (p *Pool) ArticleStatusCounts(ctx context.Context) (map[string]int64, error) {
	const q = `
SELECT status, COUNT(*)::bigint
FROM lex.articles
GROUP BY status
`

	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query article status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan article status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// SourceHealth aggregates per-source volume and high-relevance share.
type SourceHealth struct {
	Source        string `json:"source"`
	ArticleCount  int64  `json:"article_count"`
	HighRelevance int64  `json:"high_relevance_count"`
}

// SourceHealthSince aggregates article volume per source since cutoff.
func (p *Pool) SourceHealthSince(ctx context.Context, cutoff time.Time) ([]SourceHealth, error) {
	const q = `
SELECT a.source, COUNT(*)::bigint,
       COUNT(*) FILTER (WHERE a.relevance >= 4)::bigint
FROM lex.articles a
WHERE a.scraped_at >= $1
GROUP BY a.source
ORDER BY 2 DESC
`

	rows, err := p.Query(ctx, q, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query source health: %w", err)
	}
	defer rows.Close()

	items := make([]SourceHealth, 0, 16)
	for rows.Next() {
		var row SourceHealth
		if err := rows.Scan(&row.Source, &row.ArticleCount, &row.HighRelevance); err != nil {
			return nil, fmt.Errorf("scan source health: %w", err)
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

// ArticleSearchFilter narrows the semantic search candidate set.
type ArticleSearchFilter struct {
	Category     string
	MinRelevance int
	SinceDays    int
	Limit        int
}

// SearchCandidates returns embedded articles matching the filter. Similarity
// ranking against the query vector happens in the caller.
func (p *Pool) SearchCandidates(ctx context.Context, filter ArticleSearchFilter) ([]EmbeddedArticle, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}

	builder := psql.
		Select(
			"a.article_id", "a.source",
			"COALESCE(a.english_title, a.title)", "a.title_norm",
			"a.category", "a.relevance", "a.published_at", "a.embedding",
		).
		From("lex.articles a").
		Where("a.embedding IS NOT NULL").
		OrderBy("a.scraped_at DESC", "a.article_id DESC").
		Limit(uint64(limit))

	if filter.Category != "" {
		builder = builder.Where(sq.Eq{"a.category": filter.Category})
	}
	if filter.MinRelevance > 1 {
		builder = builder.Where(sq.GtOrEq{"a.relevance": filter.MinRelevance})
	}
	if filter.SinceDays > 0 {
		cutoff := globaltime.UTC().AddDate(0, 0, -filter.SinceDays)
		builder = builder.Where(sq.GtOrEq{"a.scraped_at": cutoff})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	rows, err := p.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query search candidates: %w", err)
	}
	defer rows.Close()

	return scanEmbeddedArticles(rows)
}

// ArticleDetail is the full single-article read model.
type ArticleDetail struct {
	ArticleID    int64      `json:"article_id"`
	ArticleUUID  string     `json:"article_uuid"`
	Source       string     `json:"source"`
	Title        string     `json:"title"`
	EnglishTitle *string    `json:"english_title,omitempty"`
	URL          *string    `json:"url,omitempty"`
	Body         string     `json:"body"`
	Language     string     `json:"language"`
	Category     *string    `json:"category,omitempty"`
	Relevance    *int       `json:"relevance,omitempty"`
	Status       string     `json:"status"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	ScrapedAt    time.Time  `json:"scraped_at"`
}

// ArticleByUUID loads one article by its public UUID.
func (p *Pool) ArticleByUUID(ctx context.Context, articleUUID string) (*ArticleDetail, error) {
	const q = `
SELECT a.article_id, a.article_uuid::text, a.source, a.title, a.english_title,
       a.url, a.body, a.language, a.category, a.relevance, a.status,
       a.published_at, a.scraped_at
FROM lex.articles a
WHERE a.article_uuid = $1::uuid
`

	var row ArticleDetail
	err := p.QueryRow(ctx, q, articleUUID).Scan(
		&row.ArticleID,
		&row.ArticleUUID,
		&row.Source,
		&row.Title,
		&row.EnglishTitle,
		&row.URL,
		&row.Body,
		&row.Language,
		&row.Category,
		&row.Relevance,
		&row.Status,
		&row.PublishedAt,
		&row.ScrapedAt,
	)
	if err != nil {
		if err == ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query article %s: %w", articleUUID, err)
	}
	return &row, nil
}

func scanEmbeddedArticles(rows *Rows) ([]EmbeddedArticle, error) {
	items := make([]EmbeddedArticle, 0, 64)
	for rows.Next() {
		var row EmbeddedArticle
		var embedding []byte
		if err := rows.Scan(
			&row.ArticleID,
			&row.Source,
			&row.Title,
			&row.TitleNorm,
			&row.Category,
			&row.Relevance,
			&row.PublishedAt,
			&embedding,
		); err != nil {
			return nil, fmt.Errorf("scan embedded article: %w", err)
		}
		if len(embedding) > 0 {
			if err := json.Unmarshal(embedding, &row.Embedding); err != nil {
				row.Embedding = nil
			}
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

// int64Array renders a Postgres bigint array literal accepted by ANY($1).
func int64Array(ids []int64) string {
	out := "{"
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", id)
	}
	return out + "}"
}
