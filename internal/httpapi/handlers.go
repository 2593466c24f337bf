package httpapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chrbailey/lex-intel/internal/db"
	"github.com/chrbailey/lex-intel/internal/embed"
	"github.com/chrbailey/lex-intel/internal/globaltime"
	"github.com/chrbailey/lex-intel/internal/signals"
)

const (
	defaultSearchLimit = 25
	maxSearchLimit     = 200
)

type healthResponse struct {
	Status   string    `json:"status"`
	Database string    `json:"database"`
	Time     time.Time `json:"time"`
}

type statsResponse struct {
	Articles       map[string]int64     `json:"articles"`
	QueueDepths    map[string]int64     `json:"queue_depths"`
	LatestScrape   *db.ScrapeRunSummary `json:"latest_scrape,omitempty"`
	LatestBriefing *briefingSummary     `json:"latest_briefing,omitempty"`
}

type briefingSummary struct {
	BriefingUUID string    `json:"briefing_uuid"`
	ArticleCount int       `json:"article_count"`
	ModelUsed    string    `json:"model_used"`
	CreatedAt    time.Time `json:"created_at"`
}

type searchHit struct {
	ArticleID   int64      `json:"article_id"`
	Source      string     `json:"source"`
	Title       string     `json:"title"`
	Category    *string    `json:"category,omitempty"`
	Relevance   *int       `json:"relevance,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Similarity  *float64   `json:"similarity,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	dbStatus := "ok"
	if err := s.pool.Ping(ctx); err != nil {
		dbStatus = "unreachable"
	}
	resp := healthResponse{Status: "ok", Database: dbStatus, Time: globaltime.UTC()}
	if dbStatus != "ok" {
		resp.Status = "degraded"
		return successWithStatus(c, http.StatusServiceUnavailable, resp)
	}
	return success(c, resp)
}

func (s *Server) handleStats(c echo.Context) error {
	ctx := c.Request().Context()

	articles, err := s.pool.ArticleStatusCounts(ctx)
	if err != nil {
		return err
	}
	depths, err := s.pool.QueueDepths(ctx)
	if err != nil {
		return err
	}
	latestScrape, err := s.pool.LatestScrapeRun(ctx)
	if err != nil {
		return err
	}
	latestBriefing, err := s.pool.LatestBriefing(ctx)
	if err != nil {
		return err
	}

	resp := statsResponse{
		Articles:     articles,
		QueueDepths:  depths,
		LatestScrape: latestScrape,
	}
	if latestBriefing != nil {
		resp.LatestBriefing = &briefingSummary{
			BriefingUUID: latestBriefing.BriefingUUID,
			ArticleCount: latestBriefing.ArticleCount,
			ModelUsed:    latestBriefing.ModelUsed,
			CreatedAt:    latestBriefing.CreatedAt,
		}
	}
	return success(c, resp)
}

// handleSearch filters the analyzed corpus and, when a free-text query is
// present, ranks candidates by embedding similarity.
func (s *Server) handleSearch(c echo.Context) error {
	ctx := c.Request().Context()

	filter := db.ArticleSearchFilter{
		Category:     strings.TrimSpace(c.QueryParam("category")),
		MinRelevance: queryInt(c, "min_relevance", 0),
		SinceDays:    queryInt(c, "days", 30),
		Limit:        maxSearchLimit,
	}
	limit := queryInt(c, "limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	candidates, err := s.pool.SearchCandidates(ctx, filter)
	if err != nil {
		return err
	}

	query := strings.TrimSpace(c.QueryParam("q"))
	hits := make([]searchHit, 0, len(candidates))
	if query != "" && s.embedder != nil {
		vectors, embErr := s.embedder.Embed(ctx, []string{query})
		if embErr != nil || len(vectors) != 1 {
			return fail(c, http.StatusServiceUnavailable, "semantic search unavailable", nil)
		}
		hits = rankBySimilarity(candidates, vectors[0])
	} else {
		for _, a := range candidates {
			hits = append(hits, toSearchHit(a, nil))
		}
	}

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return success(c, map[string]any{"articles": hits, "count": len(hits)})
}

func rankBySimilarity(candidates []db.EmbeddedArticle, queryVec []float64) []searchHit {
	hits := make([]searchHit, 0, len(candidates))
	for _, a := range candidates {
		score := embed.Cosine(queryVec, a.Embedding)
		s := score
		hits = append(hits, toSearchHit(a, &s))
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return *hits[i].Similarity > *hits[j].Similarity
	})
	return hits
}

func toSearchHit(a db.EmbeddedArticle, similarity *float64) searchHit {
	return searchHit{
		ArticleID:   a.ArticleID,
		Source:      a.Source,
		Title:       a.Title,
		Category:    a.Category,
		Relevance:   a.Relevance,
		PublishedAt: a.PublishedAt,
		Similarity:  similarity,
	}
}

func (s *Server) handleArticleDetail(c echo.Context) error {
	ctx := c.Request().Context()
	articleUUID := strings.TrimSpace(c.Param("article_uuid"))
	if articleUUID == "" {
		return fail(c, http.StatusBadRequest, "article_uuid is required", nil)
	}

	article, err := s.pool.ArticleByUUID(ctx, articleUUID)
	if err != nil {
		return err
	}
	if article == nil {
		return failNotFound(c, "article not found")
	}
	return success(c, article)
}

func (s *Server) handleLatestBriefing(c echo.Context) error {
	briefing, err := s.pool.LatestBriefing(c.Request().Context())
	if err != nil {
		return err
	}
	if briefing == nil {
		return failNotFound(c, "no briefing yet")
	}
	return success(c, briefing)
}

func (s *Server) handleBriefingForDay(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("date"))
	if raw == "" {
		return fail(c, http.StatusBadRequest, "date query parameter is required (YYYY-MM-DD)", nil)
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD", nil)
	}

	briefing, err := s.pool.BriefingForDay(c.Request().Context(), day)
	if err != nil {
		return err
	}
	if briefing == nil {
		return failNotFound(c, "no briefing for that day")
	}
	return success(c, briefing)
}

func (s *Server) handleSignals(c echo.Context) error {
	if s.signals == nil {
		return fail(c, http.StatusServiceUnavailable, "signal detection not configured", nil)
	}
	days := queryInt(c, "days", 0)
	minRelevance := queryInt(c, "min_relevance", 0)
	report, err := s.signals.Detect(c.Request().Context(), days, minRelevance)
	if err != nil {
		return err
	}
	return success(c, report)
}

// handleTrending returns category momentum on its own, without the cluster
// pass the full signals report runs.
func (s *Server) handleTrending(c echo.Context) error {
	ctx := c.Request().Context()
	days := queryInt(c, "days", 7)
	if days <= 0 {
		days = 7
	}

	now := globaltime.UTC()
	windowStart := now.AddDate(0, 0, -days)
	priorStart := now.AddDate(0, 0, -2*days)

	current, err := s.pool.CategoryCounts(ctx, windowStart, now)
	if err != nil {
		return err
	}
	prior, err := s.pool.CategoryCounts(ctx, priorStart, windowStart)
	if err != nil {
		return err
	}
	return success(c, map[string]any{
		"window_days": days,
		"momentum":    signals.ComputeMomentum(current, prior),
	})
}

func (s *Server) handleSources(c echo.Context) error {
	days := queryInt(c, "days", 30)
	if days <= 0 {
		days = 30
	}
	cutoff := globaltime.UTC().AddDate(0, 0, -days)

	health, err := s.pool.SourceHealthSince(c.Request().Context(), cutoff)
	if err != nil {
		return err
	}
	return success(c, map[string]any{"window_days": days, "sources": health})
}

func (s *Server) handleRunScrape(c echo.Context) error {
	if s.triggers.Scrape == nil {
		return fail(c, http.StatusServiceUnavailable, "scrape trigger not configured", nil)
	}
	result, err := s.triggers.Scrape(c.Request().Context())
	if err != nil {
		return err
	}
	return successWithStatus(c, http.StatusAccepted, result)
}

func (s *Server) handleRunAnalyze(c echo.Context) error {
	if s.triggers.Analyze == nil {
		return fail(c, http.StatusServiceUnavailable, "analyze trigger not configured", nil)
	}
	result, err := s.triggers.Analyze(c.Request().Context())
	if err != nil {
		return err
	}
	return successWithStatus(c, http.StatusAccepted, result)
}

func (s *Server) handleRunPublish(c echo.Context) error {
	if s.triggers.Publish == nil {
		return fail(c, http.StatusServiceUnavailable, "publish trigger not configured", nil)
	}
	result, err := s.triggers.Publish(c.Request().Context(), strings.TrimSpace(c.QueryParam("platform")))
	if err != nil {
		return err
	}
	return successWithStatus(c, http.StatusAccepted, result)
}

func (s *Server) handleRunCycle(c echo.Context) error {
	if s.triggers.Cycle == nil {
		return fail(c, http.StatusServiceUnavailable, "cycle trigger not configured", nil)
	}
	result, err := s.triggers.Cycle(c.Request().Context())
	if err != nil {
		return err
	}
	return successWithStatus(c, http.StatusAccepted, result)
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
