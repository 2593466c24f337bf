package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrbailey/lex-intel/internal/db"
)

type fakeAnalyzeStore struct {
	pending     []db.PendingArticle
	enrichments map[int64]string
	briefings   []string
	posts       []db.EnqueuePost
	runStatus   string
	runErr      *string
}

func newFakeAnalyzeStore(pending ...db.PendingArticle) *fakeAnalyzeStore {
	return &fakeAnalyzeStore{pending: pending, enrichments: map[int64]string{}}
}

func (s *fakeAnalyzeStore) PendingArticles(_ context.Context, limit int) ([]db.PendingArticle, error) {
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeAnalyzeStore) UpdateArticleEnrichment(_ context.Context, articleID int64, englishTitle, category string, _ int) error {
	s.enrichments[articleID] = category + ": " + englishTitle
	return nil
}

func (s *fakeAnalyzeStore) RecentEmbeddedArticles(_ context.Context, _ time.Time, _ int) ([]db.EmbeddedArticle, error) {
	return nil, nil
}

func (s *fakeAnalyzeStore) InsertBriefing(_ context.Context, text string, _ int, _ string, _ *int64, _ time.Time) (int64, error) {
	s.briefings = append(s.briefings, text)
	return int64(len(s.briefings)), nil
}

func (s *fakeAnalyzeStore) StartAnalysisRun(_ context.Context, _ string, _ time.Time) (int64, error) {
	return 1, nil
}

func (s *fakeAnalyzeStore) FinishAnalysisRun(_ context.Context, _ int64, _ int, _ *int64, status string, errMsg *string, _ time.Time) error {
	s.runStatus = status
	s.runErr = errMsg
	return nil
}

func (s *fakeAnalyzeStore) EnqueuePost(_ context.Context, post db.EnqueuePost, _ time.Time) (int64, error) {
	s.posts = append(s.posts, post)
	return int64(len(s.posts)), nil
}

// scriptedLLM pops one response per Complete call.
type scriptedLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (c *scriptedLLM) Complete(_ context.Context, _ string) (json.RawMessage, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i >= len(c.responses) {
		return nil, fmt.Errorf("no scripted response for call %d", i)
	}
	return json.RawMessage(c.responses[i]), nil
}

func (c *scriptedLLM) Model() string { return "test-model" }

func pendingArticle(id int64, source, title string) db.PendingArticle {
	return db.PendingArticle{
		ArticleID: id,
		Source:    source,
		Title:     title,
		Body:      "article body",
		Language:  "zh",
	}
}

func stage2OK(articleID int64) string {
	return fmt.Sprintf(`{
		"briefing": "# LEAD\n\nThe biggest story of the day in one paragraph.\n\n# PATTERNS\n\nMore.",
		"drafts": [
			{"article_id": %[1]d, "urgency": "high", "title": "Big Story", "long_form": "long text", "short_form": "short text"},
			{"article_id": %[1]d, "urgency": "medium", "long_form": "long text", "short_form": "short text"},
			{"article_id": %[1]d, "urgency": "low", "long_form": "long text", "short_form": "short text"}
		]
	}`, articleID)
}

func TestRunEnrichesAndSynthesizes(t *testing.T) {
	t.Parallel()

	store := newFakeAnalyzeStore(
		pendingArticle(10, "36kr", "标题一"),
		pendingArticle(11, "pandaily", "Title two"),
	)
	client := &scriptedLLM{responses: []string{
		`[
			{"index": 0, "english_title": "Title one", "category": "funding", "relevance": 5},
			{"index": 1, "english_title": "Title two", "category": "product", "relevance": 2}
		]`,
		stage2OK(10),
	}}
	svc := NewService(store, client, zerolog.Nop(), Options{MinRelevance: 3, MaxRetries: 5})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Analyzed != 2 || result.LeftPending != 0 {
		t.Fatalf("expected both articles analyzed, got %+v", result)
	}
	if result.Relevant != 1 {
		t.Fatalf("only relevance >= 3 goes to stage 2, got %d", result.Relevant)
	}
	if len(store.briefings) != 1 {
		t.Fatalf("expected one briefing, got %d", len(store.briefings))
	}
	if store.runStatus != "completed" {
		t.Fatalf("expected completed run, got %q", store.runStatus)
	}

	// Each draft fans out long-form to devto and hashnode, short-form to
	// linkedin.
	if result.PostsQueued != 9 || len(store.posts) != 9 {
		t.Fatalf("expected 9 queued posts, got %d", len(store.posts))
	}
	platforms := map[string]string{}
	for _, post := range store.posts {
		platforms[post.Platform] = post.Body
		if post.FallbackBody == nil || !strings.Contains(*post.FallbackBody, "biggest story") {
			t.Fatalf("expected briefing lead as fallback body, got %v", post.FallbackBody)
		}
		if post.MaxRetries != 5 {
			t.Fatalf("expected configured max retries on post, got %d", post.MaxRetries)
		}
	}
	if platforms["devto"] != "long text" || platforms["hashnode"] != "long text" {
		t.Fatalf("long-form platforms got wrong body: %v", platforms)
	}
	if platforms["linkedin"] != "short text" {
		t.Fatalf("short-form platform got wrong body: %v", platforms)
	}
}

func TestRunLeavesUnmatchedArticlesPending(t *testing.T) {
	t.Parallel()

	store := newFakeAnalyzeStore(
		pendingArticle(10, "36kr", "Title one"),
		pendingArticle(11, "pandaily", "Title two"),
		pendingArticle(12, "qbitai", "Title three"),
	)
	// Result covers index 0 only; index 5 is out of range, the duplicate
	// index 0 is skipped. Relevance below 3 keeps stage 2 from running.
	client := &scriptedLLM{responses: []string{
		`[
			{"index": 0, "english_title": "Title one", "category": "market", "relevance": 2},
			{"index": 0, "english_title": "Duplicate", "category": "market", "relevance": 2},
			{"index": 5, "english_title": "Out of range", "category": "market", "relevance": 2}
		]`,
	}}
	svc := NewService(store, client, zerolog.Nop(), Options{MinRelevance: 3})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Analyzed != 1 || result.LeftPending != 2 {
		t.Fatalf("expected one enriched and two left pending, got %+v", result)
	}
	if len(store.enrichments) != 1 {
		t.Fatalf("expected one enrichment, got %d", len(store.enrichments))
	}
	if store.runStatus != "completed" {
		t.Fatalf("stage 1-only run should still complete, got %q", store.runStatus)
	}
}

func TestRunStage1FailureKeepsBatchPending(t *testing.T) {
	t.Parallel()

	store := newFakeAnalyzeStore(pendingArticle(10, "36kr", "Title one"))
	client := &scriptedLLM{errs: []error{fmt.Errorf("model unavailable")}}
	svc := NewService(store, client, zerolog.Nop(), Options{})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("batch failure should not error the run: %v", err)
	}
	if result.Analyzed != 0 || result.LeftPending != 1 {
		t.Fatalf("expected everything left pending, got %+v", result)
	}
	if len(store.enrichments) != 0 {
		t.Fatalf("no enrichment expected, got %d", len(store.enrichments))
	}
}

func TestRunStage2RetriesOnceThenFails(t *testing.T) {
	t.Parallel()

	store := newFakeAnalyzeStore(pendingArticle(10, "36kr", "Title one"))
	client := &scriptedLLM{responses: []string{
		`[{"index": 0, "english_title": "Title one", "category": "funding", "relevance": 5}]`,
		`not valid json at all`,
		`still not valid`,
	}}
	svc := NewService(store, client, zerolog.Nop(), Options{})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("stage 2 failure is recorded, not returned: %v", err)
	}
	if !result.Stage2Failed {
		t.Fatalf("expected stage 2 failure flag, got %+v", result)
	}
	if store.runStatus != "failed" || store.runErr == nil {
		t.Fatalf("expected failed run with error message, got %q %v", store.runStatus, store.runErr)
	}
	// Stage 1 results stand.
	if len(store.enrichments) != 1 {
		t.Fatalf("stage 1 enrichment must survive stage 2 failure")
	}
	if len(store.briefings) != 0 || len(store.posts) != 0 {
		t.Fatalf("failed synthesis must not produce briefing or posts")
	}
	if client.calls != 3 {
		t.Fatalf("expected stage 1 plus two stage 2 attempts, got %d calls", client.calls)
	}
}

func TestRunRejectsDraftsWithUnknownArticles(t *testing.T) {
	t.Parallel()

	store := newFakeAnalyzeStore(pendingArticle(10, "36kr", "Title one"))
	client := &scriptedLLM{responses: []string{
		`[{"index": 0, "english_title": "Title one", "category": "funding", "relevance": 5}]`,
		stage2OK(999),
		stage2OK(999),
	}}
	svc := NewService(store, client, zerolog.Nop(), Options{})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Stage2Failed {
		t.Fatalf("fabricated article reference should fail stage 2, got %+v", result)
	}
	if len(store.posts) != 0 {
		t.Fatalf("no posts expected for rejected synthesis")
	}
}

func TestRunNoPendingArticles(t *testing.T) {
	t.Parallel()

	store := newFakeAnalyzeStore()
	client := &scriptedLLM{}
	svc := NewService(store, client, zerolog.Nop(), Options{})

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Analyzed != 0 || client.calls != 0 {
		t.Fatalf("empty backlog should not call the model, got %+v calls %d", result, client.calls)
	}
	if store.runStatus != "completed" {
		t.Fatalf("expected completed run, got %q", store.runStatus)
	}
}

func TestExtractLead(t *testing.T) {
	t.Parallel()

	briefing := "# Morning Briefing\n\nThe lead paragraph with the biggest story.\n\nMore detail below."
	if got := extractLead(briefing); got != "The lead paragraph with the biggest story." {
		t.Fatalf("unexpected lead: %q", got)
	}

	long := strings.Repeat("x", 800)
	if got := extractLead(long); len([]rune(got)) != 500 {
		t.Fatalf("lead should be capped at 500 runes, got %d", len([]rune(got)))
	}

	if got := extractLead(""); got != "" {
		t.Fatalf("empty briefing should give empty lead, got %q", got)
	}
}
