package signals

import (
	"testing"

	"github.com/chrbailey/lex-intel/internal/db"
)

func TestConfidenceForSourceCounts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		sources int
		want    string
	}{
		{1, ConfidenceSingle},
		{2, ConfidenceMedium},
		{3, ConfidenceHigh},
		{7, ConfidenceHigh},
		{0, ConfidenceSingle},
	}
	for _, tc := range cases {
		if got := ConfidenceFor(tc.sources); got != tc.want {
			t.Fatalf("ConfidenceFor(%d) = %s, want %s", tc.sources, got, tc.want)
		}
	}
}

func signalArticle(id int64, source, title, category string, relevance int, embedding []float64) db.SignalArticle {
	return db.SignalArticle{
		ArticleID:    id,
		Source:       source,
		EnglishTitle: title,
		Category:     category,
		Relevance:    relevance,
		Embedding:    embedding,
	}
}

func TestClusterGroupsSimilarSameCategory(t *testing.T) {
	t.Parallel()

	articles := []db.SignalArticle{
		signalArticle(1, "36kr", "Alibaba raises cloud prices", "market", 5, []float64{1, 0, 0}),
		signalArticle(2, "pandaily", "Alibaba cloud pricing shakeup", "market", 4, []float64{0.98, 0.1, 0}),
		signalArticle(3, "qbitai", "Alibaba cloud price changes", "market", 4, []float64{0.97, 0.12, 0}),
		signalArticle(4, "36kr", "SMIC wins new fab license", "regulation", 5, []float64{0, 1, 0}),
	}

	clusters := ClusterArticles(articles, 0.70)
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}

	// High-confidence cluster sorts first.
	first := clusters[0]
	if first.Confidence != ConfidenceHigh || first.SourceCount != 3 {
		t.Fatalf("expected high confidence from 3 sources, got %s from %d", first.Confidence, first.SourceCount)
	}
	if len(first.Members) != 3 || first.Category != "market" {
		t.Fatalf("unexpected first cluster: %d members, category %s", len(first.Members), first.Category)
	}

	second := clusters[1]
	if second.Confidence != ConfidenceSingle || len(second.Members) != 1 {
		t.Fatalf("expected single-source cluster, got %s with %d members", second.Confidence, len(second.Members))
	}
}

func TestClusterNeverCrossesCategories(t *testing.T) {
	t.Parallel()

	// Identical embeddings but different categories must not merge.
	articles := []db.SignalArticle{
		signalArticle(1, "36kr", "Moonshot AI raises series C", "funding", 5, []float64{1, 0}),
		signalArticle(2, "pandaily", "Moonshot AI raises series C", "investment", 5, []float64{1, 0}),
	}

	clusters := ClusterArticles(articles, 0.70)
	if len(clusters) != 2 {
		t.Fatalf("expected categories kept apart, got %d clusters", len(clusters))
	}
}

func TestClusterDistinctSourcesNotMemberCount(t *testing.T) {
	t.Parallel()

	// Three members from the same source stay single-source.
	articles := []db.SignalArticle{
		signalArticle(1, "36kr", "DeepSeek releases V4", "product", 5, []float64{1, 0}),
		signalArticle(2, "36kr", "DeepSeek V4 release details", "product", 4, []float64{0.99, 0.05}),
		signalArticle(3, "36kr", "DeepSeek V4 benchmarks published", "product", 4, []float64{0.98, 0.08}),
	}

	clusters := ClusterArticles(articles, 0.70)
	if len(clusters) != 1 {
		t.Fatalf("expected one cluster, got %d", len(clusters))
	}
	if clusters[0].Confidence != ConfidenceSingle {
		t.Fatalf("one source must stay single-source regardless of member count, got %s", clusters[0].Confidence)
	}
	if clusters[0].SourceCount != 1 {
		t.Fatalf("expected 1 distinct source, got %d", clusters[0].SourceCount)
	}
}

func TestClusterKeywordFallbackWithoutEmbeddings(t *testing.T) {
	t.Parallel()

	articles := []db.SignalArticle{
		signalArticle(1, "36kr", "Zhipu secures state investment funding round", "funding", 5, nil),
		signalArticle(2, "pandaily", "Zhipu state investment funding confirmed", "funding", 4, nil),
		signalArticle(3, "qbitai", "Unitree humanoid robot ships worldwide", "product", 4, nil),
	}

	clusters := ClusterArticles(articles, 0.70)
	if len(clusters) != 2 {
		t.Fatalf("expected keyword overlap to merge the two funding stories, got %d clusters", len(clusters))
	}
	if clusters[0].SourceCount != 2 || clusters[0].Confidence != ConfidenceMedium {
		t.Fatalf("expected two-source medium cluster first, got %d sources %s", clusters[0].SourceCount, clusters[0].Confidence)
	}
}

func TestJaccardOverlap(t *testing.T) {
	t.Parallel()

	a := titleKeywords("Alibaba cloud price increase")
	b := titleKeywords("Alibaba cloud price decrease")
	if got := jaccard(a, b); got <= 0.5 {
		t.Fatalf("expected strong overlap, got %f", got)
	}
	if got := jaccard(a, titleKeywords("completely unrelated robotics story")); got != 0 {
		t.Fatalf("expected zero overlap, got %f", got)
	}
	if got := jaccard(nil, a); got != 0 {
		t.Fatalf("expected zero for empty set, got %f", got)
	}
}
