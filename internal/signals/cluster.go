// Package signals finds cross-source story clusters and category momentum
// in the analyzed article corpus.
package signals

import (
	"sort"
	"strings"

	"github.com/chrbailey/lex-intel/internal/db"
	"github.com/chrbailey/lex-intel/internal/embed"
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceSingle = "single-source"

	// DefaultSimilarity is the centroid cosine a candidate must reach to
	// join an existing cluster.
	DefaultSimilarity = 0.70

	// jaccardThreshold is the keyword-overlap fallback used when either
	// side lacks an embedding.
	jaccardThreshold = 0.30
)

// Member is one article inside a cluster.
type Member struct {
	ArticleID    int64   `json:"article_id"`
	ArticleUUID  string  `json:"article_uuid"`
	Source       string  `json:"source"`
	EnglishTitle string  `json:"english_title"`
	Relevance    int     `json:"relevance"`
	Similarity   float64 `json:"similarity"`
}

// Cluster is a group of same-category articles covering one story.
type Cluster struct {
	Category            string   `json:"category"`
	Confidence          string   `json:"confidence"`
	SourceCount         int      `json:"source_count"`
	MaxRelevance        int      `json:"max_relevance"`
	RepresentativeTitle string   `json:"representative_title"`
	Members             []Member `json:"members"`

	centroid embed.Centroid
	keywords map[string]struct{}
	sources  map[string]struct{}
}

// ConfidenceFor maps a distinct source count to a tier. The count is the
// only input; relevance and cluster size never change the tier.
func ConfidenceFor(distinctSources int) string {
	switch {
	case distinctSources >= 3:
		return ConfidenceHigh
	case distinctSources == 2:
		return ConfidenceMedium
	default:
		return ConfidenceSingle
	}
}

// ClusterArticles greedily assigns each article to the first cluster of the
// same category whose centroid is at least similarity away, creating a new
// cluster otherwise. Articles must arrive strongest-first; the pass is
// single and order-dependent on purpose.
func ClusterArticles(articles []db.SignalArticle, similarity float64) []*Cluster {
	if similarity <= 0 {
		similarity = DefaultSimilarity
	}

	var clusters []*Cluster
	for _, article := range articles {
		target := bestCluster(clusters, article, similarity)
		if target == nil {
			target = &Cluster{
				Category: article.Category,
				keywords: map[string]struct{}{},
				sources:  map[string]struct{}{},
			}
			clusters = append(clusters, target)
		}
		addMember(target, article)
	}

	for _, c := range clusters {
		c.SourceCount = len(c.sources)
		c.Confidence = ConfidenceFor(c.SourceCount)
		if len(c.Members) > 0 {
			c.RepresentativeTitle = c.Members[0].EnglishTitle
		}
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if ri, rj := tierRank(clusters[i].Confidence), tierRank(clusters[j].Confidence); ri != rj {
			return ri < rj
		}
		return len(clusters[i].Members) > len(clusters[j].Members)
	})
	return clusters
}

func bestCluster(clusters []*Cluster, article db.SignalArticle, similarity float64) *Cluster {
	var best *Cluster
	bestScore := 0.0
	kw := titleKeywords(article.EnglishTitle)

	for _, c := range clusters {
		if c.Category != article.Category {
			continue
		}
		if len(article.Embedding) > 0 && c.centroid.Count() > 0 {
			if score := embed.Cosine(article.Embedding, c.centroid.Mean()); score >= similarity && score > bestScore {
				best, bestScore = c, score
			}
			continue
		}
		if score := jaccard(kw, c.keywords); score >= jaccardThreshold && score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

func addMember(c *Cluster, article db.SignalArticle) {
	similarity := 1.0
	if len(article.Embedding) > 0 && c.centroid.Count() > 0 {
		similarity = embed.Cosine(article.Embedding, c.centroid.Mean())
	}
	c.Members = append(c.Members, Member{
		ArticleID:    article.ArticleID,
		ArticleUUID:  article.ArticleUUID,
		Source:       article.Source,
		EnglishTitle: article.EnglishTitle,
		Relevance:    article.Relevance,
		Similarity:   similarity,
	})
	if article.Relevance > c.MaxRelevance {
		c.MaxRelevance = article.Relevance
	}
	if len(article.Embedding) > 0 {
		c.centroid.Add(article.Embedding)
	}
	for word := range titleKeywords(article.EnglishTitle) {
		c.keywords[word] = struct{}{}
	}
	c.sources[article.Source] = struct{}{}
}

func tierRank(confidence string) int {
	switch confidence {
	case ConfidenceHigh:
		return 0
	case ConfidenceMedium:
		return 1
	default:
		return 2
	}
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "in": {},
	"on": {}, "for": {}, "to": {}, "with": {}, "at": {}, "by": {}, "its": {},
	"is": {}, "as": {}, "new": {}, "from": {}, "after": {}, "over": {},
}

func titleKeywords(title string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, word := range strings.Fields(strings.ToLower(title)) {
		word = strings.Trim(word, ".,:;!?\"'()[]")
		if len(word) < 3 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		words[word] = struct{}{}
	}
	return words
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for word := range a {
		if _, ok := b[word]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
