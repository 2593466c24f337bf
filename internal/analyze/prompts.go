package analyze

import (
	"fmt"
	"strings"

	"github.com/chrbailey/lex-intel/internal/db"
)

func stage1Prompt(batch []db.PendingArticle) string {
	var items strings.Builder
	for i, article := range batch {
		title := truncate(article.Title, 200)
		summary := truncate(article.Body, 300)
		fmt.Fprintf(&items, "[%d] SOURCE: %s | TITLE: %s | SUMMARY: %s\n", i, article.Source, title, summary)
	}

	return fmt.Sprintf(`You are a China tech intelligence analyst. For each article below:
1. Translate the title to English (if already English, keep as-is)
2. Categorize: funding, m_and_a, investment, product, regulation, breakthrough, research, open_source, partnership, adoption, personnel, market, other
3. Score relevance 1-5 for enterprise-tech/AI (5 = critical, 1 = irrelevant)

Return a JSON array. Each element: {"index": N, "english_title": "...", "category": "...", "relevance": N}

ARTICLES:
%s
Respond with valid JSON array only.`, items.String())
}

func stage2Prompt(relevant []EnrichedArticle, historicalContext string) string {
	byCategory := make(map[string][]EnrichedArticle)
	order := make([]string, 0, 8)
	for _, article := range relevant {
		if _, seen := byCategory[article.Category]; !seen {
			order = append(order, article.Category)
		}
		byCategory[article.Category] = append(byCategory[article.Category], article)
	}

	var items strings.Builder
	for _, category := range order {
		fmt.Fprintf(&items, "\n## %s\n", category)
		for _, article := range byCategory[category] {
			fmt.Fprintf(&items, "- (article_id=%d, relevance=%d, source=%s) %s\n",
				article.ArticleID, article.Relevance, article.Source, truncate(article.EnglishTitle, 200))
			if article.Body != "" {
				fmt.Fprintf(&items, "  %s\n", truncate(article.Body, 300))
			}
		}
	}

	context := ""
	if strings.TrimSpace(historicalContext) != "" {
		context = "\n" + historicalContext + "\n"
	}

	return fmt.Sprintf(`You are a China tech intelligence analyst writing a Bloomberg-style morning briefing.

Analyze today's articles for cross-source patterns. Write a briefing with exactly five sections:
LEAD (the single biggest story) -> PATTERNS (cross-source themes) -> SIGNALS (emerging weak signals) -> WATCHLIST (entities to track) -> DATA (countable facts and key numbers)

Then produce 3-5 draft posts from the strongest stories. Each draft must reference a real article_id from the input, carry an urgency (high, medium, low), and contain a long_form (article-length markdown) and a short_form (social post length) variant.
%s
TODAY'S ARTICLES:
%s

Return JSON: {"briefing": "markdown text...", "drafts": [{"article_id": N, "urgency": "...", "title": "...", "long_form": "...", "short_form": "..."}]}

Respond with valid JSON only.`, context, items.String())
}

// extractLead pulls the LEAD paragraph from a briefing for use as the
// fallback body of queued posts.
func extractLead(briefing string) string {
	for _, section := range strings.Split(briefing, "\n\n") {
		section = strings.TrimSpace(section)
		if section != "" && !strings.HasPrefix(section, "#") {
			return truncate(section, 500)
		}
	}
	return truncate(strings.TrimSpace(briefing), 500)
}

func truncate(s string, limit int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit])
}
