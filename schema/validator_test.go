package schema

import (
	"encoding/json"
	"testing"
)

func TestValidateStage1Output(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`[
		{"index": 0, "english_title": "Alibaba launches new model", "category": "product", "relevance": 4},
		{"index": 1, "english_title": "Zhipu raises funding", "category": "funding", "relevance": 5}
	]`)
	items, err := ValidateStage1Output(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[1].Category != "funding" || items[1].Relevance != 5 {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
}

func TestValidateStage1RejectsBadShapes(t *testing.T) {
	t.Parallel()

	cases := []string{
		`{"index": 0}`, // object, not array
		`[{"index": 0, "english_title": "x", "category": "blockchain", "relevance": 3}]`, // unknown category
		`[{"index": 0, "english_title": "x", "category": "product", "relevance": 6}]`,    // relevance out of range
		`[{"index": 0, "english_title": "", "category": "product", "relevance": 3}]`,     // empty title
		`[{"index": -1, "english_title": "x", "category": "product", "relevance": 3}]`,   // negative index
		`[] trailing`,   // trailing data
		`not json at all`,
	}
	for _, raw := range cases {
		if _, err := ValidateStage1Output(json.RawMessage(raw)); err == nil {
			t.Fatalf("expected rejection for %s", raw)
		}
	}
}

func TestValidateStage2Output(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{
		"briefing": "# LEAD\nBig story today.",
		"drafts": [
			{"article_id": 12, "urgency": "high", "title": "Big Story", "long_form": "full text", "short_form": "short text"},
			{"article_id": 13, "urgency": "medium", "long_form": "more text", "short_form": "less text"},
			{"article_id": 14, "urgency": "low", "long_form": "background", "short_form": "brief"}
		]
	}`)
	result, err := ValidateStage2Output(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Briefing == "" || len(result.Drafts) != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Drafts[0].ArticleID != 12 || result.Drafts[0].Urgency != "high" {
		t.Fatalf("unexpected draft: %+v", result.Drafts[0])
	}
}

func TestValidateStage2RejectsBadShapes(t *testing.T) {
	t.Parallel()

	okDrafts := `{"article_id": 2, "urgency": "low", "long_form": "a", "short_form": "b"},
		{"article_id": 3, "urgency": "low", "long_form": "a", "short_form": "b"}`

	cases := []string{
		`{"briefing": "", "drafts": []}`,   // empty briefing
		`{"briefing": "  ", "drafts": []}`, // whitespace briefing
		`{"drafts": []}`,                   // briefing missing
		`{"briefing": "x", "drafts": []}`,  // too few drafts
		`{"briefing": "x", "drafts": [` + okDrafts + `]}`, // still too few drafts
		`{"briefing": "x", "drafts": [{"article_id": 1, "urgency": "urgent", "long_form": "a", "short_form": "b"},` + okDrafts + `]}`, // bad urgency
		`{"briefing": "x", "drafts": [{"article_id": 0, "urgency": "low", "long_form": "a", "short_form": "b"},` + okDrafts + `]}`,    // article_id below minimum
		`{"briefing": "x", "drafts": [1, 2, 3, 4, 5, 6]}`, // too many drafts, wrong element type
	}
	for _, raw := range cases {
		if _, err := ValidateStage2Output(json.RawMessage(raw)); err == nil {
			t.Fatalf("expected rejection for %s", raw)
		}
	}
}

func TestValidCategory(t *testing.T) {
	t.Parallel()

	for _, category := range Categories {
		if !ValidCategory(category) {
			t.Fatalf("category %q should be valid", category)
		}
	}
	for _, category := range []string{"", "Funding", "crypto", "m&a"} {
		if ValidCategory(category) {
			t.Fatalf("category %q should be invalid", category)
		}
	}
}
