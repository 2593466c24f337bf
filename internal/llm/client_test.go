package llm

import "testing"

func TestExtractJSONPlain(t *testing.T) {
	t.Parallel()

	raw, err := ExtractJSON(`{"briefing": "text", "drafts": []}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `{"briefing": "text", "drafts": []}` {
		t.Fatalf("unexpected extraction: %s", raw)
	}
}

func TestExtractJSONCodeFence(t *testing.T) {
	t.Parallel()

	raw, err := ExtractJSON("```json\n[{\"index\": 0}]\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `[{"index": 0}]` {
		t.Fatalf("unexpected extraction: %s", raw)
	}
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	t.Parallel()

	raw, err := ExtractJSON("Here is the analysis you asked for:\n\n[{\"index\": 1}]\n\nLet me know if you need more.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `[{"index": 1}]` {
		t.Fatalf("unexpected extraction: %s", raw)
	}
}

func TestExtractJSONBracketsInsideStrings(t *testing.T) {
	t.Parallel()

	raw, err := ExtractJSON(`{"title": "Funding [Series B] for {startup}", "note": "quote \" inside"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `{"title": "Funding [Series B] for {startup}", "note": "quote \" inside"}` {
		t.Fatalf("unexpected extraction: %s", raw)
	}
}

func TestExtractJSONFailures(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"   ",
		"no json here at all",
		`{"unterminated": true`,
		`{"bad": }`,
	}
	for _, raw := range cases {
		if _, err := ExtractJSON(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
