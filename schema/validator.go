// Package schema validates the structural shape of LLM stage outputs.
// Only conformance is checked here; semantic checks (index ranges, article
// references) belong to the analyzer.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed stage1.schema.json
var stage1SchemaJSON string

//go:embed stage2.schema.json
var stage2SchemaJSON string

// Categories is the closed category enumeration. Anything outside it is
// rejected at the validation boundary rather than stored as a free-form string.
var Categories = []string{
	"funding", "m_and_a", "investment", "product", "regulation",
	"breakthrough", "research", "open_source", "partnership", "adoption",
	"personnel", "market", "other",
}

// ValidCategory reports whether category is a member of the closed set.
func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Stage1Item is one classification result.
type Stage1Item struct {
	Index        int    `json:"index"`
	EnglishTitle string `json:"english_title"`
	Category     string `json:"category"`
	Relevance    int    `json:"relevance"`
}

// Stage2Draft is one platform-agnostic post draft.
type Stage2Draft struct {
	ArticleID int64  `json:"article_id"`
	Urgency   string `json:"urgency"`
	Title     string `json:"title,omitempty"`
	LongForm  string `json:"long_form"`
	ShortForm string `json:"short_form"`
}

// Stage2Result is the synthesized briefing plus its draft posts.
type Stage2Result struct {
	Briefing string        `json:"briefing"`
	Drafts   []Stage2Draft `json:"drafts"`
}

var (
	compileOnce sync.Once
	stage1      *jsonschema.Schema
	stage2      *jsonschema.Schema
	compileErr  error
)

func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	add := func(name, body string) *jsonschema.Schema {
		if compileErr != nil {
			return nil
		}
		if err := compiler.AddResource(name, strings.NewReader(body)); err != nil {
			compileErr = fmt.Errorf("add schema resource %s: %w", name, err)
			return nil
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			compileErr = fmt.Errorf("compile schema %s: %w", name, err)
			return nil
		}
		return schema
	}

	stage1 = add("stage1.schema.json", stage1SchemaJSON)
	stage2 = add("stage2.schema.json", stage2SchemaJSON)
}

// ValidateStage1Output checks a stage-1 LLM response against the schema and
// decodes it. Malformed payloads are rejected wholesale; per-item semantic
// validation happens downstream so one bad element does not sink the batch.
func ValidateStage1Output(payload json.RawMessage) ([]Stage1Item, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode stage 1 JSON: %w", err)
	}

	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return nil, compileErr
	}

	if err := stage1.Validate(value); err != nil {
		return nil, fmt.Errorf("stage 1 schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize stage 1 JSON: %w", err)
	}

	var items []Stage1Item
	if err := json.Unmarshal(normalized, &items); err != nil {
		return nil, fmt.Errorf("unmarshal stage 1 items: %w", err)
	}
	return items, nil
}

// ValidateStage2Output checks a stage-2 LLM response against the schema and
// decodes it. The briefing must be non-empty and every draft must carry a
// valid urgency; article references are verified by the caller against the
// store.
func ValidateStage2Output(payload json.RawMessage) (*Stage2Result, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode stage 2 JSON: %w", err)
	}

	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return nil, compileErr
	}

	if err := stage2.Validate(value); err != nil {
		return nil, fmt.Errorf("stage 2 schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize stage 2 JSON: %w", err)
	}

	var result Stage2Result
	if err := json.Unmarshal(normalized, &result); err != nil {
		return nil, fmt.Errorf("unmarshal stage 2 result: %w", err)
	}

	if strings.TrimSpace(result.Briefing) == "" {
		return nil, fmt.Errorf("stage 2 briefing is empty")
	}
	return &result, nil
}

func decodeStrictJSON(payload json.RawMessage) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := ensureSingleDocument(decoder); err != nil {
		return nil, err
	}
	return value, nil
}

func ensureSingleDocument(decoder *json.Decoder) error {
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("payload contains trailing data")
	}
	return nil
}
