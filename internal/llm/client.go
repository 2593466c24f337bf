// Package llm treats the language model as an opaque external call:
// prompt in, structured JSON out, fallible. Only structural conformance of
// responses is validated downstream, never semantic correctness.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEndpoint  = "https://api.anthropic.com/v1/messages"
	defaultMaxTokens = 4096
	apiVersion       = "2023-06-01"
)

// Client is the completion contract the analyzer depends on.
type Client interface {
	Complete(ctx context.Context, prompt string) (json.RawMessage, error)
	Model() string
}

// AnthropicClient implements Client against the Anthropic messages API.
type AnthropicClient struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

func NewAnthropicClient(apiKey, model string, timeout time.Duration) *AnthropicClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AnthropicClient{
		apiKey:   apiKey,
		model:    model,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *AnthropicClient) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one user prompt and returns the JSON document embedded in
// the model's text response.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (json.RawMessage, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("llm client is not initialized")
	}
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	payload, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal messages request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build messages request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call messages API: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	var decoded messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if decoded.Error != nil {
			return nil, fmt.Errorf("messages API %d: %s: %s", resp.StatusCode, decoded.Error.Type, decoded.Error.Message)
		}
		return nil, fmt.Errorf("messages API returned %d", resp.StatusCode)
	}
	if len(decoded.Content) == 0 {
		return nil, fmt.Errorf("messages API returned no content blocks")
	}

	return ExtractJSON(decoded.Content[0].Text)
}

// ExtractJSON pulls the first JSON document out of a model text response,
// tolerating markdown code fences and surrounding prose.
func ExtractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty model response")
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.IndexAny(trimmed, "[{")
	if start < 0 {
		return nil, fmt.Errorf("no JSON document in model response")
	}

	candidate := trimmed[start:]
	end := matchingCloser(candidate)
	if end < 0 {
		return nil, fmt.Errorf("unterminated JSON document in model response")
	}
	candidate = candidate[:end+1]

	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("model response is not valid JSON")
	}
	return json.RawMessage(candidate), nil
}

// matchingCloser finds the index of the bracket closing the document that
// starts at position 0, skipping brackets inside string literals.
func matchingCloser(s string) int {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
