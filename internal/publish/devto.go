package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

const devtoArticlesURL = "https://dev.to/api/articles"

// DevtoAdapter publishes markdown articles to dev.to via the Forem API.
type DevtoAdapter struct {
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

func NewDevtoAdapter(apiKey string, client *http.Client) *DevtoAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &DevtoAdapter{
		apiKey: apiKey,
		client: client,
		// dev.to allows roughly one write every 30 seconds per key.
		limiter: rate.NewLimiter(rate.Limit(1.0/30.0), 1),
		baseURL: devtoArticlesURL,
	}
}

func (a *DevtoAdapter) Platform() string { return "devto" }

func (a *DevtoAdapter) Publish(ctx context.Context, post Post) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("devto rate limiter: %w", err)
	}

	title := post.Title
	if title == "" {
		title = firstLine(post.Body)
	}
	payload := map[string]any{
		"article": map[string]any{
			"title":         title,
			"body_markdown": post.Body,
			"published":     true,
			"tags":          []string{"ai", "china", "tech"},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode devto payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build devto request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("devto request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", classifyStatus("devto", resp.StatusCode, string(raw))
	}

	var created struct {
		ID  int64  `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("decode devto response: %w", err)
	}
	if created.URL != "" {
		return created.URL, nil
	}
	return fmt.Sprintf("%d", created.ID), nil
}
