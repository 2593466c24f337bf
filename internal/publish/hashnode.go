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

const hashnodeGQLURL = "https://gql.hashnode.com"

// HashnodeAdapter publishes markdown posts to a Hashnode publication over
// its GraphQL API.
type HashnodeAdapter struct {
	apiKey        string
	publicationID string
	client        *http.Client
	limiter       *rate.Limiter
	baseURL       string
}

func NewHashnodeAdapter(apiKey, publicationID string, client *http.Client) *HashnodeAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &HashnodeAdapter{
		apiKey:        apiKey,
		publicationID: publicationID,
		client:        client,
		limiter:       rate.NewLimiter(rate.Limit(0.2), 1),
		baseURL:       hashnodeGQLURL,
	}
}

func (a *HashnodeAdapter) Platform() string { return "hashnode" }

const hashnodePublishMutation = `
mutation PublishPost($input: PublishPostInput!) {
  publishPost(input: $input) {
    post { id url }
  }
}`

func (a *HashnodeAdapter) Publish(ctx context.Context, post Post) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("hashnode rate limiter: %w", err)
	}

	title := post.Title
	if title == "" {
		title = firstLine(post.Body)
	}
	payload := map[string]any{
		"query": hashnodePublishMutation,
		"variables": map[string]any{
			"input": map[string]any{
				"publicationId":   a.publicationID,
				"title":           title,
				"contentMarkdown": post.Body,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode hashnode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build hashnode request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("hashnode request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("hashnode", resp.StatusCode, string(raw))
	}

	var out struct {
		Data struct {
			PublishPost struct {
				Post struct {
					ID  string `json:"id"`
					URL string `json:"url"`
				} `json:"post"`
			} `json:"publishPost"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode hashnode response: %w", err)
	}
	if len(out.Errors) > 0 {
		// GraphQL errors arrive with a 200; treat them as content-level
		// rejections so the fallback body can run.
		return "", &PlatformError{
			Platform: "hashnode",
			Code:     resp.StatusCode,
			Message:  out.Errors[0].Message,
			Content:  true,
		}
	}
	if out.Data.PublishPost.Post.URL != "" {
		return out.Data.PublishPost.Post.URL, nil
	}
	if out.Data.PublishPost.Post.ID != "" {
		return out.Data.PublishPost.Post.ID, nil
	}
	return "", fmt.Errorf("hashnode response missing post id")
}
