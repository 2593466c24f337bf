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

const (
	linkedinMeURL    = "https://api.linkedin.com/v2/userinfo"
	linkedinPostsURL = "https://api.linkedin.com/v2/ugcPosts"
)

// LinkedInAdapter publishes short-form text posts to the member's feed.
type LinkedInAdapter struct {
	accessToken string
	client      *http.Client
	limiter     *rate.Limiter
	meURL       string
	postsURL    string

	authorURN string
}

func NewLinkedInAdapter(accessToken string, client *http.Client) *LinkedInAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &LinkedInAdapter{
		accessToken: accessToken,
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(0.5), 1),
		meURL:       linkedinMeURL,
		postsURL:    linkedinPostsURL,
	}
}

func (a *LinkedInAdapter) Platform() string { return "linkedin" }

func (a *LinkedInAdapter) Publish(ctx context.Context, post Post) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("linkedin rate limiter: %w", err)
	}

	author, err := a.author(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]any{"text": post.Body},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode linkedin payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.postsURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build linkedin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.accessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("linkedin request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusCreated {
		return "", classifyStatus("linkedin", resp.StatusCode, string(raw))
	}

	if id := resp.Header.Get("X-RestLi-Id"); id != "" {
		return id, nil
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil || created.ID == "" {
		return "", fmt.Errorf("linkedin response missing post id")
	}
	return created.ID, nil
}

// author resolves and caches the member URN the tokens belong to.
func (a *LinkedInAdapter) author(ctx context.Context) (string, error) {
	if a.authorURN != "" {
		return a.authorURN, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.meURL, nil)
	if err != nil {
		return "", fmt.Errorf("build linkedin userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.accessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("linkedin userinfo request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("linkedin", resp.StatusCode, string(raw))
	}

	var me struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(raw, &me); err != nil || me.Sub == "" {
		return "", fmt.Errorf("linkedin userinfo missing subject")
	}
	a.authorURN = "urn:li:person:" + me.Sub
	return a.authorURN, nil
}
