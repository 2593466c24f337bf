package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/chrbailey/lex-intel/internal/pipeline"
)

const (
	defaultFetchTimeout = 30 * time.Second
	bodyByteLimit       = 2 * 1024 * 1024
	defaultUserAgent    = "lex-intel/1.0 (+https://github.com/chrbailey/lex-intel)"
)

// Fetcher retrieves raw records from one source. Each fetcher is
// independently fallible; a failing fetcher never affects its siblings.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]pipeline.RawRecord, error)
}

// HTMLFetcher scrapes a listing page with CSS selectors and optionally
// follows item links to extract readable body text.
type HTMLFetcher struct {
	cfg      SourceConfig
	client   *http.Client
	maxItems int
}

func NewHTMLFetcher(cfg SourceConfig, timeout time.Duration, maxItems int) *HTMLFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if maxItems <= 0 {
		maxItems = 25
	}
	return &HTMLFetcher{
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout},
		maxItems: maxItems,
	}
}

func (f *HTMLFetcher) Name() string {
	return f.cfg.Name
}

func (f *HTMLFetcher) Fetch(ctx context.Context) ([]pipeline.RawRecord, error) {
	doc, err := f.fetchDocument(ctx, f.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", f.cfg.URL, err)
	}

	base, err := url.Parse(f.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse source url %s: %w", f.cfg.URL, err)
	}

	records := make([]pipeline.RawRecord, 0, f.maxItems)
	doc.Find(f.cfg.ItemSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := f.itemTitle(sel)
		if title == "" {
			return true
		}

		link := f.itemLink(sel, base)
		record := pipeline.RawRecord{
			Source: f.cfg.Name,
			Title:  title,
			URL:    link,
		}

		if f.cfg.FetchBody && link != "" {
			if body, err := f.fetchReadableBody(ctx, link); err == nil {
				record.Body = body
			}
		}
		if record.Body == "" {
			record.Body = strings.TrimSpace(sel.Text())
		}

		records = append(records, record)
		return len(records) < f.maxItems
	})

	return records, nil
}

func (f *HTMLFetcher) itemTitle(sel *goquery.Selection) string {
	if f.cfg.TitleSelector != "" {
		return strings.TrimSpace(sel.Find(f.cfg.TitleSelector).First().Text())
	}
	return strings.TrimSpace(sel.Text())
}

func (f *HTMLFetcher) itemLink(sel *goquery.Selection, base *url.URL) string {
	anchor := sel
	if f.cfg.LinkSelector != "" {
		anchor = sel.Find(f.cfg.LinkSelector).First()
	} else if goquery.NodeName(sel) != "a" {
		anchor = sel.Find("a").First()
	}

	href, ok := anchor.Attr("href")
	if !ok {
		return ""
	}
	parsed, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}

func (f *HTMLFetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := f.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func (f *HTMLFetcher) fetchReadableBody(ctx context.Context, pageURL string) (string, error) {
	body, err := f.fetchPage(ctx, pageURL)
	if err != nil {
		return "", err
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse item url: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return "", fmt.Errorf("readability parse: %w", err)
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return "", fmt.Errorf("render readability text: %w", err)
	}
	return strings.TrimSpace(rendered.String()), nil
}

func (f *HTMLFetcher) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, bodyByteLimit))
}
