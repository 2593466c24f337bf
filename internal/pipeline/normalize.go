package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/unicode/norm"
)

const (
	maxTitleChars = 1000
	maxBodyChars  = 10000
)

// RawRecord is what a source fetcher hands the pipeline: untrusted,
// partially filled, possibly oversized.
type RawRecord struct {
	Source      string
	SourceID    string
	Title       string
	Body        string
	URL         string
	PublishedAt *time.Time
}

// Candidate is a normalized article candidate awaiting dedup.
type Candidate struct {
	Source      string
	SourceID    string
	Title       string
	TitleNorm   string
	Body        string
	URL         *string
	Language    string
	PublishedAt *time.Time
}

// Normalizer turns raw scraped records into canonical article candidates.
// It has no side effects beyond producing the candidate.
type Normalizer struct {
	detector lingua.LanguageDetector
}

func NewNormalizer() *Normalizer {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(lingua.English, lingua.Chinese).
		Build()
	return &Normalizer{detector: detector}
}

// Normalize produces an article candidate. Oversized titles and bodies are
// truncated, not errors. An empty normalized title is the only rejection.
func (n *Normalizer) Normalize(rec RawRecord) (Candidate, error) {
	title := strings.TrimSpace(rec.Title)
	if len(title) > maxTitleChars {
		title = truncateRunes(title, maxTitleChars)
	}

	titleNorm := NormalizeTitle(title)
	if titleNorm == "" {
		return Candidate{}, fmt.Errorf("record from %s has no usable title", rec.Source)
	}

	body := strings.TrimSpace(rec.Body)
	if len(body) > maxBodyChars {
		body = truncateRunes(body, maxBodyChars)
	}

	source := strings.TrimSpace(rec.Source)
	if source == "" {
		source = "unknown"
	}

	sourceID := strings.TrimSpace(rec.SourceID)
	if sourceID == "" {
		sourceID = DeterministicSourceID(source, title, rec.URL)
	}

	var url *string
	if trimmed := strings.TrimSpace(rec.URL); trimmed != "" {
		url = &trimmed
	}

	return Candidate{
		Source:      source,
		SourceID:    sourceID,
		Title:       title,
		TitleNorm:   titleNorm,
		Body:        body,
		URL:         url,
		Language:    n.detectLanguage(title, body),
		PublishedAt: rec.PublishedAt,
	}, nil
}

func (n *Normalizer) detectLanguage(title, body string) string {
	if n == nil || n.detector == nil {
		return "und"
	}
	sample := title
	if body != "" {
		sample = title + " " + truncateRunes(body, 300)
	}
	language, ok := n.detector.DetectLanguageOf(sample)
	if !ok {
		return "und"
	}
	return strings.ToLower(language.IsoCode639_1().String())
}

// NormalizeTitle lowercases, strips punctuation and diacritics, collapses
// whitespace and trims. The result is the exact-dedup key.
func NormalizeTitle(title string) string {
	decomposed := norm.NFKD.String(strings.ToLower(strings.TrimSpace(title)))
	if decomposed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(decomposed))
	lastSpace := false
	for _, r := range decomposed {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.Is(unicode.Mn, r):
			// combining marks dropped: strips diacritics after NFKD
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// DeterministicSourceID derives a stable id from source plus url-or-title,
// so re-scraping the same item is idempotent.
func DeterministicSourceID(source, title, url string) string {
	key := url
	if strings.TrimSpace(key) == "" {
		key = title
	}
	sum := sha256.Sum256([]byte(source + ":" + key))
	return hex.EncodeToString(sum[:])[:16]
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
