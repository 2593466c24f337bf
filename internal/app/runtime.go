package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrbailey/lex-intel/internal/analyze"
	"github.com/chrbailey/lex-intel/internal/cli"
	"github.com/chrbailey/lex-intel/internal/config"
	"github.com/chrbailey/lex-intel/internal/db"
	"github.com/chrbailey/lex-intel/internal/embed"
	"github.com/chrbailey/lex-intel/internal/llm"
	"github.com/chrbailey/lex-intel/internal/logging"
	"github.com/chrbailey/lex-intel/internal/pipeline"
	"github.com/chrbailey/lex-intel/internal/publish"
	"github.com/chrbailey/lex-intel/internal/scrape"
	"github.com/chrbailey/lex-intel/internal/signals"
)

// runtime bundles the shared process state every subcommand boots.
type runtime struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *db.Pool
}

func setup(ctx context.Context, envLoader *cli.EnvLoader) (*runtime, error) {
	if _, err := envLoader.Load(); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &runtime{cfg: cfg, logger: logger, pool: pool}, nil
}

func (r *runtime) close() {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
}

func (r *runtime) embedder() embed.Embedder {
	return embed.NewHTTPEmbedder(r.cfg.EmbedEndpoint, r.cfg.EmbedTimeout)
}

func (r *runtime) scrapeService() (*scrape.Service, error) {
	sources, err := scrape.LoadSources(r.cfg.SourcesPath)
	if err != nil {
		return nil, err
	}

	fetchers := make([]scrape.Fetcher, 0, len(sources))
	for _, source := range sources {
		fetchers = append(fetchers, scrape.NewHTMLFetcher(source, r.cfg.ScrapeTimeout, r.cfg.ScrapeMaxPerFeed))
	}

	window := pipeline.NewDedupWindow(r.cfg.DedupWindowSize, time.Duration(r.cfg.DedupWindowDays)*24*time.Hour)
	deduper := pipeline.NewDeduplicator(r.pool, r.embedder(), window, r.logger, pipeline.DedupOptions{
		WindowDays:         r.cfg.DedupWindowDays,
		SemanticThreshold:  r.cfg.SemanticThreshold,
		SemanticCandidates: r.cfg.SemanticCandidates,
	})
	return scrape.NewService(r.pool, pipeline.NewNormalizer(), deduper, fetchers, r.cfg.ScrapeTimeout, r.logger), nil
}

func (r *runtime) analyzeService() (*analyze.Service, error) {
	if r.cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	client := llm.NewAnthropicClient(r.cfg.AnthropicAPIKey, r.cfg.LLMModel, r.cfg.LLMTimeout)
	return analyze.NewService(r.pool, client, r.logger, analyze.Options{
		BatchSize:    r.cfg.Stage1BatchSize,
		MinRelevance: r.cfg.Stage2MinRelevance,
		MaxRetries:   r.cfg.PublishMaxRetries,
	}), nil
}

func (r *runtime) publishManager() *publish.Manager {
	var adapters []publish.Adapter
	if r.cfg.DevtoAPIKey != "" {
		adapters = append(adapters, publish.NewDevtoAdapter(r.cfg.DevtoAPIKey, http.DefaultClient))
	}
	if r.cfg.LinkedInAccessToken != "" {
		adapters = append(adapters, publish.NewLinkedInAdapter(r.cfg.LinkedInAccessToken, http.DefaultClient))
	}
	if r.cfg.HashnodeAPIKey != "" && r.cfg.HashnodePublicationID != "" {
		adapters = append(adapters, publish.NewHashnodeAdapter(r.cfg.HashnodeAPIKey, r.cfg.HashnodePublicationID, http.DefaultClient))
	}
	return publish.NewManager(r.pool, adapters, r.logger, publish.Options{
		BatchSize:      r.cfg.PublishBatchSize,
		BackoffBase:    r.cfg.PublishBackoffBase,
		BackoffCap:     r.cfg.PublishBackoffCap,
		Lease:          r.cfg.PublishLease,
		PublishTimeout: r.cfg.PublishTimeout,
	})
}

func (r *runtime) signalService() *signals.Service {
	return signals.NewService(r.pool, signals.Options{
		MinRelevance: r.cfg.SignalsMinRelevance,
		Similarity:   r.cfg.ClusterSimilarity,
	})
}

// cycleResult captures one scrape/analyze/publish sequence.
type cycleResult struct {
	Scrape  *scrape.Result  `json:"scrape,omitempty"`
	Analyze *analyze.Result `json:"analyze,omitempty"`
	Publish *publish.Result `json:"publish,omitempty"`
	Skipped string          `json:"skipped,omitempty"`
}

// runCycleOnce runs scrape, then analyze and publish. When scrape finds no
// new articles the later stages are skipped; there is nothing for them to
// do and the LLM call costs real money.
func (r *runtime) runCycleOnce(ctx context.Context) (cycleResult, error) {
	var out cycleResult

	scraper, err := r.scrapeService()
	if err != nil {
		return out, err
	}
	scrapeRes, err := scraper.Run(ctx)
	if err != nil {
		return out, fmt.Errorf("scrape stage: %w", err)
	}
	out.Scrape = &scrapeRes

	if scrapeRes.New == 0 {
		out.Skipped = "no new articles, analyze and publish skipped"
		r.logger.Info().Msg(out.Skipped)
		return out, nil
	}

	analyzer, err := r.analyzeService()
	if err != nil {
		return out, err
	}
	analyzeRes, err := analyzer.Run(ctx)
	if err != nil {
		return out, fmt.Errorf("analyze stage: %w", err)
	}
	out.Analyze = &analyzeRes

	publishRes, err := r.publishManager().Drain(ctx, "")
	if err != nil {
		return out, fmt.Errorf("publish stage: %w", err)
	}
	out.Publish = &publishRes
	return out, nil
}
