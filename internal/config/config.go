package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"LEX_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"LEX_DB_MAX_CONNS" default:"8"`

	SourcesPath      string        `envconfig:"LEX_SOURCES_PATH" default:"sources.yaml"`
	ScrapeTimeout    time.Duration `envconfig:"LEX_SCRAPE_TIMEOUT" default:"30s"`
	ScrapeMaxPerFeed int           `envconfig:"LEX_SCRAPE_MAX_PER_FEED" default:"25"`

	DedupWindowDays    int     `envconfig:"LEX_DEDUP_WINDOW_DAYS" default:"30"`
	DedupWindowSize    int     `envconfig:"LEX_DEDUP_WINDOW_SIZE" default:"5000"`
	SemanticThreshold  float64 `envconfig:"LEX_SEMANTIC_THRESHOLD" default:"0.85"`
	SemanticCandidates int     `envconfig:"LEX_SEMANTIC_CANDIDATES" default:"500"`

	EmbedEndpoint string        `envconfig:"LEX_EMBED_ENDPOINT" default:"http://127.0.0.1:8844/embed"`
	EmbedTimeout  time.Duration `envconfig:"LEX_EMBED_TIMEOUT" default:"45s"`

	AnthropicAPIKey string        `envconfig:"ANTHROPIC_API_KEY" default:""`
	LLMModel        string        `envconfig:"LEX_LLM_MODEL" default:"claude-sonnet-4-20250514"`
	LLMTimeout      time.Duration `envconfig:"LEX_LLM_TIMEOUT" default:"120s"`

	Stage1BatchSize    int `envconfig:"LEX_STAGE1_BATCH_SIZE" default:"50"`
	Stage2MinRelevance int `envconfig:"LEX_STAGE2_MIN_RELEVANCE" default:"3"`

	ClusterSimilarity   float64 `envconfig:"LEX_CLUSTER_SIMILARITY" default:"0.70"`
	SignalsMinRelevance int     `envconfig:"LEX_SIGNALS_MIN_RELEVANCE" default:"4"`

	PublishMaxRetries  int           `envconfig:"LEX_PUBLISH_MAX_RETRIES" default:"3"`
	PublishBackoffBase time.Duration `envconfig:"LEX_PUBLISH_BACKOFF_BASE" default:"5m"`
	PublishBackoffCap  time.Duration `envconfig:"LEX_PUBLISH_BACKOFF_CAP" default:"12h"`
	PublishBatchSize   int           `envconfig:"LEX_PUBLISH_BATCH_SIZE" default:"20"`
	PublishLease       time.Duration `envconfig:"LEX_PUBLISH_LEASE" default:"10m"`
	PublishTimeout     time.Duration `envconfig:"LEX_PUBLISH_TIMEOUT" default:"30s"`

	DevtoAPIKey           string `envconfig:"DEVTO_API_KEY" default:""`
	LinkedInAccessToken   string `envconfig:"LINKEDIN_ACCESS_TOKEN" default:""`
	HashnodeAPIKey        string `envconfig:"HASHNODE_API_KEY" default:""`
	HashnodePublicationID string `envconfig:"HASHNODE_PUBLICATION_ID" default:""`

	HTTPHost string `envconfig:"LEX_HTTP_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"LEX_HTTP_PORT" default:"8070"`
	// AdminTokenHash is the bcrypt hash of the token required on the
	// POST /runs/* endpoints. Empty leaves them open.
	AdminTokenHash string `envconfig:"LEX_ADMIN_TOKEN_HASH" default:""`

	CycleSchedule   string `envconfig:"LEX_CYCLE_SCHEDULE" default:"0 6 * * *"`
	PublishSchedule string `envconfig:"LEX_PUBLISH_SCHEDULE" default:"*/15 * * * *"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("LEX_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("LEX_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("LEX_DB_MIN_CONNS (%d) cannot exceed LEX_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.SemanticThreshold <= 0 || c.SemanticThreshold > 1 {
		return fmt.Errorf("LEX_SEMANTIC_THRESHOLD must be in (0,1], got %f", c.SemanticThreshold)
	}
	if c.ClusterSimilarity <= 0 || c.ClusterSimilarity > 1 {
		return fmt.Errorf("LEX_CLUSTER_SIMILARITY must be in (0,1], got %f", c.ClusterSimilarity)
	}
	if c.DedupWindowDays < 1 {
		return fmt.Errorf("LEX_DEDUP_WINDOW_DAYS must be >= 1")
	}
	if c.DedupWindowSize < 1 {
		return fmt.Errorf("LEX_DEDUP_WINDOW_SIZE must be >= 1")
	}
	if c.PublishMaxRetries < 0 {
		return fmt.Errorf("LEX_PUBLISH_MAX_RETRIES must be >= 0")
	}
	if c.PublishBackoffBase <= 0 {
		return fmt.Errorf("LEX_PUBLISH_BACKOFF_BASE must be positive")
	}
	if c.PublishBackoffCap < c.PublishBackoffBase {
		return fmt.Errorf("LEX_PUBLISH_BACKOFF_CAP must be >= LEX_PUBLISH_BACKOFF_BASE")
	}
	if c.Stage2MinRelevance < 1 || c.Stage2MinRelevance > 5 {
		return fmt.Errorf("LEX_STAGE2_MIN_RELEVANCE must be in [1,5]")
	}
	if c.SignalsMinRelevance < 1 || c.SignalsMinRelevance > 5 {
		return fmt.Errorf("LEX_SIGNALS_MIN_RELEVANCE must be in [1,5]")
	}
	return nil
}
