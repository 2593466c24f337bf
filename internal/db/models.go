package db

import (
	"encoding/json"
	"time"
)

// Article statuses. Transitions are monotonic: pending -> analyzed ->
// published -> archived; an archived article never moves back.
const (
	ArticleStatusPending   = "pending"
	ArticleStatusAnalyzed  = "analyzed"
	ArticleStatusPublished = "published"
	ArticleStatusArchived  = "archived"
)

// Publish queue statuses.
const (
	QueueStatusQueued     = "queued"
	QueueStatusPublishing = "publishing"
	QueueStatusPublished  = "published"
	QueueStatusRetry      = "retry_queued"
	QueueStatusFailed     = "failed"
	QueueStatusSkipped    = "skipped"
)

// Article maps lex.articles.
type Article struct {
	ArticleID        int64           `gorm:"column:article_id;primaryKey;autoIncrement"`
	ArticleUUID      string          `gorm:"column:article_uuid;type:uuid;not null;unique"`
	Source           string          `gorm:"column:source;type:text;not null;uniqueIndex:ux_articles_source_item"`
	SourceID         string          `gorm:"column:source_id;type:text;not null;uniqueIndex:ux_articles_source_item"`
	Title            string          `gorm:"column:title;type:text;not null"`
	TitleNorm        string          `gorm:"column:title_norm;type:text;not null;index"`
	URL              *string         `gorm:"column:url;type:text"`
	Body             string          `gorm:"column:body;type:text;not null;default:''"`
	Language         string          `gorm:"column:language;type:text;not null;default:und"`
	PublishedAt      *time.Time      `gorm:"column:published_at;type:timestamptz"`
	ScrapedAt        time.Time       `gorm:"column:scraped_at;type:timestamptz;not null;index"`
	EnglishTitle     *string         `gorm:"column:english_title;type:text"`
	Category         *string         `gorm:"column:category;type:text"`
	Relevance        *int            `gorm:"column:relevance;type:integer"`
	Status           string          `gorm:"column:status;type:text;not null;default:pending;index"`
	SemanticVerified bool            `gorm:"column:semantic_verified;not null;default:true"`
	Embedding        json.RawMessage `gorm:"column:embedding;type:jsonb"`
	ScrapeRunID      *int64          `gorm:"column:scrape_run_id;type:bigint"`
	CreatedAt        time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "lex.articles" }

// DedupTitle maps lex.dedup_titles, the rolling exact-dedup window.
type DedupTitle struct {
	DedupTitleID int64     `gorm:"column:dedup_title_id;primaryKey;autoIncrement"`
	TitleNorm    string    `gorm:"column:title_norm;type:text;not null;index"`
	Source       string    `gorm:"column:source;type:text;not null"`
	SeenAt       time.Time `gorm:"column:seen_at;type:timestamptz;not null;default:now();index"`
}

func (DedupTitle) TableName() string { return "lex.dedup_titles" }

// ScrapeRun maps lex.scrape_runs.
type ScrapeRun struct {
	RunID         int64           `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID       string          `gorm:"column:run_uuid;type:uuid;not null;unique"`
	Mode          string          `gorm:"column:mode;type:text;not null;default:scrape"`
	StartedAt     time.Time       `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt    *time.Time      `gorm:"column:finished_at;type:timestamptz"`
	ArticlesFound int             `gorm:"column:articles_found;type:integer;not null;default:0"`
	ArticlesNew   int             `gorm:"column:articles_new;type:integer;not null;default:0"`
	SourcesOK     json.RawMessage `gorm:"column:sources_ok;type:jsonb"`
	SourcesFailed json.RawMessage `gorm:"column:sources_failed;type:jsonb"`
	ErrorMessage  *string         `gorm:"column:error_message;type:text"`
}

func (ScrapeRun) TableName() string { return "lex.scrape_runs" }

// Briefing maps lex.briefings.
type Briefing struct {
	BriefingID   int64      `gorm:"column:briefing_id;primaryKey;autoIncrement"`
	BriefingUUID string     `gorm:"column:briefing_uuid;type:uuid;not null;unique"`
	BriefingText string     `gorm:"column:briefing_text;type:text;not null"`
	ArticleCount int        `gorm:"column:article_count;type:integer;not null;default:0"`
	ModelUsed    string     `gorm:"column:model_used;type:text;not null"`
	ScrapeRunID  *int64     `gorm:"column:scrape_run_id;type:bigint"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now();index"`
}

func (Briefing) TableName() string { return "lex.briefings" }

// AnalysisRun maps lex.analysis_runs. Immutable once finished.
type AnalysisRun struct {
	AnalysisRunID int64      `gorm:"column:analysis_run_id;primaryKey;autoIncrement"`
	RunUUID       string     `gorm:"column:run_uuid;type:uuid;not null;unique"`
	Model         string     `gorm:"column:model;type:text;not null"`
	StartedAt     time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt    *time.Time `gorm:"column:finished_at;type:timestamptz"`
	ArticleCount  int        `gorm:"column:article_count;type:integer;not null;default:0"`
	BriefingID    *int64     `gorm:"column:briefing_id;type:bigint"`
	Status        string     `gorm:"column:status;type:text;not null;default:running"`
	ErrorMessage  *string    `gorm:"column:error_message;type:text"`
}

func (AnalysisRun) TableName() string { return "lex.analysis_runs" }

// PublishQueueItem maps lex.publish_queue.
type PublishQueueItem struct {
	QueueID      int64           `gorm:"column:queue_id;primaryKey;autoIncrement"`
	QueueUUID    string          `gorm:"column:queue_uuid;type:uuid;not null;unique"`
	Platform     string          `gorm:"column:platform;type:text;not null;index"`
	Title        *string         `gorm:"column:title;type:text"`
	Body         string          `gorm:"column:body;type:text;not null"`
	FallbackBody *string         `gorm:"column:fallback_body;type:text"`
	Urgency      string          `gorm:"column:urgency;type:text;not null;default:medium"`
	Priority     int             `gorm:"column:priority;type:integer;not null;default:2;index"`
	Status       string          `gorm:"column:status;type:text;not null;default:queued;index"`
	RetryCount   int             `gorm:"column:retry_count;type:integer;not null;default:0"`
	MaxRetries   int             `gorm:"column:max_retries;type:integer;not null;default:3"`
	NextRetryAt  *time.Time      `gorm:"column:next_retry_at;type:timestamptz"`
	PublishLog   json.RawMessage `gorm:"column:publish_log;type:jsonb"`
	PublishedAt  *time.Time      `gorm:"column:published_at;type:timestamptz"`
	PlatformID   *string         `gorm:"column:platform_id;type:text"`
	ErrorMessage *string         `gorm:"column:error_message;type:text"`
	BriefingID   *int64          `gorm:"column:briefing_id;type:bigint"`
	ArticleID    *int64          `gorm:"column:article_id;type:bigint"`
	ClaimedAt    *time.Time      `gorm:"column:claimed_at;type:timestamptz"`
	CreatedAt    time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (PublishQueueItem) TableName() string { return "lex.publish_queue" }

// PublishLogEntry is one element of publish_queue.publish_log. The log is
// append-only; entries are never rewritten.
type PublishLogEntry struct {
	At         time.Time `json:"at"`
	Status     string    `json:"status"`
	PlatformID string    `json:"platform_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Fallback   bool      `json:"fallback,omitempty"`
}

func autoMigrateModels() []any {
	return []any{
		&Article{},
		&DedupTitle{},
		&ScrapeRun{},
		&Briefing{},
		&AnalysisRun{},
		&PublishQueueItem{},
	}
}
