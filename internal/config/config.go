package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	S3       S3Config
	Log      LogConfig
	Queue    QueueConfig
	Pipeline PipelineConfig
	OCR      OCRConfig
	Textract TextractConfig
	Model    ModelConfig
	CORS     CORSConfig
}

// QueueConfig holds extraction queue worker settings.
type QueueConfig struct {
	PollIntervalSecs int `mapstructure:"poll_interval_secs"`
	MaxAttempts      int `mapstructure:"max_attempts"`
	Concurrency      int `mapstructure:"concurrency"`
	JobTimeoutMins   int `mapstructure:"job_timeout_mins"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// PipelineConfig holds the extraction pipeline tuning knobs.
type PipelineConfig struct {
	SmallMaxPages     int           `mapstructure:"small_max_pages"`
	LargeMaxPages     int           `mapstructure:"large_max_pages"`
	MaxPagesPerChunk  int           `mapstructure:"max_pages_per_chunk"`
	BatchWorkers      int           `mapstructure:"batch_workers"`
	PageConcurrency   int           `mapstructure:"page_concurrency"`
	ProgressInterval  time.Duration `mapstructure:"progress_interval"`
	PreviewDPI        int           `mapstructure:"preview_dpi"`
	VisionDPI         int           `mapstructure:"vision_dpi"`
	OCRDPI            int           `mapstructure:"ocr_dpi"`
	MinTextChars      int           `mapstructure:"min_text_chars"`
	ChunkChars        int           `mapstructure:"chunk_chars"`
	MaxPromptChars    int           `mapstructure:"max_prompt_chars"`
	WindowChars       int           `mapstructure:"window_chars"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout"`
	StagingPrefix     string        `mapstructure:"staging_prefix"`
	RuleBasedFallback bool          `mapstructure:"rule_based_fallback"`
}

// OCRConfig holds the external tool settings used for rasterization and OCR.
type OCRConfig struct {
	Pdftoppm  string `mapstructure:"pdftoppm"`
	Tesseract string `mapstructure:"tesseract"`
	Qpdf      string `mapstructure:"qpdf"`
	Language  string `mapstructure:"language"`
	PSM       int    `mapstructure:"psm"`
	Enabled   bool   `mapstructure:"enabled"`
}

// TextractConfig holds AWS Textract settings.
type TextractConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Async   bool   `mapstructure:"async"`
	Region  string `mapstructure:"region"`
}

// ModelProviderConfig holds settings for a single language model provider.
type ModelProviderConfig struct {
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	DefaultModel string `mapstructure:"default_model"`
	MaxRetries   int    `mapstructure:"max_retries"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`
}

// ModelConfig holds language model settings with multi-provider support.
type ModelConfig struct {
	Primary           ModelProviderConfig `mapstructure:"primary"`
	Secondary         ModelProviderConfig `mapstructure:"secondary"`
	Tertiary          ModelProviderConfig `mapstructure:"tertiary"`
	RequestsPerSecond float64             `mapstructure:"requests_per_second"`
	Burst             int                 `mapstructure:"burst"`
}

// Providers returns the configured provider configs in fallback order.
func (m *ModelConfig) Providers() []*ModelProviderConfig {
	var out []*ModelProviderConfig
	for _, p := range []*ModelProviderConfig{&m.Primary, &m.Secondary, &m.Tertiary} {
		if p.Provider != "" {
			out = append(out, p)
		}
	}
	return out
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	Environment   string        `mapstructure:"environment"`
	MaxFileSizeMB int64         `mapstructure:"max_file_size_mb"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds AWS S3 settings. Bucket receives uploads; StagingBucket holds
// the temporary copies handed to async document analysis.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	StagingBucket string `mapstructure:"staging_bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

// Staging returns the bucket used for async analysis staging.
func (s *S3Config) Staging() string {
	if s.StagingBucket != "" {
		return s.StagingBucket
	}
	return s.Bucket
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from environment variables with the FINX_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FINX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.max_file_size_mb", 200)

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "finextract")
	v.SetDefault("db.password", "finextract_secret")
	v.SetDefault("db.name", "finextract_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "finextract-uploads")
	v.SetDefault("s3.staging_bucket", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.presign_expiry", 3600)

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Queue defaults
	v.SetDefault("queue.poll_interval_secs", 5)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.concurrency", 2)
	v.SetDefault("queue.job_timeout_mins", 90)

	// Pipeline defaults
	v.SetDefault("pipeline.small_max_pages", 10)
	v.SetDefault("pipeline.large_max_pages", 100)
	v.SetDefault("pipeline.max_pages_per_chunk", 50)
	v.SetDefault("pipeline.batch_workers", 3)
	v.SetDefault("pipeline.page_concurrency", 30)
	v.SetDefault("pipeline.progress_interval", "2s")
	v.SetDefault("pipeline.preview_dpi", 150)
	v.SetDefault("pipeline.vision_dpi", 200)
	v.SetDefault("pipeline.ocr_dpi", 300)
	v.SetDefault("pipeline.min_text_chars", 100)
	v.SetDefault("pipeline.chunk_chars", 12000)
	v.SetDefault("pipeline.max_prompt_chars", 24000)
	v.SetDefault("pipeline.window_chars", 2000)
	v.SetDefault("pipeline.poll_interval", "5s")
	v.SetDefault("pipeline.poll_timeout", "1h")
	v.SetDefault("pipeline.staging_prefix", "staging/")
	v.SetDefault("pipeline.rule_based_fallback", true)

	// OCR defaults
	v.SetDefault("ocr.pdftoppm", "pdftoppm")
	v.SetDefault("ocr.tesseract", "tesseract")
	v.SetDefault("ocr.qpdf", "qpdf")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.psm", 6)
	v.SetDefault("ocr.enabled", true)

	// Textract defaults
	v.SetDefault("textract.enabled", false)
	v.SetDefault("textract.async", false)
	v.SetDefault("textract.region", "")

	// Model defaults
	v.SetDefault("model.primary.provider", "ollama")
	v.SetDefault("model.primary.api_key", "")
	v.SetDefault("model.primary.base_url", "http://localhost:11434")
	v.SetDefault("model.primary.default_model", "llama3.2-vision")
	v.SetDefault("model.primary.max_retries", 2)
	v.SetDefault("model.primary.timeout_secs", 180)
	v.SetDefault("model.secondary.provider", "")
	v.SetDefault("model.secondary.api_key", "")
	v.SetDefault("model.secondary.base_url", "")
	v.SetDefault("model.secondary.default_model", "")
	v.SetDefault("model.secondary.max_retries", 2)
	v.SetDefault("model.secondary.timeout_secs", 120)
	v.SetDefault("model.tertiary.provider", "")
	v.SetDefault("model.tertiary.api_key", "")
	v.SetDefault("model.tertiary.base_url", "")
	v.SetDefault("model.tertiary.default_model", "")
	v.SetDefault("model.tertiary.max_retries", 2)
	v.SetDefault("model.tertiary.timeout_secs", 120)
	v.SetDefault("model.requests_per_second", 10)
	v.SetDefault("model.burst", 30)

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                   "FINX_SERVER_PORT",
		"server.read_timeout":           "FINX_SERVER_READ_TIMEOUT",
		"server.write_timeout":          "FINX_SERVER_WRITE_TIMEOUT",
		"server.environment":            "FINX_SERVER_ENVIRONMENT",
		"server.max_file_size_mb":       "FINX_SERVER_MAX_FILE_SIZE_MB",
		"db.host":                       "FINX_DB_HOST",
		"db.port":                       "FINX_DB_PORT",
		"db.user":                       "FINX_DB_USER",
		"db.password":                   "FINX_DB_PASSWORD",
		"db.name":                       "FINX_DB_NAME",
		"db.sslmode":                    "FINX_DB_SSLMODE",
		"db.max_open":                   "FINX_DB_MAX_OPEN",
		"db.max_idle":                   "FINX_DB_MAX_IDLE",
		"s3.region":                     "FINX_S3_REGION",
		"s3.bucket":                     "FINX_S3_BUCKET",
		"s3.staging_bucket":             "FINX_S3_STAGING_BUCKET",
		"s3.endpoint":                   "FINX_S3_ENDPOINT",
		"s3.access_key":                 "FINX_S3_ACCESS_KEY",
		"s3.secret_key":                 "FINX_S3_SECRET_KEY",
		"s3.presign_expiry":             "FINX_S3_PRESIGN_EXPIRY",
		"log.level":                     "FINX_LOG_LEVEL",
		"log.format":                    "FINX_LOG_FORMAT",
		"cors.allowed_origins":          "FINX_CORS_ALLOWED_ORIGINS",
		"queue.poll_interval_secs":      "FINX_QUEUE_POLL_INTERVAL_SECS",
		"queue.max_attempts":            "FINX_QUEUE_MAX_ATTEMPTS",
		"queue.concurrency":             "FINX_QUEUE_CONCURRENCY",
		"queue.job_timeout_mins":        "FINX_QUEUE_JOB_TIMEOUT_MINS",
		"pipeline.small_max_pages":      "FINX_PIPELINE_SMALL_MAX_PAGES",
		"pipeline.large_max_pages":      "FINX_PIPELINE_LARGE_MAX_PAGES",
		"pipeline.max_pages_per_chunk":  "FINX_PIPELINE_MAX_PAGES_PER_CHUNK",
		"pipeline.batch_workers":        "FINX_PIPELINE_BATCH_WORKERS",
		"pipeline.page_concurrency":     "FINX_PIPELINE_PAGE_CONCURRENCY",
		"pipeline.progress_interval":    "FINX_PIPELINE_PROGRESS_INTERVAL",
		"pipeline.preview_dpi":          "FINX_PIPELINE_PREVIEW_DPI",
		"pipeline.vision_dpi":           "FINX_PIPELINE_VISION_DPI",
		"pipeline.ocr_dpi":              "FINX_PIPELINE_OCR_DPI",
		"pipeline.min_text_chars":       "FINX_PIPELINE_MIN_TEXT_CHARS",
		"pipeline.chunk_chars":          "FINX_PIPELINE_CHUNK_CHARS",
		"pipeline.max_prompt_chars":     "FINX_PIPELINE_MAX_PROMPT_CHARS",
		"pipeline.window_chars":         "FINX_PIPELINE_WINDOW_CHARS",
		"pipeline.poll_interval":        "FINX_PIPELINE_POLL_INTERVAL",
		"pipeline.poll_timeout":         "FINX_PIPELINE_POLL_TIMEOUT",
		"pipeline.staging_prefix":       "FINX_PIPELINE_STAGING_PREFIX",
		"pipeline.rule_based_fallback":  "FINX_PIPELINE_RULE_BASED_FALLBACK",
		"ocr.pdftoppm":                  "FINX_OCR_PDFTOPPM",
		"ocr.tesseract":                 "FINX_OCR_TESSERACT",
		"ocr.qpdf":                      "FINX_OCR_QPDF",
		"ocr.language":                  "FINX_OCR_LANGUAGE",
		"ocr.psm":                       "FINX_OCR_PSM",
		"ocr.enabled":                   "FINX_OCR_ENABLED",
		"textract.enabled":              "FINX_TEXTRACT_ENABLED",
		"textract.async":                "FINX_TEXTRACT_ASYNC",
		"textract.region":               "FINX_TEXTRACT_REGION",
		"model.primary.provider":        "FINX_MODEL_PRIMARY_PROVIDER",
		"model.primary.api_key":         "FINX_MODEL_PRIMARY_API_KEY",
		"model.primary.base_url":        "FINX_MODEL_PRIMARY_BASE_URL",
		"model.primary.default_model":   "FINX_MODEL_PRIMARY_DEFAULT_MODEL",
		"model.primary.max_retries":     "FINX_MODEL_PRIMARY_MAX_RETRIES",
		"model.primary.timeout_secs":    "FINX_MODEL_PRIMARY_TIMEOUT_SECS",
		"model.secondary.provider":      "FINX_MODEL_SECONDARY_PROVIDER",
		"model.secondary.api_key":       "FINX_MODEL_SECONDARY_API_KEY",
		"model.secondary.base_url":      "FINX_MODEL_SECONDARY_BASE_URL",
		"model.secondary.default_model": "FINX_MODEL_SECONDARY_DEFAULT_MODEL",
		"model.secondary.max_retries":   "FINX_MODEL_SECONDARY_MAX_RETRIES",
		"model.secondary.timeout_secs":  "FINX_MODEL_SECONDARY_TIMEOUT_SECS",
		"model.tertiary.provider":       "FINX_MODEL_TERTIARY_PROVIDER",
		"model.tertiary.api_key":        "FINX_MODEL_TERTIARY_API_KEY",
		"model.tertiary.base_url":       "FINX_MODEL_TERTIARY_BASE_URL",
		"model.tertiary.default_model":  "FINX_MODEL_TERTIARY_DEFAULT_MODEL",
		"model.tertiary.max_retries":    "FINX_MODEL_TERTIARY_MAX_RETRIES",
		"model.tertiary.timeout_secs":   "FINX_MODEL_TERTIARY_TIMEOUT_SECS",
		"model.requests_per_second":     "FINX_MODEL_REQUESTS_PER_SECOND",
		"model.burst":                   "FINX_MODEL_BURST",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if FINX_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("FINX_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:          serverPort,
		ReadTimeout:   v.GetDuration("server.read_timeout"),
		WriteTimeout:  v.GetDuration("server.write_timeout"),
		Environment:   v.GetString("server.environment"),
		MaxFileSizeMB: v.GetInt64("server.max_file_size_mb"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		StagingBucket: v.GetString("s3.staging_bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		PresignExpiry: v.GetInt64("s3.presign_expiry"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{AllowedOrigins: corsOrigins}

	cfg.Queue = QueueConfig{
		PollIntervalSecs: v.GetInt("queue.poll_interval_secs"),
		MaxAttempts:      v.GetInt("queue.max_attempts"),
		Concurrency:      v.GetInt("queue.concurrency"),
		JobTimeoutMins:   v.GetInt("queue.job_timeout_mins"),
	}

	cfg.Pipeline = PipelineConfig{
		SmallMaxPages:     v.GetInt("pipeline.small_max_pages"),
		LargeMaxPages:     v.GetInt("pipeline.large_max_pages"),
		MaxPagesPerChunk:  v.GetInt("pipeline.max_pages_per_chunk"),
		BatchWorkers:      v.GetInt("pipeline.batch_workers"),
		PageConcurrency:   v.GetInt("pipeline.page_concurrency"),
		ProgressInterval:  v.GetDuration("pipeline.progress_interval"),
		PreviewDPI:        v.GetInt("pipeline.preview_dpi"),
		VisionDPI:         v.GetInt("pipeline.vision_dpi"),
		OCRDPI:            v.GetInt("pipeline.ocr_dpi"),
		MinTextChars:      v.GetInt("pipeline.min_text_chars"),
		ChunkChars:        v.GetInt("pipeline.chunk_chars"),
		MaxPromptChars:    v.GetInt("pipeline.max_prompt_chars"),
		WindowChars:       v.GetInt("pipeline.window_chars"),
		PollInterval:      v.GetDuration("pipeline.poll_interval"),
		PollTimeout:       v.GetDuration("pipeline.poll_timeout"),
		StagingPrefix:     v.GetString("pipeline.staging_prefix"),
		RuleBasedFallback: v.GetBool("pipeline.rule_based_fallback"),
	}

	cfg.OCR = OCRConfig{
		Pdftoppm:  v.GetString("ocr.pdftoppm"),
		Tesseract: v.GetString("ocr.tesseract"),
		Qpdf:      v.GetString("ocr.qpdf"),
		Language:  v.GetString("ocr.language"),
		PSM:       v.GetInt("ocr.psm"),
		Enabled:   v.GetBool("ocr.enabled"),
	}

	cfg.Textract = TextractConfig{
		Enabled: v.GetBool("textract.enabled"),
		Async:   v.GetBool("textract.async"),
		Region:  v.GetString("textract.region"),
	}
	if cfg.Textract.Region == "" {
		cfg.Textract.Region = cfg.S3.Region
	}

	cfg.Model = ModelConfig{
		Primary:           providerConfig(v, "model.primary"),
		Secondary:         providerConfig(v, "model.secondary"),
		Tertiary:          providerConfig(v, "model.tertiary"),
		RequestsPerSecond: v.GetFloat64("model.requests_per_second"),
		Burst:             v.GetInt("model.burst"),
	}

	if cfg.Pipeline.SmallMaxPages >= cfg.Pipeline.LargeMaxPages {
		return nil, fmt.Errorf("pipeline.small_max_pages (%d) must be below pipeline.large_max_pages (%d)",
			cfg.Pipeline.SmallMaxPages, cfg.Pipeline.LargeMaxPages)
	}

	return cfg, nil
}

func providerConfig(v *viper.Viper, prefix string) ModelProviderConfig {
	return ModelProviderConfig{
		Provider:     v.GetString(prefix + ".provider"),
		APIKey:       v.GetString(prefix + ".api_key"),
		BaseURL:      v.GetString(prefix + ".base_url"),
		DefaultModel: v.GetString(prefix + ".default_model"),
		MaxRetries:   v.GetInt(prefix + ".max_retries"),
		TimeoutSecs:  v.GetInt(prefix + ".timeout_secs"),
	}
}
