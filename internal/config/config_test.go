package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finextract/internal/config"
)

func TestModelConfig_Providers_Order(t *testing.T) {
	cfg := config.ModelConfig{
		Primary:   config.ModelProviderConfig{Provider: "claude"},
		Secondary: config.ModelProviderConfig{Provider: "gemini"},
		Tertiary:  config.ModelProviderConfig{Provider: "ollama"},
	}

	providers := cfg.Providers()
	require.Len(t, providers, 3)
	assert.Equal(t, "claude", providers[0].Provider)
	assert.Equal(t, "gemini", providers[1].Provider)
	assert.Equal(t, "ollama", providers[2].Provider)
}

func TestModelConfig_Providers_SkipsUnset(t *testing.T) {
	cfg := config.ModelConfig{
		Primary:  config.ModelProviderConfig{Provider: "openai"},
		Tertiary: config.ModelProviderConfig{Provider: "ollama"},
	}

	providers := cfg.Providers()
	require.Len(t, providers, 2)
	assert.Equal(t, "openai", providers[0].Provider)
	assert.Equal(t, "ollama", providers[1].Provider)
}

func TestModelConfig_Providers_NoneConfigured(t *testing.T) {
	cfg := config.ModelConfig{}
	assert.Empty(t, cfg.Providers())
}

func TestS3Config_Staging(t *testing.T) {
	s := config.S3Config{Bucket: "uploads"}
	assert.Equal(t, "uploads", s.Staging())

	s.StagingBucket = "scratch"
	assert.Equal(t, "scratch", s.Staging())
}

func TestDBConfig_DSN(t *testing.T) {
	d := config.DBConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", Name: "fin", SSLMode: "require",
	}
	assert.Equal(t, "postgres://u:p@db:5433/fin?sslmode=require", d.DSN())
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10, cfg.Pipeline.SmallMaxPages)
	assert.Equal(t, 100, cfg.Pipeline.LargeMaxPages)
	assert.Equal(t, 50, cfg.Pipeline.MaxPagesPerChunk)
	assert.Equal(t, time.Hour, cfg.Pipeline.PollTimeout)
	assert.Equal(t, "ollama", cfg.Model.Primary.Provider)
	assert.Equal(t, cfg.S3.Region, cfg.Textract.Region)
	assert.Equal(t, []string{"http://localhost:3000", "http://127.0.0.1:3000"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("FINX_PIPELINE_SMALL_MAX_PAGES", "5")
	t.Setenv("FINX_PIPELINE_POLL_INTERVAL", "250ms")
	t.Setenv("FINX_MODEL_SECONDARY_PROVIDER", "gemini")
	t.Setenv("FINX_TEXTRACT_REGION", "eu-west-1")
	t.Setenv("FINX_CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Pipeline.SmallMaxPages)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.PollInterval)
	assert.Equal(t, "eu-west-1", cfg.Textract.Region)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)

	providers := cfg.Model.Providers()
	require.Len(t, providers, 2)
	assert.Equal(t, "gemini", providers[1].Provider)
}

func TestLoad_PlatformPort(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FINX_SERVER_PORT", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Port)
}

func TestLoad_RejectsInvertedThresholds(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("FINX_PIPELINE_SMALL_MAX_PAGES", "100")
	t.Setenv("FINX_PIPELINE_LARGE_MAX_PAGES", "100")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "small_max_pages")
}
