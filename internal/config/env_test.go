package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DatabaseURL:   "postgres://localhost/cadence",
		JWTSecret:     "secret",
		EmbedProvider: ProviderOpenAI,
		GenProvider:   ProviderOpenAI,
		OpenAIAPIKey:  "sk-test",
		DispatchMode:  DispatchRedis,
		RedisURL:      "redis://localhost:6379/0",
		ChunkWords:    400,
		MatchCount:    8,

		ProcessingTimeout: 20 * time.Minute,
		ProcessingLease:   30 * time.Minute,
		ScrapeTimeout:     30 * time.Minute,
		ScrapeStaleAfter:  time.Hour,
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CHUNK_WORDS", "")
	t.Setenv("MATCH_COUNT", "")

	cfg := LoadConfig()
	assert.Equal(t, 400, cfg.ChunkWords)
	assert.Equal(t, 8, cfg.MatchCount)
	assert.Less(t, cfg.ProcessingTimeout, cfg.ProcessingLease)
	assert.Less(t, cfg.ScrapeTimeout, cfg.ScrapeStaleAfter)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("CHUNK_WORDS", "250")
	t.Setenv("GEN_TEMPERATURE", "0.2")
	t.Setenv("PROCESSING_LEASE", "5m")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com,")
	t.Setenv("DISPATCH_MODE", DispatchWorkflows)
	t.Setenv("SCRAPE_JOB_NAME", "crawl")

	cfg := LoadConfig()
	assert.Equal(t, 250, cfg.ChunkWords)
	assert.InDelta(t, 0.2, cfg.GenTemperature, 1e-6)
	assert.Equal(t, 5*time.Minute, cfg.ProcessingLease)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, DispatchWorkflows, cfg.DispatchMode)
	assert.Equal(t, "crawl", cfg.ScrapeJobName)
}

func TestLoadConfigBadValuesFallBack(t *testing.T) {
	t.Setenv("INGEST_WORKERS", "many")
	t.Setenv("EMBED_TIMEOUT", "soon")
	t.Setenv("SCRAPE_RATE_PER_SEC", "fast")

	cfg := LoadConfig()
	assert.Equal(t, 2, cfg.IngestWorkers)
	assert.Equal(t, 30*time.Second, cfg.EmbedTimeout)
	assert.InDelta(t, 2.0, cfg.ScrapeRatePerSec, 1e-9)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"no database", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"no jwt secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"gemini without key", func(c *Config) { c.EmbedProvider = ProviderGemini }, "GEMINI_API_KEY"},
		{"openai without key", func(c *Config) { c.OpenAIAPIKey = "" }, "OPENAI_API_KEY"},
		{"unknown provider", func(c *Config) { c.GenProvider = "llama" }, "not supported"},
		{"workflows without target", func(c *Config) { c.DispatchMode = DispatchWorkflows }, "WORKFLOW_PROJECT"},
		{"http without url", func(c *Config) { c.DispatchMode = DispatchHTTP }, "WORKER_BASE_URL"},
		{"unknown dispatch", func(c *Config) { c.DispatchMode = "carrier-pigeon" }, "not supported"},
		{"zero chunk words", func(c *Config) { c.ChunkWords = 0 }, "CHUNK_WORDS"},
		{"processing outlives lease", func(c *Config) { c.ProcessingTimeout = c.ProcessingLease }, "PROCESSING_LEASE"},
		{"scrape outlives stale window", func(c *Config) { c.ScrapeTimeout = 2 * time.Hour }, "SCRAPE_STALE_AFTER"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}
