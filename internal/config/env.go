package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Dispatch modes for handing scrape jobs to the worker.
const (
	DispatchRedis     = "redis"
	DispatchWorkflows = "workflows"
	DispatchHTTP      = "http"
)

// AI providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	DatabaseURL    string
	AwsAccessKey   string
	AwsSecretKey   string
	AwsRegion      string
	BucketName     string
	JWTSecret      string
	AllowedOrigins []string
	ListenAddr     string
	MetricsAddr    string

	// Embedding / generation
	EmbedProvider  string
	EmbedModel     string
	EmbedDim       int
	EmbedTimeout   time.Duration
	GenProvider    string
	GenModel       string
	GenTemperature float32
	GenTimeout     time.Duration
	GeminiAPIKey   string
	OpenAIAPIKey   string
	OpenAIBaseURL  string

	// Pipeline
	ChunkWords        int
	MatchCount        int
	IngestWorkers     int
	IngestQueueSize   int
	IngestBatchSize   int
	ProcessingLease   time.Duration
	DownloadTimeout   time.Duration
	ProcessingTimeout time.Duration

	// Scrape dispatch
	DispatchMode     string
	ScrapeJobName    string
	RedisURL         string
	ScrapeQueue      string
	WorkflowProject  string
	WorkflowLocation string
	WorkflowID       string
	WorkerBaseURL    string
	WorkerToken      string

	// Scraper worker
	ScrapeMaxPages     int
	ScrapeMaxBytes     int
	ScrapeRatePerSec   float64
	ScrapeWorkers      int
	ScrapeFetchTimeout time.Duration
	ScrapeTimeout      time.Duration
	ScrapeStaleAfter   time.Duration
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		BucketName:     getEnv("BUCKET_NAME", "cadence-docs"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr:    getEnv("METRICS_ADDR", ":2112"),

		EmbedProvider:  getEnv("EMBED_PROVIDER", ProviderOpenAI),
		EmbedModel:     getEnv("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDim:       getEnvInt("EMBED_DIM", 1536),
		EmbedTimeout:   getEnvDuration("EMBED_TIMEOUT", 30*time.Second),
		GenProvider:    getEnv("GEN_PROVIDER", ProviderOpenAI),
		GenModel:       getEnv("GEN_MODEL", "gpt-4o-mini"),
		GenTemperature: float32(getEnvFloat("GEN_TEMPERATURE", 0.7)),
		GenTimeout:     getEnvDuration("GEN_TIMEOUT", 90*time.Second),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		ChunkWords:        getEnvInt("CHUNK_WORDS", 400),
		MatchCount:        getEnvInt("MATCH_COUNT", 8),
		IngestWorkers:     getEnvInt("INGEST_WORKERS", 2),
		IngestQueueSize:   getEnvInt("INGEST_QUEUE_SIZE", 64),
		IngestBatchSize:   getEnvInt("INGEST_BATCH_SIZE", 16),
		ProcessingLease:   getEnvDuration("PROCESSING_LEASE", 30*time.Minute),
		DownloadTimeout:   getEnvDuration("DOWNLOAD_TIMEOUT", 2*time.Minute),
		ProcessingTimeout: getEnvDuration("PROCESSING_TIMEOUT", 20*time.Minute),

		DispatchMode:     getEnv("DISPATCH_MODE", DispatchRedis),
		ScrapeJobName:    getEnv("SCRAPE_JOB_NAME", "scrape-website"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		ScrapeQueue:      getEnv("SCRAPE_QUEUE", "cadence:scrape-jobs"),
		WorkflowProject:  getEnv("WORKFLOW_PROJECT", ""),
		WorkflowLocation: getEnv("WORKFLOW_LOCATION", "us-central1"),
		WorkflowID:       getEnv("WORKFLOW_ID", ""),
		WorkerBaseURL:    getEnv("WORKER_BASE_URL", ""),
		WorkerToken:      getEnv("WORKER_TOKEN", ""),

		ScrapeMaxPages:     getEnvInt("SCRAPE_MAX_PAGES", 25),
		ScrapeMaxBytes:     getEnvInt("SCRAPE_MAX_BYTES", 1500000),
		ScrapeRatePerSec:   getEnvFloat("SCRAPE_RATE_PER_SEC", 2),
		ScrapeWorkers:      getEnvInt("SCRAPE_WORKERS", 2),
		ScrapeFetchTimeout: getEnvDuration("SCRAPE_FETCH_TIMEOUT", 20*time.Second),
		ScrapeTimeout:      getEnvDuration("SCRAPE_TIMEOUT", 30*time.Minute),
		ScrapeStaleAfter:   getEnvDuration("SCRAPE_STALE_AFTER", time.Hour),
	}

	return cfg
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET not set")
	}
	for name, provider := range map[string]string{"EMBED_PROVIDER": c.EmbedProvider, "GEN_PROVIDER": c.GenProvider} {
		switch provider {
		case ProviderGemini:
			if c.GeminiAPIKey == "" {
				return fmt.Errorf("%s=%s requires GEMINI_API_KEY", name, provider)
			}
		case ProviderOpenAI:
			if c.OpenAIAPIKey == "" {
				return fmt.Errorf("%s=%s requires OPENAI_API_KEY", name, provider)
			}
		default:
			return fmt.Errorf("%s=%q is not supported", name, provider)
		}
	}
	switch c.DispatchMode {
	case DispatchRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("DISPATCH_MODE=redis requires REDIS_URL")
		}
	case DispatchWorkflows:
		if c.WorkflowProject == "" || c.WorkflowID == "" {
			return fmt.Errorf("DISPATCH_MODE=workflows requires WORKFLOW_PROJECT and WORKFLOW_ID")
		}
	case DispatchHTTP:
		if c.WorkerBaseURL == "" {
			return fmt.Errorf("DISPATCH_MODE=http requires WORKER_BASE_URL")
		}
	default:
		return fmt.Errorf("DISPATCH_MODE=%q is not supported", c.DispatchMode)
	}
	if c.ChunkWords <= 0 || c.MatchCount <= 0 {
		return fmt.Errorf("CHUNK_WORDS and MATCH_COUNT must be positive")
	}
	// A run that outlives its lease can be taken over while still writing.
	if c.ProcessingTimeout >= c.ProcessingLease {
		return fmt.Errorf("PROCESSING_TIMEOUT (%s) must be shorter than PROCESSING_LEASE (%s)", c.ProcessingTimeout, c.ProcessingLease)
	}
	if c.ScrapeTimeout >= c.ScrapeStaleAfter {
		return fmt.Errorf("SCRAPE_TIMEOUT (%s) must be shorter than SCRAPE_STALE_AFTER (%s)", c.ScrapeTimeout, c.ScrapeStaleAfter)
	}
	return nil
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("%s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warnf("%s=%q not a number, using default %v", key, v, def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warnf("%s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
