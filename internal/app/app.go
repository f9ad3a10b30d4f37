package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/Cadence/internal/config"
	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/core/conversation"
	db "github.com/markdave123-py/Cadence/internal/core/database"
	"github.com/markdave123-py/Cadence/internal/core/dispatch"
	ingest "github.com/markdave123-py/Cadence/internal/core/ingestion_engine"
	"github.com/markdave123-py/Cadence/internal/core/llm"
	objectclient "github.com/markdave123-py/Cadence/internal/core/object-client"
	"github.com/markdave123-py/Cadence/internal/core/rag"
	scrape "github.com/markdave123-py/Cadence/internal/core/scrape_engine"
	"github.com/markdave123-py/Cadence/internal/services"
)

// App holds the API process's components.
type App struct {
	Config        *config.Config
	DBClient      *db.DatabaseClient
	ObjectClient  *objectclient.S3Client
	Dispatcher    dispatch.Dispatcher
	Ingestor      *ingest.DocumentIngestor
	Orchestrator  *scrape.Orchestrator
	Generator     *rag.Generator
	Conversations *conversation.Store
	Documents     *services.DocumentService
	Users         *services.UserService

	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient.Close)
	log.Info("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.ObjectClient = objClient
	log.Info("Object client initialized and ready.")

	embedder, closeEmbedder, err := newEmbedder(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	a.closers = append(a.closers, closeEmbedder)

	llmProvider, closeLLM, err := newLLM(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the generation model, %w", err)
	}
	a.closers = append(a.closers, closeLLM)

	dispatcher, err := dispatch.New(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the job dispatcher, %w", err)
	}
	a.Dispatcher = dispatcher
	a.closers = append(a.closers, dispatcher.Close)
	log.WithField("mode", cfg.DispatchMode).Info("Scrape dispatcher initialized.")

	a.Ingestor = ingest.NewDocumentIngestor(dbClient, objClient, embedder, ingest.NewDocconvExtractor(), &ingest.IngestConfig{
		ChunkWords:        cfg.ChunkWords,
		BatchSize:         cfg.IngestBatchSize,
		EmbedDim:          cfg.EmbedDim,
		Lease:             cfg.ProcessingLease,
		DownloadTimeout:   cfg.DownloadTimeout,
		EmbedTimeout:      cfg.EmbedTimeout,
		ProcessingTimeout: cfg.ProcessingTimeout,
		QueueSize:         cfg.IngestQueueSize,
	})
	a.Orchestrator = scrape.NewOrchestrator(dbClient, dispatcher, cfg.ScrapeJobName, cfg.ScrapeStaleAfter)
	a.Conversations = conversation.NewStore(dbClient.Messages())
	a.Generator = rag.NewGenerator(dbClient, embedder, llmProvider, a.Conversations, rag.Config{
		TopK:         cfg.MatchCount,
		EmbedTimeout: cfg.EmbedTimeout,
		GenTimeout:   cfg.GenTimeout,
	})
	a.Documents = services.NewDocumentService(dbClient, objClient, a.Ingestor)
	a.Users = services.NewUserService(dbClient)

	ok = true
	return a, nil
}

// WorkerApp holds the scrape worker process's components.
type WorkerApp struct {
	Config   *config.Config
	DBClient *db.DatabaseClient
	Worker   *scrape.Worker
	// Queue is set when jobs arrive over redis.
	Queue *dispatch.RedisQueue

	closers []func() error
}

func NewWorkerApp(ctx context.Context, cfg *config.Config) (*WorkerApp, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	w := &WorkerApp{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			w.Close()
		}
	}()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	w.DBClient = dbClient
	w.closers = append(w.closers, dbClient.Close)

	embedder, closeEmbedder, err := newEmbedder(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	w.closers = append(w.closers, closeEmbedder)

	crawler := scrape.NewCrawler(scrape.CrawlerConfig{
		MaxPages:     cfg.ScrapeMaxPages,
		MaxBytes:     cfg.ScrapeMaxBytes,
		RatePerSec:   cfg.ScrapeRatePerSec,
		FetchTimeout: cfg.ScrapeFetchTimeout,
	}, &http.Client{Timeout: cfg.ScrapeFetchTimeout})
	writer := ingest.NewChunkWriter(dbClient, embedder, cfg.IngestBatchSize, cfg.EmbedDim, cfg.EmbedTimeout, "web")
	w.Worker = scrape.NewWorker(dbClient, crawler, writer, cfg.ChunkWords, cfg.ScrapeTimeout)

	if cfg.DispatchMode == config.DispatchRedis {
		q, err := dispatch.NewRedisQueue(cfg.RedisURL, cfg.ScrapeQueue)
		if err != nil {
			return nil, err
		}
		w.Queue = q
		w.closers = append(w.closers, q.Close)
	}

	ok = true
	return w, nil
}

func noopClose() error { return nil }

func newEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, func() error, error) {
	switch cfg.EmbedProvider {
	case config.ProviderGemini:
		e, err := llm.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, nil, err
		}
		return e, e.Close, nil
	case config.ProviderOpenAI:
		return llm.NewOpenAIEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbedModel, cfg.EmbedTimeout), noopClose, nil
	}
	return nil, nil, fmt.Errorf("unknown embed provider %q", cfg.EmbedProvider)
}

func newLLM(ctx context.Context, cfg *config.Config) (core.LLMProvider, func() error, error) {
	switch cfg.GenProvider {
	case config.ProviderGemini:
		g, err := llm.NewGeminiLLM(ctx, cfg.GeminiAPIKey, cfg.GenModel, cfg.GenTemperature)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	case config.ProviderOpenAI:
		return llm.NewOpenAILLM(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.GenModel, cfg.GenTemperature), noopClose, nil
	}
	return nil, nil, fmt.Errorf("unknown generation provider %q", cfg.GenProvider)
}

func closeAll(closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			log.WithError(err).Warn("error releasing resource")
		}
	}
}

func (a *App) Close() {
	closeAll(a.closers)
	a.closers = nil
}

func (w *WorkerApp) Close() {
	closeAll(w.closers)
	w.closers = nil
}
