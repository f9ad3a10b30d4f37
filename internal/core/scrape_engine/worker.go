package scrape_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/Cadence/internal/core"
	ingest "github.com/markdave123-py/Cadence/internal/core/ingestion_engine"
	"github.com/markdave123-py/Cadence/internal/metrics"
	"github.com/markdave123-py/Cadence/internal/models"
)

// WorkerStore is the elevated persistence the scraper worker writes through.
type WorkerStore interface {
	core.WebSourceStore
	core.ChunkStore
}

// Worker executes scrape jobs: it owns the pending -> scraping -> terminal
// transitions of the row it was handed.
type Worker struct {
	store      WorkerStore
	crawler    *Crawler
	writer     *ingest.ChunkWriter
	chunkWords int
	timeout    time.Duration
}

func NewWorker(store WorkerStore, crawler *Crawler, writer *ingest.ChunkWriter, chunkWords int, timeout time.Duration) *Worker {
	if chunkWords <= 0 {
		chunkWords = ingest.DefaultChunkWords
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Worker{store: store, crawler: crawler, writer: writer, chunkWords: chunkWords, timeout: timeout}
}

// errClaimLost stops a crawl whose row was requeued under another run.
var errClaimLost = errors.New("web source taken over by a newer run")

// Handle runs one job. A job whose row is not pending anymore was already
// picked up by another delivery and is ignored.
func (w *Worker) Handle(ctx context.Context, job core.ScrapeJob) error {
	if job.SourceID == "" {
		return core.Validationf("sourceId is required")
	}
	ws, err := w.store.GetWebSource(ctx, job.SourceID)
	if err != nil {
		return err
	}
	if job.ClientID != "" && job.ClientID != ws.ClientID {
		return core.Validationf("job client %s does not own web source %s", job.ClientID, ws.ID)
	}

	logger := log.WithFields(log.Fields{"web_source": ws.ID, "client": ws.ClientID, "seed": ws.SeedURL})

	runID := uuid.NewString()
	started, err := w.store.StartWebSource(ctx, ws.ID, runID)
	if err != nil {
		return err
	}
	if !started {
		logger.WithField("status", ws.Status).Info("web source not pending, skipping duplicate delivery")
		return nil
	}
	logger = logger.WithField("run", runID)
	logger.Info("scrape started")

	pages, chunks, crawlErr := w.crawl(ctx, ws, runID)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	owner := core.ChunkOwner{WebSourceID: ws.ID}

	if errors.Is(crawlErr, errClaimLost) {
		w.discard(cctx, owner, runID, logger)
		logger.Warn("web source requeued while scraping, abandoning run")
		return fmt.Errorf("scrape %s: %w", ws.ID, core.ErrAlreadyProcessing)
	}
	if crawlErr == nil && pages == 0 {
		crawlErr = errors.New("no pages with text were found")
	}
	if crawlErr != nil {
		w.discard(cctx, owner, runID, logger)
		if _, err := w.store.FinishWebSource(cctx, ws.ID, runID, models.WebSourceFailed, crawlErr.Error()); err != nil {
			logger.WithError(err).Error("could not mark web source failed")
		}
		metrics.ScrapeRuns.WithLabelValues(string(models.WebSourceFailed)).Inc()
		logger.WithError(crawlErr).Warn("scrape failed")
		return fmt.Errorf("scrape %s: %w", ws.ID, crawlErr)
	}

	completed, err := w.store.FinishWebSource(cctx, ws.ID, runID, models.WebSourceCompleted, "")
	if err != nil {
		return err
	}
	if !completed {
		w.discard(cctx, owner, runID, logger)
		logger.Warn("web source requeued before completion, abandoning run")
		return fmt.Errorf("scrape %s: %w", ws.ID, core.ErrAlreadyProcessing)
	}
	metrics.ScrapeRuns.WithLabelValues(string(models.WebSourceCompleted)).Inc()
	logger.WithFields(log.Fields{"pages": pages, "chunks": chunks}).Info("scrape completed")
	return nil
}

func (w *Worker) discard(ctx context.Context, owner core.ChunkOwner, runID string, logger *log.Entry) {
	if err := w.store.DeleteRunChunks(ctx, owner, runID); err != nil {
		logger.WithError(err).Error("could not delete chunks of abandoned scrape")
	}
}

func (w *Worker) crawl(ctx context.Context, ws *models.WebSource, runID string) (int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	target := ingest.ChunkTarget{
		TenantID: ws.TenantID,
		ClientID: ws.ClientID,
		Owner:    core.ChunkOwner{WebSourceID: ws.ID},
		RunID:    runID,
	}
	pages, position := 0, 0

	err := w.crawler.Crawl(ctx, ws.SeedURL, func(p Page) error {
		texts := ingest.ChunkWords(p.Text, w.chunkWords)
		if len(texts) == 0 {
			return nil
		}
		chunks := make([]ingest.Chunk, len(texts))
		for i, t := range texts {
			chunks[i] = ingest.Chunk{Position: position + i, Text: t}
		}
		n, err := w.writer.Write(ctx, target, chunks)
		if err != nil {
			return fmt.Errorf("store %s: %w", p.URL, err)
		}
		position += n
		pages++
		owned, err := w.store.UpdateWebSourceProgress(ctx, ws.ID, runID, pages, p.URL)
		if err != nil {
			log.WithError(err).WithField("web_source", ws.ID).Warn("could not record progress")
			return nil
		}
		if !owned {
			return errClaimLost
		}
		return nil
	})
	return pages, position, err
}
