package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/metrics"
	"github.com/markdave123-py/Cadence/internal/models"
)

const cleanupTimeout = 30 * time.Second

// NewDocumentIngestor constructs the ingestor with a bounded job queue.
func NewDocumentIngestor(db IngestStore, obj core.ObjectClient, emb core.EmbeddingProvider, extractor core.DocumentExtractor, cfg *IngestConfig) *DocumentIngestor {
	if cfg == nil {
		cfg = &IngestConfig{}
	}
	cfg = cfg.withDefaults()
	return &DocumentIngestor{
		db:        db,
		obj:       obj,
		embedder:  emb,
		extractor: extractor,
		writer:    NewChunkWriter(db, emb, cfg.BatchSize, cfg.EmbedDim, cfg.EmbedTimeout, "document"),
		cfg:       cfg,
		jobs:      make(chan Job, cfg.QueueSize),
	}
}

// Start runs numWorkers goroutines reading from the job queue until ctx is
// cancelled.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for w := 1; w <= numWorkers; w++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job := <-i.jobs:
					logger := log.WithFields(log.Fields{"document": job.DocumentID, "worker": w})
					logger.Info("processing document")
					if err := i.ProcessDocument(gctx, job.DocumentID, job.Auth); err != nil {
						logger.WithError(err).Warn("document processing failed")
					}
				}
			}
		})
	}
	go func() {
		_ = g.Wait()
		log.Info("document ingestor workers stopped")
	}()
}

// Enqueue schedules a document for background processing. It blocks while
// the queue is full, until ctx is done.
func (i *DocumentIngestor) Enqueue(ctx context.Context, job Job) error {
	if job.DocumentID == "" {
		return core.Validationf("documentId is required")
	}
	select {
	case i.jobs <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue document %s: %w", job.DocumentID, ctx.Err())
	}
}

// ProcessDocument runs one document through the pipeline under a fresh
// claim. A concurrent call for the same document gets ErrAlreadyProcessing.
// Any failure after the claim removes this run's chunks and marks the
// document failed with the error.
func (i *DocumentIngestor) ProcessDocument(ctx context.Context, documentID string, auth models.AuthContext) error {
	if documentID == "" {
		return core.Validationf("documentId is required")
	}
	if auth.TenantID == "" {
		return fmt.Errorf("process document: %w", core.ErrUnauthorized)
	}

	doc, err := i.db.GetDocument(ctx, auth.TenantID, documentID)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := log.WithFields(log.Fields{"document": doc.ID, "client": doc.ClientID, "run": runID})

	claimed, err := i.db.ClaimDocument(ctx, doc.ID, runID, i.cfg.Lease)
	if err != nil {
		return fmt.Errorf("claim document %s: %w", doc.ID, err)
	}
	if !claimed {
		metrics.DocumentsProcessed.WithLabelValues("rejected").Inc()
		return fmt.Errorf("document %s: %w", doc.ID, core.ErrAlreadyProcessing)
	}

	start := time.Now()
	stored, err := i.run(ctx, doc, runID)
	if err != nil {
		i.fail(ctx, doc, runID, err)
		metrics.DocumentsProcessed.WithLabelValues(string(models.DocumentFailed)).Inc()
		logger.WithError(err).Warn("document ingestion failed")
		return fmt.Errorf("ingest document %s: %w: %w", doc.ID, core.ErrIngestionFailure, err)
	}

	completed, err := i.db.CompleteDocument(ctx, doc.ID, runID)
	if err != nil {
		i.fail(ctx, doc, runID, err)
		metrics.DocumentsProcessed.WithLabelValues(string(models.DocumentFailed)).Inc()
		return fmt.Errorf("complete document %s: %w: %w", doc.ID, core.ErrIngestionFailure, err)
	}
	if !completed {
		// A newer run took the claim over; its chunks are the ones to keep.
		i.discard(ctx, doc, runID)
		metrics.DocumentsProcessed.WithLabelValues("superseded").Inc()
		logger.Warn("claim taken over before completion, discarding this run")
		return fmt.Errorf("document %s: claim lost: %w", doc.ID, core.ErrAlreadyProcessing)
	}

	metrics.DocumentsProcessed.WithLabelValues(string(models.DocumentReady)).Inc()
	logger.WithFields(log.Fields{"chunks": stored, "elapsed": time.Since(start).String()}).Info("document ready")
	return nil
}

// run downloads, extracts, chunks, embeds and persists. It returns the number
// of stored chunks.
func (i *DocumentIngestor) run(ctx context.Context, doc *models.Document, runID string) (int, error) {
	procCtx, cancel := context.WithTimeout(ctx, i.cfg.ProcessingTimeout)
	defer cancel()

	dlCtx, dlCancel := context.WithTimeout(procCtx, i.cfg.DownloadTimeout)
	data, err := i.obj.Download(dlCtx, doc.StoragePath)
	dlCancel()
	if err != nil {
		if !errors.Is(err, core.ErrStorageFailure) {
			err = fmt.Errorf("%w: %w", core.ErrStorageFailure, err)
		}
		return 0, fmt.Errorf("download %s: %w", doc.StoragePath, err)
	}

	text, err := i.extractor.ExtractText(procCtx, data, doc.FileType)
	if err != nil {
		return 0, fmt.Errorf("extract text: %w", err)
	}

	texts := ChunkWords(text, i.cfg.ChunkWords)
	if len(texts) == 0 {
		return 0, errors.New("no extractable text")
	}

	target := ChunkTarget{
		TenantID: doc.TenantID,
		ClientID: doc.ClientID,
		Owner:    core.ChunkOwner{DocumentID: doc.ID},
		RunID:    runID,
	}

	// chunks -> embed + persist, tied together so either side failing stops both.
	g, gctx := errgroup.WithContext(procCtx)
	chunkCh := streamChunks(gctx, g, texts, 0)
	var stored int
	g.Go(func() error {
		n, err := i.writer.Consume(gctx, target, chunkCh)
		stored = n
		return err
	})
	if err := g.Wait(); err != nil {
		return stored, err
	}
	return stored, nil
}

// fail cleans up after a failed run. It uses a context detached from the
// caller's so a cancelled request still leaves the document consistent.
func (i *DocumentIngestor) fail(ctx context.Context, doc *models.Document, runID string, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	logger := log.WithFields(log.Fields{"document": doc.ID, "run": runID})
	if err := i.db.DeleteRunChunks(cctx, core.ChunkOwner{DocumentID: doc.ID}, runID); err != nil {
		logger.WithError(err).Error("could not delete chunks of failed run")
	}
	if err := i.db.MarkDocumentFailed(cctx, doc.ID, runID, cause.Error()); err != nil {
		logger.WithError(err).Error("could not mark document failed")
	}
}

// discard removes this run's chunks without touching the document row.
func (i *DocumentIngestor) discard(ctx context.Context, doc *models.Document, runID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := i.db.DeleteRunChunks(cctx, core.ChunkOwner{DocumentID: doc.ID}, runID); err != nil {
		log.WithError(err).WithFields(log.Fields{"document": doc.ID, "run": runID}).Error("could not delete chunks of superseded run")
	}
}
