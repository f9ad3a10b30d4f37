package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/metrics"
	"github.com/markdave123-py/Cadence/internal/models"
)

// ChunkTarget says who owns the chunks a writer produces.
type ChunkTarget struct {
	TenantID string
	ClientID string
	Owner    core.ChunkOwner
	RunID    string
}

// ChunkWriter embeds chunks one at a time, in order, and persists them in
// transactional batches. Document ingestion and the scrape worker share it.
type ChunkWriter struct {
	store        core.ChunkStore
	embedder     core.EmbeddingProvider
	batchSize    int
	embedDim     int
	embedTimeout time.Duration
	source       string
}

func NewChunkWriter(store core.ChunkStore, embedder core.EmbeddingProvider, batchSize, embedDim int, embedTimeout time.Duration, source string) *ChunkWriter {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &ChunkWriter{
		store:        store,
		embedder:     embedder,
		batchSize:    batchSize,
		embedDim:     embedDim,
		embedTimeout: embedTimeout,
		source:       source,
	}
}

// Consume drains in, embedding each chunk before reading the next, and
// returns how many chunks were persisted. Any embed or write error stops
// the run; rows already flushed stay tagged with target.RunID for cleanup.
func (w *ChunkWriter) Consume(ctx context.Context, target ChunkTarget, in <-chan Chunk) (int, error) {
	batch := make([]models.DocumentChunk, 0, w.batchSize)
	stored := 0
	dim := w.embedDim

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.store.InsertDocumentChunks(ctx, batch); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		stored += len(batch)
		metrics.ChunksStored.WithLabelValues(w.source).Add(float64(len(batch)))
		batch = batch[:0]
		return nil
	}

	for c := range in {
		vec, err := w.embed(ctx, c.Text)
		if err != nil {
			return stored, fmt.Errorf("embed chunk %d: %w", c.Position, err)
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			return stored, fmt.Errorf("embed chunk %d: %w: got %d dimensions, want %d",
				c.Position, core.ErrEmbeddingFailure, len(vec), dim)
		}

		row := models.DocumentChunk{
			ID:             uuid.NewString(),
			TenantID:       target.TenantID,
			ClientID:       target.ClientID,
			RunID:          target.RunID,
			Position:       c.Position,
			Content:        c.Text,
			Embedding:      vec,
			EmbeddingModel: w.embedder.ModelName(),
		}
		if target.Owner.DocumentID != "" {
			row.DocumentID = &target.Owner.DocumentID
		} else {
			row.WebSourceID = &target.Owner.WebSourceID
		}
		batch = append(batch, row)

		if len(batch) == w.batchSize {
			if err := flush(); err != nil {
				return stored, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return stored, err
	}
	if err := flush(); err != nil {
		return stored, err
	}
	return stored, nil
}

// Write persists a fixed list of chunks through Consume.
func (w *ChunkWriter) Write(ctx context.Context, target ChunkTarget, chunks []Chunk) (int, error) {
	in := make(chan Chunk, len(chunks))
	for _, c := range chunks {
		in <- c
	}
	close(in)
	return w.Consume(ctx, target, in)
}

func (w *ChunkWriter) embed(ctx context.Context, text string) ([]float32, error) {
	if w.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.embedTimeout)
		defer cancel()
	}
	model := w.embedder.ModelName()
	vec, err := w.embedder.EmbedText(ctx, text)
	if err != nil {
		metrics.EmbeddingCalls.WithLabelValues(model, metrics.ResultError).Inc()
		log.WithError(err).WithField("model", model).Debug("embedding call failed")
		return nil, err
	}
	metrics.EmbeddingCalls.WithLabelValues(model, metrics.ResultSuccess).Inc()
	return vec, nil
}
