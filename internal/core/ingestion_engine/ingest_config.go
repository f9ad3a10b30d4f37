package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/models"
)

// IngestConfig tunes the pipeline.
//
// ChunkWords:        words per chunk (400).
// BatchSize:         embedded chunks written per transaction (16).
// EmbedDim:          expected vector length; 0 accepts whatever the model returns.
// Lease:             age after which a processing claim may be taken over.
// DownloadTimeout:   bound on fetching the blob.
// EmbedTimeout:      bound on each embedding call.
// ProcessingTimeout: bound on one whole run.
// QueueSize:         capacity of the background job queue.
type IngestConfig struct {
	ChunkWords        int
	BatchSize         int
	EmbedDim          int
	Lease             time.Duration
	DownloadTimeout   time.Duration
	EmbedTimeout      time.Duration
	ProcessingTimeout time.Duration
	QueueSize         int
}

func (c *IngestConfig) withDefaults() *IngestConfig {
	out := *c
	if out.ChunkWords <= 0 {
		out.ChunkWords = DefaultChunkWords
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 16
	}
	if out.Lease <= 0 {
		out.Lease = 30 * time.Minute
	}
	if out.DownloadTimeout <= 0 {
		out.DownloadTimeout = 2 * time.Minute
	}
	if out.EmbedTimeout <= 0 {
		out.EmbedTimeout = 30 * time.Second
	}
	if out.ProcessingTimeout <= 0 {
		out.ProcessingTimeout = 20 * time.Minute
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 64
	}
	return &out
}

// Job is one queued request to process a document on behalf of a caller.
type Job struct {
	DocumentID string
	Auth       models.AuthContext
}

// IngestStore is the persistence the ingestor needs.
type IngestStore interface {
	core.DocumentStore
	core.ChunkStore
}

// DocumentIngestor drives documents through download, extraction, chunking,
// embedding and persistence.
//
// db:        documents and chunks.
// obj:       blob download.
// embedder:  embedding provider (Gemini/OpenAI).
// extractor: bytes to text.
// cfg:       runtime tuning knobs.
// jobs:      in-memory queue of documents to process.
type DocumentIngestor struct {
	db        IngestStore
	obj       core.ObjectClient
	embedder  core.EmbeddingProvider
	extractor core.DocumentExtractor
	writer    *ChunkWriter
	cfg       *IngestConfig
	jobs      chan Job
}
