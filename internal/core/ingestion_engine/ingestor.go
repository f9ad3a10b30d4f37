package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/Cadence/internal/models"
)

// Ingestor is what the HTTP layer and CLI use to drive document processing.
type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, job Job) error
	ProcessDocument(ctx context.Context, documentID string, auth models.AuthContext) error
}

var _ Ingestor = (*DocumentIngestor)(nil)
