package core

import (
	"context"
	"io"
	"time"

	"github.com/markdave123-py/Cadence/internal/models"
)

// The persistence gateway is split by concern so each component depends only on
// what it touches. Methods taking a tenantID apply row-level scoping; the rest
// are the elevated path used by background work.

// DocumentStore persists uploaded documents and their status transitions.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	// GetDocument returns ErrNotFound when the tenant cannot see the row.
	GetDocument(ctx context.Context, tenantID, id string) (*models.Document, error)
	// ClaimDocument moves a document to processing under runID. It reports false
	// when another run holds a claim younger than lease.
	ClaimDocument(ctx context.Context, id, runID string, lease time.Duration) (bool, error)
	// CompleteDocument marks the document ready and removes chunks of earlier
	// runs in one transaction. It reports false, changing nothing, when runID
	// no longer holds the claim.
	CompleteDocument(ctx context.Context, id, runID string) (bool, error)
	MarkDocumentFailed(ctx context.Context, id, runID, message string) error
}

// ChunkOwner identifies the parent of a set of chunks: a document or a web source.
type ChunkOwner struct {
	DocumentID  string
	WebSourceID string
}

// ChunkStore persists chunks and their vectors.
type ChunkStore interface {
	// InsertDocumentChunks inserts chunks in a single transaction.
	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	// DeleteRunChunks removes the chunks a failed run left behind.
	DeleteRunChunks(ctx context.Context, owner ChunkOwner, runID string) error
}

// ChunkSearcher runs the server-side similarity search.
type ChunkSearcher interface {
	MatchChunks(ctx context.Context, queryVec []float32, clientID, model string, topK int) ([]models.ChunkMatch, error)
}

// ClientStore resolves clients under the caller's tenant.
type ClientStore interface {
	GetClient(ctx context.Context, tenantID, clientID string) (*models.Client, error)
}

// UserStore is the elevated lookup used to resolve a user's tenant.
type UserStore interface {
	GetUserTenant(ctx context.Context, userID string) (string, error)
}

// WebSourceStore persists scraping jobs.
type WebSourceStore interface {
	GetWebSource(ctx context.Context, id string) (*models.WebSource, error)
	GetWebSourceForTenant(ctx context.Context, tenantID, id string) (*models.WebSource, error)
	GetWebSourceByRoot(ctx context.Context, clientID, rootURL string) (*models.WebSource, error)
	// CreateWebSource returns ErrDuplicateJob when (client_id, root_url) already exists.
	CreateWebSource(ctx context.Context, ws *models.WebSource) error
	// ResetWebSource requeues a job in place when it is terminal, or active but
	// untouched since staleBefore. It reports false when neither held.
	ResetWebSource(ctx context.Context, id, seedURL string, staleBefore time.Time) (bool, error)
	// TransitionWebSource applies from -> to only if the row is still in from.
	TransitionWebSource(ctx context.Context, id string, from, to models.WebSourceStatus, errMsg string) (bool, error)
	// StartWebSource moves a pending job to scraping under runID.
	StartWebSource(ctx context.Context, id, runID string) (bool, error)
	// FinishWebSource moves a scraping job owned by runID to completed or
	// failed. Completion removes chunks of earlier runs in the same
	// transaction. It reports false when runID lost the job.
	FinishWebSource(ctx context.Context, id, runID string, to models.WebSourceStatus, errMsg string) (bool, error)
	// UpdateWebSourceProgress reports false when runID no longer owns the job.
	UpdateWebSourceProgress(ctx context.Context, id, runID string, pagesCrawled int, lastURL string) (bool, error)
}

// ObjectClient defines interactions with the tenant bucket.
// Keys are relative to the configured bucket.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, key string) error
	Download(ctx context.Context, key string) ([]byte, error)
}
