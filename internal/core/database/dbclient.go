package db

import (
	"context"
	"time"

	"github.com/markdave123-py/Cadence/internal/core"
)

// DbClient is every persistence operation the services need, backed by one
// Postgres pool with pgvector.
type DbClient interface {
	core.DocumentStore
	core.ChunkStore
	core.ChunkSearcher
	core.ClientStore
	core.UserStore
	core.WebSourceStore

	// Messages is the raw gateway over the chat messages table.
	Messages() MessageTable

	Ping(ctx context.Context) error
	Close() error
}

// MessageTable is a thin row-level gateway over chat_messages. Rows are
// plain column maps because deployments disagree on which columns exist.
type MessageTable interface {
	// InsertMessage inserts row and returns the stored row.
	InsertMessage(ctx context.Context, row map[string]any) (map[string]any, error)
	// SelectMessages returns rows for one (user, client) conversation,
	// newest first.
	SelectMessages(ctx context.Context, columns []string, q MessageQuery) ([]map[string]any, error)
}

// MessageQuery scopes a history read.
type MessageQuery struct {
	UserID   string
	ClientID string
	// Before, when set, only returns rows strictly older than it.
	Before *time.Time
	Limit  int
}
