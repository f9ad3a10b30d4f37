package models

import (
	"time"
)

// AuthContext is the caller identity relayed from the request token.
// Every caller-scoped lookup filters on TenantID.
type AuthContext struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
}

// User maps an authenticated user to the tenant (agency) that owns them.
type User struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Client is a tenant's customer or project; most data is scoped to one.
type Client struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DocumentStatus is the processing state of an uploaded document.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentFailed     DocumentStatus = "failed"
)

// Document represents one uploaded file.
type Document struct {
	ID           string         `db:"id" json:"id"`
	TenantID     string         `db:"tenant_id" json:"tenant_id"`
	ClientID     string         `db:"client_id" json:"client_id"`
	FileName     string         `db:"file_name" json:"file_name"`
	StoragePath  string         `db:"storage_path" json:"storage_path"` // object key inside the tenant bucket
	FileType     string         `db:"file_type" json:"file_type"`       // declared MIME type or extension
	Status       DocumentStatus `db:"status" json:"status"`
	ErrorMessage string         `db:"error_message" json:"error_message,omitempty"`
	RunID        string         `db:"run_id" json:"-"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// DocumentChunk is one unit of retrievable knowledge. It belongs either to a
// document or to a web source.
type DocumentChunk struct {
	ID             string    `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id"`
	ClientID       string    `db:"client_id" json:"client_id"`
	DocumentID     *string   `db:"document_id" json:"document_id,omitempty"`
	WebSourceID    *string   `db:"web_source_id" json:"web_source_id,omitempty"`
	RunID          string    `db:"run_id" json:"-"`
	Position       int       `db:"position" json:"position"`
	Content        string    `db:"content" json:"content"`
	Embedding      []float32 `db:"embedding" json:"-"` // pgvector column
	EmbeddingModel string    `db:"embedding_model" json:"embedding_model"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ChunkMatch is one row returned by the similarity search.
type ChunkMatch struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// WebSourceStatus is the lifecycle state of a scraping job.
type WebSourceStatus string

const (
	WebSourcePending   WebSourceStatus = "pending"
	WebSourceScraping  WebSourceStatus = "scraping"
	WebSourceCompleted WebSourceStatus = "completed"
	WebSourceFailed    WebSourceStatus = "failed"
)

// IsActive reports whether a job is still owned by a worker or waiting for one.
func (s WebSourceStatus) IsActive() bool {
	return s == WebSourcePending || s == WebSourceScraping
}

// IsTerminal reports whether a job has finished, successfully or not.
func (s WebSourceStatus) IsTerminal() bool {
	return s == WebSourceCompleted || s == WebSourceFailed
}

// CanTransitionTo encodes pending -> scraping -> {completed|failed}, the
// dispatch failure pending -> failed, and the requeue {completed|failed} -> pending.
func (s WebSourceStatus) CanTransitionTo(next WebSourceStatus) bool {
	switch s {
	case WebSourcePending:
		return next == WebSourceScraping || next == WebSourceFailed
	case WebSourceScraping:
		return next == WebSourceCompleted || next == WebSourceFailed
	case WebSourceCompleted, WebSourceFailed:
		return next == WebSourcePending
	}
	return false
}

// WebSource is a durable record tracking one website scraping job.
type WebSource struct {
	ID           string          `db:"id" json:"id"`
	TenantID     string          `db:"tenant_id" json:"tenant_id"`
	ClientID     string          `db:"client_id" json:"client_id"`
	SeedURL      string          `db:"seed_url" json:"seed_url"`
	RootURL      string          `db:"root_url" json:"root_url"`
	Status       WebSourceStatus `db:"status" json:"status"`
	PagesCrawled int             `db:"pages_crawled" json:"pages_crawled"`
	LastURL      string          `db:"last_url" json:"last_url,omitempty"`
	ErrorMessage string          `db:"error_message" json:"error_message,omitempty"`
	RunID        string          `db:"run_id" json:"-"`
	StartedAt    *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage represents one conversational turn, in canonical shape
// regardless of the columns the deployment's table actually has.
type ChatMessage struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	ClientID  string         `json:"client_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// MessagePage is one backward page of conversation history.
type MessagePage struct {
	Messages   []ChatMessage `json:"messages"`
	HasMore    bool          `json:"hasMore"`
	NextCursor *time.Time    `json:"nextCursor"`
}

// Idea is one content suggestion produced by the generator.
type Idea struct {
	Title       string `json:"title"`
	ScheduledAt string `json:"scheduled_at"`
	Status      string `json:"status"`
}
