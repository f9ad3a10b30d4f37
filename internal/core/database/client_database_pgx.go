package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/Cadence/internal/config"
	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/models"
)

const messagesTable = "chat_messages"

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users and clients

func (c *DatabaseClient) GetUserTenant(ctx context.Context, userID string) (string, error) {
	var tenantID string
	err := c.db.QueryRowContext(ctx, `SELECT tenant_id FROM users WHERE id = $1`, userID).Scan(&tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
	}
	if err != nil {
		return "", mapError("get user tenant", err)
	}
	return tenantID, nil
}

func (c *DatabaseClient) GetClient(ctx context.Context, tenantID, clientID string) (*models.Client, error) {
	const q = `
		SELECT id, tenant_id, name, created_at
		FROM clients
		WHERE id = $1 AND tenant_id = $2
	`
	var cl models.Client
	err := c.db.QueryRowContext(ctx, q, clientID, tenantID).Scan(&cl.ID, &cl.TenantID, &cl.Name, &cl.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client %s: %w", clientID, core.ErrNotFound)
	}
	if err != nil {
		return nil, mapError("get client", err)
	}
	return &cl, nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, tenant_id, client_id, file_name, storage_path, file_type, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`
	err := c.db.QueryRowContext(ctx, q,
		doc.ID, doc.TenantID, doc.ClientID, doc.FileName, doc.StoragePath, doc.FileType, doc.Status,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	return mapError("create document", err)
}

func (c *DatabaseClient) GetDocument(ctx context.Context, tenantID, id string) (*models.Document, error) {
	const q = `
		SELECT id, tenant_id, client_id, file_name, storage_path, file_type, status,
		       error_message, run_id, created_at, updated_at
		FROM documents
		WHERE id = $1 AND tenant_id = $2
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id, tenantID).Scan(
		&d.ID, &d.TenantID, &d.ClientID, &d.FileName, &d.StoragePath, &d.FileType, &d.Status,
		&d.ErrorMessage, &d.RunID, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, mapError("get document", err)
	}
	return &d, nil
}

func (c *DatabaseClient) ClaimDocument(ctx context.Context, id, runID string, lease time.Duration) (bool, error) {
	const q = `
		UPDATE documents
		SET status = 'processing', run_id = $2, error_message = '', updated_at = now()
		WHERE id = $1
		  AND (status <> 'processing' OR updated_at < now() - make_interval(secs => $3))
	`
	res, err := c.db.ExecContext(ctx, q, id, runID, lease.Seconds())
	if err != nil {
		return false, mapError("claim document", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// CompleteDocument marks the document ready and drops chunks of earlier runs
// in one transaction, guarded by the run's claim.
func (c *DatabaseClient) CompleteDocument(ctx context.Context, id, runID string) (bool, error) {
	const q = `
		UPDATE documents
		SET status = 'ready', error_message = '', updated_at = now()
		WHERE id = $1 AND run_id = $2 AND status = 'processing'
	`
	return c.finishWithCleanup(ctx, "complete document", core.ChunkOwner{DocumentID: id}, runID, q, id, runID)
}

// MarkDocumentFailed only touches the row while runID still owns it, so a run
// whose lease was taken over cannot clobber the newer run's outcome.
func (c *DatabaseClient) MarkDocumentFailed(ctx context.Context, id, runID, message string) error {
	const q = `
		UPDATE documents
		SET status = 'failed', error_message = $3, updated_at = now()
		WHERE id = $1 AND run_id = $2
	`
	res, err := c.db.ExecContext(ctx, q, id, runID, message)
	if err != nil {
		return mapError("mark document failed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.WithFields(log.Fields{"document": id, "run": runID}).Warn("document claim lost before status update")
	}
	return nil
}

// Chunks

// InsertDocumentChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return mapError("begin chunk insert", err)
	}

	const q = `
		INSERT INTO document_chunks
			(id, tenant_id, client_id, document_id, web_source_id, run_id, position, content, embedding, embedding_model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return mapError("prepare chunk insert", err)
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.TenantID, ch.ClientID, ch.DocumentID, ch.WebSourceID, ch.RunID,
			ch.Position, ch.Content, pgvector.NewVector(ch.Embedding), ch.EmbeddingModel,
		); err != nil {
			_ = tx.Rollback()
			return mapError("insert chunk", err)
		}
	}
	return mapError("commit chunk insert", tx.Commit())
}

func ownerClause(owner core.ChunkOwner) (string, string, error) {
	switch {
	case owner.DocumentID != "":
		return "document_id", owner.DocumentID, nil
	case owner.WebSourceID != "":
		return "web_source_id", owner.WebSourceID, nil
	}
	return "", "", core.Validationf("chunk owner is empty")
}

func (c *DatabaseClient) DeleteRunChunks(ctx context.Context, owner core.ChunkOwner, runID string) error {
	col, id, err := ownerClause(owner)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM document_chunks WHERE %s = $1 AND run_id = $2`, col)
	_, err = c.db.ExecContext(ctx, q, id, runID)
	return mapError("delete run chunks", err)
}

// finishWithCleanup runs the guarded status update and, when it matched a
// row, deletes the owner's chunks from every other run in the same
// transaction.
func (c *DatabaseClient) finishWithCleanup(ctx context.Context, op string, owner core.ChunkOwner, runID, update string, args ...any) (bool, error) {
	col, ownerID, err := ownerClause(owner)
	if err != nil {
		return false, err
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, mapError("begin "+op, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, update, args...)
	if err != nil {
		return false, mapError(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	q := fmt.Sprintf(`DELETE FROM document_chunks WHERE %s = $1 AND run_id <> $2`, col)
	if _, err := tx.ExecContext(ctx, q, ownerID, runID); err != nil {
		return false, mapError("delete stale chunks", err)
	}
	if err := tx.Commit(); err != nil {
		return false, mapError("commit "+op, err)
	}
	return true, nil
}

// MatchChunks returns the topK chunks of clientID closest to queryVec by cosine
// similarity, restricted to vectors produced by model.
func (c *DatabaseClient) MatchChunks(ctx context.Context, queryVec []float32, clientID, model string, topK int) ([]models.ChunkMatch, error) {
	const q = `SELECT id, content, similarity FROM match_document_chunks($1, $2, $3, $4)`
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(queryVec), clientID, topK, model)
	if err != nil {
		return nil, mapError("match chunks", err)
	}
	defer rows.Close()

	var out []models.ChunkMatch
	for rows.Next() {
		var m models.ChunkMatch
		if err := rows.Scan(&m.ID, &m.Content, &m.Similarity); err != nil {
			return nil, mapError("scan match", err)
		}
		out = append(out, m)
	}
	return out, mapError("match chunks", rows.Err())
}

// Web sources

const webSourceColumns = `id, tenant_id, client_id, seed_url, root_url, status, pages_crawled,
	last_url, error_message, run_id, started_at, completed_at, created_at, updated_at`

func scanWebSource(row interface{ Scan(...any) error }) (*models.WebSource, error) {
	var ws models.WebSource
	err := row.Scan(
		&ws.ID, &ws.TenantID, &ws.ClientID, &ws.SeedURL, &ws.RootURL, &ws.Status, &ws.PagesCrawled,
		&ws.LastURL, &ws.ErrorMessage, &ws.RunID, &ws.StartedAt, &ws.CompletedAt, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (c *DatabaseClient) getWebSource(ctx context.Context, where string, args ...any) (*models.WebSource, error) {
	q := `SELECT ` + webSourceColumns + ` FROM web_sources WHERE ` + where
	ws, err := scanWebSource(c.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("web source: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, mapError("get web source", err)
	}
	return ws, nil
}

func (c *DatabaseClient) GetWebSource(ctx context.Context, id string) (*models.WebSource, error) {
	return c.getWebSource(ctx, `id = $1`, id)
}

func (c *DatabaseClient) GetWebSourceForTenant(ctx context.Context, tenantID, id string) (*models.WebSource, error) {
	return c.getWebSource(ctx, `id = $1 AND tenant_id = $2`, id, tenantID)
}

func (c *DatabaseClient) GetWebSourceByRoot(ctx context.Context, clientID, rootURL string) (*models.WebSource, error) {
	return c.getWebSource(ctx, `client_id = $1 AND root_url = $2`, clientID, rootURL)
}

func (c *DatabaseClient) CreateWebSource(ctx context.Context, ws *models.WebSource) error {
	if ws == nil {
		return errors.New("nil web source")
	}
	const q = `
		INSERT INTO web_sources (id, tenant_id, client_id, seed_url, root_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`
	err := c.db.QueryRowContext(ctx, q, ws.ID, ws.TenantID, ws.ClientID, ws.SeedURL, ws.RootURL, ws.Status).
		Scan(&ws.CreatedAt, &ws.UpdatedAt)
	return mapError("create web source", err)
}

func (c *DatabaseClient) ResetWebSource(ctx context.Context, id, seedURL string, staleBefore time.Time) (bool, error) {
	const q = `
		UPDATE web_sources
		SET status = 'pending', seed_url = $2, pages_crawled = 0, last_url = '', error_message = '',
		    run_id = '', started_at = NULL, completed_at = NULL, updated_at = now()
		WHERE id = $1
		  AND (status IN ('completed', 'failed') OR updated_at < $3)
	`
	res, err := c.db.ExecContext(ctx, q, id, seedURL, staleBefore)
	if err != nil {
		return false, mapError("reset web source", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (c *DatabaseClient) TransitionWebSource(ctx context.Context, id string, from, to models.WebSourceStatus, errMsg string) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, core.Validationf("web source cannot move from %s to %s", from, to)
	}
	const q = `
		UPDATE web_sources
		SET status = $3::text,
		    error_message = $4,
		    started_at = CASE WHEN $3::text = 'scraping' THEN now() ELSE started_at END,
		    completed_at = CASE WHEN $3::text IN ('completed', 'failed') THEN now() ELSE completed_at END,
		    updated_at = now()
		WHERE id = $1 AND status = $2::text
	`
	res, err := c.db.ExecContext(ctx, q, id, string(from), string(to), errMsg)
	if err != nil {
		return false, mapError("transition web source", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (c *DatabaseClient) StartWebSource(ctx context.Context, id, runID string) (bool, error) {
	const q = `
		UPDATE web_sources
		SET status = 'scraping', run_id = $2, error_message = '', started_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	res, err := c.db.ExecContext(ctx, q, id, runID)
	if err != nil {
		return false, mapError("start web source", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (c *DatabaseClient) FinishWebSource(ctx context.Context, id, runID string, to models.WebSourceStatus, errMsg string) (bool, error) {
	if !models.WebSourceScraping.CanTransitionTo(to) {
		return false, core.Validationf("web source cannot finish as %s", to)
	}
	const q = `
		UPDATE web_sources
		SET status = $3, error_message = $4, completed_at = now(), updated_at = now()
		WHERE id = $1 AND run_id = $2 AND status = 'scraping'
	`
	if to == models.WebSourceCompleted {
		return c.finishWithCleanup(ctx, "finish web source", core.ChunkOwner{WebSourceID: id}, runID, q, id, runID, string(to), errMsg)
	}
	res, err := c.db.ExecContext(ctx, q, id, runID, string(to), errMsg)
	if err != nil {
		return false, mapError("finish web source", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (c *DatabaseClient) UpdateWebSourceProgress(ctx context.Context, id, runID string, pagesCrawled int, lastURL string) (bool, error) {
	const q = `
		UPDATE web_sources
		SET pages_crawled = $3, last_url = $4, updated_at = now()
		WHERE id = $1 AND run_id = $2 AND status = 'scraping'
	`
	res, err := c.db.ExecContext(ctx, q, id, runID, pagesCrawled, lastURL)
	if err != nil {
		return false, mapError("update web source progress", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Chat messages

func (c *DatabaseClient) Messages() MessageTable {
	return &messageTable{db: c.db}
}

type messageTable struct {
	db *sql.DB
}

func (t *messageTable) InsertMessage(ctx context.Context, row map[string]any) (map[string]any, error) {
	if len(row) == 0 {
		return nil, core.Validationf("empty message row")
	}
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = pgx.Identifier{col}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		v, err := encodeValue(row[col])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", col, err)
		}
		args[i] = v
	}
	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING *`,
		messagesTable, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	rows, err := t.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError("insert message", err)
	}
	defer rows.Close()
	out, err := scanMaps(rows)
	if err != nil {
		return nil, mapError("insert message", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("insert message: %w: no row returned", core.ErrStorageFailure)
	}
	return out[0], nil
}

func (t *messageTable) SelectMessages(ctx context.Context, columns []string, mq MessageQuery) ([]map[string]any, error) {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pgx.Identifier{col}.Sanitize()
	}
	args := []any{mq.UserID, mq.ClientID}
	where := `user_id = $1 AND client_id = $2`
	if mq.Before != nil {
		args = append(args, *mq.Before)
		where += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}
	args = append(args, mq.Limit)
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		strings.Join(quoted, ", "), messagesTable, where, len(args))

	rows, err := t.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError("select messages", err)
	}
	defer rows.Close()
	out, err := scanMaps(rows)
	if err != nil {
		return nil, mapError("select messages", err)
	}
	return out, nil
}

// encodeValue turns structured values into JSON text so they land in either
// a jsonb or a text column.
func encodeValue(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v, nil
}

func scanMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, col := range cols {
			m[col] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ DbClient = (*DatabaseClient)(nil)
