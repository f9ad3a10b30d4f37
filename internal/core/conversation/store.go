package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/Cadence/internal/core"
	db "github.com/markdave123-py/Cadence/internal/core/database"
	"github.com/markdave123-py/Cadence/internal/metrics"
	"github.com/markdave123-py/Cadence/internal/models"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// SaveRequest is one turn to persist.
type SaveRequest struct {
	UserID   string
	ClientID string
	Role     string
	Content  string
	Metadata map[string]any
}

// ListRequest asks for one page of history older than Before.
type ListRequest struct {
	UserID   string
	ClientID string
	Before   *time.Time
	Limit    int
}

// Store persists chat turns against whatever shape the deployment's
// chat_messages table has, and always hands back canonical messages.
type Store struct {
	table db.MessageTable
}

func NewStore(table db.MessageTable) *Store {
	return &Store{table: table}
}

// SaveMessage inserts a turn, falling back through the known table shapes.
// A missing table fails immediately.
func (s *Store) SaveMessage(ctx context.Context, req SaveRequest) (*models.ChatMessage, error) {
	if err := validateSave(req); err != nil {
		return nil, err
	}

	var lastErr error
	for _, st := range writeStrategies {
		row, err := s.insertWith(ctx, st, req)
		if err == nil {
			if st.name != writeStrategies[0].name {
				metrics.SchemaFallbacks.WithLabelValues("save", st.name).Inc()
			}
			msg := normalize(row)
			return &msg, nil
		}
		if !errors.Is(err, core.ErrSchemaMismatch) {
			return nil, err
		}
		log.WithError(err).WithField("strategy", st.name).Debug("message insert did not fit table shape")
		lastErr = err
	}
	return nil, fmt.Errorf("save message: all table shapes exhausted: %w", lastErr)
}

func (s *Store) insertWith(ctx context.Context, st strategy, req SaveRequest) (map[string]any, error) {
	cols := st.columns
	row := buildRow(cols, req)
	for {
		out, err := s.table.InsertMessage(ctx, row)
		if err == nil {
			return out, nil
		}
		var unknown *core.UnknownColumnError
		if !st.prunable || !errors.As(err, &unknown) {
			return nil, err
		}
		pruned, ok := without(cols, unknown.Column)
		if !ok {
			return nil, err
		}
		next := buildRow(pruned, req)
		if !carriesText(next) {
			return nil, err
		}
		cols, row = pruned, next
	}
}

func carriesText(row map[string]any) bool {
	for _, c := range []string{"content", "message", "response"} {
		if _, ok := row[c]; ok {
			return true
		}
	}
	return false
}

func hasContentColumn(cols []string) bool {
	for _, c := range cols {
		if c == "content" || c == "message" || c == "response" {
			return true
		}
	}
	return false
}

func buildRow(cols []string, req SaveRequest) map[string]any {
	row := map[string]any{
		"user_id":   req.UserID,
		"client_id": req.ClientID,
		"role":      req.Role,
	}
	for _, c := range cols {
		switch c {
		case "content", "message", "response":
			row[c] = req.Content
		case "metadata":
			md := req.Metadata
			if md == nil {
				md = map[string]any{}
			}
			row[c] = md
		}
	}
	return row
}

func validateSave(req SaveRequest) error {
	if req.UserID == "" {
		return core.Validationf("userId is required")
	}
	if req.ClientID == "" {
		return core.Validationf("clientId is required")
	}
	switch req.Role {
	case models.RoleUser, models.RoleAssistant, models.RoleSystem:
	default:
		return core.Validationf("role %q is not one of user, assistant, system", req.Role)
	}
	if strings.TrimSpace(req.Content) == "" {
		return core.Validationf("content is required")
	}
	return nil
}

// ListMessages returns one page of a (user, client) conversation, newest
// first. HasMore is set when the page is full and NextCursor is the oldest
// timestamp on the page.
func (s *Store) ListMessages(ctx context.Context, req ListRequest) (*models.MessagePage, error) {
	if req.UserID == "" {
		return nil, core.Validationf("userId is required")
	}
	if req.ClientID == "" {
		return nil, core.Validationf("clientId is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	q := db.MessageQuery{UserID: req.UserID, ClientID: req.ClientID, Before: req.Before, Limit: limit}

	var (
		rows    []map[string]any
		lastErr error
	)
	for _, st := range readStrategies {
		var err error
		rows, err = s.selectWith(ctx, st, q)
		if err == nil {
			if st.name != readStrategies[0].name {
				metrics.SchemaFallbacks.WithLabelValues("list", st.name).Inc()
			}
			lastErr = nil
			break
		}
		if !errors.Is(err, core.ErrSchemaMismatch) {
			return nil, err
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, fmt.Errorf("list messages: all table shapes exhausted: %w", lastErr)
	}

	page := &models.MessagePage{Messages: make([]models.ChatMessage, 0, len(rows))}
	for _, r := range rows {
		page.Messages = append(page.Messages, normalize(r))
	}
	page.HasMore = len(page.Messages) == limit
	if n := len(page.Messages); n > 0 {
		oldest := page.Messages[n-1].CreatedAt
		page.NextCursor = &oldest
	}
	return page, nil
}

func (s *Store) selectWith(ctx context.Context, st strategy, q db.MessageQuery) ([]map[string]any, error) {
	cols := st.columns
	for {
		rows, err := s.table.SelectMessages(ctx, append(append([]string{}, baseReadColumns...), cols...), q)
		if err == nil {
			return rows, nil
		}
		var unknown *core.UnknownColumnError
		if !st.prunable || !errors.As(err, &unknown) {
			return nil, err
		}
		pruned, ok := without(cols, unknown.Column)
		if !ok || !hasContentColumn(pruned) {
			return nil, err
		}
		cols = pruned
	}
}

// normalize maps any table shape onto the canonical message. Content comes
// from content, else response for assistant turns, else message. The other
// legacy column is the last resort.
func normalize(row map[string]any) models.ChatMessage {
	msg := models.ChatMessage{
		ID:       asString(row["id"]),
		UserID:   asString(row["user_id"]),
		ClientID: asString(row["client_id"]),
		Role:     asString(row["role"]),
		Metadata: asMetadata(row["metadata"]),
	}
	if t, ok := row["created_at"].(time.Time); ok {
		msg.CreatedAt = t
	}
	order := []string{"content", "message", "response"}
	if msg.Role == models.RoleAssistant {
		order = []string{"content", "response", "message"}
	}
	for _, c := range order {
		if msg.Content = asString(row[c]); msg.Content != "" {
			break
		}
	}
	return msg
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func asMetadata(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case string:
		return decodeMetadata([]byte(t))
	case []byte:
		return decodeMetadata(t)
	}
	return nil
}

func decodeMetadata(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
