package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Cadence/internal/core"
	db "github.com/markdave123-py/Cadence/internal/core/database"
	"github.com/markdave123-py/Cadence/internal/models"
)

// fakeTable emulates a chat_messages table with a configurable shape.
type fakeTable struct {
	mu      sync.Mutex
	missing bool
	columns map[string]bool
	notNull map[string]bool
	rows    []map[string]any
	clock   time.Time
	seq     int
	inserts int
}

func newFakeTable(columns []string, notNull ...string) *fakeTable {
	t := &fakeTable{
		columns: map[string]bool{"id": true, "user_id": true, "client_id": true, "role": true, "created_at": true},
		notNull: map[string]bool{},
		clock:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	for _, c := range columns {
		t.columns[c] = true
	}
	for _, c := range notNull {
		t.notNull[c] = true
	}
	return t
}

func (t *fakeTable) InsertMessage(_ context.Context, row map[string]any) (map[string]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inserts++
	if t.missing {
		return nil, fmt.Errorf("insert message: %w", core.ErrSchemaMissing)
	}
	for _, c := range sortedKeys(row) {
		if !t.columns[c] {
			return nil, &core.UnknownColumnError{Column: c, Err: fmt.Errorf("column %q does not exist", c)}
		}
	}
	for c := range t.notNull {
		if row[c] == nil {
			return nil, &core.NotNullViolationError{Column: c, Err: fmt.Errorf("null value in column %q", c)}
		}
	}
	t.seq++
	t.clock = t.clock.Add(time.Minute)
	stored := map[string]any{}
	for c := range t.columns {
		stored[c] = row[c]
	}
	stored["id"] = fmt.Sprintf("m%02d", t.seq)
	stored["created_at"] = t.clock
	t.rows = append(t.rows, stored)
	return copyRow(stored), nil
}

func (t *fakeTable) SelectMessages(_ context.Context, columns []string, q db.MessageQuery) ([]map[string]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.missing {
		return nil, fmt.Errorf("select messages: %w", core.ErrSchemaMissing)
	}
	for _, c := range columns {
		if !t.columns[c] {
			return nil, &core.UnknownColumnError{Column: c, Err: fmt.Errorf("column %q does not exist", c)}
		}
	}
	var out []map[string]any
	for _, r := range t.rows {
		if r["user_id"] != q.UserID || r["client_id"] != q.ClientID {
			continue
		}
		if q.Before != nil && !r["created_at"].(time.Time).Before(*q.Before) {
			continue
		}
		sel := map[string]any{}
		for _, c := range columns {
			sel[c] = r[c]
		}
		out = append(out, sel)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["created_at"].(time.Time).After(out[j]["created_at"].(time.Time))
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyRow(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func userTurn(content string) SaveRequest {
	return SaveRequest{UserID: "u1", ClientID: "c1", Role: models.RoleUser, Content: content}
}

func TestSaveMessageCanonical(t *testing.T) {
	table := newFakeTable([]string{"content", "metadata"})
	s := NewStore(table)

	msg, err := s.SaveMessage(context.Background(), SaveRequest{
		UserID: "u1", ClientID: "c1", Role: models.RoleAssistant,
		Content: "three ideas", Metadata: map[string]any{"chunks": []string{"k1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "m01", msg.ID)
	assert.Equal(t, "three ideas", msg.Content)
	assert.Equal(t, models.RoleAssistant, msg.Role)
	assert.Equal(t, []string{"k1"}, msg.Metadata["chunks"])
	assert.False(t, msg.CreatedAt.IsZero())
	assert.Equal(t, 1, table.inserts)
}

func TestSaveMessageLegacyShapes(t *testing.T) {
	tests := []struct {
		name     string
		table    *fakeTable
		role     string
		metadata bool
	}{
		{
			name:  "no content column",
			table: newFakeTable([]string{"message", "response", "metadata"}),
			role:  models.RoleUser, metadata: true,
		},
		{
			name:  "message not null",
			table: newFakeTable([]string{"content", "message", "metadata"}, "message"),
			role:  models.RoleUser, metadata: true,
		},
		{
			name:  "no metadata column",
			table: newFakeTable([]string{"content"}),
			role:  models.RoleUser,
		},
		{
			name:  "message and response only",
			table: newFakeTable([]string{"message", "response"}),
			role:  models.RoleAssistant,
		},
		{
			name:  "user turn with response not null",
			table: newFakeTable([]string{"message", "response", "metadata"}, "message", "response"),
			role:  models.RoleUser, metadata: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore(tc.table)
			msg, err := s.SaveMessage(context.Background(), SaveRequest{
				UserID: "u1", ClientID: "c1", Role: tc.role, Content: "hello there",
			})
			require.NoError(t, err)
			assert.Equal(t, "hello there", msg.Content)
			assert.Equal(t, tc.role, msg.Role)
			if tc.metadata {
				assert.NotNil(t, msg.Metadata)
			} else {
				assert.Nil(t, msg.Metadata)
			}
			require.Len(t, tc.table.rows, 1)
		})
	}
}

func TestSaveMessageMissingTable(t *testing.T) {
	table := newFakeTable([]string{"content", "metadata"})
	table.missing = true
	s := NewStore(table)

	_, err := s.SaveMessage(context.Background(), userTurn("hi"))
	require.ErrorIs(t, err, core.ErrSchemaMissing)
	assert.Equal(t, 1, table.inserts)
}

func TestSaveMessageExhausted(t *testing.T) {
	table := newFakeTable([]string{"body"})
	s := NewStore(table)

	_, err := s.SaveMessage(context.Background(), userTurn("hi"))
	require.ErrorIs(t, err, core.ErrSchemaMismatch)
	assert.Empty(t, table.rows)
}

func TestSaveMessageValidation(t *testing.T) {
	s := NewStore(newFakeTable([]string{"content", "metadata"}))
	bad := []SaveRequest{
		{ClientID: "c1", Role: models.RoleUser, Content: "x"},
		{UserID: "u1", Role: models.RoleUser, Content: "x"},
		{UserID: "u1", ClientID: "c1", Role: "bot", Content: "x"},
		{UserID: "u1", ClientID: "c1", Role: models.RoleUser, Content: "   "},
	}
	for _, req := range bad {
		_, err := s.SaveMessage(context.Background(), req)
		assert.ErrorIs(t, err, core.ErrValidation)
	}
}

func TestListMessagesPagination(t *testing.T) {
	table := newFakeTable([]string{"content", "metadata"})
	s := NewStore(table)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := s.SaveMessage(ctx, userTurn(fmt.Sprintf("turn %d", i)))
		require.NoError(t, err)
	}
	_, err := s.SaveMessage(ctx, SaveRequest{UserID: "u2", ClientID: "c1", Role: models.RoleUser, Content: "other user"})
	require.NoError(t, err)

	page, err := s.ListMessages(ctx, ListRequest{UserID: "u1", ClientID: "c1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "turn 5", page.Messages[0].Content)
	assert.Equal(t, "turn 4", page.Messages[1].Content)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, page.Messages[1].CreatedAt, *page.NextCursor)

	page, err = s.ListMessages(ctx, ListRequest{UserID: "u1", ClientID: "c1", Limit: 2, Before: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "turn 3", page.Messages[0].Content)
	assert.Equal(t, "turn 2", page.Messages[1].Content)

	page, err = s.ListMessages(ctx, ListRequest{UserID: "u1", ClientID: "c1", Limit: 2, Before: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "turn 1", page.Messages[0].Content)
	assert.False(t, page.HasMore)
}

func TestListMessagesEmpty(t *testing.T) {
	s := NewStore(newFakeTable([]string{"content", "metadata"}))
	page, err := s.ListMessages(context.Background(), ListRequest{UserID: "u1", ClientID: "c1"})
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextCursor)
}

func TestListMessagesLegacyNormalization(t *testing.T) {
	table := newFakeTable([]string{"message", "response"})
	s := NewStore(table)
	ctx := context.Background()

	_, err := s.SaveMessage(ctx, userTurn("what should we post?"))
	require.NoError(t, err)
	_, err = s.SaveMessage(ctx, SaveRequest{UserID: "u1", ClientID: "c1", Role: models.RoleAssistant, Content: "a carousel"})
	require.NoError(t, err)

	page, err := s.ListMessages(ctx, ListRequest{UserID: "u1", ClientID: "c1"})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "a carousel", page.Messages[0].Content)
	assert.Equal(t, "what should we post?", page.Messages[1].Content)
	assert.Nil(t, page.Messages[0].Metadata)
}

func TestListMessagesWithoutMetadataColumn(t *testing.T) {
	table := newFakeTable([]string{"content"})
	s := NewStore(table)
	ctx := context.Background()

	_, err := s.SaveMessage(ctx, userTurn("hello"))
	require.NoError(t, err)
	_, err = s.SaveMessage(ctx, SaveRequest{UserID: "u1", ClientID: "c1", Role: models.RoleAssistant, Content: "hi back"})
	require.NoError(t, err)

	page, err := s.ListMessages(ctx, ListRequest{UserID: "u1", ClientID: "c1"})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "hi back", page.Messages[0].Content)
	assert.Equal(t, "hello", page.Messages[1].Content)
	assert.Nil(t, page.Messages[0].Metadata)
}

func TestListMessagesResponseOnlyTable(t *testing.T) {
	table := newFakeTable([]string{"response", "metadata"})
	s := NewStore(table)
	ctx := context.Background()

	_, err := s.SaveMessage(ctx, userTurn("a user question"))
	require.NoError(t, err)

	page, err := s.ListMessages(ctx, ListRequest{UserID: "u1", ClientID: "c1"})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "a user question", page.Messages[0].Content)
}

func TestNormalizeContentPrecedence(t *testing.T) {
	row := map[string]any{"role": models.RoleAssistant, "message": "from message", "response": "from response"}
	assert.Equal(t, "from response", normalize(row).Content)

	row["role"] = models.RoleUser
	assert.Equal(t, "from message", normalize(row).Content)

	row["content"] = "from content"
	assert.Equal(t, "from content", normalize(row).Content)
}

func TestListMessagesLimitBounds(t *testing.T) {
	table := newFakeTable([]string{"content", "metadata"})
	s := NewStore(table)
	_, err := s.SaveMessage(context.Background(), userTurn("one"))
	require.NoError(t, err)

	page, err := s.ListMessages(context.Background(), ListRequest{UserID: "u1", ClientID: "c1", Limit: 10_000})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)

	_, err = s.ListMessages(context.Background(), ListRequest{ClientID: "c1"})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestNormalizeMetadataEncodings(t *testing.T) {
	assert.Equal(t, map[string]any{"a": float64(1)}, normalize(map[string]any{"metadata": `{"a":1}`}).Metadata)
	assert.Equal(t, map[string]any{"a": float64(1)}, normalize(map[string]any{"metadata": []byte(`{"a":1}`)}).Metadata)
	assert.Nil(t, normalize(map[string]any{"metadata": "not json"}).Metadata)
	assert.Nil(t, normalize(map[string]any{}).Metadata)
}
