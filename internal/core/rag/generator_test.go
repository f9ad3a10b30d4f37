package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/core/conversation"
	"github.com/markdave123-py/Cadence/internal/models"
)

type fakeStore struct {
	clients map[string]*models.Client
	matches []models.ChunkMatch
	err     error

	gotClientID string
	gotModel    string
	gotTopK     int
}

func (s *fakeStore) GetClient(_ context.Context, tenantID, clientID string) (*models.Client, error) {
	c, ok := s.clients[clientID]
	if !ok || c.TenantID != tenantID {
		return nil, fmt.Errorf("client %s: %w", clientID, core.ErrNotFound)
	}
	return c, nil
}

func (s *fakeStore) MatchChunks(_ context.Context, _ []float32, clientID, model string, topK int) ([]models.ChunkMatch, error) {
	s.gotClientID, s.gotModel, s.gotTopK = clientID, model, topK
	if s.err != nil {
		return nil, s.err
	}
	return s.matches, nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (e *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (e *fakeEmbedder) ModelName() string { return "test-embed" }

type fakeLLM struct {
	reply string
	err   error

	system   string
	prompt   string
	imageURL string
}

func (l *fakeLLM) Generate(_ context.Context, system, prompt string) (string, error) {
	l.system, l.prompt = system, prompt
	return l.reply, l.err
}

func (l *fakeLLM) GenerateWithImage(_ context.Context, system, prompt, imageURL string) (string, error) {
	l.system, l.prompt, l.imageURL = system, prompt, imageURL
	return l.reply, l.err
}

type fakeMessages struct {
	mu    sync.Mutex
	saved []conversation.SaveRequest
	err   error
}

func (m *fakeMessages) SaveMessage(_ context.Context, req conversation.SaveRequest) (*models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.saved = append(m.saved, req)
	return &models.ChatMessage{
		ID: fmt.Sprintf("m%d", len(m.saved)), UserID: req.UserID, ClientID: req.ClientID,
		Role: req.Role, Content: req.Content, Metadata: req.Metadata,
	}, nil
}

var auth = models.AuthContext{UserID: "u1", TenantID: "t1"}

type fixture struct {
	store    *fakeStore
	embedder *fakeEmbedder
	llm      *fakeLLM
	messages *fakeMessages
	gen      *Generator
}

func newFixture(reply string) *fixture {
	f := &fixture{
		store: &fakeStore{
			clients: map[string]*models.Client{
				"c1": {ID: "c1", TenantID: "t1", Name: "Harbor Bakery"},
				"c2": {ID: "c2", TenantID: "t2", Name: "Other Agency Client"},
			},
			matches: []models.ChunkMatch{
				{ID: "k1", Content: "We bake sourdough daily.", Similarity: 0.91},
				{ID: "k2", Content: "Seasonal menu launches in April.", Similarity: 0.84},
			},
		},
		embedder: &fakeEmbedder{},
		llm:      &fakeLLM{reply: reply},
		messages: &fakeMessages{},
	}
	f.gen = NewGenerator(f.store, f.embedder, f.llm, f.messages, Config{})
	return f
}

const ideasReply = `[{"title":"Sourdough morning","scheduled_at":"2026-04-03","status":"draft"}]`

func TestGenerateIdeas(t *testing.T) {
	f := newFixture(ideasReply)

	ideas, err := f.gen.GenerateIdeas(context.Background(), IdeasRequest{
		ClientID: "c1", UserPrompt: "spring launch", MonthContext: "Easter is April 5", Auth: auth,
	})
	require.NoError(t, err)
	require.Len(t, ideas, 1)
	assert.Equal(t, "Sourdough morning", ideas[0].Title)

	assert.Equal(t, "c1", f.store.gotClientID)
	assert.Equal(t, "test-embed", f.store.gotModel)
	assert.Equal(t, DefaultTopK, f.store.gotTopK)

	assert.Equal(t, ideasSystemPrompt, f.llm.system)
	assert.Contains(t, f.llm.prompt, "We bake sourdough daily.")
	assert.Contains(t, f.llm.prompt, "Seasonal menu launches in April.")
	assert.Contains(t, f.llm.prompt, "Easter is April 5")
	assert.Contains(t, f.llm.prompt, "Topic: spring launch")
	assert.Contains(t, f.llm.prompt, "Return ONLY a JSON array")
	assert.Empty(t, f.messages.saved)
}

func TestGenerateIdeasProseWrapped(t *testing.T) {
	f := newFixture("Here you go:\n" + ideasReply + "\nThanks")
	ideas, err := f.gen.GenerateIdeas(context.Background(), IdeasRequest{ClientID: "c1", UserPrompt: "spring", Auth: auth})
	require.NoError(t, err)
	assert.Len(t, ideas, 1)
}

func TestGenerateIdeasGarbage(t *testing.T) {
	f := newFixture("Sorry, I can't help with that.")
	_, err := f.gen.GenerateIdeas(context.Background(), IdeasRequest{ClientID: "c1", UserPrompt: "spring", Auth: auth})
	assert.ErrorIs(t, err, core.ErrMalformedModelOutput)
}

func TestGenerateIdeasWithoutCalendarOrContext(t *testing.T) {
	f := newFixture(ideasReply)
	f.store.matches = nil
	_, err := f.gen.GenerateIdeas(context.Background(), IdeasRequest{ClientID: "c1", UserPrompt: "spring", Auth: auth})
	require.NoError(t, err)
	assert.NotContains(t, f.llm.prompt, "Calendar context")
	assert.Contains(t, f.llm.prompt, noContext)
}

func TestGenerateIdeasAuthorization(t *testing.T) {
	f := newFixture(ideasReply)

	_, err := f.gen.GenerateIdeas(context.Background(), IdeasRequest{ClientID: "c2", UserPrompt: "x", Auth: auth})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.gen.GenerateIdeas(context.Background(), IdeasRequest{ClientID: "c1", UserPrompt: "x"})
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = f.gen.GenerateIdeas(context.Background(), IdeasRequest{UserPrompt: "x", Auth: auth})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.gen.GenerateIdeas(context.Background(), IdeasRequest{ClientID: "c1", UserPrompt: "  ", Auth: auth})
	assert.ErrorIs(t, err, core.ErrValidation)

	assert.Zero(t, f.embedder.calls)
}

func TestGenerateIdeasUpstreamFailures(t *testing.T) {
	f := newFixture(ideasReply)
	f.embedder.err = errors.New("quota exceeded")
	_, err := f.gen.GenerateIdeas(context.Background(), IdeasRequest{ClientID: "c1", UserPrompt: "x", Auth: auth})
	assert.ErrorIs(t, err, core.ErrEmbeddingFailure)

	f = newFixture("")
	f.llm.err = errors.New("503 from upstream")
	_, err = f.gen.GenerateIdeas(context.Background(), IdeasRequest{ClientID: "c1", UserPrompt: "x", Auth: auth})
	assert.ErrorIs(t, err, core.ErrModelCallFailure)

	f = newFixture("   ")
	_, err = f.gen.GenerateIdeas(context.Background(), IdeasRequest{ClientID: "c1", UserPrompt: "x", Auth: auth})
	assert.ErrorIs(t, err, core.ErrModelCallFailure)

	f = newFixture(ideasReply)
	f.store.err = fmt.Errorf("match: %w", core.ErrStorageFailure)
	_, err = f.gen.GenerateIdeas(context.Background(), IdeasRequest{ClientID: "c1", UserPrompt: "x", Auth: auth})
	assert.ErrorIs(t, err, core.ErrStorageFailure)
}

func TestChatLogsBothTurns(t *testing.T) {
	f := newFixture("We bake sourdough every morning.")

	msg, err := f.gen.Chat(context.Background(), ChatRequest{ClientID: "c1", Query: "What do they bake?", Auth: auth})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, msg.Role)
	assert.Equal(t, "We bake sourdough every morning.", msg.Content)

	require.Len(t, f.messages.saved, 2)
	assert.Equal(t, models.RoleUser, f.messages.saved[0].Role)
	assert.Equal(t, "What do they bake?", f.messages.saved[0].Content)
	assert.Equal(t, "u1", f.messages.saved[0].UserID)
	assert.Equal(t, models.RoleAssistant, f.messages.saved[1].Role)
	assert.Equal(t, []string{"k1", "k2"}, f.messages.saved[1].Metadata["chunk_ids"])

	assert.Equal(t, chatSystemPrompt, f.llm.system)
	assert.Contains(t, f.llm.prompt, "Question: What do they bake?")
}

func TestChatModelFailureKeepsUserTurn(t *testing.T) {
	f := newFixture("")
	f.llm.err = errors.New("timeout")

	_, err := f.gen.Chat(context.Background(), ChatRequest{ClientID: "c1", Query: "hi", Auth: auth})
	assert.ErrorIs(t, err, core.ErrModelCallFailure)
	require.Len(t, f.messages.saved, 1)
	assert.Equal(t, models.RoleUser, f.messages.saved[0].Role)
}

func TestChatLogFailure(t *testing.T) {
	f := newFixture("answer")
	f.messages.err = fmt.Errorf("insert: %w", core.ErrSchemaMissing)

	_, err := f.gen.Chat(context.Background(), ChatRequest{ClientID: "c1", Query: "hi", Auth: auth})
	assert.ErrorIs(t, err, core.ErrSchemaMissing)
	assert.Zero(t, f.embedder.calls)
}

func TestAnalyzeImage(t *testing.T) {
	f := newFixture("A croissant on a marble counter.")

	text, err := f.gen.AnalyzeImage(context.Background(), ImageRequest{
		ClientID: "c1", ImageURL: "https://cdn.example.com/p.jpg", Prompt: "Caption this", Auth: auth,
	})
	require.NoError(t, err)
	assert.Equal(t, "A croissant on a marble counter.", text)
	assert.Equal(t, "https://cdn.example.com/p.jpg", f.llm.imageURL)
	assert.Contains(t, f.llm.prompt, "Caption this")
	assert.Contains(t, f.llm.prompt, "Harbor Bakery")

	_, err = f.gen.AnalyzeImage(context.Background(), ImageRequest{ClientID: "c1", Auth: auth})
	assert.ErrorIs(t, err, core.ErrValidation)

	f.llm.err = errors.New("image too large")
	_, err = f.gen.AnalyzeImage(context.Background(), ImageRequest{ClientID: "c1", ImageURL: "https://x/y.png", Auth: auth})
	assert.ErrorIs(t, err, core.ErrModelCallFailure)
}
