package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/core/conversation"
	"github.com/markdave123-py/Cadence/internal/metrics"
	"github.com/markdave123-py/Cadence/internal/models"
)

const DefaultTopK = 8

// Store is the slice of persistence retrieval needs.
type Store interface {
	core.ClientStore
	core.ChunkSearcher
}

// MessageLog records chat turns.
type MessageLog interface {
	SaveMessage(ctx context.Context, req conversation.SaveRequest) (*models.ChatMessage, error)
}

type Config struct {
	TopK         int
	EmbedTimeout time.Duration
	GenTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 30 * time.Second
	}
	if c.GenTimeout <= 0 {
		c.GenTimeout = 2 * time.Minute
	}
	return c
}

// Generator answers prompts grounded in a client's stored chunks.
type Generator struct {
	store    Store
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	messages MessageLog
	cfg      Config
}

func NewGenerator(store Store, emb core.EmbeddingProvider, llm core.LLMProvider, messages MessageLog, cfg Config) *Generator {
	return &Generator{store: store, embedder: emb, llm: llm, messages: messages, cfg: cfg.withDefaults()}
}

type IdeasRequest struct {
	ClientID     string
	UserPrompt   string
	MonthContext string
	Auth         models.AuthContext
}

type ChatRequest struct {
	ClientID string
	Query    string
	Auth     models.AuthContext
}

type ImageRequest struct {
	ClientID string
	ImageURL string
	Prompt   string
	Auth     models.AuthContext
}

// GenerateIdeas retrieves the client's closest chunks, asks the model for a
// JSON array of ideas and parses it. Nothing is persisted.
func (g *Generator) GenerateIdeas(ctx context.Context, req IdeasRequest) ([]models.Idea, error) {
	if strings.TrimSpace(req.UserPrompt) == "" {
		return nil, core.Validationf("userPrompt is required")
	}
	client, err := g.authorize(ctx, req.Auth, req.ClientID)
	if err != nil {
		return nil, err
	}

	matches, err := g.retrieve(ctx, client.ID, req.UserPrompt)
	if err != nil {
		return nil, err
	}

	raw, err := g.generate(ctx, "ideas", ideasSystemPrompt, buildIdeasPrompt(client, matches, req.MonthContext, req.UserPrompt))
	if err != nil {
		return nil, err
	}

	ideas, err := ParseIdeas(raw)
	if err != nil {
		log.WithError(err).WithField("client_id", client.ID).Warn("model reply was not a JSON array")
		return nil, err
	}
	return ideas, nil
}

// Chat logs the user's turn, answers from retrieved chunks and logs the
// answer with the ids of the chunks it was grounded on.
func (g *Generator) Chat(ctx context.Context, req ChatRequest) (*models.ChatMessage, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, core.Validationf("query is required")
	}
	client, err := g.authorize(ctx, req.Auth, req.ClientID)
	if err != nil {
		return nil, err
	}

	if _, err := g.messages.SaveMessage(ctx, conversation.SaveRequest{
		UserID:   req.Auth.UserID,
		ClientID: client.ID,
		Role:     models.RoleUser,
		Content:  req.Query,
	}); err != nil {
		return nil, fmt.Errorf("log user turn: %w", err)
	}

	matches, err := g.retrieve(ctx, client.ID, req.Query)
	if err != nil {
		return nil, err
	}

	answer, err := g.generate(ctx, "chat", chatSystemPrompt, buildChatPrompt(client, matches, req.Query))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	msg, err := g.messages.SaveMessage(ctx, conversation.SaveRequest{
		UserID:   req.Auth.UserID,
		ClientID: client.ID,
		Role:     models.RoleAssistant,
		Content:  answer,
		Metadata: map[string]any{"chunk_ids": ids},
	})
	if err != nil {
		return nil, fmt.Errorf("log assistant turn: %w", err)
	}
	return msg, nil
}

// AnalyzeImage sends the instruction and the image URL in one model call.
func (g *Generator) AnalyzeImage(ctx context.Context, req ImageRequest) (string, error) {
	if strings.TrimSpace(req.ImageURL) == "" {
		return "", core.Validationf("imageUrl is required")
	}
	client, err := g.authorize(ctx, req.Auth, req.ClientID)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.GenTimeout)
	defer cancel()

	start := time.Now()
	text, err := g.llm.GenerateWithImage(callCtx, imageSystemPrompt, buildImagePrompt(client, req.Prompt), req.ImageURL)
	metrics.ModelCallDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", asModelFailure(err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty reply", core.ErrModelCallFailure)
	}
	return text, nil
}

func (g *Generator) authorize(ctx context.Context, auth models.AuthContext, clientID string) (*models.Client, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, core.Validationf("clientId is required")
	}
	if auth.TenantID == "" || auth.UserID == "" {
		return nil, core.ErrUnauthorized
	}
	return g.store.GetClient(ctx, auth.TenantID, clientID)
}

func (g *Generator) retrieve(ctx context.Context, clientID, text string) ([]models.ChunkMatch, error) {
	embedCtx, cancel := context.WithTimeout(ctx, g.cfg.EmbedTimeout)
	vec, err := g.embedder.EmbedText(embedCtx, text)
	cancel()
	if err != nil {
		if errors.Is(err, core.ErrEmbeddingFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingFailure, err)
	}

	matches, err := g.store.MatchChunks(ctx, vec, clientID, g.embedder.ModelName(), g.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("match chunks: %w", err)
	}
	log.WithFields(log.Fields{"client_id": clientID, "matches": len(matches)}).Debug("retrieved context")
	return matches, nil
}

func (g *Generator) generate(ctx context.Context, op, system, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.GenTimeout)
	defer cancel()

	start := time.Now()
	text, err := g.llm.Generate(callCtx, system, prompt)
	metrics.ModelCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", asModelFailure(err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty reply", core.ErrModelCallFailure)
	}
	return text, nil
}

func asModelFailure(err error) error {
	if errors.Is(err, core.ErrModelCallFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrModelCallFailure, err)
}
