package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/core/conversation"
	"github.com/markdave123-py/Cadence/internal/core/rag"
	"github.com/markdave123-py/Cadence/internal/models"
)

type Generator interface {
	GenerateIdeas(ctx context.Context, req rag.IdeasRequest) ([]models.Idea, error)
	Chat(ctx context.Context, req rag.ChatRequest) (*models.ChatMessage, error)
	AnalyzeImage(ctx context.Context, req rag.ImageRequest) (string, error)
}

type Conversations interface {
	SaveMessage(ctx context.Context, req conversation.SaveRequest) (*models.ChatMessage, error)
	ListMessages(ctx context.Context, req conversation.ListRequest) (*models.MessagePage, error)
}

type ChatHandler struct {
	gen      Generator
	messages Conversations
	clients  core.ClientStore
}

func NewChatHandler(gen Generator, messages Conversations, clients core.ClientStore) *ChatHandler {
	return &ChatHandler{gen: gen, messages: messages, clients: clients}
}

type ideasRequest struct {
	ClientID     string `json:"client_id"`
	Prompt       string `json:"prompt"`
	MonthContext string `json:"month_context"`
}

func (h *ChatHandler) GenerateIdeas(w http.ResponseWriter, r *http.Request) {
	auth, err := authFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ideasRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ideas, err := h.gen.GenerateIdeas(r.Context(), rag.IdeasRequest{
		ClientID:     req.ClientID,
		UserPrompt:   req.Prompt,
		MonthContext: req.MonthContext,
		Auth:         auth,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ideas": ideas})
}

type chatQueryRequest struct {
	ClientID string `json:"client_id"`
	Query    string `json:"query"`
}

func (h *ChatHandler) QueryChat(w http.ResponseWriter, r *http.Request) {
	auth, err := authFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req chatQueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.gen.Chat(r.Context(), rag.ChatRequest{ClientID: req.ClientID, Query: req.Query, Auth: auth})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

type saveMessageRequest struct {
	ClientID string         `json:"client_id"`
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

func (h *ChatHandler) SaveMessage(w http.ResponseWriter, r *http.Request) {
	auth, err := authFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req saveMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.authorizeClient(r.Context(), auth, req.ClientID); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.messages.SaveMessage(r.Context(), conversation.SaveRequest{
		UserID:   auth.UserID,
		ClientID: req.ClientID,
		Role:     req.Role,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// ListMessages pages backwards through history: ?client_id=&limit=&before=
// where before is the nextCursor of the previous page.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	auth, err := authFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	clientID := q.Get("client_id")
	if err := h.authorizeClient(r.Context(), auth, clientID); err != nil {
		writeError(w, r, err)
		return
	}

	req := conversation.ListRequest{UserID: auth.UserID, ClientID: clientID}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, core.Validationf("limit must be a positive integer"))
			return
		}
		req.Limit = n
	}
	if v := q.Get("before"); v != "" {
		before, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, r, core.Validationf("before must be an RFC 3339 timestamp"))
			return
		}
		req.Before = &before
	}

	page, err := h.messages.ListMessages(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type analyzeImageRequest struct {
	ClientID string `json:"client_id"`
	ImageURL string `json:"image_url"`
	Prompt   string `json:"prompt"`
}

func (h *ChatHandler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	auth, err := authFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req analyzeImageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	text, err := h.gen.AnalyzeImage(r.Context(), rag.ImageRequest{
		ClientID: req.ClientID,
		ImageURL: req.ImageURL,
		Prompt:   req.Prompt,
		Auth:     auth,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"analysis": text})
}

func (h *ChatHandler) authorizeClient(ctx context.Context, auth models.AuthContext, clientID string) error {
	if clientID == "" {
		return core.Validationf("client_id is required")
	}
	_, err := h.clients.GetClient(ctx, auth.TenantID, clientID)
	return err
}
