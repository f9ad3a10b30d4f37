package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	scrape "github.com/markdave123-py/Cadence/internal/core/scrape_engine"
	"github.com/markdave123-py/Cadence/internal/models"
)

type Scraper interface {
	StartScraping(ctx context.Context, req scrape.StartRequest) (*models.WebSource, error)
}

type WebSources interface {
	GetWebSourceForTenant(ctx context.Context, tenantID, id string) (*models.WebSource, error)
}

type ScrapeHandler struct {
	scraper Scraper
	sources WebSources
}

func NewScrapeHandler(scraper Scraper, sources WebSources) *ScrapeHandler {
	return &ScrapeHandler{scraper: scraper, sources: sources}
}

type startScrapeRequest struct {
	ClientID string `json:"client_id"`
	URL      string `json:"url"`
}

// StartScraping creates or reuses the client's job for the site's root and
// acknowledges without waiting for the crawl.
func (h *ScrapeHandler) StartScraping(w http.ResponseWriter, r *http.Request) {
	auth, err := authFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req startScrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ws, err := h.scraper.StartScraping(r.Context(), scrape.StartRequest{
		ClientID: req.ClientID,
		URL:      req.URL,
		TenantID: auth.TenantID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAccepted(w, ws)
}

func (h *ScrapeHandler) GetWebSource(w http.ResponseWriter, r *http.Request) {
	auth, err := authFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ws, err := h.sources.GetWebSourceForTenant(r.Context(), auth.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}
