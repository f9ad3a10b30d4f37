package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/models"
	"github.com/markdave123-py/Cadence/internal/services"
)

// Documents is the document intake the handler drives.
type Documents interface {
	UploadAndCreate(ctx context.Context, auth models.AuthContext, up services.Upload) (*models.Document, error)
	Process(ctx context.Context, auth models.AuthContext, docID string) error
	Get(ctx context.Context, auth models.AuthContext, docID string) (*models.Document, error)
}

type DocumentHandler struct {
	docs          Documents
	maxUpload     int64
	uploadTimeout time.Duration
}

func NewDocumentHandler(docs Documents) *DocumentHandler {
	return &DocumentHandler{docs: docs, maxUpload: 50 << 20, uploadTimeout: 5 * time.Minute}
}

// UploadDocument handles file upload, DB insert, and background processing.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	auth, err := authFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, r, core.Validationf("invalid multipart form: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, core.Validationf("invalid file"))
		return
	}
	defer file.Close()

	uploadCtx, cancel := context.WithTimeout(r.Context(), h.uploadTimeout)
	defer cancel()

	doc, err := h.docs.UploadAndCreate(uploadCtx, auth, services.Upload{
		ClientID:    r.FormValue("client_id"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAccepted(w, doc)
}

// ProcessDocument queues a stored document for another run.
func (h *DocumentHandler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	auth, err := authFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	docID := chi.URLParam(r, "id")
	if err := h.docs.Process(r.Context(), auth, docID); err != nil {
		writeError(w, r, err)
		return
	}
	writeAccepted(w, map[string]string{"document_id": docID})
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	auth, err := authFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := h.docs.Get(r.Context(), auth, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
