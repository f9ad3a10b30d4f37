package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/Cadence/internal/core"
	ingest "github.com/markdave123-py/Cadence/internal/core/ingestion_engine"
	"github.com/markdave123-py/Cadence/internal/models"
)

// DocumentStore is the persistence document intake needs.
type DocumentStore interface {
	core.DocumentStore
	core.ClientStore
}

type DocumentService struct {
	db       DocumentStore
	storage  core.ObjectClient
	ingestor ingest.Ingestor
}

func NewDocumentService(db DocumentStore, storage core.ObjectClient, ing ingest.Ingestor) *DocumentService {
	return &DocumentService{db: db, storage: storage, ingestor: ing}
}

// Upload describes one file handed in by a caller.
type Upload struct {
	ClientID    string
	FileName    string
	ContentType string
	Body        io.Reader
}

// UploadAndCreate stores the file in the tenant bucket, records it as
// pending and queues it for processing.
func (s *DocumentService) UploadAndCreate(ctx context.Context, auth models.AuthContext, up Upload) (*models.Document, error) {
	if up.ClientID == "" {
		return nil, core.Validationf("client_id is required")
	}
	fileName := cleanFileName(up.FileName)
	if fileName == "" {
		return nil, core.Validationf("file name is required")
	}
	client, err := s.db.GetClient(ctx, auth.TenantID, up.ClientID)
	if err != nil {
		return nil, err
	}

	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	docID := uuid.NewString()
	key := objectKey(auth.TenantID, client.ID, docID, fileName)
	if _, err := s.storage.UploadFile(ctx, key, up.Body, contentType); err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:          docID,
		TenantID:    auth.TenantID,
		ClientID:    client.ID,
		FileName:    fileName,
		StoragePath: key,
		FileType:    fileType(contentType, fileName),
		Status:      models.DocumentPending,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if derr := s.storage.DeleteFile(cleanupCtx, key); derr != nil {
			log.WithError(derr).WithField("key", key).Warn("failed to remove orphaned upload")
		}
		return nil, err
	}

	if err := s.ingestor.Enqueue(ctx, ingest.Job{DocumentID: doc.ID, Auth: auth}); err != nil {
		return nil, fmt.Errorf("queue document %s: %w", doc.ID, err)
	}
	log.WithFields(log.Fields{"document_id": doc.ID, "client_id": client.ID}).Info("document uploaded and queued")
	return doc, nil
}

// Process queues an already uploaded document for a (re)run.
func (s *DocumentService) Process(ctx context.Context, auth models.AuthContext, docID string) error {
	doc, err := s.Get(ctx, auth, docID)
	if err != nil {
		return err
	}
	return s.ingestor.Enqueue(ctx, ingest.Job{DocumentID: doc.ID, Auth: auth})
}

func (s *DocumentService) Get(ctx context.Context, auth models.AuthContext, docID string) (*models.Document, error) {
	if docID == "" {
		return nil, core.Validationf("document id is required")
	}
	return s.db.GetDocument(ctx, auth.TenantID, docID)
}

// objectKey creates a consistent S3 key layout.
func objectKey(tenantID, clientID, docID, filename string) string {
	return path.Join("tenants", tenantID, "clients", clientID, "documents", docID, filename)
}

func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.ReplaceAll(name, " ", "_")
}

// fileType keeps the declared MIME type unless it is generic, in which case
// the extension is used so the extractor can still pick a parser.
func fileType(contentType, fileName string) string {
	if contentType != "application/octet-stream" {
		return contentType
	}
	if ext := strings.TrimPrefix(strings.ToLower(path.Ext(fileName)), "."); ext != "" {
		return ext
	}
	return contentType
}
