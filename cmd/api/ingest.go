package main

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/markdave123-py/Cadence/internal/app"
	"github.com/markdave123-py/Cadence/internal/models"
)

type IngestFlags struct {
	DocumentID string
	TenantID   string
	UserID     string
}

func NewIngestFlags() *IngestFlags {
	return &IngestFlags{UserID: "cli"}
}

func (f *IngestFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.DocumentID, "document-id", f.DocumentID, "Document to process")
	fs.StringVar(&f.TenantID, "tenant-id", f.TenantID, "Tenant that owns the document")
	fs.StringVar(&f.UserID, "user-id", f.UserID, "User recorded as the caller")
}

func (f *IngestFlags) Validate() error {
	if f.DocumentID == "" || f.TenantID == "" {
		return errors.New("--document-id and --tenant-id are required")
	}
	return nil
}

func NewIngestCommand() *cobra.Command {
	f := NewIngestFlags()

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Process one uploaded document in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.Validate(); err != nil {
				return errors.WithMessage(err, "error validating options")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			application, err := app.NewApp(ctx, cfg)
			if err != nil {
				return errors.WithMessage(err, "startup failed")
			}
			defer application.Close()

			auth := models.AuthContext{UserID: f.UserID, TenantID: f.TenantID}
			if err := application.Ingestor.ProcessDocument(ctx, f.DocumentID, auth); err != nil {
				return errors.WithMessagef(err, "processing document %s", f.DocumentID)
			}
			log.WithField("document_id", f.DocumentID).Info("document ready")
			return nil
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}
