package main

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/markdave123-py/Cadence/internal/app"
)

type ServeFlags struct {
	ListenAddr    string
	MetricsAddr   string
	IngestWorkers int
}

func NewServeFlags() *ServeFlags {
	return &ServeFlags{}
}

func (f *ServeFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ListenAddr, "listen", "", "The address to serve the API on (default $LISTEN_ADDR or :8080)")
	fs.StringVar(&f.MetricsAddr, "listen-metrics", "", "The address to serve prometheus metrics on (default $METRICS_ADDR or :2112)")
	fs.IntVar(&f.IngestWorkers, "ingest-workers", 0, "Background document ingestion workers (default $INGEST_WORKERS or 2)")
}

func NewServeCommand() *cobra.Command {
	f := NewServeFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Cadence API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if f.ListenAddr != "" {
				cfg.ListenAddr = f.ListenAddr
			}
			if cmd.Flags().Changed("listen-metrics") {
				cfg.MetricsAddr = f.MetricsAddr
			}
			if f.IngestWorkers > 0 {
				cfg.IngestWorkers = f.IngestWorkers
			}

			ctx, cancel := signalContext()
			defer cancel()

			application, err := app.NewApp(ctx, cfg)
			if err != nil {
				return errors.WithMessage(err, "startup failed")
			}
			defer application.Close()

			application.Ingestor.Start(ctx, cfg.IngestWorkers)
			log.WithField("workers", cfg.IngestWorkers).Info("Cadence is running; DB connected and bootstrapped.")

			if err := app.NewServer(cfg, application).Run(ctx); err != nil {
				return errors.WithMessage(err, "server error")
			}
			log.Info("shutting down...")
			return nil
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}
