package main

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/markdave123-py/Cadence/internal/app"
	"github.com/markdave123-py/Cadence/internal/config"
)

type ScrapeWorkerFlags struct {
	ListenAddr string
	Workers    int
}

func NewScrapeWorkerFlags() *ScrapeWorkerFlags {
	return &ScrapeWorkerFlags{}
}

func (f *ScrapeWorkerFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ListenAddr, "listen", "", "Address for the function endpoint in http dispatch mode (default $LISTEN_ADDR or :8080)")
	fs.IntVar(&f.Workers, "workers", 0, "Concurrent queue consumers in redis dispatch mode (default $SCRAPE_WORKERS or 2)")
}

func NewScrapeWorkerCommand() *cobra.Command {
	f := NewScrapeWorkerFlags()

	cmd := &cobra.Command{
		Use:   "scrape-worker",
		Short: "Consume scrape jobs and crawl websites into chunks",
		Long: `Consumes scrape jobs from the redis queue, or serves POST /functions/{job}
when DISPATCH_MODE=http, and crawls each job's website into stored chunks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if f.ListenAddr != "" {
				cfg.ListenAddr = f.ListenAddr
			}
			if f.Workers > 0 {
				cfg.ScrapeWorkers = f.Workers
			}

			ctx, cancel := signalContext()
			defer cancel()

			wa, err := app.NewWorkerApp(ctx, cfg)
			if err != nil {
				return errors.WithMessage(err, "startup failed")
			}
			defer wa.Close()

			switch cfg.DispatchMode {
			case config.DispatchRedis:
				log.WithFields(log.Fields{"queue": cfg.ScrapeQueue, "workers": cfg.ScrapeWorkers}).Info("consuming scrape jobs")
				err = wa.Queue.Consume(ctx, cfg.ScrapeJobName, cfg.ScrapeWorkers, wa.Worker.Handle)
			case config.DispatchHTTP:
				err = app.NewWorkerServer(ctx, cfg, wa.Worker, wa.DBClient).Run(ctx)
			default:
				return errors.Errorf("scrape-worker does not serve DISPATCH_MODE=%s; the workflow runs the job", cfg.DispatchMode)
			}
			if err != nil {
				return errors.WithMessage(err, "worker stopped")
			}
			return nil
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}
