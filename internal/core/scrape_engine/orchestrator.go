package scrape_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/metrics"
	"github.com/markdave123-py/Cadence/internal/models"
)

const (
	// DefaultJobName is the worker function scrape jobs are dispatched to.
	DefaultJobName = "scrape-website"
	// DefaultStaleAfter is how long an active job may go without progress
	// before a new request requeues it.
	DefaultStaleAfter = time.Hour
)

// OrchestratorStore is the persistence the orchestrator needs.
type OrchestratorStore interface {
	core.ClientStore
	core.WebSourceStore
}

// StartRequest asks for a client's website to be (re)scraped.
type StartRequest struct {
	ClientID string
	URL      string
	TenantID string
}

// Orchestrator owns web source creation, reuse and requeue, and hands jobs
// to the scraper worker through a dispatcher.
type Orchestrator struct {
	store      OrchestratorStore
	dispatcher core.JobDispatcher
	jobName    string
	staleAfter time.Duration
}

func NewOrchestrator(store OrchestratorStore, dispatcher core.JobDispatcher, jobName string, staleAfter time.Duration) *Orchestrator {
	if jobName == "" {
		jobName = DefaultJobName
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Orchestrator{store: store, dispatcher: dispatcher, jobName: jobName, staleAfter: staleAfter}
}

// StartScraping returns the one web source for (client, root URL). An active
// job is returned as is; a finished one, or an active one with no progress
// for staleAfter, is reset to pending in place and dispatched again; a
// missing one is created and dispatched. A dispatch error is recorded on
// the row as a failure rather than returned.
func (o *Orchestrator) StartScraping(ctx context.Context, req StartRequest) (*models.WebSource, error) {
	if req.ClientID == "" {
		return nil, core.Validationf("clientId is required")
	}
	if req.URL == "" {
		return nil, core.Validationf("url is required")
	}
	if req.TenantID == "" {
		return nil, fmt.Errorf("start scraping: %w", core.ErrUnauthorized)
	}
	seed, root, err := NormalizeURL(req.URL)
	if err != nil {
		return nil, err
	}
	if _, err := o.store.GetClient(ctx, req.TenantID, req.ClientID); err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{"client": req.ClientID, "root": root})

	existing, err := o.store.GetWebSourceByRoot(ctx, req.ClientID, root)
	switch {
	case err == nil:
		return o.reuse(ctx, existing, seed, logger)
	case !errors.Is(err, core.ErrNotFound):
		return nil, err
	}

	ws := &models.WebSource{
		ID:       uuid.NewString(),
		TenantID: req.TenantID,
		ClientID: req.ClientID,
		SeedURL:  seed,
		RootURL:  root,
		Status:   models.WebSourcePending,
	}
	if err := o.store.CreateWebSource(ctx, ws); err != nil {
		if !errors.Is(err, core.ErrDuplicateJob) {
			return nil, err
		}
		// Lost a race with a concurrent first submission; the winner dispatches.
		metrics.ScrapeJobs.WithLabelValues("reused").Inc()
		logger.Info("web source created concurrently, returning existing row")
		return o.store.GetWebSourceByRoot(ctx, req.ClientID, root)
	}

	metrics.ScrapeJobs.WithLabelValues("created").Inc()
	logger.WithField("web_source", ws.ID).Info("web source created")
	return o.dispatch(ctx, ws), nil
}

func (o *Orchestrator) reuse(ctx context.Context, ws *models.WebSource, seed string, logger *log.Entry) (*models.WebSource, error) {
	logger = logger.WithField("web_source", ws.ID)
	staleBefore := time.Now().Add(-o.staleAfter)
	if ws.Status.IsActive() {
		if ws.UpdatedAt.After(staleBefore) {
			metrics.ScrapeJobs.WithLabelValues("reused").Inc()
			logger.WithField("status", ws.Status).Info("web source already active")
			return ws, nil
		}
		logger.WithFields(log.Fields{"status": ws.Status, "updated_at": ws.UpdatedAt}).Warn("web source stalled, requeueing")
	}

	reset, err := o.store.ResetWebSource(ctx, ws.ID, seed, staleBefore)
	if err != nil {
		return nil, err
	}
	fresh, err := o.store.GetWebSource(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	if !reset {
		// Another request requeued it first and owns the dispatch.
		metrics.ScrapeJobs.WithLabelValues("reused").Inc()
		return fresh, nil
	}

	metrics.ScrapeJobs.WithLabelValues("requeued").Inc()
	logger.Info("web source requeued")
	return o.dispatch(ctx, fresh), nil
}

// dispatch publishes the job. On failure the row is moved to failed with
// the error, so no job sits in pending without a worker.
func (o *Orchestrator) dispatch(ctx context.Context, ws *models.WebSource) *models.WebSource {
	logger := log.WithFields(log.Fields{"web_source": ws.ID, "job": o.jobName})

	err := o.dispatcher.Dispatch(ctx, o.jobName, core.ScrapeJob{SourceID: ws.ID, ClientID: ws.ClientID})
	if err == nil {
		logger.Debug("scrape job dispatched")
		return ws
	}

	metrics.ScrapeJobs.WithLabelValues("dispatch_failed").Inc()
	logger.WithError(err).Error("scrape job dispatch failed")

	msg := fmt.Sprintf("dispatch failed: %v", err)
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	ok, terr := o.store.TransitionWebSource(cctx, ws.ID, models.WebSourcePending, models.WebSourceFailed, msg)
	if terr != nil {
		logger.WithError(terr).Error("could not record dispatch failure")
		return ws
	}
	if ok {
		now := time.Now()
		ws.Status = models.WebSourceFailed
		ws.ErrorMessage = msg
		ws.CompletedAt = &now
	}
	return ws
}
