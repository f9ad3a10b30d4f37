package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/core/dispatch"
)

// JobRunner executes one dispatched job to completion.
type JobRunner interface {
	Handle(ctx context.Context, job core.ScrapeJob) error
}

// FunctionHandler is the worker side of the HTTP dispatch transport. It
// acknowledges POST /functions/{job} with 202 and runs the job in the
// background under ctx.
type FunctionHandler struct {
	ctx     context.Context
	jobName string
	runner  JobRunner
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewFunctionHandler(ctx context.Context, jobName string, runner JobRunner, timeout time.Duration) *FunctionHandler {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &FunctionHandler{ctx: ctx, jobName: jobName, runner: runner, timeout: timeout}
}

func (h *FunctionHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	if name := chi.URLParam(r, "job"); name != h.jobName {
		writeError(w, r, core.ErrNotFound)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeError(w, r, core.Validationf("read body: %v", err))
		return
	}
	env, err := dispatch.Decode(body)
	if err != nil {
		if !errors.Is(err, core.ErrValidation) {
			err = core.Validationf("%v", err)
		}
		writeError(w, r, err)
		return
	}

	job := env.ScrapeJob()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
		defer cancel()
		if err := h.runner.Handle(ctx, job); err != nil {
			log.WithError(err).WithField("web_source", job.SourceID).Warn("function job failed")
		}
	}()
	writeAccepted(w, map[string]string{"job": h.jobName, "sourceId": job.SourceID})
}

// Wait blocks until every accepted job has returned.
func (h *FunctionHandler) Wait() {
	h.wg.Wait()
}
