package dispatch

import (
	"context"
	"fmt"

	"github.com/markdave123-py/Cadence/internal/config"
	"github.com/markdave123-py/Cadence/internal/core"
)

// Dispatcher is a JobDispatcher holding a connection that must be released.
type Dispatcher interface {
	core.JobDispatcher
	Close() error
}

// New builds the dispatcher selected by cfg.DispatchMode.
func New(ctx context.Context, cfg *config.Config) (Dispatcher, error) {
	switch cfg.DispatchMode {
	case config.DispatchRedis:
		return NewRedisQueue(cfg.RedisURL, cfg.ScrapeQueue)
	case config.DispatchWorkflows:
		return NewWorkflowsDispatcher(ctx, cfg.WorkflowProject, cfg.WorkflowLocation, cfg.WorkflowID)
	case config.DispatchHTTP:
		return NewHTTPInvoker(cfg.WorkerBaseURL, cfg.WorkerToken, 0), nil
	}
	return nil, fmt.Errorf("unknown dispatch mode %q", cfg.DispatchMode)
}
