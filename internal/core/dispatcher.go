package core

import "context"

// ScrapeJob is the command a scraper worker consumes.
type ScrapeJob struct {
	SourceID string `json:"sourceId"`
	ClientID string `json:"clientId"`
}

// JobDispatcher hands a job to an out-of-process worker and returns without
// waiting for it to run. An error means the worker was never notified.
type JobDispatcher interface {
	Dispatch(ctx context.Context, jobName string, job ScrapeJob) error
}
