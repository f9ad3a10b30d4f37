package dispatch

import (
	"context"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/Cadence/internal/core"
)

// WorkflowsDispatcher starts a Cloud Workflows execution per job; the
// workflow calls the scraper function with the execution argument.
type WorkflowsDispatcher struct {
	client *executions.Client
	parent string
}

func NewWorkflowsDispatcher(ctx context.Context, project, location, workflowID string) (*WorkflowsDispatcher, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowsDispatcher{client: client, parent: workflowParent(project, location, workflowID)}, nil
}

func workflowParent(project, location, workflowID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", project, location, workflowID)
}

func (d *WorkflowsDispatcher) Dispatch(ctx context.Context, jobName string, job core.ScrapeJob) error {
	arg, err := encode(jobName, job)
	if err != nil {
		return err
	}
	exec, err := d.client.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    d.parent,
		Execution: &executionspb.Execution{Argument: string(arg)},
	})
	if err != nil {
		return fmt.Errorf("create workflow execution: %w", err)
	}
	log.WithFields(log.Fields{"execution": exec.GetName(), "web_source": job.SourceID}).Debug("workflow execution started")
	return nil
}

func (d *WorkflowsDispatcher) Close() error {
	return d.client.Close()
}
