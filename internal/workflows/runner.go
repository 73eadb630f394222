package workflows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/usecases"
)

// WorkflowStarter is the part of the Temporal client the runner uses.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Runner creates fields through CreateFieldWorkflow and waits for the result.
// It satisfies ports.FieldCreator.
type Runner struct {
	client    WorkflowStarter
	taskQueue string
	fields    *usecases.FieldService
}

// NewRunner returns a Runner starting workflows on taskQueue. fields is used
// to reject invalid input before a workflow is started.
func NewRunner(c WorkflowStarter, taskQueue string, fields *usecases.FieldService) *Runner {
	return &Runner{client: c, taskQueue: taskQueue, fields: fields}
}

// Create runs the create-field saga for in.
func (r *Runner) Create(ctx context.Context, in domain.CreateFieldInput) (*domain.Field, error) {
	if r.fields != nil {
		if _, err := r.fields.Prepare(in); err != nil {
			return nil, err
		}
	}

	run, err := r.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "create-field-" + uuid.NewString(),
		TaskQueue: r.taskQueue,
	}, CreateFieldWorkflow, in)
	if err != nil {
		return nil, fmt.Errorf("start create-field workflow: %w", err)
	}

	var field domain.Field
	if err := run.Get(ctx, &field); err != nil {
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() == errTypeInvalidField {
			msg := strings.TrimPrefix(appErr.Message(), domain.ErrInvalidField.Error()+": ")
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidField, msg)
		}
		return nil, fmt.Errorf("create-field workflow %s: %w", run.GetID(), err)
	}
	return &field, nil
}
