package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/fieldmap/internal/core/domain"
)

// CreateFieldWorkflow validates a boundary, persists the field and announces
// it. If the announcement fails, the field is deleted again (saga
// compensation) so no field exists that subscribers never heard about.
func CreateFieldWorkflow(ctx workflow.Context, input domain.CreateFieldInput) (domain.Field, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting create-field workflow", "name", input.Name)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{errTypeInvalidField},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: Validate the boundary and compute the area
	var field domain.Field
	err := workflow.ExecuteActivity(ctx, "ValidateBoundary", input).Get(ctx, &field)
	if err != nil {
		return domain.Field{}, err
	}

	// Step 2: Persist
	err = workflow.ExecuteActivity(ctx, "PersistField", field).Get(ctx, &field)
	if err != nil {
		return domain.Field{}, err
	}

	// Step 3: Announce
	err = workflow.ExecuteActivity(ctx, "PublishFieldCreated", field).Get(ctx, nil)
	if err != nil {
		logger.Warn("publish field created failed, compensating", "field_id", field.ID, "error", err)
		// Compensate: delete the field
		if cerr := workflow.ExecuteActivity(ctx, "DeleteField", field.ID).Get(ctx, nil); cerr != nil {
			logger.Error("compensation failed", "field_id", field.ID, "error", cerr)
		}
		return domain.Field{}, err
	}

	logger.Info("Field created", "field_id", field.ID)
	return field, nil
}
