package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/usecases"
)

// errTypeInvalidField marks validation failures, which are never retried.
const errTypeInvalidField = "InvalidField"

// FieldActivities holds the activity implementations for the create-field workflow.
type FieldActivities struct {
	Fields *usecases.FieldService
}

// ValidateBoundary checks the input and returns the field to persist, with
// its ring closed and its area computed.
func (a *FieldActivities) ValidateBoundary(ctx context.Context, in domain.CreateFieldInput) (domain.Field, error) {
	field, err := a.Fields.Prepare(in)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidField) {
			return domain.Field{}, temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidField, err)
		}
		return domain.Field{}, err
	}
	return *field, nil
}

// PersistField stores the field and returns it with its assigned ID.
func (a *FieldActivities) PersistField(ctx context.Context, field domain.Field) (domain.Field, error) {
	if err := a.Fields.Persist(ctx, &field); err != nil {
		return domain.Field{}, err
	}
	activity.GetLogger(ctx).Info("field persisted", "field_id", field.ID, "area_ha", field.AreaHectares)
	return field, nil
}

// PublishFieldCreated announces the new field.
func (a *FieldActivities) PublishFieldCreated(ctx context.Context, field domain.Field) error {
	return a.Fields.PublishCreated(ctx, &field)
}

// DeleteField removes a persisted field (saga compensation / rollback). The
// field was never announced, so no deletion event is published.
func (a *FieldActivities) DeleteField(ctx context.Context, id string) error {
	err := a.Fields.Discard(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete field %s: %w", id, err)
	}
	activity.GetLogger(ctx).Info("field deleted (saga compensation)", "field_id", id)
	return nil
}
