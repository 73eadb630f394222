package ports

import (
	"context"

	"github.com/samirrijal/fieldmap/internal/core/domain"
)

// FieldRepository persists fields.
type FieldRepository interface {
	Create(ctx context.Context, field *domain.Field) error
	GetByID(ctx context.Context, id string) (*domain.Field, error)
	List(ctx context.Context) ([]domain.Field, error)
	Delete(ctx context.Context, id string) error
}
