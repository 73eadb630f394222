package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	geojson "github.com/paulmach/go.geojson"

	"github.com/samirrijal/fieldmap/internal/core/domain"
)

// FieldRepo implements ports.FieldRepository with pgx and PostGIS.
type FieldRepo struct {
	db *DB
}

// NewFieldRepo creates a new FieldRepo.
func NewFieldRepo(db *DB) *FieldRepo {
	return &FieldRepo{db: db}
}

// Create inserts a field and fills in its generated ID and creation time.
func (r *FieldRepo) Create(ctx context.Context, f *domain.Field) error {
	geom, err := geojson.NewPolygonGeometry(f.Boundary.Coordinates()).MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode boundary: %w", err)
	}

	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO fields (name, area_ha, status, boundary)
		VALUES ($1, $2, $3, ST_SetSRID(ST_GeomFromGeoJSON($4), 4326)::geography)
		RETURNING id, created_at
	`, f.Name, f.AreaHectares, string(f.Status), string(geom)).Scan(&f.ID, &f.CreatedAt)
}

// GetByID returns a field by UUID.
func (r *FieldRepo) GetByID(ctx context.Context, id string) (*domain.Field, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, area_ha, status, ST_AsGeoJSON(boundary::geometry), created_at
		FROM fields WHERE id = $1
	`, id)

	f, err := scanField(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// List returns every field, newest first.
func (r *FieldRepo) List(ctx context.Context) ([]domain.Field, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, area_ha, status, ST_AsGeoJSON(boundary::geometry), created_at
		FROM fields
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []domain.Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, err
		}
		fields = append(fields, *f)
	}
	return fields, rows.Err()
}

// Delete removes a field by UUID.
func (r *FieldRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM fields WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanField(row pgx.Row) (*domain.Field, error) {
	var (
		f      domain.Field
		status string
		geom   string
	)
	if err := row.Scan(&f.ID, &f.Name, &f.AreaHectares, &status, &geom, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Status = domain.FieldStatus(status)
	if err := f.Boundary.UnmarshalJSON([]byte(geom)); err != nil {
		return nil, fmt.Errorf("decode boundary of field %s: %w", f.ID, err)
	}
	return &f, nil
}
