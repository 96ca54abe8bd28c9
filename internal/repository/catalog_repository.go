package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/clinicride/escort-booking/internal/model"
)

// CatalogRepo serves the read-only hospital and service catalogs.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo constructs a CatalogRepo given a DB handle.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

// GetActiveHospital returns the hospital when it exists and is active;
// a missing or inactive hospital yields ErrNotFound.
func (r *CatalogRepo) GetActiveHospital(ctx context.Context, id string) (*model.Hospital, error) {
	const q = `SELECT id, name, address, city, is_active FROM hospitals WHERE id = ? AND is_active = TRUE`
	var h model.Hospital
	err := r.db.QueryRowContext(ctx, q, id).Scan(&h.ID, &h.Name, &h.Address, &h.City, &h.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get hospital: %w", err)
	}
	return &h, nil
}

// ListActiveHospitals returns active hospitals ordered by name.
func (r *CatalogRepo) ListActiveHospitals(ctx context.Context) ([]model.Hospital, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, address, city, is_active FROM hospitals WHERE is_active = TRUE ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list hospitals: %w", err)
	}
	defer rows.Close()
	out := make([]model.Hospital, 0)
	for rows.Next() {
		var h model.Hospital
		if err := rows.Scan(&h.ID, &h.Name, &h.Address, &h.City, &h.IsActive); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListServices returns the whole service catalog ordered by name.
func (r *CatalogRepo) ListServices(ctx context.Context) ([]model.Service, error) {
	return r.queryServices(ctx, `SELECT id, name, description FROM services ORDER BY name`)
}

// ServicesByIDs returns the services whose ids are in ids.  Unknown ids
// are simply absent from the result.
func (r *CatalogRepo) ServicesByIDs(ctx context.Context, ids []string) ([]model.Service, error) {
	if len(ids) == 0 {
		return []model.Service{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	q := `SELECT id, name, description FROM services WHERE id IN (` + strings.Join(placeholders, ",") + `) ORDER BY name`
	return r.queryServices(ctx, q, args...)
}

func (r *CatalogRepo) queryServices(ctx context.Context, q string, args ...interface{}) ([]model.Service, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()
	out := make([]model.Service, 0)
	for rows.Next() {
		var (
			s    model.Service
			desc sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Name, &desc); err != nil {
			return nil, err
		}
		s.Description = nullString(desc)
		out = append(out, s)
	}
	return out, rows.Err()
}
