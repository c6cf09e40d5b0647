package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/setshaba/mapdata/internal/core/domain"
)

// MunicipalityRepo implements ports.MunicipalityRepository with pgx.
type MunicipalityRepo struct {
	db *DB
}

// NewMunicipalityRepo creates a new MunicipalityRepo.
func NewMunicipalityRepo(db *DB) *MunicipalityRepo {
	return &MunicipalityRepo{db: db}
}

// List returns every municipality that has a boundary geometry.
func (r *MunicipalityRepo) List(ctx context.Context) ([]domain.Municipality, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, name, code, COALESCE(province, ''), bounds::text
		FROM municipalities
		WHERE bounds IS NOT NULL
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query municipalities: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Municipality, error) {
		var m domain.Municipality
		var bounds string
		err := row.Scan(&m.ID, &m.Name, &m.Code, &m.Province, &bounds)
		m.Bounds = []byte(bounds)
		return m, err
	})
}
