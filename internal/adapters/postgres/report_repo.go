package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/setshaba/mapdata/internal/core/domain"
)

// ReportRepo implements ports.ReportRepository with pgx.
type ReportRepo struct {
	db *DB
}

// NewReportRepo creates a new ReportRepo.
func NewReportRepo(db *DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// List returns the newest reports matching the filter.
func (r *ReportRepo) List(ctx context.Context, f domain.ReportFilter) ([]domain.Report, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, string(f.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.MunicipalityID != "" {
		args = append(args, f.MunicipalityID)
		where = append(where, fmt.Sprintf("municipality_id = $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := `
		SELECT id, title, COALESCE(description, ''), category, status,
		       lat, lng, COALESCE(address, ''), COALESCE(municipality_id::text, ''),
		       created_at, updated_at
		FROM reports`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Report, error) {
		var rep domain.Report
		var category, status string
		err := row.Scan(
			&rep.ID, &rep.Title, &rep.Description, &category, &status,
			&rep.Location.Lat, &rep.Location.Lon, &rep.Address, &rep.MunicipalityID,
			&rep.CreatedAt, &rep.UpdatedAt,
		)
		rep.Category = domain.Category(category)
		rep.Status = domain.Status(status)
		return rep, err
	})
}
