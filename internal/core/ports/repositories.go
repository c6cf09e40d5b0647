package ports

import (
	"context"

	"github.com/setshaba/mapdata/internal/core/domain"
)

// ReportRepository reads issue reports for the map.
type ReportRepository interface {
	List(ctx context.Context, filter domain.ReportFilter) ([]domain.Report, error)
}

// MunicipalityRepository reads municipalities and their boundary geometry.
type MunicipalityRepository interface {
	List(ctx context.Context) ([]domain.Municipality, error)
}

// DatasetSource returns the raw GeoJSON document of a dataset.
// Timeouts are the source's responsibility.
type DatasetSource interface {
	FetchRawDataset(ctx context.Context) ([]byte, error)
}

// DatasetSourceFunc adapts a function to DatasetSource.
type DatasetSourceFunc func(ctx context.Context) ([]byte, error)

// FetchRawDataset calls f.
func (f DatasetSourceFunc) FetchRawDataset(ctx context.Context) ([]byte, error) {
	return f(ctx)
}
