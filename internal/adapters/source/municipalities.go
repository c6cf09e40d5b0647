package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"github.com/setshaba/mapdata/internal/core/ports"
)

// MunicipalityBoundarySource builds a FeatureCollection from the boundary
// geometry stored with each municipality.
type MunicipalityBoundarySource struct {
	repo ports.MunicipalityRepository
}

// NewMunicipalityBoundarySource creates a MunicipalityBoundarySource.
func NewMunicipalityBoundarySource(repo ports.MunicipalityRepository) *MunicipalityBoundarySource {
	return &MunicipalityBoundarySource{repo: repo}
}

// FetchRawDataset returns the boundaries as a GeoJSON document. Rows with an
// unreadable geometry are skipped.
func (s *MunicipalityBoundarySource) FetchRawDataset(ctx context.Context) ([]byte, error) {
	munis, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list municipalities: %w", err)
	}

	fc := geojson.NewFeatureCollection()
	for _, m := range munis {
		g, err := geojson.UnmarshalGeometry(m.Bounds)
		if err != nil {
			slog.Warn("skipping municipality with invalid bounds", "id", m.ID, "name", m.Name, "error", err)
			continue
		}
		f := geojson.NewFeature(g.Geometry())
		f.ID = m.ID
		f.Properties["name"] = m.Name
		f.Properties["code"] = m.Code
		if m.Province != "" {
			f.Properties["province"] = m.Province
		}
		fc.Append(f)
	}
	return fc.MarshalJSON()
}
