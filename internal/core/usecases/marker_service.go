package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/setshaba/mapdata/internal/core/domain"
	"github.com/setshaba/mapdata/internal/core/ports"
	"github.com/setshaba/mapdata/internal/pkg/geospatial"
	"github.com/setshaba/mapdata/internal/pkg/metrics"
)

const (
	defaultReportLimit = 100
	maxReportLimit     = 500
)

// MarkerQuery selects the report markers to show on the map.
type MarkerQuery struct {
	Filter   domain.ReportFilter
	Bounds   *domain.ViewportBounds
	Near     *domain.GeoPoint
	RadiusKm float64
}

// MarkerService turns reports into colored map markers.
type MarkerService struct {
	reports ports.ReportRepository
	cache   ports.KeyValueStore
	ttl     time.Duration
}

// NewMarkerService creates a new MarkerService. cache may be nil.
func NewMarkerService(reports ports.ReportRepository, cache ports.KeyValueStore, ttl time.Duration) *MarkerService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MarkerService{reports: reports, cache: cache, ttl: ttl}
}

// Markers fetches reports matching q.Filter and returns markers inside
// q.Bounds. With q.Near set, markers are ordered by distance and, when
// q.RadiusKm is positive, limited to that radius.
func (s *MarkerService) Markers(ctx context.Context, q MarkerQuery) ([]domain.Marker, error) {
	if q.Filter.Category != "" && !q.Filter.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidFilter, q.Filter.Category)
	}
	if q.Filter.Status != "" && !q.Filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidFilter, q.Filter.Status)
	}
	if q.Filter.Limit <= 0 {
		q.Filter.Limit = defaultReportLimit
	}
	if q.Filter.Limit > maxReportLimit {
		q.Filter.Limit = maxReportLimit
	}

	reports, err := s.fetchReports(ctx, q.Filter)
	if err != nil {
		return nil, err
	}

	markers := make([]domain.Marker, 0, len(reports))
	for _, r := range reports {
		loc := r.Location
		if !geospatial.PointInBounds(&loc, q.Bounds) {
			continue
		}
		m := domain.NewMarker(r)
		if q.Near != nil {
			d := geospatial.HaversineDistanceKm(*q.Near, loc)
			if q.RadiusKm > 0 && d > q.RadiusKm {
				continue
			}
			m.Distance = &d
		}
		markers = append(markers, m)
	}

	if q.Near != nil {
		sort.SliceStable(markers, func(i, j int) bool {
			return *markers[i].Distance < *markers[j].Distance
		})
	}
	return markers, nil
}

func (s *MarkerService) fetchReports(ctx context.Context, f domain.ReportFilter) ([]domain.Report, error) {
	cacheKey := fmt.Sprintf("reports:list:%s:%s:%s:%d", f.Category, f.Status, f.MunicipalityID, f.Limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var reports []domain.Report
			if err := json.Unmarshal(data, &reports); err == nil {
				metrics.CacheHits.WithLabelValues("reports").Inc()
				return reports, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("reports").Inc()
	}

	reports, err := s.reports.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(reports); err == nil {
			if err := s.cache.Set(ctx, cacheKey, data, int(s.ttl.Seconds())); err != nil {
				slog.Warn("failed to cache reports", "key", cacheKey, "error", err)
			}
		}
	}
	return reports, nil
}
