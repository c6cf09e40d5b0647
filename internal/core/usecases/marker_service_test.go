package usecases_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/setshaba/mapdata/internal/core/domain"
	"github.com/setshaba/mapdata/internal/core/usecases"
)

// --- Mock ReportRepository ---

type mockReportRepo struct {
	calls  int
	listFn func(ctx context.Context, f domain.ReportFilter) ([]domain.Report, error)
}

func (m *mockReportRepo) List(ctx context.Context, f domain.ReportFilter) ([]domain.Report, error) {
	m.calls++
	if m.listFn != nil {
		return m.listFn(ctx, f)
	}
	return sampleReports(), nil
}

func sampleReports() []domain.Report {
	return []domain.Report{
		{ID: "r1", Title: "Burst pipe", Category: domain.CategoryWater, Status: domain.StatusPending,
			Location: domain.GeoPoint{Lat: -26.20, Lon: 28.05}},
		{ID: "r2", Title: "Pothole", Category: domain.CategoryRoads, Status: domain.StatusInProgress,
			Location: domain.GeoPoint{Lat: -26.10, Lon: 28.00}},
		{ID: "r3", Title: "Streetlight out", Category: "graffiti", Status: domain.StatusAcknowledged,
			Location: domain.GeoPoint{Lat: -33.92, Lon: 18.42}},
	}
}

func TestMarkerService_Colors(t *testing.T) {
	svc := usecases.NewMarkerService(&mockReportRepo{}, nil, 0)

	markers, err := svc.Markers(context.Background(), usecases.MarkerQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(markers) != 3 {
		t.Fatalf("expected 3 markers, got %d", len(markers))
	}
	want := map[string]string{"r1": "#2196F3", "r2": "#FF5722", "r3": domain.DefaultMarkerColor}
	for _, m := range markers {
		if m.Color != want[m.ID] {
			t.Errorf("marker %s: expected color %s, got %s", m.ID, want[m.ID], m.Color)
		}
		if m.Report == nil || m.Report.ID != m.ID {
			t.Errorf("marker %s: missing report payload", m.ID)
		}
	}
}

func TestMarkerService_DefaultLimit(t *testing.T) {
	repo := &mockReportRepo{listFn: func(ctx context.Context, f domain.ReportFilter) ([]domain.Report, error) {
		if f.Limit != 100 {
			t.Errorf("expected default limit 100, got %d", f.Limit)
		}
		return nil, nil
	}}
	svc := usecases.NewMarkerService(repo, nil, 0)
	_, _ = svc.Markers(context.Background(), usecases.MarkerQuery{})

	repo.listFn = func(ctx context.Context, f domain.ReportFilter) ([]domain.Report, error) {
		if f.Limit != 500 {
			t.Errorf("expected limit clamped to 500, got %d", f.Limit)
		}
		return nil, nil
	}
	_, _ = svc.Markers(context.Background(), usecases.MarkerQuery{Filter: domain.ReportFilter{Limit: 9999}})
}

func TestMarkerService_BoundsFilter(t *testing.T) {
	svc := usecases.NewMarkerService(&mockReportRepo{}, nil, 0)
	bounds := domain.DefaultRegion.Bounds()

	markers, err := svc.Markers(context.Background(), usecases.MarkerQuery{Bounds: &bounds})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers in Johannesburg, got %d", len(markers))
	}
}

func TestMarkerService_NearSortsByDistance(t *testing.T) {
	svc := usecases.NewMarkerService(&mockReportRepo{}, nil, 0)
	near := domain.GeoPoint{Lat: -26.11, Lon: 28.00}

	markers, err := svc.Markers(context.Background(), usecases.MarkerQuery{Near: &near, RadiusKm: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers within 50km, got %d", len(markers))
	}
	if markers[0].ID != "r2" || markers[1].ID != "r1" {
		t.Errorf("expected [r2 r1], got [%s %s]", markers[0].ID, markers[1].ID)
	}
	if markers[0].Distance == nil || *markers[0].Distance > *markers[1].Distance {
		t.Error("distances missing or unsorted")
	}
}

func TestMarkerService_InvalidFilter(t *testing.T) {
	svc := usecases.NewMarkerService(&mockReportRepo{}, nil, 0)

	_, err := svc.Markers(context.Background(), usecases.MarkerQuery{Filter: domain.ReportFilter{Category: "parking"}})
	if !errors.Is(err, domain.ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
	_, err = svc.Markers(context.Background(), usecases.MarkerQuery{Filter: domain.ReportFilter{Status: "closed"}})
	if !errors.Is(err, domain.ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestMarkerService_CachesReports(t *testing.T) {
	repo := &mockReportRepo{}
	store := newMemStore()
	svc := usecases.NewMarkerService(repo, store, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Markers(ctx, usecases.MarkerQuery{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if repo.calls != 1 {
		t.Errorf("expected 1 repository call, got %d", repo.calls)
	}
}

func TestMarkerService_RepositoryError(t *testing.T) {
	repo := &mockReportRepo{listFn: func(ctx context.Context, f domain.ReportFilter) ([]domain.Report, error) {
		return nil, errors.New("db down")
	}}
	svc := usecases.NewMarkerService(repo, nil, 0)

	if _, err := svc.Markers(context.Background(), usecases.MarkerQuery{}); err == nil {
		t.Error("expected error")
	}
}

func TestMarkerService_CacheWriteFailureStillServes(t *testing.T) {
	store := newMemStore()
	store.setErr = errors.New("read-only replica")
	svc := usecases.NewMarkerService(&mockReportRepo{}, store, 0)

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	defer slog.SetDefault(prev)

	markers, err := svc.Markers(context.Background(), usecases.MarkerQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(markers) != 3 {
		t.Errorf("expected 3 markers, got %d", len(markers))
	}
	if !strings.Contains(logs.String(), "failed to cache reports") || !strings.Contains(logs.String(), "read-only replica") {
		t.Errorf("expected cache write failure to be logged, got:\n%s", logs.String())
	}
}
