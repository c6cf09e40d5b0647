package usecases_test

import (
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/setshaba/mapdata/internal/core/domain"
	"github.com/setshaba/mapdata/internal/core/usecases"
)

// --- Mock ViewSource ---

type mockViews struct {
	mu     sync.Mutex
	bounds []domain.ViewportBounds
	state  domain.LoadState
}

func (m *mockViews) Name() string { return "wards" }

func (m *mockViews) CurrentView(b *domain.ViewportBounds) (*geojson.FeatureCollection, domain.LoadState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bounds = append(m.bounds, *b)
	if m.state != domain.StateReady {
		return nil, m.state
	}
	return wardCollection(), m.state
}

func (m *mockViews) requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bounds)
}

func TestViewportAdapter_DeliversLastSettledRegion(t *testing.T) {
	views := &mockViews{state: domain.StateReady}
	updates := make(chan domain.ViewportUpdate, 4)
	a := usecases.NewViewportAdapter(views, 100*time.Millisecond, func(u domain.ViewportUpdate) {
		updates <- u
	})
	defer a.Close()

	for i := 0; i < 5; i++ {
		r := domain.DefaultRegion
		r.Latitude += float64(i) * 0.01
		a.RegionChanged(r)
		time.Sleep(5 * time.Millisecond)
	}

	var u domain.ViewportUpdate
	select {
	case u = <-updates:
	case <-time.After(time.Second):
		t.Fatal("no viewport update delivered")
	}
	time.Sleep(200 * time.Millisecond)

	if views.requests() != 1 {
		t.Errorf("expected 1 view computation, got %d", views.requests())
	}
	last := domain.DefaultRegion
	last.Latitude += float64(4) * 0.01
	if u.Bounds != last.Bounds() {
		t.Errorf("expected bounds of last region %+v, got %+v", last.Bounds(), u.Bounds)
	}
	if u.Dataset != "wards" || u.State != domain.StateReady || u.Data == nil {
		t.Errorf("unexpected update: %+v", u)
	}
}

func TestViewportAdapter_NotReady(t *testing.T) {
	views := &mockViews{state: domain.StateLoading}
	updates := make(chan domain.ViewportUpdate, 1)
	a := usecases.NewViewportAdapter(views, 10*time.Millisecond, func(u domain.ViewportUpdate) {
		updates <- u
	})
	defer a.Close()

	a.RegionChanged(domain.DefaultRegion)

	select {
	case u := <-updates:
		if u.State != domain.StateLoading || u.Data != nil {
			t.Errorf("expected loading update without data, got %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no viewport update delivered")
	}
}

func TestViewportAdapter_CloseDropsPending(t *testing.T) {
	views := &mockViews{state: domain.StateReady}
	a := usecases.NewViewportAdapter(views, 30*time.Millisecond, func(domain.ViewportUpdate) {})

	a.RegionChanged(domain.DefaultRegion)
	a.Close()
	time.Sleep(80 * time.Millisecond)

	if views.requests() != 0 {
		t.Errorf("expected no view computation after close, got %d", views.requests())
	}
}

func TestRegionBounds(t *testing.T) {
	b := domain.Region{Latitude: -26, Longitude: 28, LatitudeDelta: 0.5, LongitudeDelta: 1}.Bounds()
	if b.NorthEast.Lat != -25.75 || b.SouthWest.Lat != -26.25 {
		t.Errorf("unexpected latitudes: %+v", b)
	}
	if b.NorthEast.Lon != 28.5 || b.SouthWest.Lon != 27.5 {
		t.Errorf("unexpected longitudes: %+v", b)
	}
}
