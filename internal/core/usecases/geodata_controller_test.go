package usecases_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/setshaba/mapdata/internal/core/domain"
	"github.com/setshaba/mapdata/internal/core/ports"
	"github.com/setshaba/mapdata/internal/core/usecases"
)

const wardsJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"ward_id": "jhb-1", "name": "Johannesburg Ward 1"},
      "geometry": {"type": "Polygon", "coordinates": [[[28.00,-26.25],[28.05,-26.25],[28.05,-26.20],[28.00,-26.20],[28.00,-26.25]]]}
    },
    {
      "type": "Feature",
      "properties": {"ward_id": "cpt-1", "name": "Cape Town Ward 1"},
      "geometry": {"type": "Polygon", "coordinates": [[[18.40,-33.95],[18.45,-33.95],[18.45,-33.90],[18.40,-33.90],[18.40,-33.95]]]}
    }
  ]
}`

const singleWardJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"ward_id": "refreshed"},
      "geometry": {"type": "Polygon", "coordinates": [[[28.00,-26.25],[28.05,-26.25],[28.05,-26.20],[28.00,-26.25]]]}
    }
  ]
}`

// --- Mock DatasetSource ---

type mockSource struct {
	calls   atomic.Int32
	fetchFn func(ctx context.Context, call int) ([]byte, error)
}

func (m *mockSource) FetchRawDataset(ctx context.Context) ([]byte, error) {
	n := int(m.calls.Add(1))
	if m.fetchFn != nil {
		return m.fetchFn(ctx, n)
	}
	return []byte(wardsJSON), nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.StateEvent
}

func (m *mockPublisher) PublishStateChange(ctx context.Context, ev *domain.StateEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

var _ ports.EventPublisher = (*mockPublisher)(nil)

func newController(src ports.DatasetSource, store *memStore, opts ...usecases.ControllerOption) *usecases.GeoDataController {
	cache := usecases.NewGeoCache(store, "setshaba")
	return usecases.NewGeoDataController("wards", src, cache, opts...)
}

func featureIDs(t *testing.T, c *usecases.GeoDataController, bounds *domain.ViewportBounds) []string {
	t.Helper()
	fc, state := c.CurrentView(bounds)
	if state != domain.StateReady {
		t.Fatalf("expected ready, got %s", state)
	}
	var ids []string
	for _, f := range fc.Features {
		ids = append(ids, f.Properties.MustString("ward_id"))
	}
	return ids
}

// --- Tests ---

func TestGeoDataController_InitialState(t *testing.T) {
	c := newController(&mockSource{}, newMemStore())

	snap := c.Snapshot()
	if snap.State != domain.StateIdle {
		t.Errorf("expected idle, got %s", snap.State)
	}
	if fc, state := c.CurrentView(nil); fc != nil || state != domain.StateIdle {
		t.Errorf("expected no view while idle, got %v/%s", fc, state)
	}
}

func TestGeoDataController_CacheMissFetchesAndStores(t *testing.T) {
	src := &mockSource{}
	store := newMemStore()
	c := newController(src, store)

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := c.Snapshot()
	if snap.State != domain.StateReady {
		t.Fatalf("expected ready, got %s (%s)", snap.State, snap.Error)
	}
	if snap.FromCache {
		t.Error("expected data from source, not cache")
	}
	if snap.Features != 2 {
		t.Errorf("expected 2 features, got %d", snap.Features)
	}
	if src.calls.Load() != 1 {
		t.Errorf("expected 1 fetch, got %d", src.calls.Load())
	}
	if !store.has("setshaba:wards") {
		t.Error("dataset was not cached")
	}
}

func TestGeoDataController_CacheHitSkipsFetch(t *testing.T) {
	store := newMemStore()
	cache := usecases.NewGeoCache(store, "setshaba")
	if err := cache.Put(context.Background(), "wards", wardCollection()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	src := &mockSource{}
	c := usecases.NewGeoDataController("wards", src, cache)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if src.calls.Load() != 0 {
		t.Errorf("expected no fetch on cache hit, got %d", src.calls.Load())
	}
	snap := c.Snapshot()
	if snap.State != domain.StateReady || !snap.FromCache {
		t.Errorf("expected ready from cache, got %+v", snap)
	}
}

func TestGeoDataController_FetchFailure(t *testing.T) {
	src := &mockSource{fetchFn: func(ctx context.Context, call int) ([]byte, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	store := newMemStore()
	c := newController(src, store)

	err := c.Load(context.Background())
	if !errors.Is(err, domain.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}

	snap := c.Snapshot()
	if snap.State != domain.StateFailed {
		t.Fatalf("expected failed, got %s", snap.State)
	}
	if !strings.Contains(snap.Error, "connection refused") {
		t.Errorf("expected readable error message, got %q", snap.Error)
	}
	if fc, _ := c.CurrentView(nil); fc != nil {
		t.Error("expected no dataset after failure")
	}
	if store.sets != 0 {
		t.Error("nothing should be cached on failure")
	}
}

func TestGeoDataController_ParseFailure(t *testing.T) {
	src := &mockSource{fetchFn: func(ctx context.Context, call int) ([]byte, error) {
		return []byte("<html>502 Bad Gateway</html>"), nil
	}}
	c := newController(src, newMemStore())

	err := c.Load(context.Background())
	if !errors.Is(err, domain.ErrParseFailed) {
		t.Fatalf("expected ErrParseFailed, got %v", err)
	}
	if c.Snapshot().State != domain.StateFailed {
		t.Errorf("expected failed, got %s", c.Snapshot().State)
	}
}

func TestGeoDataController_RejectsNonCollection(t *testing.T) {
	src := &mockSource{fetchFn: func(ctx context.Context, call int) ([]byte, error) {
		return []byte(`{"type":"Feature","geometry":null,"properties":{}}`), nil
	}}
	c := newController(src, newMemStore())

	if err := c.Load(context.Background()); !errors.Is(err, domain.ErrParseFailed) {
		t.Fatalf("expected ErrParseFailed, got %v", err)
	}
}

func TestGeoDataController_RefreshAfterFailure(t *testing.T) {
	src := &mockSource{fetchFn: func(ctx context.Context, call int) ([]byte, error) {
		if call == 1 {
			return nil, errors.New("timeout")
		}
		return []byte(wardsJSON), nil
	}}
	c := newController(src, newMemStore())
	ctx := context.Background()

	_ = c.Load(ctx)
	if c.Snapshot().State != domain.StateFailed {
		t.Fatalf("expected failed after first load, got %s", c.Snapshot().State)
	}

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Snapshot().State != domain.StateReady {
		t.Errorf("expected ready after refresh, got %s", c.Snapshot().State)
	}
	if src.calls.Load() != 2 {
		t.Errorf("expected 2 fetches, got %d", src.calls.Load())
	}
}

func TestGeoDataController_RefreshBypassesCache(t *testing.T) {
	src := &mockSource{fetchFn: func(ctx context.Context, call int) ([]byte, error) {
		if call == 1 {
			return []byte(wardsJSON), nil
		}
		return []byte(singleWardJSON), nil
	}}
	c := newController(src, newMemStore())
	ctx := context.Background()

	_ = c.Load(ctx)
	_ = c.Load(ctx) // served from cache
	if src.calls.Load() != 1 {
		t.Fatalf("expected second load to hit cache, got %d fetches", src.calls.Load())
	}

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := featureIDs(t, c, nil)
	if len(ids) != 1 || ids[0] != "refreshed" {
		t.Errorf("expected refreshed dataset, got %v", ids)
	}
}

func TestGeoDataController_LoadWhileLoadingIsNoop(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	src := &mockSource{fetchFn: func(ctx context.Context, call int) ([]byte, error) {
		close(started)
		<-release
		return []byte(wardsJSON), nil
	}}
	c := newController(src, newMemStore())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Load(ctx) }()
	<-started

	if c.Snapshot().State != domain.StateLoading {
		t.Fatalf("expected loading, got %s", c.Snapshot().State)
	}
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Load(ctx); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls.Load() != 1 {
		t.Errorf("expected exactly 1 fetch, got %d", src.calls.Load())
	}
	if c.Snapshot().State != domain.StateReady {
		t.Errorf("expected ready, got %s", c.Snapshot().State)
	}
}

func TestGeoDataController_StaleLoadDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	src := &mockSource{fetchFn: func(ctx context.Context, call int) ([]byte, error) {
		if call == 1 {
			close(started)
			<-release
			return []byte(wardsJSON), nil
		}
		return []byte(singleWardJSON), nil
	}}
	store := newMemStore()
	c := newController(src, store)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Load(ctx) }()
	<-started

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := featureIDs(t, c, nil)
	if len(ids) != 1 || ids[0] != "refreshed" {
		t.Errorf("stale load overwrote newer data: %v", ids)
	}

	cache := usecases.NewGeoCache(store, "setshaba")
	cached, ok := cache.Get(ctx, "wards")
	if !ok || len(cached.Features) != 1 {
		t.Error("stale load overwrote the cache entry")
	}
}

func TestGeoDataController_CallerCancelDoesNotAbortLoad(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	src := &mockSource{fetchFn: func(ctx context.Context, call int) ([]byte, error) {
		close(started)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return []byte(wardsJSON), nil
		}
	}}
	c := newController(src, newMemStore())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Load(ctx) }()
	<-started

	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap := c.Snapshot(); snap.State != domain.StateReady {
		t.Fatalf("expected ready after caller went away, got %s (%s)", snap.State, snap.Error)
	}
}

func TestGeoDataController_ServesPreviousDataWhileRefreshing(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	src := &mockSource{fetchFn: func(ctx context.Context, call int) ([]byte, error) {
		if call == 1 {
			return []byte(wardsJSON), nil
		}
		close(started)
		<-release
		return []byte(singleWardJSON), nil
	}}
	c := newController(src, newMemStore())
	ctx := context.Background()

	if err := c.Load(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Refresh(ctx) }()
	<-started

	fc, state := c.CurrentView(nil)
	if state != domain.StateLoading {
		t.Fatalf("expected loading during refresh, got %s", state)
	}
	if fc == nil || len(fc.Features) != 2 {
		t.Fatalf("expected previous dataset during refresh, got %v", fc)
	}
	bounds := domain.DefaultRegion.Bounds()
	if fc, _ := c.CurrentView(&bounds); fc == nil || len(fc.Features) != 1 {
		t.Errorf("expected bounds filter to apply during refresh, got %v", fc)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := featureIDs(t, c, nil)
	if len(ids) != 1 || ids[0] != "refreshed" {
		t.Errorf("expected refreshed dataset, got %v", ids)
	}
}

func TestGeoDataController_FailedRefreshClearsView(t *testing.T) {
	src := &mockSource{fetchFn: func(ctx context.Context, call int) ([]byte, error) {
		if call == 1 {
			return []byte(wardsJSON), nil
		}
		return nil, errors.New("connection reset")
	}}
	c := newController(src, newMemStore())
	ctx := context.Background()

	if err := c.Load(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Refresh(ctx); err == nil {
		t.Fatal("expected refresh error")
	}
	if fc, state := c.CurrentView(nil); fc != nil || state != domain.StateFailed {
		t.Errorf("expected no view after failed refresh, got %v/%s", fc, state)
	}
}

func TestGeoDataController_CurrentViewFiltersByBounds(t *testing.T) {
	c := newController(&mockSource{}, newMemStore())
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bounds := domain.DefaultRegion.Bounds()
	ids := featureIDs(t, c, &bounds)
	if len(ids) != 1 || ids[0] != "jhb-1" {
		t.Errorf("expected only jhb-1 in Johannesburg viewport, got %v", ids)
	}

	all := featureIDs(t, c, nil)
	if len(all) != 2 {
		t.Errorf("expected full dataset without bounds, got %v", all)
	}
}

func TestGeoDataController_CurrentViewIsIsolated(t *testing.T) {
	c := newController(&mockSource{}, newMemStore())
	_ = c.Load(context.Background())

	fc, _ := c.CurrentView(nil)
	fc.Features = fc.Features[:0]

	if c.Snapshot().Features != 2 {
		t.Error("caller mutation leaked into the controller")
	}
	if again, _ := c.CurrentView(nil); len(again.Features) != 2 {
		t.Error("caller mutation leaked into later views")
	}
}

func TestGeoDataController_SubscribeReceivesTransitions(t *testing.T) {
	pub := &mockPublisher{}
	c := newController(&mockSource{}, newMemStore(), usecases.WithPublisher(pub, "instance-a"))

	events, cancel := c.Subscribe(4)
	defer cancel()

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []domain.LoadState
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.State)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[0] != domain.StateLoading || got[1] != domain.StateReady {
		t.Errorf("expected [loading ready], got %v", got)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 || pub.events[0].State != domain.StateReady {
		t.Fatalf("expected one published ready event, got %+v", pub.events)
	}
	if pub.events[0].Origin != "instance-a" {
		t.Errorf("expected origin instance-a, got %q", pub.events[0].Origin)
	}
}

func TestGeoDataController_CancelSubscription(t *testing.T) {
	c := newController(&mockSource{}, newMemStore())
	events, cancel := c.Subscribe(1)
	cancel()
	cancel()

	if _, ok := <-events; ok {
		t.Error("expected closed channel after cancel")
	}
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGeoDataController_ReloadReadsSharedCache(t *testing.T) {
	store := newMemStore()
	src := &mockSource{}
	c := newController(src, store)
	ctx := context.Background()
	_ = c.Load(ctx)

	// a peer instance writes a newer dataset to the shared store
	peer := usecases.NewGeoCache(store, "setshaba")
	newer, _ := usecases.ParseDataset([]byte(singleWardJSON))
	_ = peer.Put(ctx, "wards", newer)

	if err := c.Reload(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls.Load() != 1 {
		t.Errorf("reload should not fetch, got %d fetches", src.calls.Load())
	}
	ids := featureIDs(t, c, nil)
	if len(ids) != 1 || ids[0] != "refreshed" {
		t.Errorf("expected peer dataset, got %v", ids)
	}
}

func TestDatasetRegistry(t *testing.T) {
	failing := &mockSource{fetchFn: func(ctx context.Context, call int) ([]byte, error) {
		return nil, errors.New("boom")
	}}
	store := newMemStore()
	wards := newController(&mockSource{}, store)
	munis := usecases.NewGeoDataController("municipalities", failing, usecases.NewGeoCache(store, "setshaba"))
	reg := usecases.NewDatasetRegistry(wards, munis)

	if names := reg.Names(); len(names) != 2 || names[0] != "municipalities" || names[1] != "wards" {
		t.Errorf("unexpected names: %v", names)
	}
	if _, err := reg.Get("provinces"); !errors.Is(err, domain.ErrDatasetNotFound) {
		t.Errorf("expected ErrDatasetNotFound, got %v", err)
	}

	err := reg.LoadAll(context.Background())
	if !errors.Is(err, domain.ErrFetchFailed) {
		t.Errorf("expected joined fetch failure, got %v", err)
	}
	snaps := reg.Snapshots()
	if snaps[0].State != domain.StateFailed || snaps[1].State != domain.StateReady {
		t.Errorf("unexpected states: %+v", snaps)
	}
}
