package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/setshaba/mapdata/internal/core/domain"
	"github.com/setshaba/mapdata/internal/core/ports"
	"github.com/setshaba/mapdata/internal/pkg/geospatial"
	"github.com/setshaba/mapdata/internal/pkg/metrics"
)

// GeoDataController owns one named dataset: it loads it from cache or source,
// simplifies and caches it, and serves bounds-filtered views while Ready.
//
// State machine: Idle -> Loading -> Ready | Failed. Load while Loading is a
// no-op. Refresh and Reload supersede an in-flight load; every load carries a
// request id and completions for an older id are discarded.
type GeoDataController struct {
	name      string
	cacheKey  string
	source    ports.DatasetSource
	cache     *GeoCache
	tolerance float64
	publisher ports.EventPublisher
	origin    string
	tracer    trace.Tracer

	mu        sync.RWMutex
	state     domain.LoadState
	errMsg    string
	data      *geojson.FeatureCollection
	fromCache bool
	requestID uint64
	updatedAt time.Time
	subs      map[int]chan domain.StateEvent
	nextSub   int
}

// ControllerOption configures a GeoDataController.
type ControllerOption func(*GeoDataController)

// WithTolerance sets the simplification tolerance in degrees.
func WithTolerance(t float64) ControllerOption {
	return func(c *GeoDataController) { c.tolerance = t }
}

// WithCacheKey overrides the cache key, which defaults to the dataset name.
func WithCacheKey(key string) ControllerOption {
	return func(c *GeoDataController) { c.cacheKey = key }
}

// WithPublisher forwards state transitions to a message broker.
func WithPublisher(p ports.EventPublisher, origin string) ControllerOption {
	return func(c *GeoDataController) {
		c.publisher = p
		c.origin = origin
	}
}

// NewGeoDataController creates an Idle controller for the named dataset.
func NewGeoDataController(name string, source ports.DatasetSource, cache *GeoCache, opts ...ControllerOption) *GeoDataController {
	c := &GeoDataController{
		name:      name,
		cacheKey:  name,
		source:    source,
		cache:     cache,
		tolerance: geospatial.DefaultTolerance,
		tracer:    otel.Tracer("github.com/setshaba/mapdata/internal/core/usecases"),
		state:     domain.StateIdle,
		updatedAt: time.Now(),
		subs:      make(map[int]chan domain.StateEvent),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the dataset name.
func (c *GeoDataController) Name() string { return c.name }

// Load brings the dataset to Ready from the cache or, on a miss, from the
// source. It returns immediately if a load is already in flight. A fetch or
// parse failure moves the controller to Failed and is also returned.
//
// The load is shared by every reader of the dataset, so cancelling ctx does
// not abort it; fetch timeouts belong to the DatasetSource.
func (c *GeoDataController) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.state == domain.StateLoading {
		c.mu.Unlock()
		return nil
	}
	id := c.beginLocked()
	c.mu.Unlock()

	return c.run(ctx, id)
}

// Refresh invalidates the cached dataset and loads it again from the source,
// superseding any load in flight.
func (c *GeoDataController) Refresh(ctx context.Context) error {
	if err := c.cache.Invalidate(ctx, c.cacheKey); err != nil {
		slog.Warn("cache invalidation failed", "dataset", c.name, "error", err)
	}
	return c.forceLoad(ctx)
}

// Reload re-reads the dataset without invalidating the cache. Used when a
// peer instance has just written a fresh entry to a shared store.
func (c *GeoDataController) Reload(ctx context.Context) error {
	return c.forceLoad(ctx)
}

func (c *GeoDataController) forceLoad(ctx context.Context) error {
	c.mu.Lock()
	id := c.beginLocked()
	c.mu.Unlock()

	return c.run(ctx, id)
}

// beginLocked starts a new logical request. Caller holds c.mu.
func (c *GeoDataController) beginLocked() uint64 {
	c.requestID++
	c.state = domain.StateLoading
	c.errMsg = ""
	c.updatedAt = time.Now()
	c.emitLocked()
	return c.requestID
}

func (c *GeoDataController) run(ctx context.Context, id uint64) error {
	ctx = context.WithoutCancel(ctx)
	ctx, span := c.tracer.Start(ctx, "GeoDataController.load", trace.WithAttributes(
		attribute.String("dataset", c.name),
		attribute.Int64("request_id", int64(id)),
	))
	defer span.End()

	if fc, ok := c.cache.Get(ctx, c.cacheKey); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		c.complete(ctx, id, fc, true, nil)
		return nil
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))

	start := time.Now()
	raw, err := c.source.FetchRawDataset(ctx)
	metrics.DatasetFetchDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
		metrics.DatasetFetchErrors.WithLabelValues(c.name, "fetch").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		c.complete(ctx, id, nil, false, err)
		return err
	}

	fc, err := ParseDataset(raw)
	if err != nil {
		metrics.DatasetFetchErrors.WithLabelValues(c.name, "parse").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		c.complete(ctx, id, nil, false, err)
		return err
	}

	simplified := geospatial.Simplify(fc, c.tolerance)
	if before := geospatial.VertexCount(fc); before > 0 {
		metrics.SimplifiedVertices.WithLabelValues(c.name).Observe(
			float64(geospatial.VertexCount(simplified)) / float64(before))
	}

	if !c.isCurrent(id) {
		slog.Debug("discarding superseded load", "dataset", c.name, "request_id", id)
		return nil
	}
	if err := c.cache.Put(ctx, c.cacheKey, simplified); err != nil {
		slog.Warn("failed to cache dataset", "dataset", c.name, "error", err)
	}

	c.complete(ctx, id, simplified, false, nil)
	return nil
}

// ParseDataset decodes a GeoJSON FeatureCollection document.
func ParseDataset(raw []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrParseFailed, err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: unexpected type %q", domain.ErrParseFailed, fc.Type)
	}
	return fc, nil
}

func (c *GeoDataController) isCurrent(id uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requestID == id
}

// complete applies the outcome of request id unless a newer request exists.
func (c *GeoDataController) complete(ctx context.Context, id uint64, fc *geojson.FeatureCollection, fromCache bool, err error) {
	c.mu.Lock()
	if id != c.requestID {
		c.mu.Unlock()
		slog.Debug("discarding superseded load", "dataset", c.name, "request_id", id)
		return
	}
	if err != nil {
		c.state = domain.StateFailed
		c.errMsg = err.Error()
		c.data = nil
		c.fromCache = false
		metrics.DatasetFeatures.WithLabelValues(c.name).Set(0)
	} else {
		c.state = domain.StateReady
		c.errMsg = ""
		c.data = fc
		c.fromCache = fromCache
		metrics.DatasetFeatures.WithLabelValues(c.name).Set(float64(len(fc.Features)))
	}
	c.updatedAt = time.Now()
	ev := c.emitLocked()
	c.mu.Unlock()

	if err != nil {
		slog.Warn("dataset load failed", "dataset", c.name, "request_id", id, "error", err)
	} else {
		slog.Info("dataset ready", "dataset", c.name, "features", len(fc.Features), "from_cache", fromCache)
	}

	if c.publisher != nil {
		if perr := c.publisher.PublishStateChange(ctx, &ev); perr != nil {
			slog.Warn("failed to publish state change", "dataset", c.name, "error", perr)
		}
	}
}

// emitLocked fans the current state out to subscribers. Slow subscribers
// miss events rather than block the controller. Caller holds c.mu.
func (c *GeoDataController) emitLocked() domain.StateEvent {
	ev := domain.StateEvent{StateSnapshot: c.snapshotLocked(), Origin: c.origin}
	metrics.DatasetStateTransitions.WithLabelValues(c.name, string(ev.State)).Inc()
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("state subscriber lagging, event dropped", "dataset", c.name, "subscriber", id)
		}
	}
	return ev
}

func (c *GeoDataController) snapshotLocked() domain.StateSnapshot {
	n := 0
	if c.data != nil {
		n = len(c.data.Features)
	}
	return domain.StateSnapshot{
		Dataset:   c.name,
		State:     c.state,
		Error:     c.errMsg,
		Features:  n,
		FromCache: c.fromCache,
		RequestID: c.requestID,
		UpdatedAt: c.updatedAt,
	}
}

// Snapshot returns the current state.
func (c *GeoDataController) Snapshot() domain.StateSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel of state transitions and a cancel func that
// unregisters and closes it.
func (c *GeoDataController) Subscribe(buffer int) (<-chan domain.StateEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.StateEvent, buffer)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			close(ch)
			c.mu.Unlock()
		})
	}
}

// CurrentView returns the dataset restricted to bounds together with the
// current state. While a refresh is in flight the previously published
// dataset is still served with state Loading. The collection is nil when
// nothing has been published yet and after a failure. A nil bounds returns
// every feature.
func (c *GeoDataController) CurrentView(bounds *domain.ViewportBounds) (*geojson.FeatureCollection, domain.LoadState) {
	c.mu.RLock()
	data, state := c.data, c.state
	c.mu.RUnlock()

	if data == nil || state == domain.StateFailed {
		return nil, state
	}
	if bounds == nil {
		return shallowCopy(data), state
	}
	return geospatial.FilterByBounds(data, bounds), state
}

// shallowCopy returns a new collection sharing the (immutable) features.
func shallowCopy(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := *fc
	out.Features = append([]*geojson.Feature(nil), fc.Features...)
	return &out
}
