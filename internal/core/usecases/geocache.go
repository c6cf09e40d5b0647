package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/setshaba/mapdata/internal/core/ports"
	"github.com/setshaba/mapdata/internal/pkg/metrics"
)

const (
	// DefaultCacheMaxAge is how long a cached dataset stays valid.
	DefaultCacheMaxAge = 24 * time.Hour
	// DefaultCacheVersion tags the entry layout; entries with another tag are discarded.
	DefaultCacheVersion = "v1"

	// storeTTLGrace keeps the stored entry alive past maxAge so the age
	// check, not the store, decides when an entry expires.
	storeTTLGrace = time.Minute
)

// cacheEntry is the stored form of a dataset.
type cacheEntry struct {
	Version   string          `json:"version"`
	CreatedAt int64           `json:"created_at"` // unix milliseconds
	Data      json.RawMessage `json:"data"`
}

// GeoCache stores GeoJSON datasets in a KeyValueStore under a namespace,
// treating entries older than maxAge or written with another version as absent.
// An entry exactly maxAge old is still valid.
type GeoCache struct {
	store     ports.KeyValueStore
	namespace string
	version   string
	maxAge    time.Duration
	now       func() time.Time
}

// GeoCacheOption configures a GeoCache.
type GeoCacheOption func(*GeoCache)

// WithCacheVersion sets the entry version tag.
func WithCacheVersion(v string) GeoCacheOption {
	return func(c *GeoCache) { c.version = v }
}

// WithCacheMaxAge sets the expiry window.
func WithCacheMaxAge(d time.Duration) GeoCacheOption {
	return func(c *GeoCache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// WithCacheClock replaces the clock used for timestamps and expiry.
func WithCacheClock(now func() time.Time) GeoCacheOption {
	return func(c *GeoCache) { c.now = now }
}

// NewGeoCache creates a GeoCache writing keys as "<namespace>:<key>".
func NewGeoCache(store ports.KeyValueStore, namespace string, opts ...GeoCacheOption) *GeoCache {
	c := &GeoCache{
		store:     store,
		namespace: namespace,
		version:   DefaultCacheVersion,
		maxAge:    DefaultCacheMaxAge,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *GeoCache) storeKey(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

// Get returns the cached dataset for key. Expired, corrupt or
// version-mismatched entries are evicted and reported as absent.
func (c *GeoCache) Get(ctx context.Context, key string) (*geojson.FeatureCollection, bool) {
	sk := c.storeKey(key)

	raw, err := c.store.Get(ctx, sk)
	if err != nil {
		if !errors.Is(err, ports.ErrKeyNotFound) {
			slog.Warn("geo cache read failed", "key", sk, "error", err)
		}
		metrics.CacheMisses.WithLabelValues("geodata").Inc()
		return nil, false
	}

	fc, reason := c.decode(raw)
	if fc == nil {
		slog.Warn("evicting geo cache entry", "key", sk, "reason", reason)
		if err := c.store.Delete(ctx, sk); err != nil {
			slog.Warn("geo cache evict failed", "key", sk, "error", err)
		}
		metrics.CacheMisses.WithLabelValues("geodata").Inc()
		return nil, false
	}

	metrics.CacheHits.WithLabelValues("geodata").Inc()
	return fc, true
}

func (c *GeoCache) decode(raw []byte) (*geojson.FeatureCollection, string) {
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, "corrupt entry: " + err.Error()
	}
	if entry.Version != c.version {
		return nil, fmt.Sprintf("version %q, want %q", entry.Version, c.version)
	}
	age := c.now().Sub(time.UnixMilli(entry.CreatedAt))
	if age > c.maxAge {
		return nil, "expired after " + age.Truncate(time.Second).String()
	}
	fc, err := geojson.UnmarshalFeatureCollection(entry.Data)
	if err != nil {
		return nil, "corrupt dataset: " + err.Error()
	}
	return fc, ""
}

// Put stores fc under key, stamped with the current time.
func (c *GeoCache) Put(ctx context.Context, key string, fc *geojson.FeatureCollection) error {
	if fc == nil {
		return errors.New("geo cache: nil dataset")
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal dataset: %w", err)
	}
	entry, err := json.Marshal(cacheEntry{
		Version:   c.version,
		CreatedAt: c.now().UnixMilli(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.store.Set(ctx, c.storeKey(key), entry, int((c.maxAge + storeTTLGrace).Seconds())); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Invalidate removes the entry for key. A missing entry is not an error.
func (c *GeoCache) Invalidate(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, c.storeKey(key)); err != nil && !errors.Is(err, ports.ErrKeyNotFound) {
		return fmt.Errorf("invalidate cache entry: %w", err)
	}
	return nil
}
