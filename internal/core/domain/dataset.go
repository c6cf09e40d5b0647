package domain

import (
	"errors"
	"time"

	"github.com/paulmach/orb/geojson"
)

var (
	// ErrFetchFailed means the dataset could not be retrieved from its source.
	ErrFetchFailed = errors.New("failed to fetch dataset")
	// ErrParseFailed means the payload was not a valid GeoJSON FeatureCollection.
	ErrParseFailed = errors.New("failed to parse dataset")
	// ErrDatasetNotFound means no controller is registered under the requested name.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrNotReady means the dataset has not finished loading.
	ErrNotReady = errors.New("dataset not ready")
)

// LoadState is the lifecycle state of a dataset controller.
type LoadState string

const (
	StateIdle    LoadState = "idle"
	StateLoading LoadState = "loading"
	StateReady   LoadState = "ready"
	StateFailed  LoadState = "failed"
)

// StateSnapshot is a point-in-time view of a controller.
type StateSnapshot struct {
	Dataset   string    `json:"dataset"`
	State     LoadState `json:"state"`
	Error     string    `json:"error,omitempty"`
	Features  int       `json:"features"`
	FromCache bool      `json:"from_cache"`
	RequestID uint64    `json:"request_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StateEvent announces a controller state transition. Origin identifies the
// service instance that produced it so peers can ignore their own events.
type StateEvent struct {
	StateSnapshot
	Origin string `json:"origin,omitempty"`
}

// ViewportUpdate is delivered to a map once the viewport has settled.
type ViewportUpdate struct {
	Dataset string                     `json:"dataset"`
	Bounds  ViewportBounds             `json:"bounds"`
	State   LoadState                  `json:"state"`
	Data    *geojson.FeatureCollection `json:"data,omitempty"`
}
