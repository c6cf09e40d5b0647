package usecases

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/setshaba/mapdata/internal/core/domain"
)

// DatasetRegistry holds the controllers of every served dataset.
type DatasetRegistry struct {
	mu          sync.RWMutex
	controllers map[string]*GeoDataController
}

// NewDatasetRegistry creates a registry containing the given controllers.
func NewDatasetRegistry(controllers ...*GeoDataController) *DatasetRegistry {
	r := &DatasetRegistry{controllers: make(map[string]*GeoDataController)}
	for _, c := range controllers {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a controller under its dataset name.
func (r *DatasetRegistry) Register(c *GeoDataController) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[c.Name()] = c
}

// Get returns the controller for name or domain.ErrDatasetNotFound.
func (r *DatasetRegistry) Get(name string) (*GeoDataController, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, name)
	}
	return c, nil
}

// Names returns the registered dataset names in sorted order.
func (r *DatasetRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.controllers))
	for n := range r.controllers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Snapshots returns the state of every dataset, ordered by name.
func (r *DatasetRegistry) Snapshots() []domain.StateSnapshot {
	names := r.Names()
	out := make([]domain.StateSnapshot, 0, len(names))
	for _, n := range names {
		if c, err := r.Get(n); err == nil {
			out = append(out, c.Snapshot())
		}
	}
	return out
}

// LoadAll loads every dataset concurrently and joins the failures.
func (r *DatasetRegistry) LoadAll(ctx context.Context) error {
	names := r.Names()
	errs := make([]error, len(names))

	var wg sync.WaitGroup
	for i, n := range names {
		c, err := r.Get(n)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func(i int, c *GeoDataController) {
			defer wg.Done()
			errs[i] = c.Load(ctx)
		}(i, c)
	}
	wg.Wait()

	return errors.Join(errs...)
}
