package usecases

import (
	"context"
	"errors"
	"log/slog"

	"github.com/setshaba/mapdata/internal/core/domain"
)

// PeerSync keeps instances sharing a cache store coherent: when another
// instance finishes loading a dataset from its source, local controllers
// reload from the shared cache instead of serving the older copy.
type PeerSync struct {
	registry *DatasetRegistry
	origin   string
}

// NewPeerSync creates a PeerSync ignoring events published by origin.
func NewPeerSync(registry *DatasetRegistry, origin string) *PeerSync {
	return &PeerSync{registry: registry, origin: origin}
}

// HandleStateChange is an EventSubscriber handler.
func (p *PeerSync) HandleStateChange(ctx context.Context, ev *domain.StateEvent) error {
	if ev.Origin == p.origin || ev.State != domain.StateReady || ev.FromCache {
		return nil
	}
	c, err := p.registry.Get(ev.Dataset)
	if errors.Is(err, domain.ErrDatasetNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("peer refreshed dataset, reloading", "dataset", ev.Dataset, "peer", ev.Origin)
	if err := c.Reload(ctx); err != nil {
		slog.Warn("reload after peer refresh failed", "dataset", ev.Dataset, "error", err)
	}
	return nil
}
