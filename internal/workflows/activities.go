package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/setshaba/mapdata/internal/core/domain"
	"github.com/setshaba/mapdata/internal/core/usecases"
)

// RefreshActivities holds the activity implementations for the dataset refresh workflow.
type RefreshActivities struct {
	Registry *usecases.DatasetRegistry
}

// ListDatasets returns the names of every served dataset.
func (a *RefreshActivities) ListDatasets(ctx context.Context) ([]string, error) {
	return a.Registry.Names(), nil
}

// RefreshDataset invalidates and reloads one dataset. A load failure is
// returned so Temporal retries it; an unknown dataset is not retried.
func (a *RefreshActivities) RefreshDataset(ctx context.Context, name string) (domain.StateSnapshot, error) {
	c, err := a.Registry.Get(name)
	if errors.Is(err, domain.ErrDatasetNotFound) {
		return domain.StateSnapshot{}, temporal.NewNonRetryableApplicationError(err.Error(), "DatasetNotFound", err)
	}
	if err != nil {
		return domain.StateSnapshot{}, err
	}

	activity.GetLogger(ctx).Info("refreshing dataset", "dataset", name)
	if err := c.Refresh(ctx); err != nil {
		return c.Snapshot(), fmt.Errorf("refresh %s: %w", name, err)
	}
	return c.Snapshot(), nil
}
