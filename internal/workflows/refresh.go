package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/setshaba/mapdata/internal/core/domain"
)

// TaskQueue is the Temporal task queue served by the API worker.
const TaskQueue = "geodata-refresh"

// RefreshInput is the input for the refresh workflow. An empty Datasets
// list refreshes every registered dataset.
type RefreshInput struct {
	Datasets []string
}

// RefreshResult reports the outcome per dataset.
type RefreshResult struct {
	Refreshed []domain.StateSnapshot
	Failed    map[string]string
}

// RefreshDatasetsWorkflow refreshes datasets one after another so a slow
// source never has two downloads in flight. Failures are collected rather
// than aborting the remaining datasets.
func RefreshDatasetsWorkflow(ctx workflow.Context, input RefreshInput) (RefreshResult, error) {
	logger := workflow.GetLogger(ctx)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 10 * time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	names := input.Datasets
	if len(names) == 0 {
		if err := workflow.ExecuteActivity(ctx, "ListDatasets").Get(ctx, &names); err != nil {
			return RefreshResult{}, err
		}
	}
	logger.Info("Starting dataset refresh", "datasets", names)

	result := RefreshResult{Failed: make(map[string]string)}
	for _, name := range names {
		var snap domain.StateSnapshot
		if err := workflow.ExecuteActivity(ctx, "RefreshDataset", name).Get(ctx, &snap); err != nil {
			logger.Warn("dataset refresh failed", "dataset", name, "error", err)
			result.Failed[name] = err.Error()
			continue
		}
		result.Refreshed = append(result.Refreshed, snap)
	}

	logger.Info("Dataset refresh finished", "refreshed", len(result.Refreshed), "failed", len(result.Failed))
	return result, nil
}
