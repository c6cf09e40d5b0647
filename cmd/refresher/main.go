package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strings"

	"go.temporal.io/sdk/client"

	"github.com/setshaba/mapdata/internal/pkg/config"
	"github.com/setshaba/mapdata/internal/pkg/logging"
	"github.com/setshaba/mapdata/internal/workflows"
)

const scheduleID = "geodata-refresh-schedule"

// refresher starts the dataset refresh workflow on the API workers' task queue.
//
//	refresher            install the cron schedule from temporal.cron
//	refresher now [a,b]  run one refresh immediately, optionally for named datasets
func main() {
	cfg, err := config.Load("setshaba-refresher")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	opts := client.StartWorkflowOptions{
		ID:        scheduleID,
		TaskQueue: cfg.Temporal.TaskQueue,
	}
	var input workflows.RefreshInput

	if len(os.Args) > 1 && os.Args[1] == "now" {
		opts.ID = "geodata-refresh-manual"
		if len(os.Args) > 2 {
			input.Datasets = strings.Split(os.Args[2], ",")
		}
	} else {
		opts.CronSchedule = cfg.Temporal.Cron
	}

	run, err := c.ExecuteWorkflow(ctx, opts, workflows.RefreshDatasetsWorkflow, input)
	if err != nil {
		log.Fatalf("start workflow: %v", err)
	}
	slog.Info("refresh workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID(), "cron", opts.CronSchedule)

	if opts.CronSchedule != "" {
		return
	}

	var result workflows.RefreshResult
	if err := run.Get(ctx, &result); err != nil {
		log.Fatalf("refresh workflow: %v", err)
	}
	for _, s := range result.Refreshed {
		slog.Info("dataset refreshed", "dataset", s.Dataset, "features", s.Features)
	}
	for name, reason := range result.Failed {
		slog.Error("dataset refresh failed", "dataset", name, "error", reason)
	}
	if len(result.Failed) > 0 {
		os.Exit(1)
	}
}
