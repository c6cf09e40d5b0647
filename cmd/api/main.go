package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/setshaba/mapdata/internal/adapters/http"
	"github.com/setshaba/mapdata/internal/adapters/leveldb"
	natsadapter "github.com/setshaba/mapdata/internal/adapters/nats"
	"github.com/setshaba/mapdata/internal/adapters/postgres"
	"github.com/setshaba/mapdata/internal/adapters/source"
	"github.com/setshaba/mapdata/internal/adapters/valkey"
	"github.com/setshaba/mapdata/internal/core/ports"
	"github.com/setshaba/mapdata/internal/core/usecases"
	"github.com/setshaba/mapdata/internal/pkg/config"
	"github.com/setshaba/mapdata/internal/pkg/logging"
	"github.com/setshaba/mapdata/internal/pkg/metrics"
	"github.com/setshaba/mapdata/internal/pkg/telemetry"
	"github.com/setshaba/mapdata/internal/workflows"
)

func main() {
	cfg, err := config.Load("setshaba-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// origin tags the state events this instance publishes
	origin := uuid.NewString()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	var db *postgres.DB
	if cfg.Database.Enabled {
		db, err = postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		go reportPoolStats(ctx, db)
	}

	// Cache store: valkey when shared between instances, leveldb otherwise
	var (
		store    ports.KeyValueStore
		valkeyKV *valkey.Store
	)
	switch cfg.GeoData.Store {
	case "valkey":
		valkeyKV, err = valkey.New(cfg.Valkey.Addr)
		if err != nil {
			log.Fatalf("valkey: %v", err)
		}
		defer valkeyKV.Close()
		store = valkeyKV
	default:
		ldb, err := leveldb.Open(cfg.GeoData.StoreDir)
		if err != nil {
			log.Fatalf("leveldb: %v", err)
		}
		defer ldb.Close()
		store = ldb
	}

	// NATS
	var publisher *natsadapter.Publisher
	if cfg.NATS.Enabled {
		publisher, err = natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	// Datasets
	geoCache := usecases.NewGeoCache(store, cfg.GeoData.CacheNamespace,
		usecases.WithCacheVersion(cfg.GeoData.CacheVersion),
		usecases.WithCacheMaxAge(cfg.GeoData.CacheTTL),
	)
	ctrlOpts := []usecases.ControllerOption{usecases.WithTolerance(cfg.GeoData.SimplifyTolerance)}
	if publisher != nil {
		ctrlOpts = append(ctrlOpts, usecases.WithPublisher(publisher, origin))
	}

	wardsSrc, err := source.New(cfg.GeoData.WardsSource, cfg.GeoData.FetchTimeout)
	if err != nil {
		log.Fatalf("wards source: %v", err)
	}
	registry := usecases.NewDatasetRegistry(
		usecases.NewGeoDataController("wards", wardsSrc, geoCache, ctrlOpts...),
	)
	if cfg.GeoData.MunicipalitiesEnabled && db != nil {
		muniSrc := source.NewMunicipalityBoundarySource(postgres.NewMunicipalityRepo(db))
		registry.Register(usecases.NewGeoDataController("municipalities", muniSrc, geoCache, ctrlOpts...))
	}

	// Peers sharing the valkey store reload when one of them refetches
	if publisher != nil && valkeyKV != nil {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			peers := usecases.NewPeerSync(registry, origin)
			if err := sub.SubscribeStateChanges(ctx, peers.HandleStateChange); err != nil {
				slog.Warn("subscribe state changes", "error", err)
			}
		}
	}

	go func() {
		if err := registry.LoadAll(ctx); err != nil {
			slog.Warn("initial dataset load incomplete", "error", err)
		}
	}()

	// Scheduled refresh worker
	if cfg.Temporal.Enabled {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			slog.Warn("temporal unavailable, scheduled refresh disabled", "error", err)
		} else {
			defer tc.Close()
			w := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{})
			w.RegisterWorkflow(workflows.RefreshDatasetsWorkflow)
			w.RegisterActivity(&workflows.RefreshActivities{Registry: registry})
			if err := w.Start(); err != nil {
				slog.Warn("temporal worker start failed", "error", err)
			} else {
				defer w.Stop()
			}
		}
	}

	// Markers
	var markers *usecases.MarkerService
	if db != nil {
		markers = usecases.NewMarkerService(postgres.NewReportRepo(db), store, cfg.GeoData.MarkerCacheTTL)
	}

	deps := &http.Dependencies{
		Datasets:     registry,
		Markers:      markers,
		DB:           db,
		NATS:         publisher,
		Cache:        valkeyKV,
		SettleWindow: cfg.GeoData.SettleWindow,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Setshaba Map Data API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:8081, http://localhost:19006",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, If-None-Match",
		ExposeHeaders:    "ETag, Link, X-Feature-Count, X-Dataset-State, Deprecation, Sunset",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "origin", origin, "store", cfg.GeoData.Store)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// reportPoolStats publishes pgx pool gauges until ctx is done.
func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Pool.Stat())
		case <-ctx.Done():
			return
		}
	}
}
