package http

import (
	"time"

	natsadapter "github.com/setshaba/mapdata/internal/adapters/nats"
	"github.com/setshaba/mapdata/internal/adapters/postgres"
	"github.com/setshaba/mapdata/internal/adapters/valkey"
	"github.com/setshaba/mapdata/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Datasets *usecases.DatasetRegistry
	Markers  *usecases.MarkerService
	DB       *postgres.DB
	NATS     *natsadapter.Publisher
	Cache    *valkey.Store
	// SettleWindow is the viewport debounce used by WebSocket sessions.
	SettleWindow time.Duration
}
