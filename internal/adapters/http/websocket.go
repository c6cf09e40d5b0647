package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/setshaba/mapdata/internal/core/domain"
	"github.com/setshaba/mapdata/internal/core/usecases"
	"github.com/setshaba/mapdata/internal/pkg/metrics"
)

// wsMessage is sent from client to report map movement or ask for a refresh.
type wsMessage struct {
	Action string         `json:"action"` // "region" | "refresh"
	Region *domain.Region `json:"region,omitempty"`
}

// wsEvent is sent from server to client.
type wsEvent struct {
	Type    string                 `json:"type"` // "session" | "state" | "view" | "error"
	Session string                 `json:"session,omitempty"`
	State   *domain.StateSnapshot  `json:"state,omitempty"`
	View    *domain.ViewportUpdate `json:"view,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// viewportSession drives one map client: region changes are debounced into
// bounds-filtered views and dataset state changes are pushed as they happen.
type viewportSession struct {
	id      string
	ctrl    *usecases.GeoDataController
	adapter *usecases.ViewportAdapter
	limiter *rate.Limiter
	send    func(v any) error
	log     *slog.Logger

	mu         sync.Mutex
	lastRegion *domain.Region
}

func newViewportSession(ctrl *usecases.GeoDataController, settle time.Duration, send func(v any) error) *viewportSession {
	s := &viewportSession{
		id:      uuid.NewString(),
		ctrl:    ctrl,
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		send:    send,
	}
	s.log = slog.Default().With("session", s.id, "dataset", ctrl.Name())
	s.adapter = usecases.NewViewportAdapter(ctrl, settle, func(u domain.ViewportUpdate) {
		if err := s.send(wsEvent{Type: "view", View: &u}); err != nil {
			s.log.Debug("ws send view failed", "error", err)
		}
	})
	return s
}

// start greets the client and kicks off the first load when needed. Loads
// are shared with every other client, so they never run on a context tied
// to this connection.
func (s *viewportSession) start() {
	snap := s.ctrl.Snapshot()
	_ = s.send(wsEvent{Type: "session", Session: s.id, State: &snap})

	if snap.State == domain.StateIdle {
		go func() {
			if err := s.ctrl.Load(context.Background()); err != nil {
				s.log.Warn("initial load failed", "error", err)
			}
		}()
	}
}

// watch forwards state transitions until the channel closes. Once the
// dataset becomes ready the last known region is delivered again.
func (s *viewportSession) watch(events <-chan domain.StateEvent) {
	for ev := range events {
		snap := ev.StateSnapshot
		_ = s.send(wsEvent{Type: "state", State: &snap})

		if ev.State == domain.StateReady {
			s.mu.Lock()
			last := s.lastRegion
			s.mu.Unlock()
			if last != nil {
				s.adapter.RegionChanged(*last)
			}
		}
	}
}

// handle processes one inbound client message.
func (s *viewportSession) handle(raw []byte) {
	if !s.limiter.Allow() {
		_ = s.send(wsEvent{Type: "error", Error: "rate limit exceeded"})
		return
	}

	var m wsMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		_ = s.send(wsEvent{Type: "error", Error: "invalid JSON"})
		return
	}

	switch m.Action {
	case "region":
		if m.Region == nil {
			_ = s.send(wsEvent{Type: "error", Error: "region is required"})
			return
		}
		if err := m.Region.Bounds().Validate(); err != nil {
			_ = s.send(wsEvent{Type: "error", Error: err.Error()})
			return
		}
		r := *m.Region
		s.mu.Lock()
		s.lastRegion = &r
		s.mu.Unlock()
		s.adapter.RegionChanged(r)

	case "refresh":
		go func() {
			if err := s.ctrl.Refresh(context.Background()); err != nil {
				s.log.Warn("refresh failed", "error", err)
			}
		}()

	default:
		_ = s.send(wsEvent{Type: "error", Error: "unknown action: " + m.Action})
	}
}

func (s *viewportSession) close() {
	s.adapter.Close()
}

// ViewportWebSocketHandler streams a dataset to a map client.
// Clients send {"action":"region","region":{"latitude":..,"longitude":..,
// "latitudeDelta":..,"longitudeDelta":..}} as the map moves and receive a
// "view" event once the map has been still for the settle window.
// The dataset is picked with ?dataset=name (default wards).
func ViewportWebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		var mu sync.Mutex
		writeJSON := func(v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		ctrl, err := deps.Datasets.Get(c.Query("dataset", "wards"))
		if err != nil {
			_ = writeJSON(wsEvent{Type: "error", Error: err.Error()})
			return
		}

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		sess := newViewportSession(ctrl, deps.SettleWindow, writeJSON)
		defer sess.close()
		sess.log.Info("ws client connected", "remote", c.RemoteAddr().String())

		events, unsubscribe := ctrl.Subscribe(8)
		defer unsubscribe()
		go sess.watch(events)

		sess.start()

		// Keep-alive ping
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			sess.handle(msg)
		}

		sess.log.Info("ws client disconnected")
	}
}
