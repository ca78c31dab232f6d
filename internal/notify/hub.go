package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/laserpanama/legal-practice-stack/internal/config"
	"github.com/laserpanama/legal-practice-stack/internal/db/models"
	"github.com/laserpanama/legal-practice-stack/pkg/metrics"
	"go.uber.org/zap"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrHubClosed          = errors.New("notifier hub is closed")
)

// Hub is the explicit registry of live admin connections: id index plus a
// secondary per-user index, both under one mutex. Registry operations are
// O(1) and short-lived; fan-out never holds the lock while sending.
type Hub struct {
	cfg    config.NotifierConfig
	logger *zap.Logger

	mu     sync.Mutex
	conns  map[string]*Connection
	byUser map[string]map[string]*Connection
	closed bool
}

func NewHub(cfg config.NotifierConfig, logger *zap.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger.With(zap.String("service", "notifier")),
		conns:  make(map[string]*Connection),
		byUser: make(map[string]map[string]*Connection),
	}
}

// Register adds an authenticated admin connection to the registry and starts
// its writer. Authentication happens before this point; a credential failure
// never produces a partial registration.
func (h *Hub) Register(wire wireConn, userID, email string) (*Connection, error) {
	conn := newConnection(wire, userID, email, h.cfg.SendBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.conns[conn.ID] = conn
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[string]*Connection)
	}
	h.byUser[userID][conn.ID] = conn
	total := len(h.conns)
	h.mu.Unlock()

	metrics.ActiveConnections.Set(float64(total))
	go h.writePump(conn)

	h.logger.Info("Admin connection registered",
		zap.String("connection_id", conn.ID),
		zap.String("user_id", userID),
		zap.Int("active_connections", total))
	return conn, nil
}

// Unregister removes the connection from all registries and closes it.
// Unknown ids are a no-op: a connection may already have been reaped.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	conn, ok := h.conns[connectionID]
	if ok {
		delete(h.conns, connectionID)
		if userConns := h.byUser[conn.UserID]; userConns != nil {
			delete(userConns, connectionID)
			if len(userConns) == 0 {
				delete(h.byUser, conn.UserID)
			}
		}
	}
	total := len(h.conns)
	h.mu.Unlock()

	if !ok {
		return
	}
	conn.close()
	metrics.ActiveConnections.Set(float64(total))
	h.logger.Info("Admin connection removed",
		zap.String("connection_id", connectionID),
		zap.String("user_id", conn.UserID))
}

func (h *Hub) get(connectionID string) (*Connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[connectionID]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

func (h *Hub) Subscribe(connectionID string, t models.EventType) error {
	if !t.Valid() {
		return models.ErrUnknownEventType
	}
	conn, err := h.get(connectionID)
	if err != nil {
		return err
	}
	conn.subscribe(t)
	return nil
}

func (h *Hub) Unsubscribe(connectionID string, t models.EventType) error {
	conn, err := h.get(connectionID)
	if err != nil {
		return err
	}
	conn.unsubscribe(t)
	return nil
}

func (h *Hub) Heartbeat(connectionID string) error {
	conn, err := h.get(connectionID)
	if err != nil {
		return err
	}
	conn.touchHeartbeat()
	return nil
}

// Broadcast fans the event out to every live connection whose subscription
// filter admits it. Delivery is best-effort, at-most-once: a connection whose
// outbound buffer is full or which closed a moment earlier is skipped for
// this event, never retried.
func (h *Hub) Broadcast(event Event) {
	start := time.Now()
	h.deliver(h.snapshot(), event)
	metrics.BroadcastsTotal.Inc()
	metrics.BroadcastDuration.Observe(time.Since(start).Seconds())
}

// NotifyUser delivers the event to every connection of one user.
func (h *Hub) NotifyUser(userID string, event Event) {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.byUser[userID]))
	for _, conn := range h.byUser[userID] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	h.deliver(conns, event)
}

func (h *Hub) snapshot() []*Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (h *Hub) deliver(conns []*Connection, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	for _, conn := range conns {
		if !conn.wants(event.Type) {
			continue
		}
		select {
		case conn.send <- event:
		case <-conn.done:
			// Closed between snapshot and send: skip, not an error.
		default:
			metrics.BroadcastDropsTotal.Inc()
			h.logger.Warn("connection send buffer full, event dropped",
				zap.String("connection_id", conn.ID),
				zap.String("event_type", string(event.Type)))
		}
	}
}

// writePump drains one connection's outbound queue. Every write carries a
// deadline so a stalled admin connection can never stall the request path; a
// timed-out or failed write abandons that connection only.
func (h *Hub) writePump(conn *Connection) {
	for {
		select {
		case <-conn.done:
			return
		case event := <-conn.send:
			_ = conn.wire.SetWriteDeadline(time.Now().Add(h.cfg.SendTimeout))
			if err := conn.wire.WriteJSON(event); err != nil {
				metrics.BroadcastDropsTotal.Inc()
				h.logger.Warn("failed to push event to connection",
					zap.String("connection_id", conn.ID),
					zap.Error(err))
				h.Unregister(conn.ID)
				return
			}
		}
	}
}

// Run executes the staleness sweep on a fixed interval until ctx is
// cancelled, independent of request volume.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.SweepOnce(time.Now().UTC()); n > 0 {
				h.logger.Info("evicted stale admin connections", zap.Int("count", n))
			}
		}
	}
}

// SweepOnce force-closes every connection whose last heartbeat is older than
// the staleness threshold and returns how many were evicted.
func (h *Hub) SweepOnce(now time.Time) int {
	evicted := 0
	for _, conn := range h.snapshot() {
		if conn.heartbeatAge(now) > h.cfg.StalenessThreshold {
			h.Unregister(conn.ID)
			metrics.StaleConnectionsEvictedTotal.Inc()
			evicted++
		}
	}
	return evicted
}

// Close force-closes every connection and rejects further registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.Unregister(conn.ID)
	}
}
