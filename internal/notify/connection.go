package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/laserpanama/legal-practice-stack/internal/db/models"
)

// wireConn is the slice of the websocket connection the notifier needs.
// *websocket.Conn satisfies it; tests substitute a fake.
type wireConn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection is one live administrative observer. Registry membership is the
// hub's concern; heartbeat and subscription state are the connection's own,
// under its own lock, so subscription churn never blocks the registry.
type Connection struct {
	ID          string
	UserID      string
	Email       string
	ConnectedAt time.Time

	wire wireConn
	send chan Event

	mu            sync.Mutex
	lastHeartbeat time.Time
	subscriptions map[models.EventType]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func newConnection(wire wireConn, userID, email string, buffer int) *Connection {
	now := time.Now().UTC()
	return &Connection{
		ID:            uuid.New().String(),
		UserID:        userID,
		Email:         email,
		ConnectedAt:   now,
		wire:          wire,
		send:          make(chan Event, buffer),
		lastHeartbeat: now,
		subscriptions: make(map[models.EventType]struct{}),
		done:          make(chan struct{}),
	}
}

func (c *Connection) touchHeartbeat() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now().UTC()
	c.mu.Unlock()
}

func (c *Connection) heartbeatAge(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastHeartbeat)
}

func (c *Connection) subscribe(t models.EventType) {
	c.mu.Lock()
	c.subscriptions[t] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) unsubscribe(t models.EventType) {
	c.mu.Lock()
	delete(c.subscriptions, t)
	c.mu.Unlock()
}

// wants reports whether the connection's filter admits the event type. An
// empty subscription set means receive everything.
func (c *Connection) wants(t models.EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	_, ok := c.subscriptions[t]
	return ok
}

// close shuts the underlying transport exactly once.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.wire.Close()
	})
}
