package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/laserpanama/legal-practice-stack/internal/config"
	"github.com/laserpanama/legal-practice-stack/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWire struct {
	mu         sync.Mutex
	events     []Event
	closed     bool
	failWrites bool
	gate       chan struct{} // when set, WriteJSON blocks until closed
}

func (f *fakeWire) WriteJSON(v interface{}) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errors.New("write failed")
	}
	f.events = append(f.events, v.(Event))
	return nil
}

func (f *fakeWire) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeWire) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWire) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeWire) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testConfig() config.NotifierConfig {
	return config.NotifierConfig{
		SendTimeout:        time.Second,
		SendBuffer:         8,
		HeartbeatInterval:  30 * time.Second,
		SweepInterval:      30 * time.Second,
		StalenessThreshold: 90 * time.Second,
	}
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testConfig(), zap.NewNop())
	t.Cleanup(hub.Close)
	return hub
}

func waitForEvents(t *testing.T, wire *fakeWire, n int) []Event {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(wire.received()) >= n
	}, 2*time.Second, 10*time.Millisecond)
	return wire.received()
}

func TestBroadcastRespectsSubscriptions(t *testing.T) {
	hub := newTestHub(t)

	filtered := &fakeWire{}
	filteredConn, err := hub.Register(filtered, "admin-1", "a1@firm.example")
	require.NoError(t, err)
	require.NoError(t, hub.Subscribe(filteredConn.ID, models.EventSignatureCompleted))

	unfiltered := &fakeWire{}
	_, err = hub.Register(unfiltered, "admin-2", "a2@firm.example")
	require.NoError(t, err)

	hub.Broadcast(Event{Type: models.EventSignatureCompleted, SignatureRequestID: "req-1"})
	hub.Broadcast(Event{Type: models.EventSignatureRejected, SignatureRequestID: "req-2"})

	both := waitForEvents(t, unfiltered, 2)
	assert.Equal(t, models.EventSignatureCompleted, both[0].Type)
	assert.Equal(t, models.EventSignatureRejected, both[1].Type)

	waitForEvents(t, filtered, 1)
	time.Sleep(50 * time.Millisecond) // give a wrongly-routed event time to arrive
	only := filtered.received()
	require.Len(t, only, 1)
	assert.Equal(t, models.EventSignatureCompleted, only[0].Type)
}

func TestUnsubscribeRestoresReceiveAll(t *testing.T) {
	hub := newTestHub(t)

	wire := &fakeWire{}
	conn, err := hub.Register(wire, "admin-1", "a@firm.example")
	require.NoError(t, err)

	require.NoError(t, hub.Subscribe(conn.ID, models.EventSignatureCompleted))
	require.NoError(t, hub.Unsubscribe(conn.ID, models.EventSignatureCompleted))

	hub.Broadcast(Event{Type: models.EventSignatureRejected})
	events := waitForEvents(t, wire, 1)
	assert.Equal(t, models.EventSignatureRejected, events[0].Type)
}

func TestSubscribeRejectsUnknownEventType(t *testing.T) {
	hub := newTestHub(t)
	wire := &fakeWire{}
	conn, err := hub.Register(wire, "admin-1", "a@firm.example")
	require.NoError(t, err)

	err = hub.Subscribe(conn.ID, "document_shredded")
	require.ErrorIs(t, err, models.ErrUnknownEventType)
}

func TestNotifyUserTargetsOneUser(t *testing.T) {
	hub := newTestHub(t)

	target1 := &fakeWire{}
	target2 := &fakeWire{}
	other := &fakeWire{}
	_, err := hub.Register(target1, "admin-1", "a@firm.example")
	require.NoError(t, err)
	_, err = hub.Register(target2, "admin-1", "a@firm.example")
	require.NoError(t, err)
	_, err = hub.Register(other, "admin-2", "b@firm.example")
	require.NoError(t, err)

	hub.NotifyUser("admin-1", Event{Type: models.EventSignatureCompleted})

	waitForEvents(t, target1, 1)
	waitForEvents(t, target2, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, other.received())
}

func TestStaleConnectionEvicted(t *testing.T) {
	hub := newTestHub(t)

	wire := &fakeWire{}
	conn, err := hub.Register(wire, "admin-1", "a@firm.example")
	require.NoError(t, err)

	// Fresh connection survives a sweep.
	assert.Zero(t, hub.SweepOnce(time.Now().UTC()))

	// Past the staleness threshold it is force-closed and removed.
	stale := time.Now().UTC().Add(testConfig().StalenessThreshold + time.Minute)
	assert.Equal(t, 1, hub.SweepOnce(stale))
	assert.True(t, wire.isClosed())

	require.ErrorIs(t, hub.Heartbeat(conn.ID), ErrConnectionNotFound)

	hub.Broadcast(Event{Type: models.EventSignatureCompleted})
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, wire.received())
}

func TestHeartbeatDefersEviction(t *testing.T) {
	hub := newTestHub(t)

	wire := &fakeWire{}
	conn, err := hub.Register(wire, "admin-1", "a@firm.example")
	require.NoError(t, err)

	require.NoError(t, hub.Heartbeat(conn.ID))
	within := time.Now().UTC().Add(testConfig().StalenessThreshold / 2)
	assert.Zero(t, hub.SweepOnce(within))
	require.NoError(t, hub.Heartbeat(conn.ID))
}

func TestWriteFailureRemovesConnection(t *testing.T) {
	hub := newTestHub(t)

	wire := &fakeWire{failWrites: true}
	conn, err := hub.Register(wire, "admin-1", "a@firm.example")
	require.NoError(t, err)

	hub.Broadcast(Event{Type: models.EventSignatureCompleted})

	require.Eventually(t, func() bool {
		return errors.Is(hub.Heartbeat(conn.ID), ErrConnectionNotFound)
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, wire.isClosed())
}

func TestSlowConnectionDoesNotBlockBroadcast(t *testing.T) {
	cfg := testConfig()
	cfg.SendBuffer = 1
	hub := NewHub(cfg, zap.NewNop())
	t.Cleanup(hub.Close)

	gate := make(chan struct{})
	slow := &fakeWire{gate: gate}
	_, err := hub.Register(slow, "admin-1", "a@firm.example")
	require.NoError(t, err)

	healthy := &fakeWire{}
	_, err = hub.Register(healthy, "admin-2", "b@firm.example")
	require.NoError(t, err)

	// The slow writer is stuck; its buffer fills and later events are
	// dropped for it while the healthy connection keeps receiving.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Broadcast(Event{Type: models.EventSignatureCompleted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow connection")
	}

	waitForEvents(t, healthy, 5)
	close(gate)
}

func TestRegisterAfterCloseFails(t *testing.T) {
	hub := NewHub(testConfig(), zap.NewNop())
	hub.Close()

	_, err := hub.Register(&fakeWire{}, "admin-1", "a@firm.example")
	require.ErrorIs(t, err, ErrHubClosed)
}

func TestUnregisterUnknownIsNoop(t *testing.T) {
	hub := newTestHub(t)
	hub.Unregister("no-such-connection")
}
