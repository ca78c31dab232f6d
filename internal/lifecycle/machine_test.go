package lifecycle_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/laserpanama/legal-practice-stack/internal/audit"
	"github.com/laserpanama/legal-practice-stack/internal/db"
	"github.com/laserpanama/legal-practice-stack/internal/db/models"
	"github.com/laserpanama/legal-practice-stack/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(database))
	return database
}

func newMachine(t *testing.T) (*lifecycle.Machine, *audit.Store, *gorm.DB) {
	t.Helper()
	database := testDB(t)
	store := audit.NewStore(database, zap.NewNop())
	return lifecycle.NewMachine(database, store, zap.NewNop()), store, database
}

func seedRequest(t *testing.T, m *lifecycle.Machine, id string) {
	t.Helper()
	_, err := m.Create(context.Background(), &models.SignatureRequest{
		ID:            id,
		DocumentID:    "doc-1",
		RequesterID:   "user-1",
		SignerEmail:   "signer@example.com",
		DocumentHash:  "sha256:abc",
		SignatureType: models.SignatureQualified,
		ExpiryDate:    time.Now().Add(48 * time.Hour),
	}, lifecycle.Actor{ID: "user-1", Email: "requester@firm.example"})
	require.NoError(t, err)
}

func TestCreateWritesRequestAndEvent(t *testing.T) {
	m, store, database := newMachine(t)
	seedRequest(t, m, "req-1")

	var req models.SignatureRequest
	require.NoError(t, database.First(&req, "id = ?", "req-1").Error)
	assert.Equal(t, models.StatusPending, req.Status)

	trail, err := store.Trail(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, models.EventRequestCreated, trail[0].EventType)
	assert.Equal(t, "user-1", trail[0].ActorID)
}

func TestHappyPathTransitions(t *testing.T) {
	m, store, _ := newMachine(t)
	seedRequest(t, m, "req-1")
	ctx := context.Background()
	actor := lifecycle.Actor{ID: "signer-1", Email: "signer@example.com"}

	steps := []struct {
		target models.RequestStatus
		event  models.EventType
	}{
		{models.StatusSent, models.EventRequestSent},
		{models.StatusViewed, models.EventDocumentViewed},
		{models.StatusSigned, models.EventSignatureCompleted},
	}
	for _, step := range steps {
		outcome, err := m.Transition(ctx, lifecycle.Command{
			RequestID: "req-1",
			Target:    step.target,
			Actor:     actor,
		})
		require.NoError(t, err)
		assert.Equal(t, step.target, outcome.To)
		assert.Equal(t, step.event, outcome.Event.EventType)
	}

	trail, err := store.Trail(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, trail, 4)
	for i := 1; i < len(trail); i++ {
		assert.False(t, trail[i].CreatedAt.Before(trail[i-1].CreatedAt))
	}
}

func TestSignedDateAndRejectionReason(t *testing.T) {
	m, _, database := newMachine(t)
	ctx := context.Background()

	seedRequest(t, m, "req-signed")
	for _, target := range []models.RequestStatus{models.StatusSent, models.StatusViewed, models.StatusSigned} {
		_, err := m.Transition(ctx, lifecycle.Command{RequestID: "req-signed", Target: target})
		require.NoError(t, err)
	}
	var signed models.SignatureRequest
	require.NoError(t, database.First(&signed, "id = ?", "req-signed").Error)
	require.NotNil(t, signed.SignedDate)

	seedRequest(t, m, "req-rejected")
	_, err := m.Transition(ctx, lifecycle.Command{
		RequestID: "req-rejected",
		Target:    models.StatusRejected,
		Reason:    "signer declined terms",
	})
	require.NoError(t, err)
	var rejected models.SignatureRequest
	require.NoError(t, database.First(&rejected, "id = ?", "req-rejected").Error)
	assert.Equal(t, "signer declined terms", rejected.RejectionReason)
}

func TestInvalidTransitionLeavesNoTrace(t *testing.T) {
	m, store, database := newMachine(t)
	seedRequest(t, m, "req-1")
	ctx := context.Background()

	// pending -> signed skips sent and viewed.
	_, err := m.Transition(ctx, lifecycle.Command{RequestID: "req-1", Target: models.StatusSigned})
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	var invalid *lifecycle.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.StatusPending, invalid.From)
	assert.Equal(t, models.StatusSigned, invalid.To)

	var req models.SignatureRequest
	require.NoError(t, database.First(&req, "id = ?", "req-1").Error)
	assert.Equal(t, models.StatusPending, req.Status)

	trail, err := store.Trail(ctx, "req-1")
	require.NoError(t, err)
	assert.Len(t, trail, 1) // only request_created
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	m, _, _ := newMachine(t)
	ctx := context.Background()

	seedRequest(t, m, "req-1")
	_, err := m.Transition(ctx, lifecycle.Command{RequestID: "req-1", Target: models.StatusCancelled})
	require.NoError(t, err)

	for _, target := range []models.RequestStatus{
		models.StatusSent, models.StatusViewed, models.StatusSigned,
		models.StatusRejected, models.StatusExpired, models.StatusCancelled,
	} {
		_, err := m.Transition(ctx, lifecycle.Command{RequestID: "req-1", Target: target})
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "cancelled -> %s must be rejected", target)
	}
}

func TestTransitionUnknownRequest(t *testing.T) {
	m, _, _ := newMachine(t)
	_, err := m.Transition(context.Background(), lifecycle.Command{
		RequestID: "no-such-request",
		Target:    models.StatusSent,
	})
	require.ErrorIs(t, err, lifecycle.ErrRequestNotFound)
}

func TestConcurrentTransitionsSerialize(t *testing.T) {
	m, store, _ := newMachine(t)
	seedRequest(t, m, "req-1")
	ctx := context.Background()

	_, err := m.Transition(ctx, lifecycle.Command{RequestID: "req-1", Target: models.StatusSent})
	require.NoError(t, err)

	// Many goroutines race sent -> viewed; exactly one may win.
	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Transition(ctx, lifecycle.Command{RequestID: "req-1", Target: models.StatusViewed})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, winners)

	trail, err := store.Trail(ctx, "req-1")
	require.NoError(t, err)
	assert.Len(t, trail, 3) // created, sent, viewed
}

type recordingExpirer struct {
	machine *lifecycle.Machine
	expired []string
}

func (r *recordingExpirer) ExpireRequest(ctx context.Context, requestID string) error {
	_, err := r.machine.Transition(ctx, lifecycle.Command{
		RequestID: requestID,
		Target:    models.StatusExpired,
	})
	if err != nil {
		return err
	}
	r.expired = append(r.expired, requestID)
	return nil
}

func TestSweeperExpiresOverdueRequests(t *testing.T) {
	m, store, database := newMachine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedRequest(t, m, fmt.Sprintf("req-%d", i))
	}
	_, err := m.Transition(ctx, lifecycle.Command{RequestID: "req-0", Target: models.StatusSent})
	require.NoError(t, err)
	_, err = m.Transition(ctx, lifecycle.Command{RequestID: "req-1", Target: models.StatusCancelled})
	require.NoError(t, err)

	// Backdate every expiry; only the two non-terminal requests qualify.
	require.NoError(t, database.Model(&models.SignatureRequest{}).
		Where("1 = 1").
		Update("expiry_date", time.Now().Add(-time.Hour)).Error)

	expirer := &recordingExpirer{machine: m}
	sweeper := lifecycle.NewSweeper(database, expirer, time.Minute, zap.NewNop())

	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"req-0", "req-2"}, expirer.expired)

	var req models.SignatureRequest
	require.NoError(t, database.First(&req, "id = ?", "req-0").Error)
	assert.Equal(t, models.StatusExpired, req.Status)

	trail, err := store.Trail(ctx, "req-0")
	require.NoError(t, err)
	last := trail[len(trail)-1]
	assert.Equal(t, models.EventSignatureExpired, last.EventType)
	assert.Empty(t, last.ActorID) // system-triggered, no actor

	// Second sweep finds nothing left to do.
	n, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
