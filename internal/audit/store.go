package audit

import (
	"context"
	"time"

	"github.com/laserpanama/legal-practice-stack/internal/db/models"
	"github.com/laserpanama/legal-practice-stack/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is the append-only log of signature-lifecycle events. The public
// contract has no update or delete: corrections are modeled as new events.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With(zap.String("service", "audit_store")),
	}
}

// Append durably writes one event and returns its id. Unknown event types
// are rejected at the boundary, not silently stored.
func (s *Store) Append(ctx context.Context, event *models.AuditEvent) (uint, error) {
	return s.AppendTx(ctx, s.db, event)
}

// AppendTx is Append running on the caller's transaction handle, so a status
// write and its audit event can commit or roll back together.
func (s *Store) AppendTx(ctx context.Context, tx *gorm.DB, event *models.AuditEvent) (uint, error) {
	if !event.EventType.Valid() {
		return 0, models.ErrUnknownEventType
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	if err := tx.WithContext(ctx).Create(event).Error; err != nil {
		s.logger.Error("failed to append audit event",
			zap.String("request_id", event.SignatureRequestID),
			zap.String("event_type", string(event.EventType)),
			zap.Error(err))
		return 0, err
	}

	metrics.AuditEventsTotal.WithLabelValues(string(event.EventType)).Inc()
	return event.ID, nil
}

// Trail returns every event for one signature request, ordered by creation
// time then id. Events are never reordered relative to append order.
func (s *Store) Trail(ctx context.Context, signatureRequestID string) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := s.db.WithContext(ctx).
		Where("signature_request_id = ?", signatureRequestID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Window returns all events created within [start, end], across requests.
func (s *Store) Window(ctx context.Context, start, end time.Time) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at <= ?", start, end).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// RecordAccess appends an audit_accessed event marking an administrative read
// of a request's trail.
func (s *Store) RecordAccess(ctx context.Context, signatureRequestID, actorID, actorEmail string) error {
	_, err := s.Append(ctx, &models.AuditEvent{
		SignatureRequestID: signatureRequestID,
		EventType:          models.EventAuditAccessed,
		ActorID:            actorID,
		ActorEmail:         actorEmail,
	})
	return err
}
