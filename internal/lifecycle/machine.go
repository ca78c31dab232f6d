package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/laserpanama/legal-practice-stack/internal/audit"
	"github.com/laserpanama/legal-practice-stack/internal/db/models"
	"github.com/laserpanama/legal-practice-stack/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrRequestNotFound   = errors.New("signature request not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InvalidTransitionError names the current and requested status of a rejected
// transition attempt. It matches ErrInvalidTransition under errors.Is.
type InvalidTransitionError struct {
	From models.RequestStatus
	To   models.RequestStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// transitions is the complete edge set of the request state machine.
// Terminal statuses have no entry.
var transitions = map[models.RequestStatus][]models.RequestStatus{
	models.StatusPending: {models.StatusSent, models.StatusRejected, models.StatusExpired, models.StatusCancelled},
	models.StatusSent:    {models.StatusViewed, models.StatusRejected, models.StatusExpired, models.StatusCancelled},
	models.StatusViewed:  {models.StatusSigned, models.StatusRejected, models.StatusExpired, models.StatusCancelled},
}

func allowed(from, to models.RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// eventForStatus maps each reachable target status to the audit event type
// recorded for the transition into it.
var eventForStatus = map[models.RequestStatus]models.EventType{
	models.StatusSent:      models.EventRequestSent,
	models.StatusViewed:    models.EventDocumentViewed,
	models.StatusSigned:    models.EventSignatureCompleted,
	models.StatusRejected:  models.EventSignatureRejected,
	models.StatusExpired:   models.EventSignatureExpired,
	models.StatusCancelled: models.EventSignatureCancelled,
}

// Actor identifies who drove a transition. The zero value means the system
// itself (expiry sweep), which records audit events with no actor.
type Actor struct {
	ID    string
	Email string
}

// Command is one requested status change.
type Command struct {
	RequestID string
	Target    models.RequestStatus
	Actor     Actor
	Reason    string

	// Authority grant id, populated only on send transitions.
	SignatureID string

	// Certificate facts, populated only on completion transitions.
	CertificateID  string
	SignatureHash  string
	TimestampToken string
}

// Outcome is the typed result of a successful transition. The coordinating
// layer decides which downstream actions (compliance check, broadcast) follow
// from it; the machine itself knows nothing about them.
type Outcome struct {
	Request *models.SignatureRequest
	Event   *models.AuditEvent
	From    models.RequestStatus
	To      models.RequestStatus
}

// Machine validates and applies status transitions. Each successful
// transition persists the new status and appends exactly one audit event in
// the same database transaction: both succeed or both fail.
type Machine struct {
	db     *gorm.DB
	events *audit.Store
	logger *zap.Logger
	locks  requestLocks
}

func NewMachine(db *gorm.DB, events *audit.Store, logger *zap.Logger) *Machine {
	return &Machine{
		db:     db,
		events: events,
		logger: logger.With(zap.String("service", "lifecycle")),
	}
}

// Create persists a new pending request together with its request_created
// audit event.
func (m *Machine) Create(ctx context.Context, req *models.SignatureRequest, actor Actor) (*Outcome, error) {
	req.Status = models.StatusPending

	event := &models.AuditEvent{
		SignatureRequestID: req.ID,
		EventType:          models.EventRequestCreated,
		ActorID:            actor.ID,
		ActorEmail:         actor.Email,
		Details:            transitionDetails("", models.StatusPending, ""),
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		_, err := m.events.AppendTx(ctx, tx, event)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Signature request created",
		zap.String("request_id", req.ID),
		zap.String("document_id", req.DocumentID),
		zap.String("signer_email", req.SignerEmail))

	return &Outcome{Request: req, Event: event, From: "", To: models.StatusPending}, nil
}

// Transition applies cmd if its edge is in the allowed set. Concurrent
// attempts on the same request serialize; the loser gets an
// InvalidTransitionError if its precondition no longer holds. Transitions on
// different requests do not contend.
func (m *Machine) Transition(ctx context.Context, cmd Command) (*Outcome, error) {
	unlock := m.locks.acquire(cmd.RequestID)
	defer unlock()

	var outcome *Outcome
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.SignatureRequest
		if err := tx.First(&req, "id = ?", cmd.RequestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return err
		}

		if !allowed(req.Status, cmd.Target) {
			metrics.TransitionsRejectedTotal.Inc()
			return &InvalidTransitionError{From: req.Status, To: cmd.Target}
		}

		from := req.Status
		now := time.Now().UTC()

		updates := map[string]interface{}{"status": cmd.Target}
		req.Status = cmd.Target
		switch cmd.Target {
		case models.StatusSent:
			if cmd.SignatureID != "" {
				updates["signature_id"] = cmd.SignatureID
				req.SignatureID = cmd.SignatureID
			}
		case models.StatusSigned:
			updates["signed_date"] = now
			req.SignedDate = &now
			if cmd.CertificateID != "" {
				updates["certificate_id"] = cmd.CertificateID
				req.CertificateID = cmd.CertificateID
			}
		case models.StatusRejected:
			updates["rejection_reason"] = cmd.Reason
			req.RejectionReason = cmd.Reason
		}

		if err := tx.Model(&models.SignatureRequest{}).Where("id = ?", req.ID).Updates(updates).Error; err != nil {
			return err
		}

		event := &models.AuditEvent{
			SignatureRequestID: req.ID,
			EventType:          eventForStatus[cmd.Target],
			ActorID:            cmd.Actor.ID,
			ActorEmail:         cmd.Actor.Email,
			Details:            transitionDetails(from, cmd.Target, cmd.Reason),
			CertificateID:      cmd.CertificateID,
			SignatureHash:      cmd.SignatureHash,
			TimestampToken:     cmd.TimestampToken,
		}
		if _, err := m.events.AppendTx(ctx, tx, event); err != nil {
			return err
		}

		outcome = &Outcome{Request: &req, Event: event, From: from, To: cmd.Target}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TransitionsTotal.WithLabelValues(string(cmd.Target)).Inc()
	m.logger.Info("Signature request transitioned",
		zap.String("request_id", cmd.RequestID),
		zap.String("from", string(outcome.From)),
		zap.String("to", string(outcome.To)),
		zap.String("actor_id", cmd.Actor.ID))

	return outcome, nil
}

func transitionDetails(from, to models.RequestStatus, reason string) string {
	payload := struct {
		From   string `json:"from,omitempty"`
		To     string `json:"to"`
		Reason string `json:"reason,omitempty"`
	}{string(from), string(to), reason}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
