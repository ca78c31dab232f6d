package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/laserpanama/legal-practice-stack/internal/audit"
	"github.com/laserpanama/legal-practice-stack/internal/auth"
	"github.com/laserpanama/legal-practice-stack/internal/compliance"
	"github.com/laserpanama/legal-practice-stack/internal/db/models"
	"github.com/laserpanama/legal-practice-stack/internal/lifecycle"
	"github.com/laserpanama/legal-practice-stack/internal/notify"
	"github.com/laserpanama/legal-practice-stack/internal/signing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidInput      = errors.New("invalid signature request input")
	ErrSignatureNotValid = errors.New("signing authority reports the signature as invalid")
	ErrRequestNotFound   = lifecycle.ErrRequestNotFound
	ErrInvalidTransition = lifecycle.ErrInvalidTransition
)

// CreateRequestInput carries the fields needed to open a new signature
// workflow. DocumentHash is the content-addressed fingerprint of the document
// at request time.
type CreateRequestInput struct {
	DocumentID       string               `json:"documentId" binding:"required"`
	SignerEmail      string               `json:"signerEmail" binding:"required,email"`
	SignerName       string               `json:"signerName"`
	SignerNationalID string               `json:"signerNationalId"`
	DocumentHash     string               `json:"documentHash" binding:"required"`
	SignatureType    models.SignatureType `json:"signatureType"`
	ExpiryDate       time.Time            `json:"expiryDate" binding:"required"`
}

// CompleteInput carries the signer-side facts of a finished signing ceremony.
type CompleteInput struct {
	SignatureHash string `json:"signatureHash"`
}

// MailData is the payload handed to the external mail collaborator; this
// subsystem never renders or delivers the email itself.
type MailData struct {
	SignerName    string    `json:"signerName"`
	SignerEmail   string    `json:"signerEmail"`
	DocumentID    string    `json:"documentId"`
	ExpiryDate    time.Time `json:"expiryDate"`
	SignatureLink string    `json:"signatureLink"`
}

// SignatureService is the coordinating layer between the state machine and
// its downstream consumers. The machine produces a typed outcome; this
// service decides which follow-up actions run (compliance check, broadcast,
// mail payload) so no component knows about the others.
type SignatureService struct {
	db       *gorm.DB
	machine  *lifecycle.Machine
	events   *audit.Store
	verifier *compliance.Verifier
	hub      *notify.Hub
	signer   *signing.Client
	logger   *zap.Logger
}

func NewSignatureService(
	db *gorm.DB,
	machine *lifecycle.Machine,
	events *audit.Store,
	verifier *compliance.Verifier,
	hub *notify.Hub,
	signer *signing.Client,
	logger *zap.Logger,
) *SignatureService {
	return &SignatureService{
		db:       db,
		machine:  machine,
		events:   events,
		verifier: verifier,
		hub:      hub,
		signer:   signer,
		logger:   logger.With(zap.String("service", "signature_service")),
	}
}

// CreateRequest opens a new pending signature workflow.
func (s *SignatureService) CreateRequest(ctx context.Context, input CreateRequestInput, actor lifecycle.Actor) (*models.SignatureRequest, error) {
	if input.SignatureType == "" {
		input.SignatureType = models.SignatureSimple
	}
	if !input.SignatureType.Valid() {
		return nil, fmt.Errorf("%w: unknown signature type %q", ErrInvalidInput, input.SignatureType)
	}
	if input.DocumentHash == "" || input.SignerEmail == "" || input.DocumentID == "" {
		return nil, fmt.Errorf("%w: documentId, signerEmail and documentHash are required", ErrInvalidInput)
	}
	if !input.ExpiryDate.After(time.Now()) {
		return nil, fmt.Errorf("%w: expiryDate must be in the future", ErrInvalidInput)
	}

	req := &models.SignatureRequest{
		ID:               uuid.New().String(),
		DocumentID:       input.DocumentID,
		RequesterID:      actor.ID,
		SignerEmail:      input.SignerEmail,
		SignerName:       input.SignerName,
		SignerNationalID: input.SignerNationalID,
		DocumentHash:     input.DocumentHash,
		SignatureType:    input.SignatureType,
		ExpiryDate:       input.ExpiryDate,
	}

	outcome, err := s.machine.Create(ctx, req, actor)
	if err != nil {
		return nil, err
	}

	s.broadcast(outcome, notify.SeverityInfo, "Signature request created")
	return req, nil
}

// SendRequest opens the signature with the external signing authority and
// transitions pending to sent. An authority failure leaves the request
// unchanged so the call is safely retriable. Returns the mail-collaborator
// payload for the signer notification.
func (s *SignatureService) SendRequest(ctx context.Context, requestID string, actor lifecycle.Actor) (*MailData, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	// Only pending requests may be sent; checking up front keeps the
	// authority out of the loop for requests that could never transition.
	if req.Status != models.StatusPending {
		return nil, &lifecycle.InvalidTransitionError{From: req.Status, To: models.StatusSent}
	}

	grant, err := s.signer.RequestSignature(ctx, req.DocumentHash, signing.Signer{
		Name:       req.SignerName,
		Email:      req.SignerEmail,
		NationalID: req.SignerNationalID,
	})
	if err != nil {
		return nil, err
	}

	// The grant id rides on the command so it lands in the same transaction
	// as the status change; a losing race writes nothing.
	outcome, err := s.machine.Transition(ctx, lifecycle.Command{
		RequestID:   requestID,
		Target:      models.StatusSent,
		Actor:       actor,
		SignatureID: grant.SignatureID,
	})
	if err != nil {
		return nil, err
	}

	s.broadcast(outcome, notify.SeverityInfo, "Signature request sent to signer")

	return &MailData{
		SignerName:    req.SignerName,
		SignerEmail:   req.SignerEmail,
		DocumentID:    req.DocumentID,
		ExpiryDate:    req.ExpiryDate,
		SignatureLink: fmt.Sprintf("/sign/%s", req.ID),
	}, nil
}

// MarkViewed records that the signer opened the document.
func (s *SignatureService) MarkViewed(ctx context.Context, requestID string, actor lifecycle.Actor) (*models.SignatureRequest, error) {
	outcome, err := s.machine.Transition(ctx, lifecycle.Command{
		RequestID: requestID,
		Target:    models.StatusViewed,
		Actor:     actor,
	})
	if err != nil {
		return nil, err
	}

	s.broadcast(outcome, notify.SeverityInfo, "Document viewed by signer")
	return outcome.Request, nil
}

// CompleteSignature verifies the finished ceremony with the signing
// authority, persists the certificate it reports, transitions viewed to
// signed with the certificate facts on the audit event, and runs a
// compliance verification. Notifier and verifier failures never propagate
// back into the transition.
func (s *SignatureService) CompleteSignature(ctx context.Context, requestID string, actor lifecycle.Actor, input CompleteInput) (*models.SignatureRequest, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	result, err := s.signer.VerifySignature(ctx, req.SignatureID, req.DocumentHash)
	if err != nil {
		return nil, err
	}
	if !result.IsValid {
		return nil, ErrSignatureNotValid
	}

	cert, err := s.signer.Certificate(ctx, result.CertificateID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(cert).Error; err != nil {
		return nil, err
	}

	var tsToken string
	if req.SignatureType == models.SignatureTimestamped {
		tsToken, err = s.signer.TimestampToken(ctx, req.DocumentHash)
		if err != nil {
			return nil, err
		}
	}

	outcome, err := s.machine.Transition(ctx, lifecycle.Command{
		RequestID:      requestID,
		Target:         models.StatusSigned,
		Actor:          actor,
		CertificateID:  result.CertificateID,
		SignatureHash:  input.SignatureHash,
		TimestampToken: tsToken,
	})
	if err != nil {
		return nil, err
	}

	if tsToken != "" {
		if _, err := s.events.Append(ctx, &models.AuditEvent{
			SignatureRequestID: requestID,
			EventType:          models.EventTimestampGenerated,
			TimestampToken:     tsToken,
		}); err != nil {
			s.logger.Error("failed to record timestamp event",
				zap.String("request_id", requestID),
				zap.Error(err))
		}
	}

	if _, err := s.verifier.Verify(ctx, requestID, ""); err != nil {
		s.logger.Error("post-completion compliance verification failed",
			zap.String("request_id", requestID),
			zap.Error(err))
	}

	s.broadcast(outcome, notify.SeveritySuccess, "Signature completed")
	return outcome.Request, nil
}

// RejectRequest records the signer's refusal with its reason.
func (s *SignatureService) RejectRequest(ctx context.Context, requestID string, actor lifecycle.Actor, reason string) (*models.SignatureRequest, error) {
	outcome, err := s.machine.Transition(ctx, lifecycle.Command{
		RequestID: requestID,
		Target:    models.StatusRejected,
		Actor:     actor,
		Reason:    reason,
	})
	if err != nil {
		return nil, err
	}

	s.broadcast(outcome, notify.SeverityWarning, "Signature request rejected")
	return outcome.Request, nil
}

// CancelRequest withdraws a non-terminal request on behalf of its requester.
func (s *SignatureService) CancelRequest(ctx context.Context, requestID string, actor lifecycle.Actor) (*models.SignatureRequest, error) {
	outcome, err := s.machine.Transition(ctx, lifecycle.Command{
		RequestID: requestID,
		Target:    models.StatusCancelled,
		Actor:     actor,
	})
	if err != nil {
		return nil, err
	}

	s.broadcast(outcome, notify.SeverityInfo, "Signature request cancelled")
	return outcome.Request, nil
}

// ExpireRequest drives one overdue request through the expired transition.
// System-triggered: the audit event carries no actor.
func (s *SignatureService) ExpireRequest(ctx context.Context, requestID string) error {
	outcome, err := s.machine.Transition(ctx, lifecycle.Command{
		RequestID: requestID,
		Target:    models.StatusExpired,
		Reason:    "expiry date passed",
	})
	if err != nil {
		return err
	}

	s.broadcast(outcome, notify.SeverityWarning, "Signature request expired")
	return nil
}

func (s *SignatureService) GetRequest(ctx context.Context, requestID string) (*models.SignatureRequest, error) {
	var req models.SignatureRequest
	if err := s.db.WithContext(ctx).First(&req, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// Trail returns a request's full audit trail and records the access itself
// as an audit_accessed event. Trail reads are admin-only, enforced at the
// transport layer.
func (s *SignatureService) Trail(ctx context.Context, requestID string, principal *auth.Principal) ([]models.AuditEvent, error) {
	if _, err := s.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}

	events, err := s.events.Trail(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if err := s.events.RecordAccess(ctx, requestID, principal.UserID, principal.Email); err != nil {
		s.logger.Error("failed to record audit access",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
	return events, nil
}

// VerifyCompliance runs an on-demand verification, optionally against a
// caller-supplied current document hash for tamper detection, and records a
// certificate_verified audit event.
func (s *SignatureService) VerifyCompliance(ctx context.Context, requestID string, principal *auth.Principal, currentHash string) (*models.ComplianceRecord, error) {
	record, err := s.verifier.VerifyAgainstHash(ctx, requestID, principal.UserID, currentHash)
	if err != nil {
		return nil, err
	}

	if _, err := s.events.Append(ctx, &models.AuditEvent{
		SignatureRequestID: requestID,
		EventType:          models.EventCertificateVerified,
		ActorID:            principal.UserID,
		ActorEmail:         principal.Email,
	}); err != nil {
		s.logger.Error("failed to record verification event",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
	return record, nil
}

// broadcast pushes the outcome to live admin observers. Best-effort: nothing
// here may affect the business transition that triggered it.
func (s *SignatureService) broadcast(outcome *lifecycle.Outcome, severity notify.Severity, message string) {
	req := outcome.Request
	s.hub.Broadcast(notify.Event{
		Type:               outcome.Event.EventType,
		SignatureRequestID: req.ID,
		SignerEmail:        req.SignerEmail,
		SignerName:         req.SignerName,
		Status:             req.Status,
		Message:            message,
		Timestamp:          time.Now().UTC(),
		Severity:           severity,
	})
}
