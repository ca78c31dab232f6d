package models

import (
	"errors"
	"time"
)

// ErrUnknownEventType rejects event types outside the closed enumeration at
// the boundary instead of silently storing them.
var ErrUnknownEventType = errors.New("unknown audit event type")

type EventType string

const (
	EventRequestCreated      EventType = "request_created"
	EventRequestSent         EventType = "request_sent"
	EventDocumentViewed      EventType = "document_viewed"
	EventSignatureInitiated  EventType = "signature_initiated"
	EventSignatureCompleted  EventType = "signature_completed"
	EventSignatureRejected   EventType = "signature_rejected"
	EventSignatureExpired    EventType = "signature_expired"
	EventSignatureCancelled  EventType = "signature_cancelled"
	EventCertificateVerified EventType = "certificate_verified"
	EventTimestampGenerated  EventType = "timestamp_generated"
	EventAuditAccessed       EventType = "audit_accessed"
)

var knownEventTypes = map[EventType]struct{}{
	EventRequestCreated:      {},
	EventRequestSent:         {},
	EventDocumentViewed:      {},
	EventSignatureInitiated:  {},
	EventSignatureCompleted:  {},
	EventSignatureRejected:   {},
	EventSignatureExpired:    {},
	EventSignatureCancelled:  {},
	EventCertificateVerified: {},
	EventTimestampGenerated:  {},
	EventAuditAccessed:       {},
}

func (t EventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// AuditEvent is one immutable lifecycle occurrence on a SignatureRequest.
// The table is append-only: no update or delete path exists anywhere in the
// codebase, corrections are modeled as new events.
type AuditEvent struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement"`
	SignatureRequestID string    `gorm:"index;not null"`
	EventType          EventType `gorm:"index;not null"`
	ActorID            string    // empty for system-triggered events
	ActorEmail         string
	Details            string `gorm:"type:json"`
	CertificateID      string
	SignatureHash      string
	TimestampToken     string
	CreatedAt          time.Time `gorm:"index"`
}
