package models

import (
	"time"

	"gorm.io/gorm"
)

type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusSent      RequestStatus = "sent"
	StatusViewed    RequestStatus = "viewed"
	StatusSigned    RequestStatus = "signed"
	StatusRejected  RequestStatus = "rejected"
	StatusExpired   RequestStatus = "expired"
	StatusCancelled RequestStatus = "cancelled"
)

// Terminal reports whether the status has no outgoing transitions.
// Terminal requests are retained indefinitely for audit.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusSigned, StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

type SignatureType string

const (
	SignatureSimple      SignatureType = "simple"
	SignatureQualified   SignatureType = "qualified"
	SignatureTimestamped SignatureType = "timestamped"
)

func (t SignatureType) Valid() bool {
	switch t {
	case SignatureSimple, SignatureQualified, SignatureTimestamped:
		return true
	}
	return false
}

// SignatureRequest is one document-signature workflow instance.
// DocumentHash is immutable once set: later verification detects tampering
// by comparing against the originally hashed content. Status changes only
// through lifecycle.Machine.
type SignatureRequest struct {
	gorm.Model
	ID               string        `gorm:"primaryKey"`
	DocumentID       string        `gorm:"index;not null"`
	RequesterID      string        `gorm:"index;not null"`
	SignerEmail      string        `gorm:"not null"`
	SignerName       string
	SignerNationalID string
	DocumentHash     string        `gorm:"not null"`
	SignatureType    SignatureType `gorm:"not null;default:'simple'"`
	Status           RequestStatus `gorm:"index;not null;default:'pending'"`
	SignatureID      string        // grant id from the signing authority
	CertificateID    string        `gorm:"index"`
	ExpiryDate       time.Time     `gorm:"index;not null"`
	SignedDate       *time.Time
	RejectionReason  string
}
