package models

import (
	"time"

	"gorm.io/gorm"
)

type CertificateStatus string

const (
	CertificateValid     CertificateStatus = "valid"
	CertificateExpired   CertificateStatus = "expired"
	CertificateRevoked   CertificateStatus = "revoked"
	CertificateSuspended CertificateStatus = "suspended"
)

// Certificate is the cryptographic identity bound to a completed signature,
// issued by the external signing authority and persisted here for
// verification. Thumbprint and SerialNumber are immutable; Status may be
// downgraded (valid to revoked/expired) but never upgraded.
type Certificate struct {
	gorm.Model
	ID               string `gorm:"primaryKey"`
	Issuer           string
	Subject          string
	SerialNumber     string            `gorm:"not null"`
	Thumbprint       string            `gorm:"not null"`
	ValidFrom        time.Time         `gorm:"default:CURRENT_TIMESTAMP"`
	ValidTo          time.Time         `gorm:"not null"`
	Status           CertificateStatus `gorm:"not null;default:'valid'"`
	RevocationDate   *time.Time
	RevocationReason string
}
