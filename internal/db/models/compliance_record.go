package models

import (
	"time"
)

// ComplianceRecord is one point-in-time verdict snapshot for a
// SignatureRequest. Records are append-only: re-verification produces a new
// row, preserving the history of compliance drift.
type ComplianceRecord struct {
	ID                        uint      `gorm:"primaryKey;autoIncrement"`
	SignatureRequestID        string    `gorm:"index;not null"`
	CheckDate                 time.Time `gorm:"not null"`
	OverallCompliant          bool      `gorm:"not null"`
	NonRepudiationVerified    bool      `gorm:"not null"`
	CertificateValid          bool      `gorm:"not null"`
	TimestampValid            bool      `gorm:"not null"`
	DocumentIntegrityVerified bool      `gorm:"not null"`
	Notes                     string
	AuditedBy                 string
	CreatedAt                 time.Time
}
