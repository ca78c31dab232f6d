package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/laserpanama/legal-practice-stack/internal/db/models"
	"github.com/laserpanama/legal-practice-stack/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrRequestNotFound     = errors.New("signature request not found")
	ErrCertificateNotFound = errors.New("certificate not found")
)

// Verifier derives a compliance verdict from the current certificate and
// request state. Each call re-derives from scratch and persists a fresh
// ComplianceRecord, so compliance can be shown to regress (a certificate
// revoked after signing flips the verdict on the next run).
type Verifier struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewVerifier(db *gorm.DB, logger *zap.Logger) *Verifier {
	return &Verifier{
		db:     db,
		logger: logger.With(zap.String("service", "compliance_verifier")),
	}
}

// Verify computes and persists the compliance verdict for one request.
// auditedBy is empty for system-triggered runs.
func (v *Verifier) Verify(ctx context.Context, signatureRequestID, auditedBy string) (*models.ComplianceRecord, error) {
	return v.VerifyAgainstHash(ctx, signatureRequestID, auditedBy, "")
}

// VerifyAgainstHash is Verify with tamper detection: when currentHash is
// non-empty and differs from the hash stored at request time, document
// integrity fails regardless of certificate state.
func (v *Verifier) VerifyAgainstHash(ctx context.Context, signatureRequestID, auditedBy, currentHash string) (*models.ComplianceRecord, error) {
	var req models.SignatureRequest
	if err := v.db.WithContext(ctx).First(&req, "id = ?", signatureRequestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	record := &models.ComplianceRecord{
		SignatureRequestID: req.ID,
		CheckDate:          now,
		AuditedBy:          auditedBy,
	}
	var notes []string

	cert, err := v.certificateFor(ctx, &req)
	switch {
	case err == nil:
		record.CertificateValid = cert.Status == models.CertificateValid && !now.After(cert.ValidTo)
		record.NonRepudiationVerified = cert.Thumbprint != ""
		if !record.CertificateValid {
			notes = append(notes, fmt.Sprintf("certificate %s is %s (valid until %s)", cert.ID, cert.Status, cert.ValidTo.Format(time.RFC3339)))
		}
	case errors.Is(err, ErrCertificateNotFound):
		notes = append(notes, "no certificate bound to request")
	default:
		return nil, err
	}

	record.TimestampValid = req.SignedDate != nil
	if !record.TimestampValid {
		notes = append(notes, "request has no signed date")
	}

	record.DocumentIntegrityVerified = req.DocumentHash != ""
	if currentHash != "" && currentHash != req.DocumentHash {
		record.DocumentIntegrityVerified = false
		notes = append(notes, "document hash mismatch: content changed since request")
	}

	record.OverallCompliant = record.CertificateValid &&
		record.NonRepudiationVerified &&
		record.TimestampValid &&
		record.DocumentIntegrityVerified
	record.Notes = strings.Join(notes, "; ")

	if err := v.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}

	verdict := "non_compliant"
	if record.OverallCompliant {
		verdict = "compliant"
	}
	metrics.ComplianceChecksTotal.WithLabelValues(verdict).Inc()

	v.logger.Info("Compliance verification completed",
		zap.String("request_id", req.ID),
		zap.Bool("overall_compliant", record.OverallCompliant),
		zap.Bool("certificate_valid", record.CertificateValid),
		zap.Bool("non_repudiation", record.NonRepudiationVerified),
		zap.Bool("timestamp_valid", record.TimestampValid),
		zap.Bool("document_integrity", record.DocumentIntegrityVerified))

	return record, nil
}

// certificateFor resolves the request's bound certificate, preferring the
// request column and falling back to the id recorded on the latest
// completion audit event.
func (v *Verifier) certificateFor(ctx context.Context, req *models.SignatureRequest) (*models.Certificate, error) {
	certID := req.CertificateID
	if certID == "" {
		var event models.AuditEvent
		err := v.db.WithContext(ctx).
			Where("signature_request_id = ? AND event_type = ? AND certificate_id <> ''", req.ID, models.EventSignatureCompleted).
			Order("created_at DESC, id DESC").
			First(&event).Error
		if err == nil {
			certID = event.CertificateID
		}
	}
	if certID == "" {
		return nil, ErrCertificateNotFound
	}

	var cert models.Certificate
	if err := v.db.WithContext(ctx).First(&cert, "id = ?", certID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCertificateNotFound
		}
		return nil, err
	}
	return &cert, nil
}
