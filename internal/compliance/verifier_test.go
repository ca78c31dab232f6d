package compliance_test

import (
	"context"
	"testing"
	"time"

	"github.com/laserpanama/legal-practice-stack/internal/compliance"
	"github.com/laserpanama/legal-practice-stack/internal/db"
	"github.com/laserpanama/legal-practice-stack/internal/db/models"
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

func seedSignedRequest(t *testing.T, database *gorm.DB) {
	t.Helper()
	signed := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, database.Create(&models.SignatureRequest{
		ID:            "req-1",
		DocumentID:    "doc-1",
		RequesterID:   "user-1",
		SignerEmail:   "signer@example.com",
		DocumentHash:  "sha256:original",
		SignatureType: models.SignatureQualified,
		Status:        models.StatusSigned,
		CertificateID: "cert-1",
		ExpiryDate:    time.Now().Add(24 * time.Hour),
		SignedDate:    &signed,
	}).Error)
	require.NoError(t, database.Create(&models.Certificate{
		ID:           "cert-1",
		Issuer:       "Qualified CA",
		Subject:      "CN=signer",
		SerialNumber: "0042",
		Thumbprint:   "ab:cd:ef",
		ValidFrom:    time.Now().Add(-24 * time.Hour),
		ValidTo:      time.Now().AddDate(1, 0, 0),
		Status:       models.CertificateValid,
	}).Error)
}

func TestVerifyFullyCompliant(t *testing.T) {
	database := testDB(t)
	seedSignedRequest(t, database)
	verifier := compliance.NewVerifier(database, zap.NewNop())

	record, err := verifier.Verify(context.Background(), "req-1", "auditor-1")
	require.NoError(t, err)

	assert.True(t, record.CertificateValid)
	assert.True(t, record.NonRepudiationVerified)
	assert.True(t, record.TimestampValid)
	assert.True(t, record.DocumentIntegrityVerified)
	assert.True(t, record.OverallCompliant)
	assert.Equal(t, "auditor-1", record.AuditedBy)
}

func TestVerdictRegressesWhenCertificateRevoked(t *testing.T) {
	database := testDB(t)
	seedSignedRequest(t, database)
	verifier := compliance.NewVerifier(database, zap.NewNop())
	ctx := context.Background()

	first, err := verifier.Verify(ctx, "req-1", "")
	require.NoError(t, err)
	require.True(t, first.OverallCompliant)

	now := time.Now()
	require.NoError(t, database.Model(&models.Certificate{}).
		Where("id = ?", "cert-1").
		Updates(map[string]interface{}{
			"status":            models.CertificateRevoked,
			"revocation_date":   now,
			"revocation_reason": "key compromise",
		}).Error)

	second, err := verifier.Verify(ctx, "req-1", "")
	require.NoError(t, err)
	assert.False(t, second.CertificateValid)
	assert.False(t, second.OverallCompliant)
	// Request-side verdicts are untouched by the certificate change.
	assert.True(t, second.TimestampValid)
	assert.True(t, second.DocumentIntegrityVerified)
}

func TestRepeatedVerificationAppendsDistinctRecords(t *testing.T) {
	database := testDB(t)
	seedSignedRequest(t, database)
	verifier := compliance.NewVerifier(database, zap.NewNop())
	ctx := context.Background()

	first, err := verifier.Verify(ctx, "req-1", "")
	require.NoError(t, err)
	second, err := verifier.Verify(ctx, "req-1", "")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.OverallCompliant, second.OverallCompliant)
	assert.Equal(t, first.CertificateValid, second.CertificateValid)

	var count int64
	require.NoError(t, database.Model(&models.ComplianceRecord{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestTamperDetection(t *testing.T) {
	database := testDB(t)
	seedSignedRequest(t, database)
	verifier := compliance.NewVerifier(database, zap.NewNop())

	record, err := verifier.VerifyAgainstHash(context.Background(), "req-1", "", "sha256:tampered")
	require.NoError(t, err)
	assert.False(t, record.DocumentIntegrityVerified)
	assert.False(t, record.OverallCompliant)
	assert.True(t, record.CertificateValid) // tampering does not touch the certificate verdict
}

func TestVerifyWithoutCertificate(t *testing.T) {
	database := testDB(t)
	require.NoError(t, database.Create(&models.SignatureRequest{
		ID:           "req-2",
		DocumentID:   "doc-2",
		RequesterID:  "user-1",
		SignerEmail:  "signer@example.com",
		DocumentHash: "sha256:x",
		Status:       models.StatusSent,
		ExpiryDate:   time.Now().Add(time.Hour),
	}).Error)
	verifier := compliance.NewVerifier(database, zap.NewNop())

	record, err := verifier.Verify(context.Background(), "req-2", "")
	require.NoError(t, err)
	assert.False(t, record.CertificateValid)
	assert.False(t, record.NonRepudiationVerified)
	assert.False(t, record.TimestampValid)
	assert.True(t, record.DocumentIntegrityVerified)
	assert.False(t, record.OverallCompliant)
}

func TestVerifyUnknownRequest(t *testing.T) {
	verifier := compliance.NewVerifier(testDB(t), zap.NewNop())
	_, err := verifier.Verify(context.Background(), "missing", "")
	require.ErrorIs(t, err, compliance.ErrRequestNotFound)
}
