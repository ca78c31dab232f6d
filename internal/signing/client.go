package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/laserpanama/legal-practice-stack/internal/config"
	"github.com/laserpanama/legal-practice-stack/internal/db/models"
	"github.com/laserpanama/legal-practice-stack/pkg/metrics"
	"go.uber.org/zap"
)

// ErrSigningAuthority wraps any failure of the external signing authority.
// The caller leaves local request state unchanged, so the operation is safely
// retriable.
var ErrSigningAuthority = errors.New("signing authority request failed")

// Signer identifies who is being asked to sign.
type Signer struct {
	Name       string `json:"signerName"`
	Email      string `json:"signerEmail"`
	NationalID string `json:"signerNationalId,omitempty"`
}

// SignatureGrant is the authority's response to opening a signature.
type SignatureGrant struct {
	SignatureID   string    `json:"signatureId"`
	CertificateID string    `json:"certificateId"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// VerificationResult is the authority's verdict on a completed signature.
type VerificationResult struct {
	IsValid           bool                     `json:"isValid"`
	CertificateID     string                   `json:"certificateId"`
	SignerName        string                   `json:"signerName"`
	SignerEmail       string                   `json:"signerEmail"`
	SignedAt          time.Time                `json:"signedAt"`
	CertificateStatus models.CertificateStatus `json:"certificateStatus"`
}

// Client talks to the external signing authority. Calls are single-attempt
// with a finite timeout: no retry or backoff policy of its own, a failure
// surfaces to the caller as a hard error.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(cfg config.SigningConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("service", "signing_client")),
	}
}

// RequestSignature asks the authority to open a signature for the document
// fingerprint and signer identity.
func (c *Client) RequestSignature(ctx context.Context, documentHash string, signer Signer) (*SignatureGrant, error) {
	payload := struct {
		DocumentHash string `json:"documentHash"`
		Signer
	}{documentHash, signer}

	var grant SignatureGrant
	if err := c.post(ctx, "/v1/signatures", payload, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// VerifySignature asks the authority whether the signature still verifies
// against the document fingerprint.
func (c *Client) VerifySignature(ctx context.Context, signatureID, documentHash string) (*VerificationResult, error) {
	payload := struct {
		DocumentHash string `json:"documentHash"`
	}{documentHash}

	var result VerificationResult
	path := fmt.Sprintf("/v1/signatures/%s/verify", signatureID)
	if err := c.post(ctx, path, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Certificate fetches the full certificate record behind a certificate id so
// it can be persisted locally for later verification.
func (c *Client) Certificate(ctx context.Context, certificateID string) (*models.Certificate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/certificates/"+certificateID, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningAuthority, err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.SigningAuthorityDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningAuthority, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrSigningAuthority, resp.StatusCode)
	}

	var payload struct {
		CertificateID string                   `json:"certificateId"`
		Issuer        string                   `json:"issuer"`
		Subject       string                   `json:"subject"`
		SerialNumber  string                   `json:"serialNumber"`
		Thumbprint    string                   `json:"thumbprint"`
		ValidFrom     time.Time                `json:"validFrom"`
		ValidTo       time.Time                `json:"validTo"`
		Status        models.CertificateStatus `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrSigningAuthority, err)
	}

	return &models.Certificate{
		ID:           payload.CertificateID,
		Issuer:       payload.Issuer,
		Subject:      payload.Subject,
		SerialNumber: payload.SerialNumber,
		Thumbprint:   payload.Thumbprint,
		ValidFrom:    payload.ValidFrom,
		ValidTo:      payload.ValidTo,
		Status:       payload.Status,
	}, nil
}

// TimestampToken obtains an opaque timestamp token for the fingerprint.
func (c *Client) TimestampToken(ctx context.Context, documentHash string) (string, error) {
	payload := struct {
		DocumentHash string `json:"documentHash"`
	}{documentHash}

	var response struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/v1/timestamps", payload, &response); err != nil {
		return "", err
	}
	return response.Token, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSigningAuthority, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSigningAuthority, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.SigningAuthorityDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Error("signing authority unreachable", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSigningAuthority, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("signing authority returned error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw))
		return fmt.Errorf("%w: status %d", ErrSigningAuthority, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrSigningAuthority, err)
	}
	return nil
}
