package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/laserpanama/legal-practice-stack/internal/config"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAuthorizationDenied  = errors.New("authorization denied")
)

const RoleAdmin = "admin"

// Principal is the identity asserted by a verified bearer credential.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Verifier validates bearer credentials. Token issuance belongs to the
// surrounding back office; this subsystem only checks signature, expiry and
// role.
type Verifier struct {
	secret   []byte
	tokenTTL time.Duration
}

func NewVerifier(cfg config.AuthConfig) *Verifier {
	return &Verifier{
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: cfg.TokenTTL,
	}
}

// Verify parses and validates the credential. Expired or malformed tokens
// fail with ErrAuthenticationFailed.
func (v *Verifier) Verify(token string) (*Principal, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrAuthenticationFailed
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" {
		return nil, ErrAuthenticationFailed
	}

	return &Principal{UserID: c.Subject, Email: c.Email, Role: c.Role}, nil
}

// VerifyAdmin additionally requires the admin role. Any other role is
// rejected before a connection can be registered.
func (v *Verifier) VerifyAdmin(token string) (*Principal, error) {
	principal, err := v.Verify(token)
	if err != nil {
		return nil, err
	}
	if principal.Role != RoleAdmin {
		return nil, ErrAuthorizationDenied
	}
	return principal, nil
}

// Issue mints a credential for the given identity. Used by operational
// tooling and tests; the production issuer lives in the back office.
func (v *Verifier) Issue(userID, email, role string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.tokenTTL)),
		},
		Email: email,
		Role:  role,
	})
	return token.SignedString(v.secret)
}
