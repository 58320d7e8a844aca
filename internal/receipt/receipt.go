// Package receipt signs approvals so a downstream bet-placement service can
// check that a verdict was issued by this gateway without calling it back.
package receipt

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "zkgate/pkg/domain-errors"
	"zkgate/pkg/platform/middleware/requesttime"
)

const defaultIssuer = "zkgate"

// Claims are the JWT claims of an eligibility receipt. The subject is the
// credential id; no private attribute is ever included.
type Claims struct {
	Jurisdiction string  `json:"jurisdiction"`
	Amount       float64 `json:"amount"`
	MaxAmount    float64 `json:"max_amount"`
	Reason       string  `json:"reason"`
	jwt.RegisteredClaims
}

// Approval is the verdict being attested.
type Approval struct {
	CredentialID string
	Jurisdiction string
	Amount       float64
	MaxAmount    float64
	Reason       string
}

// Signer issues and validates HS256 receipts.
type Signer struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) Option {
	return func(s *Signer) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithClock overrides the time used when validating receipts.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSigner creates a Signer. Receipts expire ttl after issuance.
func NewSigner(signingKey string, ttl time.Duration, opts ...Option) (*Signer, error) {
	if signingKey == "" {
		return nil, errors.New("receipt signing key is required")
	}
	if ttl <= 0 {
		return nil, errors.New("receipt ttl must be positive")
	}
	s := &Signer{
		signingKey: []byte(signingKey),
		issuer:     defaultIssuer,
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a receipt for a. Issuance time is the request time.
func (s *Signer) Issue(ctx context.Context, a Approval) (string, error) {
	now := requesttime.Now(ctx)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Jurisdiction: a.Jurisdiction,
		Amount:       a.Amount,
		MaxAmount:    a.MaxAmount,
		Reason:       a.Reason,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.CredentialID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign receipt")
	}
	return signed, nil
}

// Validate checks the signature, algorithm, issuer and expiry of a receipt.
func (s *Signer) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "empty receipt")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeExpired, "receipt expired")
		}
		return nil, dErrors.New(dErrors.CodeValidation, "invalid receipt")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid receipt claims")
	}
	return claims, nil
}
