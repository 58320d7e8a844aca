package models

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"zkgate/internal/commitment"
	"zkgate/internal/proof"
	dErrors "zkgate/pkg/domain-errors"
)

const (
	// DefaultValidity is how long a credential stays usable after issuance.
	DefaultValidity = 24 * time.Hour

	credentialIDPrefix = "cred_"
	credentialIDDomain = "zkgate/credential/v1"
)

// CredentialID is the opaque handle returned to holders. It is derived from
// the proof bytes, so the same proof always maps to the same id.
type CredentialID string

// NewCredentialID derives the id of a proof.
func NewCredentialID(p proof.Proof) CredentialID {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(credentialIDDomain))
	h.Write(p.Data)
	return CredentialID(credentialIDPrefix + hex.EncodeToString(h.Sum(nil)))
}

// ParseCredentialID validates and parses a credential ID string.
func ParseCredentialID(value string) (CredentialID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", dErrors.New(dErrors.CodeValidation, "credentialId is required")
	}
	if !strings.HasPrefix(value, credentialIDPrefix) {
		return "", dErrors.New(dErrors.CodeValidation, "credentialId must start with cred_")
	}
	digest := strings.TrimPrefix(value, credentialIDPrefix)
	if len(digest) != 2*blake2b.Size256 || strings.ToLower(digest) != digest {
		return "", dErrors.New(dErrors.CodeValidation, "invalid credentialId format")
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "invalid credentialId format")
	}
	return CredentialID(value), nil
}

// String returns the credential ID as a string.
func (id CredentialID) String() string {
	return string(id)
}

// Credential is an issued, time-bounded proof of the age predicate bound to
// a commitment. It carries no private attributes.
type Credential struct {
	ID         CredentialID
	Proof      proof.Proof
	Commitment commitment.Commitment
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// NewCredential builds a credential valid for validity from issuedAt.
func NewCredential(p proof.Proof, c commitment.Commitment, issuedAt time.Time, validity time.Duration) Credential {
	return Credential{
		ID:         NewCredentialID(p),
		Proof:      p,
		Commitment: c,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.Add(validity),
	}
}

// PredicateResult is the public eligibility signal carried by the proof.
func (c Credential) PredicateResult() bool {
	return c.Proof.Signals.PredicateResult
}

// IsExpiredAt reports whether the credential is past its expiry at now.
// A credential is still valid at exactly ExpiresAt.
func (c Credential) IsExpiredAt(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
