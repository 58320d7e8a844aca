// Package proof defines the contract between the gateway and a zero-knowledge
// proof system for the statement
//
//	"the attributes bound to commitment C, evaluated at reference date D,
//	 give an age in whole years of at least T, and the result is R"
//
// Any Backend must satisfy these rules to be substitutable:
//   - Prove fails with a CodeProofFailed error when the commitment does not
//     bind the attributes, when a date field is outside the circuit ranges, or
//     when the context ends first. It never returns a proof for a false
//     statement and never signals ineligibility through an error.
//   - Verify needs only the proof, its public signals and the commitment. It
//     returns false for any tampered input and an error only when it could not
//     run to completion.
//   - Private attributes never appear in a Proof, an error or a log line.
package proof

import (
	"context"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"zkgate/internal/commitment"
	"zkgate/pkg/domain"
	dErrors "zkgate/pkg/domain-errors"
)

// AgeThreshold is the fixed predicate threshold in whole years.
const AgeThreshold = 18

// Backend produces and checks proofs for the age statement.
type Backend interface {
	Prove(ctx context.Context, attrs commitment.Attributes, c commitment.Commitment, ref domain.Date, threshold int) (Proof, error)
	Verify(ctx context.Context, p Proof, signals PublicSignals, c commitment.Commitment) (bool, error)
}

// Fingerprint is BLAKE2b-256 over the serialized proof.
type Fingerprint [32]byte

// FingerprintOf hashes serialized proof bytes.
func FingerprintOf(data []byte) Fingerprint {
	return blake2b.Sum256(data)
}

// String returns the lowercase hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// PublicSignals are the public outputs and parameters of a proof.
type PublicSignals struct {
	PredicateResult bool
	Fingerprint     Fingerprint
	ReferenceDate   domain.Date
	Threshold       int
}

// Proof is an opaque proof artifact together with its public signals.
type Proof struct {
	Scheme  string
	Data    []byte
	Signals PublicSignals
}

// IsZero reports whether p carries no proof bytes.
func (p Proof) IsZero() bool {
	return len(p.Data) == 0
}

// Failed builds a CodeProofFailed error. The message must not contain
// attribute values.
func Failed(msg string, cause error) error {
	return &dErrors.Error{Code: dErrors.CodeProofFailed, Message: msg, Err: cause}
}

// EvaluatePredicate is the reference semantics every backend must encode:
// age in whole years at ref, counting a birthday on ref as occurred.
func EvaluatePredicate(birth, ref domain.Date, threshold int) bool {
	return domain.IsAtLeast(birth, ref, threshold)
}

// CheckInputs applies the circuit's range and binding constraints in Go so a
// backend can reject unprovable input before the expensive proving step.
func CheckInputs(attrs commitment.Attributes, c commitment.Commitment, ref domain.Date, threshold int) error {
	if threshold < 0 {
		return Failed("threshold must not be negative", nil)
	}
	if ref.Month < 1 || ref.Month > 12 || ref.Day < 1 || ref.Day > 31 {
		return Failed("reference date outside circuit range", nil)
	}
	recomputed, err := commitment.Commit(attrs)
	if err != nil {
		return Failed("attributes outside circuit range", err)
	}
	if attrs.BirthYear > ref.Year {
		return Failed("birth year is after reference year", nil)
	}
	if !recomputed.Equal(c) {
		return Failed("commitment does not match attributes", nil)
	}
	return nil
}
