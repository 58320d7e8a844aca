// Package commitment binds private birth-date attributes and an identity
// secret to a public 32-byte value.
//
// The binding is MiMC over the BN254 scalar field, the same permutation the
// age circuit evaluates in-circuit, so a commitment computed here is exactly
// the value the prover must reproduce. Commit is pure and deterministic.
package commitment

import (
	"crypto/subtle"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	dErrors "zkgate/pkg/domain-errors"
)

// Size is the commitment width in bytes.
const Size = fr.Bytes

// Commitment is a canonical big-endian BN254 scalar.
type Commitment [Size]byte

// Commit validates a and returns its commitment. Validation happens before
// any hashing; invalid input returns a CodeInvalidAttributes error.
func Commit(a Attributes) (Commitment, error) {
	if err := a.Validate(); err != nil {
		return Commitment{}, err
	}
	return bind(a.FieldElements()), nil
}

func bind(elems [4]fr.Element) Commitment {
	h := mimc.NewMiMC()
	for i := range elems {
		b := elems[i].Bytes()
		// Canonical field elements never fail to absorb.
		_, _ = h.Write(b[:])
	}
	var c Commitment
	copy(c[:], h.Sum(nil))
	return c
}

// Parse decodes the 0x-prefixed hex form produced by String and rejects values
// outside the scalar field.
func Parse(s string) (Commitment, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Commitment{}, dErrors.New(dErrors.CodeValidation, "commitment is required")
	}
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != 2*Size {
		return Commitment{}, dErrors.New(dErrors.CodeValidation, "commitment must be 32 bytes of hex")
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return Commitment{}, dErrors.New(dErrors.CodeValidation, "commitment must be hex encoded")
	}
	if new(big.Int).SetBytes(b).Cmp(fr.Modulus()) >= 0 {
		return Commitment{}, dErrors.New(dErrors.CodeValidation, "commitment is not a field element")
	}
	var c Commitment
	copy(c[:], b)
	return c, nil
}

// String returns the 0x-prefixed lowercase hex form.
func (c Commitment) String() string {
	return "0x" + hex.EncodeToString(c[:])
}

// IsZero reports whether c is unset.
func (c Commitment) IsZero() bool {
	return c == Commitment{}
}

// Equal compares in constant time.
func (c Commitment) Equal(other Commitment) bool {
	return subtle.ConstantTimeCompare(c[:], other[:]) == 1
}

// BigInt returns the commitment as an integer, the form circuit witnesses use.
func (c Commitment) BigInt() *big.Int {
	return new(big.Int).SetBytes(c[:])
}

// MarshalText implements encoding.TextMarshaler.
func (c Commitment) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Commitment) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
