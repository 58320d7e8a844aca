package commitment

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/blake2b"

	"zkgate/pkg/domain"
	dErrors "zkgate/pkg/domain-errors"
)

const (
	// MinBirthYear and MaxBirthYear bound the accepted birth year. The prover
	// additionally requires the birth year not to exceed the reference year.
	MinBirthYear = 1900
	MaxBirthYear = 9999

	// MaxSecretLength caps the identity secret in bytes.
	MaxSecretLength = 256

	secretDomain = "zkgate/identity-secret/v1:"
)

const redacted = "[redacted]"

// Attributes are the private inputs bound by a Commitment. They live only in
// process memory for the duration of a commit or prove call.
type Attributes struct {
	BirthYear      int
	BirthMonth     int
	BirthDay       int
	IdentitySecret string
}

// String keeps attributes out of fmt output.
func (a Attributes) String() string {
	return redacted
}

// GoString keeps attributes out of %#v output.
func (a Attributes) GoString() string {
	return redacted
}

// LogValue keeps attributes out of slog output.
func (a Attributes) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// BirthDate returns the birth date as a calendar date.
func (a Attributes) BirthDate() domain.Date {
	return domain.Date{Year: a.BirthYear, Month: a.BirthMonth, Day: a.BirthDay}
}

// Validate checks every field against its declared range. Errors name the
// offending field and never its value.
func (a Attributes) Validate() error {
	if a.BirthYear < MinBirthYear || a.BirthYear > MaxBirthYear {
		return invalid(fmt.Sprintf("birthYear must be between %d and %d", MinBirthYear, MaxBirthYear))
	}
	if a.BirthMonth < 1 || a.BirthMonth > 12 {
		return invalid("birthMonth must be between 1 and 12")
	}
	if a.BirthDay < 1 || a.BirthDay > 31 {
		return invalid("birthDay must be between 1 and 31")
	}
	if a.BirthDay > daysIn(a.BirthYear, a.BirthMonth) {
		return invalid("birthDay does not exist in birthMonth")
	}
	if a.IdentitySecret == "" {
		return invalid("identitySecret is required")
	}
	if len(a.IdentitySecret) > MaxSecretLength {
		return invalid(fmt.Sprintf("identitySecret must be at most %d bytes", MaxSecretLength))
	}
	return nil
}

// FieldElements returns the attributes as the four BN254 scalars that are
// hashed into the commitment, in circuit order.
func (a Attributes) FieldElements() [4]fr.Element {
	var e [4]fr.Element
	e[0].SetUint64(uint64(a.BirthYear))
	e[1].SetUint64(uint64(a.BirthMonth))
	e[2].SetUint64(uint64(a.BirthDay))
	e[3] = SecretElement(a.IdentitySecret)
	return e
}

// SecretElement maps an identity secret of arbitrary length into the scalar
// field via BLAKE2b-256, reduced modulo r.
func SecretElement(secret string) fr.Element {
	digest := blake2b.Sum256([]byte(secretDomain + secret))
	var e fr.Element
	e.SetBytes(digest[:])
	return e
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func invalid(msg string) error {
	return dErrors.New(dErrors.CodeInvalidAttributes, msg)
}
