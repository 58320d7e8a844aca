package groth16

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"zkgate/internal/commitment"
	"zkgate/pkg/domain"
)

// AgeCircuit proves that a committed birth date gives an age of at least
// Threshold whole years at the reference date, and that Eligible is the
// honest result of that comparison.
type AgeCircuit struct {
	BirthYear  frontend.Variable
	BirthMonth frontend.Variable
	BirthDay   frontend.Variable
	Secret     frontend.Variable

	Commitment frontend.Variable `gnark:",public"`
	RefYear    frontend.Variable `gnark:",public"`
	RefMonth   frontend.Variable `gnark:",public"`
	RefDay     frontend.Variable `gnark:",public"`
	Threshold  frontend.Variable `gnark:",public"`
	Eligible   frontend.Variable `gnark:",public"`
}

// Define declares the circuit constraints.
func (c *AgeCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.BirthYear, c.BirthMonth, c.BirthDay, c.Secret)
	api.AssertIsEqual(h.Sum(), c.Commitment)

	assertInRange(api, c.BirthMonth, 12)
	assertInRange(api, c.BirthDay, 31)
	assertInRange(api, c.RefMonth, 12)
	assertInRange(api, c.RefDay, 31)
	api.AssertIsLessOrEqual(c.BirthYear, c.RefYear)

	// Cmp yields 1, 0 or -1; adding one maps -1 to zero.
	monthCmp := api.Cmp(c.RefMonth, c.BirthMonth)
	dayCmp := api.Cmp(c.RefDay, c.BirthDay)
	laterMonth := api.IsZero(api.Sub(monthCmp, 1))
	sameMonth := api.IsZero(monthCmp)
	dayReached := api.Sub(1, api.IsZero(api.Add(dayCmp, 1)))
	hadBirthday := api.Or(laterMonth, api.And(sameMonth, dayReached))

	// age >= threshold  <=>  years + hadBirthday >= threshold + 1
	lhs := api.Add(api.Sub(c.RefYear, c.BirthYear), hadBirthday)
	rhs := api.Add(c.Threshold, 1)
	eligible := api.Sub(1, api.IsZero(api.Add(api.Cmp(lhs, rhs), 1)))

	api.AssertIsBoolean(c.Eligible)
	api.AssertIsEqual(c.Eligible, eligible)
	return nil
}

func assertInRange(api frontend.API, v frontend.Variable, max int) {
	api.AssertIsDifferent(v, 0)
	api.AssertIsLessOrEqual(v, max)
}

// publicAssignment fills only the public inputs; private inputs are zero.
func publicAssignment(c commitment.Commitment, ref domain.Date, threshold int, eligible bool) AgeCircuit {
	return AgeCircuit{
		BirthYear:  0,
		BirthMonth: 0,
		BirthDay:   0,
		Secret:     0,
		Commitment: c.BigInt(),
		RefYear:    ref.Year,
		RefMonth:   ref.Month,
		RefDay:     ref.Day,
		Threshold:  threshold,
		Eligible:   boolToInt(eligible),
	}
}

func fullAssignment(attrs commitment.Attributes, c commitment.Commitment, ref domain.Date, threshold int, eligible bool) AgeCircuit {
	a := publicAssignment(c, ref, threshold, eligible)
	secret := commitment.SecretElement(attrs.IdentitySecret)
	a.BirthYear = attrs.BirthYear
	a.BirthMonth = attrs.BirthMonth
	a.BirthDay = attrs.BirthDay
	a.Secret = secret.BigInt(new(big.Int))
	return a
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
