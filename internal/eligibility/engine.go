// Package eligibility decides whether a credential holder may place a bet.
//
// The engine is a pure function of its inputs: the credential, whether its
// proof re-verified, the requested amount, the jurisdiction and the time.
// Policy denials are verdicts, never errors.
package eligibility

import (
	"math"
	"time"

	"zkgate/internal/credential/models"
)

// Reason is the first check that determined a verdict.
type Reason string

const (
	ReasonProofExpired           Reason = "proof_expired"
	ReasonProofInvalid           Reason = "proof_invalid"
	ReasonPredicateNotMet        Reason = "predicate_not_met"
	ReasonInvalidAmount          Reason = "invalid_amount"
	ReasonJurisdictionRestricted Reason = "jurisdiction_restricted"
	ReasonAmountExceedsLimit     Reason = "amount_exceeds_limit"
	ReasonApproved               Reason = "approved"
)

// Message returns a human-readable explanation of the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonProofExpired:
		return "The age credential has expired. Generate a new proof."
	case ReasonProofInvalid:
		return "The stored proof could not be verified. Generate a new proof."
	case ReasonPredicateNotMet:
		return "The credential does not prove the minimum age."
	case ReasonInvalidAmount:
		return "The amount must be a positive number."
	case ReasonJurisdictionRestricted:
		return "Betting is not permitted in this jurisdiction."
	case ReasonAmountExceedsLimit:
		return "The amount exceeds the limit for this jurisdiction."
	case ReasonApproved:
		return "Bet approved."
	default:
		return ""
	}
}

// Input groups everything a decision depends on.
type Input struct {
	Credential models.Credential
	// Verified is the outcome of re-verifying the stored proof.
	Verified     bool
	Amount       float64
	Jurisdiction string
	Now          time.Time
}

// Verdict is the outcome of an eligibility check. It is computed per request
// and never cached.
type Verdict struct {
	Eligible     bool
	CanAct       bool
	Reason       Reason
	MaxAmount    float64
	Jurisdiction string
}

// Engine evaluates inputs against an immutable policy table.
type Engine struct {
	policies PolicyTable
}

// NewEngine creates an Engine bound to policies.
func NewEngine(policies PolicyTable) *Engine {
	return &Engine{policies: policies}
}

// Policies returns the table the engine was built with.
func (e *Engine) Policies() PolicyTable {
	return e.policies
}

// Evaluate applies the rule chain. Rule priority (first failure wins):
//  1. Credential expiry
//  2. Proof re-verification
//  3. Age predicate
//  4. Amount sanity
//  5. Jurisdiction restriction
//  6. Jurisdiction limit
func (e *Engine) Evaluate(in Input) Verdict {
	policy := e.policies.Resolve(in.Jurisdiction)
	v := Verdict{
		Eligible:     in.Verified && in.Credential.PredicateResult(),
		MaxAmount:    policy.MaxAmount,
		Jurisdiction: policy.Code,
	}

	switch {
	case in.Credential.IsExpiredAt(in.Now):
		v.Eligible = false
		v.Reason = ReasonProofExpired
	case !in.Verified:
		v.Reason = ReasonProofInvalid
	case !in.Credential.PredicateResult():
		v.Reason = ReasonPredicateNotMet
	case !validAmount(in.Amount):
		v.Reason = ReasonInvalidAmount
	case policy.Restricted:
		v.Reason = ReasonJurisdictionRestricted
	case in.Amount > policy.MaxAmount:
		v.Reason = ReasonAmountExceedsLimit
	default:
		v.Reason = ReasonApproved
		v.CanAct = true
	}
	return v
}

func validAmount(amount float64) bool {
	return amount > 0 && !math.IsInf(amount, 0) && !math.IsNaN(amount)
}
