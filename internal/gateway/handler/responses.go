package handler

import (
	"time"

	"zkgate/internal/eligibility"
	"zkgate/internal/gateway/service"
)

// CommitmentResponse is the response body for POST /commitment.
type CommitmentResponse struct {
	Commitment string `json:"commitment"`
}

// ProofResponse is the response body for POST /proof.
type ProofResponse struct {
	CredentialID string    `json:"credentialId"`
	Eligible     bool      `json:"eligible"`
	IssuedAt     time.Time `json:"issuedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// VerifyResponse is the response body for POST /proof/verify. Expired
// credentials use the same body with a 410 status.
type VerifyResponse struct {
	Valid     bool      `json:"valid"`
	Eligible  bool      `json:"eligible"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// EligibilityResponse is the verdict body for POST /eligibility.
type EligibilityResponse struct {
	Eligible     bool    `json:"eligible"`
	CanAct       bool    `json:"canAct"`
	Reason       string  `json:"reason"`
	Message      string  `json:"message"`
	MaxAmount    float64 `json:"maxAmount"`
	Jurisdiction string  `json:"jurisdiction"`
	Receipt      string  `json:"receipt,omitempty"`
}

// PolicyResponse describes one jurisdiction's limits.
type PolicyResponse struct {
	Code       string  `json:"code"`
	MaxAmount  float64 `json:"maxAmount"`
	MinAge     int     `json:"minAge"`
	Restricted bool    `json:"restricted"`
}

// JurisdictionsResponse is the response body for GET /jurisdictions.
type JurisdictionsResponse struct {
	Default       PolicyResponse   `json:"default"`
	Jurisdictions []PolicyResponse `json:"jurisdictions"`
}

func toProofResponse(r *service.IssueResult) ProofResponse {
	return ProofResponse{
		CredentialID: r.Credential.ID.String(),
		Eligible:     r.Eligible(),
		IssuedAt:     r.Credential.IssuedAt.UTC(),
		ExpiresAt:    r.Credential.ExpiresAt.UTC(),
	}
}

func toVerifyResponse(r *service.VerifyResult) VerifyResponse {
	return VerifyResponse{
		Valid:     r.Valid,
		Eligible:  r.Eligible,
		IssuedAt:  r.Credential.IssuedAt.UTC(),
		ExpiresAt: r.Credential.ExpiresAt.UTC(),
	}
}

func toEligibilityResponse(r *service.EligibilityResult) EligibilityResponse {
	return EligibilityResponse{
		Eligible:     r.Verdict.Eligible,
		CanAct:       r.Verdict.CanAct,
		Reason:       string(r.Verdict.Reason),
		Message:      r.Verdict.Reason.Message(),
		MaxAmount:    r.Verdict.MaxAmount,
		Jurisdiction: r.Verdict.Jurisdiction,
		Receipt:      r.Receipt,
	}
}

func toPolicyResponse(p eligibility.Policy) PolicyResponse {
	return PolicyResponse{
		Code:       p.Code,
		MaxAmount:  p.MaxAmount,
		MinAge:     p.MinAge,
		Restricted: p.Restricted,
	}
}

func toJurisdictionsResponse(t eligibility.PolicyTable) JurisdictionsResponse {
	policies := t.Policies()
	resp := JurisdictionsResponse{
		Default:       toPolicyResponse(t.Fallback()),
		Jurisdictions: make([]PolicyResponse, 0, len(policies)),
	}
	for _, p := range policies {
		resp.Jurisdictions = append(resp.Jurisdictions, toPolicyResponse(p))
	}
	return resp
}
