package handler

import (
	"log/slog"
	"strings"

	"zkgate/internal/commitment"
	"zkgate/internal/credential/models"
	"zkgate/internal/eligibility"
	dErrors "zkgate/pkg/domain-errors"
	"zkgate/pkg/platform/validation"
)

// CommitmentRequest is the request body for POST /commitment.
type CommitmentRequest struct {
	BirthYear      int    `json:"birthYear"`
	BirthMonth     int    `json:"birthMonth"`
	BirthDay       int    `json:"birthDay"`
	IdentitySecret string `json:"identitySecret" validate:"max=256"`
}

// LogValue keeps the request out of slog output.
func (r CommitmentRequest) LogValue() slog.Value {
	return r.Attributes().LogValue()
}

// Validate checks the private attributes. Errors never echo field values.
func (r *CommitmentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	return r.Attributes().Validate()
}

// Attributes converts the request into commitment attributes.
func (r CommitmentRequest) Attributes() commitment.Attributes {
	return commitment.Attributes{
		BirthYear:      r.BirthYear,
		BirthMonth:     r.BirthMonth,
		BirthDay:       r.BirthDay,
		IdentitySecret: r.IdentitySecret,
	}
}

// ProofRequest is the request body for POST /proof.
type ProofRequest struct {
	CommitmentRequest
	Commitment string `json:"commitment" validate:"max=128"`
}

// LogValue keeps the request out of slog output.
func (r ProofRequest) LogValue() slog.Value {
	return r.CommitmentRequest.LogValue()
}

// Normalize trims the commitment text.
func (r *ProofRequest) Normalize() {
	if r == nil {
		return
	}
	r.Commitment = strings.TrimSpace(r.Commitment)
}

// Validate checks attributes first, then the commitment's shape.
func (r *ProofRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	if err := r.CommitmentRequest.Validate(); err != nil {
		return err
	}
	return validation.CheckRequired("commitment", r.Commitment)
}

// VerifyRequest is the request body for POST /proof/verify.
type VerifyRequest struct {
	CredentialID string `json:"credentialId" validate:"required,max=128"`

	parsedCredentialID models.CredentialID
}

// Normalize trims the credential id.
func (r *VerifyRequest) Normalize() {
	if r == nil {
		return
	}
	r.CredentialID = strings.TrimSpace(r.CredentialID)
}

// Validate validates and parses the credential id.
func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	id, err := models.ParseCredentialID(r.CredentialID)
	if err != nil {
		return err
	}
	r.parsedCredentialID = id
	return nil
}

// ParsedCredentialID returns the validated credential id.
func (r *VerifyRequest) ParsedCredentialID() models.CredentialID {
	return r.parsedCredentialID
}

// EligibilityRequest is the request body for POST /eligibility. A missing or
// non-positive amount is a policy denial, not a validation error.
type EligibilityRequest struct {
	CredentialID string  `json:"credentialId" validate:"required,max=128"`
	Amount       float64 `json:"amount"`
	Jurisdiction string  `json:"jurisdiction" validate:"max=16"`

	parsedCredentialID models.CredentialID
}

// Normalize trims the credential id and normalizes the jurisdiction code.
func (r *EligibilityRequest) Normalize() {
	if r == nil {
		return
	}
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.Jurisdiction = eligibility.NormalizeJurisdiction(r.Jurisdiction)
}

// Validate validates and parses the request.
func (r *EligibilityRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Struct(r); err != nil {
		return err
	}
	id, err := models.ParseCredentialID(r.CredentialID)
	if err != nil {
		return err
	}
	r.parsedCredentialID = id
	return nil
}

// ParsedCredentialID returns the validated credential id.
func (r *EligibilityRequest) ParsedCredentialID() models.CredentialID {
	return r.parsedCredentialID
}
