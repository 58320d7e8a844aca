package audit

import (
	"context"
	"time"
)

// Event is emitted from domain logic to capture key actions. It references
// credentials by id only and never carries private attributes.
type Event struct {
	Timestamp    time.Time
	Action       string
	CredentialID string
	// Outcome is a short result such as "eligible", "valid" or a verdict reason.
	Outcome   string
	Reason    string
	RequestID string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByCredential(ctx context.Context, credentialID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// AuditEvent names an audited action.
type AuditEvent string

const (
	EventCommitmentCreated    AuditEvent = "commitment_created"
	EventCredentialIssued     AuditEvent = "credential_issued"
	EventCredentialVerified   AuditEvent = "credential_verified"
	EventEligibilityEvaluated AuditEvent = "eligibility_evaluated"
	EventProofFailed          AuditEvent = "proof_failed"
)

// EventCategory groups events by retention and review needs.
type EventCategory string

const (
	CategoryCompliance EventCategory = "compliance"
	CategoryOperations EventCategory = "operations"
)

// Category returns the category of e. Unknown events fall back to operations.
func (e AuditEvent) Category() EventCategory {
	switch e {
	case EventCredentialIssued, EventEligibilityEvaluated:
		return CategoryCompliance
	default:
		return CategoryOperations
	}
}
