// Package service orchestrates the credential lifecycle: commitment, proof
// generation, issuance, re-verification and eligibility evaluation.
//
// Validation and commitment parsing always run before any cryptographic work,
// so a rejected request never leaves partial state behind. Every read path
// re-verifies the stored proof with the backend; the stored predicate result
// is trusted only when that verification succeeds.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zkgate/internal/commitment"
	"zkgate/internal/credential/models"
	"zkgate/internal/credential/store"
	"zkgate/internal/eligibility"
	"zkgate/internal/platform/metrics"
	"zkgate/internal/proof"
	"zkgate/internal/receipt"
	"zkgate/pkg/domain"
	dErrors "zkgate/pkg/domain-errors"
	"zkgate/pkg/platform/audit"
	"zkgate/pkg/platform/middleware/requesttime"
	"zkgate/pkg/platform/tracer"
	"zkgate/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/service_mock.go -package=mocks CredentialStore,AuditPublisher,ReceiptIssuer

// CredentialStore persists issued credentials.
type CredentialStore interface {
	Issue(ctx context.Context, p proof.Proof, c commitment.Commitment) (models.Credential, error)
	Lookup(ctx context.Context, id models.CredentialID) (models.Credential, error)
}

// AuditPublisher records audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ReceiptIssuer signs approved verdicts.
type ReceiptIssuer interface {
	Issue(ctx context.Context, a receipt.Approval) (string, error)
}

// Proof outcomes reported to metrics.
const (
	outcomeEligible   = "eligible"
	outcomeIneligible = "ineligible"
	outcomeFailed     = "failed"
)

// Service is the gateway façade.
type Service struct {
	backend  proof.Backend
	store    CredentialStore
	engine   *eligibility.Engine
	auditor  AuditPublisher
	receipts ReceiptIssuer
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics collector for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditor sets the audit publisher. Audit emission is best-effort.
func WithAuditor(a AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithReceipts enables signed receipts for approved verdicts.
func WithReceipts(r ReceiptIssuer) Option {
	return func(s *Service) {
		s.receipts = r
	}
}

// WithTracer sets the tracer used for service spans.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New creates the façade. Panics if a required dependency is nil.
func New(backend proof.Backend, credentials CredentialStore, engine *eligibility.Engine, opts ...Option) *Service {
	if backend == nil {
		panic("service.New: proof backend is required")
	}
	if credentials == nil {
		panic("service.New: credential store is required")
	}
	if engine == nil {
		panic("service.New: eligibility engine is required")
	}

	s := &Service{
		backend: backend,
		store:   credentials,
		engine:  engine,
		tracer:  tracer.NewNoop(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueResult is the outcome of a successful issuance.
type IssueResult struct {
	Credential models.Credential
}

// Eligible is the predicate result carried by the issued proof.
func (r *IssueResult) Eligible() bool {
	return r.Credential.PredicateResult()
}

// VerifyResult is the outcome of re-verifying a stored credential.
type VerifyResult struct {
	Credential models.Credential
	Valid      bool
	Eligible   bool
	Expired    bool
}

// EligibilityRequest asks whether a credential holder may place a bet.
type EligibilityRequest struct {
	CredentialID models.CredentialID
	Amount       float64
	Jurisdiction string
}

// EligibilityResult carries the verdict and, for approvals, a signed receipt.
type EligibilityResult struct {
	Verdict    eligibility.Verdict
	Credential models.Credential
	Receipt    string
}

// Expired reports whether the verdict was decided by credential expiry.
func (r *EligibilityResult) Expired() bool {
	return r.Verdict.Reason == eligibility.ReasonProofExpired
}

// Commit validates attrs and returns their commitment.
func (s *Service) Commit(ctx context.Context, attrs commitment.Attributes) (commitment.Commitment, error) {
	c, err := commitment.Commit(attrs)
	if err != nil {
		return commitment.Commitment{}, err
	}
	if s.metrics != nil {
		s.metrics.IncrementCommitmentsCreated()
	}
	s.emitAudit(ctx, audit.EventCommitmentCreated, "", "created", "")
	return c, nil
}

// IssueCredential proves the age predicate for attrs against the commitment
// in commitmentText and stores the resulting credential. The reference date
// is the request date in UTC.
func (s *Service) IssueCredential(ctx context.Context, attrs commitment.Attributes, commitmentText string) (_ *IssueResult, err error) {
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	c, err := commitment.Parse(commitmentText)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanCredentialIssue)
	defer func() { span.End(err) }()

	ref := domain.DateOf(requesttime.Now(ctx))
	start := time.Now()
	p, err := s.backend.Prove(ctx, attrs, c, ref, proof.AgeThreshold)
	elapsed := time.Since(start)
	if err != nil {
		s.observeProof(outcomeFailed, elapsed)
		s.logger.WarnContext(ctx, "proof generation failed",
			"request_id", requestcontext.RequestID(ctx),
			"reference_date", ref.String(),
			"error", err,
		)
		s.emitAudit(ctx, audit.EventProofFailed, "", outcomeFailed, string(dErrors.CodeOf(err)))
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			return nil, proof.Failed("proof generation failed", err)
		}
		return nil, err
	}
	if p.Signals.PredicateResult {
		s.observeProof(outcomeEligible, elapsed)
	} else {
		s.observeProof(outcomeIneligible, elapsed)
	}

	cred, err := s.store.Issue(ctx, p, c)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential")
	}
	span.SetAttributes(
		tracer.String(tracer.AttrCredentialID, cred.ID.String()),
		tracer.Bool(tracer.AttrPredicateResult, cred.PredicateResult()),
	)

	s.logger.InfoContext(ctx, "credential issued",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", cred.ID.String(),
		"eligible", cred.PredicateResult(),
		"expires_at", cred.ExpiresAt,
	)
	s.emitAudit(ctx, audit.EventCredentialIssued, cred.ID.String(), eligibleOutcome(cred.PredicateResult()), "")
	return &IssueResult{Credential: cred}, nil
}

// VerifyCredential looks up id and re-verifies its proof. Expired credentials
// are reported with Expired set and are not re-verified.
func (s *Service) VerifyCredential(ctx context.Context, id models.CredentialID) (*VerifyResult, error) {
	cred, expired, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if expired {
		s.emitAudit(ctx, audit.EventCredentialVerified, id.String(), "expired", "")
		return &VerifyResult{Credential: cred, Expired: true}, nil
	}

	valid, err := s.reverify(ctx, cred)
	if err != nil {
		return nil, err
	}
	result := &VerifyResult{
		Credential: cred,
		Valid:      valid,
		Eligible:   valid && cred.PredicateResult(),
	}
	s.emitAudit(ctx, audit.EventCredentialVerified, id.String(), validOutcome(valid), "")
	return result, nil
}

// CheckEligibility evaluates a bet request against a stored credential.
// Policy denials are verdicts, not errors. An expired credential yields a
// proof_expired verdict.
func (s *Service) CheckEligibility(ctx context.Context, req EligibilityRequest) (_ *EligibilityResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanEligibility,
		tracer.String(tracer.AttrCredentialID, req.CredentialID.String()),
	)
	defer func() { span.End(err) }()

	cred, expired, err := s.lookup(ctx, req.CredentialID)
	if err != nil {
		return nil, err
	}

	verified := false
	if !expired {
		verified, err = s.reverify(ctx, cred)
		if err != nil {
			return nil, err
		}
	}

	now := requesttime.Now(ctx)
	if expired && !cred.IsExpiredAt(now) {
		// The store observed expiry after the request started.
		now = cred.ExpiresAt.Add(time.Nanosecond)
	}
	verdict := s.engine.Evaluate(eligibility.Input{
		Credential:   cred,
		Verified:     verified,
		Amount:       req.Amount,
		Jurisdiction: req.Jurisdiction,
		Now:          now,
	})
	span.SetAttributes(tracer.String(tracer.AttrReason, string(verdict.Reason)))
	if s.metrics != nil {
		s.metrics.IncrementVerdicts(string(verdict.Reason))
	}

	result := &EligibilityResult{Verdict: verdict, Credential: cred}
	if verdict.CanAct && s.receipts != nil {
		token, err := s.receipts.Issue(ctx, receipt.Approval{
			CredentialID: cred.ID.String(),
			Jurisdiction: verdict.Jurisdiction,
			Amount:       req.Amount,
			MaxAmount:    verdict.MaxAmount,
			Reason:       string(verdict.Reason),
		})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign receipt")
		}
		result.Receipt = token
	}

	s.logger.InfoContext(ctx, "eligibility evaluated",
		"request_id", requestcontext.RequestID(ctx),
		"credential_id", cred.ID.String(),
		"jurisdiction", verdict.Jurisdiction,
		"reason", verdict.Reason,
	)
	s.emitAudit(ctx, audit.EventEligibilityEvaluated, cred.ID.String(), string(verdict.Reason), "")
	return result, nil
}

// Policies exposes the engine's policy table.
func (s *Service) Policies() eligibility.PolicyTable {
	return s.engine.Policies()
}

// lookup returns the stored credential and whether it has expired. Expiry is
// not an error here; absence is.
func (s *Service) lookup(ctx context.Context, id models.CredentialID) (models.Credential, bool, error) {
	cred, err := s.store.Lookup(ctx, id)
	switch {
	case err == nil:
		return cred, false, nil
	case errors.Is(err, store.ErrExpired):
		return cred, true, nil
	case errors.Is(err, store.ErrNotFound):
		return models.Credential{}, false, err
	default:
		return models.Credential{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
}

func (s *Service) reverify(ctx context.Context, cred models.Credential) (bool, error) {
	ok, err := s.backend.Verify(ctx, cred.Proof, cred.Proof.Signals, cred.Commitment)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementVerifications("error")
		}
		s.logger.ErrorContext(ctx, "proof verification did not complete",
			"request_id", requestcontext.RequestID(ctx),
			"credential_id", cred.ID.String(),
			"error", err,
		)
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "proof verification failed")
	}
	if s.metrics != nil {
		s.metrics.IncrementVerifications(validOutcome(ok))
	}
	if !ok {
		s.logger.WarnContext(ctx, "stored proof failed re-verification",
			"request_id", requestcontext.RequestID(ctx),
			"credential_id", cred.ID.String(),
		)
	}
	return ok, nil
}

func (s *Service) observeProof(outcome string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveProof(outcome, elapsed.Seconds())
	}
}

func (s *Service) emitAudit(ctx context.Context, action audit.AuditEvent, credentialID, outcome, reason string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Timestamp:    requesttime.Now(ctx),
		Action:       string(action),
		CredentialID: credentialID,
		Outcome:      outcome,
		Reason:       reason,
		RequestID:    requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", action,
			"credential_id", credentialID,
			"error", err,
		)
	}
}

func eligibleOutcome(eligible bool) string {
	if eligible {
		return outcomeEligible
	}
	return outcomeIneligible
}

func validOutcome(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}
