package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zkgate/internal/commitment"
	"zkgate/internal/credential/models"
	"zkgate/internal/eligibility"
	"zkgate/internal/gateway/service"
	"zkgate/pkg/platform/httputil"
	"zkgate/pkg/requestcontext"
)

// Service defines the gateway operations used by the handler.
type Service interface {
	Commit(ctx context.Context, attrs commitment.Attributes) (commitment.Commitment, error)
	IssueCredential(ctx context.Context, attrs commitment.Attributes, commitmentText string) (*service.IssueResult, error)
	VerifyCredential(ctx context.Context, id models.CredentialID) (*service.VerifyResult, error)
	CheckEligibility(ctx context.Context, req service.EligibilityRequest) (*service.EligibilityResult, error)
	Policies() eligibility.PolicyTable
}

// Handler wires gateway endpoints to the service.
type Handler struct {
	service      Service
	logger       *slog.Logger
	proofLimiter []func(http.Handler) http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithProofMiddleware wraps POST /proof, typically with a rate limiter.
func WithProofMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.proofLimiter = append(h.proofLimiter, mw...)
	}
}

// New constructs a gateway handler with its dependencies.
func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts gateway endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/commitment", h.HandleCommitment)
	r.With(h.proofLimiter...).Post("/proof", h.HandleProof)
	r.Post("/proof/verify", h.HandleVerify)
	r.Post("/eligibility", h.HandleEligibility)
	r.Get("/jurisdictions", h.HandleJurisdictions)
}

// HandleCommitment handles POST /commitment requests.
func (h *Handler) HandleCommitment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CommitmentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.service.Commit(ctx, req.Attributes())
	if err != nil {
		h.logger.WarnContext(ctx, "failed to compute commitment",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, CommitmentResponse{Commitment: c.String()})
}

// HandleProof handles POST /proof requests.
func (h *Handler) HandleProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ProofRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.IssueCredential(ctx, req.Attributes(), req.Commitment)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue credential",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toProofResponse(result))
}

// HandleVerify handles POST /proof/verify requests. Expired credentials are
// answered with 410 and the regular body.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.VerifyCredential(ctx, req.ParsedCredentialID())
	if err != nil {
		h.logger.WarnContext(ctx, "failed to verify credential",
			"request_id", requestID,
			"credential_id", req.CredentialID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if result.Expired {
		status = http.StatusGone
	}
	httputil.WriteJSON(w, status, toVerifyResponse(result))
}

// HandleEligibility handles POST /eligibility requests. Policy denials are
// 200 verdicts; an expired credential is a 410 with the verdict body.
func (h *Handler) HandleEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[EligibilityRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.CheckEligibility(ctx, service.EligibilityRequest{
		CredentialID: req.ParsedCredentialID(),
		Amount:       req.Amount,
		Jurisdiction: req.Jurisdiction,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to evaluate eligibility",
			"request_id", requestID,
			"credential_id", req.CredentialID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if result.Expired() {
		status = http.StatusGone
	}
	httputil.WriteJSON(w, status, toEligibilityResponse(result))
}

// HandleJurisdictions handles GET /jurisdictions requests.
func (h *Handler) HandleJurisdictions(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, toJurisdictionsResponse(h.service.Policies()))
}

var _ Service = (*service.Service)(nil)
