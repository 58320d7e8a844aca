package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"zkgate/internal/commitment"
	"zkgate/internal/credential/store"
	"zkgate/internal/eligibility"
	"zkgate/internal/gateway/service"
	"zkgate/internal/proof"
	proofmocks "zkgate/internal/proof/mocks"
	"zkgate/internal/receipt"
	"zkgate/pkg/domain"
	dErrors "zkgate/pkg/domain-errors"
	"zkgate/pkg/platform/httputil"
	"zkgate/pkg/platform/middleware/ratelimit"
	"zkgate/pkg/platform/middleware/requesttime"
)

const holderSecret = "correct-horse-battery-staple"

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	backend *proofmocks.MockBackend
	router  *chi.Mux
	now     time.Time
	attrs   commitment.Attributes
	commit  commitment.Commitment
	signer  *receipt.Signer
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.backend = proofmocks.NewMockBackend(s.ctrl)
	s.now = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	signer, err := receipt.NewSigner("test-signing-key", 5*time.Minute, receipt.WithClock(clock))
	s.Require().NoError(err)
	s.signer = signer

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(s.backend,
		store.New(store.WithClock(clock)),
		eligibility.NewEngine(eligibility.DefaultPolicyTable().WithRestricted("KP")),
		service.WithLogger(logger),
		service.WithReceipts(signer),
	)
	s.router = s.newRouter(New(svc, logger))

	s.attrs = commitment.Attributes{BirthYear: 1990, BirthMonth: 5, BirthDay: 15, IdentitySecret: holderSecret}
	c, err := commitment.Commit(s.attrs)
	s.Require().NoError(err)
	s.commit = c
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) newRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(requesttime.WithClock(func() time.Time { return s.now }))
	h.Register(r)
	return r
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) proofBody() map[string]any {
	return map[string]any{
		"birthYear":      s.attrs.BirthYear,
		"birthMonth":     s.attrs.BirthMonth,
		"birthDay":       s.attrs.BirthDay,
		"identitySecret": s.attrs.IdentitySecret,
		"commitment":     s.commit.String(),
	}
}

func (s *HandlerSuite) stubProof(eligible bool) proof.Proof {
	data := []byte("proof-" + s.now.String())
	return proof.Proof{
		Scheme: "test",
		Data:   data,
		Signals: proof.PublicSignals{
			PredicateResult: eligible,
			Fingerprint:     proof.FingerprintOf(data),
			ReferenceDate:   domain.DateOf(s.now),
			Threshold:       proof.AgeThreshold,
		},
	}
}

// issue runs POST /proof against a stubbed backend and returns the credential id.
func (s *HandlerSuite) issue(eligible bool) string {
	s.backend.EXPECT().
		Prove(gomock.Any(), s.attrs, s.commit, domain.DateOf(s.now), proof.AgeThreshold).
		Return(s.stubProof(eligible), nil)
	w := s.do(http.MethodPost, "/proof", s.proofBody())
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp ProofResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.CredentialID
}

func (s *HandlerSuite) decodeError(w *httptest.ResponseRecorder) httputil.ErrorResponse {
	var resp httputil.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (s *HandlerSuite) TestCommitment() {
	s.Run("returns the commitment", func() {
		body := s.proofBody()
		delete(body, "commitment")
		w := s.do(http.MethodPost, "/commitment", body)
		s.Require().Equal(http.StatusOK, w.Code)

		var resp CommitmentResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(s.commit.String(), resp.Commitment)
	})

	s.Run("rejects out of range attributes without echoing values", func() {
		body := s.proofBody()
		body["birthMonth"] = 13
		w := s.do(http.MethodPost, "/commitment", body)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("invalid_attributes", s.decodeError(w).Error)
		s.NotContains(w.Body.String(), holderSecret)
		s.NotContains(w.Body.String(), "13")
	})

	s.Run("rejects an oversized secret", func() {
		body := s.proofBody()
		body["identitySecret"] = strings.Repeat("s", 257)
		w := s.do(http.MethodPost, "/commitment", body)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("rejects malformed json", func() {
		req := httptest.NewRequest(http.MethodPost, "/commitment", strings.NewReader("{"))
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("bad_request", s.decodeError(w).Error)
	})
}

func (s *HandlerSuite) TestProof() {
	s.Run("issues a credential", func() {
		s.backend.EXPECT().
			Prove(gomock.Any(), s.attrs, s.commit, domain.Date{Year: 2024, Month: 5, Day: 15}, 18).
			Return(s.stubProof(true), nil)

		w := s.do(http.MethodPost, "/proof", s.proofBody())
		s.Require().Equal(http.StatusOK, w.Code)

		var resp ProofResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.True(strings.HasPrefix(resp.CredentialID, "cred_"))
		s.True(resp.Eligible)
		s.True(s.now.Equal(resp.IssuedAt))
		s.True(s.now.Add(24 * time.Hour).Equal(resp.ExpiresAt))
	})

	s.Run("requires a commitment before proving", func() {
		body := s.proofBody()
		delete(body, "commitment")
		w := s.do(http.MethodPost, "/proof", body)
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal("validation_error", s.decodeError(w).Error)
	})

	s.Run("backend failure is a 500, not a denial", func() {
		s.backend.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(proof.Proof{}, proof.Failed("commitment does not match attributes", nil))

		w := s.do(http.MethodPost, "/proof", s.proofBody())
		s.Equal(http.StatusInternalServerError, w.Code)
		resp := s.decodeError(w)
		s.Equal("proof_generation_failed", resp.Error)
		s.Equal("commitment does not match attributes", resp.ErrorDescription)
	})

	s.Run("proof timeout is a 500", func() {
		s.backend.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(proof.Proof{}, proof.Failed("proof generation timed out", nil))

		w := s.do(http.MethodPost, "/proof", s.proofBody())
		s.Equal(http.StatusInternalServerError, w.Code)
	})
}

func (s *HandlerSuite) TestProofRateLimit() {
	limiter := ratelimit.New(ratelimit.Config{PerMinute: 1, Burst: 1}, ratelimit.WithClock(func() time.Time { return s.now }))
	svc := service.New(s.backend, store.New(), eligibility.NewEngine(eligibility.DefaultPolicyTable()))
	s.router = s.newRouter(New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), WithProofMiddleware(limiter.Middleware)))

	s.backend.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(s.stubProof(true), nil)
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/proof", s.proofBody()).Code)

	w := s.do(http.MethodPost, "/proof", s.proofBody())
	s.Equal(http.StatusTooManyRequests, w.Code)
	s.NotEmpty(w.Header().Get("Retry-After"))

	body := s.proofBody()
	delete(body, "commitment")
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/commitment", body).Code)
}

func (s *HandlerSuite) TestVerify() {
	id := s.issue(true)

	s.Run("valid credential", func() {
		s.backend.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), s.commit).Return(true, nil)
		w := s.do(http.MethodPost, "/proof/verify", map[string]any{"credentialId": id})
		s.Require().Equal(http.StatusOK, w.Code)

		var resp VerifyResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.True(resp.Valid)
		s.True(resp.Eligible)
		s.True(s.now.Add(24 * time.Hour).Equal(resp.ExpiresAt))
	})

	s.Run("tampered proof reports invalid", func() {
		s.backend.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
		w := s.do(http.MethodPost, "/proof/verify", map[string]any{"credentialId": id})
		s.Require().Equal(http.StatusOK, w.Code)

		var resp VerifyResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.False(resp.Valid)
		s.False(resp.Eligible)
	})

	s.Run("unknown credential", func() {
		unknown := "cred_" + strings.Repeat("ab", 32)
		w := s.do(http.MethodPost, "/proof/verify", map[string]any{"credentialId": unknown})
		s.Equal(http.StatusNotFound, w.Code)
		s.Equal("not_found", s.decodeError(w).Error)
	})

	s.Run("malformed credential id", func() {
		w := s.do(http.MethodPost, "/proof/verify", map[string]any{"credentialId": "nope"})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("expired credential is a 410 with the same body", func() {
		s.now = s.now.Add(24*time.Hour + time.Second)
		w := s.do(http.MethodPost, "/proof/verify", map[string]any{"credentialId": id})
		s.Require().Equal(http.StatusGone, w.Code)

		var resp VerifyResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.False(resp.Valid)
		s.False(resp.Eligible)
		s.False(resp.ExpiresAt.IsZero())
	})
}

func (s *HandlerSuite) TestEligibility() {
	id := s.issue(true)

	tests := []struct {
		name         string
		amount       float64
		jurisdiction string
		canAct       bool
		reason       eligibility.Reason
		maxAmount    float64
		echo         string
	}{
		{"approved", 500, "US", true, eligibility.ReasonApproved, 10000, "US"},
		{"over the limit", 15000, "US", false, eligibility.ReasonAmountExceedsLimit, 10000, "US"},
		{"unknown code falls back to default", 500, "xx", true, eligibility.ReasonApproved, 1000, "XX"},
		{"restricted jurisdiction", 10, "KP", false, eligibility.ReasonJurisdictionRestricted, 1000, "KP"},
		{"non-positive amount", 0, "UK", false, eligibility.ReasonInvalidAmount, 50000, "UK"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.backend.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
			w := s.do(http.MethodPost, "/eligibility", map[string]any{
				"credentialId": id,
				"amount":       tt.amount,
				"jurisdiction": tt.jurisdiction,
			})
			s.Require().Equal(http.StatusOK, w.Code)

			var resp EligibilityResponse
			s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
			s.True(resp.Eligible)
			s.Equal(tt.canAct, resp.CanAct)
			s.Equal(string(tt.reason), resp.Reason)
			s.Equal(tt.reason.Message(), resp.Message)
			s.Equal(tt.maxAmount, resp.MaxAmount)
			s.Equal(tt.echo, resp.Jurisdiction)

			if tt.canAct {
				claims, err := s.signer.Validate(resp.Receipt)
				s.Require().NoError(err)
				s.Equal(id, claims.Subject)
				s.Equal(tt.echo, claims.Jurisdiction)
			} else {
				s.Empty(resp.Receipt)
			}
		})
	}

	s.Run("missing jurisdiction resolves to the default policy", func() {
		s.backend.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		w := s.do(http.MethodPost, "/eligibility", map[string]any{"credentialId": id, "amount": 1500, "jurisdiction": "  "})
		s.Require().Equal(http.StatusOK, w.Code)

		var resp EligibilityResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.False(resp.CanAct)
		s.Equal(string(eligibility.ReasonAmountExceedsLimit), resp.Reason)
		s.Equal(float64(1000), resp.MaxAmount)
		s.Equal("DEFAULT", resp.Jurisdiction)
	})

	s.Run("unknown credential", func() {
		w := s.do(http.MethodPost, "/eligibility", map[string]any{
			"credentialId": "cred_" + strings.Repeat("0", 64),
			"amount":       10,
			"jurisdiction": "US",
		})
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("expired credential is a 410 verdict", func() {
		s.now = s.now.Add(25 * time.Hour)
		w := s.do(http.MethodPost, "/eligibility", map[string]any{
			"credentialId": id,
			"amount":       500,
			"jurisdiction": "US",
		})
		s.Require().Equal(http.StatusGone, w.Code)

		var resp EligibilityResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.False(resp.Eligible)
		s.False(resp.CanAct)
		s.Equal(string(eligibility.ReasonProofExpired), resp.Reason)
		s.Equal("US", resp.Jurisdiction)
	})
}

func (s *HandlerSuite) TestIneligibleHolderIsDeniedBeforePolicy() {
	id := s.issue(false)
	s.backend.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)

	w := s.do(http.MethodPost, "/eligibility", map[string]any{"credentialId": id, "amount": 1e9, "jurisdiction": "US"})
	s.Require().Equal(http.StatusOK, w.Code)

	var resp EligibilityResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.False(resp.Eligible)
	s.Equal(string(eligibility.ReasonPredicateNotMet), resp.Reason)
}

func (s *HandlerSuite) TestVerificationTimeout() {
	id := s.issue(true)
	s.backend.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(false, dErrors.New(dErrors.CodeTimeout, "proof verification timed out"))

	w := s.do(http.MethodPost, "/proof/verify", map[string]any{"credentialId": id})
	s.Equal(http.StatusGatewayTimeout, w.Code)
}

func (s *HandlerSuite) TestJurisdictions() {
	w := s.do(http.MethodGet, "/jurisdictions", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var resp JurisdictionsResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("DEFAULT", resp.Default.Code)
	s.Equal(float64(1000), resp.Default.MaxAmount)

	codes := make(map[string]PolicyResponse)
	for _, p := range resp.Jurisdictions {
		codes[p.Code] = p
	}
	s.Equal(float64(10000), codes["US"].MaxAmount)
	s.Equal(21, codes["US"].MinAge)
	s.True(codes["KP"].Restricted)
}
