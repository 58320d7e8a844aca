package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"zkgate/internal/commitment"
	"zkgate/internal/credential/models"
	"zkgate/internal/credential/store"
	"zkgate/internal/eligibility"
	"zkgate/internal/gateway/service/mocks"
	"zkgate/internal/proof"
	proofmocks "zkgate/internal/proof/mocks"
	"zkgate/internal/receipt"
	"zkgate/pkg/domain"
	dErrors "zkgate/pkg/domain-errors"
	"zkgate/pkg/platform/audit"
	"zkgate/pkg/platform/middleware/requesttime"
)

var requestTime = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	backend  *proofmocks.MockBackend
	store    *mocks.MockCredentialStore
	auditor  *mocks.MockAuditPublisher
	receipts *mocks.MockReceiptIssuer
	service  *Service
	events   []audit.Event
	ctx      context.Context
	attrs    commitment.Attributes
	commit   commitment.Commitment
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.backend = proofmocks.NewMockBackend(s.ctrl)
	s.store = mocks.NewMockCredentialStore(s.ctrl)
	s.auditor = mocks.NewMockAuditPublisher(s.ctrl)
	s.receipts = mocks.NewMockReceiptIssuer(s.ctrl)
	s.events = nil
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, e audit.Event) { s.events = append(s.events, e) }).
		Return(nil).AnyTimes()

	s.service = New(s.backend, s.store, eligibility.NewEngine(eligibility.DefaultPolicyTable()),
		WithAuditor(s.auditor),
		WithReceipts(s.receipts),
	)
	s.ctx = requesttime.WithTime(context.Background(), requestTime)
	s.attrs = commitment.Attributes{BirthYear: 1990, BirthMonth: 5, BirthDay: 15, IdentitySecret: "holder-secret"}
	c, err := commitment.Commit(s.attrs)
	s.Require().NoError(err)
	s.commit = c
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) proof(eligible bool) proof.Proof {
	return proof.Proof{
		Scheme: "test",
		Data:   []byte("proof-bytes"),
		Signals: proof.PublicSignals{
			PredicateResult: eligible,
			Fingerprint:     proof.FingerprintOf([]byte("proof-bytes")),
			ReferenceDate:   domain.DateOf(requestTime),
			Threshold:       proof.AgeThreshold,
		},
	}
}

func (s *ServiceSuite) credential(eligible bool) models.Credential {
	return models.NewCredential(s.proof(eligible), s.commit, requestTime.Add(-time.Hour), models.DefaultValidity)
}

func (s *ServiceSuite) lastAction() string {
	s.Require().NotEmpty(s.events)
	return s.events[len(s.events)-1].Action
}

func (s *ServiceSuite) TestCommit() {
	s.Run("returns the commitment of valid attributes", func() {
		c, err := s.service.Commit(s.ctx, s.attrs)
		s.Require().NoError(err)
		s.True(c.Equal(s.commit))
		s.Equal(string(audit.EventCommitmentCreated), s.lastAction())
	})

	s.Run("rejects invalid attributes", func() {
		attrs := s.attrs
		attrs.BirthMonth = 13
		_, err := s.service.Commit(s.ctx, attrs)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidAttributes))
	})
}

func (s *ServiceSuite) TestIssueCredential() {
	s.Run("rejects invalid attributes before proving", func() {
		attrs := s.attrs
		attrs.IdentitySecret = ""
		_, err := s.service.IssueCredential(s.ctx, attrs, s.commit.String())
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidAttributes))
	})

	s.Run("rejects a malformed commitment before proving", func() {
		_, err := s.service.IssueCredential(s.ctx, s.attrs, "0xnothex")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("proves against the request date and stores the credential", func() {
		p := s.proof(true)
		cred := s.credential(true)
		s.backend.EXPECT().
			Prove(gomock.Any(), s.attrs, s.commit, domain.Date{Year: 2024, Month: 5, Day: 15}, proof.AgeThreshold).
			Return(p, nil)
		s.store.EXPECT().Issue(gomock.Any(), p, s.commit).Return(cred, nil)

		result, err := s.service.IssueCredential(s.ctx, s.attrs, s.commit.String())
		s.Require().NoError(err)
		s.Equal(cred.ID, result.Credential.ID)
		s.True(result.Eligible())
		s.Equal(string(audit.EventCredentialIssued), s.lastAction())
		s.Equal(cred.ID.String(), s.events[len(s.events)-1].CredentialID)
	})

	s.Run("issues a credential for an ineligible holder", func() {
		p := s.proof(false)
		s.backend.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(p, nil)
		s.store.EXPECT().Issue(gomock.Any(), p, s.commit).Return(s.credential(false), nil)

		result, err := s.service.IssueCredential(s.ctx, s.attrs, s.commit.String())
		s.Require().NoError(err)
		s.False(result.Eligible())
	})

	s.Run("surfaces backend failures without storing", func() {
		s.backend.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(proof.Proof{}, proof.Failed("commitment does not match attributes", nil))

		_, err := s.service.IssueCredential(s.ctx, s.attrs, s.commit.String())
		s.True(dErrors.HasCode(err, dErrors.CodeProofFailed))
		s.Equal(string(audit.EventProofFailed), s.lastAction())
	})

	s.Run("classifies unknown backend errors as proof failures", func() {
		s.backend.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(proof.Proof{}, errors.New("boom"))

		_, err := s.service.IssueCredential(s.ctx, s.attrs, s.commit.String())
		s.True(dErrors.HasCode(err, dErrors.CodeProofFailed))
	})

	s.Run("wraps store failures as internal", func() {
		s.backend.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(s.proof(true), nil)
		s.store.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).Return(models.Credential{}, errors.New("disk on fire"))

		_, err := s.service.IssueCredential(s.ctx, s.attrs, s.commit.String())
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestVerifyCredential() {
	cred := s.credential(true)

	s.Run("unknown id", func() {
		s.store.EXPECT().Lookup(gomock.Any(), cred.ID).Return(models.Credential{}, store.ErrNotFound)
		_, err := s.service.VerifyCredential(s.ctx, cred.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("expired credential is reported without re-verifying", func() {
		s.store.EXPECT().Lookup(gomock.Any(), cred.ID).Return(cred, store.ErrExpired)
		result, err := s.service.VerifyCredential(s.ctx, cred.ID)
		s.Require().NoError(err)
		s.True(result.Expired)
		s.False(result.Valid)
		s.False(result.Eligible)
		s.Equal(cred.ExpiresAt, result.Credential.ExpiresAt)
	})

	s.Run("valid proof", func() {
		s.store.EXPECT().Lookup(gomock.Any(), cred.ID).Return(cred, nil)
		s.backend.EXPECT().Verify(gomock.Any(), cred.Proof, cred.Proof.Signals, cred.Commitment).Return(true, nil)
		result, err := s.service.VerifyCredential(s.ctx, cred.ID)
		s.Require().NoError(err)
		s.True(result.Valid)
		s.True(result.Eligible)
		s.False(result.Expired)
		s.Equal("valid", s.events[len(s.events)-1].Outcome)
	})

	s.Run("stored boolean is not trusted when verification fails", func() {
		s.store.EXPECT().Lookup(gomock.Any(), cred.ID).Return(cred, nil)
		s.backend.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
		result, err := s.service.VerifyCredential(s.ctx, cred.ID)
		s.Require().NoError(err)
		s.False(result.Valid)
		s.False(result.Eligible)
	})

	s.Run("verification that cannot complete is an error", func() {
		s.store.EXPECT().Lookup(gomock.Any(), cred.ID).Return(cred, nil)
		s.backend.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(false, dErrors.New(dErrors.CodeTimeout, "proof verification timed out"))
		_, err := s.service.VerifyCredential(s.ctx, cred.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

func (s *ServiceSuite) TestCheckEligibility() {
	cred := s.credential(true)

	s.Run("approves and signs a receipt", func() {
		s.store.EXPECT().Lookup(gomock.Any(), cred.ID).Return(cred, nil)
		s.backend.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		s.receipts.EXPECT().Issue(gomock.Any(), receipt.Approval{
			CredentialID: cred.ID.String(),
			Jurisdiction: "US",
			Amount:       500,
			MaxAmount:    10000,
			Reason:       string(eligibility.ReasonApproved),
		}).Return("signed.receipt.token", nil)

		result, err := s.service.CheckEligibility(s.ctx, EligibilityRequest{CredentialID: cred.ID, Amount: 500, Jurisdiction: " us "})
		s.Require().NoError(err)
		s.True(result.Verdict.CanAct)
		s.True(result.Verdict.Eligible)
		s.Equal(eligibility.ReasonApproved, result.Verdict.Reason)
		s.Equal("signed.receipt.token", result.Receipt)
		s.Equal(string(audit.EventEligibilityEvaluated), s.lastAction())
	})

	s.Run("denials carry no receipt", func() {
		s.store.EXPECT().Lookup(gomock.Any(), cred.ID).Return(cred, nil)
		s.backend.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)

		result, err := s.service.CheckEligibility(s.ctx, EligibilityRequest{CredentialID: cred.ID, Amount: 15000, Jurisdiction: "US"})
		s.Require().NoError(err)
		s.False(result.Verdict.CanAct)
		s.Equal(eligibility.ReasonAmountExceedsLimit, result.Verdict.Reason)
		s.Empty(result.Receipt)
	})

	s.Run("expired credential yields proof_expired without re-verifying", func() {
		s.store.EXPECT().Lookup(gomock.Any(), cred.ID).Return(cred, store.ErrExpired)
		ctx := requesttime.WithTime(context.Background(), cred.ExpiresAt.Add(time.Second))

		result, err := s.service.CheckEligibility(ctx, EligibilityRequest{CredentialID: cred.ID, Amount: 500, Jurisdiction: "US"})
		s.Require().NoError(err)
		s.True(result.Expired())
		s.False(result.Verdict.Eligible)
		s.Equal(eligibility.ReasonProofExpired, result.Verdict.Reason)
	})

	s.Run("store expiry wins over an earlier request time", func() {
		s.store.EXPECT().Lookup(gomock.Any(), cred.ID).Return(cred, store.ErrExpired)

		result, err := s.service.CheckEligibility(s.ctx, EligibilityRequest{CredentialID: cred.ID, Amount: 500, Jurisdiction: "US"})
		s.Require().NoError(err)
		s.Equal(eligibility.ReasonProofExpired, result.Verdict.Reason)
	})

	s.Run("failed re-verification yields proof_invalid", func() {
		s.store.EXPECT().Lookup(gomock.Any(), cred.ID).Return(cred, nil)
		s.backend.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)

		result, err := s.service.CheckEligibility(s.ctx, EligibilityRequest{CredentialID: cred.ID, Amount: 500, Jurisdiction: "US"})
		s.Require().NoError(err)
		s.False(result.Verdict.Eligible)
		s.Equal(eligibility.ReasonProofInvalid, result.Verdict.Reason)
	})

	s.Run("unknown id", func() {
		s.store.EXPECT().Lookup(gomock.Any(), cred.ID).Return(models.Credential{}, store.ErrNotFound)
		_, err := s.service.CheckEligibility(s.ctx, EligibilityRequest{CredentialID: cred.ID, Amount: 500, Jurisdiction: "US"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("receipt signing failure fails the request", func() {
		s.store.EXPECT().Lookup(gomock.Any(), cred.ID).Return(cred, nil)
		s.backend.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		s.receipts.EXPECT().Issue(gomock.Any(), gomock.Any()).Return("", errors.New("no key"))

		_, err := s.service.CheckEligibility(s.ctx, EligibilityRequest{CredentialID: cred.ID, Amount: 500, Jurisdiction: "UK"})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestAuditFailureDoesNotFailRequest() {
	ctrl := gomock.NewController(s.T())
	auditor := mocks.NewMockAuditPublisher(ctrl)
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(dErrors.New(dErrors.CodeInternal, "audit buffer full"))
	svc := New(s.backend, s.store, eligibility.NewEngine(eligibility.DefaultPolicyTable()), WithAuditor(auditor))

	_, err := svc.Commit(s.ctx, s.attrs)
	s.NoError(err)
}

// Issuance through the real store is idempotent for an identical proof.
func (s *ServiceSuite) TestIdempotentIssuanceWithStore() {
	credentials := store.New(store.WithClock(func() time.Time { return requestTime }))
	svc := New(s.backend, credentials, eligibility.NewEngine(eligibility.DefaultPolicyTable()))
	p := s.proof(true)
	s.backend.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(p, nil).Times(2)

	first, err := svc.IssueCredential(s.ctx, s.attrs, s.commit.String())
	s.Require().NoError(err)
	second, err := svc.IssueCredential(s.ctx, s.attrs, s.commit.String())
	s.Require().NoError(err)

	s.Equal(first.Credential.ID, second.Credential.ID)
	s.Equal(first.Credential.IssuedAt, second.Credential.IssuedAt)
	s.Equal(1, credentials.Len())
}

func (s *ServiceSuite) TestNewPanicsOnMissingDependencies() {
	engine := eligibility.NewEngine(eligibility.DefaultPolicyTable())
	s.Panics(func() { New(nil, s.store, engine) })
	s.Panics(func() { New(s.backend, nil, engine) })
	s.Panics(func() { New(s.backend, s.store, nil) })
}
