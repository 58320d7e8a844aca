// Package store keeps issued credentials in memory for their validity window.
//
// Records are immutable once stored. Concurrent issuance of the same proof is
// resolved atomically: exactly one record wins and every caller receives it.
package store

import (
	"context"
	"time"

	"zkgate/internal/commitment"
	"zkgate/internal/credential/models"
	"zkgate/internal/proof"
	dErrors "zkgate/pkg/domain-errors"
	"zkgate/pkg/platform/sync"
)

const defaultExpiredRetention = time.Hour

var (
	// ErrNotFound is returned for ids that were never issued or have been evicted.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "credential not found")
	// ErrExpired is returned together with the record once its window has closed.
	ErrExpired = dErrors.New(dErrors.CodeExpired, "credential expired")
)

// Metrics receives store events. Implementations must be safe for concurrent use.
type Metrics interface {
	IncCredentialsIssued()
	IncLookup(outcome string)
	AddEvicted(n int)
	SetEntries(n int)
}

// Lookup outcomes reported to Metrics.
const (
	LookupFound    = "found"
	LookupExpired  = "expired"
	LookupNotFound = "not_found"
)

// Store is a sharded in-memory credential store.
type Store struct {
	credentials      *sync.ShardedMap[models.Credential]
	validity         time.Duration
	expiredRetention time.Duration
	now              func() time.Time
	metrics          Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithValidity sets the credential lifetime. Non-positive values are ignored.
func WithValidity(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.validity = d
		}
	}
}

// WithExpiredRetention sets how long expired records are kept so lookups
// report expiry instead of absence. Negative values are ignored.
func WithExpiredRetention(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.expiredRetention = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New creates an empty Store with a 24 hour validity window.
func New(opts ...Option) *Store {
	s := &Store{
		credentials:      sync.NewShardedMap[models.Credential](),
		validity:         models.DefaultValidity,
		expiredRetention: defaultExpiredRetention,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue stores a credential for p and c. Issuing a proof that is already
// stored returns the existing record unchanged; its window is never extended.
func (s *Store) Issue(ctx context.Context, p proof.Proof, c commitment.Commitment) (models.Credential, error) {
	if err := ctx.Err(); err != nil {
		return models.Credential{}, err
	}
	if p.IsZero() {
		return models.Credential{}, dErrors.New(dErrors.CodeInvariantViolation, "cannot issue credential for empty proof")
	}

	record := models.NewCredential(p, c, s.now(), s.validity)
	actual, loaded := s.credentials.LoadOrStore(record.ID.String(), record)
	if !loaded && s.metrics != nil {
		s.metrics.IncCredentialsIssued()
		s.metrics.SetEntries(s.credentials.Len())
	}
	return actual, nil
}

// Lookup returns the credential for id. Expired records are returned
// alongside ErrExpired.
func (s *Store) Lookup(ctx context.Context, id models.CredentialID) (models.Credential, error) {
	if err := ctx.Err(); err != nil {
		return models.Credential{}, err
	}
	record, ok := s.credentials.Load(id.String())
	if !ok {
		s.observeLookup(LookupNotFound)
		return models.Credential{}, ErrNotFound
	}
	if record.IsExpiredAt(s.now()) {
		s.observeLookup(LookupExpired)
		return record, ErrExpired
	}
	s.observeLookup(LookupFound)
	return record, nil
}

// DeleteExpired evicts records that expired more than the retention period
// before now and returns how many were removed.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := now.Add(-s.expiredRetention)
	removed := s.credentials.DeleteFunc(func(_ string, c models.Credential) bool {
		return c.IsExpiredAt(cutoff)
	})
	if s.metrics != nil {
		s.metrics.AddEvicted(removed)
		s.metrics.SetEntries(s.credentials.Len())
	}
	return removed, nil
}

// Len returns the number of stored records, expired ones included.
func (s *Store) Len() int {
	return s.credentials.Len()
}

func (s *Store) observeLookup(outcome string) {
	if s.metrics != nil {
		s.metrics.IncLookup(outcome)
	}
}
