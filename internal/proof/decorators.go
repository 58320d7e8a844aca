package proof

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zkgate/internal/commitment"
	"zkgate/pkg/domain"
	dErrors "zkgate/pkg/domain-errors"
	"zkgate/pkg/platform/circuit"
	"zkgate/pkg/platform/tracer"
)

type timeoutBackend struct {
	next    Backend
	timeout time.Duration
}

// WithTimeout bounds every call to next. A call that outlives the deadline
// returns CodeProofFailed (Prove) or CodeTimeout (Verify); the abandoned
// computation finishes in the background and its result is discarded.
// A non-positive timeout returns next unchanged.
func WithTimeout(next Backend, timeout time.Duration) Backend {
	if timeout <= 0 {
		return next
	}
	return &timeoutBackend{next: next, timeout: timeout}
}

type proveResult struct {
	proof Proof
	err   error
}

func (b *timeoutBackend) Prove(ctx context.Context, attrs commitment.Attributes, c commitment.Commitment, ref domain.Date, threshold int) (Proof, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan proveResult, 1)
	go func() {
		p, err := b.next.Prove(ctx, attrs, c, ref, threshold)
		done <- proveResult{proof: p, err: err}
	}()

	select {
	case r := <-done:
		return r.proof, r.err
	case <-ctx.Done():
		return Proof{}, Failed("proof generation timed out", ctx.Err())
	}
}

type verifyResult struct {
	ok  bool
	err error
}

func (b *timeoutBackend) Verify(ctx context.Context, p Proof, signals PublicSignals, c commitment.Commitment) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan verifyResult, 1)
	go func() {
		ok, err := b.next.Verify(ctx, p, signals, c)
		done <- verifyResult{ok: ok, err: err}
	}()

	select {
	case r := <-done:
		return r.ok, r.err
	case <-ctx.Done():
		return false, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "proof verification timed out")
	}
}

type breakerBackend struct {
	next    Backend
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// WithBreaker rejects Prove calls while b is open. Only deadline overruns and
// errors from outside the proof layer count as failures; a rejected input
// still counts as a healthy backend. Verify is never gated.
func WithBreaker(next Backend, b *circuit.Breaker, logger *slog.Logger) Backend {
	if b == nil {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &breakerBackend{next: next, breaker: b, logger: logger}
}

func (b *breakerBackend) Prove(ctx context.Context, attrs commitment.Attributes, c commitment.Commitment, ref domain.Date, threshold int) (Proof, error) {
	if !b.breaker.Allow() {
		return Proof{}, Failed("proof backend unavailable, retry later", nil)
	}

	p, err := b.next.Prove(ctx, attrs, c, ref, threshold)
	if isBackendFault(err) {
		if change := b.breaker.RecordFailure(); change.Opened {
			b.logger.WarnContext(ctx, "circuit opened", "circuit", b.breaker.Name(), "error", err)
		}
		return p, err
	}
	if change := b.breaker.RecordSuccess(); change.Closed {
		b.logger.InfoContext(ctx, "circuit closed", "circuit", b.breaker.Name())
	}
	return p, err
}

func (b *breakerBackend) Verify(ctx context.Context, p Proof, signals PublicSignals, c commitment.Commitment) (bool, error) {
	return b.next.Verify(ctx, p, signals, c)
}

func isBackendFault(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || dErrors.CodeOf(err) == dErrors.CodeInternal
}

type tracedBackend struct {
	next   Backend
	tracer tracer.Tracer
}

// Traced wraps next with spans carrying only public values.
func Traced(next Backend, t tracer.Tracer) Backend {
	if t == nil {
		return next
	}
	return &tracedBackend{next: next, tracer: t}
}

func (b *tracedBackend) Prove(ctx context.Context, attrs commitment.Attributes, c commitment.Commitment, ref domain.Date, threshold int) (p Proof, err error) {
	ctx, span := b.tracer.Start(ctx, tracer.SpanProofProve,
		tracer.String(tracer.AttrReferenceDate, ref.String()),
		tracer.Int64(tracer.AttrThreshold, int64(threshold)),
	)
	defer func() { span.End(err) }()

	p, err = b.next.Prove(ctx, attrs, c, ref, threshold)
	if err == nil {
		span.SetAttributes(
			tracer.String(tracer.AttrScheme, p.Scheme),
			tracer.Bool(tracer.AttrPredicateResult, p.Signals.PredicateResult),
		)
	}
	return p, err
}

func (b *tracedBackend) Verify(ctx context.Context, p Proof, signals PublicSignals, c commitment.Commitment) (ok bool, err error) {
	ctx, span := b.tracer.Start(ctx, tracer.SpanProofVerify,
		tracer.String(tracer.AttrScheme, p.Scheme),
	)
	defer func() { span.End(err) }()

	ok, err = b.next.Verify(ctx, p, signals, c)
	span.SetAttributes(tracer.Bool(tracer.AttrVerified, ok))
	return ok, err
}
