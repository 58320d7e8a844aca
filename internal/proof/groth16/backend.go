// Package groth16 implements proof.Backend with gnark's Groth16 prover over
// the BN254 curve.
package groth16

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	gnarklogger "github.com/consensys/gnark/logger"

	"zkgate/internal/commitment"
	"zkgate/internal/proof"
	"zkgate/pkg/domain"
)

// Scheme identifies proofs produced by this backend.
const Scheme = "groth16-bn254"

// Backend holds the compiled circuit and its key pair. It is safe for
// concurrent use; keys are read-only after construction.
type Backend struct {
	ccs    constraint.ConstraintSystem
	pk     groth16.ProvingKey
	vk     groth16.VerifyingKey
	logger *slog.Logger

	pkSource io.Reader
	vkSource io.Reader
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for setup and failure diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithKeys loads a previously exported key pair instead of running setup.
func WithKeys(pk, vk io.Reader) Option {
	return func(b *Backend) {
		b.pkSource = pk
		b.vkSource = vk
	}
}

// New compiles the age circuit and prepares proving and verifying keys.
func New(opts ...Option) (*Backend, error) {
	b := &Backend{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	gnarklogger.Disable()

	start := time.Now()
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &AgeCircuit{})
	if err != nil {
		return nil, fmt.Errorf("compile age circuit: %w", err)
	}
	b.ccs = ccs

	if b.pkSource != nil && b.vkSource != nil {
		if err := b.loadKeys(); err != nil {
			return nil, err
		}
	} else {
		pk, vk, err := groth16.Setup(ccs)
		if err != nil {
			return nil, fmt.Errorf("groth16 setup: %w", err)
		}
		b.pk, b.vk = pk, vk
	}
	b.pkSource, b.vkSource = nil, nil

	b.logger.Info("proof backend ready",
		"scheme", Scheme,
		"constraints", ccs.GetNbConstraints(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return b, nil
}

func (b *Backend) loadKeys() error {
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(b.pkSource); err != nil {
		return fmt.Errorf("read proving key: %w", err)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(b.vkSource); err != nil {
		return fmt.Errorf("read verifying key: %w", err)
	}
	b.pk, b.vk = pk, vk
	return nil
}

// WriteKeys exports the key pair so another process can verify proofs
// produced here.
func (b *Backend) WriteKeys(pk, vk io.Writer) error {
	if _, err := b.pk.WriteTo(pk); err != nil {
		return fmt.Errorf("write proving key: %w", err)
	}
	if _, err := b.vk.WriteTo(vk); err != nil {
		return fmt.Errorf("write verifying key: %w", err)
	}
	return nil
}

// Prove generates a proof that attrs, bound by c, satisfy the age predicate
// at ref. The predicate result travels as a public signal.
func (b *Backend) Prove(ctx context.Context, attrs commitment.Attributes, c commitment.Commitment, ref domain.Date, threshold int) (proof.Proof, error) {
	if err := ctx.Err(); err != nil {
		return proof.Proof{}, proof.Failed("proof generation cancelled", err)
	}
	if err := proof.CheckInputs(attrs, c, ref, threshold); err != nil {
		return proof.Proof{}, err
	}

	eligible := proof.EvaluatePredicate(attrs.BirthDate(), ref, threshold)
	assignment := fullAssignment(attrs, c, ref, threshold, eligible)
	p, err := b.solve(ctx, &assignment)
	if err != nil {
		return proof.Proof{}, err
	}
	if err := ctx.Err(); err != nil {
		return proof.Proof{}, proof.Failed("proof generation cancelled", err)
	}

	var buf bytes.Buffer
	if _, err := p.WriteTo(&buf); err != nil {
		return proof.Proof{}, proof.Failed("serialize proof", err)
	}
	data := buf.Bytes()

	return proof.Proof{
		Scheme: Scheme,
		Data:   data,
		Signals: proof.PublicSignals{
			PredicateResult: eligible,
			Fingerprint:     proof.FingerprintOf(data),
			ReferenceDate:   ref,
			Threshold:       threshold,
		},
	}, nil
}

// solve runs the prover on a full assignment. Solver errors quote witness
// values, so they are never logged or returned.
func (b *Backend) solve(ctx context.Context, assignment *AgeCircuit) (groth16.Proof, error) {
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		b.logger.WarnContext(ctx, "groth16 witness rejected")
		return nil, proof.Failed("build witness", nil)
	}
	p, err := groth16.Prove(b.ccs, b.pk, w)
	if err != nil {
		b.logger.WarnContext(ctx, "groth16 prove failed", "constraints", b.ccs.GetNbConstraints())
		return nil, proof.Failed("constraint system not satisfied", nil)
	}
	return p, nil
}

// Verify checks p against the public signals and commitment. Any mismatch,
// including malformed proof bytes, yields false with a nil error.
func (b *Backend) Verify(ctx context.Context, p proof.Proof, signals proof.PublicSignals, c commitment.Commitment) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p.Scheme != Scheme || p.IsZero() {
		return false, nil
	}
	if proof.FingerprintOf(p.Data) != signals.Fingerprint {
		return false, nil
	}

	gp, ok := decodeProof(p.Data)
	if !ok {
		return false, nil
	}

	assignment := publicAssignment(c, signals.ReferenceDate, signals.Threshold, signals.PredicateResult)
	pw, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, nil
	}
	if err := groth16.Verify(gp, b.vk, pw); err != nil {
		b.logger.DebugContext(ctx, "groth16 verify rejected proof", "fingerprint", signals.Fingerprint.String())
		return false, nil
	}
	return true, nil
}

// decodeProof parses gnark's binary proof encoding, rejecting trailing bytes
// and recovering from decoder panics on hostile input.
func decodeProof(data []byte) (p groth16.Proof, ok bool) {
	defer func() {
		if recover() != nil {
			p, ok = nil, false
		}
	}()
	p = groth16.NewProof(ecc.BN254)
	n, err := p.ReadFrom(bytes.NewReader(data))
	if err != nil || n != int64(len(data)) {
		return nil, false
	}
	return p, true
}
