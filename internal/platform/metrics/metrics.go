package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus metrics. It satisfies the credential
// store's Metrics interface.
type Metrics struct {
	CommitmentsCreated prometheus.Counter
	// Proof generation outcome: eligible, ineligible or failed.
	ProofsGenerated    *prometheus.CounterVec
	ProofDuration      prometheus.Histogram
	ProofVerifications *prometheus.CounterVec
	CredentialsIssued  prometheus.Counter
	CredentialLookups  *prometheus.CounterVec
	CredentialEntries  prometheus.Gauge
	CredentialsEvicted prometheus.Counter
	Verdicts           *prometheus.CounterVec
}

// New registers the metrics with reg, or the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		CommitmentsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "zkgate_commitments_created_total",
			Help: "Total number of commitments computed",
		}),
		ProofsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkgate_proofs_generated_total",
			Help: "Total number of proof generation attempts, labeled by outcome",
		}, []string{"outcome"}),
		ProofDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "zkgate_proof_duration_seconds",
			Help:    "Time spent generating proofs in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		ProofVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkgate_proof_verifications_total",
			Help: "Total number of stored proof re-verifications, labeled by result",
		}, []string{"result"}),
		CredentialsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "zkgate_credentials_issued_total",
			Help: "Total number of new credentials stored",
		}),
		CredentialLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkgate_credential_lookups_total",
			Help: "Total number of credential lookups, labeled by outcome",
		}, []string{"outcome"}),
		CredentialEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "zkgate_credential_store_entries",
			Help: "Current number of credentials held in memory, expired included",
		}),
		CredentialsEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "zkgate_credentials_evicted_total",
			Help: "Total number of expired credentials evicted",
		}),
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zkgate_eligibility_verdicts_total",
			Help: "Total number of eligibility verdicts, labeled by reason",
		}, []string{"reason"}),
	}
}

// IncrementCommitmentsCreated increments the commitments counter by 1
func (m *Metrics) IncrementCommitmentsCreated() {
	m.CommitmentsCreated.Inc()
}

// ObserveProof records a proof attempt and its latency.
func (m *Metrics) ObserveProof(outcome string, durationSeconds float64) {
	m.ProofsGenerated.WithLabelValues(outcome).Inc()
	m.ProofDuration.Observe(durationSeconds)
}

// IncrementVerifications counts a re-verification by result ("valid",
// "invalid" or "error").
func (m *Metrics) IncrementVerifications(result string) {
	m.ProofVerifications.WithLabelValues(result).Inc()
}

// IncrementVerdicts counts an eligibility verdict by reason.
func (m *Metrics) IncrementVerdicts(reason string) {
	m.Verdicts.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncCredentialsIssued() {
	m.CredentialsIssued.Inc()
}

func (m *Metrics) IncLookup(outcome string) {
	m.CredentialLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddEvicted(n int) {
	m.CredentialsEvicted.Add(float64(n))
}

func (m *Metrics) SetEntries(n int) {
	m.CredentialEntries.Set(float64(n))
}
