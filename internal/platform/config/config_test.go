package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(env map[string]string) func(string) string {
	return func(key string) string { return env[key] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg := fromLookup(lookup(nil))

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 24*time.Hour, cfg.CredentialTTL)
	assert.Equal(t, time.Hour, cfg.ExpiredRetention)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 30*time.Second, cfg.ProofTimeout)
	assert.Equal(t, 30, cfg.ProofRatePerMinute)
	assert.Equal(t, 5, cfg.ProofRateBurst)
	assert.Empty(t, cfg.RestrictedJurisdictions)
	assert.Equal(t, devReceiptKey, cfg.ReceiptSigningKey)
	assert.Equal(t, 5*time.Minute, cfg.ReceiptTTL)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5, cfg.ProofBreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.ProofBreakerCooldown)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "zkgate.audit", cfg.AuditTopicPrefix)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.OTLPEndpoint)
	assert.InDelta(t, 1.0, cfg.TraceSampleRatio, 1e-9)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg := fromLookup(lookup(map[string]string{
		"ZKGATE_ADDR":              ":9090",
		"ZKGATE_ENV":               "prod",
		"LOG_LEVEL":                "debug",
		"CLEANUP_INTERVAL":         "1m",
		"PROOF_TIMEOUT":            "5s",
		"PROOF_RATE_PER_MINUTE":    "0",
		"RESTRICTED_JURISDICTIONS": "kp, ir ,,kp",
		"PROOF_BREAKER_THRESHOLD":  "3",
		"PROOF_BREAKER_COOLDOWN":   "2m",
		"KAFKA_BROKERS":            "kafka-1:9092,kafka-2:9092",
		"AUDIT_TOPIC_PREFIX":       "prod.audit",
		"REDIS_URL":                " redis://cache:6379/0 ",
		"RECEIPT_SIGNING_KEY":      "prod-key",
		"TRACE_SAMPLE_RATIO":       "0.25",
	}))

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 5*time.Second, cfg.ProofTimeout)
	assert.Equal(t, 0, cfg.ProofRatePerMinute)
	assert.Equal(t, []string{"kp", "ir"}, cfg.RestrictedJurisdictions)
	assert.Equal(t, 3, cfg.ProofBreakerThreshold)
	assert.Equal(t, 2*time.Minute, cfg.ProofBreakerCooldown)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "prod.audit", cfg.AuditTopicPrefix)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.InDelta(t, 0.25, cfg.TraceSampleRatio, 1e-9)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	cfg := fromLookup(lookup(map[string]string{
		"CREDENTIAL_TTL":     "forever",
		"PROOF_TIMEOUT":      "-5s",
		"PROOF_RATE_BURST":   "many",
		"TRACE_SAMPLE_RATIO": "2",
	}))

	assert.Equal(t, 24*time.Hour, cfg.CredentialTTL)
	assert.Equal(t, 30*time.Second, cfg.ProofTimeout)
	assert.Equal(t, 5, cfg.ProofRateBurst)
	assert.InDelta(t, 1.0, cfg.TraceSampleRatio, 1e-9)
}

func TestFromEnv_OTLPEndpoint(t *testing.T) {
	tests := []struct {
		raw      string
		endpoint string
		insecure bool
	}{
		{"", "", false},
		{"collector:4318", "collector:4318", false},
		{"http://collector:4318/", "collector:4318", true},
		{" https://otel.example.com ", "otel.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			cfg := fromLookup(lookup(map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": tt.raw}))
			assert.Equal(t, tt.endpoint, cfg.OTLPEndpoint)
			assert.Equal(t, tt.insecure, cfg.OTLPInsecure)
		})
	}
}

func TestValidate_RejectsDevKeyInProd(t *testing.T) {
	cfg := fromLookup(lookup(map[string]string{"ZKGATE_ENV": "prod"}))
	assert.Error(t, cfg.Validate())
}

func TestValidate_KeyPathsComeInPairs(t *testing.T) {
	cfg := fromLookup(lookup(map[string]string{"PROOF_PROVING_KEY": "/keys/age.pk"}))
	assert.Error(t, cfg.Validate())

	cfg = fromLookup(lookup(map[string]string{
		"PROOF_PROVING_KEY":   "/keys/age.pk",
		"PROOF_VERIFYING_KEY": " /keys/age.vk ",
	}))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/keys/age.vk", cfg.VerifyingKeyPath)
}

func TestValidate_BreakerThresholdMustBePositive(t *testing.T) {
	cfg := fromLookup(lookup(map[string]string{"PROOF_BREAKER_THRESHOLD": "0"}))
	assert.EqualError(t, cfg.Validate(), "PROOF_BREAKER_THRESHOLD must be at least 1")
}
