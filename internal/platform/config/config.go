package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	strutil "zkgate/pkg/platform/strings"
)

const devReceiptKey = "dev-receipt-key-change-in-production"

// Server captures process level configuration.
type Server struct {
	Addr     string
	Env      string
	LogLevel string

	CredentialTTL    time.Duration
	ExpiredRetention time.Duration
	CleanupInterval  time.Duration

	ProofTimeout       time.Duration
	ProofRatePerMinute int
	ProofRateBurst     int
	// ProvingKeyPath and VerifyingKeyPath load exported Groth16 keys. When
	// both are empty the server runs a fresh setup at startup.
	ProvingKeyPath   string
	VerifyingKeyPath string
	// ProofBreakerThreshold consecutive proof timeouts open the circuit for
	// ProofBreakerCooldown.
	ProofBreakerThreshold int
	ProofBreakerCooldown  time.Duration

	RestrictedJurisdictions []string

	ReceiptSigningKey string
	ReceiptTTL        time.Duration

	AuditBuffer int
	// KafkaBrokers enables streaming audit events to Kafka when non-empty.
	KafkaBrokers     []string
	AuditTopicPrefix string
	// RedisURL enables a proof rate limit shared by all replicas.
	RedisURL string

	// OTLPEndpoint is host:port of an OTLP/HTTP collector. Tracing stays
	// in-process only when it is empty.
	OTLPEndpoint     string
	OTLPInsecure     bool
	TraceSampleRatio float64

	ShutdownTimeout time.Duration
}

// Defaults used when a variable is unset or unparseable.
var (
	CredentialTTL    = 24 * time.Hour
	ExpiredRetention = time.Hour
	CleanupInterval  = 5 * time.Minute
	ProofTimeout     = 30 * time.Second
	ProofCooldown    = 30 * time.Second
	ReceiptTTL       = 5 * time.Minute
	ShutdownTimeout  = 10 * time.Second
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return fromLookup(os.Getenv)
}

func fromLookup(getenv func(string) string) Server {
	addr := getenv("ZKGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	env := getenv("ZKGATE_ENV")
	if env == "" {
		env = "dev"
	}
	logLevel := getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	receiptKey := getenv("RECEIPT_SIGNING_KEY")
	if receiptKey == "" {
		// Use a default for development - should be overridden in production
		receiptKey = devReceiptKey
	}

	otlpEndpoint, otlpInsecure := otlpEnv(getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	return Server{
		Addr:                    addr,
		Env:                     env,
		LogLevel:                logLevel,
		CredentialTTL:           durationEnv(getenv, "CREDENTIAL_TTL", CredentialTTL),
		ExpiredRetention:        durationEnv(getenv, "EXPIRED_RETENTION", ExpiredRetention),
		CleanupInterval:         durationEnv(getenv, "CLEANUP_INTERVAL", CleanupInterval),
		ProofTimeout:            durationEnv(getenv, "PROOF_TIMEOUT", ProofTimeout),
		ProofRatePerMinute:      intEnv(getenv, "PROOF_RATE_PER_MINUTE", 30),
		ProofRateBurst:          intEnv(getenv, "PROOF_RATE_BURST", 5),
		ProvingKeyPath:          strings.TrimSpace(getenv("PROOF_PROVING_KEY")),
		VerifyingKeyPath:        strings.TrimSpace(getenv("PROOF_VERIFYING_KEY")),
		ProofBreakerThreshold:   intEnv(getenv, "PROOF_BREAKER_THRESHOLD", 5),
		ProofBreakerCooldown:    durationEnv(getenv, "PROOF_BREAKER_COOLDOWN", ProofCooldown),
		RestrictedJurisdictions: listEnv(getenv, "RESTRICTED_JURISDICTIONS"),
		ReceiptSigningKey:       receiptKey,
		ReceiptTTL:              durationEnv(getenv, "RECEIPT_TTL", ReceiptTTL),
		AuditBuffer:             intEnv(getenv, "AUDIT_BUFFER", 1024),
		KafkaBrokers:            listEnv(getenv, "KAFKA_BROKERS"),
		AuditTopicPrefix:        stringEnv(getenv, "AUDIT_TOPIC_PREFIX", "zkgate.audit"),
		RedisURL:                strings.TrimSpace(getenv("REDIS_URL")),
		OTLPEndpoint:            otlpEndpoint,
		OTLPInsecure:            otlpInsecure,
		TraceSampleRatio:        floatEnv(getenv, "TRACE_SAMPLE_RATIO", 1),
		ShutdownTimeout:         durationEnv(getenv, "SHUTDOWN_TIMEOUT", ShutdownTimeout),
	}
}

// Validate rejects settings that are unsafe outside development.
func (s Server) Validate() error {
	if s.Env == "prod" && s.ReceiptSigningKey == devReceiptKey {
		return errors.New("RECEIPT_SIGNING_KEY must be set in prod")
	}
	if s.CredentialTTL <= 0 {
		return errors.New("CREDENTIAL_TTL must be positive")
	}
	if s.ProofBreakerThreshold < 1 {
		return errors.New("PROOF_BREAKER_THRESHOLD must be at least 1")
	}
	if (s.ProvingKeyPath == "") != (s.VerifyingKeyPath == "") {
		return errors.New("PROOF_PROVING_KEY and PROOF_VERIFYING_KEY must be set together")
	}
	return nil
}

func stringEnv(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(getenv func(string) string, key string, fallback time.Duration) time.Duration {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func intEnv(getenv func(string) string, key string, fallback int) int {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

func floatEnv(getenv func(string) string, key string, fallback float64) float64 {
	if v := getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			return f
		}
	}
	return fallback
}

// otlpEnv accepts either host:port or a URL. A plain http scheme marks the
// exporter as insecure.
func otlpEnv(v string) (endpoint string, insecure bool) {
	v = strings.TrimRight(strings.TrimSpace(v), "/")
	switch {
	case strings.HasPrefix(v, "http://"):
		return strings.TrimPrefix(v, "http://"), true
	case strings.HasPrefix(v, "https://"):
		return strings.TrimPrefix(v, "https://"), false
	}
	return v, false
}

func listEnv(getenv func(string) string, key string) []string {
	return strutil.SplitList(getenv(key), ",")
}
