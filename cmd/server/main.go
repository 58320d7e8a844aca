package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"zkgate/internal/credential/store"
	"zkgate/internal/credential/workers/cleanup"
	"zkgate/internal/eligibility"
	"zkgate/internal/gateway/handler"
	"zkgate/internal/gateway/service"
	"zkgate/internal/platform/config"
	"zkgate/internal/platform/health"
	"zkgate/internal/platform/kafka/producer"
	"zkgate/internal/platform/logger"
	"zkgate/internal/platform/metrics"
	zkredis "zkgate/internal/platform/redis"
	"zkgate/internal/proof"
	"zkgate/internal/proof/groth16"
	"zkgate/internal/receipt"
	"zkgate/pkg/platform/audit"
	auditkafka "zkgate/pkg/platform/audit/store/kafka"
	auditmetrics "zkgate/pkg/platform/audit/metrics"
	auditpublisher "zkgate/pkg/platform/audit/publisher"
	auditmemory "zkgate/pkg/platform/audit/store/memory"
	"zkgate/pkg/platform/circuit"
	"zkgate/pkg/platform/middleware/ratelimit"
	"zkgate/pkg/platform/middleware/request"
	"zkgate/pkg/platform/tracer"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Server, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info("initializing zkgate",
		"addr", cfg.Addr,
		"env", cfg.Env,
		"credential_ttl", cfg.CredentialTTL,
		"proof_timeout", cfg.ProofTimeout,
	)

	shutdownTracing, err := tracer.InstallProvider(context.Background(), tracer.ProviderConfig{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: "zkgate",
		Environment: cfg.Env,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("trace exporter shutdown failed", "error", err)
		}
	}()
	if cfg.OTLPEndpoint != "" {
		log.Info("exporting traces over otlp", "endpoint", cfg.OTLPEndpoint, "sample_ratio", cfg.TraceSampleRatio)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	prover, err := newProofBackend(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize proof backend: %w", err)
	}
	breaker := circuit.New("proof_backend",
		circuit.WithFailureThreshold(cfg.ProofBreakerThreshold),
		circuit.WithCooldown(cfg.ProofBreakerCooldown),
	)
	backend := proof.Traced(
		proof.WithBreaker(proof.WithTimeout(prover, cfg.ProofTimeout), breaker, log),
		tracer.NewOTel(),
	)

	credentials := store.New(
		store.WithValidity(cfg.CredentialTTL),
		store.WithExpiredRetention(cfg.ExpiredRetention),
		store.WithMetrics(m),
	)
	sweeper, err := cleanup.New(credentials,
		cleanup.WithCleanupInterval(cfg.CleanupInterval),
		cleanup.WithCleanupLogger(log),
	)
	if err != nil {
		return fmt.Errorf("initialize cleanup worker: %w", err)
	}

	signer, err := receipt.NewSigner(cfg.ReceiptSigningKey, cfg.ReceiptTTL)
	if err != nil {
		return fmt.Errorf("initialize receipt signer: %w", err)
	}

	hc := health.New(cfg.Env)

	var auditStore audit.Store = auditmemory.NewInMemoryStore(0)
	if len(cfg.KafkaBrokers) > 0 {
		prod, err := producer.New(producer.DefaultConfig(cfg.KafkaBrokers), log)
		if err != nil {
			return fmt.Errorf("initialize kafka producer: %w", err)
		}
		defer prod.Close(cfg.ShutdownTimeout)
		auditStore = auditkafka.New(prod, auditStore, auditkafka.WithTopicPrefix(cfg.AuditTopicPrefix))
		hc.RegisterCheck("kafka", pingCheck(prod.Ping))
		log.Info("streaming audit events to kafka", "brokers", cfg.KafkaBrokers, "topic_prefix", cfg.AuditTopicPrefix)
	}

	auditor := auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithAsyncBuffer(cfg.AuditBuffer),
		auditpublisher.WithPublisherLogger(log),
		auditpublisher.WithMetrics(auditmetrics.New(reg)),
	)
	defer auditor.Close()

	engine := eligibility.NewEngine(eligibility.DefaultPolicyTable().WithRestricted(cfg.RestrictedJurisdictions...))
	svc := service.New(backend, credentials, engine,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithAuditor(auditor),
		service.WithReceipts(signer),
		service.WithTracer(tracer.NewOTel()),
	)

	limiterOpts := []ratelimit.Option{ratelimit.WithLogger(log)}
	rdb, err := connectRedis(cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		rdb.RegisterPoolMetrics(reg)
		limiterOpts = append(limiterOpts, ratelimit.WithShared(ratelimit.NewRedisWindow(rdb.Client, cfg.ProofRatePerMinute, time.Minute)))
		hc.RegisterCheck("redis", pingCheck(rdb.Health))
		log.Info("proof rate limit shared through redis")
	}
	limiter := ratelimit.New(ratelimit.Config{
		PerMinute: cfg.ProofRatePerMinute,
		Burst:     cfg.ProofRateBurst,
	}, limiterOpts...)

	hc.RegisterCheck("proof_backend", func() error {
		if breaker.State() == circuit.StateOpen {
			return errors.New("circuit open after repeated proof timeouts")
		}
		return nil
	})
	hc.RegisterInfo("proof_scheme", func() any { return groth16.Scheme })
	hc.RegisterInfo("proof_circuit", func() any { return breaker.State().String() })
	hc.RegisterInfo("credentials", func() any { return credentials.Len() })
	hc.RegisterInfo("rate_limited_clients", func() any { return limiter.Clients() })

	gateway := handler.New(svc, log, handler.WithProofMiddleware(limiter.Middleware))
	router := newRouter(gateway, hc, reg, request.NewMetrics(reg), log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.ProofTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(sweeper.Start(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(limiter.Start(gctx))
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// newProofBackend loads exported keys when configured and otherwise runs a
// fresh setup. Proofs from a fresh setup do not verify after a restart.
func newProofBackend(cfg config.Server, log *slog.Logger) (*groth16.Backend, error) {
	opts := []groth16.Option{groth16.WithLogger(log)}
	if cfg.ProvingKeyPath != "" {
		pk, err := os.Open(cfg.ProvingKeyPath)
		if err != nil {
			return nil, err
		}
		defer pk.Close()
		vk, err := os.Open(cfg.VerifyingKeyPath)
		if err != nil {
			return nil, err
		}
		defer vk.Close()
		opts = append(opts, groth16.WithKeys(bufio.NewReader(pk), bufio.NewReader(vk)))
	}
	return groth16.New(opts...)
}

func connectRedis(url string) (*zkredis.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rdb, err := zkredis.New(ctx, zkredis.DefaultConfig(url))
	if err != nil {
		return nil, fmt.Errorf("initialize redis: %w", err)
	}
	return rdb, nil
}

// pingCheck adapts a context-aware ping to a readiness check.
func pingCheck(ping func(context.Context) error) health.CheckFunc {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return ping(ctx)
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
