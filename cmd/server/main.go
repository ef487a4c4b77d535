package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"archivist/internal/audit"
	"archivist/internal/identity"
	identityhandler "archivist/internal/identity/handler"
	jwttoken "archivist/internal/jwt_token"
	"archivist/internal/notify"
	"archivist/internal/outbox"
	"archivist/internal/platform/config"
	"archivist/internal/platform/httpserver"
	"archivist/internal/platform/kafka"
	"archivist/internal/platform/logger"
	"archivist/internal/platform/metrics"
	platformredis "archivist/internal/platform/redis"
	"archivist/internal/settings"
	settingshandler "archivist/internal/settings/handler"
	"archivist/internal/signature"
	signaturehandler "archivist/internal/signature/handler"
	httptransport "archivist/internal/transport/http"
	workflowhandler "archivist/internal/workflow/handler"
	workflowmetrics "archivist/internal/workflow/metrics"
	"archivist/internal/workflow/service"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "archivist: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	roles, err := identity.LoadRoles(cfg.Workflow.RolesFile)
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	if err := applySeed(ctx, cfg.Workflow.SeedFile, b.store, roles, log); err != nil {
		return err
	}

	policy := settings.New(b.store,
		settings.Record{
			CredentialTimeout: cfg.Workflow.CredentialTimeout,
			SessionTimeout:    cfg.Workflow.SessionTimeout,
			ReasonMinLength:   cfg.Workflow.ReasonMinLength,
		},
		settings.Bounds{
			SessionTimeoutMin: cfg.Workflow.SessionTimeoutMin,
			SessionTimeoutMax: cfg.Workflow.SessionTimeoutMax,
		},
		settings.WithLogger(log),
	)
	verifier := identity.NewBoundedVerifier(identity.PasswordVerifier{}, cfg.Workflow.CredentialTimeout)
	resolver := identity.NewResolver(b.store, roles)
	auditor := audit.NewService(b.store,
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics()),
	)
	signer := signature.NewService(b.store, b.store, verifier, auditor, policy,
		signature.WithResolver(resolver),
		signature.WithTx(b.store),
		signature.WithLogger(log),
		signature.WithMetrics(signature.NewMetrics()),
	)
	workflow := service.New(service.Deps{
		Requests:    b.store,
		Containers:  b.store,
		Events:      b.store,
		Tx:          b.store,
		Signatures:  signer,
		Audit:       auditor,
		Resolver:    resolver,
		Settings:    policy,
		Credentials: verifier,
	},
		service.WithLogger(log),
		service.WithMetrics(workflowmetrics.New()),
		service.WithTracer(otel.Tracer("archivist/workflow")),
	)

	sinks, health, closeSinks, err := openSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSinks()
	relay := outbox.NewRelay(b.store, sinks,
		outbox.WithLogger(log),
		outbox.WithMetrics(outbox.NewMetrics()),
		outbox.WithInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithWaker(b.waker),
	)

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := httptransport.NewRouter(httptransport.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Validator:      jwttoken.NewJWTServiceAdapter(tokens),
		Sessions:       policy,
		Metrics:        metrics.New(),
		Logger:         log,
		HealthChecks:   append(b.health, health...),
		Public: []httptransport.Registrar{
			identityhandler.New(identity.NewAuthenticator(b.store, identity.PasswordVerifier{}), tokens, policy, log),
		},
		Protected: []httptransport.Registrar{
			workflowhandler.New(workflow, log),
			signaturehandler.New(signer, log),
			settingshandler.New(policy, resolver, log),
		},
	})
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting archivist", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("server stopped")
		return nil
	})
	g.Go(func() error {
		return untilCancelled(relay.Run(gctx))
	})
	for _, task := range b.background {
		g.Go(func() error {
			return untilCancelled(task(gctx))
		})
	}
	return g.Wait()
}

// openSinks connects the optional notification transports. Each one is
// skipped when its address is not configured.
func openSinks(ctx context.Context, cfg config.Config, log *slog.Logger) ([]outbox.Sink, []httptransport.HealthCheck, func(), error) {
	var (
		sinks   []outbox.Sink
		checks  []httptransport.HealthCheck
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	producer, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		return nil, nil, closeAll, err
	}
	if producer != nil {
		closers = append(closers, producer.Close)
		if err := kafka.EnsureTopics(ctx, producer, cfg.Kafka.Topic); err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		sinks = append(sinks, notify.NewKafkaSink(producer, cfg.Kafka.Topic))
		checks = append(checks, httptransport.HealthCheck{Name: "kafka", Check: producer.Ping})
		log.Info("kafka notifications enabled", "topic", cfg.Kafka.Topic)
	}

	rdb, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		closeAll()
		return nil, nil, func() {}, err
	}
	if rdb != nil {
		closers = append(closers, func() {
			if err := rdb.Close(); err != nil {
				log.Warn("closing redis", "error", err)
			}
		})
		sinks = append(sinks, notify.NewRedisBroadcaster(rdb))
		checks = append(checks, httptransport.HealthCheck{Name: "redis", Check: rdb.Health})
		log.Info("redis broadcasts enabled")
	}

	if len(sinks) == 0 {
		log.Warn("no notification sinks configured, outbox events are marked dispatched without delivery")
	}
	return sinks, checks, closeAll, nil
}

func untilCancelled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
