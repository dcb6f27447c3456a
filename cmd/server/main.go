package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"

	"pmt/backend/internal/audit"
	"pmt/backend/internal/config"
	"pmt/backend/internal/db"
	healthcheck "pmt/backend/internal/health"
	"pmt/backend/internal/logging"
	"pmt/backend/internal/notification"
	"pmt/backend/internal/platform/rbac"
	"pmt/backend/internal/policy/engine"
	projectservice "pmt/backend/internal/project/service"
	"pmt/backend/internal/security"
	"pmt/backend/internal/server"
	"pmt/backend/internal/server/interceptors"
	"pmt/backend/internal/store"
	taskservice "pmt/backend/internal/task/service"
	telemetryotel "pmt/backend/internal/telemetry/otel"
	userservice "pmt/backend/internal/user/service"
)

const (
	serviceName    = "pmt-backend"
	healthInterval = 15 * time.Second
	shutdownGrace  = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, closer := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Service: serviceName})
	defer closer.Close()

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("server exited")
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	if hook := telemetryotel.NewLogHook(providers.LoggerProvider, logging.ParseLevel(cfg.LogLevel)); hook != nil && cfg.OTLPEndpoint != "" {
		log.Logger.AddHook(hook)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = providers.Shutdown(sctx)
	}()

	var (
		st     store.Store
		pinger healthcheck.Pinger
	)
	switch cfg.StorageDriver {
	case config.StorageMemory:
		log.Warn("using in-memory storage; data is lost on exit")
		st = store.NewMemory()
	default:
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer conn.Close()
		st = store.NewPostgres(conn)
		pinger = conn
	}

	var tokens *security.TokenProvider
	if cfg.AuthEnabled() {
		priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
		if err != nil {
			return fmt.Errorf("jwt keys: %w", err)
		}
		tokens = security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
		log.WithField("alg", security.KeyAlg(pub)).Info("token signing enabled")
	} else {
		log.Warn("JWT keys not configured; only public methods are callable")
	}
	revoked := security.NewMemoryRevocationStore()
	go revoked.RunSweeper(ctx, cfg.SweepInterval())

	var sender notification.Sender = notification.LogSender{Log: log}
	if cfg.SMTPHost != "" {
		sender = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}
	dispatcher := notification.NewAsyncDispatcher(sender, notification.Options{
		Timeout:                cfg.NotifyTimeoutDuration(),
		MaxConsecutiveFailures: uint32(cfg.NotifyBreakerMaxFailures),
	}, log)

	policy, err := loadPolicy(ctx, cfg.RBACPolicyFile, log)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	gate := rbac.NewGate(policy)

	users := userservice.New(st.Repos().Users, security.NewHasher(cfg.BcryptCost), tokens, revoked, log)
	projects := projectservice.New(st, gate, log)
	tasks := taskservice.NewManager(st, gate, audit.NewRecorder(log, nil), dispatcher, log)

	hs := health.NewServer()
	checker := healthcheck.NewChecker(pinger, policy, log)
	go checker.Run(ctx, hs, healthInterval, server.ServiceNames()...)

	var auth interceptors.Authenticator
	if tokens != nil {
		auth = users
	}
	srv := server.NewServer(server.Deps{
		API:    server.NewAPI(users, projects, tasks),
		Auth:   auth,
		Health: hs,
		Log:    log,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.GRPCAddr).Info("gRPC server listening")
		serveErr <- srv.Serve(lis)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down gRPC server")
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownGrace):
		srv.Stop()
	}

	dctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := dispatcher.Drain(dctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("drain notifications: %w", err)
	} else if err != nil {
		log.Warn("notifications still in flight at shutdown")
	}
	log.Info("gRPC server stopped")
	return nil
}

// loadPolicy compiles the role policy that decides every gated request: the operator's Rego file when
// one is configured, the built-in role table otherwise.
func loadPolicy(ctx context.Context, path string, log logrus.FieldLogger) (*engine.OPAEvaluator, error) {
	var (
		policy *engine.OPAEvaluator
		err    error
	)
	if path == "" {
		policy, err = engine.NewOPAEvaluator(ctx, "")
	} else {
		policy, err = engine.NewOPAEvaluatorFromFile(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	if err := policy.HealthCheck(ctx); err != nil {
		return nil, err
	}
	overrides, err := policy.Overrides(ctx)
	if err != nil {
		return nil, err
	}
	if path == "" && len(overrides) > 0 {
		return nil, fmt.Errorf("built-in policy departs from the role table: %v", overrides)
	}
	if len(overrides) > 0 {
		log.WithFields(logrus.Fields{"file": path, "overrides": overrides}).Warn("role policy overrides the built-in table")
	} else if path != "" {
		log.WithField("file", path).Info("role policy loaded")
	}
	return policy, nil
}
