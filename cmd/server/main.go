// server runs the HTTP auth API and the gRPC health endpoint.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpchealth "google.golang.org/grpc/health"

	"identity-session-engine/internal/audit"
	auditrepo "identity-session-engine/internal/audit/repository"
	"identity-session-engine/internal/config"
	"identity-session-engine/internal/db"
	"identity-session-engine/internal/devotp"
	"identity-session-engine/internal/health"
	identityrepo "identity-session-engine/internal/identity/repository"
	identityservice "identity-session-engine/internal/identity/service"
	"identity-session-engine/internal/logger"
	"identity-session-engine/internal/notification"
	otprepo "identity-session-engine/internal/otp/repository"
	otpservice "identity-session-engine/internal/otp/service"
	"identity-session-engine/internal/policy/engine"
	"identity-session-engine/internal/security"
	"identity-session-engine/internal/server"
	sessionrepo "identity-session-engine/internal/session/repository"
	sessionservice "identity-session-engine/internal/session/service"
	"identity-session-engine/internal/telemetry"
	telemetryotel "identity-session-engine/internal/telemetry/otel"
	"identity-session-engine/internal/telemetry/producer"
)

const (
	serviceName         = "identity-session-engine"
	dbPingTimeout       = 5 * time.Second
	healthCheckInterval = 15 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)
	eng := cfg.Engine()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewMetrics(providers.MeterProvider.Meter(serviceName))
	if err != nil {
		return err
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, dbPingTimeout)
	if err != nil {
		return err
	}
	defer pool.Close()

	tokens, err := security.NewTokenProviderFromSettings(security.SigningSettings{
		PrivateKey: cfg.JWTPrivateKey,
		PublicKey:  cfg.JWTPublicKey,
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  eng.AccessTokenTTL,
	})
	if err != nil {
		return err
	}
	log.Info("access token signing configured", "alg", tokens.Alg())

	admission, err := loadAdmission(ctx, cfg.AdmissionPolicyPath, log)
	if err != nil {
		return err
	}

	var codes *devotp.MemoryStore
	if cfg.DevOTPEnabled() {
		codes = devotp.NewMemoryStore()
	}
	notifier, err := newNotifier(cfg, codes, log)
	if err != nil {
		return err
	}

	kafka, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuthEventsTopic)
	if err != nil {
		return err
	}
	events := telemetry.MultiEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kafka != nil {
		events = append(events, kafka)
		log.Info("auth events streaming to kafka", "topic", cfg.AuthEventsTopic)
	}

	identities := identityrepo.NewPostgresRepository(pool)
	audits := auditrepo.NewPostgresRepository(pool)
	rotation := sessionservice.NewRotationManager(
		sessionrepo.NewPostgresRepository(pool), identities, tokens, eng,
		sessionservice.WithAdmission(admission), sessionservice.WithLogger(log),
	)
	challenges := otpservice.NewManager(otprepo.NewPostgresRepository(pool), eng, otpservice.WithLogger(log))
	auth := identityservice.NewAuthService(
		identities, security.NewHasher(eng.BcryptCost), rotation, challenges, notifier, tokens, eng,
		identityservice.WithAdmission(admission),
		identityservice.WithAudit(audit.NewLogger(audits, audit.ClientIP, log)),
		identityservice.WithEvents(events),
		identityservice.WithMetrics(metrics),
		identityservice.WithLogger(log),
	)

	checker := health.NewChecker(pool, admission, 0)
	deps := server.Deps{
		Auth:             auth,
		Tokens:           tokens,
		Activity:         audits,
		Health:           checker,
		Events:           events,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		Log:              log,
	}
	if codes != nil {
		deps.DevOTP = codes
		log.Warn("dev otp lookup mounted at /dev/otp", "notifier", cfg.Notifier)
	}
	app := server.NewHTTPApp(deps)

	grpcSrv := server.NewGRPCServer()
	healthSrv := grpchealth.NewServer()
	server.RegisterServices(grpcSrv, healthSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go checker.Watch(ctx, healthSrv, healthCheckInterval, log)

	errCh := make(chan error, 2)
	go func() {
		log.Info("gRPC health listening", "addr", cfg.GRPCAddr)
		errCh <- grpcSrv.Serve(lis)
	}()
	go func() {
		log.Info("HTTP API listening", "addr", cfg.HTTPAddr)
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		log.Error("listener stopped", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	healthSrv.Shutdown()
	grpcSrv.GracefulStop()

	// Let in-flight async emits finish before the exporters go away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if kafka != nil {
		if err := kafka.Close(); err != nil {
			log.Warn("kafka close", "error", err)
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("otel shutdown", "error", err)
	}
	return serveErr
}

func loadAdmission(ctx context.Context, path string, log *slog.Logger) (*engine.OPAAdmission, error) {
	if path != "" {
		log.Info("loading admission policy", "path", path)
		return engine.LoadOPAAdmission(ctx, path, log)
	}
	return engine.NewOPAAdmission(ctx, engine.DefaultAdmissionPolicy, log)
}

// newNotifier hands notification.New a nil interface rather than a typed nil store.
func newNotifier(cfg *config.Config, codes *devotp.MemoryStore, log *slog.Logger) (notification.Notifier, error) {
	if codes == nil {
		return notification.New(cfg, nil, log)
	}
	return notification.New(cfg, codes, log)
}
