package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpchealth "google.golang.org/grpc/health"

	accountrepo "health-portal/backend/internal/account/repository"
	"health-portal/backend/internal/audit"
	auditrepo "health-portal/backend/internal/audit/repository"
	"health-portal/backend/internal/challenge"
	"health-portal/backend/internal/config"
	"health-portal/backend/internal/db"
	"health-portal/backend/internal/health"
	identityhandler "health-portal/backend/internal/identity/handler"
	identityservice "health-portal/backend/internal/identity/service"
	"health-portal/backend/internal/notify"
	policyengine "health-portal/backend/internal/policy/engine"
	"health-portal/backend/internal/security"
	"health-portal/backend/internal/server"
	"health-portal/backend/internal/telemetry"
	otelsetup "health-portal/backend/internal/telemetry/otel"
)

const (
	janitorInterval     = time.Minute
	healthCheckInterval = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Config{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Insecure:    cfg.OTelInsecure,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	healthSrv := grpchealth.NewServer()
	checker := health.NewChecker(healthSrv, identityhandler.ServiceName)

	var (
		accounts   accountrepo.Repository
		auditStore auditrepo.Repository
	)
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer conn.Close()
		accounts = accountrepo.NewSQLRepository(conn, cfg.DatabaseDriver)
		auditStore = auditrepo.NewSQLRepository(conn, cfg.DatabaseDriver)
		checker.Add("database", pingDB(conn))
	} else {
		log.Println("DATABASE_URL not set; accounts are kept in memory and lost on restart")
		accounts = accountrepo.NewMemoryRepository()
	}

	var store challenge.Store
	switch cfg.ChallengeStore {
	case config.ChallengeStoreRedis:
		client, err := challenge.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		rs := challenge.NewRedisStore(client, cfg.RedisKeyPrefix)
		checker.Add("redis", rs.Ping)
		store = rs
	default:
		ms := challenge.NewMemoryStore()
		go ms.RunJanitor(ctx, janitorInterval, nil)
		store = ms
	}

	policy, err := policyengine.NewOPAEvaluatorFromFile(ctx, cfg.RegistrationPolicyFile)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}
	checker.Add("policy", policy.HealthCheck)

	key, err := security.LoadSigningKey(cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.JWTSecret)
	if err != nil {
		log.Fatalf("signing key: %v", err)
	}
	tokens := security.NewTokenIssuer(key, cfg.JWTIssuer, cfg.JWTAudience)

	metrics, err := telemetry.NewAuthMetrics(providers.MeterProvider.Meter(telemetry.MeterName))
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}
	auditLogger := audit.NewAsync(audit.NewLogger(auditStore, providers.LoggerProvider.Logger("health-portal/audit")))

	var (
		sender notify.CodeSender
		outbox *notify.DevOutbox
	)
	if cfg.OTPReturnToClient {
		log.Println("OTP_RETURN_TO_CLIENT enabled: codes are held in the dev outbox and served by DevService (development only)")
		outbox = notify.NewDevOutbox()
		sender = outbox
	} else {
		sender = notify.NewHTTPSender(cfg.MailAPIKey, cfg.MailAPIURL, cfg.MailSender)
	}

	auth := identityservice.NewAuthService(
		accounts,
		challenge.NewManager(store, challenge.WithTTL(cfg.ChallengeTTL())),
		security.NewHasher(cfg.BcryptCost, cfg.HashConcurrency),
		tokens,
		sender,
		identityservice.WithRegistrationPolicy(policy),
		identityservice.WithAuditLogger(auditLogger),
		identityservice.WithMetrics(metrics),
		identityservice.WithTokenTTLs(cfg.OTPLoginTTL(), cfg.DirectLoginTTL()),
	)

	deps := server.Deps{Auth: auth, Health: healthSrv}
	if outbox != nil {
		deps.DevOutbox = outbox
	}
	s := server.NewServer(deps)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	go checker.Run(ctx, healthCheckInterval)
	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gRPC server...")
	checker.Shutdown()
	s.GracefulStop()
	cancel()
	log.Println("gRPC server stopped")

	time.Sleep(audit.ShutdownDrainDuration)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
}

func pingDB(conn *sql.DB) health.Probe {
	return func(ctx context.Context) error {
		return conn.PingContext(ctx)
	}
}
