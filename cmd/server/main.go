package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"zentoso/backend/internal/cache"
	"zentoso/backend/internal/catalog"
	"zentoso/backend/internal/config"
	"zentoso/backend/internal/domain"
	"zentoso/backend/internal/httpapi"
	"zentoso/backend/internal/identity"
	"zentoso/backend/internal/intake"
	"zentoso/backend/internal/notify"
	"zentoso/backend/internal/ratelimit"
	"zentoso/backend/internal/service"
	"zentoso/backend/internal/store"
	"zentoso/backend/internal/store/memory"
	pgstore "zentoso/backend/internal/store/postgres"
	"zentoso/backend/internal/validation"
	"zentoso/backend/internal/webhook"
)

const devAdminPassword = "admin123"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("postgres schema", zap.Error(err))
		}
		if err := seedAdmin(ctx, pg, cfg.SeedAdminPassword); err != nil {
			logger.Fatal("seed admin", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		mem := memory.New()
		if err := seedAdmin(ctx, mem, adminSeedPassword(cfg, logger)); err != nil {
			logger.Fatal("seed admin", zap.Error(err))
		}
		repo = mem
		logger.Info("repository: in-memory")
	}

	var timestamps cache.TimestampStore
	memoryTimestamps := cache.NewMemoryTimestampStore()
	timestamps = memoryTimestamps
	if cfg.RedisAddr != "" {
		redisStore := cache.NewRedisTimestampStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisStore.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, cooldowns are per process", zap.Error(err))
		} else {
			timestamps = redisStore
			closers = append(closers, redisStore.Close)
			logger.Info("cooldown store: redis")
		}
	} else {
		logger.Info("cooldown store: in-memory")
	}

	window := time.Duration(cfg.SubmitCooldownSeconds) * time.Second
	clock := ratelimit.SystemClock{}
	verifier := newVerifier(cfg, logger)

	sender := webhook.NewClient(cfg.WebhookURL, cfg.WebhookContentType, 30*time.Second, logger.Named("webhook"))
	if !sender.Configured() {
		logger.Warn("WEBHOOK_URL is not set; submissions complete without delivery")
	}

	svc := service.New(service.Options{
		Catalog:    catalog.Default(),
		Validator:  validation.New(time.Now),
		Cooldown:   ratelimit.NewCooldown(timestamps, clock, window, "wizard:"),
		Sender:     sender,
		Quotes:     repo,
		SessionTTL: time.Duration(cfg.SessionTTLMinutes) * time.Minute,
		Logger:     logger.Named("service"),
	})

	intakeOpts := intake.Options{
		Quotes:   repo,
		AdminTo:  cfg.LineAdminTo,
		Verifier: verifier,
		Cooldown: ratelimit.NewCooldown(timestamps, clock, window, "intake:"),
		Logger:   logger.Named("intake"),
	}
	if cfg.SMTPAddr != "" {
		intakeOpts.Mailer = notify.NewSMTPMailer(notify.MailConfig{
			Addr:     cfg.SMTPAddr,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			To:       notify.SplitAddresses(cfg.MailTo),
			Cc:       notify.SplitAddresses(cfg.MailCc),
			Subject:  cfg.MailSubject,
		})
	}
	if cfg.LineChannelAccessToken != "" {
		intakeOpts.Line = notify.NewLineClient(cfg.LineChannelAccessToken, "")
	}
	intakeSvc := intake.New(intakeOpts)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, intakeSvc, auth, verifier, cfg.AllowedOrigin, logger.Named("http"))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Submit waits on the outbound webhook.
		WriteTimeout: 40 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go svc.RunSweeper(sweepCtx, time.Minute)
	go pruneTimestamps(sweepCtx, memoryTimestamps, logger)

	go func() {
		logger.Info("quote backend listening", zap.String("addr", cfg.Address()), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopSweep()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsLocal() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newVerifier(cfg config.Config, logger *zap.Logger) identity.Verifier {
	if cfg.IsLocal() && cfg.LineChannelSecret == "" {
		logger.Warn("APP_ENV=local: LINE identity is mocked", zap.String("user_id", identity.MockUserID))
		return identity.LocalVerifier{}
	}
	return identity.NewLineVerifier(cfg.LineChannelID, cfg.LineChannelSecret)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.IsLocal() {
		return nil
	}
	if cfg.LineChannelSecret == "" {
		return fmt.Errorf("LINE_CHANNEL_SECRET must be set outside APP_ENV=local")
	}
	if cfg.LineChannelID == "" {
		return fmt.Errorf("LINE_CHANNEL_ID must be set outside APP_ENV=local")
	}
	if cfg.AllowedOrigin == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name the LIFF origin outside APP_ENV=local")
	}
	if cfg.DatabaseURL == "" && cfg.SeedAdminPassword == "" {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must be set when DATABASE_URL is empty outside APP_ENV=local")
	}
	return nil
}

// adminSeedPassword falls back to devAdminPassword only in local mode.
func adminSeedPassword(cfg config.Config, logger *zap.Logger) string {
	if cfg.SeedAdminPassword != "" {
		return cfg.SeedAdminPassword
	}
	if !cfg.IsLocal() {
		return ""
	}
	logger.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD to override", zap.String("username", "admin"))
	return devAdminPassword
}

// seedAdmin creates the first admin account on an empty user table.
func seedAdmin(ctx context.Context, users store.UserStore, password string) error {
	existing, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 || password == "" {
		return nil
	}
	if len(password) < 8 {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return users.CreateUser(ctx, domain.UserAccount{
		Username:  "admin",
		Password:  string(hash),
		Role:      "admin",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
}

func pruneTimestamps(ctx context.Context, timestamps *cache.MemoryTimestampStore, logger *zap.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := timestamps.Prune(now); removed > 0 {
				logger.Debug("pruned expired cooldowns", zap.Int("removed", removed))
			}
		}
	}
}
