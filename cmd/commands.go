package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v81"
	stripesession "github.com/stripe/stripe-go/v81/checkout/session"
	"go.uber.org/zap"

	"github.com/MatsTornblom/Vibzprofile/internal/cache"
	"github.com/MatsTornblom/Vibzprofile/internal/config"
	"github.com/MatsTornblom/Vibzprofile/internal/events"
	"github.com/MatsTornblom/Vibzprofile/internal/handler"
	"github.com/MatsTornblom/Vibzprofile/internal/handler/middleware"
	"github.com/MatsTornblom/Vibzprofile/internal/logger"
	"github.com/MatsTornblom/Vibzprofile/internal/repository/postgres"
	"github.com/MatsTornblom/Vibzprofile/internal/service"
	"github.com/MatsTornblom/Vibzprofile/pkg/blacklist"
	"github.com/MatsTornblom/Vibzprofile/pkg/checkout"
	"github.com/MatsTornblom/Vibzprofile/pkg/cookiestore"
	"github.com/MatsTornblom/Vibzprofile/pkg/email"
	"github.com/MatsTornblom/Vibzprofile/pkg/hash"
	"github.com/MatsTornblom/Vibzprofile/pkg/jwt"
	"github.com/MatsTornblom/Vibzprofile/pkg/storage"
	"github.com/MatsTornblom/Vibzprofile/pkg/validator"
)

// maxUploadBody leaves room for a 5MB image plus the multipart envelope.
const maxUploadBody = 8 * 1024 * 1024

type Globals struct {
	Version string
	Build   string
}

type MigrateCmd struct{}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.NewForEnvironment(cfg.Server.Environment, cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	db, err := initDB(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.RunMigrations(ctx, db.DB); err != nil {
		return err
	}
	log.Info("migrations applied", zap.String("version", globals.Version))
	return nil
}

type PruneCmd struct{}

func (p *PruneCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.NewForEnvironment(cfg.Server.Environment, cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	db, err := initDB(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := postgres.NewSessionRepository(db).DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to prune sessions: %w", err)
	}
	log.Info("expired sessions pruned", zap.Int64("deleted", n))
	return nil
}

type ServeCmd struct {
	Migrate bool `help:"Apply database migrations before serving." default:"true" negatable:""`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.NewForEnvironment(cfg.Server.Environment, cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	if cfg.Dev.Mode && cfg.IsProduction() {
		log.Warn("development identity bypass is enabled in production")
	}

	db, err := initDB(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("error closing database connection", zap.Error(err))
		}
	}()
	log.Info("database connection established")

	if s.Migrate {
		if err := postgres.RunMigrations(ctx, db.DB); err != nil {
			return err
		}
	}

	redisClient, err := initRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Warn("error closing Redis connection", zap.Error(err))
		}
	}()
	log.Info("redis connection established")

	privateKey, publicKey, err := loadRSAKeys(cfg)
	if err != nil {
		return err
	}
	tokenService, err := jwt.NewTokenService(
		privateKey,
		publicKey,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
		cfg.JWT.Issuer,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}
	tokenService.SetKeyID(cfg.JWT.KeyID)
	if cfg.JWT.RetiredPublicKeyPath != "" {
		retired, err := os.ReadFile(cfg.JWT.RetiredPublicKeyPath)
		if err != nil {
			return fmt.Errorf("failed to read retired public key file: %w", err)
		}
		if err := tokenService.AddRetiredKey(cfg.JWT.RetiredKeyID, retired); err != nil {
			return err
		}
		log.Info("publishing retired signing key", zap.String("kid", cfg.JWT.RetiredKeyID))
	}

	validate := validator.NewValidator()
	bus := events.NewBus(log.Named("events"))
	cookies := cookiestore.New(cfg.Cookie.RootDomain,
		cookiestore.WithSecure(cfg.Cookie.Secure),
		cookiestore.WithMaxAge(cfg.Cookie.MaxAge),
	)

	// Repositories
	accountRepo := postgres.NewAccountRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	profileRepo := postgres.NewProfileRepository(db)

	// Redis backed helpers
	tokenBlacklist := blacklist.NewTokenBlacklist(redisClient)
	profileCache := cache.NewProfileCache(redisClient, cache.WithCacheLogger(log.Named("cache")))
	unsubscribeCache := profileCache.EvictOn(bus)
	defer unsubscribeCache()
	grantGuard := cache.NewInFlightGuard(redisClient, "grant:", 30*time.Second)
	idempotency := cache.NewIdempotencyStore(redisClient, "")

	mailer := initEmail(cfg, log)
	avatars := initStorage(ctx, cfg, log)

	// Services
	authService := service.NewAuthService(accountRepo, sessionRepo, tokenService, tokenBlacklist,
		hash.NewHasher(hash.DefaultParams), mailer, cfg, log.Named("auth"))
	resolver := service.NewSessionResolver(authService, cookies, bus, validate, cfg, log.Named("session"))
	profileService := service.NewProfileService(profileRepo, profileCache, avatars, bus, validate, cfg, log.Named("profile"))
	unsubscribeWarm := profileService.WarmOnSessionChange(resolver)
	defer unsubscribeWarm()
	balanceService := service.NewBalanceService(profileRepo, grantGuard, bus, cfg, log.Named("balance"))

	checkoutCfg := service.CheckoutServiceConfig{
		Balances:    balanceService,
		Profiles:    profileRepo,
		Idempotency: idempotency,
		Mailer:      mailer,
		Config:      cfg.Checkout,
		Logger:      log.Named("checkout"),
	}
	if cfg.Checkout.EndpointURL != "" {
		client, err := checkout.NewClient(cfg.Checkout.EndpointURL, cfg.Checkout.Timeout)
		if err != nil {
			return fmt.Errorf("failed to initialize checkout client: %w", err)
		}
		checkoutCfg.Client = client
	}
	if cfg.Checkout.StripeSecretKey != "" {
		checkoutCfg.Stripe = &stripesession.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: cfg.Checkout.StripeSecretKey,
		}
		log.Info("stripe checkout endpoint enabled")
	}
	checkoutService := service.NewCheckoutService(checkoutCfg)

	handlers := handler.Handlers{
		Auth:     handler.NewAuthHandler(resolver, log.Named("http")),
		User:     handler.NewUserHandler(profileService, balanceService, cookies, log.Named("http")),
		Checkout: handler.NewCheckoutHandler(checkoutService, log.Named("http")),
		Sessions: handler.NewSessionHandler(authService, log.Named("http")),
		Pages:    handler.NewPageHandler(resolver, profileService, balanceService, checkoutService, cookies, cfg, log.Named("http")),
		Health:   handler.NewHealthHandler(db, redisClient, globals.Version, globals.Build, log.Named("health")),
		JWKS:     handler.NewJWKSHandler(tokenService),
	}

	app := fiber.New(fiber.Config{
		AppName:      "Vibz Profile " + globals.Version,
		ErrorHandler: customErrorHandler(log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BodyLimit:    maxUploadBody,
		Views:        handler.NewViewEngine(),
	})

	app.Use(middleware.RecoveryMiddleware(log))
	app.Use(middleware.RequestContext(cfg.Server.RequestTimeout))
	app.Use(middleware.LoggerMiddleware(log.Named("http")))
	app.Use(middleware.MetricsMiddleware())
	app.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))

	handler.SetupRoutes(app, handlers,
		middleware.SessionMiddleware(resolver),
		middleware.BearerAuth(authService),
	)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.Port
		log.Info("server starting",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment),
			zap.String("version", globals.Version),
		)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// initDB opens PostgreSQL with retry logic
func initDB(cfg *config.Config, log *zap.Logger) (*sqlx.DB, error) {
	dsn := cfg.Database.DSN()

	var db *sqlx.DB
	var err error

	maxRetries := 5
	retryInterval := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			break
		}

		log.Warn("failed to connect to database",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Error(err),
		)
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// initRedis creates the Redis client and verifies the connection
func initRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}

// loadRSAKeys loads RSA private and public keys from files
func loadRSAKeys(cfg *config.Config) ([]byte, []byte, error) {
	privateKey, err := os.ReadFile(cfg.JWT.PrivateKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	publicKey, err := os.ReadFile(cfg.JWT.PublicKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read public key file: %w", err)
	}

	if len(privateKey) == 0 {
		return nil, nil, errors.New("private key file is empty")
	}
	if len(publicKey) == 0 {
		return nil, nil, errors.New("public key file is empty")
	}

	return privateKey, publicKey, nil
}

func initEmail(cfg *config.Config, log *zap.Logger) email.EmailService {
	if !cfg.Email.Enabled {
		log.Info("email disabled (set EMAIL_ENABLED=true to enable)")
		return email.NoopEmailService{}
	}

	svc, err := email.NewResendEmailService(&email.EmailConfig{
		APIKey:     cfg.Email.APIKey,
		FromEmail:  cfg.Email.FromEmail,
		FromName:   cfg.Email.FromName,
		AccountURL: cfg.Server.PublicURL + "/account",
	}, log.Named("email"))
	if err != nil {
		log.Warn("failed to initialize email service, email disabled", zap.Error(err))
		return email.NoopEmailService{}
	}
	return svc
}

// initStorage returns nil when uploads are not configured, which keeps the
// service interface nil.
func initStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) service.AvatarStorage {
	if cfg.Storage.AccessKey == "" || cfg.Storage.Bucket == "" {
		log.Info("avatar storage disabled (set STORAGE_ACCESS_KEY to enable)")
		return nil
	}

	s3Storage, err := storage.NewS3Storage(ctx, storage.Config{
		Endpoint:      cfg.Storage.Endpoint,
		Region:        cfg.Storage.Region,
		Bucket:        cfg.Storage.Bucket,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		UseSSL:        cfg.Storage.UseSSL,
		UsePathStyle:  cfg.Storage.UsePathStyle,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}, storage.WithLogger(log.Named("storage")))
	if err != nil {
		log.Warn("failed to initialize avatar storage, uploads disabled", zap.Error(err))
		return nil
	}
	if err := s3Storage.EnsureBucket(ctx); err != nil {
		log.Warn("avatar bucket unavailable", zap.Error(err))
	}
	return s3Storage
}

// customErrorHandler turns errors returned by handlers into JSON
func customErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		log.Error("error handling request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}
