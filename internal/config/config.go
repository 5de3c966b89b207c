package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Auth     AuthConfig
	Cookie   CookieConfig
	Dev      DevConfig
	Checkout CheckoutConfig
	Storage  StorageConfig
	Email    EmailConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port         string
	Environment  string
	PublicURL    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RequestTimeout bounds the context handed to services per request.
	RequestTimeout time.Duration
	// AuthPortalURL is where anonymous visitors are sent to sign in.
	AuthPortalURL  string
	AllowedOrigins string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	PrivateKeyPath     string
	PublicKeyPath      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	KeyID              string
	// Previous key kept in the JWKS document during a rotation.
	RetiredPublicKeyPath string
	RetiredKeyID         string
}

type AuthConfig struct {
	MaxFailedLogins   int
	LockDuration      time.Duration
	MinPasswordLength int
}

// CookieConfig controls the cookie shared by every subdomain of RootDomain.
type CookieConfig struct {
	RootDomain  string
	SessionName string
	Secure      bool
	MaxAge      time.Duration
}

// DevConfig enables the development identity bypass. UserID is ignored
// unless Mode is true.
type DevConfig struct {
	Mode   bool
	UserID string
}

type CheckoutConfig struct {
	EndpointURL         string
	PriceID             string
	Mode                string
	PackAmount          int64
	FreeGrantAmount     int64
	StripeSecretKey     string
	StripeWebhookSecret string
	Timeout             time.Duration
}

type StorageConfig struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	UsePathStyle   bool
	PublicBaseURL  string
	MaxAvatarBytes int64
}

type EmailConfig struct {
	Enabled   bool
	APIKey    string
	FromEmail string
	FromName  string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			PublicURL:      getEnv("PUBLIC_URL", "http://localhost:8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			RequestTimeout: getDurationEnv("SERVER_REQUEST_TIMEOUT", 8*time.Second),
			AuthPortalURL:  getEnv("AUTH_PORTAL_URL", "https://enter.vibz.world"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "https://*.vibz.world"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "vibz"),
			Password: getEnv("DB_PASSWORD", "vibz"),
			DBName:   getEnv("DB_NAME", "vibzprofile"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			PrivateKeyPath:       getEnv("JWT_PRIVATE_KEY_PATH", "./keys/private.pem"),
			PublicKeyPath:        getEnv("JWT_PUBLIC_KEY_PATH", "./keys/public.pem"),
			AccessTokenExpiry:    getDurationEnv("JWT_ACCESS_EXPIRY", time.Hour),
			RefreshTokenExpiry:   getDurationEnv("JWT_REFRESH_EXPIRY", 30*24*time.Hour),
			Issuer:               getEnv("JWT_ISSUER", "vibz-profile"),
			KeyID:                getEnv("JWT_KEY_ID", "vibz-2025-01"),
			RetiredPublicKeyPath: getEnv("JWT_RETIRED_PUBLIC_KEY_PATH", ""),
			RetiredKeyID:         getEnv("JWT_RETIRED_KEY_ID", ""),
		},
		Auth: AuthConfig{
			MaxFailedLogins:   getIntEnv("AUTH_MAX_FAILED_LOGINS", 5),
			LockDuration:      getDurationEnv("AUTH_LOCK_DURATION", 15*time.Minute),
			MinPasswordLength: getIntEnv("AUTH_MIN_PASSWORD_LENGTH", 6),
		},
		Cookie: CookieConfig{
			RootDomain:  getEnv("COOKIE_ROOT_DOMAIN", ".vibz.world"),
			SessionName: getEnv("COOKIE_SESSION_NAME", "vibz-auth-token"),
			Secure:      getBoolEnv("COOKIE_SECURE", true),
			MaxAge:      getDurationEnv("COOKIE_MAX_AGE", 365*24*time.Hour),
		},
		Dev: DevConfig{
			Mode:   getBoolEnv("DEV_MODE", false),
			UserID: getEnv("DEV_USER_ID", ""),
		},
		Checkout: CheckoutConfig{
			EndpointURL:         getEnv("CHECKOUT_ENDPOINT_URL", "http://localhost:8080/functions/v1/stripe-checkout"),
			PriceID:             getEnv("CHECKOUT_PRICE_ID", ""),
			Mode:                getEnv("CHECKOUT_MODE", "payment"),
			PackAmount:          int64(getIntEnv("CHECKOUT_PACK_AMOUNT", 1000)),
			FreeGrantAmount:     int64(getIntEnv("FREE_VIBZ_AMOUNT", 100)),
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Timeout:             getDurationEnv("CHECKOUT_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			Endpoint:       getEnv("STORAGE_ENDPOINT", "http://localhost:9000"),
			Region:         getEnv("STORAGE_REGION", "us-east-1"),
			Bucket:         getEnv("STORAGE_BUCKET", "profile-images"),
			AccessKey:      getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey:      getEnv("STORAGE_SECRET_KEY", ""),
			UseSSL:         getBoolEnv("STORAGE_USE_SSL", false),
			UsePathStyle:   getBoolEnv("STORAGE_USE_PATH_STYLE", true),
			PublicBaseURL:  getEnv("STORAGE_PUBLIC_BASE_URL", ""),
			MaxAvatarBytes: int64(getIntEnv("STORAGE_MAX_AVATAR_BYTES", 5*1024*1024)),
		},
		Email: EmailConfig{
			Enabled:   getBoolEnv("EMAIL_ENABLED", false),
			APIKey:    getEnv("RESEND_API_KEY", ""),
			FromEmail: getEnv("EMAIL_FROM", "noreply@vibz.world"),
			FromName:  getEnv("EMAIL_FROM_NAME", "Vibz"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that cannot fall back to a default.
func (c *Config) Validate() error {
	if c.Cookie.RootDomain == "" {
		return errors.New("COOKIE_ROOT_DOMAIN is required")
	}
	if c.Cookie.SessionName == "" {
		return errors.New("COOKIE_SESSION_NAME is required")
	}
	if c.Dev.Mode && c.Dev.UserID != "" {
		if _, err := uuid.Parse(c.Dev.UserID); err != nil {
			return fmt.Errorf("DEV_USER_ID must be a UUID: %w", err)
		}
	}
	if c.Checkout.FreeGrantAmount <= 0 {
		return errors.New("FREE_VIBZ_AMOUNT must be positive")
	}
	if c.Email.Enabled && c.Email.APIKey == "" {
		return errors.New("RESEND_API_KEY is required when EMAIL_ENABLED=true")
	}
	return nil
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// DevUserID returns the development identity only when the bypass is on.
func (c *Config) DevUserID() (uuid.UUID, bool) {
	if !c.Dev.Mode || c.Dev.UserID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(c.Dev.UserID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
