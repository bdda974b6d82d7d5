package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds application configuration values loaded from environment variables.
type Config struct {
	HTTPPort       string
	DatabaseDriver string // postgres, mysql or sqlite
	DatabaseURL    string

	JWTSecret       string
	TokenExpiration time.Duration
	RefreshTTL      time.Duration
	EncryptionKey   []byte // Raw key bytes (32 for AES-256)

	AIServiceURL     string
	AIServiceTimeout time.Duration

	PayPal PayPalConfig

	AllowedOrigins []string
	AdminEmails    []string

	LogLevel  string
	LogFormat string

	SubscriptionSweepSpec  string
	PendingSubscriptionTTL time.Duration
}

// PayPalConfig configures the billing provider client.
type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	PlanIDs      map[string]string // tier -> provider plan id
	ReturnURL    string
	CancelURL    string
}

var (
	ErrMissingDatabaseURL   = errors.New("DATABASE_URL environment variable is not set")
	ErrMissingEncryptionKey = errors.New("ENCRYPTION_KEY environment variable is not set")
	ErrInvalidEncryptionKey = errors.New("ENCRYPTION_KEY must be 64 hex characters")
	ErrUnsupportedDriver    = errors.New("DATABASE_DRIVER must be postgres, mysql or sqlite")
)

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded, using environment only: %v", err)
	}

	driver := getEnv("DATABASE_DRIVER", "postgres")
	switch driver {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("%w (got %q)", ErrUnsupportedDriver, driver)
	}

	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil, ErrMissingDatabaseURL
	}

	encryptionKeyHex := getEnv("ENCRYPTION_KEY", "")
	if encryptionKeyHex == "" {
		return nil, ErrMissingEncryptionKey
	}
	key, err := hex.DecodeString(encryptionKeyHex)
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidEncryptionKey
	}

	cfg := &Config{
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		DatabaseDriver:   driver,
		DatabaseURL:      dbURL,
		JWTSecret:        getEnv("JWT_SECRET", "default-super-secret-key"),
		TokenExpiration:  time.Hour * time.Duration(getEnvInt("JWT_EXPIRATION_HOURS", 24)),
		RefreshTTL:       time.Hour * time.Duration(getEnvInt("REFRESH_EXPIRATION_HOURS", 24*30)),
		EncryptionKey:    key,
		AIServiceURL:     strings.TrimRight(getEnv("AI_SERVICE_URL", "http://localhost:8000"), "/"),
		AIServiceTimeout: time.Second * time.Duration(getEnvInt("AI_SERVICE_TIMEOUT_SECONDS", 120)),
		PayPal: PayPalConfig{
			BaseURL:      strings.TrimRight(getEnv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"), "/"),
			ClientID:     getEnv("PAYPAL_CLIENT_ID", ""),
			ClientSecret: getEnv("PAYPAL_CLIENT_SECRET", ""),
			PlanIDs: map[string]string{
				"bronce": getEnv("PAYPAL_PLAN_BRONCE", ""),
				"plata":  getEnv("PAYPAL_PLAN_PLATA", ""),
				"oro":    getEnv("PAYPAL_PLAN_ORO", ""),
			},
			ReturnURL: getEnv("PAYPAL_RETURN_URL", "http://localhost:5173/suscripcion/confirmar"),
			CancelURL: getEnv("PAYPAL_CANCEL_URL", "http://localhost:5173/suscripcion"),
		},
		AllowedOrigins:         splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		AdminEmails:            splitList(strings.ToLower(getEnv("ADMIN_EMAILS", ""))),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "text"),
		SubscriptionSweepSpec:  getEnv("SUBSCRIPTION_SWEEP_SPEC", "@every 1h"),
		PendingSubscriptionTTL: time.Hour * time.Duration(getEnvInt("PENDING_SUBSCRIPTION_TTL_HOURS", 24)),
	}

	logrus.Infof("Loaded config: Port=%s, Driver=%s, DB_URL=***, TokenExp=%s, AIService=%s, EncryptionKey=***",
		cfg.HTTPPort, cfg.DatabaseDriver, cfg.TokenExpiration, cfg.AIServiceURL)

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		logrus.Warnf("Invalid %s '%s', using default %d", key, raw, fallback)
		return fallback
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
