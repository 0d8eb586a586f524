package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/assetworks/assetauth/pkg/jwtx"
)

type Config struct {
	Issuer   string   // Required: issuer claim for tokens
	Audience []string // Optional: audience claim for tokens

	Algorithm     string // Optional: JWT signing algorithm (RS256, RS384, RS512) (default: RS256)
	RSABits       int    // Optional: RSA key size (2048, 3072, 4096) (default: 2048)
	MasterKeyPath string // Optional: path to master encryption key file for private keys at rest
	DatabaseFile  string // Optional: path to SQLite database file (default: ./auth.db)
	PepperFile    string // Optional: path to file containing pepper for password hashing (default: ./pepper)

	AccessTokenTTL  time.Duration // Access token lifetime (default: 60m)
	RefreshTokenTTL time.Duration // Refresh token lifetime (default: 7d)
	RememberMeTTL   time.Duration // Refresh lifetime with remember-me (default: 30d)

	TwoFactorIssuer string // Issuer label shown in authenticator apps (default: AssetWorks)
	RedisAddr       string // Optional: redis address for the 2FA bridge store (empty = in-memory)
	RedisPassword   string // Optional: redis password

	DefaultScopes []string // Scopes granted on login (default: assets:read assets:write)

	// Initial admin account, created only when the user table is empty.
	AdminUsername string
	AdminEmail    string
	AdminPassword string

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:        os.Getenv("AUTH_ISSUER"),
		Algorithm:     getEnvOrDefault("AUTH_ALGORITHM", "RS256"),
		MasterKeyPath: os.Getenv("AUTH_MASTER_KEY_PATH"),
		DatabaseFile:  getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:    getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		AccessTokenTTL:  getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTokenTTL: getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),
		RememberMeTTL:   getEnvDurationOrDefault("AUTH_REMEMBER_ME_TTL", jwtx.DefaultRememberMeTTL),

		TwoFactorIssuer: getEnvOrDefault("AUTH_2FA_ISSUER", "AssetWorks"),
		RedisAddr:       os.Getenv("AUTH_REDIS_ADDR"),
		RedisPassword:   os.Getenv("AUTH_REDIS_PASSWORD"),

		AdminUsername: getEnvOrDefault("AUTH_ADMIN_USERNAME", "admin"),
		AdminEmail:    getEnvOrDefault("AUTH_ADMIN_EMAIL", "admin@localhost"),
		AdminPassword: os.Getenv("AUTH_ADMIN_PASSWORD"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if audience := os.Getenv("AUTH_AUDIENCE"); audience != "" {
		cfg.Audience = strings.Fields(audience)
	}

	cfg.DefaultScopes = strings.Fields(getEnvOrDefault("AUTH_DEFAULT_SCOPES", "assets:read assets:write"))

	if rsaBitsStr := os.Getenv("AUTH_RSA_BITS"); rsaBitsStr != "" {
		if bits, err := strconv.Atoi(rsaBitsStr); err == nil {
			cfg.RSABits = bits
		}
		// If parsing fails, RSABits remains 0 (key manager uses its default)
	}

	if cfg.Issuer == "" {
		cfg.Issuer = "assetauth"
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
