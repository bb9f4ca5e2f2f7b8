package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "jwt-secret", "password",
}

var supportedJWTAlgorithms = []string{"HS256", "HS384", "HS512"}

type Config struct {
	Port                 int      `env:"PORT" envDefault:"8080"`
	AppEnv               string   `env:"APP_ENV" envDefault:"development"`
	DatabaseURL          string   `env:"DATABASE_URL,required"`
	RedisURL             string   `env:"REDIS_URL,required"`
	BotToken             string   `env:"BOT_TOKEN"`
	BotURL               string   `env:"BOT_URL" envDefault:"https://t.me/standup_bot"`
	JWTSecret            string   `env:"JWT_SECRET,required"`
	JWTAlgorithm         string   `env:"JWT_ALGORITHM" envDefault:"HS256"`
	JWTTTLHours          int      `env:"JWT_TTL_HOURS" envDefault:"48"`
	ConfirmTokenTTLHours int      `env:"CONFIRM_TOKEN_TTL_HOURS" envDefault:"0"`
	SessionTTLSeconds    int      `env:"SESSION_TTL_SECONDS" envDefault:"600"`
	SingleUseClaims      bool     `env:"SINGLE_USE_CLAIMS" envDefault:"false"`
	SignSignatureField   bool     `env:"TELEGRAM_SIGN_SIGNATURE_FIELD" envDefault:"false"`
	EncryptionKey        string   `env:"ENCRYPTION_KEY"`
	Debug                bool     `env:"DEBUG" envDefault:"false"`
	DebugPasswordHash    string   `env:"DEBUG_PASSWORD_HASH"`
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	LogLevel             string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat            string   `env:"LOG_FORMAT" envDefault:"console"`
}

func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLHours) * time.Hour
}

// ConfirmTokenTTL is zero by default: tokens minted through the bot
// confirmation flow carry no expiry.
func (c *Config) ConfirmTokenTTL() time.Duration {
	return time.Duration(c.ConfirmTokenTTLHours) * time.Hour
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) Validate(isProduction bool) error {
	if !isSupportedAlgorithm(c.JWTAlgorithm) {
		return fmt.Errorf("JWT_ALGORITHM must be one of %s", strings.Join(supportedJWTAlgorithms, ", "))
	}

	if c.SessionTTLSeconds <= 0 {
		return fmt.Errorf("SESSION_TTL_SECONDS must be positive")
	}

	if c.DebugPasswordHash != "" {
		if !strings.HasPrefix(c.DebugPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.DebugPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.DebugPasswordHash, "$2y$") {
			return fmt.Errorf("DEBUG_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if c.BotToken == "" {
			return fmt.Errorf("BOT_TOKEN is required in production")
		}
		if c.Debug {
			log.Warn().Msg("DEBUG is enabled in production: debug endpoints are reachable")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: client tokens are stored in redis unencrypted")
		}
	} else if c.BotToken == "" {
		log.Warn().Msg("BOT_TOKEN is empty: telegram init data verification will reject every payload")
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func isSupportedAlgorithm(alg string) bool {
	for _, a := range supportedJWTAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}

// Load reads an optional .env file and then parses the environment.
// Variables already present in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
