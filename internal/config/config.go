package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string // development, production

	// Mail
	EmailUser       string
	EmailPass       string
	EmailFromName   string
	AdminEmail      string
	SMTPHost        string
	SMTPPort        int
	SMTPImplicitTLS bool
	SMTPSendRate    int // messages per minute, 0 is unlimited
	DisableEmails   bool

	// PGPPublicKeyPath enables encryption of admin notices when set.
	PGPPublicKeyPath string

	// Uploads
	UploadDir string

	// Rate limiting
	RateLimitMax    int
	RateLimitWindow time.Duration

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxy bool

	Cors struct {
		AllowedOrigins []string
	}
}

// Load reads configuration from .env, the environment and command-line
// flags, in increasing order of precedence.
func Load() (*Config, error) {
	return load(flag.CommandLine, os.Args[1:])
}

func load(fs *flag.FlagSet, args []string) (*Config, error) {
	// Load .env file if it exists (don't error if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	fs.StringVar(&cfg.Port, "port", getEnv("PORT", "3001"), "Server port")
	fs.StringVar(&cfg.Env, "env", getEnv("ENV", "development"), "Environment (development, production)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.EmailUser = getEnv("EMAIL_USER", "")
	cfg.EmailPass = getEnv("EMAIL_PASS", "")
	cfg.EmailFromName = getEnv("EMAIL_FROM_NAME", "Driver Recruiting")
	cfg.AdminEmail = getEnv("ADMIN_EMAIL", "")
	cfg.SMTPHost = getEnv("SMTP_HOST", "smtp.gmail.com")
	cfg.PGPPublicKeyPath = getEnv("PGP_PUBLIC_KEY_PATH", "")
	cfg.UploadDir = getEnv("UPLOAD_DIR", "uploads")

	var errs []error
	var err error

	if cfg.SMTPPort, err = getEnvInt("SMTP_PORT", 587); err != nil {
		errs = append(errs, err)
	}
	if cfg.SMTPSendRate, err = getEnvInt("SMTP_SEND_RATE", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimitMax, err = getEnvInt("RATE_LIMIT_MAX", 10); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimitWindow, err = getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.SMTPImplicitTLS, err = getEnvBool("SMTP_IMPLICIT_TLS", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.DisableEmails, err = getEnvBool("DISABLE_EMAILS", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.TrustProxy, err = getEnvBool("TRUST_PROXY", false); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	// Parse CORS allowed origins from comma-separated env var
	for _, origin := range strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.Cors.AllowedOrigins = append(cfg.Cors.AllowedOrigins, trimmed)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if !c.DisableEmails {
		if c.AdminEmail == "" {
			return fmt.Errorf("ADMIN_EMAIL is required unless DISABLE_EMAILS=true")
		}
		if c.EmailUser == "" || c.EmailPass == "" {
			return fmt.Errorf("EMAIL_USER and EMAIL_PASS are required unless DISABLE_EMAILS=true")
		}
	}

	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.SMTPSendRate < 0 {
		return fmt.Errorf("SMTP_SEND_RATE must not be negative")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// FromAddress is the sender mailbox, which is the relay account.
func (c *Config) FromAddress() string {
	if c.EmailUser != "" {
		return c.EmailUser
	}
	return "noreply@localhost"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false: %w", key, err)
	}
	return b, nil
}

// getEnvDuration accepts Go durations ("15m") or a bare number of
// milliseconds ("900000").
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
