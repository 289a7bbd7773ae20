package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultJWTSecret = "change-me-in-production"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Cache    CacheConfig    `yaml:"cache"`
	Mail     MailConfig     `yaml:"mail"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Eurotax  EurotaxConfig  `yaml:"eurotax"`
}

type ServerConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	TrustedProxies     []string `yaml:"trusted_proxies"`
	AdminCIDRs         []string `yaml:"admin_cidrs"` // guards /admin/health and /debug/pprof
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	MaxBodyBytes       int64    `yaml:"max_body_bytes"`
	EnablePprof        bool     `yaml:"enable_pprof"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`    // file path for sqlite, connection string for postgres
}

type StorageConfig struct {
	Driver string   `yaml:"driver"` // "local" or "s3"
	Path   string   `yaml:"path"`   // local filesystem root
	S3     S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type AuthConfig struct {
	JWTSecret      string `yaml:"jwt_secret"`
	TokenDuration  string `yaml:"token_duration"` // e.g. "24h"
	OTPTTL         string `yaml:"otp_ttl"`        // e.g. "10m"
	OTPMaxAttempts int    `yaml:"otp_max_attempts"`
	WebAuthnRPID   string `yaml:"webauthn_rp_id"`
	WebAuthnOrigin string `yaml:"webauthn_origin"`
}

type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"` // empty selects the in-process cache
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	CategoryTTL   string `yaml:"category_ttl"`
}

type MailConfig struct {
	Driver       string `yaml:"driver"` // "log" or "smtp"
	From         string `yaml:"from"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
}

type JobsConfig struct {
	Workers        int    `yaml:"workers"`
	PollInterval   string `yaml:"poll_interval"`
	SweepInterval  string `yaml:"sweep_interval"`
	ListingTTLDays int    `yaml:"listing_ttl_days"`
	// WebhookAllowPrivate permits webhook deliveries to loopback and private
	// addresses. Leave it off outside local development.
	WebhookAllowPrivate bool `yaml:"webhook_allow_private"`
}

type EurotaxConfig struct {
	CSVPath string `yaml:"csv_path"` // optional; .gz accepted
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) ValidateServe() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("ILANHUB_JWT_SECRET must be set to a non-default value (example: ILANHUB_JWT_SECRET=dev-jwt-secret-change-this)")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("ILANHUB_JWT_SECRET must be at least 16 characters (current length: %d)", len(c.Auth.JWTSecret))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "local":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path must be configured")
		}
	case "s3":
		if c.Storage.S3.Endpoint == "" || c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.endpoint and storage.s3.bucket must be configured")
		}
	default:
		return fmt.Errorf("storage.driver must be local or s3, got %q", c.Storage.Driver)
	}
	switch c.Mail.Driver {
	case "log":
	case "smtp":
		if c.Mail.SMTPHost == "" || c.Mail.From == "" {
			return fmt.Errorf("mail.smtp_host and mail.from must be configured for the smtp driver")
		}
	default:
		return fmt.Errorf("mail.driver must be log or smtp, got %q", c.Mail.Driver)
	}
	for name, v := range map[string]string{
		"auth.token_duration": c.Auth.TokenDuration,
		"auth.otp_ttl":        c.Auth.OTPTTL,
		"cache.category_ttl":  c.Cache.CategoryTTL,
		"jobs.poll_interval":  c.Jobs.PollInterval,
		"jobs.sweep_interval": c.Jobs.SweepInterval,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (a AuthConfig) TokenTTL() time.Duration    { return durationOr(a.TokenDuration, 24*time.Hour) }
func (a AuthConfig) OTPValidity() time.Duration { return durationOr(a.OTPTTL, 10*time.Minute) }
func (c CacheConfig) CategoryCacheTTL() time.Duration {
	return durationOr(c.CategoryTTL, 10*time.Minute)
}
func (j JobsConfig) Poll() time.Duration  { return durationOr(j.PollInterval, time.Second) }
func (j JobsConfig) Sweep() time.Duration { return durationOr(j.SweepInterval, 5*time.Minute) }

// ListingTTL is how long an approved listing stays ACTIVE.
func (j JobsConfig) ListingTTL() time.Duration {
	days := j.ListingTTLDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

func durationOr(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			AdminCIDRs:   []string{"127.0.0.1/32", "::1/128"},
			MaxBodyBytes: 8 << 20,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "ilanhub.db",
		},
		Storage: StorageConfig{
			Driver: "local",
			Path:   "data/uploads",
		},
		Auth: AuthConfig{
			JWTSecret:      defaultJWTSecret,
			TokenDuration:  "24h",
			OTPTTL:         "10m",
			OTPMaxAttempts: 5,
			WebAuthnRPID:   "localhost",
			WebAuthnOrigin: "http://localhost:3000",
		},
		Cache: CacheConfig{
			CategoryTTL: "10m",
		},
		Mail: MailConfig{
			Driver:   "log",
			From:     "no-reply@ilanhub.local",
			SMTPPort: 587,
		},
		Jobs: JobsConfig{
			Workers:        2,
			PollInterval:   "1s",
			SweepInterval:  "5m",
			ListingTTLDays: 30,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}
	setList := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = parseCSV(v)
		}
	}

	setString("ILANHUB_HOST", &cfg.Server.Host)
	setInt("ILANHUB_PORT", &cfg.Server.Port)
	setList("ILANHUB_TRUSTED_PROXIES", &cfg.Server.TrustedProxies)
	setList("ILANHUB_ADMIN_CIDRS", &cfg.Server.AdminCIDRs)
	setList("ILANHUB_CORS_ALLOW_ORIGINS", &cfg.Server.CORSAllowedOrigins)
	if v := os.Getenv("ILANHUB_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n > 0 {
			cfg.Server.MaxBodyBytes = n
		}
	}

	setBool("ILANHUB_ENABLE_PPROF", &cfg.Server.EnablePprof)

	setString("ILANHUB_DB_DRIVER", &cfg.Database.Driver)
	setString("ILANHUB_DB_DSN", &cfg.Database.DSN)

	setString("ILANHUB_STORAGE_DRIVER", &cfg.Storage.Driver)
	setString("ILANHUB_STORAGE_PATH", &cfg.Storage.Path)
	setString("ILANHUB_S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	setString("ILANHUB_S3_BUCKET", &cfg.Storage.S3.Bucket)
	setString("ILANHUB_S3_REGION", &cfg.Storage.S3.Region)
	setString("ILANHUB_S3_ACCESS_KEY", &cfg.Storage.S3.AccessKey)
	setString("ILANHUB_S3_SECRET_KEY", &cfg.Storage.S3.SecretKey)
	setBool("ILANHUB_S3_USE_SSL", &cfg.Storage.S3.UseSSL)

	setString("ILANHUB_JWT_SECRET", &cfg.Auth.JWTSecret)
	setString("ILANHUB_TOKEN_DURATION", &cfg.Auth.TokenDuration)
	setString("ILANHUB_OTP_TTL", &cfg.Auth.OTPTTL)
	setInt("ILANHUB_OTP_MAX_ATTEMPTS", &cfg.Auth.OTPMaxAttempts)
	setString("ILANHUB_WEBAUTHN_RP_ID", &cfg.Auth.WebAuthnRPID)
	setString("ILANHUB_WEBAUTHN_ORIGIN", &cfg.Auth.WebAuthnOrigin)

	setString("ILANHUB_REDIS_ADDR", &cfg.Cache.RedisAddr)
	setString("ILANHUB_REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	setInt("ILANHUB_REDIS_DB", &cfg.Cache.RedisDB)
	setString("ILANHUB_CATEGORY_CACHE_TTL", &cfg.Cache.CategoryTTL)

	setString("ILANHUB_MAIL_DRIVER", &cfg.Mail.Driver)
	setString("ILANHUB_MAIL_FROM", &cfg.Mail.From)
	setString("ILANHUB_SMTP_HOST", &cfg.Mail.SMTPHost)
	setInt("ILANHUB_SMTP_PORT", &cfg.Mail.SMTPPort)
	setString("ILANHUB_SMTP_USER", &cfg.Mail.SMTPUser)
	setString("ILANHUB_SMTP_PASSWORD", &cfg.Mail.SMTPPassword)

	setInt("ILANHUB_JOB_WORKERS", &cfg.Jobs.Workers)
	setString("ILANHUB_JOB_POLL_INTERVAL", &cfg.Jobs.PollInterval)
	setBool("ILANHUB_WEBHOOK_ALLOW_PRIVATE", &cfg.Jobs.WebhookAllowPrivate)
	setString("ILANHUB_SWEEP_INTERVAL", &cfg.Jobs.SweepInterval)
	setInt("ILANHUB_LISTING_TTL_DAYS", &cfg.Jobs.ListingTTLDays)

	setString("ILANHUB_EUROTAX_CSV", &cfg.Eurotax.CSVPath)
}

func parseCSV(v string) []string {
	raw := strings.TrimSpace(v)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
