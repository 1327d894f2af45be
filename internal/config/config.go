// Package config loads process configuration from the environment, reading a
// .env file first when one is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// Config holds every setting of the service.
type Config struct {
	DatabaseURL string
	Port        string
	LogLevel    security.LogLevel
	AdminToken  string // empty disables the admin guard

	BlockerEnabled bool
	BlockerURL     string
	BlockerAPIKey  string
	BlockerTimeout time.Duration

	EncryptionKey    string
	EncryptionSalt   string
	EncryptorTimeout time.Duration
	VaultSize        int

	NATSURL          string // empty disables alert notifications
	NATSAlertSubject string

	KafkaBrokers    []string // empty disables audit export
	KafkaAuditTopic string

	PolicySeedFile string // empty seeds the built-in defaults

	AuditTimeout time.Duration // bound on one audit write, retries included

	TraceExporter string // none, stdout or otlp
	OTLPEndpoint  string
	OTLPInsecure  bool

	AnalyzeRateLimit    int
	BlockBurstThreshold int
	MaxPageLimit        int
}

// Trace exporters selectable through OTEL_TRACES_EXPORTER. With none, spans
// are still produced in process but not shipped anywhere.
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
	TraceExporterOTLP   = "otlp"
)

// Defaults returns the configuration used when variables are unset.
func Defaults() *Config {
	return &Config{
		Port:                "8080",
		LogLevel:            security.LogLevelInfo,
		BlockerTimeout:      5 * time.Second,
		EncryptionSalt:      "athier-field-encryption",
		EncryptorTimeout:    2 * time.Second,
		VaultSize:           10000,
		NATSAlertSubject:    "athier.alerts",
		KafkaAuditTopic:     "athier.audit",
		AuditTimeout:        2 * time.Second,
		TraceExporter:       TraceExporterNone,
		OTLPEndpoint:        "localhost:4317",
		OTLPInsecure:        true,
		AnalyzeRateLimit:    60,
		BlockBurstThreshold: 5,
		MaxPageLimit:        100,
	}
}

// Load reads .env (if any) and the environment. DATABASE_URL and
// ENCRYPTION_KEY are required; BLOCKER_URL is required when the blocker is enabled.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an environment lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Defaults()
	env := envReader{lookup: lookup}

	cfg.DatabaseURL = env.str("DATABASE_URL", "")
	cfg.Port = env.str("PORT", cfg.Port)
	cfg.LogLevel = security.ParseLogLevel(env.str("LOG_LEVEL", string(cfg.LogLevel)))
	cfg.AdminToken = env.str("ADMIN_TOKEN", "")

	cfg.BlockerEnabled = env.boolean("BLOCKER_ENABLED", false)
	cfg.BlockerURL = env.str("BLOCKER_URL", "")
	cfg.BlockerAPIKey = env.str("BLOCKER_API_KEY", "")
	cfg.BlockerTimeout = env.duration("BLOCKER_TIMEOUT", cfg.BlockerTimeout)

	cfg.EncryptionKey = env.str("ENCRYPTION_KEY", "")
	cfg.EncryptionSalt = env.str("ENCRYPTION_SALT", cfg.EncryptionSalt)
	cfg.EncryptorTimeout = env.duration("ENCRYPTOR_TIMEOUT", cfg.EncryptorTimeout)
	cfg.VaultSize = env.integer("VAULT_SIZE", cfg.VaultSize)

	cfg.NATSURL = env.str("NATS_URL", "")
	cfg.NATSAlertSubject = env.str("NATS_ALERT_SUBJECT", cfg.NATSAlertSubject)

	cfg.KafkaBrokers = splitList(env.str("KAFKA_BROKERS", ""))
	cfg.KafkaAuditTopic = env.str("KAFKA_AUDIT_TOPIC", cfg.KafkaAuditTopic)

	cfg.PolicySeedFile = env.str("POLICY_SEED_FILE", "")

	cfg.AuditTimeout = env.duration("AUDIT_TIMEOUT", cfg.AuditTimeout)

	cfg.TraceExporter = strings.ToLower(env.str("OTEL_TRACES_EXPORTER", cfg.TraceExporter))
	cfg.OTLPEndpoint = env.str("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.OTLPInsecure = env.boolean("OTEL_EXPORTER_OTLP_INSECURE", cfg.OTLPInsecure)

	cfg.AnalyzeRateLimit = env.integer("ANALYZE_RATE_LIMIT", cfg.AnalyzeRateLimit)
	cfg.BlockBurstThreshold = env.integer("BLOCK_BURST_THRESHOLD", cfg.BlockBurstThreshold)
	cfg.MaxPageLimit = env.integer("MAX_PAGE_LIMIT", cfg.MaxPageLimit)

	if len(env.errs) > 0 {
		return nil, errors.Join(env.errs...)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.EncryptionKey == "" {
		return errors.New("ENCRYPTION_KEY is required")
	}
	if c.BlockerEnabled && c.BlockerURL == "" {
		return errors.New("BLOCKER_URL is required when BLOCKER_ENABLED is true")
	}
	if c.VaultSize < 1 {
		return errors.New("VAULT_SIZE must be positive")
	}
	if c.AnalyzeRateLimit < 1 {
		return errors.New("ANALYZE_RATE_LIMIT must be positive")
	}
	if c.BlockBurstThreshold < 1 {
		return errors.New("BLOCK_BURST_THRESHOLD must be positive")
	}
	if c.MaxPageLimit < 1 {
		return errors.New("MAX_PAGE_LIMIT must be positive")
	}
	if c.AuditTimeout <= 0 {
		return errors.New("AUDIT_TIMEOUT must be positive")
	}
	switch c.TraceExporter {
	case TraceExporterNone, TraceExporterStdout, TraceExporterOTLP:
	default:
		return fmt.Errorf("OTEL_TRACES_EXPORTER must be one of none, stdout, otlp; got %q", c.TraceExporter)
	}
	return nil
}

// Security returns the security limits with the configured overrides applied.
func (c *Config) Security() *security.SecurityConfig {
	sc := security.DefaultSecurityConfig()
	sc.RateLimitAnalyze = c.AnalyzeRateLimit
	sc.AlertThresholdBlocks = c.BlockBurstThreshold
	sc.MaxPageLimit = c.MaxPageLimit
	if sc.DefaultPageLimit > sc.MaxPageLimit {
		sc.DefaultPageLimit = sc.MaxPageLimit
	}
	return sc
}

// envReader collects parse errors so every malformed variable is reported at once.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *envReader) boolean(key string, def bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, raw))
		return def
	}
	return v
}

func (e *envReader) integer(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return def
	}
	return v
}

// duration accepts Go durations ("750ms") or a bare number of seconds.
func (e *envReader) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, raw))
		return def
	}
	return v
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
