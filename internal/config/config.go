// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, rate limiting, conversation, notification and
// observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "boxquote")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RateConfig defines the fixed-window limits of the public quote API.
type RateConfig struct {
	Window             time.Duration // RATE_WINDOW
	AnonLimit          int           // RATE_ANON_LIMIT, requests per window without a key
	KeyLimit           int           // RATE_KEY_LIMIT, default per-window limit for valid keys
	CredentialCacheTTL time.Duration // CREDENTIAL_CACHE_TTL
}

// NotifyConfig defines the outbound notification dispatcher.
type NotifyConfig struct {
	QueueSize  int     // NOTIFY_QUEUE_SIZE
	Workers    int     // NOTIFY_WORKERS
	RPS        float64 // NOTIFY_RPS, sends per second across workers
	WebhookURL string  // NOTIFY_WEBHOOK_URL; empty logs notifications only
	SalesTo    string  // NOTIFY_SALES_TO, recipient of lead and high-value notices

	KafkaBrokers []string // NOTIFY_KAFKA_BROKERS, comma separated; empty disables
	KafkaTopic   string   // NOTIFY_KAFKA_TOPIC
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN
	DBMaxConns  int
	RedisURL    string // empty keeps counters and credentials in process memory

	// Pricing
	FallbackPricingPath string  // optional YAML; empty uses the built-in defaults
	HighValueThreshold  float64 // subtotal that triggers a sales notification

	// Conversation
	SessionTimeout    time.Duration // inactivity window
	AdvisorAddress    string        // who receives escalations
	ClassifierEnabled bool          // consult the intent classifier on parser misses
	ClassifierPath    string        // optional JSON examples for the classifier
	MaxMessageRunes   int

	// Rate limiting
	Rate RateConfig

	// Notifications
	Notify NotifyConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Internal endpoints
	InternalToken string // shared secret for /internal routes; empty disables them

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:      getenv("DB_PATH", "boxquote.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		DBMaxConns:  getint("DB_MAX_CONNS", 10),
		RedisURL:    getenv("REDIS_URL", ""),

		// Pricing
		FallbackPricingPath: getenv("FALLBACK_PRICING_PATH", ""),
		HighValueThreshold:  getfloat("HIGH_VALUE_THRESHOLD", 500000),

		// Conversation
		SessionTimeout:    getdur("SESSION_TIMEOUT", 30*time.Minute),
		AdvisorAddress:    getenv("ADVISOR_ADDRESS", ""),
		ClassifierEnabled: getbool("CLASSIFIER_ENABLED", true),
		ClassifierPath:    getenv("CLASSIFIER_EXAMPLES_PATH", ""),
		MaxMessageRunes:   getint("MAX_MESSAGE_RUNES", 4000),

		// Rate limiting
		Rate: RateConfig{
			Window:             getdur("RATE_WINDOW", time.Minute),
			AnonLimit:          getint("RATE_ANON_LIMIT", 10),
			KeyLimit:           getint("RATE_KEY_LIMIT", 100),
			CredentialCacheTTL: getdur("CREDENTIAL_CACHE_TTL", 5*time.Minute),
		},

		// Notifications
		Notify: NotifyConfig{
			QueueSize:  getint("NOTIFY_QUEUE_SIZE", 256),
			Workers:    getint("NOTIFY_WORKERS", 2),
			RPS:        getfloat("NOTIFY_RPS", 5),
			WebhookURL: getenv("NOTIFY_WEBHOOK_URL", ""),
			SalesTo:    getenv("NOTIFY_SALES_TO", ""),

			KafkaBrokers: splitCSV(getenv("NOTIFY_KAFKA_BROKERS", "")),
			KafkaTopic:   getenv("NOTIFY_KAFKA_TOPIC", "boxquote.notifications"),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		InternalToken: getenv("INTERNAL_TOKEN", ""),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "boxquote"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DBDriver == "postgresql" {
		cfg.DBDriver = "postgres"
	}
	if cfg.Notify.SalesTo == "" {
		cfg.Notify.SalesTo = cfg.AdvisorAddress
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.DBMaxConns < 1 {
		return cfg, errors.New("DB_MAX_CONNS must be >= 1")
	}
	if cfg.HighValueThreshold < 0 {
		return cfg, errors.New("HIGH_VALUE_THRESHOLD must be >= 0")
	}
	if cfg.SessionTimeout <= 0 {
		return cfg, errors.New("SESSION_TIMEOUT must be > 0")
	}
	if cfg.MaxMessageRunes < 1 {
		return cfg, errors.New("MAX_MESSAGE_RUNES must be >= 1")
	}
	if cfg.Rate.Window <= 0 {
		return cfg, errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.Rate.AnonLimit < 1 || cfg.Rate.KeyLimit < 1 {
		return cfg, errors.New("RATE_ANON_LIMIT and RATE_KEY_LIMIT must be >= 1")
	}
	if cfg.Rate.CredentialCacheTTL <= 0 {
		return cfg, errors.New("CREDENTIAL_CACHE_TTL must be > 0")
	}
	if cfg.Notify.QueueSize < 1 || cfg.Notify.Workers < 1 {
		return cfg, errors.New("NOTIFY_QUEUE_SIZE and NOTIFY_WORKERS must be >= 1")
	}
	if cfg.Notify.RPS <= 0 {
		return cfg, errors.New("NOTIFY_RPS must be > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
