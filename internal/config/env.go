package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/markdave123-py/samurai-chat/internal/core"
)

const (
	EngineWebhook = "webhook"
	EngineGemini  = "gemini"

	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Config is built once at process start and shared read-only afterwards.
type Config struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	LogLevel    string   `yaml:"log_level"`

	DatabaseDriver string `yaml:"database_driver"`
	DatabaseURL    string `yaml:"database_url"`
	SslCertPath    string `yaml:"ssl_cert_path"`

	JWTSecret string `yaml:"jwt_secret"`

	UserDataRoot   string `yaml:"user_data_root"`
	ResourcesDir   string `yaml:"resources_dir"`
	MaxNameProbes  int    `yaml:"max_name_probes"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	ContextWorkers int    `yaml:"context_workers"`

	EngineBackend        string        `yaml:"engine_backend"`
	EngineWebhookURL     string        `yaml:"engine_webhook_url"`
	EngineSecret         string        `yaml:"engine_secret"`
	EngineCallbackSecret string        `yaml:"engine_callback_secret"`
	DispatchTimeout      time.Duration `yaml:"-"`
	DispatchRetries      int           `yaml:"dispatch_retries"`
	DispatchRetryDelay   time.Duration `yaml:"-"`

	DispatchTimeoutRaw    string `yaml:"dispatch_timeout"`
	DispatchRetryDelayRaw string `yaml:"dispatch_retry_delay"`

	AIAPIKey string `yaml:"gemini_api_key"`
	GenModel string `yaml:"gen_model"`

	AwsAccessKey string `yaml:"aws_access_key"`
	AwsSecretKey string `yaml:"aws_secret_key"`
	AwsRegion    string `yaml:"aws_region"`
	MirrorBucket string `yaml:"mirror_bucket"`
}

// defaults returns the configuration used when nothing else is set.
func defaults() *Config {
	return &Config{
		Port:               "8080",
		CORSOrigins:        []string{"http://localhost:5173"},
		LogLevel:           "info",
		DatabaseDriver:     DriverPostgres,
		MaxNameProbes:      1000,
		MaxUploadBytes:     32 << 20,
		ContextWorkers:     4,
		EngineBackend:      EngineWebhook,
		DispatchTimeout:    30 * time.Second,
		DispatchRetries:    1,
		DispatchRetryDelay: 500 * time.Millisecond,
		GenModel:           "gemini-1.5-flash",
		AwsRegion:          "us-east-2",
	}
}

// LoadConfig loads .env, then the optional YAML file named by CONFIG_FILE,
// then environment overrides, and validates the result.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// loadFile reads a YAML config file, expanding ${VAR} references first.
func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading config file: %v", core.ErrConfig, err)
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(raw), func(m string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(m)[1])
	})

	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("%w: parsing config file: %v", core.ErrConfig, err)
	}

	if c.DispatchTimeoutRaw != "" {
		d, err := time.ParseDuration(c.DispatchTimeoutRaw)
		if err != nil {
			return fmt.Errorf("%w: dispatch_timeout: %v", core.ErrConfig, err)
		}
		c.DispatchTimeout = d
	}
	if c.DispatchRetryDelayRaw != "" {
		d, err := time.ParseDuration(c.DispatchRetryDelayRaw)
		if err != nil {
			return fmt.Errorf("%w: dispatch_retry_delay: %v", core.ErrConfig, err)
		}
		c.DispatchRetryDelay = d
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	if v := getEnv("CORS_ORIGINS", ""); v != "" {
		c.CORSOrigins = splitList(v)
	}
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.DatabaseDriver = getEnv("DATABASE_DRIVER", c.DatabaseDriver)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.SslCertPath = getEnv("SSL_CERT_PATH", c.SslCertPath)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)

	c.UserDataRoot = getEnv("PATH_TO_USER_CONTEXT_DATA", c.UserDataRoot)
	c.ResourcesDir = getEnv("PATH_TO_PROJECT_RESOURCES", c.ResourcesDir)
	c.MaxNameProbes = getEnvInt("MAX_NAME_PROBES", c.MaxNameProbes)
	c.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.ContextWorkers = getEnvInt("CONTEXT_WORKERS", c.ContextWorkers)

	c.EngineBackend = getEnv("ENGINE_BACKEND", c.EngineBackend)
	c.EngineWebhookURL = getEnv("ENGINE_WEBHOOK_URL", getEnv("URL_LANGFLOW_WEBHOOK", c.EngineWebhookURL))
	c.EngineSecret = getEnv("ENGINE_SECRET", c.EngineSecret)
	c.EngineCallbackSecret = getEnv("ENGINE_CALLBACK_SECRET", c.EngineCallbackSecret)
	c.DispatchTimeout = getEnvDuration("DISPATCH_TIMEOUT", c.DispatchTimeout)
	c.DispatchRetries = getEnvInt("DISPATCH_RETRIES", c.DispatchRetries)
	c.DispatchRetryDelay = getEnvDuration("DISPATCH_RETRY_DELAY", c.DispatchRetryDelay)

	c.AIAPIKey = getEnv("GEMINI_API_KEY", c.AIAPIKey)
	c.GenModel = getEnv("GEN_MODEL", c.GenModel)

	c.AwsAccessKey = getEnv("AWS_ACCESS_KEY", c.AwsAccessKey)
	c.AwsSecretKey = getEnv("AWS_SECRET_KEY", c.AwsSecretKey)
	c.AwsRegion = getEnv("AWS_REGION", c.AwsRegion)
	c.MirrorBucket = getEnv("MIRROR_BUCKET", c.MirrorBucket)
}

// Validate reports the first configuration fault, wrapped in core.ErrConfig.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", core.ErrConfig, fmt.Sprintf(format, args...))
	}

	if c.DatabaseURL == "" {
		return fail("DATABASE_URL not set")
	}
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fail("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver)
	}
	if c.JWTSecret == "" {
		return fail("JWT_SECRET not set")
	}
	if c.UserDataRoot == "" {
		return fail("PATH_TO_USER_CONTEXT_DATA not set")
	}
	if c.ResourcesDir == "" && c.MirrorBucket == "" {
		return fail("PATH_TO_PROJECT_RESOURCES not set")
	}
	if c.MaxNameProbes < 1 {
		return fail("MAX_NAME_PROBES must be positive, got %d", c.MaxNameProbes)
	}
	if c.ContextWorkers < 1 {
		return fail("CONTEXT_WORKERS must be positive, got %d", c.ContextWorkers)
	}
	if c.MaxUploadBytes < 1 {
		return fail("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.DispatchTimeout <= 0 {
		return fail("DISPATCH_TIMEOUT must be positive, got %s", c.DispatchTimeout)
	}
	if c.DispatchRetries < 0 || c.DispatchRetries > 3 {
		return fail("DISPATCH_RETRIES must be 0-3, got %d", c.DispatchRetries)
	}

	switch c.EngineBackend {
	case EngineWebhook:
		if c.EngineWebhookURL == "" {
			return fail("ENGINE_WEBHOOK_URL not set")
		}
		u, err := url.Parse(c.EngineWebhookURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fail("ENGINE_WEBHOOK_URL is not an absolute URL")
		}
	case EngineGemini:
		if c.AIAPIKey == "" {
			return fail("GEMINI_API_KEY not set")
		}
	default:
		return fail("ENGINE_BACKEND must be %q or %q, got %q", EngineWebhook, EngineGemini, c.EngineBackend)
	}

	if c.MirrorBucket != "" && (c.AwsAccessKey == "" || c.AwsSecretKey == "") {
		return fail("AWS credentials not set for MIRROR_BUCKET")
	}
	return nil
}

// SlogLevel maps LogLevel onto slog levels, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config value is not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
