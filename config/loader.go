package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentgov/evaluator"
	"github.com/BaSui01/agentgov/events"
	"github.com/BaSui01/agentgov/notify"
	"github.com/BaSui01/agentgov/penalty"
	"github.com/BaSui01/agentgov/retraining"
)

// Config is the complete AgentGov configuration. Precedence is defaults,
// then the YAML file, then environment variables. Environment overrides
// cover the infrastructure sections; governance policy is YAML-only.
type Config struct {
	// Server is the HTTP server configuration.
	Server ServerConfig `yaml:"server" env:"SERVER"`
	// Log is the logging configuration.
	Log LogConfig `yaml:"log" env:"LOG"`
	// Database backs the governance archive.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
	// Redis backs the event exchange.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// Telemetry is the OpenTelemetry export configuration.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	// JWT configures API authentication.
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
	// Governance is the policy configuration for the governance loop.
	Governance GovernanceConfig `yaml:"governance" env:"-"`
}

// ServerConfig is the HTTP server configuration.
type ServerConfig struct {
	// HTTPPort is the API listen port.
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// MetricsPort is the Prometheus scrape port.
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// ReadTimeout bounds reading the request.
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// WriteTimeout bounds writing the response.
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// RateLimitRPS is the per-client request rate.
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// RateLimitBurst is the per-client burst allowance.
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// TLSCertFile enables TLS when set together with TLSKeyFile.
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	// TLSKeyFile is the private key matching TLSCertFile.
	TLSKeyFile string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// LogConfig is the zap logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are the log sinks.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with the call site.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace attaches stack traces at error level.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// DatabaseConfig is the archive database configuration.
type DatabaseConfig struct {
	// Driver is one of postgres, mysql, sqlite.
	Driver string `yaml:"driver" env:"DRIVER"`
	// Host is the database host.
	Host string `yaml:"host" env:"HOST"`
	// Port is the database port.
	Port int `yaml:"port" env:"PORT"`
	// User is the database user.
	User string `yaml:"user" env:"USER"`
	// Password is the database password.
	Password string `yaml:"password" env:"PASSWORD"`
	// Name is the database name, or the file path for sqlite.
	Name string `yaml:"name" env:"NAME"`
	// SSLMode is the postgres SSL mode.
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// MaxOpenConns caps open connections.
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// MaxIdleConns caps idle connections.
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// ConnMaxLifetime recycles connections past this age.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RedisConfig is the event-exchange Redis configuration.
type RedisConfig struct {
	// Enabled selects the Redis exchange; when false events stay in-process.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Addr is host:port.
	Addr string `yaml:"addr" env:"ADDR"`
	// Password is the Redis password.
	Password string `yaml:"password" env:"PASSWORD"`
	// DB is the Redis database number.
	DB int `yaml:"db" env:"DB"`
	// MaxRetries caps per-command retries.
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// PoolSize is the connection pool size.
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// MinIdleConns is the idle connection floor.
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// TelemetryConfig is the OpenTelemetry configuration.
type TelemetryConfig struct {
	// Enabled turns tracing and metric export on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLPEndpoint is the collector gRPC endpoint.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// ServiceName identifies this service in traces.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// SampleRate is the trace sampling ratio in [0,1].
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// JWTConfig configures Bearer-token authentication on the API. Both HMAC
// (Secret, HS256) and RSA (PublicKey, RS256) verification are supported.
type JWTConfig struct {
	// Enabled turns authentication on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Secret is the HS256 shared secret.
	Secret string `yaml:"secret" env:"SECRET"`
	// PublicKey is the PEM-encoded RS256 public key.
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	// Issuer, when set, is required in the iss claim.
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// Audience, when set, is required in the aud claim.
	Audience string `yaml:"audience" env:"AUDIENCE"`
}

// GovernanceConfig groups the governance policy sections. Each section is
// the owning package's config type, so YAML keys match the package docs.
type GovernanceConfig struct {
	// EvaluateInterval is how often the fleet-wide evaluation runs.
	EvaluateInterval time.Duration `yaml:"evaluate_interval"`
	// Evaluator tunes trigger thresholds, anomaly detection, and fairness.
	Evaluator evaluator.Config `yaml:"evaluator"`
	// Penalty tunes the penalty state machine.
	Penalty penalty.Config `yaml:"penalty"`
	// Retraining tunes the curriculum stages.
	Retraining retraining.Config `yaml:"retraining"`
	// Dispatcher tunes the event queue.
	Dispatcher events.DispatcherConfig `yaml:"dispatcher"`
	// Notify tunes the WebSocket notification hub.
	Notify notify.HubConfig `yaml:"notify"`
}

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a Loader with the AGENTGOV environment prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTGOV",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then the YAML file if one was
// given, then environment overrides, then the validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile merges the YAML file over cfg. A missing file is not an
// error; the defaults stand.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// setFieldsFromEnv walks the struct and applies PREFIX_SECTION_FIELD
// environment variables to fields carrying an env tag.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue parses value into the field. time.Duration fields accept Go
// duration syntax; string slices accept comma-separated values.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration or panics. Intended for main.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads from defaults and environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the configuration for structural mistakes.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}

	switch c.Database.Driver {
	case "", "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis enabled without an address")
	}
	if c.JWT.Enabled && c.JWT.Secret == "" && c.JWT.PublicKey == "" {
		errs = append(errs, "jwt enabled without a secret or public key")
	}
	if c.Governance.EvaluateInterval < 0 {
		errs = append(errs, "evaluate_interval must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the database connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
