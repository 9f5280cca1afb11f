package config

import (
	"time"

	"github.com/BaSui01/agentgov/evaluator"
	"github.com/BaSui01/agentgov/events"
	"github.com/BaSui01/agentgov/notify"
	"github.com/BaSui01/agentgov/penalty"
	"github.com/BaSui01/agentgov/retraining"
)

// DefaultConfig returns the full default configuration. Governance policy
// defaults come from the owning packages.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Log:        DefaultLogConfig(),
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		JWT:        DefaultJWTConfig(),
		Governance: DefaultGovernanceConfig(),
	}
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultDatabaseConfig returns the default archive database configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentgov",
		Password:        "",
		Name:            "agentgov",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig returns the default Redis configuration. Disabled by
// default: events stay in-process until Redis is switched on.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentgov",
		SampleRate:   1.0,
	}
}

// DefaultJWTConfig returns the default JWT configuration. Disabled by
// default for local development.
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		Enabled: false,
	}
}

// DefaultGovernanceConfig returns the default governance policy.
func DefaultGovernanceConfig() GovernanceConfig {
	return GovernanceConfig{
		EvaluateInterval: 5 * time.Minute,
		Evaluator:        evaluator.DefaultConfig(),
		Penalty:          penalty.DefaultConfig(),
		Retraining:       retraining.DefaultConfig(),
		Dispatcher:       events.DefaultDispatcherConfig(),
		Notify:           notify.DefaultHubConfig(),
	}
}
