// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`

	// Queue/KV/Blob — the three AWS backends the reliable clients wrap.
	QueueURL   string `env:"QUEUE_URL,required"`
	TableName  string `env:"TABLE_NAME,required"`
	Bucket     string `env:"BUCKET_NAME,required"`
	AWSRegion  string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSProfile string `env:"AWS_PROFILE"`

	// Worker pool sizing.
	WorkerCount     int `env:"WORKER_COUNT" envDefault:"4"`
	SubprocessLimit int `env:"SUBPROCESS_LIMIT" envDefault:"8"`

	// Workspace is the scratch-directory root Compile/Verify materialize
	// sources into; one subdirectory per job, named by Job Identifier.
	WorkspaceRoot string `env:"WORKSPACE_ROOT" envDefault:"/tmp/zksync-worker"`

	// Purgatory.
	RetentionInterval      time.Duration `env:"RETENTION_INTERVAL" envDefault:"24h"`
	PurgatorySweepInterval time.Duration `env:"PURGATORY_SWEEP_INTERVAL" envDefault:"10s"`

	// Observability.
	MetricsPort     int    `env:"METRICS_PORT" envDefault:"9090"`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"zksync-contract-worker"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running under test.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }
