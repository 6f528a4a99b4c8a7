// Package config defines the process configuration for the emailer services.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format aborts startup.
package config

import (
	"time"

	"emailer/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Mail provider identifiers.
const (
	ProviderSMTP = "smtp"
	ProviderSES  = "ses"
)

// Config is the top-level configuration struct.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"emailer"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Mail          MailConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	Emailer       EmailerConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8888"`
	// RootURL is the public URL of the API root, exposed to templates as root_url.
	RootURL          string        `envconfig:"ROOT_URL" default:"http://localhost:8888/v1/" validate:"required,url"`
	MaxBatchRequests int           `envconfig:"MAX_BATCH_REQUESTS" default:"25" validate:"min=1"`
	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
// URL is only required by the API server.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// MailQueueURL selects queued delivery when set. Messages are then
	// published to SQS and delivered by the queue worker.
	MailQueueURL string `envconfig:"MAIL_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// MailConfig holds the immediate delivery provider settings.
type MailConfig struct {
	Provider      string `envconfig:"MAIL_PROVIDER" default:"smtp" validate:"oneof=smtp ses"`
	DefaultSender string `envconfig:"MAIL_DEFAULT_SENDER" default:"emailer@localhost" validate:"required"`

	SMTPHost     string        `envconfig:"MAIL_HOST" default:"localhost"`
	SMTPPort     int           `envconfig:"MAIL_PORT" default:"25" validate:"min=1,max=65535"`
	SMTPUsername string        `envconfig:"MAIL_USERNAME"`
	SMTPPassword SecretString  `envconfig:"MAIL_PASSWORD"`
	SMTPTLS      bool          `envconfig:"MAIL_TLS" default:"false"`
	SMTPSSL      bool          `envconfig:"MAIL_SSL" default:"false"`
	SMTPTimeout  time.Duration `envconfig:"MAIL_TIMEOUT" default:"10s"`

	SESConfigSet string `envconfig:"MAIL_SES_CONFIGURATION_SET"`

	// DebugMailer writes messages to DebugDir instead of sending them.
	DebugMailer bool   `envconfig:"MAIL_DEBUG_MAILER" default:"false"`
	DebugDir    string `envconfig:"MAIL_DEBUG_DIR" default:"mail"`
}

// SecurityConfig holds the credentials accepted by the HTTP API.
// Authentication is disabled when AdminPasswordHash is empty.
type SecurityConfig struct {
	AdminUser         string       `envconfig:"ADMIN_USER" default:"admin"`
	AdminPasswordHash SecretString `envconfig:"ADMIN_PASSWORD_HASH"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Emailer"`
	EnableMetrics   bool   `envconfig:"METRICS_ENABLED" default:"false"`
}

// EmailerConfig holds the values exposed to hook templates through
// {settings[...]} placeholders.
type EmailerConfig struct {
	ProjectName string `envconfig:"PROJECT_NAME" default:"emailer"`
	ProjectDocs string `envconfig:"PROJECT_DOCS" default:"https://github.com/Kinto/kinto-emailer/"`
	// SettingsJSON is merged over the defaults, e.g. {"project_name": "Kinto DEV"}.
	SettingsJSON string `envconfig:"TEMPLATE_SETTINGS_JSON" validate:"omitempty,json"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// QueueEnabled reports whether messages go through the mail queue.
func (c *Config) QueueEnabled() bool {
	return c.AWS.MailQueueURL != ""
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
