package external

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"emailer/internal/config"
	"emailer/internal/types"
)

// ClientRegistry holds the outbound clients shared by the services.
type ClientRegistry struct {
	Email EmailProvider
}

// RegistryOption configures NewClientRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	awsCfg  *aws.Config
	sesAPI  SESAPI
	policy  RetryPolicy
	wrapped bool
}

// WithAWSConfig reuses an already loaded AWS config.
func WithAWSConfig(cfg aws.Config) RegistryOption {
	return func(rc *registryConfig) { rc.awsCfg = &cfg }
}

// WithSESAPI injects the SES client, mostly for tests.
func WithSESAPI(api SESAPI) RegistryOption {
	return func(rc *registryConfig) { rc.sesAPI = api }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) RegistryOption {
	return func(rc *registryConfig) { rc.policy = p }
}

// WithoutResilience returns the bare provider.
func WithoutResilience() RegistryOption {
	return func(rc *registryConfig) { rc.wrapped = false }
}

// NewClientRegistry builds the mail provider selected by cfg.Mail. The debug
// mailer takes precedence over MAIL_PROVIDER.
func NewClientRegistry(ctx context.Context, cfg *config.Config, logger types.Logger, opts ...RegistryOption) (*ClientRegistry, error) {
	if logger == nil {
		logger = types.NopLogger{}
	}
	rc := &registryConfig{policy: DefaultRetryPolicy(), wrapped: true}
	for _, opt := range opts {
		opt(rc)
	}

	var provider EmailProvider
	switch {
	case cfg.Mail.DebugMailer:
		provider = NewDebugProvider(cfg.Mail.DebugDir)
	case cfg.Mail.Provider == config.ProviderSES:
		api := rc.sesAPI
		if api == nil {
			awsCfg, err := rc.loadAWS(ctx, cfg)
			if err != nil {
				return nil, err
			}
			provider = NewSESClient(awsCfg, SESClientConfig{
				ConfigSetName: cfg.Mail.SESConfigSet,
				EndpointURL:   cfg.AWS.EndpointURL,
			})
		} else {
			provider = NewSESClientWithAPI(api, SESClientConfig{ConfigSetName: cfg.Mail.SESConfigSet})
		}
	case cfg.Mail.Provider == config.ProviderSMTP:
		provider = NewSMTPClient(SMTPClientConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
			TLS:      cfg.Mail.SMTPTLS,
			SSL:      cfg.Mail.SMTPSSL,
			Timeout:  cfg.Mail.SMTPTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Mail.Provider)
	}

	logger.Info("Mail provider initialized",
		"provider", provider.Name(),
		"debug", cfg.Mail.DebugMailer,
	)

	if rc.wrapped && !cfg.Mail.DebugMailer {
		provider = NewResilientProvider(provider, rc.policy)
	}
	return &ClientRegistry{Email: provider}, nil
}

func (rc *registryConfig) loadAWS(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	if rc.awsCfg != nil {
		return *rc.awsCfg, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}
