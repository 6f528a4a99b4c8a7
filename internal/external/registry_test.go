package external

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emailer/internal/config"
)

func TestNewClientRegistry(t *testing.T) {
	cases := []struct {
		name     string
		mail     config.MailConfig
		opts     []RegistryOption
		wantType any
	}{
		{"smtp", config.MailConfig{Provider: config.ProviderSMTP}, nil, &ResilientProvider{}},
		{"smtp bare", config.MailConfig{Provider: config.ProviderSMTP}, []RegistryOption{WithoutResilience()}, &SMTPClient{}},
		{"ses", config.MailConfig{Provider: config.ProviderSES}, []RegistryOption{WithSESAPI(&mockSESAPI{}), WithoutResilience()}, &SESClient{}},
		{"debug wins", config.MailConfig{Provider: config.ProviderSES, DebugMailer: true, DebugDir: "mail"}, nil, &DebugProvider{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{Mail: tc.mail}

			reg, err := NewClientRegistry(context.Background(), cfg, nil, tc.opts...)

			require.NoError(t, err)
			assert.IsType(t, tc.wantType, reg.Email)
		})
	}
}

func TestNewClientRegistry_UnknownProvider(t *testing.T) {
	_, err := NewClientRegistry(context.Background(), &config.Config{Mail: config.MailConfig{Provider: "pigeon"}}, nil)
	assert.Error(t, err)
}
