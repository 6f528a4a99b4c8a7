package config

import "context"

// SecretProvider fetches secret values by parameter path. Implementations
// return only the keys they resolved.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
