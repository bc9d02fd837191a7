package config

import "context"

// SecretProvider resolves secret values by key. SSMProvider serves deployed
// environments; EnvVarProvider serves local runs and tests.
type SecretProvider interface {
	// GetParametersBatch returns plaintext values keyed by the requested
	// key. Keys that do not exist are omitted from the map.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
