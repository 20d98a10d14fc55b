package domain

import "strings"

// Credential is one API key together with the gateway/model pair it is valid
// for. Credentials are read-only configuration for the duration of a job.
type Credential struct {
	APIKey  string
	Gateway string
	Model   string
}

// KeyPool is an ordered, de-duplicated set of interchangeable credentials
// sharing the same gateway/model. Order determines the retry sequence.
type KeyPool []Credential

// NewKeyPool builds a pool from raw API keys, dropping blanks and duplicates
// while preserving first-seen order.
func NewKeyPool(gateway, model string, apiKeys []string) KeyPool {
	seen := make(map[string]struct{}, len(apiKeys))
	pool := make(KeyPool, 0, len(apiKeys))
	for _, key := range apiKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		pool = append(pool, Credential{APIKey: key, Gateway: gateway, Model: model})
	}
	return pool
}
