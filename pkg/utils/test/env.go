// Package test holds helpers shared by tests that talk to real services.
package test

import (
	"os"
	"testing"
)

// EnvVars are the settings of a test that reaches a real service.
type EnvVars map[string]string

// NewEnvVars skips t unless every key is set to a non-empty value.
func NewEnvVars(t *testing.T, keys ...string) EnvVars {
	t.Helper()

	vars := EnvVars{}
	var missing []string
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			vars[key] = v
		} else {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		t.Skipf("skipping test, not set: %v", missing)
	}
	return vars
}

// Get returns the value of key. It panics for a key that was not requested
// in NewEnvVars.
func (e EnvVars) Get(key string) string {
	v, ok := e[key]
	if !ok {
		panic("env var was not requested: " + key)
	}
	return v
}
