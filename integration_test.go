package integration_test

import (
	"os"
	"testing"
)

// Integration tests require external services and are skipped by default.
// To run them locally set RUN_VIBARIANT_INTEGRATION=1 and start redis via docker-compose.
func TestIntegrationSkipByDefault(t *testing.T) {
	if os.Getenv("RUN_VIBARIANT_INTEGRATION") != "1" {
		t.Skip("integration tests skipped; set RUN_VIBARIANT_INTEGRATION=1 to run")
	}
	// placeholder: add integration tests that exercise the Redis-backed
	// history store and the full /v1/experiments/{id}/evaluate HTTP path.
}
