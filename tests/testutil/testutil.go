package testutil

import (
	"os"
	"testing"
)

// MustSetTestEnvironment pins GO_ENV=test for the rest of the test binary.
// Config and database helpers refuse to run without it.
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()

	if os.Getenv("GO_ENV") == "test" {
		return
	}
	if err := os.Setenv("GO_ENV", "test"); err != nil {
		t.Fatalf("cannot pin GO_ENV=test: %v", err)
	}
}
