package testing

import (
	"os"
	stdtesting "testing"
)

// Set before any package under test initialises so handlers never bind
// listeners or reach for a live gotenberg.
func init() {
	_ = os.Setenv("ATHENAEUM_TEST_MODE", "1")
	if os.Getenv("GOTENBERG_URL") == "" {
		_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
	}
}

func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
