package app

import (
	"os"
	"sync"
)

const testModeEnv = "ATHENAEUM_TEST_MODE"

var (
	testModeOnce sync.Once
	testMode     bool
)

// InTestMode reports whether the process should skip runtime side effects
// such as binding listeners or dialing backends.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testMode = os.Getenv(testModeEnv) == "1"
	})
	return testMode
}
