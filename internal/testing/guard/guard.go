package guard

import "os"

// Imported for effect by package tests outside the root testing package.
// Leaves an explicit operator-set value alone.
func init() {
	if os.Getenv("ATHENAEUM_TEST_MODE") == "" {
		_ = os.Setenv("ATHENAEUM_TEST_MODE", "1")
	}
}
