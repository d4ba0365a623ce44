// Package guard flips binaries into test mode when imported by a test, so
// importing a main-adjacent package never dials real backends.
package guard

import (
	"os"
	"sync"
)

const testModeEnv = "WHOLESALE_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(testModeEnv) == "" {
			_ = os.Setenv(testModeEnv, "1")
		}
	})
}
