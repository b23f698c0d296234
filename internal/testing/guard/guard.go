// Package guard forces test mode for any test package that imports it,
// keeping external side effects disabled under go test.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PORTAL_TEST_MODE") == "" {
			_ = os.Setenv("PORTAL_TEST_MODE", "1")
		}
	})
}
