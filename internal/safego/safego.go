// Package safego launches background goroutines that recover from panics.
package safego

import (
	"fmt"

	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

// Go runs fn in a new goroutine. A panic is recovered and logged under name
// instead of crashing the process.
func Go(log logger.Logger, name string, fn func()) {
	go Run(log, name, fn)
}

// Run calls fn on the current goroutine and recovers a panic. It reports
// whether fn panicked.
func Run(log logger.Logger, name string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			if log != nil {
				log.Error("Recovered panic in background goroutine",
					logger.String("goroutine", name),
					logger.String("panic", fmt.Sprint(r)),
				)
			}
		}
	}()
	fn()
	return false
}
