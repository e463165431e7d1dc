// Package goroutine provides panic recovery for background loops and handlers.
package goroutine

import (
	"fmt"
	"runtime/debug"

	"github.com/orris-inc/cellcore/internal/shared/logger"
)

// SafeGo launches fn on a new goroutine. A panic is logged with its stack
// instead of crashing the process.
func SafeGo(log logger.Interface, name string, fn func()) {
	go func() {
		_ = Run(log, name, func() error {
			fn()
			return nil
		})
	}()
}

// Run calls fn on the current goroutine and converts a panic into an error.
// The event bus uses it so a faulty handler cannot stop dispatch.
func Run(log logger.Interface, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("goroutine panicked",
				"goroutine", name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	return fn()
}
