// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go launches fn in a new goroutine. A panic inside fn is recovered and logged with the
// goroutine's name instead of crashing the process.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine",
					"goroutine", name,
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
