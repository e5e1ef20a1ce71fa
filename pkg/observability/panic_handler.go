package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers a panic in the calling goroutine and logs it with
// the full stack trace. Intended for deferred use in background work
// (scheduled jobs, cleanup goroutines) where a panic must not take the
// process down. The panic is not re-raised.
//
//	defer observability.RecoverPanic(logger, "maintenance job")
func RecoverPanic(logger *Logger, scope string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic": r,
			"stack": string(debug.Stack()),
			"scope": scope,
		}).Error("panic recovered")
	}
}
