package sys

import (
	"fmt"
	"runtime/debug"

	"github.com/agentuity/storefront/logger"
	"github.com/cockroachdb/errors"
)

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return errors.Wrap(err, "panic")
	}
	return errors.Newf("panic: %s", fmt.Sprint(r))
}

// RecoverPanic logs a recovered panic with its stack. Use as
// `defer sys.RecoverPanic(log)` at the top of a goroutine.
func RecoverPanic(log logger.Logger) {
	if r := recover(); r != nil {
		log.Error("%s\n%s", panicError(r), debug.Stack())
	}
}

// Recovered converts a value returned by recover into an error, or nil.
func Recovered(r any) error {
	if r == nil {
		return nil
	}
	return panicError(r)
}
