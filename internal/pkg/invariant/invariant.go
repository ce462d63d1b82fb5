/*
Package invariant reports violated internal invariants such as duplicate room membership
or an overfull matchmaking bucket.

In strict mode (development) a violation panics so it surfaces immediately; otherwise it
is logged and the caller is expected to correct the state defensively.
*/
package invariant

import (
	"errors"
	"fmt"
	"sync/atomic"

	"groupmatch/internal/pkg/logx"
)

var strict atomic.Bool

// ErrViolation is logged alongside every non-strict violation.
var ErrViolation = errors.New("invariant violation")

// SetStrict toggles panicking on violations.
func SetStrict(enabled bool) {
	strict.Store(enabled)
}

// Strict reports whether violations panic.
func Strict() bool {
	return strict.Load()
}

// Check returns ok unchanged. A false ok is a violation: it panics in strict mode and is
// logged otherwise, with fields as key-value pairs.
func Check(ok bool, msg string, fields ...any) bool {
	if ok {
		return true
	}

	if strict.Load() {
		panic(fmt.Sprintf("%s: %s %v", ErrViolation, msg, fields))
	}

	logx.Error(ErrViolation, msg, fields...)
	return false
}
