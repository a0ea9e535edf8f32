// Package invariant raises programming-contract violations.
//
// A violation is never an environmental failure: it means the caller broke
// an ownership or sequencing rule (double close, use after take, writing
// past reported capacity, cancelling a transfer task). Violations panic with
// an *errors.Error of kind contract_violation and are not meant to be
// recovered outside of tests.
package invariant

import (
	"fmt"

	"github.com/wippyai/wasi-hostbridge/errors"
)

// Assert panics with a contract violation when cond is false.
func Assert(cond bool, format string, args ...any) {
	if cond {
		return
	}
	panic(errors.Violation(fmt.Sprintf(format, args...)))
}

// Unreachable panics unconditionally with a contract violation.
func Unreachable(format string, args ...any) {
	panic(errors.Violation(fmt.Sprintf(format, args...)))
}

// Catch runs fn and returns the contract violation it raised, or nil.
// Panics of any other type are re-raised.
func Catch(fn func()) (violation *errors.Error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(*errors.Error); ok && e.Kind == errors.KindContractViolation {
			violation = e
			return
		}
		panic(r)
	}()
	fn()
	return nil
}
