// Completion: 100% - Utility module complete
package backend

import "github.com/xyproto/env/v2"

// VerboseMode enables tracing of emitted bytes, label binds and fixup
// patches to stderr. DebugMode additionally enables the more expensive
// consistency dumps. Both are read once from the environment; tests that
// flip them must restore the old value.
var (
	VerboseMode = env.Bool("B67_VERBOSE")
	DebugMode   = env.Bool("B67_DEBUG")
)
