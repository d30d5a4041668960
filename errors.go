package frameagent

import "fmt"

// Error is the engine's sentinel error type, kept in the teacher's
// economical one-error-type-per-concern style (errors.go's closed set of
// named Error constants) and extended with the four error-kind categories
// spec §7 names.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrNoDriver means the engine was not configured with a browserdriver.Driver.
	ErrNoDriver Error = "frameagent: no browser driver configured"
	// ErrNoLLM means FindElement was called without an llmiface.Client.
	ErrNoLLM Error = "frameagent: no llm client configured"
	// ErrPageClosed means the page was already closed via Close.
	ErrPageClosed Error = "frameagent: page closed"
	// ErrNoStructuredOutput means the LLM produced no parseable result
	// after every attempt the adapter allows (spec §7 fatal error).
	ErrNoStructuredOutput Error = "frameagent: llm returned no structured output"
	// ErrElementNotFound means FindElement's model picked an element the
	// snapshot doesn't hold.
	ErrElementNotFound Error = "frameagent: element not found in snapshot"
)

// StructuralError reports a spec §7 "structural" failure: a malformed
// EncodedId, an unknown frame index, or a missing XPath. Never retried
// automatically; reported as bad-request upstream.
type StructuralError struct {
	Method string
	ID     string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("frameagent: bad request (%s %s): %s", e.Method, e.ID, e.Reason)
}

// ActionError reports a spec §7 "action-local" failure: element not
// interactable, or an action-specific timeout. Returned as {ok:false,
// message}; the caller decides whether to re-observe.
type ActionError struct {
	Method  string
	ID      string
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("frameagent: action %s on %s failed: %s", e.Method, e.ID, e.Message)
}

// FatalError reports a spec §7 "fatal" failure: page closed mid-action,
// session detached during a mandatory call, or LLM exhaustion. Always
// surfaced to the caller, never swallowed.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string { return fmt.Sprintf("frameagent: fatal: %v", e.Cause) }
func (e *FatalError) Unwrap() error { return e.Cause }

// IsStructural reports whether err is a StructuralError.
func IsStructural(err error) bool { _, ok := err.(*StructuralError); return ok }

// IsAction reports whether err is an ActionError.
func IsAction(err error) bool { _, ok := err.(*ActionError); return ok }

// IsFatal reports whether err is a FatalError.
func IsFatal(err error) bool { _, ok := err.(*FatalError); return ok }
