package ad

import "fmt"

// ErrorHandler receives every error the package detects before it is
// turned into a Go error value. Known errors are precondition/user
// mistakes (bad call order, dimension mismatch, tape corruption,
// mismatched tapes). Unknown errors are internal invariant violations
// that should never happen outside of a bug in this package.
//
// The default handler is a no-op: callers are expected to act on the
// *KnownError / *UnknownError returned from the public API. Install a
// handler with SetErrorHandler to additionally log, metric, or abort
// on every error as it is raised, mirroring CppAD's pluggable
// ErrorHandler (ErrorHandler.cpp in the original source).
type ErrorHandler func(known bool, line int, file, expression, message string)

var errorHandler ErrorHandler = func(bool, int, string, string, string) {}

// SetErrorHandler installs h as the process-wide error handler,
// returning the previous one so it can be restored.
func SetErrorHandler(h ErrorHandler) ErrorHandler {
	prev := errorHandler
	if h == nil {
		h = func(bool, int, string, string, string) {}
	}
	errorHandler = h
	return prev
}

// KnownError is a precondition or usage error: bad call order,
// dimension mismatch, tape-identity mismatch, tape corruption. Callers
// can match on it with errors.As.
type KnownError struct {
	Expression string
	Message    string
}

func (e *KnownError) Error() string {
	return fmt.Sprintf("gotape: %s: %s", e.Expression, e.Message)
}

// UnknownError is an internal invariant violation: a bug in this
// package rather than a misuse of it.
type UnknownError struct {
	Expression string
	Message    string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("gotape: internal error: %s: %s", e.Expression, e.Message)
}

// knownf raises a known error: it notifies the installed handler and
// returns a *KnownError for the caller to return.
func knownf(expression, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	errorHandler(true, 0, "", expression, msg)
	return &KnownError{Expression: expression, Message: msg}
}

// assertKnown panics with a *KnownError when cond is false. Used deep
// inside playback kernels where there is no natural error return
// (mirrors CPPAD_ASSERT_KNOWN).
func assertKnown(cond bool, expression, format string, args ...interface{}) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	errorHandler(true, 0, "", expression, msg)
	panic(&KnownError{Expression: expression, Message: msg})
}

// assertUnknown panics with an *UnknownError when cond is false. Used
// for internal invariants (mirrors CPPAD_ASSERT_UNKNOWN); disabled
// entirely would require a release-mode build tag, which gotape does
// not add since Go has no cheap equivalent of NDEBUG and the checks
// here are O(1).
func assertUnknown(cond bool, expression, format string, args ...interface{}) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	errorHandler(false, 0, "", expression, msg)
	panic(&UnknownError{Expression: expression, Message: msg})
}
