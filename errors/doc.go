// Package errors provides the error classification used across barstreams.
//
// # Classes
//
// Every error is one of three classes:
//
//   - Transient: timeouts, lost connections, unavailable storage. Retry.
//   - Invalid: malformed CSV rows, bad headers, bad configuration values. Do
//     not retry; route the input to failure.
//   - Fatal: unusable configuration or exhausted resources. Stop.
//
// # Wrapping
//
// Wrapping follows one format so log lines read the same everywhere:
//
//	"component.method: action failed: %w"
//
// The classified wrappers attach a class while keeping the chain intact for
// errors.Is and errors.As:
//
//	errors.WrapTransient(err, "HistoryProcessor", "publish", "artifact publish")
//	errors.WrapInvalid(err, "Decoder", "Next", "field decode")
//	errors.WrapFatal(err, "HistoryProcessor", "Initialize", "codec setup")
//
// Plain Wrap adds context without changing the class of the wrapped error.
//
// An error with no class of its own is classified by the sentinels in its
// chain, then by hints such as "timeout" in its text. Anything else
// classifies as transient.
package errors
