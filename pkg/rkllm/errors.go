package rkllm

import "fmt"

// contractViolationError signals invalid canonical input detected before any
// native call (missing required field, union/payload mismatch, bad count).
type contractViolationError struct{ msg string }

func (e contractViolationError) Error() string { return "contract violation: " + e.msg }

// ErrContractViolation constructs a contractViolationError.
func ErrContractViolation(msg string) error { return contractViolationError{msg: msg} }

// IsContractViolation reports whether err was rejected by the marshalling layer.
func IsContractViolation(err error) bool {
	_, ok := err.(contractViolationError)
	return ok
}

// invalidHandleError signals an operation against a handle that is not Live.
type invalidHandleError struct {
	op    string
	state HandleState
}

func (e invalidHandleError) Error() string {
	return fmt.Sprintf("invalid handle: %s called while %s", e.op, e.state)
}

// ErrInvalidHandle constructs an invalidHandleError for the given operation.
func ErrInvalidHandle(op string, state HandleState) error {
	return invalidHandleError{op: op, state: state}
}

// IsInvalidHandle reports whether err indicates use of a non-Live handle.
func IsInvalidHandle(err error) bool {
	_, ok := err.(invalidHandleError)
	return ok
}

// nativeCallError carries a non-zero status returned by the vendor runtime.
type nativeCallError struct {
	op     string
	status int32
}

func (e nativeCallError) Error() string {
	return fmt.Sprintf("rkllm %s failed: status %d", e.op, e.status)
}

// Status exposes the verbatim vendor status code.
func (e nativeCallError) Status() int32 { return e.status }

// ErrNativeCall constructs a nativeCallError.
func ErrNativeCall(op string, status int32) error { return nativeCallError{op: op, status: status} }

// IsNativeCall reports whether err wraps a vendor status code.
func IsNativeCall(err error) bool {
	_, ok := err.(nativeCallError)
	return ok
}

// NativeStatus extracts the vendor status code from err, if present.
func NativeStatus(err error) (int32, bool) {
	if e, ok := err.(nativeCallError); ok {
		return e.status, true
	}
	return 0, false
}

// streamFaultError signals a malformed result payload delivered mid-stream.
// The inference call it belongs to is terminally errored; the handle stays
// usable for future calls.
type streamFaultError struct{ msg string }

func (e streamFaultError) Error() string { return "stream fault: " + e.msg }

// ErrStreamFault constructs a streamFaultError.
func ErrStreamFault(msg string) error { return streamFaultError{msg: msg} }

// IsStreamFault reports whether err is a host-raised callback-stream fault.
func IsStreamFault(err error) bool {
	_, ok := err.(streamFaultError)
	return ok
}

// capabilityError signals that no usable call path exists in this process.
// Surfaced at initialization time only; Detect itself never errors.
type capabilityError struct{ msg string }

func (e capabilityError) Error() string { return "capability: " + e.msg }

// ErrCapability constructs a capabilityError.
func ErrCapability(msg string) error { return capabilityError{msg: msg} }

// IsCapability reports whether err indicates a missing call-path capability.
func IsCapability(err error) bool {
	_, ok := err.(capabilityError)
	return ok
}
