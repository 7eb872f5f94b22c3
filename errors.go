package ipcbridge

import (
	"errors"
	"fmt"
)

// Code is the signed 32-bit result code carried on the wire's error_code
// field and returned from every local operation. Zero is success; negative
// values are failures; positive values are success variants (s_false).
type Code int32

// Success codes.
const (
	CodeOK    Code = 0
	CodeFalse Code = 1 // partial success / already initialized
)

// Invalid input.
const (
	CodeNullPointer Code = -1000 - iota
	CodeInvalidEnum
	CodeInvalidArgument
	CodeInvalidObjectID
)

// Not found.
const (
	CodeObjectNotFound Code = -2000 - iota
	CodeNoInterface
	CodeOutOfRange
)

// Lifetime.
const (
	CodeStaleObjectHandle Code = -3000 - iota
	CodeStrongRefUnavailable
	CodeDuplicateElement
)

// Resource.
const (
	CodeOutOfMemory Code = -4000 - iota
	CodeSharedMemoryFailed
	CodeMessageQueueFailed
	CodeConnectionLost
)

// Protocol.
const (
	CodeInvalidMessage Code = -5000 - iota
	CodeInvalidMessageHeader
	CodeInvalidMessageType
	CodeHandshakeFailed
	CodeInvalidState
	CodeDeserializationFailed
	CodeInvalidInterfaceID
)

// Concurrency.
const (
	CodeTimeout Code = -6000 - iota
	CodeDeadlockDetected
	CodeConnectionLimitReached
)

// Generic.
const (
	CodeUndefinedReturnValue Code = -7000 - iota
	CodeInternalFatalError
	CodeNoImplementation
	CodePluginBusy
)

var codeNames = map[Code]string{
	CodeOK:                     "ok",
	CodeFalse:                  "false",
	CodeNullPointer:            "null pointer",
	CodeInvalidEnum:            "invalid enum",
	CodeInvalidArgument:        "invalid argument",
	CodeInvalidObjectID:        "invalid object id",
	CodeObjectNotFound:         "object not found",
	CodeNoInterface:            "no interface",
	CodeOutOfRange:             "out of range",
	CodeStaleObjectHandle:      "stale object handle",
	CodeStrongRefUnavailable:   "strong reference not available",
	CodeDuplicateElement:       "duplicate element",
	CodeOutOfMemory:            "out of memory",
	CodeSharedMemoryFailed:     "shared memory failed",
	CodeMessageQueueFailed:     "message queue failed",
	CodeConnectionLost:         "connection lost",
	CodeInvalidMessage:         "invalid message",
	CodeInvalidMessageHeader:   "invalid message header",
	CodeInvalidMessageType:     "invalid message type",
	CodeHandshakeFailed:        "handshake failed",
	CodeInvalidState:           "invalid state",
	CodeDeserializationFailed:  "deserialization failed",
	CodeInvalidInterfaceID:     "invalid interface id",
	CodeTimeout:                "timeout",
	CodeDeadlockDetected:       "deadlock detected",
	CodeConnectionLimitReached: "connection limit reached",
	CodeUndefinedReturnValue:   "undefined return value",
	CodeInternalFatalError:     "internal fatal error",
	CodeNoImplementation:       "no implementation",
	CodePluginBusy:             "plugin busy",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int32(c))
}

// Failed reports whether c is a failure (negative) code.
func (c Code) Failed() bool { return c < 0 }

// Error is the structured error every ipcbridge component returns. Op
// names the failing operation ("ObjectManager.Lookup",
// "RunLoop.SendRequest", ...); Code is the taxonomy value also carried on
// the wire; Inner is the underlying cause, if any.
type Error struct {
	Op        string
	Code      Code
	SessionID uint16
	Msg       string
	Inner     error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Op != "" {
		return fmt.Sprintf("ipcbridge: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("ipcbridge: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// NewError builds a structured error with no wrapped cause.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewSessionError builds a structured error scoped to a session.
func NewSessionError(op string, sessionID uint16, code Code, msg string) *Error {
	return &Error{Op: op, SessionID: sessionID, Code: code, Msg: msg}
}

// WrapError attaches op to an existing error, preserving an inner
// *Error's code and session, or defaulting to CodeInternalFatalError for
// an arbitrary error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var ie *Error
	if errors.As(inner, &ie) {
		return &Error{Op: op, Code: ie.Code, SessionID: ie.SessionID, Msg: ie.Msg, Inner: ie.Inner}
	}
	return &Error{Op: op, Code: CodeInternalFatalError, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is an *Error carrying code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
