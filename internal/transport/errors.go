package transport

import "errors"

var (
	ErrTimeout                 = errors.New("transport: timeout")
	ErrMessageQueueFailed      = errors.New("transport: message queue failed")
	ErrSharedMemoryUnavailable = errors.New("transport: shared memory pool unavailable")
	ErrInvalidMessage          = errors.New("transport: invalid message")
	ErrInvalidMessageHeader    = errors.New("transport: invalid message header")
)
