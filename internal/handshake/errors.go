package handshake

import "errors"

var (
	ErrTruncatedMessage  = errors.New("handshake: truncated control message")
	ErrNotInitialized    = errors.New("handshake: not initialized")
	ErrUnknownInterface  = errors.New("handshake: unknown control-plane interface id")
	ErrInvalidState      = errors.New("handshake: invalid state for this message")
	ErrHandshakeFailed   = errors.New("handshake: handshake failed")
	ErrConnectionLimit   = errors.New("handshake: too many clients")
	ErrSessionNotPending = errors.New("handshake: session not pending")
)
