package ipcbridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredError(t *testing.T) {
	err := NewError("ObjectManager.Lookup", CodeStaleObjectHandle, "generation mismatch")
	assert.Equal(t, "ObjectManager.Lookup", err.Op)
	assert.Equal(t, CodeStaleObjectHandle, err.Code)
	assert.Equal(t, "ipcbridge: ObjectManager.Lookup: generation mismatch", err.Error())
}

func TestSessionError(t *testing.T) {
	err := NewSessionError("Handshake.Ready", 7, CodeInvalidState, "not in WelcomeRecv")
	assert.Equal(t, uint16(7), err.SessionID)
	assert.Equal(t, CodeInvalidState, err.Code)
}

func TestWrapErrorPreservesInnerCode(t *testing.T) {
	inner := NewError("Transport.Send", CodeMessageQueueFailed, "queue full")
	wrapped := WrapError("RunLoop.SendRequest", inner)
	assert.Equal(t, CodeMessageQueueFailed, wrapped.Code)
	assert.Equal(t, "RunLoop.SendRequest", wrapped.Op)
}

func TestWrapErrorDefaultsArbitraryError(t *testing.T) {
	wrapped := WrapError("Stub.Dispatch", errors.New("boom"))
	assert.Equal(t, CodeInternalFatalError, wrapped.Code)
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError("op", nil))
}

func TestIsCode(t *testing.T) {
	err := NewError("RunLoop.SendRequest", CodeTimeout, "deadline exceeded")
	assert.True(t, IsCode(err, CodeTimeout))
	assert.False(t, IsCode(err, CodeDeadlockDetected))
	assert.False(t, IsCode(nil, CodeTimeout))
}

func TestCodeFailed(t *testing.T) {
	assert.False(t, CodeOK.Failed())
	assert.False(t, CodeFalse.Failed())
	assert.True(t, CodeStaleObjectHandle.Failed())
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	a := NewError("X", CodeObjectNotFound, "a")
	b := NewError("Y", CodeObjectNotFound, "b")
	assert.True(t, errors.Is(a, b))
}
