package runloop

import "errors"

var (
	ErrAlreadyRunning   = errors.New("runloop: already running")
	ErrDeadlockDetected = errors.New("runloop: nested call depth exhausted")
	ErrTransportFailed  = errors.New("runloop: transport send failed")
	ErrTimeout          = errors.New("runloop: request timed out")
)
