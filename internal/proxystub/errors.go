package proxystub

import "errors"

var (
	ErrObjectNotFound  = errors.New("proxystub: object not found")
	ErrNoInterface     = errors.New("proxystub: no such interface/method")
	ErrHandlerPanicked = errors.New("proxystub: method handler panicked")
)

// Wire error_code values stamped on a stub's response. Internal packages
// never import the root ipcbridge package (avoids an import cycle), so
// these mirror errors.Code's Not-found and Lifetime blocks by value:
// CodeObjectNotFound=-2000, CodeNoInterface=-2001, CodeStaleObjectHandle=-3000,
// CodeInternalFatalError=-7001.
const (
	ErrorCodeObjectNotFound     int32 = -2000
	ErrorCodeNoInterface        int32 = -2001
	ErrorCodeStaleObjectHandle  int32 = -3000
	ErrorCodeInternalFatalError int32 = -7001
)
