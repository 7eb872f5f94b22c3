package objectmanager

import "errors"

// ErrInvalidObjectID is returned by RegisterRemote for a null ObjectId.
var ErrInvalidObjectID = errors.New("objectmanager: invalid object id")
