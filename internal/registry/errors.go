package registry

import "errors"

var (
	ErrDuplicateElement = errors.New("registry: duplicate object id or name")
	ErrObjectNotFound   = errors.New("registry: object not found")
	ErrInvalidArgument  = errors.New("registry: invalid argument")
)
