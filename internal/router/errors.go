package router

import "errors"

var (
	ErrInvalidTarget = errors.New("router: invalid route target")
	ErrNoRoute       = errors.New("router: no route found for key")
)
