package shmpool

import "errors"

var (
	ErrOutOfMemory = errors.New("shmpool: out of memory")
	ErrNotFound    = errors.New("shmpool: handle not found")
)
