package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrLockHeld            = errors.New("lock already held")
	ErrInvalidWeightConfig = errors.New("invalid weight configuration")
	ErrNoPosition          = errors.New("no position held")
	ErrOversell            = errors.New("sell exceeds held quantity")
)
