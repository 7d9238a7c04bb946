package storage

import "errors"

// Storage error types. Callers distinguish "record absent" (ErrNotFound)
// from "backend unreachable" (ErrStorageUnavailable); the two must never be
// conflated, since a missing node is an ordinary answer while an unreachable
// backend aborts instance creation.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidData        = errors.New("invalid data")
	ErrStorageClosed      = errors.New("storage is closed")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
