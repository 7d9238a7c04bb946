package rag

import "errors"

var (
	// ErrNotInitialized is returned when an engine operation runs before
	// InitializeStorages, or after FinalizeStorages. There is no auto-init;
	// the manager initializes every instance before publishing it.
	ErrNotInitialized = errors.New("tenant instance not initialized")

	// ErrInstanceCreationFailed wraps the underlying cause when a tenant
	// instance could not be constructed or initialized.
	ErrInstanceCreationFailed = errors.New("tenant instance creation failed")

	// ErrValidation covers bad request shapes, such as renaming an entity
	// onto a name that already exists.
	ErrValidation = errors.New("validation failed")

	// ErrManagerClosed is returned by GetOrCreate after Shutdown.
	ErrManagerClosed = errors.New("instance manager is shut down")
)
