package db

import "errors"

// Failure classes returned by the store. Every error it returns wraps one of
// these so callers can branch with errors.Is.
var (
	// ErrOpen means the backing database could not be created or opened.
	ErrOpen = errors.New("open usage store")
	// ErrSchema means a migration statement failed while opening the store.
	ErrSchema = errors.New("migrate usage store")
	// ErrWrite means an insert or upsert failed.
	ErrWrite = errors.New("write usage store")
	// ErrMaintenance means a repair transaction failed and was rolled back.
	ErrMaintenance = errors.New("maintain usage store")
)
