package types

import "errors"

// Cache operation errors.
var (
	// ErrFieldUnknown is returned when a load names a field the schema does
	// not define.
	ErrFieldUnknown = errors.New("field not in schema")

	// ErrCacheClosed is returned by loads issued after Close.
	ErrCacheClosed = errors.New("table cache is closed")
)

// Backend errors shared by the bundled backend implementations.
var (
	// ErrTableUnknown is returned when a backend is asked about a table it
	// does not serve.
	ErrTableUnknown = errors.New("table not served by this backend")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrBackendClosed is returned by backend calls after shutdown.
	ErrBackendClosed = errors.New("backend is closed")
)
