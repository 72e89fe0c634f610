package domain

import "errors"

// Error taxonomy shared by the store, the aggregation engine and the HTTP layer.
var (
	// ErrStoreUnavailable means the backing datastore could not be reached
	// or rejected the operation.
	ErrStoreUnavailable = errors.New("detection store unavailable")

	// ErrNoData means the store is reachable but holds no detection records.
	ErrNoData = errors.New("no detection data")

	// ErrInvalidInput means the caller passed an argument the operation cannot accept.
	ErrInvalidInput = errors.New("invalid input")
)
