package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, registries and queues
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
// - ErrNotFound: the looked-up resource does not exist
// - ErrInvalidState: a resource is in the wrong shape for the operation
// - ErrUnavailable: a backing service or resource is temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
