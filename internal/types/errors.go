package types

import "errors"

// Error taxonomy shared by the catalog, registry, cache, dispatcher and controller.
var (
	// Validation errors. They never reach the device.
	ErrInvalidSetIndex  = errors.New("bridge: invalid set index")
	ErrUnknownParameter = errors.New("bridge: unknown parameter")
	ErrInvalidValue     = errors.New("bridge: invalid value")

	// Device boundary errors.
	ErrConnection     = errors.New("bridge: connection failed")
	ErrNotConnected   = errors.New("bridge: not connected")
	ErrTransportWrite = errors.New("bridge: transport write failed")
	ErrTransferDecode = errors.New("bridge: transfer decode failed")

	// ErrNoDataYet is returned when a set has never been attributed a transfer.
	ErrNoDataYet = errors.New("bridge: no data yet for set")

	// ErrAmbiguousAttribution flags a transfer whose physical channel is mapped
	// by more than one active set. It is reported, never returned as a failure.
	ErrAmbiguousAttribution = errors.New("bridge: ambiguous transfer attribution")
)
