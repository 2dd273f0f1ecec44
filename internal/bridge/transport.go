// Package bridge is the device boundary of the impedance bridge.
//
// Transport is what the core consumes. Client speaks the framed gateway
// protocol over TCP or a serial line, Simulator is an in-memory instrument,
// and Gateway serves the protocol from any Transport.
package bridge

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoData is returned by ReadTransfer when the instrument has no finished
// measurement waiting.
var ErrNoData = errors.New("bridge: no data ready")

// Identity describes the instrument reached by Connect.
type Identity struct {
	DeviceNumber int
	BridgeType   int32
	SerialNumber int32
}

// Transport performs raw typed writes and raw transfer reads against the
// instrument. Implementations need not be safe for concurrent use; the
// controller keeps at most one call in flight.
type Transport interface {
	Connect(ctx context.Context, deviceNumber int) (Identity, error)
	WriteByteParam(ctx context.Context, set, param, value uint8) error
	WriteRealParam(ctx context.Context, set, param uint8, value float64) error
	ScanStart(ctx context.Context) error
	ScanStop(ctx context.Context) error
	// ReadTransfer returns the instrument's most recent transfer record or
	// ErrNoData.
	ReadTransfer(ctx context.Context) ([]byte, error)
	Close() error
}

// DeviceError is an error code reported by the instrument itself.
type DeviceError struct {
	Code    uint8
	Message string
}

func (e *DeviceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("device error code %d", e.Code)
	}
	return fmt.Sprintf("device error code %d: %s", e.Code, e.Message)
}
