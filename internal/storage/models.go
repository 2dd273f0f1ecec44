package storage

import (
	"context"
	"time"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
	"github.com/google/uuid"
)

// Record is one attributed measurement handed to a Recorder.
type Record struct {
	SessionID   uuid.UUID
	Set         types.SetSnapshot
	Measurement types.ChannelMeasurement
	Sequence    uint64
	ReceivedAt  time.Time
}

// Recorder stores measurements of sets that have Savedata enabled.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Close() error
}

// MultiRecorder fans a record out to several recorders. Every recorder is
// tried; the first error is returned.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, rec Record) error {
	var first error
	for _, r := range m {
		if err := r.Record(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiRecorder) Close() error {
	var first error
	for _, r := range m {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
