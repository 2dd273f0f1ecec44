// Package dispatch routes decoded instrument transfers into the measurement
// cache.
package dispatch

import (
	"fmt"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/bridge"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
	"go.uber.org/zap"
)

// SetResolver yields the active sets mapped to a physical channel, lowest
// index first.
type SetResolver interface {
	Candidates(physical uint8) []int
}

type Store interface {
	Update(set int, m types.ChannelMeasurement) error
}

// Outcome describes what one dispatched transfer did.
type Outcome struct {
	Transfer   bridge.Transfer
	Set        int // attributed set, -1 when discarded
	Candidates []int
	// Ambiguity wraps ErrAmbiguousAttribution when several active sets
	// share the reported physical channel.
	Ambiguity error
}

func (o Outcome) Attributed() bool {
	return o.Set >= 0
}

type Dispatcher struct {
	sets   SetResolver
	store  Store
	logger *zap.Logger
}

func NewDispatcher(sets SetResolver, store Store, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sets:   sets,
		store:  store,
		logger: logger,
	}
}

// Dispatch decodes payload and stores it under the set currently mapped to
// its physical channel. A transfer whose channel has no active set is
// discarded without touching the cache.
func (d *Dispatcher) Dispatch(payload []byte) (Outcome, error) {
	tr, err := bridge.DecodeTransfer(payload)
	if err != nil {
		return Outcome{Set: -1}, err
	}

	out := Outcome{
		Transfer:   tr,
		Set:        -1,
		Candidates: d.sets.Candidates(tr.PhysicalChannel),
	}

	switch len(out.Candidates) {
	case 0:
		d.logger.Debug("Transfer discarded, no active set on channel",
			zap.Uint8("channel", tr.PhysicalChannel),
			zap.Uint8("reported_set", tr.SetHint))
		return out, nil

	case 1:
		out.Set = out.Candidates[0]

	default:
		out.Set = choose(out.Candidates, tr.SetHint)
		out.Ambiguity = fmt.Errorf("%w: channel %d is mapped by sets %v, attributed to %d",
			types.ErrAmbiguousAttribution, tr.PhysicalChannel, out.Candidates, out.Set)
		d.logger.Warn("Ambiguous transfer attribution",
			zap.Uint8("channel", tr.PhysicalChannel),
			zap.Ints("candidates", out.Candidates),
			zap.Uint8("reported_set", tr.SetHint),
			zap.Int("set", out.Set))
	}

	// The registry decides attribution; the stored record carries the
	// attributed set's identity. The reported set stays in Transfer.SetHint.
	m := tr.Measurement
	m.SetNum = uint8(out.Set)
	m.SetChar = string(types.SetChar(out.Set))

	if err := d.store.Update(out.Set, m); err != nil {
		return Outcome{Transfer: tr, Set: -1, Candidates: out.Candidates}, err
	}

	return out, nil
}

// choose picks the set the instrument reports as just scanned when it is a
// candidate, otherwise the lowest index.
func choose(candidates []int, hint uint8) int {
	for _, set := range candidates {
		if hint != bridge.NoSetHint && set == int(hint) {
			return set
		}
	}
	return candidates[0]
}
