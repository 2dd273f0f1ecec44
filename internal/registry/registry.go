// Package registry owns the configuration of the 11 logical measurement sets
// and the mapping from logical set to physical channel.
//
// Every write is validated against the parameter catalog before anything is
// sent to the instrument. A set's physical channel is only ever known from
// its Channelno parameter, never from scan order.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/catalog"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
	"go.uber.org/zap"
)

// Writer is the subset of the device transport the registry writes through.
type Writer interface {
	WriteByteParam(ctx context.Context, set, param, value uint8) error
	WriteRealParam(ctx context.Context, set, param uint8, value float64) error
}

type setState struct {
	bytes     [catalog.NumByteParams]uint8
	reals     [catalog.NumDoubleParams]float64
	sentBytes [catalog.NumByteParams]bool
	sentReals [catalog.NumDoubleParams]bool
}

// Registry is not safe for concurrent use; the controller serializes access.
type Registry struct {
	writer Writer
	logger *zap.Logger
	sets   [types.NumSets]setState
}

func New(writer Writer, logger *zap.Logger) *Registry {
	return &Registry{
		writer: writer,
		logger: logger,
	}
}

// Defaults returns the configuration the instrument driver applies when a set
// is initialized without explicit values.
func Defaults() map[string]float64 {
	return map[string]float64{
		"Active":          1,
		"Channeltype":     0,
		"Channelno":       0,
		"ReferenceNo":     1,
		"RLCselect":       0,
		"Linverted":       0,
		"Frequency":       13,
		"Voltage":         1e-5,
		"Current":         1e-8,
		"IntegrationTime": 4,
		"RepetitionTime":  1,
	}
}

type fieldWrite struct {
	param types.ParameterDescriptor
	value float64
}

// InitChannel merges config over the set's current configuration. Fields not
// supplied keep their previous value. All fields are validated before any is
// sent; each changed field is then written to the device and committed once
// acknowledged.
func (r *Registry) InitChannel(ctx context.Context, set int, config map[string]float64) (types.SetSnapshot, error) {
	if err := types.CheckSetIndex(set); err != nil {
		return types.SetSnapshot{}, err
	}

	writes := make([]fieldWrite, 0, len(config))
	for name, value := range config {
		p, err := catalog.Lookup(name)
		if err != nil {
			return types.SetSnapshot{}, err
		}
		if p.Category == types.CategoryChannel {
			return types.SetSnapshot{}, fmt.Errorf("%w: %s is a measurement result, not a setting", types.ErrInvalidValue, name)
		}
		if err := catalog.Validate(p, value); err != nil {
			return types.SetSnapshot{}, err
		}
		writes = append(writes, fieldWrite{param: p, value: value})
	}

	// Byte parameters first, then doubles, each in instrument id order.
	sort.Slice(writes, func(i, j int) bool {
		a, b := writes[i].param, writes[j].param
		if a.Category != b.Category {
			return a.Category == types.CategoryByte
		}
		return a.ID < b.ID
	})

	for _, w := range writes {
		if err := r.apply(ctx, set, w.param, w.value); err != nil {
			return r.Snapshot(set), err
		}
	}

	r.logger.Debug("Set initialized",
		zap.Int("set", set),
		zap.Int("fields", len(writes)))

	return r.Snapshot(set), nil
}

// WriteVar validates and writes a single byte or double parameter.
func (r *Registry) WriteVar(ctx context.Context, set int, name string, value float64) error {
	if err := types.CheckSetIndex(set); err != nil {
		return err
	}

	p, err := catalog.Lookup(name)
	if err != nil {
		return err
	}
	if p.Category == types.CategoryChannel {
		return fmt.Errorf("%w: %s is not writeable", types.ErrInvalidValue, name)
	}
	if err := catalog.Validate(p, value); err != nil {
		return err
	}

	return r.apply(ctx, set, p, value)
}

// Deactivate clears the Active flag. The set keeps its configuration.
func (r *Registry) Deactivate(ctx context.Context, set int) error {
	return r.WriteVar(ctx, set, "Active", 0)
}

// apply sends one validated value when it differs from what the device was
// last told, then commits it.
func (r *Registry) apply(ctx context.Context, set int, p types.ParameterDescriptor, value float64) error {
	s := &r.sets[set]

	switch p.Category {
	case types.CategoryByte:
		v := uint8(value)
		if s.sentBytes[p.ID] && s.bytes[p.ID] == v {
			return nil
		}
		if err := r.writer.WriteByteParam(ctx, uint8(set), p.ID, v); err != nil {
			return writeError(set, p, err)
		}
		s.bytes[p.ID] = v
		s.sentBytes[p.ID] = true

	case types.CategoryDouble:
		if s.sentReals[p.ID] && s.reals[p.ID] == value {
			return nil
		}
		if err := r.writer.WriteRealParam(ctx, uint8(set), p.ID, value); err != nil {
			return writeError(set, p, err)
		}
		s.reals[p.ID] = value
		s.sentReals[p.ID] = true
	}

	return nil
}

func writeError(set int, p types.ParameterDescriptor, err error) error {
	if errors.Is(err, types.ErrTransportWrite) {
		return err
	}
	return fmt.Errorf("%w: %s on set %d: %w", types.ErrTransportWrite, p.Name, set, err)
}

// ResolvePhysical returns the physical channel a set is configured for.
func (r *Registry) ResolvePhysical(set int) (uint8, error) {
	if err := types.CheckSetIndex(set); err != nil {
		return 0, err
	}
	return r.sets[set].bytes[catalog.ByteChannelno], nil
}

// Candidates returns the active sets mapped to a physical channel, lowest
// index first.
func (r *Registry) Candidates(physical uint8) []int {
	var sets []int
	for i := range r.sets {
		s := &r.sets[i]
		if s.bytes[catalog.ByteActive] == 1 && s.bytes[catalog.ByteChannelno] == physical {
			sets = append(sets, i)
		}
	}
	return sets
}

// Value returns the configured value of a byte or double parameter.
func (r *Registry) Value(set int, name string) (float64, error) {
	if err := types.CheckSetIndex(set); err != nil {
		return 0, err
	}
	p, err := catalog.Lookup(name)
	if err != nil {
		return 0, err
	}

	switch p.Category {
	case types.CategoryByte:
		return float64(r.sets[set].bytes[p.ID]), nil
	case types.CategoryDouble:
		return r.sets[set].reals[p.ID], nil
	default:
		return 0, fmt.Errorf("%w: %s is a measurement result", types.ErrUnknownParameter, name)
	}
}

func (r *Registry) Snapshot(set int) types.SetSnapshot {
	s := &r.sets[set]
	return types.SetSnapshot{
		Index:           set,
		Char:            string(types.SetChar(set)),
		Active:          s.bytes[catalog.ByteActive] == 1,
		PhysicalChannel: s.bytes[catalog.ByteChannelno],
		ChannelType:     types.ChannelType(s.bytes[catalog.ByteChanneltype]),

		Frequency:       s.reals[catalog.DoubleFrequency],
		Voltage:         s.reals[catalog.DoubleVoltage],
		Current:         s.reals[catalog.DoubleCurrent],
		IntegrationTime: s.reals[catalog.DoubleIntegrationTime],
		RepetitionTime:  s.reals[catalog.DoubleRepetitionTime],
		GraphFilterTime: s.reals[catalog.DoubleGraphFilterTime],

		ReferenceNo: s.bytes[catalog.ByteReferenceNo],
		RLCSelect:   s.bytes[catalog.ByteRLCselect],
		Linverted:   s.bytes[catalog.ByteLinverted],
		HighGain:    s.bytes[catalog.ByteHighGain],
		RLCModel:    s.bytes[catalog.ByteRLCmodel],
		MenuActive:  s.bytes[catalog.ByteMenuactive],
		SaveData:    s.bytes[catalog.ByteSavedata],
	}
}

func (r *Registry) Snapshots() []types.SetSnapshot {
	snaps := make([]types.SetSnapshot, types.NumSets)
	for i := range snaps {
		snaps[i] = r.Snapshot(i)
	}
	return snaps
}
