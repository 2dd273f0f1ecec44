// Package catalog holds the static table of every instrument parameter.
//
// Byte and double parameters are configuration written to the instrument and
// routed through the set registry. Channel parameters are measurement results
// served from the measurement cache. Names are case-sensitive.
package catalog

import (
	"fmt"
	"math"
	"sort"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
)

// Byte parameter ids as numbered by the instrument.
const (
	ByteActive uint8 = iota
	ByteChanneltype
	ByteChannelno
	ByteReferenceNo
	ByteRLCselect
	ByteSavedata
	ByteLinverted
	ByteMenuactive
	ByteHighGain
	ByteRLCmodel
	NumByteParams
)

// Double parameter ids as numbered by the instrument.
const (
	DoubleFrequency uint8 = iota
	DoubleVoltage
	DoubleCurrent
	DoubleIntegrationTime
	DoubleRepetitionTime
	DoubleGraphFilterTime
	NumDoubleParams
)

func byteParam(name string, id uint8, max float64) types.ParameterDescriptor {
	return types.ParameterDescriptor{
		Name:      name,
		Category:  types.CategoryByte,
		ID:        id,
		Direction: types.DirectionReadAfterWrite,
		Min:       0,
		Max:       max,
		Integral:  true,
	}
}

func doubleParam(name string, id uint8, min, max float64, unit string) types.ParameterDescriptor {
	return types.ParameterDescriptor{
		Name:      name,
		Category:  types.CategoryDouble,
		ID:        id,
		Direction: types.DirectionReadAfterWrite,
		Min:       min,
		Max:       max,
		Unit:      unit,
	}
}

func channelParam(name string, id uint8, unit string) types.ParameterDescriptor {
	return types.ParameterDescriptor{
		Name:      name,
		Category:  types.CategoryChannel,
		ID:        id,
		Direction: types.DirectionReadOnly,
		Unit:      unit,
	}
}

var table = func() map[string]types.ParameterDescriptor {
	params := []types.ParameterDescriptor{
		byteParam("Active", ByteActive, 1),
		byteParam("Channeltype", ByteChanneltype, 2),
		byteParam("Channelno", ByteChannelno, types.NumSets-1),
		byteParam("ReferenceNo", ByteReferenceNo, 2), // 0: 1000 pF, 1: 20 kOhm, 2: 100 pF
		byteParam("RLCselect", ByteRLCselect, 3),     // R, L, C, auto
		byteParam("Savedata", ByteSavedata, 1),
		byteParam("Linverted", ByteLinverted, 1),
		byteParam("Menuactive", ByteMenuactive, 1),
		byteParam("HighGain", ByteHighGain, 1),
		byteParam("RLCmodel", ByteRLCmodel, 1), // series, parallel

		doubleParam("Frequency", DoubleFrequency, 0.1, 10e3, "Hz"),
		doubleParam("Voltage", DoubleVoltage, 0, 10, "V"),
		doubleParam("Current", DoubleCurrent, 0, 10e-3, "A"),
		doubleParam("IntegrationTime", DoubleIntegrationTime, 0.01, 3600, "s"),
		doubleParam("RepetitionTime", DoubleRepetitionTime, 0, 86400, "s"),
		doubleParam("GraphFilterTime", DoubleGraphFilterTime, 0, 86400, "s"),

		channelParam("set_num", 0, ""),
		channelParam("set_char", 1, ""),
		channelParam("ch_num", 2, ""),
		channelParam("ch_type", 3, ""),
		channelParam("freq", 4, "Hz"),
		channelParam("tau_int", 5, "s"),
		channelParam("I_exc", 6, "A"),
		channelParam("V_exc", 7, "V"),
		channelParam("SNR", 8, ""),
		channelParam("V_noise", 9, "V"),
		channelParam("P_diss", 10, "W"),
		channelParam("z_type", 11, ""),
		channelParam("z_val", 12, ""),
		channelParam("z_unit", 13, ""),
		channelParam("timestamp", 14, "s"),
	}

	m := make(map[string]types.ParameterDescriptor, len(params))
	for _, p := range params {
		m[p.Name] = p
	}
	return m
}()

var byID = func() map[types.Category][]string {
	m := map[types.Category][]string{
		types.CategoryByte:   make([]string, NumByteParams),
		types.CategoryDouble: make([]string, NumDoubleParams),
	}
	for name, p := range table {
		if p.Category != types.CategoryChannel {
			m[p.Category][p.ID] = name
		}
	}
	return m
}()

// Lookup returns the descriptor registered under name.
func Lookup(name string) (types.ParameterDescriptor, error) {
	p, ok := table[name]
	if !ok {
		return types.ParameterDescriptor{}, fmt.Errorf("%w: %q (names are case-sensitive)", types.ErrUnknownParameter, name)
	}
	return p, nil
}

// NameOf returns the byte or double parameter name for an instrument id.
func NameOf(category types.Category, id uint8) (string, bool) {
	names, ok := byID[category]
	if !ok || int(id) >= len(names) {
		return "", false
	}
	return names[id], true
}

// Validate checks a value against the descriptor's writable domain.
func Validate(p types.ParameterDescriptor, value float64) error {
	if !p.Writable() {
		return fmt.Errorf("%w: %s is read-only", types.ErrInvalidValue, p.Name)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s must be finite, got %v", types.ErrInvalidValue, p.Name, value)
	}
	if p.Integral && value != math.Trunc(value) {
		return fmt.Errorf("%w: %s must be an integer, got %v", types.ErrInvalidValue, p.Name, value)
	}
	if value < p.Min || value > p.Max {
		return fmt.Errorf("%w: %s=%v outside [%v, %v]", types.ErrInvalidValue, p.Name, value, p.Min, p.Max)
	}
	return nil
}

// Names lists the parameter names of one category in instrument id order.
func Names(category types.Category) []string {
	names := make([]string, 0)
	for name, p := range table {
		if p.Category == category {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return table[names[i]].ID < table[names[j]].ID
	})
	return names
}
