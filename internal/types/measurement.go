package types

import "fmt"

// NumSets is the number of logical measurement sets the instrument scans.
const NumSets = 11

type ChannelType uint8

const (
	ChannelTypeTwoPoint             ChannelType = 0
	ChannelTypeFourPoint            ChannelType = 1
	ChannelTypeFourPointTransformer ChannelType = 2
)

func (t ChannelType) String() string {
	switch t {
	case ChannelTypeTwoPoint:
		return "2p"
	case ChannelTypeFourPoint:
		return "4p"
	case ChannelTypeFourPointTransformer:
		return "4p-transformer"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Reference impedances of the internal reference channel 0.
const (
	ReferenceFourPointOhm = 1e3
	ReferenceTwoPointOhm  = 20e3
)

// ValidSetIndex reports whether set addresses one of the 11 logical sets.
func ValidSetIndex(set int) bool {
	return set >= 0 && set < NumSets
}

// SetChar returns the letter name (A-K) of a set index.
func SetChar(set int) rune {
	if !ValidSetIndex(set) {
		return '?'
	}
	return rune('A' + set)
}

// CheckSetIndex wraps ErrInvalidSetIndex for out of range indices.
func CheckSetIndex(set int) error {
	if !ValidSetIndex(set) {
		return fmt.Errorf("%w: %d (expected 0-%d)", ErrInvalidSetIndex, set, NumSets-1)
	}
	return nil
}

// SetSnapshot is a read-only copy of one logical measurement set.
type SetSnapshot struct {
	Index           int         `json:"set_num"`
	Char            string      `json:"set_char"`
	Active          bool        `json:"active"`
	PhysicalChannel uint8       `json:"channel_no"`
	ChannelType     ChannelType `json:"channel_type"`

	Frequency       float64 `json:"frequency"`
	Voltage         float64 `json:"voltage"`
	Current         float64 `json:"current"`
	IntegrationTime float64 `json:"integration_time"`
	RepetitionTime  float64 `json:"repetition_time"`
	GraphFilterTime float64 `json:"graph_filter_time"`

	ReferenceNo uint8 `json:"reference_no"`
	RLCSelect   uint8 `json:"rlc_select"`
	Linverted   uint8 `json:"linverted"`
	HighGain    uint8 `json:"high_gain"`
	RLCModel    uint8 `json:"rlc_model"`
	MenuActive  uint8 `json:"menu_active"`
	SaveData    uint8 `json:"save_data"`
}

// ReferenceImpedance returns the fixed impedance of the internal reference
// when the set targets physical channel 0.
func (s SetSnapshot) ReferenceImpedance() (float64, bool) {
	if s.PhysicalChannel != 0 {
		return 0, false
	}
	if s.ChannelType == ChannelTypeTwoPoint {
		return ReferenceTwoPointOhm, true
	}
	return ReferenceFourPointOhm, true
}

// ChannelMeasurement is one decoded transfer.
type ChannelMeasurement struct {
	SetNum    uint8   `json:"set_num"`
	SetChar   string  `json:"set_char"`
	ChNum     uint8   `json:"ch_num"`
	ChType    uint8   `json:"ch_type"`
	Freq      float64 `json:"freq"`
	TauInt    float64 `json:"tau_int"`
	IExc      float64 `json:"I_exc"`
	VExc      float64 `json:"V_exc"`
	SNR       float64 `json:"SNR"`
	VNoise    float64 `json:"V_noise"`
	PDiss     float64 `json:"P_diss"`
	ZType     string  `json:"z_type"`
	ZVal      float64 `json:"z_val"`
	ZUnit     string  `json:"z_unit"`
	Timestamp float64 `json:"timestamp"`
}

// SetStatus summarizes one set for Status.
type SetStatus struct {
	Index           int         `json:"set_num"`
	Char            string      `json:"set_char"`
	Active          bool        `json:"active"`
	PhysicalChannel uint8       `json:"channel_no"`
	ChannelType     ChannelType `json:"channel_type"`
	HasData         bool        `json:"has_data"`
	LastUpdated     uint64      `json:"last_updated"`
	ZType           string      `json:"z_type,omitempty"`
	ZVal            float64     `json:"z_val,omitempty"`
	ZUnit           string      `json:"z_unit,omitempty"`
	Freq            float64     `json:"freq,omitempty"`
}
