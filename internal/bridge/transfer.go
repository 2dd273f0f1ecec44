package bridge

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
)

// Raw transfer record layout (packed, little endian):
//
//	0   set_num   u8
//	1   set_char  u16 (UTF-16)
//	3   ch_num    u8
//	4   ch_type   u8
//	5   freq, tau_int, I_exc, V_exc, SNR, V_noise, P_diss  7 x f64
//	61  z_type    u16 (UTF-16)
//	63  z_val     f64
//	71  z_unit    10 x u16, NUL padded
//	91  timestamp f64
const (
	TransferSize = 99

	offSetNum    = 0
	offSetChar   = 1
	offChNum     = 3
	offChType    = 4
	offDoubles   = 5
	offZType     = 61
	offZVal      = 63
	offZUnit     = 71
	zUnitChars   = 10
	offTimestamp = 91
)

// NoSetHint marks a record whose reporting instrument did not name the set.
const NoSetHint uint8 = 0xFF

// Transfer is a decoded raw record. Measurement carries the fields; SetHint is
// the set number the instrument claims to have scanned, or NoSetHint.
type Transfer struct {
	PhysicalChannel uint8
	SetHint         uint8
	Measurement     types.ChannelMeasurement
}

var (
	validZTypes = map[string]bool{"R": true, "L": true, "C": true}
	validZUnits = map[string]bool{"Ohm": true, "H": true, "F": true}
)

// DecodeTransfer decodes one raw transfer record.
func DecodeTransfer(payload []byte) (Transfer, error) {
	if len(payload) != TransferSize {
		return Transfer{}, fmt.Errorf("%w: payload is %d bytes, want %d", types.ErrTransferDecode, len(payload), TransferSize)
	}

	f64 := func(off int) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(payload[off : off+8]))
	}

	m := types.ChannelMeasurement{
		SetNum:    payload[offSetNum],
		SetChar:   decodeUTF16(payload[offSetChar : offSetChar+2]),
		ChNum:     payload[offChNum],
		ChType:    payload[offChType],
		Freq:      f64(offDoubles),
		TauInt:    f64(offDoubles + 8),
		IExc:      f64(offDoubles + 16),
		VExc:      f64(offDoubles + 24),
		SNR:       f64(offDoubles + 32),
		VNoise:    f64(offDoubles + 40),
		PDiss:     f64(offDoubles + 48),
		ZType:     decodeUTF16(payload[offZType : offZType+2]),
		ZVal:      f64(offZVal),
		ZUnit:     decodeUTF16(payload[offZUnit : offZUnit+2*zUnitChars]),
		Timestamp: f64(offTimestamp),
	}

	if int(m.ChNum) >= types.NumSets {
		return Transfer{}, fmt.Errorf("%w: physical channel %d out of range", types.ErrTransferDecode, m.ChNum)
	}
	if m.ChType > uint8(types.ChannelTypeFourPointTransformer) {
		return Transfer{}, fmt.Errorf("%w: channel type %d out of range", types.ErrTransferDecode, m.ChType)
	}
	if !validZTypes[m.ZType] {
		return Transfer{}, fmt.Errorf("%w: impedance type %q", types.ErrTransferDecode, m.ZType)
	}
	if !validZUnits[m.ZUnit] {
		return Transfer{}, fmt.Errorf("%w: impedance unit %q", types.ErrTransferDecode, m.ZUnit)
	}
	if math.IsNaN(m.ZVal) {
		return Transfer{}, fmt.Errorf("%w: impedance value is NaN", types.ErrTransferDecode)
	}

	hint := m.SetNum
	if !types.ValidSetIndex(int(hint)) {
		hint = NoSetHint
	}

	return Transfer{
		PhysicalChannel: m.ChNum,
		SetHint:         hint,
		Measurement:     m,
	}, nil
}

// EncodeTransfer builds the raw record for m. The simulator and tests use it
// to produce instrument payloads.
func EncodeTransfer(m types.ChannelMeasurement) []byte {
	payload := make([]byte, TransferSize)

	putF64 := func(off int, v float64) {
		binary.LittleEndian.PutUint64(payload[off:off+8], math.Float64bits(v))
	}

	payload[offSetNum] = m.SetNum
	encodeUTF16(payload[offSetChar:offSetChar+2], m.SetChar)
	payload[offChNum] = m.ChNum
	payload[offChType] = m.ChType
	for i, v := range []float64{m.Freq, m.TauInt, m.IExc, m.VExc, m.SNR, m.VNoise, m.PDiss} {
		putF64(offDoubles+8*i, v)
	}
	encodeUTF16(payload[offZType:offZType+2], m.ZType)
	putF64(offZVal, m.ZVal)
	encodeUTF16(payload[offZUnit:offZUnit+2*zUnitChars], m.ZUnit)
	putF64(offTimestamp, m.Timestamp)

	return payload
}

func decodeUTF16(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i : i+2])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// encodeUTF16 writes s into b, truncating to the field width.
func encodeUTF16(b []byte, s string) {
	units := utf16.Encode([]rune(s))
	for i := 0; i < len(units) && 2*i+1 < len(b); i++ {
		binary.LittleEndian.PutUint16(b[2*i:], units[i])
	}
}
