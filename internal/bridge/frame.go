package bridge

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Frame is one request or response exchanged with the instrument gateway.
//
//	TransactionID u16 | Length u16 | Command u8 | Status u8 | Data
//
// Length counts the bytes following the length field. All integers are
// little endian, matching the instrument host.
type Frame struct {
	TransactionID uint16
	Length        uint16
	Command       uint8
	Status        uint8
	Data          []byte
}

const (
	frameHeaderSize = 4
	maxFrameData    = 512
)

// Gateway commands
const (
	CmdSetDevice    uint8 = 0x01
	CmdSetByteParam uint8 = 0x02
	CmdSetRealParam uint8 = 0x03
	CmdScanStart    uint8 = 0x10
	CmdScanStop     uint8 = 0x11
	CmdTransfer     uint8 = 0x20
)

// Response status codes. Codes at or above StatusDeviceError carry an
// instrument error message in Data.
const (
	StatusOK          uint8 = 0x00
	StatusNoData      uint8 = 0x01
	StatusDeviceError uint8 = 0x80
)

func (f *Frame) Encode() []byte {
	f.Length = uint16(len(f.Data) + 2)

	frame := make([]byte, frameHeaderSize+2+len(f.Data))
	binary.LittleEndian.PutUint16(frame[0:2], f.TransactionID)
	binary.LittleEndian.PutUint16(frame[2:4], f.Length)
	frame[4] = f.Command
	frame[5] = f.Status
	copy(frame[6:], f.Data)

	return frame
}

// ReadFrame reads exactly one frame from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	frame := &Frame{
		TransactionID: binary.LittleEndian.Uint16(header[0:2]),
		Length:        binary.LittleEndian.Uint16(header[2:4]),
	}

	if frame.Length < 2 || frame.Length > maxFrameData+2 {
		return nil, fmt.Errorf("invalid frame length: %d", frame.Length)
	}

	body := make([]byte, frame.Length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("incomplete frame: %w", err)
	}

	frame.Command = body[0]
	frame.Status = body[1]
	if len(body) > 2 {
		frame.Data = body[2:]
	}

	return frame, nil
}

func SetDeviceRequest(deviceNumber uint8) *Frame {
	return &Frame{Command: CmdSetDevice, Data: []byte{deviceNumber}}
}

func SetByteParamRequest(set, param, value uint8) *Frame {
	return &Frame{Command: CmdSetByteParam, Data: []byte{set, param, value}}
}

func SetRealParamRequest(set, param uint8, value float64) *Frame {
	data := make([]byte, 10)
	data[0] = set
	data[1] = param
	binary.LittleEndian.PutUint64(data[2:], math.Float64bits(value))

	return &Frame{Command: CmdSetRealParam, Data: data}
}

// ParseIdentity parses a SetDevice response body: bridge type and serial
// number as two i32 values.
func (f *Frame) ParseIdentity() (bridgeType, serial int32, err error) {
	if len(f.Data) < 8 {
		return 0, 0, fmt.Errorf("identity response too short: %d bytes", len(f.Data))
	}
	bridgeType = int32(binary.LittleEndian.Uint32(f.Data[0:4]))
	serial = int32(binary.LittleEndian.Uint32(f.Data[4:8]))
	return bridgeType, serial, nil
}

func identityData(bridgeType, serial int32) []byte {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], uint32(bridgeType))
	binary.LittleEndian.PutUint32(data[4:8], uint32(serial))
	return data
}
