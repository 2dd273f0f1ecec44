package controller

import (
	"time"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
)

type ScanState string

const (
	ScanStopped ScanState = "stopped"
	ScanRunning ScanState = "scanning"
)

// Transfer is one measurement attributed by TransferData.
type Transfer struct {
	Set         int
	Measurement types.ChannelMeasurement
	Sequence    uint64
	ReceivedAt  time.Time
	Ambiguous   bool
}

type Status struct {
	SessionID    string            `json:"session_id"`
	DeviceNumber int               `json:"device_number"`
	BridgeType   int32             `json:"bridge_type"`
	SerialNumber int32             `json:"serial_number"`
	ScanState    ScanState         `json:"scan_state"`
	Sets         []types.SetStatus `json:"sets"`
}
