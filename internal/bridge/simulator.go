package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/catalog"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
)

// Load is the impedance the simulator reports for a physical channel.
type Load struct {
	Type  string // R, L or C
	Value float64
}

func (l Load) unit() string {
	switch l.Type {
	case "L":
		return "H"
	case "C":
		return "F"
	default:
		return "Ohm"
	}
}

type simSet struct {
	bytes [catalog.NumByteParams]uint8
	reals [catalog.NumDoubleParams]float64
}

// Simulator is an in-memory instrument. While scanning it measures the
// active sets one after another in set order, like the real bridge, and
// ReadTransfer returns the record of the next one. Injected payloads are
// served first, in order, regardless of scan state.
type Simulator struct {
	mu        sync.Mutex
	sets      [types.NumSets]simSet
	loads     map[uint8]Load
	injected  [][]byte
	scanning  bool
	connected bool
	cursor    int
	start     time.Time
	now       func() time.Time

	BridgeType int32
}

func NewSimulator() *Simulator {
	return &Simulator{
		loads:      make(map[uint8]Load),
		now:        time.Now,
		start:      time.Now(),
		BridgeType: 3,
	}
}

// SetLoad sets the impedance seen on a physical channel.
func (s *Simulator) SetLoad(channel uint8, load Load) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads[channel] = load
}

// Inject queues a raw payload for the next ReadTransfer.
func (s *Simulator) Inject(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected = append(s.injected, payload)
}

// Scanning reports whether ScanStart was issued without a later ScanStop.
func (s *Simulator) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// ByteParam returns the last byte value written for a set.
func (s *Simulator) ByteParam(set int, param uint8) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[set].bytes[param]
}

// RealParam returns the last double value written for a set.
func (s *Simulator) RealParam(set int, param uint8) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[set].reals[param]
}

func (s *Simulator) Connect(ctx context.Context, deviceNumber int) (Identity, error) {
	if deviceNumber < 1 {
		return Identity{}, fmt.Errorf("%w: no device %d", types.ErrConnection, deviceNumber)
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	return Identity{
		DeviceNumber: deviceNumber,
		BridgeType:   s.BridgeType,
		SerialNumber: int32(1000 + deviceNumber),
	}, nil
}

func (s *Simulator) WriteByteParam(ctx context.Context, set, param, value uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(set) >= types.NumSets || param >= catalog.NumByteParams {
		return &DeviceError{Code: StatusDeviceError, Message: fmt.Sprintf("bad byte param %d/%d", set, param)}
	}
	s.sets[set].bytes[param] = value
	return nil
}

func (s *Simulator) WriteRealParam(ctx context.Context, set, param uint8, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(set) >= types.NumSets || param >= catalog.NumDoubleParams {
		return &DeviceError{Code: StatusDeviceError, Message: fmt.Sprintf("bad double param %d/%d", set, param)}
	}
	s.sets[set].reals[param] = value
	return nil
}

func (s *Simulator) ScanStart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanning = true
	return nil
}

func (s *Simulator) ScanStop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanning = false
	return nil
}

func (s *Simulator) ReadTransfer(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.injected) > 0 {
		payload := s.injected[0]
		s.injected = s.injected[1:]
		return payload, nil
	}

	if !s.scanning {
		return nil, ErrNoData
	}

	for i := 0; i < types.NumSets; i++ {
		set := (s.cursor + i) % types.NumSets
		if s.sets[set].bytes[catalog.ByteActive] == 0 {
			continue
		}
		s.cursor = (set + 1) % types.NumSets
		return EncodeTransfer(s.measure(set)), nil
	}

	return nil, ErrNoData
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *Simulator) measure(set int) types.ChannelMeasurement {
	cfg := s.sets[set]
	channel := cfg.bytes[catalog.ByteChannelno]
	chType := cfg.bytes[catalog.ByteChanneltype]

	load, ok := s.loads[channel]
	if !ok {
		load = Load{Type: "R", Value: 100 * float64(channel)}
		if channel == 0 {
			load.Value = types.ReferenceFourPointOhm
			if types.ChannelType(chType) == types.ChannelTypeTwoPoint {
				load.Value = types.ReferenceTwoPointOhm
			}
		}
	}

	current := cfg.reals[catalog.DoubleCurrent]
	voltage := cfg.reals[catalog.DoubleVoltage]
	if types.ChannelType(chType) == types.ChannelTypeTwoPoint && load.Value != 0 {
		current = voltage / load.Value
	} else {
		voltage = current * load.Value
	}

	const noise = 1e-9

	return types.ChannelMeasurement{
		SetNum:    uint8(set),
		SetChar:   string(types.SetChar(set)),
		ChNum:     channel,
		ChType:    chType,
		Freq:      cfg.reals[catalog.DoubleFrequency],
		TauInt:    cfg.reals[catalog.DoubleIntegrationTime],
		IExc:      current,
		VExc:      voltage,
		SNR:       voltage / noise,
		VNoise:    noise,
		PDiss:     voltage * current,
		ZType:     load.Type,
		ZVal:      load.Value,
		ZUnit:     load.unit(),
		Timestamp: s.now().Sub(s.start).Seconds(),
	}
}
