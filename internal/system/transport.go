package system

import (
	"fmt"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/bridge"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/config"
)

// NewTransport builds the device transport selected by cfg.Transport.
func NewTransport(cfg config.BridgeConfig) (bridge.Transport, error) {
	switch cfg.Transport {
	case "tcp":
		return bridge.NewTCPClient(cfg.Address, cfg.Timeout), nil
	case "serial":
		return bridge.NewSerialClient(cfg.SerialPort, cfg.BaudRate, cfg.Timeout), nil
	case "sim":
		return bridge.NewSimulator(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
