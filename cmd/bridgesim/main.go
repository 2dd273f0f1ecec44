package main

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/bridge"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// bridgesim serves the gateway protocol on TCP, backed by the in-memory
// simulator, so bridgectl can run with --transport tcp without hardware.
func main() {
	listen := pflag.String("listen", "127.0.0.1:5025", "listen address")
	loads := pflag.StringSlice("load", nil, "channel load as CH=TYPE:VALUE, e.g. 3=R:470")
	pflag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	sim := bridge.NewSimulator()
	for _, arg := range *loads {
		channel, load, err := parseLoad(arg)
		if err != nil {
			logger.Fatal("Invalid load", zap.String("load", arg), zap.Error(err))
		}
		sim.SetLoad(channel, load)
	}

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Fatal("Failed to listen", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logger.Info("Simulated bridge listening", zap.String("address", ln.Addr().String()))

	gateway := bridge.NewGateway(sim, logger)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Info("Simulator stopped")
				return
			}
			logger.Error("Accept failed", zap.Error(err))
			os.Exit(1)
		}

		go func() {
			defer conn.Close()
			logger.Info("Client connected", zap.String("remote", conn.RemoteAddr().String()))
			if err := gateway.Serve(ctx, conn); err != nil {
				logger.Warn("Client session ended", zap.Error(err))
			}
		}()
	}
}

func parseLoad(arg string) (uint8, bridge.Load, error) {
	ch, rest, ok := strings.Cut(arg, "=")
	if !ok {
		return 0, bridge.Load{}, errors.New("missing '='")
	}
	kind, value, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, bridge.Load{}, errors.New("missing ':'")
	}

	channel, err := strconv.ParseUint(ch, 10, 8)
	if err != nil {
		return 0, bridge.Load{}, err
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, bridge.Load{}, err
	}
	switch kind {
	case "R", "L", "C":
	default:
		return 0, bridge.Load{}, errors.New("type must be R, L or C")
	}

	return uint8(channel), bridge.Load{Type: kind, Value: v}, nil
}
