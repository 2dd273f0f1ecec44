package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/config"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/controller"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/monitor"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/system"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	flags := pflag.NewFlagSet("bridgectl", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to YAML config file")
	flags.String("transport", "sim", "bridge transport: tcp, serial or sim")
	flags.String("address", "127.0.0.1:5025", "gateway address for tcp transport")
	flags.String("serial-port", "", "serial port for serial transport")
	flags.Int("device", 1, "instrument device number")
	flags.StringP("plan", "p", "", "path to YAML set plan")
	flags.Duration("poll-interval", 500*time.Millisecond, "transfer poll interval")
	flags.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	flags.String("log-level", "info", "log level")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	transport, err := system.NewTransport(cfg.Bridge)
	if err != nil {
		logger.Fatal("Failed to create transport", zap.Error(err))
	}

	lifecycle := system.NewLifecycleManager(cfg, transport, logger)
	lifecycle.OnTransfer(func(t *controller.Transfer) {
		m := t.Measurement
		fmt.Printf("%s ch%-2d %s = %.6g %s  f=%g Hz  SNR=%.3g\n",
			m.SetChar, m.ChNum, m.ZType, m.ZVal, m.ZUnit, m.Freq, m.SNR)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := lifecycle.Start(ctx); err != nil {
		_ = lifecycle.Shutdown(context.Background())
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	run(ctx, lifecycle, cfg.Acquisition, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lifecycle.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Bridge stopped successfully")
}

// run blocks until ctx is cancelled or the configured duration has passed,
// logging a status summary every status interval.
func run(ctx context.Context, lifecycle *system.LifecycleManager, cfg config.AcquisitionConfig, logger *zap.Logger) {
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	ticker := time.NewTicker(cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping acquisition", zap.NamedError("reason", context.Cause(ctx)))
			return
		case <-ticker.C:
			logStatus(lifecycle, logger)
		}
	}
}

func logStatus(lifecycle *system.LifecycleManager, logger *zap.Logger) {
	status := lifecycle.Status()
	fields := []zap.Field{
		zap.Stringer("state", status.State),
		zap.Uint64("transfers", status.Transfers),
	}

	if status.Bridge != nil {
		active := 0
		for _, s := range status.Bridge.Sets {
			if s.Active {
				active++
			}
		}
		fields = append(fields,
			zap.String("scan", string(status.Bridge.ScanState)),
			zap.Int("active_sets", active))
	}

	if snap, err := monitor.Snapshot(lifecycle.Gatherer()); err == nil {
		fields = append(fields,
			zap.Float64("ambiguous", snap["bridge_ambiguous_attributions_total"]),
			zap.Float64("recorder_errors", snap["bridge_recorder_errors_total"]))
	}

	logger.Info("Bridge status", fields...)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level

	return zcfg.Build()
}
