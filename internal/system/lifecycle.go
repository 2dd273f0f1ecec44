// Package system wires the bridge controller to its transport, recorders,
// metrics, set plan and acquisition poller, and owns their lifecycle.
package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/acquisition"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/bridge"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/config"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/controller"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/monitor"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/plan"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type LifecycleManager struct {
	config    *config.Config
	transport bridge.Transport
	logger    *zap.Logger

	registry   *prometheus.Registry
	metrics    *monitor.Metrics
	controller *controller.Controller
	recorders  storage.MultiRecorder
	poller     *acquisition.Poller
	onTransfer acquisition.Handler
	transfers  atomic.Uint64

	stateMu      sync.RWMutex
	currentState SystemState
	lastErr      error

	listenersMu     sync.RWMutex
	statusListeners []chan SystemStatus

	shutdownOnce sync.Once
}

func NewLifecycleManager(cfg *config.Config, transport bridge.Transport, logger *zap.Logger) *LifecycleManager {
	reg := prometheus.NewRegistry()

	return &LifecycleManager{
		config:          cfg,
		transport:       transport,
		logger:          logger,
		registry:        reg,
		metrics:         monitor.NewMetrics(reg),
		currentState:    StateInitializing,
		statusListeners: make([]chan SystemStatus, 0),
	}
}

// OnTransfer registers a handler for every attributed transfer. It must be
// called before Start.
func (lm *LifecycleManager) OnTransfer(h acquisition.Handler) {
	lm.onTransfer = h
}

// Start connects to the bridge, applies the set plan and starts polling.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting impedance bridge core",
		zap.String("transport", lm.config.Bridge.Transport),
		zap.Int("device", lm.config.Bridge.DeviceNumber))

	lm.setState(StateInitializing)
	lm.broadcastStatus()

	if err := lm.openRecorders(ctx); err != nil {
		return lm.fail(err)
	}

	opts := []controller.Option{controller.WithMetrics(lm.metrics)}
	if len(lm.recorders) > 0 {
		opts = append(opts, controller.WithRecorder(lm.recorders))
	}

	ctrl, err := controller.Connect(ctx, lm.transport, lm.config.Bridge.DeviceNumber, lm.logger, opts...)
	if err != nil {
		return lm.fail(fmt.Errorf("failed to connect bridge: %w", err))
	}
	lm.stateMu.Lock()
	lm.controller = ctrl
	lm.stateMu.Unlock()

	if err := lm.applyPlan(ctx); err != nil {
		return lm.fail(err)
	}

	lm.poller = acquisition.NewPoller(ctrl, lm.config.Acquisition.PollInterval, lm.handleTransfer, lm.logger)
	if err := lm.poller.Start(); err != nil {
		return lm.fail(fmt.Errorf("failed to start poller: %w", err))
	}

	lm.setState(StateRunning)
	lm.broadcastStatus()

	lm.logger.Info("System started successfully",
		zap.String("session", ctrl.SessionID().String()),
		zap.Int("recorders", len(lm.recorders)),
		zap.Duration("poll_interval", lm.config.Acquisition.PollInterval))

	return nil
}

func (lm *LifecycleManager) openRecorders(ctx context.Context) error {
	if lm.config.Database.Enabled {
		client, err := storage.NewPostgresClient(ctx, lm.config.Database)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		rec, err := storage.NewPostgresRecorder(ctx, client)
		if err != nil {
			client.Close()
			return err
		}
		lm.recorders = append(lm.recorders, rec)
		lm.logger.Info("PostgreSQL recorder enabled", zap.String("host", lm.config.Database.Host))
	}

	if lm.config.InfluxDB.Enabled {
		rec, err := storage.NewInfluxRecorder(ctx, lm.config.InfluxDB)
		if err != nil {
			return fmt.Errorf("failed to connect influxdb: %w", err)
		}
		lm.recorders = append(lm.recorders, rec)
		lm.logger.Info("InfluxDB recorder enabled", zap.String("url", lm.config.InfluxDB.URL))
	}

	return nil
}

func (lm *LifecycleManager) applyPlan(ctx context.Context) error {
	if lm.config.Plan.Path == "" {
		lm.logger.Info("No set plan configured, all sets inactive")
		return nil
	}

	loader, err := plan.NewLoader(lm.logger)
	if err != nil {
		return err
	}
	p, err := loader.Load(lm.config.Plan.Path)
	if err != nil {
		return err
	}
	if err := plan.Apply(ctx, lm.Controller(), p, lm.logger); err != nil {
		return fmt.Errorf("failed to apply set plan: %w", err)
	}

	if p.Scan {
		if err := lm.Controller().Start(ctx); err != nil {
			return fmt.Errorf("failed to start scanning: %w", err)
		}
	}
	return nil
}

func (lm *LifecycleManager) handleTransfer(t *controller.Transfer) {
	lm.transfers.Add(1)
	if lm.onTransfer != nil {
		lm.onTransfer(t)
	}
}

// Shutdown stops polling and scanning, then releases the bridge and the
// recorders.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		lm.broadcastStatus()

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		lm.broadcastStatus()
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	if lm.poller != nil {
		lm.poller.Stop()
	}

	var errs []error
	if ctrl := lm.Controller(); ctrl != nil {
		if ctrl.Scanning() {
			if err := ctrl.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("scan stop failed: %w", err))
			}
		}
		if err := ctrl.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bridge close failed: %w", err))
		}
	} else if lm.transport != nil {
		if err := lm.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("transport close failed: %w", err))
		}
	}

	if err := lm.recorders.Close(); err != nil {
		errs = append(errs, fmt.Errorf("recorder close failed: %w", err))
	}

	if len(errs) == 0 {
		lm.logger.Info("Graceful shutdown completed")
	}
	return errors.Join(errs...)
}

func (lm *LifecycleManager) fail(err error) error {
	lm.logger.Error("System start failed", zap.Error(err))
	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.lastErr = err
	lm.stateMu.Unlock()
	lm.broadcastStatus()
	return err
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil && lm.currentState != state {
		lm.logger.Warn("Unexpected state transition", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// Status returns the system state and, once connected, the bridge status.
func (lm *LifecycleManager) Status() SystemStatus {
	lm.stateMu.RLock()
	status := SystemStatus{
		State:     lm.currentState,
		Transfers: lm.transfers.Load(),
		Timestamp: time.Now().Unix(),
	}
	if lm.lastErr != nil {
		status.Error = lm.lastErr.Error()
	}
	ctrl := lm.controller
	lm.stateMu.RUnlock()

	if ctrl != nil {
		bs := ctrl.Status()
		status.Bridge = &bs
	}
	return status
}

func (lm *LifecycleManager) broadcastStatus() {
	status := lm.Status()

	lm.listenersMu.RLock()
	defer lm.listenersMu.RUnlock()

	for _, listener := range lm.statusListeners {
		select {
		case listener <- status:
		default:
			// Channel full, skip
		}
	}
}

func (lm *LifecycleManager) SubscribeStatus() chan SystemStatus {
	ch := make(chan SystemStatus, 10)

	lm.listenersMu.Lock()
	lm.statusListeners = append(lm.statusListeners, ch)
	lm.listenersMu.Unlock()

	return ch
}

func (lm *LifecycleManager) UnsubscribeStatus(ch chan SystemStatus) {
	lm.listenersMu.Lock()
	defer lm.listenersMu.Unlock()

	for i, listener := range lm.statusListeners {
		if listener == ch {
			lm.statusListeners = append(lm.statusListeners[:i], lm.statusListeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Controller returns the bridge controller, nil before Start succeeds.
func (lm *LifecycleManager) Controller() *controller.Controller {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.controller
}

func (lm *LifecycleManager) Gatherer() prometheus.Gatherer {
	return lm.registry
}

func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}
