// Package controller is the public operation surface over one impedance
// bridge: set configuration, scan control, transfers and cached reads.
//
// A Controller exclusively owns its set registry and measurement cache and
// guards both with a single mutex, so a transfer always sees a consistent
// set to physical channel mapping.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/bridge"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/cache"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/catalog"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/dispatch"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/monitor"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/registry"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/storage"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Controller struct {
	logger    *zap.Logger
	transport bridge.Transport
	identity  bridge.Identity
	sessionID uuid.UUID
	recorder  storage.Recorder
	metrics   *monitor.Metrics

	mu         sync.Mutex
	registry   *registry.Registry
	cache      *cache.Cache
	dispatcher *dispatch.Dispatcher
	scanState  ScanState
}

type Option func(*Controller)

// WithRecorder stores every attributed measurement of a set with Savedata=1.
func WithRecorder(r storage.Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

func WithMetrics(m *monitor.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Connect verifies the instrument behind transport and returns a controller
// with all 11 sets inactive and an empty cache.
func Connect(ctx context.Context, transport bridge.Transport, deviceNumber int, logger *zap.Logger, opts ...Option) (*Controller, error) {
	identity, err := transport.Connect(ctx, deviceNumber)
	if err != nil {
		if !errors.Is(err, types.ErrConnection) {
			err = fmt.Errorf("%w: %w", types.ErrConnection, err)
		}
		return nil, err
	}

	c := &Controller{
		transport: transport,
		identity:  identity,
		sessionID: uuid.New(),
		scanState: ScanStopped,
		cache:     cache.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger = logger.With(zap.String("session", c.sessionID.String()))
	c.registry = registry.New(&meteredWriter{transport: transport, metrics: c.metrics}, c.logger)
	c.dispatcher = dispatch.NewDispatcher(c.registry, c.cache, c.logger)

	c.logger.Info("Connected to LCR bridge",
		zap.Int("device", identity.DeviceNumber),
		zap.Int32("bridge_type", identity.BridgeType),
		zap.Int32("serial_number", identity.SerialNumber))

	return c, nil
}

func (c *Controller) SessionID() uuid.UUID {
	return c.sessionID
}

func (c *Controller) Identity() bridge.Identity {
	return c.identity
}

// InitChannel merges config into a set; unspecified fields keep their
// previous values.
func (c *Controller) InitChannel(ctx context.Context, set int, config map[string]float64) (types.SetSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.registry.InitChannel(ctx, set, config)
	c.updateActiveGauge()
	if err != nil {
		return snap, err
	}

	c.logger.Info("Set initialized",
		zap.Int("set", set),
		zap.Bool("active", snap.Active),
		zap.Uint8("channel", snap.PhysicalChannel),
		zap.Stringer("channel_type", snap.ChannelType))

	return snap, nil
}

func (c *Controller) WriteVar(ctx context.Context, set int, name string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.registry.WriteVar(ctx, set, name, value)
	c.updateActiveGauge()
	return err
}

// Deactivate stops the instrument from scanning a set. Its last cached
// measurement stays readable.
func (c *Controller) Deactivate(ctx context.Context, set int) error {
	return c.WriteVar(ctx, set, "Active", 0)
}

func (c *Controller) Snapshot(set int) (types.SetSnapshot, error) {
	if err := types.CheckSetIndex(set); err != nil {
		return types.SetSnapshot{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Snapshot(set), nil
}

func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transport.ScanStart(ctx); err != nil {
		return err
	}
	c.scanState = ScanRunning
	c.logger.Info("Started measuring")
	return nil
}

func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("Stopping measurement")
	if err := c.transport.ScanStop(ctx); err != nil {
		return err
	}
	c.scanState = ScanStopped
	return nil
}

func (c *Controller) Scanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanState == ScanRunning
}

// TransferData pulls at most one transfer from the instrument and routes it
// into the cache. It returns nil without error when there is no new data:
// nothing was ready, or no active set maps to the reported channel.
func (c *Controller) TransferData(ctx context.Context) (*Transfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	started := time.Now()

	payload, err := c.transport.ReadTransfer(ctx)
	if errors.Is(err, bridge.ErrNoData) {
		c.metrics.ObserveTransfer(monitor.OutcomeNoData, time.Since(started))
		return nil, nil
	}
	if err != nil {
		c.metrics.ObserveTransfer(monitor.OutcomeDeviceErr, time.Since(started))
		return nil, err
	}

	out, err := c.dispatcher.Dispatch(payload)
	if err != nil {
		c.metrics.ObserveTransfer(monitor.OutcomeDecodeErr, time.Since(started))
		return nil, err
	}
	if out.Ambiguity != nil {
		c.metrics.IncAmbiguous()
	}
	if !out.Attributed() {
		c.metrics.ObserveTransfer(monitor.OutcomeDiscarded, time.Since(started))
		return nil, nil
	}
	c.metrics.ObserveTransfer(monitor.OutcomeAttributed, time.Since(started))

	entry, err := c.cache.Entry(out.Set)
	if err != nil {
		return nil, err
	}

	t := &Transfer{
		Set:         out.Set,
		Measurement: entry.Measurement,
		Sequence:    entry.Sequence,
		ReceivedAt:  entry.UpdatedAt,
		Ambiguous:   out.Ambiguity != nil,
	}

	c.logger.Debug("Transferred set data",
		zap.Int("set", t.Set),
		zap.Uint8("channel", t.Measurement.ChNum),
		zap.String("z_type", t.Measurement.ZType),
		zap.Float64("z_val", t.Measurement.ZVal),
		zap.String("z_unit", t.Measurement.ZUnit))

	c.record(ctx, t)

	return t, nil
}

// record hands the transfer to the recorder when the set has Savedata on.
// Recorder failures never fail the transfer; the cache is already updated.
func (c *Controller) record(ctx context.Context, t *Transfer) {
	if c.recorder == nil {
		return
	}

	snap := c.registry.Snapshot(t.Set)
	if snap.SaveData != 1 {
		return
	}

	err := c.recorder.Record(ctx, storage.Record{
		SessionID:   c.sessionID,
		Set:         snap,
		Measurement: t.Measurement,
		Sequence:    t.Sequence,
		ReceivedAt:  t.ReceivedAt,
	})
	if err != nil {
		c.metrics.IncRecorderError()
		c.logger.Warn("Failed to record measurement",
			zap.Int("set", t.Set),
			zap.Error(err))
	}
}

// Status summarizes every set, active or not.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	sets := make([]types.SetStatus, types.NumSets)
	for i := range sets {
		snap := c.registry.Snapshot(i)
		entry, _ := c.cache.Entry(i)

		s := types.SetStatus{
			Index:           i,
			Char:            snap.Char,
			Active:          snap.Active,
			PhysicalChannel: snap.PhysicalChannel,
			ChannelType:     snap.ChannelType,
			HasData:         entry.Valid,
			LastUpdated:     entry.Sequence,
		}
		if entry.Valid {
			s.ZType = entry.Measurement.ZType
			s.ZVal = entry.Measurement.ZVal
			s.ZUnit = entry.Measurement.ZUnit
			s.Freq = entry.Measurement.Freq
		}
		sets[i] = s
	}

	return Status{
		SessionID:    c.sessionID.String(),
		DeviceNumber: c.identity.DeviceNumber,
		BridgeType:   c.identity.BridgeType,
		SerialNumber: c.identity.SerialNumber,
		ScanState:    c.scanState,
		Sets:         sets,
	}
}

// ReadVar returns the last measurement attributed to a set.
func (c *Controller) ReadVar(set int) (types.ChannelMeasurement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Read(set)
}

// ReadAll returns the last measurement of every set that has one.
func (c *Controller) ReadAll() map[int]types.ChannelMeasurement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.ReadAll()
}

// ReadParam reads one named parameter of a set. Measurement results come
// from the cache, configuration from the registry.
func (c *Controller) ReadParam(set int, name string) (any, error) {
	p, err := catalog.Lookup(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p.Category != types.CategoryChannel {
		return c.registry.Value(set, name)
	}

	m, err := c.cache.Read(set)
	if err != nil {
		return nil, err
	}
	v, ok := measurementField(m, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownParameter, name)
	}
	return v, nil
}

// Latest returns the most recently updated set and its measurement.
func (c *Controller) Latest() (int, types.ChannelMeasurement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, entry, ok := c.cache.Latest()
	if !ok {
		return 0, types.ChannelMeasurement{}, fmt.Errorf("%w: no transfer observed", types.ErrNoDataYet)
	}
	return set, entry.Measurement, nil
}

func (c *Controller) Close() error {
	c.logger.Info("Closing LCR bridge connection")
	return c.transport.Close()
}

func (c *Controller) updateActiveGauge() {
	active := 0
	for _, snap := range c.registry.Snapshots() {
		if snap.Active {
			active++
		}
	}
	c.metrics.SetActiveSets(active)
}

// meteredWriter counts parameter writes on their way to the transport.
type meteredWriter struct {
	transport bridge.Transport
	metrics   *monitor.Metrics
}

func (w *meteredWriter) WriteByteParam(ctx context.Context, set, param, value uint8) error {
	err := w.transport.WriteByteParam(ctx, set, param, value)
	w.metrics.ObserveWrite(string(types.CategoryByte), err)
	return err
}

func (w *meteredWriter) WriteRealParam(ctx context.Context, set, param uint8, value float64) error {
	err := w.transport.WriteRealParam(ctx, set, param, value)
	w.metrics.ObserveWrite(string(types.CategoryDouble), err)
	return err
}
