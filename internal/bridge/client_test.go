package bridge

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/catalog"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
	"go.uber.org/zap/zaptest"
)

// newPipeClient connects a Client to a Gateway serving sim over net.Pipe.
func newPipeClient(t *testing.T, sim *Simulator) *Client {
	t.Helper()

	host, device := net.Pipe()
	gw := NewGateway(sim, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() {
		done <- gw.Serve(context.Background(), device)
	}()

	client := NewLinkClient("pipe", host, time.Second)
	t.Cleanup(func() {
		client.Close()
		if err := <-done; err != nil {
			t.Errorf("gateway Serve() error: %v", err)
		}
		device.Close()
	})

	return client
}

func TestClientConnect(t *testing.T) {
	ctx := context.Background()
	client := newPipeClient(t, NewSimulator())

	id, err := client.Connect(ctx, 1)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if id.BridgeType != 3 || id.SerialNumber != 1001 || id.DeviceNumber != 1 {
		t.Errorf("identity = %+v", id)
	}

	if _, err := client.Connect(ctx, 0); !errors.Is(err, types.ErrConnection) {
		t.Errorf("Connect(0) error = %v, want ErrConnection", err)
	}
}

func TestClientWritesReachDevice(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()
	client := newPipeClient(t, sim)

	if _, err := client.Connect(ctx, 1); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := client.WriteByteParam(ctx, 3, catalog.ByteChannelno, 7); err != nil {
		t.Fatalf("WriteByteParam() error: %v", err)
	}
	if err := client.WriteRealParam(ctx, 3, catalog.DoubleFrequency, 500); err != nil {
		t.Fatalf("WriteRealParam() error: %v", err)
	}

	if got := sim.ByteParam(3, catalog.ByteChannelno); got != 7 {
		t.Errorf("Channelno on device = %d, want 7", got)
	}
	if got := sim.RealParam(3, catalog.DoubleFrequency); got != 500 {
		t.Errorf("Frequency on device = %v, want 500", got)
	}

	err := client.WriteByteParam(ctx, 42, catalog.ByteActive, 1)
	var devErr *DeviceError
	if !errors.Is(err, types.ErrTransportWrite) || !errors.As(err, &devErr) {
		t.Errorf("WriteByteParam(set 42) error = %v, want transport write with device error", err)
	}
}

func TestClientTransfer(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()
	client := newPipeClient(t, sim)

	if _, err := client.Connect(ctx, 1); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	if _, err := client.ReadTransfer(ctx); !errors.Is(err, ErrNoData) {
		t.Fatalf("ReadTransfer() before scan error = %v, want ErrNoData", err)
	}

	client.WriteByteParam(ctx, 0, catalog.ByteActive, 1)
	client.WriteByteParam(ctx, 0, catalog.ByteChannelno, 2)
	if err := client.ScanStart(ctx); err != nil {
		t.Fatalf("ScanStart() error: %v", err)
	}

	payload, err := client.ReadTransfer(ctx)
	if err != nil {
		t.Fatalf("ReadTransfer() error: %v", err)
	}
	tr, err := DecodeTransfer(payload)
	if err != nil {
		t.Fatalf("DecodeTransfer() error: %v", err)
	}
	if tr.PhysicalChannel != 2 || tr.SetHint != 0 {
		t.Errorf("transfer channel/set = %d/%d, want 2/0", tr.PhysicalChannel, tr.SetHint)
	}

	if err := client.ScanStop(ctx); err != nil {
		t.Fatalf("ScanStop() error: %v", err)
	}
	if sim.Scanning() {
		t.Error("simulator still scanning after ScanStop")
	}
}

func TestClientNotConnected(t *testing.T) {
	client := NewTCPClient("127.0.0.1:1", time.Second)
	if err := client.ScanStart(context.Background()); !errors.Is(err, types.ErrNotConnected) {
		t.Errorf("ScanStart() error = %v, want ErrNotConnected", err)
	}
}

// verboseBackend fails ScanStart with an error longer than one frame.
type verboseBackend struct {
	*Simulator
	msg string
}

func (b verboseBackend) ScanStart(ctx context.Context) error {
	return errors.New(b.msg)
}

func TestClientLongDeviceErrorKeepsLink(t *testing.T) {
	ctx := context.Background()
	host, device := net.Pipe()
	defer device.Close()

	backend := verboseBackend{Simulator: NewSimulator(), msg: strings.Repeat("x", 600)}
	go NewGateway(backend, zaptest.NewLogger(t)).Serve(ctx, device)

	client := NewLinkClient("pipe", host, time.Second)
	defer client.Close()
	if _, err := client.Connect(ctx, 1); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	err := client.ScanStart(ctx)
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("ScanStart() error = %v, want DeviceError", err)
	}
	if len(devErr.Message) != maxFrameData {
		t.Errorf("message length = %d, want %d", len(devErr.Message), maxFrameData)
	}

	if err := client.ScanStop(ctx); err != nil {
		t.Errorf("ScanStop() after long error: %v", err)
	}
}

func TestClientDropsLinkOnBadFrame(t *testing.T) {
	ctx := context.Background()
	host, device := net.Pipe()
	defer device.Close()

	// Answer the first request with a header announcing an oversized body.
	go func() {
		if _, err := ReadFrame(device); err != nil {
			return
		}
		device.Write([]byte{1, 0, 0xFF, 0xFF})
	}()

	client := NewLinkClient("pipe", host, time.Second)
	client.link = host

	if err := client.ScanStart(ctx); err == nil || errors.Is(err, types.ErrNotConnected) {
		t.Fatalf("ScanStart() error = %v, want framing failure", err)
	}
	if err := client.ScanStop(ctx); !errors.Is(err, types.ErrNotConnected) {
		t.Errorf("ScanStop() error = %v, want ErrNotConnected", err)
	}
}

func TestErrorFrameTruncatesMessage(t *testing.T) {
	f := errorFrame(&DeviceError{Code: 0x81, Message: strings.Repeat("y", 2*maxFrameData)})
	if f.Status != 0x81 || len(f.Data) != maxFrameData {
		t.Errorf("frame status=0x%02X data=%d bytes", f.Status, len(f.Data))
	}

	decoded, err := ReadFrame(bytes.NewReader(f.Encode()))
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	if len(decoded.Data) != maxFrameData {
		t.Errorf("decoded %d bytes, want %d", len(decoded.Data), maxFrameData)
	}
}

// deadlineLink refuses deadlines and records whether anything was written.
type deadlineLink struct {
	written bool
	closed  bool
}

func (l *deadlineLink) Read(p []byte) (int, error)  { return 0, errors.New("unexpected read") }
func (l *deadlineLink) Write(p []byte) (int, error) { l.written = true; return len(p), nil }
func (l *deadlineLink) Close() error                { l.closed = true; return nil }
func (l *deadlineLink) SetDeadline(time.Time) error { return errors.New("deadline unsupported") }

func TestClientDeadlineFailure(t *testing.T) {
	link := &deadlineLink{}
	client := NewLinkClient("stuck", link, time.Second)
	client.link = link

	_, err := client.ReadTransfer(context.Background())
	if err == nil || !strings.Contains(err.Error(), "set deadline failed") {
		t.Fatalf("ReadTransfer() error = %v, want deadline failure", err)
	}
	if link.written || !link.closed {
		t.Errorf("written=%v closed=%v, want nothing written and link closed", link.written, link.closed)
	}
	if _, err := client.ReadTransfer(context.Background()); !errors.Is(err, types.ErrNotConnected) {
		t.Errorf("second ReadTransfer() error = %v, want ErrNotConnected", err)
	}
}
