package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/catalog"
)

func TestSimulatorScansActiveSetsInOrder(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	for _, set := range []uint8{1, 4, 9} {
		sim.WriteByteParam(ctx, set, catalog.ByteActive, 1)
		sim.WriteByteParam(ctx, set, catalog.ByteChannelno, set)
	}
	sim.SetLoad(4, Load{Type: "C", Value: 1e-9})
	sim.ScanStart(ctx)

	var order []uint8
	for i := 0; i < 4; i++ {
		payload, err := sim.ReadTransfer(ctx)
		if err != nil {
			t.Fatalf("ReadTransfer() error: %v", err)
		}
		tr, err := DecodeTransfer(payload)
		if err != nil {
			t.Fatalf("DecodeTransfer() error: %v", err)
		}
		order = append(order, tr.SetHint)

		if tr.PhysicalChannel == 4 && (tr.Measurement.ZType != "C" || tr.Measurement.ZUnit != "F") {
			t.Errorf("channel 4 measured %s %s, want C F", tr.Measurement.ZType, tr.Measurement.ZUnit)
		}
	}

	want := []uint8{1, 4, 9, 1}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("scan order = %v, want %v", order, want)
		}
	}
}

func TestSimulatorInjectedPayloadsFirst(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()
	sim.Inject([]byte{1, 2, 3})

	payload, err := sim.ReadTransfer(ctx)
	if err != nil || len(payload) != 3 {
		t.Fatalf("ReadTransfer() = %v, %v; want injected payload", payload, err)
	}
	if _, err := sim.ReadTransfer(ctx); !errors.Is(err, ErrNoData) {
		t.Errorf("ReadTransfer() error = %v, want ErrNoData", err)
	}
}

func TestSimulatorReferenceChannel(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()
	sim.WriteByteParam(ctx, 0, catalog.ByteActive, 1)
	sim.ScanStart(ctx)

	payload, _ := sim.ReadTransfer(ctx)
	tr, err := DecodeTransfer(payload)
	if err != nil {
		t.Fatalf("DecodeTransfer() error: %v", err)
	}
	if tr.Measurement.ZVal != 20e3 {
		t.Errorf("2p internal reference = %v, want 20e3", tr.Measurement.ZVal)
	}
}
