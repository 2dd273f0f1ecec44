package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/catalog"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
	"go.uber.org/zap/zaptest"
)

type write struct {
	set, param uint8
	category   types.Category
	value      float64
}

// fakeWriter records writes and fails once failAfter writes have succeeded.
type fakeWriter struct {
	writes    []write
	failAfter int
}

var errLink = errors.New("link down")

func (f *fakeWriter) record(w write) error {
	if f.failAfter > 0 && len(f.writes) >= f.failAfter {
		return errLink
	}
	f.writes = append(f.writes, w)
	return nil
}

func (f *fakeWriter) WriteByteParam(ctx context.Context, set, param, value uint8) error {
	return f.record(write{set: set, param: param, category: types.CategoryByte, value: float64(value)})
}

func (f *fakeWriter) WriteRealParam(ctx context.Context, set, param uint8, value float64) error {
	return f.record(write{set: set, param: param, category: types.CategoryDouble, value: value})
}

func newTestRegistry(t *testing.T) (*Registry, *fakeWriter) {
	w := &fakeWriter{}
	return New(w, zaptest.NewLogger(t)), w
}

func TestNewRegistryInactive(t *testing.T) {
	r, _ := newTestRegistry(t)
	for i, snap := range r.Snapshots() {
		if snap.Active || snap.Index != i {
			t.Errorf("set %d: active=%v index=%d", i, snap.Active, snap.Index)
		}
	}
	if got := r.Snapshot(10).Char; got != "K" {
		t.Errorf("set 10 char = %q, want K", got)
	}
}

func TestInitChannelPartialMerge(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	if _, err := r.InitChannel(ctx, 3, map[string]float64{"Frequency": 1000}); err != nil {
		t.Fatalf("InitChannel() error: %v", err)
	}
	snap, err := r.InitChannel(ctx, 3, map[string]float64{"Voltage": 0.5})
	if err != nil {
		t.Fatalf("InitChannel() error: %v", err)
	}

	if snap.Frequency != 1000 || snap.Voltage != 0.5 {
		t.Errorf("snapshot frequency=%v voltage=%v, want 1000 and 0.5", snap.Frequency, snap.Voltage)
	}
}

func TestInitChannelSendsOnlyChangedFields(t *testing.T) {
	ctx := context.Background()
	r, w := newTestRegistry(t)

	cfg := map[string]float64{"Active": 1, "Channelno": 4, "Frequency": 13}
	if _, err := r.InitChannel(ctx, 1, cfg); err != nil {
		t.Fatalf("InitChannel() error: %v", err)
	}
	if len(w.writes) != 3 {
		t.Fatalf("first init sent %d writes, want 3", len(w.writes))
	}
	// bytes go out before doubles, in id order
	if w.writes[0].param != catalog.ByteActive || w.writes[1].param != catalog.ByteChannelno || w.writes[2].category != types.CategoryDouble {
		t.Errorf("write order = %+v", w.writes)
	}

	cfg["Frequency"] = 20
	if _, err := r.InitChannel(ctx, 1, cfg); err != nil {
		t.Fatalf("InitChannel() error: %v", err)
	}
	if len(w.writes) != 4 || w.writes[3].value != 20 {
		t.Errorf("second init writes = %+v, want only Frequency=20 added", w.writes)
	}
}

func TestInitChannelValidationIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	r, w := newTestRegistry(t)

	_, err := r.InitChannel(ctx, 2, map[string]float64{"Frequency": 500, "Channeltype": 5})
	if !errors.Is(err, types.ErrInvalidValue) {
		t.Fatalf("InitChannel() error = %v, want ErrInvalidValue", err)
	}
	if len(w.writes) != 0 {
		t.Errorf("validation failure sent %d writes", len(w.writes))
	}
	if r.Snapshot(2).Frequency != 0 {
		t.Error("validation failure mutated the set")
	}

	if _, err := r.InitChannel(ctx, 2, map[string]float64{"frequency": 1}); !errors.Is(err, types.ErrUnknownParameter) {
		t.Errorf("InitChannel(lowercase) error = %v, want ErrUnknownParameter", err)
	}
	if _, err := r.InitChannel(ctx, 2, map[string]float64{"z_val": 1}); !errors.Is(err, types.ErrInvalidValue) {
		t.Errorf("InitChannel(z_val) error = %v, want ErrInvalidValue", err)
	}
	if _, err := r.InitChannel(ctx, 11, nil); !errors.Is(err, types.ErrInvalidSetIndex) {
		t.Errorf("InitChannel(11) error = %v, want ErrInvalidSetIndex", err)
	}
}

func TestWriteVar(t *testing.T) {
	ctx := context.Background()
	r, w := newTestRegistry(t)

	if err := r.WriteVar(ctx, 5, "Frequency", 500.0); err != nil {
		t.Fatalf("WriteVar() error: %v", err)
	}
	if got := r.Snapshot(5).Frequency; got != 500.0 {
		t.Errorf("frequency = %v, want 500", got)
	}
	if v, err := r.Value(5, "Frequency"); err != nil || v != 500 {
		t.Errorf("Value(Frequency) = %v, %v", v, err)
	}
	last := w.writes[len(w.writes)-1]
	if last.set != 5 || last.param != catalog.DoubleFrequency || last.value != 500 {
		t.Errorf("device write = %+v", last)
	}
}

func TestWriteVarInvalidLeavesSetUnchanged(t *testing.T) {
	ctx := context.Background()
	r, w := newTestRegistry(t)

	r.WriteVar(ctx, 0, "Channeltype", 1)
	before := r.Snapshot(0)
	sent := len(w.writes)

	if err := r.WriteVar(ctx, 0, "Channeltype", 5); !errors.Is(err, types.ErrInvalidValue) {
		t.Fatalf("WriteVar(Channeltype=5) error = %v, want ErrInvalidValue", err)
	}
	if r.Snapshot(0) != before || len(w.writes) != sent {
		t.Error("invalid write changed state or reached the device")
	}
	if err := r.WriteVar(ctx, -1, "Active", 1); !errors.Is(err, types.ErrInvalidSetIndex) {
		t.Errorf("WriteVar(-1) error = %v, want ErrInvalidSetIndex", err)
	}
}

func TestWriteVarTransportFailureDoesNotCommit(t *testing.T) {
	ctx := context.Background()
	r, w := newTestRegistry(t)
	w.failAfter = 1

	_, err := r.InitChannel(ctx, 4, map[string]float64{"Active": 1, "Channelno": 6})
	if !errors.Is(err, errLink) {
		t.Fatalf("InitChannel() error = %v, want link failure", err)
	}
	if !errors.Is(err, types.ErrTransportWrite) {
		t.Errorf("InitChannel() error = %v, want ErrTransportWrite", err)
	}

	snap := r.Snapshot(4)
	if !snap.Active {
		t.Error("acknowledged Active write was not committed")
	}
	if snap.PhysicalChannel != 0 {
		t.Error("failed Channelno write was committed")
	}
}

func TestDeactivateAndCandidates(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	r.InitChannel(ctx, 7, map[string]float64{"Active": 1, "Channelno": 3})
	r.InitChannel(ctx, 2, map[string]float64{"Active": 1, "Channelno": 3})
	r.InitChannel(ctx, 5, map[string]float64{"Active": 1, "Channelno": 4})

	got := r.Candidates(3)
	if len(got) != 2 || got[0] != 2 || got[1] != 7 {
		t.Errorf("Candidates(3) = %v, want [2 7]", got)
	}

	if err := r.Deactivate(ctx, 2); err != nil {
		t.Fatalf("Deactivate() error: %v", err)
	}
	if got := r.Candidates(3); len(got) != 1 || got[0] != 7 {
		t.Errorf("Candidates(3) after deactivate = %v, want [7]", got)
	}

	ch, err := r.ResolvePhysical(2)
	if err != nil || ch != 3 {
		t.Errorf("ResolvePhysical(2) = %d, %v; deactivation must keep the mapping", ch, err)
	}
}
