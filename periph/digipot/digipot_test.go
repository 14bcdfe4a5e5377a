package digipot

import (
	"context"
	"testing"

	"hostmcu-go/errcode"
	"hostmcu-go/pins"
)

type fakeSPI struct {
	frames [][]byte
	err    error
}

func (s *fakeSPI) Tx(w, r []byte) error {
	frame := make([]byte, len(w))
	copy(frame, w)
	s.frames = append(s.frames, frame)
	return s.err
}

func (s *fakeSPI) Transfer(b byte) (byte, error) { return 0, s.err }

func f(v float64) *float64 { return &v }

func TestStartupWritesDeclaredChannels(t *testing.T) {
	sim := pins.NewSim(64)
	reg := pins.NewRegistry(sim)
	bus := &fakeSPI{}

	d, err := New("digipot", Params{
		EnablePin: "ar38",
		Scale:     2.0,
		Channel1:  f(1.6), // wiper 204
		Channel4:  f(2.0), // wiper 255
	}, reg, bus)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := [][]byte{{0, 204}, {3, 255}}
	if len(bus.frames) != len(want) {
		t.Fatalf("frames = %v, want %v", bus.frames, want)
	}
	for i := range want {
		if bus.frames[i][0] != want[i][0] || bus.frames[i][1] != want[i][1] {
			t.Errorf("frame %d = %v, want %v", i, bus.frames[i], want[i])
		}
	}

	// Enable pin rests high after the transfers.
	p, _ := sim.Pin(38)
	if !p.Get() {
		t.Error("enable pin must rest high")
	}

	// Startup is one-shot.
	_ = d.Startup(context.Background())
	if len(bus.frames) != len(want) {
		t.Error("second Startup must not transfer again")
	}
}

func TestUnsetChannelNeverTransfers(t *testing.T) {
	reg := pins.NewRegistry(pins.NewSim(64))
	bus := &fakeSPI{}

	d, err := New("digipot", Params{EnablePin: "ar38"}, reg, bus)
	if err != nil {
		t.Fatal(err)
	}
	_ = d.Startup(context.Background())
	if len(bus.frames) != 0 {
		t.Errorf("no channels declared, got frames %v", bus.frames)
	}
	if d.Wiper(1) != -1 {
		t.Error("unset channel must report -1")
	}
}

func TestChannelValidation(t *testing.T) {
	reg := pins.NewRegistry(pins.NewSim(64))
	bus := &fakeSPI{}

	if _, err := New("x", Params{EnablePin: "ar38", Channel2: f(1.1)}, reg, bus); errcode.Of(err) != errcode.ValueOutOfRange {
		t.Errorf("channel above scale: got %v", err)
	}
	if _, err := New("x", Params{EnablePin: "ar38", Channel6: f(-0.1)}, reg, bus); errcode.Of(err) != errcode.ValueOutOfRange {
		t.Errorf("negative channel: got %v", err)
	}
	if _, err := New("x", Params{Channel1: f(0.5)}, reg, bus); errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("missing enable pin: got %v", err)
	}
	if _, err := New("x", Params{EnablePin: "ar38"}, reg, nil); errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("missing bus: got %v", err)
	}
}
