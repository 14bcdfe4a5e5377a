package staticout

import (
	"context"
	"testing"
	"time"

	"hostmcu-go/errcode"
	"hostmcu-go/pins"
)

// Pins "ar4,!ar5": ar4 high, ar5 low, each driven exactly once.
func TestDigitalSetDrivenOnce(t *testing.T) {
	sim := pins.NewSim(32)
	reg := pins.NewRegistry(sim)

	d, err := NewDigital("leds", DigitalParams{Pins: "ar4,!ar5"}, reg)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}

	p4, _ := sim.Pin(4)
	p5, _ := sim.Pin(5)
	if !p4.Get() {
		t.Error("ar4 must be driven high")
	}
	if p5.Get() {
		t.Error("!ar5 must be driven low")
	}
	if p4.Writes() != 1 || p5.Writes() != 1 {
		t.Errorf("writes = %d/%d, want exactly one each", p4.Writes(), p5.Writes())
	}

	// Repeated startup never re-drives the pins.
	if err := d.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p4.Writes() != 1 || p5.Writes() != 1 {
		t.Error("second Startup must not touch the pins")
	}
}

func TestDigitalValidation(t *testing.T) {
	reg := pins.NewRegistry(pins.NewSim(8))

	if _, err := NewDigital("x", DigitalParams{}, reg); errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("empty pins: got %v", err)
	}
	if _, err := NewDigital("x", DigitalParams{Pins: "ar1,bogus"}, reg); errcode.Of(err) != errcode.UnknownPin {
		t.Errorf("bad pin name: got %v", err)
	}
}

func TestPWMValueScale(t *testing.T) {
	sim := pins.NewSim(32)
	reg := pins.NewRegistry(sim)

	// value in units of scale: 1.2 A of a 2.0 A scale = 60% duty.
	p, err := NewPWM("current", PWMParams{Pin: "ar6", Value: 1.2, Scale: 2.0, CycleTime: 0.02}, reg)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}

	sp, _ := sim.Pin(6)
	if got := sp.Duty(); got < 0.599 || got > 0.601 {
		t.Errorf("duty = %v, want 0.6", got)
	}
	if cycle, hard := sp.CycleTime(); cycle != 20*time.Millisecond || hard {
		t.Errorf("cycle = %v hard = %v, want 20ms soft", cycle, hard)
	}

	writes := sp.Writes()
	_ = p.Startup(context.Background())
	if sp.Writes() != writes {
		t.Error("second Startup must not re-apply the duty")
	}
}

func TestPWMValidation(t *testing.T) {
	reg := pins.NewRegistry(pins.NewSim(8))

	// Rejected at resolution time, not at runtime.
	if _, err := NewPWM("x", PWMParams{Pin: "ar1", Value: 1.5}, reg); errcode.Of(err) != errcode.ValueOutOfRange {
		t.Errorf("value > scale: got %v", err)
	}
	if _, err := NewPWM("x", PWMParams{Pin: "ar1", Value: -0.1}, reg); errcode.Of(err) != errcode.ValueOutOfRange {
		t.Errorf("negative value: got %v", err)
	}
	if _, err := NewPWM("x", PWMParams{Value: 0.5}, reg); errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("missing pin: got %v", err)
	}

	// Defaults: scale 1.0, cycle 100ms.
	sim := pins.NewSim(8)
	reg = pins.NewRegistry(sim)
	p, err := NewPWM("x", PWMParams{Pin: "ar2", Value: 1.0}, reg)
	if err != nil {
		t.Fatal(err)
	}
	_ = p.Startup(context.Background())
	sp, _ := sim.Pin(2)
	if cycle, _ := sp.CycleTime(); cycle != DefaultCycleTime {
		t.Errorf("default cycle = %v, want %v", cycle, DefaultCycleTime)
	}
	if p.Duty() != 1.0 {
		t.Errorf("duty = %v, want 1.0", p.Duty())
	}
}
