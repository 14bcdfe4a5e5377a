package extruder

import (
	"context"
	"strings"
	"testing"

	"hostmcu-go/errcode"
	"hostmcu-go/pins"
)

type recordingRunner struct {
	cmds []Command
	err  error
}

func (r *recordingRunner) Run(_ context.Context, cmd Command) error {
	r.cmds = append(r.cmds, cmd)
	return r.err
}

func TestScriptsParsedAtResolution(t *testing.T) {
	reg := pins.NewRegistry(pins.NewSim(64))

	d, err := New("extruder1", Params{
		StepPin:   "ar36",
		DirPin:    "ar34",
		EnablePin: "!ar30",
		ActivateGcode: "SET_SERVO servo=arm angle=10\n" +
			"\n" + // blank lines are skipped
			"G4 P200",
		DeactivateGcode: "SET_SERVO servo=arm angle=90",
	}, reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.activate) != 2 || len(d.deactivate) != 1 {
		t.Fatalf("parsed %d/%d commands, want 2/1", len(d.activate), len(d.deactivate))
	}
	if got := strings.Join(d.activate[0], " "); got != "SET_SERVO servo=arm angle=10" {
		t.Errorf("first activate command = %q", got)
	}
}

func TestToolChangeRunsScripts(t *testing.T) {
	sim := pins.NewSim(64)
	reg := pins.NewRegistry(sim)
	run := &recordingRunner{}

	d, err := New("extruder1", Params{
		StepPin:         "ar36",
		DirPin:          "ar34",
		EnablePin:       "!ar30",
		ActivateGcode:   "G4 P100",
		DeactivateGcode: "G4 P200",
	}, reg)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Inverted enable pin: disabled at startup means driven high.
	en, _ := sim.Pin(30)
	if !en.Get() {
		t.Fatal("disabled driver must hold inverted enable high")
	}

	if err := d.Activate(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if !d.Active() || en.Get() {
		t.Error("activation must enable the driver")
	}
	if len(run.cmds) != 1 || run.cmds[0][0] != "G4" {
		t.Errorf("activate script not run: %v", run.cmds)
	}

	// Activating the active tool again is a no-op.
	if err := d.Activate(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if len(run.cmds) != 1 {
		t.Error("re-activation must not re-run the script")
	}

	if err := d.Deactivate(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if d.Active() || !en.Get() {
		t.Error("deactivation must disable the driver")
	}
	if len(run.cmds) != 2 {
		t.Errorf("deactivate script not run: %v", run.cmds)
	}
}

func TestEmptyScriptsAreNoOps(t *testing.T) {
	reg := pins.NewRegistry(pins.NewSim(64))
	run := &recordingRunner{}

	d, err := New("extruder1", Params{StepPin: "ar36", DirPin: "ar34"}, reg)
	if err != nil {
		t.Fatal(err)
	}
	_ = d.Startup(context.Background())
	_ = d.Activate(context.Background(), run)
	_ = d.Deactivate(context.Background(), run)
	if len(run.cmds) != 0 {
		t.Errorf("empty scripts must run nothing, got %v", run.cmds)
	}
	if d.StepDistance() != DefaultStepDistance {
		t.Errorf("step distance = %v, want default", d.StepDistance())
	}
}

func TestValidation(t *testing.T) {
	reg := pins.NewRegistry(pins.NewSim(64))

	if _, err := New("x", Params{DirPin: "ar34"}, reg); errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("missing step pin: got %v", err)
	}
	if _, err := New("x", Params{StepPin: "ar36", DirPin: "ar34", StepDistance: -1}, reg); errcode.Of(err) != errcode.ValueOutOfRange {
		t.Errorf("negative step distance: got %v", err)
	}
	// Unterminated quote: rejected at resolution, never on tool change.
	if _, err := New("x", Params{StepPin: "ar36", DirPin: "ar34", ActivateGcode: `M117 "oops`}, reg); errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("bad script: got %v", err)
	}
}
