// Package extruder implements additional extruders beyond the primary one.
// The driver owns the stepper control pins and the tool-change scripts; the
// motion pipeline that actually generates steps lives elsewhere.
package extruder

import (
	"context"
	"strings"

	"github.com/google/shlex"

	"hostmcu-go/errcode"
	"hostmcu-go/pins"
)

// DefaultStepDistance is in millimetres of filament per step.
const DefaultStepDistance = 0.010

// Params declares an extra extruder. The gcode fields are newline-separated
// command sequences run on tool-change events; empty means no-op.
type Params struct {
	StepPin         string  `json:"step_pin"`
	DirPin          string  `json:"dir_pin"`
	EnablePin       string  `json:"enable_pin,omitempty"`
	StepDistance    float64 `json:"step_distance,omitempty"`
	ActivateGcode   string  `json:"activate_gcode,omitempty"`
	DeactivateGcode string  `json:"deactivate_gcode,omitempty"`
}

// Command is one tokenized gcode line.
type Command []string

// ScriptRunner executes tool-change commands. The runtime provides one
// backed by its command dispatcher.
type ScriptRunner interface {
	Run(ctx context.Context, cmd Command) error
}

type Device struct {
	name         string
	step         pins.GPIO
	dir          pins.GPIO
	enable       pins.GPIO // nil when undeclared
	enableInvert bool
	stepDist     float64
	activate     []Command
	deactivate   []Command
	active       bool
}

// New validates the declaration, tokenizes both scripts and claims the
// stepper pins. Script syntax errors surface here, not on tool change.
func New(name string, p Params, reg *pins.Registry) (*Device, error) {
	if p.StepPin == "" || p.DirPin == "" {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "extruder.New", Msg: "step_pin and dir_pin required"}
	}
	stepDist := p.StepDistance
	if stepDist == 0 {
		stepDist = DefaultStepDistance
	}
	if stepDist < 0 {
		return nil, &errcode.E{C: errcode.ValueOutOfRange, Op: "extruder.New", Msg: "step_distance"}
	}
	activate, err := parseScript(p.ActivateGcode)
	if err != nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "extruder.New", Msg: "activate_gcode", Err: err}
	}
	deactivate, err := parseScript(p.DeactivateGcode)
	if err != nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "extruder.New", Msg: "deactivate_gcode", Err: err}
	}
	d := &Device{
		name:       name,
		stepDist:   stepDist,
		activate:   activate,
		deactivate: deactivate,
	}
	stepH, err := reg.Claim(name, p.StepPin, pins.FuncGPIOOut)
	if err != nil {
		return nil, err
	}
	d.step = stepH.AsGPIO()
	dirH, err := reg.Claim(name, p.DirPin, pins.FuncGPIOOut)
	if err != nil {
		return nil, err
	}
	d.dir = dirH.AsGPIO()
	if p.EnablePin != "" {
		enName, invert := pins.ParseInverted(p.EnablePin)
		enH, err := reg.Claim(name, enName, pins.FuncGPIOOut)
		if err != nil {
			return nil, err
		}
		d.enable = enH.AsGPIO()
		d.enableInvert = invert
	}
	return d, nil
}

// parseScript splits a newline-separated gcode sequence into tokenized
// commands. Blank lines are skipped.
func parseScript(script string) ([]Command, error) {
	var cmds []Command
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tokens, err := shlex.Split(line)
		if err != nil {
			return nil, err
		}
		if len(tokens) > 0 {
			cmds = append(cmds, Command(tokens))
		}
	}
	return cmds, nil
}

func (d *Device) Name() string { return d.name }

// StepDistance reports millimetres of filament per step.
func (d *Device) StepDistance() float64 { return d.stepDist }

// Startup parks the stepper: step and dir low, driver disabled.
func (d *Device) Startup(context.Context) error {
	if err := d.step.ConfigureOutput(false); err != nil {
		return err
	}
	if err := d.dir.ConfigureOutput(false); err != nil {
		return err
	}
	if d.enable != nil {
		return d.enable.ConfigureOutput(d.enableLevel(false))
	}
	return nil
}

func (d *Device) enableLevel(on bool) bool {
	if d.enableInvert {
		return !on
	}
	return on
}

func (d *Device) Close() error { return nil }

// Active reports whether this extruder is the current tool.
func (d *Device) Active() bool { return d.active }

// Activate makes this extruder the current tool: the activate script runs
// first, then the driver is enabled. Activating the active tool is a no-op.
func (d *Device) Activate(ctx context.Context, run ScriptRunner) error {
	if d.active {
		return nil
	}
	if err := d.runScript(ctx, run, d.activate); err != nil {
		return err
	}
	d.active = true
	if d.enable != nil {
		d.enable.Set(d.enableLevel(true))
	}
	return nil
}

// Deactivate releases the tool: the driver is disabled first, then the
// deactivate script runs.
func (d *Device) Deactivate(ctx context.Context, run ScriptRunner) error {
	if !d.active {
		return nil
	}
	d.active = false
	if d.enable != nil {
		d.enable.Set(d.enableLevel(false))
	}
	return d.runScript(ctx, run, d.deactivate)
}

func (d *Device) runScript(ctx context.Context, run ScriptRunner, cmds []Command) error {
	if run == nil {
		return nil
	}
	for _, cmd := range cmds {
		if err := run.Run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}
