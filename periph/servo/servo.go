// Package servo drives a hobby RC servo from a PWM pin. A servo expects a
// 20ms signal period with a pulse width between roughly 1ms and 2ms; the
// driver maps angles onto that pulse range.
package servo

import (
	"context"
	"time"

	"hostmcu-go/errcode"
	"hostmcu-go/pins"
	"hostmcu-go/x/mathx"
	"hostmcu-go/x/timex"
)

// SignalPeriod is the fixed servo PWM period.
const SignalPeriod = 20 * time.Millisecond

const (
	DefaultMinWidth = 0.001 // seconds
	DefaultMaxWidth = 0.002 // seconds
	DefaultMaxAngle = 180.0 // degrees
)

// Params declares a servo. Widths are in seconds. Exactly one of Angle and
// InitialPulseWidth may set the startup position; unset means the pin idles
// at zero duty until the first command.
type Params struct {
	Pin               string   `json:"pin"`
	MinWidth          float64  `json:"minimum_pulse_width,omitempty"`
	MaxWidth          float64  `json:"maximum_pulse_width,omitempty"`
	MaxAngle          float64  `json:"maximum_servo_angle,omitempty"`
	InitialAngle      *float64 `json:"initial_angle,omitempty"`
	InitialPulseWidth *float64 `json:"initial_pulse_width,omitempty"`
}

type Device struct {
	name     string
	pwm      pins.PWM
	minWidth float64
	maxWidth float64
	maxAngle float64
	initial  float64
	started  bool
}

// New validates the pulse geometry and claims the pin.
func New(name string, p Params, reg *pins.Registry) (*Device, error) {
	if p.Pin == "" {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "servo.New", Msg: "pin required"}
	}
	minWidth := p.MinWidth
	if minWidth == 0 {
		minWidth = DefaultMinWidth
	}
	maxWidth := p.MaxWidth
	if maxWidth == 0 {
		maxWidth = DefaultMaxWidth
	}
	period := timex.Seconds(SignalPeriod)
	if minWidth <= 0 || minWidth >= period {
		return nil, &errcode.E{C: errcode.ValueOutOfRange, Op: "servo.New", Msg: "minimum_pulse_width"}
	}
	if maxWidth <= minWidth || maxWidth >= period {
		return nil, &errcode.E{C: errcode.ValueOutOfRange, Op: "servo.New", Msg: "maximum_pulse_width"}
	}
	maxAngle := p.MaxAngle
	if maxAngle == 0 {
		maxAngle = DefaultMaxAngle
	}
	if maxAngle <= 0 {
		return nil, &errcode.E{C: errcode.ValueOutOfRange, Op: "servo.New", Msg: "maximum_servo_angle"}
	}
	if p.InitialAngle != nil && p.InitialPulseWidth != nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "servo.New", Msg: "initial_angle and initial_pulse_width are exclusive"}
	}
	h, err := reg.Claim(name, p.Pin, pins.FuncPWM)
	if err != nil {
		return nil, err
	}
	d := &Device{
		name:     name,
		pwm:      h.AsPWM(),
		minWidth: minWidth,
		maxWidth: maxWidth,
		maxAngle: maxAngle,
	}
	switch {
	case p.InitialAngle != nil:
		d.initial = d.dutyFromAngle(*p.InitialAngle)
	case p.InitialPulseWidth != nil:
		d.initial = d.dutyFromWidth(*p.InitialPulseWidth)
	}
	return d, nil
}

func (d *Device) Name() string { return d.name }

// Startup configures the 20ms period and applies the initial position.
func (d *Device) Startup(context.Context) error {
	if d.started {
		return nil
	}
	d.started = true
	if err := d.pwm.Configure(SignalPeriod, false); err != nil {
		return err
	}
	d.pwm.SetDuty(d.initial)
	return nil
}

func (d *Device) Close() error { return nil }

// SetAngle moves the servo to an angle in degrees, clamped to
// [0, maximum_servo_angle].
func (d *Device) SetAngle(angle float64) {
	d.pwm.SetDuty(d.dutyFromAngle(angle))
}

// SetPulseWidth commands a raw pulse width in seconds. Zero releases the
// servo; any other width is clamped to the configured pulse range.
func (d *Device) SetPulseWidth(width float64) {
	d.pwm.SetDuty(d.dutyFromWidth(width))
}

func (d *Device) dutyFromAngle(angle float64) float64 {
	angle = mathx.Clamp(angle, 0, d.maxAngle)
	width := d.minWidth + angle*(d.maxWidth-d.minWidth)/d.maxAngle
	return width / timex.Seconds(SignalPeriod)
}

func (d *Device) dutyFromWidth(width float64) float64 {
	if width == 0 {
		return 0
	}
	width = mathx.Clamp(width, d.minWidth, d.maxWidth)
	return width / timex.Seconds(SignalPeriod)
}
