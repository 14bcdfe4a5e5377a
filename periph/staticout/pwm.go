package staticout

import (
	"context"
	"time"

	"hostmcu-go/errcode"
	"hostmcu-go/pins"
	"hostmcu-go/x/mathx"
	"hostmcu-go/x/timex"
)

// DefaultCycleTime is the software PWM period when none is declared.
const DefaultCycleTime = 100 * time.Millisecond

// PWMParams declares a PWM output fixed at startup. Value is interpreted
// in units of Scale: with scale set to a stepper driver's maximum
// amperage, value is simply the amperage to hold.
type PWMParams struct {
	Pin       string  `json:"pin"`
	Value     float64 `json:"value"`
	HardPWM   bool    `json:"hard_pwm,omitempty"`
	CycleTime float64 `json:"cycle_time,omitempty"` // seconds, default 0.100
	Scale     float64 `json:"scale,omitempty"`      // default 1.0
}

type PWM struct {
	name    string
	pwm     pins.PWM
	duty    float64
	cycle   time.Duration
	hard    bool
	applied bool
}

// NewPWM validates the declaration and claims the pin. A value outside
// [0, scale] is rejected here, at resolution time, never at runtime.
func NewPWM(name string, p PWMParams, reg *pins.Registry) (*PWM, error) {
	if p.Pin == "" {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "staticout.NewPWM", Msg: "pin required"}
	}
	scale := p.Scale
	if scale == 0 {
		scale = 1.0
	}
	if scale < 0 {
		return nil, &errcode.E{C: errcode.ValueOutOfRange, Op: "staticout.NewPWM", Msg: "scale"}
	}
	if !mathx.Between(p.Value, 0, scale) {
		return nil, &errcode.E{C: errcode.ValueOutOfRange, Op: "staticout.NewPWM", Msg: "value"}
	}
	cycle := timex.FromSeconds(p.CycleTime)
	if cycle == 0 {
		cycle = DefaultCycleTime
	}
	h, err := reg.Claim(name, p.Pin, pins.FuncPWM)
	if err != nil {
		return nil, err
	}
	return &PWM{
		name:  name,
		pwm:   h.AsPWM(),
		duty:  p.Value / scale,
		cycle: cycle,
		hard:  p.HardPWM,
	}, nil
}

func (p *PWM) Name() string { return p.name }

// Duty reports the logical duty in [0, 1].
func (p *PWM) Duty() float64 { return p.duty }

// Startup configures the PWM channel and applies the duty once.
func (p *PWM) Startup(context.Context) error {
	if p.applied {
		return nil
	}
	p.applied = true
	if err := p.pwm.Configure(p.cycle, p.hard); err != nil {
		return err
	}
	p.pwm.SetDuty(p.duty)
	return nil
}

func (p *PWM) Close() error { return nil }
