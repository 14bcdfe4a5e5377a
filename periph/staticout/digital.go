// Package staticout implements outputs that are driven exactly once at
// startup and never changed afterwards: sets of digital pins and single
// software/hardware PWM pins.
package staticout

import (
	"context"
	"strings"

	"hostmcu-go/errcode"
	"hostmcu-go/pins"
)

// DigitalParams declares a set of pins to drive high (or low when the
// entry carries a "!" prefix) at startup.
type DigitalParams struct {
	Pins string `json:"pins"` // comma-separated, each optionally "!"-prefixed
}

type staticPin struct {
	gpio   pins.GPIO
	invert bool
}

// Digital holds the resolved pin set. It deliberately exposes no mutation
// surface: after Startup the levels are fixed for the process lifetime.
type Digital struct {
	name    string
	outs    []staticPin
	applied bool
}

// NewDigital validates the pin list and claims every pin.
func NewDigital(name string, p DigitalParams, reg *pins.Registry) (*Digital, error) {
	entries := strings.Split(p.Pins, ",")
	if p.Pins == "" || len(entries) == 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "staticout.NewDigital", Msg: "pins required"}
	}
	d := &Digital{name: name}
	for _, entry := range entries {
		pinName, invert := pins.ParseInverted(strings.TrimSpace(entry))
		h, err := reg.Claim(name, pinName, pins.FuncGPIOOut)
		if err != nil {
			return nil, err
		}
		d.outs = append(d.outs, staticPin{gpio: h.AsGPIO(), invert: invert})
	}
	return d, nil
}

func (d *Digital) Name() string { return d.name }

// Startup drives every pin once. A second call is a no-op so that an
// idempotent startup path cannot re-drive the outputs.
func (d *Digital) Startup(context.Context) error {
	if d.applied {
		return nil
	}
	d.applied = true
	for _, o := range d.outs {
		if err := o.gpio.ConfigureOutput(!o.invert); err != nil {
			return err
		}
	}
	return nil
}

func (d *Digital) Close() error { return nil }
