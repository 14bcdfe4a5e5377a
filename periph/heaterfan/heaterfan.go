// Package heaterfan implements the heater-triggered fan: a digital output
// enabled whenever its referenced heater reports a temperature at or above
// the configured threshold.
package heaterfan

import (
	"context"

	"hostmcu-go/errcode"
	"hostmcu-go/pins"
	"hostmcu-go/x/strx"
)

// DefaultHeater is the primary heater a declaration references when it
// names none.
const DefaultHeater = "extruder"

// DefaultTriggerTemp is in °C.
const DefaultTriggerTemp = 50.0

// Heater is the temperature source a fan watches. Provided by the runtime;
// this driver never owns heater state.
type Heater interface {
	Name() string
	Temperature() float64
}

type Params struct {
	Pin        string  `json:"pin"`
	Heater     string  `json:"heater,omitempty"`      // default: primary heater
	HeaterTemp float64 `json:"heater_temp,omitempty"` // °C, default 50.0
}

type Device struct {
	name    string
	pin     pins.GPIO
	invert  bool
	heater  Heater
	trigger float64
	on      bool
}

// New validates params and claims the fan pin. The heater reference is
// resolved by the caller (the resolver knows the heater table).
func New(name string, p Params, reg *pins.Registry, heater Heater) (*Device, error) {
	pinName, invert := pins.ParseInverted(p.Pin)
	if pinName == "" {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "heaterfan.New", Msg: "pin required"}
	}
	if heater == nil {
		return nil, &errcode.E{C: errcode.UnknownHeater, Op: "heaterfan.New", Msg: strx.Coalesce(p.Heater, DefaultHeater)}
	}
	trigger := p.HeaterTemp
	if trigger == 0 {
		trigger = DefaultTriggerTemp
	}
	if trigger < 0 {
		return nil, &errcode.E{C: errcode.ValueOutOfRange, Op: "heaterfan.New", Msg: "heater_temp"}
	}
	h, err := reg.Claim(name, pinName, pins.FuncGPIOOut)
	if err != nil {
		return nil, err
	}
	return &Device{
		name:    name,
		pin:     h.AsGPIO(),
		invert:  invert,
		heater:  heater,
		trigger: trigger,
	}, nil
}

func (d *Device) Name() string { return d.name }

// Startup drives the fan off.
func (d *Device) Startup(context.Context) error {
	d.on = false
	return d.pin.ConfigureOutput(d.level(false))
}

func (d *Device) Close() error { return nil }

// Tick re-evaluates the fan against the heater temperature. Called once
// per scheduling pass; only level changes touch the pin.
func (d *Device) Tick() {
	want := d.heater.Temperature() >= d.trigger
	if want == d.on {
		return
	}
	d.on = want
	d.pin.Set(d.level(want))
}

// On reports the logical fan state.
func (d *Device) On() bool { return d.on }

// TriggerTemp reports the configured threshold.
func (d *Device) TriggerTemp() float64 { return d.trigger }

func (d *Device) level(on bool) bool {
	if d.invert {
		return !on
	}
	return on
}
