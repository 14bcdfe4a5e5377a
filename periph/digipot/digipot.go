// Package digipot drives an AD5206-style six-channel digital potentiometer
// over SPI. Wiper positions are declared at configuration time and written
// once at startup; the part has no runtime mutation surface.
package digipot

import (
	"context"
	"fmt"
	"math"

	"tinygo.org/x/drivers"

	"hostmcu-go/errcode"
	"hostmcu-go/pins"
	"hostmcu-go/x/mathx"
)

const channelCount = 6

// Params declares the wiper values. Each channel is optional; an unset
// channel is never written. Values are in units of Scale.
type Params struct {
	EnablePin string   `json:"enable_pin"`
	Scale     float64  `json:"scale,omitempty"` // default 1.0
	Channel1  *float64 `json:"channel_1,omitempty"`
	Channel2  *float64 `json:"channel_2,omitempty"`
	Channel3  *float64 `json:"channel_3,omitempty"`
	Channel4  *float64 `json:"channel_4,omitempty"`
	Channel5  *float64 `json:"channel_5,omitempty"`
	Channel6  *float64 `json:"channel_6,omitempty"`
}

func (p *Params) channels() [channelCount]*float64 {
	return [channelCount]*float64{
		p.Channel1, p.Channel2, p.Channel3, p.Channel4, p.Channel5, p.Channel6,
	}
}

type Device struct {
	name    string
	bus     drivers.SPI
	enable  pins.GPIO
	wipers  [channelCount]int // -1 = unset
	applied bool
}

// New validates the declaration, converts each set channel to a wiper byte
// and claims the enable pin. Out-of-range channel values are rejected here.
func New(name string, p Params, reg *pins.Registry, bus drivers.SPI) (*Device, error) {
	if p.EnablePin == "" {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "digipot.New", Msg: "enable_pin required"}
	}
	if bus == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "digipot.New", Msg: "no spi bus"}
	}
	scale := p.Scale
	if scale == 0 {
		scale = 1.0
	}
	if scale < 0 {
		return nil, &errcode.E{C: errcode.ValueOutOfRange, Op: "digipot.New", Msg: "scale"}
	}
	d := &Device{name: name, bus: bus}
	for i, ch := range p.channels() {
		if ch == nil {
			d.wipers[i] = -1
			continue
		}
		if !mathx.Between(*ch, 0, scale) {
			return nil, &errcode.E{
				C: errcode.ValueOutOfRange, Op: "digipot.New",
				Msg: fmt.Sprintf("channel_%d", i+1),
			}
		}
		d.wipers[i] = int(math.Round(*ch * 255 / scale))
	}
	h, err := reg.Claim(name, p.EnablePin, pins.FuncGPIOOut)
	if err != nil {
		return nil, err
	}
	d.enable = h.AsGPIO()
	return d, nil
}

func (d *Device) Name() string { return d.name }

// Startup writes every declared wiper. The enable pin is held low for the
// duration of each transfer and left high otherwise.
func (d *Device) Startup(context.Context) error {
	if d.applied {
		return nil
	}
	d.applied = true
	if err := d.enable.ConfigureOutput(true); err != nil {
		return err
	}
	for ch, wiper := range d.wipers {
		if wiper < 0 {
			continue
		}
		if err := d.send(byte(ch), byte(wiper)); err != nil {
			return &errcode.E{C: errcode.TransportIO, Op: "digipot.Startup", Msg: d.name, Err: err}
		}
	}
	return nil
}

func (d *Device) send(channel, wiper byte) error {
	d.enable.Set(false)
	err := d.bus.Tx([]byte{channel, wiper}, nil)
	d.enable.Set(true)
	return err
}

// Wiper reports the resolved wiper byte for a 1-based channel, or -1 when
// the channel is unset.
func (d *Device) Wiper(channel int) int {
	if channel < 1 || channel > channelCount {
		return -1
	}
	return d.wipers[channel-1]
}

func (d *Device) Close() error { return nil }
