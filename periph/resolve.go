package periph

import (
	"context"
	"log/slog"

	"tinygo.org/x/drivers"

	"hostmcu-go/errcode"
	"hostmcu-go/periph/digipot"
	"hostmcu-go/periph/extruder"
	"hostmcu-go/periph/heaterfan"
	"hostmcu-go/periph/servo"
	"hostmcu-go/periph/staticout"
	"hostmcu-go/pins"
	"hostmcu-go/x/strx"
)

// Peripheral is a resolved driver instance.
type Peripheral interface {
	Name() string
	Startup(ctx context.Context) error
	Close() error
}

// Resources is everything resolution may hand to a driver.
type Resources struct {
	Pins    *pins.Registry
	SPI     drivers.SPI
	Heaters func(name string) heaterfan.Heater
	Log     *slog.Logger
}

// Set is the fixed collection resolution produces. Drivers needing runtime
// attention are also indexed by role.
type Set struct {
	All       []Peripheral
	Extruders []*extruder.Device
	Fans      []*heaterfan.Device
	Servos    map[string]*servo.Device
}

// Resolve turns declarations into drivers. Names must be unique; every
// parameter error surfaces here, before the main loop starts.
func Resolve(decls []Declaration, res Resources) (*Set, error) {
	log := res.Log
	if log == nil {
		log = slog.Default()
	}
	set := &Set{Servos: map[string]*servo.Device{}}
	seen := map[string]struct{}{}
	for _, decl := range decls {
		if _, dup := seen[decl.Name]; dup {
			return nil, &errcode.E{C: errcode.DuplicateName, Op: "periph.Resolve", Msg: decl.Name}
		}
		seen[decl.Name] = struct{}{}

		var (
			p   Peripheral
			err error
		)
		switch decl.Kind {
		case KindExtruder:
			var d *extruder.Device
			d, err = extruder.New(decl.Name, *decl.Extruder, res.Pins)
			if err == nil {
				set.Extruders = append(set.Extruders, d)
				p = d
			}
		case KindHeaterFan:
			var heater heaterfan.Heater
			if res.Heaters != nil {
				heater = res.Heaters(strx.Coalesce(decl.HeaterFan.Heater, heaterfan.DefaultHeater))
			}
			var d *heaterfan.Device
			d, err = heaterfan.New(decl.Name, *decl.HeaterFan, res.Pins, heater)
			if err == nil {
				set.Fans = append(set.Fans, d)
				p = d
			}
		case KindStaticDigital:
			p, err = staticout.NewDigital(decl.Name, *decl.StaticDigital, res.Pins)
		case KindStaticPWM:
			p, err = staticout.NewPWM(decl.Name, *decl.StaticPWM, res.Pins)
		case KindDigipot:
			p, err = digipot.New(decl.Name, *decl.Digipot, res.Pins, res.SPI)
		case KindServo:
			var d *servo.Device
			d, err = servo.New(decl.Name, *decl.Servo, res.Pins)
			if err == nil {
				set.Servos[decl.Name] = d
				p = d
			}
		default:
			err = &errcode.E{C: errcode.UnknownKind, Op: "periph.Resolve", Msg: string(decl.Kind)}
		}
		if err != nil {
			return nil, err
		}
		log.Debug("peripheral resolved", "name", decl.Name, "kind", decl.Kind)
		set.All = append(set.All, p)
	}
	return set, nil
}

// Startup brings every resolved driver to its initial state, in
// declaration order.
func (s *Set) Startup(ctx context.Context) error {
	for _, p := range s.All {
		if err := p.Startup(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every driver. Errors are collected, not short-circuited.
func (s *Set) Close() error {
	var first error
	for _, p := range s.All {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
