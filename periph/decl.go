// Package periph resolves peripheral declarations into driver instances.
// The set of kinds is closed: a declaration decodes into exactly one typed
// parameter struct, and resolution dispatches over that tag once at
// startup. Nothing re-dispatches by name afterwards.
package periph

import (
	"encoding/json"
	"fmt"

	"hostmcu-go/errcode"
	"hostmcu-go/periph/digipot"
	"hostmcu-go/periph/extruder"
	"hostmcu-go/periph/heaterfan"
	"hostmcu-go/periph/servo"
	"hostmcu-go/periph/staticout"
)

// Kind tags a declaration.
type Kind string

const (
	KindExtruder      Kind = "extruder"
	KindHeaterFan     Kind = "heater_fan"
	KindStaticDigital Kind = "static_digital_output"
	KindStaticPWM     Kind = "static_pwm_output"
	KindDigipot       Kind = "digipot"
	KindServo         Kind = "servo"
)

// Declaration is one named peripheral with its validated parameter struct.
// Exactly one of the parameter fields is non-nil, matching Kind.
type Declaration struct {
	Name string
	Kind Kind

	Extruder      *extruder.Params
	HeaterFan     *heaterfan.Params
	StaticDigital *staticout.DigitalParams
	StaticPWM     *staticout.PWMParams
	Digipot       *digipot.Params
	Servo         *servo.Params
}

type rawDecl struct {
	Name   string          `json:"name"`
	Kind   Kind            `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// UnmarshalJSON decodes {"name","kind","params"} with params typed by
// kind. Unknown kinds are rejected here so resolution never sees them.
func (d *Declaration) UnmarshalJSON(data []byte) error {
	var raw rawDecl
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Name == "" {
		return &errcode.E{C: errcode.InvalidParams, Op: "periph.Declaration", Msg: "name required"}
	}
	d.Name = raw.Name
	d.Kind = raw.Kind
	params := raw.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	var dst any
	switch raw.Kind {
	case KindExtruder:
		d.Extruder = &extruder.Params{}
		dst = d.Extruder
	case KindHeaterFan:
		d.HeaterFan = &heaterfan.Params{}
		dst = d.HeaterFan
	case KindStaticDigital:
		d.StaticDigital = &staticout.DigitalParams{}
		dst = d.StaticDigital
	case KindStaticPWM:
		d.StaticPWM = &staticout.PWMParams{}
		dst = d.StaticPWM
	case KindDigipot:
		d.Digipot = &digipot.Params{}
		dst = d.Digipot
	case KindServo:
		d.Servo = &servo.Params{}
		dst = d.Servo
	default:
		return &errcode.E{
			C: errcode.UnknownKind, Op: "periph.Declaration",
			Msg: fmt.Sprintf("%s: %q", raw.Name, raw.Kind),
		}
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return &errcode.E{C: errcode.InvalidParams, Op: "periph.Declaration", Msg: raw.Name, Err: err}
	}
	return nil
}
