package periph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/neilotoole/slogt"

	"hostmcu-go/errcode"
	"hostmcu-go/periph/extruder"
	"hostmcu-go/periph/heaterfan"
	"hostmcu-go/pins"
)

type fakeHeater struct{ temp float64 }

func (h *fakeHeater) Name() string         { return "extruder" }
func (h *fakeHeater) Temperature() float64 { return h.temp }

type fakeSPI struct{ frames int }

func (s *fakeSPI) Tx(w, r []byte) error          { s.frames++; return nil }
func (s *fakeSPI) Transfer(b byte) (byte, error) { return 0, nil }

func testResources(t *testing.T, sim *pins.Sim) Resources {
	t.Helper()
	return Resources{
		Pins: pins.NewRegistry(sim),
		SPI:  &fakeSPI{},
		Heaters: func(name string) heaterfan.Heater {
			if name == "extruder" {
				return &fakeHeater{temp: 25}
			}
			return nil
		},
		Log: slogt.New(t),
	}
}

func TestDeclarationDecodesByKind(t *testing.T) {
	doc := `[
		{"name": "fan0", "kind": "heater_fan", "params": {"pin": "ar9", "heater_temp": 60}},
		{"name": "leds", "kind": "static_digital_output", "params": {"pins": "ar4,!ar5"}},
		{"name": "servo0", "kind": "servo", "params": {"pin": "ar7"}}
	]`
	var decls []Declaration
	if err := json.Unmarshal([]byte(doc), &decls); err != nil {
		t.Fatal(err)
	}
	if len(decls) != 3 {
		t.Fatalf("decoded %d declarations", len(decls))
	}
	if decls[0].Kind != KindHeaterFan || decls[0].HeaterFan == nil || decls[0].HeaterFan.HeaterTemp != 60 {
		t.Errorf("heater_fan params not decoded: %+v", decls[0])
	}
	if decls[1].StaticDigital == nil || decls[1].StaticDigital.Pins != "ar4,!ar5" {
		t.Errorf("static_digital_output params not decoded: %+v", decls[1])
	}
	if decls[2].Servo == nil {
		t.Errorf("servo params not decoded: %+v", decls[2])
	}
}

func TestDeclarationRejectsUnknownKind(t *testing.T) {
	var d Declaration
	err := json.Unmarshal([]byte(`{"name": "x", "kind": "laser"}`), &d)
	if errcode.Of(err) != errcode.UnknownKind {
		t.Errorf("got %v, want UnknownKind", err)
	}
	err = json.Unmarshal([]byte(`{"kind": "servo"}`), &d)
	if errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("missing name: got %v", err)
	}
}

func TestResolveBuildsDrivers(t *testing.T) {
	sim := pins.NewSim(64)
	res := testResources(t, sim)

	decls := []Declaration{
		{Name: "extruder1", Kind: KindExtruder, Extruder: &extruder.Params{StepPin: "ar36", DirPin: "ar34"}},
		{Name: "fan0", Kind: KindHeaterFan, HeaterFan: &heaterfan.Params{Pin: "ar9"}},
	}
	set, err := Resolve(decls, res)
	if err != nil {
		t.Fatal(err)
	}
	if len(set.All) != 2 || len(set.Extruders) != 1 || len(set.Fans) != 1 {
		t.Fatalf("set = %d all, %d extruders, %d fans", len(set.All), len(set.Extruders), len(set.Fans))
	}
	if err := set.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := set.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestResolveDuplicateName(t *testing.T) {
	sim := pins.NewSim(64)
	res := testResources(t, sim)

	decls := []Declaration{
		{Name: "fan0", Kind: KindHeaterFan, HeaterFan: &heaterfan.Params{Pin: "ar9"}},
		{Name: "fan0", Kind: KindHeaterFan, HeaterFan: &heaterfan.Params{Pin: "ar10"}},
	}
	if _, err := Resolve(decls, res); errcode.Of(err) != errcode.DuplicateName {
		t.Errorf("got %v, want DuplicateName", err)
	}
}

func TestResolveUnknownHeater(t *testing.T) {
	sim := pins.NewSim(64)
	res := testResources(t, sim)

	decls := []Declaration{
		{Name: "fan0", Kind: KindHeaterFan, HeaterFan: &heaterfan.Params{Pin: "ar9", Heater: "bed"}},
	}
	if _, err := Resolve(decls, res); errcode.Of(err) != errcode.UnknownHeater {
		t.Errorf("got %v, want UnknownHeater", err)
	}
}
