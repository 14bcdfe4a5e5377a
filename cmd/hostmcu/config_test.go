package main

import (
	"os"
	"path/filepath"
	"testing"

	"hostmcu-go/errcode"
	"hostmcu-go/periph"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printer.json")
	doc := `{
		"heater": {"name": "extruder", "initial_temp": 25},
		"peripherals": [
			{"name": "fan0", "kind": "heater_fan", "params": {"pin": "ar9"}},
			{"name": "leds", "kind": "static_digital_output", "params": {"pins": "ar4,!ar5"}}
		]
	}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Peripherals) != 2 {
		t.Fatalf("decoded %d peripherals", len(cfg.Peripherals))
	}
	if cfg.Peripherals[0].Kind != periph.KindHeaterFan {
		t.Errorf("kind = %q", cfg.Peripherals[0].Kind)
	}
	if cfg.Heater.InitialTemp != 25 {
		t.Errorf("initial temp = %v", cfg.Heater.InitialTemp)
	}
}

func TestLoadConfigEmptyPathIsDefault(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Peripherals) != 0 {
		t.Errorf("expected no peripherals, got %d", len(cfg.Peripherals))
	}
}

func TestLoadConfigBadKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printer.json")
	doc := `{"peripherals": [{"name": "x", "kind": "laser"}]}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("got %v, want InvalidParams", err)
	}
}
