package main

import (
	"encoding/json"
	"os"

	"hostmcu-go/errcode"
	"hostmcu-go/periph"
)

// FileConfig is the JSON document the binary takes as its positional
// argument. Peripheral declarations are validated during resolution, not
// here.
type FileConfig struct {
	Peripherals []periph.Declaration `json:"peripherals"`
	Heater      HeaterConfig         `json:"heater"`
}

type HeaterConfig struct {
	Name        string  `json:"name,omitempty"`         // default "extruder"
	InitialTemp float64 `json:"initial_temp,omitempty"` // °C
}

func loadConfig(path string) (*FileConfig, error) {
	cfg := &FileConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "loadConfig", Msg: path, Err: err}
	}
	return cfg, nil
}
