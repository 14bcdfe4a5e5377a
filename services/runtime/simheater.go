package runtime

import (
	"math"
	"sync/atomic"
)

// SimHeater is the host-side stand-in for a heater: a named temperature
// that commands set directly instead of a control loop chasing a target.
// Safe for concurrent reads from fan ticks and writes from the command
// path.
type SimHeater struct {
	name string
	bits atomic.Uint64
}

func NewSimHeater(name string, initial float64) *SimHeater {
	h := &SimHeater{name: name}
	h.SetTemperature(initial)
	return h
}

func (h *SimHeater) Name() string { return h.name }

func (h *SimHeater) Temperature() float64 {
	return math.Float64frombits(h.bits.Load())
}

func (h *SimHeater) SetTemperature(t float64) {
	h.bits.Store(math.Float64bits(t))
}
