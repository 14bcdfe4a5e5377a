// Package pins provides the pin namespace for peripheral declarations:
// name lookup (with board aliases), a claim registry that prevents two
// drivers from owning the same pin, and GPIO/PWM handle interfaces backed
// by a host simulation.
package pins

import (
	"strconv"
	"strings"
	"time"

	"hostmcu-go/errcode"
)

// Func records what a claimed pin is used for.
type Func uint8

const (
	FuncGPIOOut Func = iota
	FuncGPIOIn
	FuncPWM
)

// GPIO is a claimed digital pin.
type GPIO interface {
	Number() int
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
}

// PWM is a claimed PWM-capable pin. Duty is logical 0..1; the cycle time
// and hard/soft distinction are carried through to the backend.
type PWM interface {
	Number() int
	Configure(cycleTime time.Duration, hard bool) error
	SetDuty(duty float64)
	Duty() float64
}

// Handle is what a successful claim returns. A handle is only valid for
// the function it was claimed with.
type Handle interface {
	Number() int
	AsGPIO() GPIO
	AsPWM() PWM
}

// Lookup resolves a pin name to a number. Supported forms: bare digits
// ("14"), "gpioN", and the board alias "arN". Inversion prefixes are the
// caller's concern; Lookup rejects them.
func Lookup(name string) (int, error) {
	s := strings.TrimSpace(strings.ToLower(name))
	switch {
	case s == "":
		return 0, &errcode.E{C: errcode.UnknownPin, Op: "pins.Lookup", Msg: "empty pin name"}
	case strings.HasPrefix(s, "ar"):
		s = s[2:]
	case strings.HasPrefix(s, "gpio"):
		s = s[4:]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, &errcode.E{C: errcode.UnknownPin, Op: "pins.Lookup", Msg: name, Err: err}
	}
	return n, nil
}

// ParseInverted splits an optional leading "!" from a pin name.
func ParseInverted(name string) (string, bool) {
	if strings.HasPrefix(name, "!") {
		return name[1:], true
	}
	return name, false
}
