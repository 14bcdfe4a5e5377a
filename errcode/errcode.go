package errcode

// Code is a stable, operator-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Console transport
	TransportNotFound         Code = "transport_not_found"
	TransportPermissionDenied Code = "transport_permission_denied"
	TransportInUse            Code = "transport_in_use"
	TransportIO               Code = "transport_io"
	TransportClosed           Code = "transport_closed"

	// Clock / scheduling
	ClockUnavailable Code = "clock_unavailable"

	// Watchdog
	WatchdogExpired Code = "watchdog_expired"

	// Peripheral configuration
	InvalidParams   Code = "invalid_params"
	UnknownKind     Code = "unknown_kind"
	UnknownPin      Code = "unknown_pin"
	PinInUse        Code = "pin_in_use"
	UnknownHeater   Code = "unknown_heater"
	ValueOutOfRange Code = "value_out_of_range"
	DuplicateName   Code = "duplicate_name"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
