package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Seconds renders a duration as fractional seconds, the unit used in
// peripheral declarations and stats lines.
func Seconds(d time.Duration) float64 { return d.Seconds() }

// FromSeconds converts fractional seconds (as found in declaration
// documents) to a duration. Negative input is coerced to zero.
func FromSeconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
