// Package watchdog substitutes for a hardware watchdog timer: the main
// control loop pets a lease on every pass, and an independent supervisor
// goroutine forces a recovery action if the pets stop. Expiry is evaluated
// off the main loop's scheduling so that a hung loop cannot also disable
// its own watchdog.
package watchdog

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"hostmcu-go/errcode"
)

// State is the lease lifecycle. Once Recovering is reached there is no way
// back: recovery is the correctness backstop for "the loop stopped
// responding", so it is intentionally irreversible from inside the
// process.
type State int32

const (
	Unarmed State = iota
	Armed
	Recovering
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Recovering:
		return "recovering"
	default:
		return "unarmed"
	}
}

// ExitCode is the distinguished status the default recovery action exits
// with (EX_SOFTWARE). A wrapping process manager treats it as "restart
// me"; a plain exit 0 means an operator asked the process to stop.
const ExitCode = 70

type Config struct {
	// Timeout is the maximum allowed gap between pets. Required.
	Timeout time.Duration

	// Poll is how often the supervisor evaluates expiry.
	// Defaults to Timeout/4, floored at 1ms.
	Poll time.Duration

	// Recover runs exactly once on expiry. Defaults to logging and
	// os.Exit(ExitCode).
	Recover func()

	Log   *slog.Logger
	Clock clock.Clock
}

// Lease is the liveness token: "the supervised loop is alive as of the
// last pet". At most one lease exists per runtime instance. The pet
// timestamp is handed from the main loop to the supervisor through an
// atomic; the loop never takes a lock.
type Lease struct {
	timeout time.Duration
	clk     clock.Clock
	log     *slog.Logger
	recover func()

	lastPet atomic.Int64 // clock nanos of the most recent pet
	state   atomic.Int32
	pets    atomic.Uint64

	ticker   *clock.Ticker
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Setup arms the supervisor. From this point until Stop, a gap of Timeout
// or more between pets triggers the recovery action unconditionally.
func Setup(cfg Config) (*Lease, error) {
	if cfg.Timeout <= 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "watchdog.Setup", Msg: "timeout must be positive"}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	poll := cfg.Poll
	if poll <= 0 {
		poll = cfg.Timeout / 4
	}
	if poll < time.Millisecond {
		poll = time.Millisecond
	}

	l := &Lease{
		timeout: cfg.Timeout,
		clk:     clk,
		log:     log,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	l.recover = cfg.Recover
	if l.recover == nil {
		l.recover = func() {
			log.Error("watchdog expired, exiting", "code", string(errcode.WatchdogExpired), "status", ExitCode)
			os.Exit(ExitCode)
		}
	}

	l.lastPet.Store(clk.Now().UnixNano())
	l.state.Store(int32(Armed))
	// The ticker is created here, not in the goroutine, so the supervisor
	// is observable by the clock as soon as Setup returns.
	l.ticker = clk.Ticker(poll)
	go l.supervise()

	log.Info("watchdog armed", "timeout", cfg.Timeout, "poll", poll)
	return l, nil
}

// Pet refreshes the lease timestamp. Callable on every pass of the main
// loop: one atomic store, no blocking, no allocation. Pets after expiry
// are ignored; Recovering is terminal.
func (l *Lease) Pet() {
	if State(l.state.Load()) != Armed {
		return
	}
	l.lastPet.Store(l.clk.Now().UnixNano())
	l.pets.Add(1)
}

// State reports the current lease state.
func (l *Lease) State() State { return State(l.state.Load()) }

// Pets reports how many times the lease has been petted since Setup.
func (l *Lease) Pets() uint64 { return l.pets.Load() }

// Timeout reports the configured expiry gap.
func (l *Lease) Timeout() time.Duration { return l.timeout }

// Stop disarms the supervisor for orderly teardown. It does not change an
// already-Recovering state and is safe to call more than once.
func (l *Lease) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	<-l.done
}

func (l *Lease) supervise() {
	defer close(l.done)
	defer l.ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-l.ticker.C:
			if l.expired(l.clk.Now()) {
				return
			}
		}
	}
}

// expired performs one expiry evaluation. On the first evaluation at or
// past the deadline it transitions Armed -> Recovering and runs the
// recovery action; the compare-and-swap guarantees the action runs at
// most once.
func (l *Lease) expired(now time.Time) bool {
	gap := now.UnixNano() - l.lastPet.Load()
	if gap < int64(l.timeout) {
		return false
	}
	if !l.state.CompareAndSwap(int32(Armed), int32(Recovering)) {
		return true
	}
	l.log.Error("watchdog expired",
		"code", string(errcode.WatchdogExpired),
		"gap", time.Duration(gap), "timeout", l.timeout)
	l.recover()
	return true
}
