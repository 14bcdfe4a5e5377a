// Package runtime runs the main control loop. Each cooperative pass drains
// the console transport, checks timer drift, services the heater fans, pets
// the watchdog lease and then sleeps until input arrives or the pass
// interval elapses. The loop owns the process's single console Port and
// single watchdog Lease.
package runtime

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"hostmcu-go/bus"
	"hostmcu-go/errcode"
	"hostmcu-go/host/console"
	"hostmcu-go/host/timer"
	"hostmcu-go/host/watchdog"
	"hostmcu-go/internal/metrics"
	"hostmcu-go/periph"
	"hostmcu-go/periph/extruder"
	"hostmcu-go/types"
	"hostmcu-go/x/mathx"
	"hostmcu-go/x/timex"
)

var (
	topicState   = bus.T("runtime", "state")
	topicDrift   = bus.T("runtime", "drift")
	topicStats   = bus.T("runtime", "stats")
	topicTool    = bus.T("runtime", "tool")
	topicConsole = bus.T("runtime", "console")
)

// DefaultDriftWarn is the drift above which a pass logs a warning and
// publishes a report.
const DefaultDriftWarn = 50 * time.Millisecond

// DefaultStatsInterval paces the retained stats snapshots.
const DefaultStatsInterval = 1 * time.Second

const maxDwell = 5 * time.Second

type Config struct {
	Port    *console.Port
	Lease   *watchdog.Lease
	Monitor *timer.Monitor
	Periphs *periph.Set
	Conn    *bus.Connection
	Metrics *metrics.Metrics
	Log     *slog.Logger
	Clock   clock.Clock

	// Heater is the process's settable temperature source; M104 adjusts
	// it and the heater fans watch it.
	Heater *SimHeater

	// DriftWarn is the warning threshold applied to reported drift.
	DriftWarn time.Duration

	StatsInterval time.Duration
}

type Service struct {
	cfg Config
	log *slog.Logger
	clk clock.Clock

	pending []byte
	tool    int // -1 = primary tool

	passes  uint64
	rxBytes uint64
	txBytes uint64
	drift   time.Duration
}

func New(cfg Config) (*Service, error) {
	if cfg.Port == nil || cfg.Lease == nil || cfg.Monitor == nil {
		return nil, fmt.Errorf("runtime: port, lease and monitor are required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.DriftWarn == 0 {
		cfg.DriftWarn = DefaultDriftWarn
	}
	if cfg.StatsInterval == 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	if cfg.Periphs == nil {
		cfg.Periphs = &periph.Set{}
	}
	return &Service{cfg: cfg, log: cfg.Log, clk: cfg.Clock, tool: -1}, nil
}

// Run drives the loop until the context is cancelled or the transport
// fails fatally. Callers own goroutine placement.
func (s *Service) Run(ctx context.Context) error {
	s.publishState("ready", "loop running")
	defer s.publishState("stopped", "loop exited")

	var (
		prev      timer.Sample
		lastStats time.Time
	)
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		gotInput, err := s.drainConsole(ctx, buf)
		if err != nil {
			// Transport errors are diagnostic, not fatal; only a closed
			// port ends the loop.
			console.ReportError(s.log, "runtime drain", err)
			if errcode.Of(err) == errcode.TransportClosed {
				return err
			}
			// Pace off the clock: polling a faulted descriptor returns
			// immediately and would otherwise spin the loop.
			s.clk.Sleep(s.cfg.Monitor.Expected())
		}

		var drift time.Duration
		prev, drift = s.cfg.Monitor.CheckPeriodic(prev)
		s.drift = drift
		s.applyDriftPolicy(drift)

		for _, fan := range s.cfg.Periphs.Fans {
			fan.Tick()
		}

		s.cfg.Lease.Pet()
		s.passes++
		if m := s.cfg.Metrics; m != nil {
			m.LoopPasses.Inc()
			m.WatchdogPets.Inc()
		}

		if now := s.clk.Now(); now.Sub(lastStats) >= s.cfg.StatsInterval {
			lastStats = now
			s.publishStats()
		}

		if !gotInput {
			s.cfg.Port.Sleep(s.cfg.Monitor.Expected())
		}
	}
}

// drainConsole performs this pass's single non-blocking read and handles
// every complete line it produced. A zero-length read means no data.
func (s *Service) drainConsole(ctx context.Context, buf []byte) (bool, error) {
	n, err := s.cfg.Port.Read(buf)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	s.rxBytes += uint64(n)
	if m := s.cfg.Metrics; m != nil {
		m.ConsoleRxBytes.Add(float64(n))
	}
	s.publishFrame("rx", buf[:n])
	s.pending = append(s.pending, buf[:n]...)
	for {
		i := bytes.IndexByte(s.pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(s.pending[:i]))
		s.pending = s.pending[i+1:]
		if line == "" {
			continue
		}
		s.handleLine(ctx, line)
	}
	return true, nil
}

func (s *Service) handleLine(ctx context.Context, line string) {
	tokens := strings.Fields(line)
	if err := s.Run1(ctx, extruder.Command(tokens)); err != nil {
		s.reply(fmt.Sprintf("!! %v\n", err))
		return
	}
	s.reply("ok\n")
}

// runnerFunc adapts a function to the extruders' ScriptRunner.
type runnerFunc func(ctx context.Context, cmd extruder.Command) error

func (f runnerFunc) Run(ctx context.Context, cmd extruder.Command) error { return f(ctx, cmd) }

// Run1 executes one command, whether it arrived over the console or from
// a tool-change script.
func (s *Service) Run1(ctx context.Context, cmd extruder.Command) error {
	if len(cmd) == 0 {
		return nil
	}
	name := strings.ToUpper(cmd[0])
	switch {
	case len(name) >= 2 && name[0] == 'T' && isDigits(name[1:]):
		n, _ := strconv.Atoi(name[1:])
		return s.selectTool(ctx, n)
	case name == "SET_SERVO":
		return s.setServo(cmd[1:])
	case name == "G4":
		s.dwell(cmd[1:])
		return nil
	case name == "M104":
		return s.setHeaterTarget(cmd[1:])
	case name == "M105":
		s.reportTemps()
		return nil
	default:
		s.log.Debug("ignoring command", "cmd", cmd[0])
		return nil
	}
}

// selectTool deactivates the current extra extruder and activates the new
// one. Tool 0 is the primary extruder, which is not a resolved peripheral.
func (s *Service) selectTool(ctx context.Context, n int) error {
	if n == s.toolNumber() {
		return nil
	}
	if n > len(s.cfg.Periphs.Extruders) || n < 0 {
		return fmt.Errorf("unknown tool T%d", n)
	}
	from := s.toolNumber()
	run := runnerFunc(s.Run1)
	if s.tool >= 0 {
		if err := s.cfg.Periphs.Extruders[s.tool].Deactivate(ctx, run); err != nil {
			return err
		}
	}
	s.tool = n - 1
	if s.tool >= 0 {
		if err := s.cfg.Periphs.Extruders[s.tool].Activate(ctx, run); err != nil {
			return err
		}
	}
	s.log.Info("tool change", "from", from, "to", n)
	if s.cfg.Conn != nil {
		s.cfg.Conn.Publish(&bus.Message{
			Topic:   topicTool,
			Payload: types.ToolChange{From: from, To: n, TSms: timex.NowMs()},
		})
	}
	return nil
}

// toolNumber maps the internal extra-extruder index back to the T number.
func (s *Service) toolNumber() int { return s.tool + 1 }

func (s *Service) setServo(args []string) error {
	kv := parseArgs(args)
	servo, ok := s.cfg.Periphs.Servos[kv["SERVO"]]
	if !ok {
		return fmt.Errorf("unknown servo %q", kv["SERVO"])
	}
	if v, ok := kv["ANGLE"]; ok {
		angle, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("bad angle %q", v)
		}
		servo.SetAngle(angle)
		return nil
	}
	if v, ok := kv["WIDTH"]; ok {
		width, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("bad width %q", v)
		}
		servo.SetPulseWidth(width)
		return nil
	}
	return fmt.Errorf("SET_SERVO needs ANGLE or WIDTH")
}

// dwell pauses the loop for G4 P<ms>, capped at maxDwell. The sleep is
// sliced and the lease petted between slices, so even a dwell longer than
// the watchdog timeout cannot expire it.
func (s *Service) dwell(args []string) {
	for _, a := range args {
		if len(a) > 1 && (a[0] == 'P' || a[0] == 'p') {
			if ms, err := strconv.Atoi(a[1:]); err == nil && ms > 0 {
				d := time.Duration(ms) * time.Millisecond
				s.sleepPetting(mathx.Clamp(d, 0, maxDwell))
			}
		}
	}
}

// sleepPetting sleeps for d in slices of at most a quarter of the
// watchdog timeout, petting the lease after each slice.
func (s *Service) sleepPetting(d time.Duration) {
	slice := s.cfg.Lease.Timeout() / 4
	if slice < time.Millisecond {
		slice = time.Millisecond
	}
	for d > 0 {
		step := d
		if step > slice {
			step = slice
		}
		s.clk.Sleep(step)
		s.cfg.Lease.Pet()
		d -= step
	}
}

func (s *Service) setHeaterTarget(args []string) error {
	heater := s.simHeater()
	if heater == nil {
		return fmt.Errorf("no settable heater")
	}
	for _, a := range args {
		if len(a) > 1 && (a[0] == 'S' || a[0] == 's') {
			target, err := strconv.ParseFloat(a[1:], 64)
			if err != nil {
				return fmt.Errorf("bad target %q", a[1:])
			}
			heater.SetTemperature(target)
			return nil
		}
	}
	return fmt.Errorf("M104 needs S<temp>")
}

func (s *Service) reportTemps() {
	if h := s.simHeater(); h != nil {
		s.reply(fmt.Sprintf("T:%.1f\n", h.Temperature()))
	}
}

func (s *Service) simHeater() *SimHeater {
	return s.cfg.Heater
}

func (s *Service) reply(msg string) {
	n, err := s.cfg.Port.Write([]byte(msg))
	if err != nil {
		console.ReportError(s.log, "runtime reply", err)
		return
	}
	s.txBytes += uint64(n)
	if m := s.cfg.Metrics; m != nil {
		m.ConsoleTxBytes.Add(float64(n))
	}
	s.publishFrame("tx", []byte(msg)[:n])
}

// publishFrame mirrors console traffic onto the bus for observers. The
// data is copied because buf is reused across passes.
func (s *Service) publishFrame(dir string, data []byte) {
	if s.cfg.Conn == nil || len(data) == 0 {
		return
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	s.cfg.Conn.Publish(&bus.Message{
		Topic:   topicConsole,
		Payload: types.ConsoleFrame{Dir: dir, Data: frame, TSms: timex.NowMs()},
	})
}

func (s *Service) applyDriftPolicy(drift time.Duration) {
	if m := s.cfg.Metrics; m != nil {
		abs := drift
		if abs < 0 {
			abs = -abs
		}
		m.SchedulerDrift.Observe(timex.Seconds(abs))
	}
	if drift <= s.cfg.DriftWarn {
		return
	}
	s.log.Warn("scheduler falling behind",
		"drift", drift, "expected", s.cfg.Monitor.Expected())
	if s.cfg.Conn != nil {
		s.cfg.Conn.Publish(&bus.Message{
			Topic: topicDrift,
			Payload: types.DriftReport{
				DriftNs:    drift.Nanoseconds(),
				ExpectedNs: s.cfg.Monitor.Expected().Nanoseconds(),
				TSms:       timex.NowMs(),
			},
		})
	}
}

func (s *Service) publishState(level, status string) {
	s.log.Info("runtime state", "level", level, "status", status)
	if s.cfg.Conn == nil {
		return
	}
	s.cfg.Conn.PublishRetained(topicState, types.RuntimeState{
		Level:  level,
		Status: status,
		TSms:   timex.NowMs(),
	})
}

func (s *Service) publishStats() {
	if s.cfg.Conn == nil {
		return
	}
	s.cfg.Conn.PublishRetained(topicStats, types.StatsSnapshot{
		Passes:       s.passes,
		RxBytes:      s.rxBytes,
		TxBytes:      s.txBytes,
		Pets:         s.cfg.Lease.Pets(),
		LastDriftSec: timex.Seconds(s.drift),
		TSms:         timex.NowMs(),
	})
}

func parseArgs(args []string) map[string]string {
	kv := map[string]string{}
	for _, a := range args {
		if k, v, ok := strings.Cut(a, "="); ok {
			kv[strings.ToUpper(k)] = v
		}
	}
	return kv
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
