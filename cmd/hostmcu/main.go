// Command hostmcu runs firmware-style control logic as an ordinary Linux
// process: it presents a pseudo-terminal console, resolves the declared
// peripherals against simulated pins and supervises the main loop with a
// software watchdog. A wrapping supervisor can distinguish watchdog
// recovery by its exit status.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"hostmcu-go/bus"
	"hostmcu-go/host/console"
	"hostmcu-go/host/timer"
	"hostmcu-go/host/watchdog"
	"hostmcu-go/internal/metrics"
	"hostmcu-go/periph"
	"hostmcu-go/periph/heaterfan"
	"hostmcu-go/pins"
	"hostmcu-go/services/runtime"
	"hostmcu-go/services/stats"
	"hostmcu-go/x/strx"
)

const defaultInputTTY = "/tmp/hostmcu_console"

type options struct {
	inputTTY        string
	logFile         string
	verbose         bool
	metricsAddr     string
	interval        time.Duration
	watchdogTimeout time.Duration
	driftWarn       time.Duration
}

func main() {
	opts := &options{}
	root := &cobra.Command{
		Use:   "hostmcu [config.json]",
		Short: "host-side micro-controller runtime",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := ""
			if len(args) == 1 {
				cfgPath = args[0]
			}
			return run(cmd.Context(), opts, cfgPath)
		},
		SilenceUsage: true,
	}
	var f *pflag.FlagSet = root.Flags()
	f.StringVarP(&opts.inputTTY, "input-tty", "I", defaultInputTTY, "symlink path for the console pseudo-terminal")
	f.StringVarP(&opts.logFile, "logfile", "l", "", "write log to file instead of stderr")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address (empty = disabled)")
	f.DurationVar(&opts.interval, "interval", 100*time.Millisecond, "main loop pass interval")
	f.DurationVar(&opts.watchdogTimeout, "watchdog-timeout", 1*time.Second, "watchdog expiry timeout")
	f.DurationVar(&opts.driftWarn, "drift-warn", runtime.DefaultDriftWarn, "drift warning threshold")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, cfgPath string) error {
	log, closeLog, err := buildLogger(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	port, slave, err := console.CreatePTY(opts.inputTTY, log)
	if err != nil {
		return err
	}
	defer port.Close()
	log.Info("console ready", "link", opts.inputTTY, "pty", slave)

	heater := runtime.NewSimHeater(
		strx.Coalesce(cfg.Heater.Name, heaterfan.DefaultHeater),
		cfg.Heater.InitialTemp,
	)

	m := metrics.New()
	set, err := periph.Resolve(cfg.Peripherals, periph.Resources{
		Pins: pins.NewRegistry(pins.NewSim(128)),
		SPI:  &logSPI{log: log},
		Heaters: func(name string) heaterfan.Heater {
			if name == heater.Name() {
				return heater
			}
			return nil
		},
		Log: log,
	})
	if err != nil {
		return err
	}
	defer set.Close()
	if err := set.Startup(ctx); err != nil {
		return err
	}

	lease, err := watchdog.Setup(watchdog.Config{
		Timeout: opts.watchdogTimeout,
		Log:     log,
		Recover: func() {
			m.WatchdogRecoveries.Inc()
			os.Exit(watchdog.ExitCode)
		},
	})
	if err != nil {
		return err
	}
	defer lease.Stop()

	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		go func() {
			if err := http.ListenAndServe(opts.metricsAddr, mux); err != nil {
				log.Error("metrics server", "err", err)
			}
		}()
	}

	b := bus.New(32)
	if err := stats.New(log).Start(ctx, b.NewConnection("stats")); err != nil {
		return err
	}

	svc, err := runtime.New(runtime.Config{
		Port:      port,
		Lease:     lease,
		Monitor:   timer.NewMonitor(opts.interval, nil),
		Periphs:   set,
		Conn:      b.NewConnection("runtime"),
		Metrics:   m,
		Log:       log,
		Heater:    heater,
		DriftWarn: opts.driftWarn,
	})
	if err != nil {
		return err
	}
	err = svc.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("shutting down")
		return nil
	}
	return err
}

func buildLogger(opts *options) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeLog := func() {}
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		w = f
		closeLog = func() { f.Close() }
	}
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeLog, nil
}

// logSPI records digipot transfers in the log. The host has no real SPI
// bus; this keeps the transfer discipline visible.
type logSPI struct {
	log *slog.Logger
}

func (s *logSPI) Tx(w, r []byte) error {
	s.log.Debug("spi transfer", "tx", fmt.Sprintf("%x", w))
	return nil
}

func (s *logSPI) Transfer(b byte) (byte, error) {
	s.log.Debug("spi transfer", "tx", fmt.Sprintf("%02x", b))
	return 0, nil
}
