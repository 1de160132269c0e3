package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"pioemu/core"
	"pioemu/host/config"
	"pioemu/host/console"
	"pioemu/host/monitor"
	"pioemu/host/script"
	"pioemu/host/serial"
	"pioemu/pio"
	"pioemu/protocol"
	"pioemu/sdk"
)

var (
	configPath     = flag.String("config", "", "JSON configuration file")
	pioIndex       = flag.Int("pio", 0, "PIO block to emulate (0 or 1)")
	clockPeriod    = flag.Duration("clock-period", time.Millisecond, "Wall time per clock cycle, 0 runs free")
	snapshotCycles = flag.Uint64("snapshot-cycles", 1000, "Clock cycles between streamed snapshots")
	device         = flag.String("device", "", "Serial device receiving the snapshot stream")
	baud           = flag.Int("baud", 115200, "Serial baud rate")
	scriptPath     = flag.String("script", "", "Lua script to run at start-up")
	logLevel       = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	traceEvents    = flag.Bool("trace", false, "Record register writes and dump them on exit")
	noConsole      = flag.Bool("no-console", false, "Do not read commands from stdin")
	watch          = flag.String("watch", "", "Decode and print a snapshot stream from this serial device")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *watch != "" {
		err = runWatch(ctx, *watch, cfg.Baud, logger)
	} else {
		err = run(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("pioemu failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies the flags
// given on the command line on top of it.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pio":
			cfg.PIOIndex = *pioIndex
		case "clock-period":
			cfg.ClockPeriod = config.Duration(*clockPeriod)
		case "snapshot-cycles":
			cfg.SnapshotCycles = *snapshotCycles
		case "device":
			cfg.SerialDevice = *device
		case "baud":
			cfg.Baud = *baud
		case "script":
			cfg.Script = *scriptPath
		case "log-level":
			cfg.LogLevel = *logLevel
		case "trace":
			cfg.Trace = *traceEvents
		}
	})
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	gpio := core.NewGPIO()
	block, err := pio.New(cfg.PIOIndex, gpio)
	if err != nil {
		return err
	}
	block.SetLogger(logger)

	var trace *core.Trace
	if cfg.Trace {
		trace = core.NewTrace()
		block.SetTrace(trace)
		defer trace.Dump(logger)
	}

	clock := core.NewClock()
	clock.AddListener(block)

	driver, err := sdk.New(block, gpio)
	if err != nil {
		return err
	}
	driver.SetLogger(logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	period := time.Duration(cfg.ClockPeriod)
	g.Go(func() error { return clock.Run(ctx, period) })

	if cfg.SerialDevice != "" {
		port, err := serial.Open(&serial.Config{Device: cfg.SerialDevice, Baud: cfg.Baud})
		if err != nil {
			return err
		}
		defer port.Close()

		streamer, err := monitor.New(clock, block, cfg.SnapshotCycles, logger)
		if err != nil {
			return err
		}
		streamer.Start()
		defer streamer.Stop()
		g.Go(func() error { return streamer.Run(ctx, port) })
	}

	// The session runs the script, then the console. Leaving the console
	// ends the process; without one the emulator runs until interrupted.
	g.Go(func() error {
		if cfg.Script != "" {
			rt, err := script.New(driver, gpio, clock, os.Stdout, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.RunFile(ctx, cfg.Script); err != nil && ctx.Err() == nil {
				return err
			}
		}
		if *noConsole {
			return nil
		}
		con, err := console.New(driver, gpio, clock, trace, os.Stdin, os.Stdout, logger)
		if err != nil {
			return err
		}
		if err := con.Run(ctx); err != nil {
			return err
		}
		cancel()
		return nil
	})

	logger.Info("emulator running",
		"pio", cfg.PIOIndex,
		"clock_period", period,
		"snapshot_device", cfg.SerialDevice)
	return g.Wait()
}

// runWatch prints the snapshots streamed by another emulator instance.
func runWatch(ctx context.Context, dev string, baudRate int, logger *slog.Logger) error {
	port, err := serial.Open(&serial.Config{Device: dev, Baud: baudRate})
	if err != nil {
		return err
	}
	reader := protocol.NewSnapshotReader(port, logger)
	defer reader.Close()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped", "missed", reader.Missed())
			return nil
		case snap, ok := <-reader.Snapshots():
			if !ok {
				return errors.Wrap(protocol.ErrStreamClosed, dev)
			}
			printSnapshot(snap)
		}
	}
}

func printSnapshot(s protocol.Snapshot) {
	fmt.Printf("%10d ctrl=%08x fstat=%08x flevel=%08x out=%08x oe=%08x",
		s.WallClock, s.Ctrl, s.FStat, s.FLevel, s.PadOut, s.PadOE)
	for i, sm := range s.SMs {
		fmt.Printf(" sm%d=%02d/%08x", i, sm.PC, sm.ClkDiv)
	}
	fmt.Println()
}
