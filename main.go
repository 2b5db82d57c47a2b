package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"
	"golang.org/x/time/rate"
)

// -------------------- Logger --------------------

// logger is the package-wide structured logger. Safe to use before initLogger
// is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger to write to w and calls
// slog.SetDefault so the stdlib log package also routes through the same
// handler.
func initLogger(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	})
	logger = slog.New(h)
	slog.SetDefault(logger) // stdlib log.* now routes through slog
}

// -------------------- Main --------------------

// link is what the console needs from the serial port.
type link interface {
	io.Writer
	Monitor(ctx context.Context) error
	Close() error
}

type openFunc func(name string, baud int, writeTimeout time.Duration) (link, error)

func openSerialLink(name string, baud int, writeTimeout time.Duration) (link, error) {
	sp, err := OpenSerial(name, baud, writeTimeout)
	if err != nil {
		return nil, err
	}
	return sp, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, openSerialLink))
}

// run is the whole program. Exit codes: 0 for q or end of input, 1 for
// runtime failures, 2 for bad flags.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer, open openFunc) int {
	fs := flag.NewFlagSet("synth-console", flag.ContinueOnError)
	fs.SetOutput(stderr)
	debug := fs.Bool("debug", false, "enable debug logging (adds source location)")
	serialDev := fs.String("serial", "/dev/ttyUSB0", "serial port device")
	baud := fs.Int("baud", 115200, "serial baud rate (8N1)")
	channel := fs.Int("channel", 0, "MIDI channel of the synth (0-15)")
	writeTimeout := fs.Duration("write-timeout", time.Second, "fault the port if a frame write stalls this long (0 disables)")
	maxRate := fs.Float64("max-rate", 500, "maximum frames per second sent to the synth (0 = unlimited)")
	midiIn := fs.String("midi-in", "", "forward notes from the MIDI input whose name contains this text")
	monitor := fs.Bool("monitor", false, "log frames the synth echoes back on the serial port")
	list := fs.Bool("list", false, "list serial ports and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	initLogger(stderr, *debug)

	if *list {
		ports, err := ListSerialPorts()
		if err != nil {
			logger.Error("serial: list failed", "err", err)
			return 1
		}
		for _, p := range ports {
			fmt.Fprintln(stdout, p)
		}
		return 0
	}

	if err := checkRange("channel", *channel, 0, MaxChannel); err != nil {
		logger.Error("invalid flag", "err", err)
		return 2
	}

	logger.Info("synth-console starting",
		"serial", *serialDev,
		"baud", *baud,
		"channel", *channel,
		"write_timeout", *writeTimeout,
		"max_rate", *maxRate,
		"midi_in", *midiIn,
		"debug", *debug,
	)

	sp, err := open(*serialDev, *baud, *writeTimeout)
	if err != nil {
		logger.Error("serial: open failed", "device", *serialDev, "err", err)
		return 1
	}
	defer sp.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if *monitor {
		go func() {
			if err := sp.Monitor(ctx); err != nil {
				logger.Warn("serial: monitor stopped", "err", err)
			}
		}()
	}

	var limit *rate.Limiter
	if *maxRate > 0 {
		limit = rate.NewLimiter(rate.Limit(*maxRate), 1)
	}
	session := NewSession(Channel(*channel), sp, limit)

	console := NewConsole(session, NewPlayer(session, nil), stdout)
	console.echo = true
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		console.echo = false
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	console.interrupts = interrupts

	if *midiIn != "" {
		thru, err := NewMIDIThru(*midiIn)
		if err != nil {
			logger.Error("midi: thru init failed", "err", err)
			return 1
		}
		defer thru.Close()
		done := make(chan struct{})
		defer close(done)
		go thru.Run(done)
		console.thru = thru.C
		logger.Info("midi: waiting for input device", "pattern", *midiIn)
	}

	fmt.Fprint(stdout, usageText)
	err = console.Run(ctx, readLines(stdin))
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("console stopped", "err", err)
		return 1
	}
	return 0
}
