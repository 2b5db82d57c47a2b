package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

var (
	ErrWriteTimeout = errors.New("serial: write timed out")
	ErrPortFaulted  = errors.New("serial: port faulted by an earlier stalled write")
)

// monitorPoll bounds how long a monitor read blocks before checking for
// shutdown.
const monitorPoll = 200 * time.Millisecond

// SerialPort wraps a go.bug.st/serial port as the console's byte sink.
type SerialPort struct {
	port         io.ReadWriteCloser
	name         string
	writeTimeout time.Duration // 0 = wait forever
	faulted      bool
}

// OpenSerial opens the named device at baud, 8 data bits, no parity, one
// stop bit.
func OpenSerial(name string, baud int, writeTimeout time.Duration) (*SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := p.SetReadTimeout(monitorPoll); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	logger.Info("serial: port opened", "device", name, "baud", baud, "write_timeout", writeTimeout)
	return newSerialPort(p, name, writeTimeout), nil
}

func newSerialPort(p io.ReadWriteCloser, name string, writeTimeout time.Duration) *SerialPort {
	return &SerialPort{port: p, name: name, writeTimeout: writeTimeout}
}

// ListSerialPorts returns the serial devices the OS knows about.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// Write sends b in one call to the port. A write that is still blocked after
// writeTimeout is abandoned and the port is marked faulted: its bytes may
// still go out later, so nothing more is written after it.
func (s *SerialPort) Write(b []byte) (int, error) {
	if s.faulted {
		return 0, ErrPortFaulted
	}
	if s.writeTimeout <= 0 {
		return s.port.Write(b)
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := s.port.Write(b)
		done <- result{n, err}
	}()

	timer := time.NewTimer(s.writeTimeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.n, r.err
	case <-timer.C:
		s.faulted = true
		logger.Error("serial: write stalled, port faulted", "device", s.name, "timeout", s.writeTimeout)
		return 0, fmt.Errorf("%w after %s", ErrWriteTimeout, s.writeTimeout)
	}
}

// Monitor logs every frame the synth sends back until ctx is done or the
// port is closed. The firmware forwards messages that are not on its own
// channel, so this shows traffic meant for other devices on the chain.
func (s *SerialPort) Monitor(ctx context.Context) error {
	logger.Info("serial: monitoring echoed frames", "device", s.name)
	var asm frameAssembler
	buf := make([]byte, 64)
	for ctx.Err() == nil {
		n, err := s.port.Read(buf)
		for _, c := range buf[:n] {
			f, ok := asm.Feed(c)
			if !ok {
				continue
			}
			if ev, derr := DecodeFrame(f); derr == nil {
				logger.Info("serial: echo", "frame", f.String(), "kind", ev.Kind.String(), "channel", ev.Channel, "note", ev.Note, "value", ev.Value)
			} else {
				logger.Info("serial: echo", "frame", f.String())
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", s.name, err)
		}
	}
	return nil
}

// Close closes the underlying serial port.
func (s *SerialPort) Close() error {
	logger.Info("serial: closing port", "device", s.name)
	return s.port.Close()
}

// frameAssembler rebuilds 3-byte messages from a byte stream: a byte with
// the top bit set starts a message, two data bytes complete it. Stray data
// bytes and short messages are dropped.
type frameAssembler struct {
	buf Frame
	idx int
}

func (a *frameAssembler) Feed(c byte) (Frame, bool) {
	if c&0x80 != 0 {
		a.buf[0] = c
		a.idx = 1
		return Frame{}, false
	}
	if a.idx == 0 {
		return Frame{}, false
	}
	a.buf[a.idx] = c
	a.idx++
	if a.idx < len(a.buf) {
		return Frame{}, false
	}
	a.idx = 0
	return a.buf, true
}
