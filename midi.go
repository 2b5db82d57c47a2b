package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// excludedPatterns: virtual/system ports that are never auto-connected.
var excludedPatterns = []string{"Midi Through", "Through Port", "Dummy"}

const midiRescanInterval = 1000 * time.Millisecond

// thruQueue is how many keyboard events may wait while the console is busy
// playing a sequence.
const thruQueue = 64

// MIDIThru forwards notes from a hardware MIDI keyboard to the synth. It
// never writes to the serial link itself: incoming notes become Commands on
// C, which the console executes between lines like typed input. It handles
// hot-plug (device appears) and hot-unplug (device disappears); on unplug a
// bare note-off is queued so a held key does not leave the synth sounding.
type MIDIThru struct {
	C <-chan Command

	mu           sync.Mutex
	drv          *rtmididrv.Driver
	inPort       drivers.In
	stopFn       func()
	connected    bool
	selectedName string
	lastRescanAt time.Time

	pattern string
	out     chan Command
}

// NewMIDIThru creates a forwarder for the first MIDI input whose name
// contains pattern (case-insensitive). Call Close() when done.
func NewMIDIThru(pattern string) (*MIDIThru, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	out := make(chan Command, thruQueue)
	return &MIDIThru{C: out, drv: drv, pattern: pattern, out: out}, nil
}

// Close shuts down the active MIDI connection and the rtmidi driver.
func (m *MIDIThru) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeConn()
	m.drv.Close()
}

// Run ticks the watcher until stop is closed.
func (m *MIDIThru) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(midiRescanInterval / 4)
	defer ticker.Stop()
	m.Tick()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick scans for devices, connects to a matching one, and detects
// disappearances. Scans are rate-limited to midiRescanInterval.
func (m *MIDIThru) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if !m.lastRescanAt.IsZero() && now.Sub(m.lastRescanAt) < midiRescanInterval {
		return
	}
	m.lastRescanAt = now

	inputs := m.listInputs()

	if m.connected {
		for _, n := range inputs {
			if n == m.selectedName {
				return
			}
		}
		logger.Warn("midi: device disappeared", "device", m.selectedName)
		m.closeConn()
		m.lastRescanAt = time.Time{} // rescan immediately next tick
		m.release()
		return
	}

	cand, ok := pickInput(inputs, m.pattern)
	if !ok {
		return
	}
	if err := m.openByName(cand); err != nil {
		logger.Error("midi: connect failed", "device", cand, "err", err)
	}
}

// -------------------- internal --------------------

// forward queues cmd without blocking the rtmidi callback. Note-ons are
// dropped once the queue is three quarters full; the rest is kept for
// note-offs, which are never dropped. A note-off that finds even that full is
// delivered from its own goroutine and may arrive after later events.
func (m *MIDIThru) forward(cmd Command) {
	if cmd.Kind == CmdNoteOn {
		if len(m.out) < cap(m.out)-cap(m.out)/4 {
			select {
			case m.out <- cmd:
				return
			default:
			}
		}
		logger.Warn("midi: thru queue full, dropping note-on", "note", cmd.Arg)
		return
	}
	select {
	case m.out <- cmd:
	default:
		logger.Warn("midi: thru queue full, delivering note-off late", "note", cmd.Arg, "bare", !cmd.HasArg)
		go func() { m.out <- cmd }()
	}
}

func (m *MIDIThru) release() {
	m.forward(Command{Kind: CmdNoteOff})
}

func (m *MIDIThru) listInputs() []string {
	ins, err := m.drv.Ins()
	if err != nil {
		logger.Error("midi: list inputs failed", "err", err)
		return nil
	}
	var names []string
	for _, in := range ins {
		names = append(names, in.String())
	}
	names = filterInputs(names)
	logger.Debug("midi: inputs found", "count", len(names), "devices", strings.Join(names, ", "))
	return names
}

func filterInputs(names []string) []string {
	var out []string
	for _, name := range names {
		excluded := false
		for _, pat := range excludedPatterns {
			if containsCI(name, pat) {
				excluded = true
				break
			}
		}
		if excluded {
			logger.Debug("midi: input excluded", "device", name)
		} else {
			out = append(out, name)
		}
	}
	return out
}

// pickInput returns the first input matching pattern, or the only input if
// there is exactly one and no pattern was given.
func pickInput(inputs []string, pattern string) (string, bool) {
	if pattern == "" {
		if len(inputs) == 1 {
			return inputs[0], true
		}
		return "", false
	}
	for _, name := range inputs {
		if containsCI(name, pattern) {
			return name, true
		}
	}
	return "", false
}

func (m *MIDIThru) closeConn() {
	if m.stopFn != nil {
		m.stopFn()
		m.stopFn = nil
	}
	if m.inPort != nil {
		_ = m.inPort.Close()
		m.inPort = nil
	}
	m.connected = false
	m.selectedName = ""
}

func (m *MIDIThru) openByName(name string) error {
	ins, err := m.drv.Ins()
	if err != nil {
		return err
	}
	var found drivers.In
	for _, in := range ins {
		if in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		return fmt.Errorf("input %q not found", name)
	}
	if err := found.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}

	stop, err := midi.ListenTo(found, func(msg midi.Message, _ int32) {
		if cmd, ok := thruCommand(msg); ok {
			logger.Debug("midi: thru", "kind", cmd.Kind.String(), "note", cmd.Arg)
			m.forward(cmd)
		} else {
			logger.Debug("midi: unhandled message", "msg", msg.String())
		}
	}, midi.HandleError(func(listenErr error) {
		logger.Warn("midi: listener error", "device", name, "err", listenErr)
		// Must not call closeConn from within the listener goroutine, so
		// we dispatch to a new goroutine and re-acquire the mutex.
		go func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.connected && m.selectedName == name {
				m.closeConn()
				m.lastRescanAt = time.Time{} // trigger immediate rescan
				m.release()
			}
		}()
	}))
	if err != nil {
		_ = found.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}

	m.inPort = found
	m.stopFn = stop
	m.connected = true
	m.selectedName = name
	logger.Info("midi: connected", "device", name)
	return nil
}

// thruCommand maps a keyboard message onto a console command. Keyboards
// send note-off as note-on with velocity 0; both become an explicit note-off
// for that key.
func thruCommand(msg midi.Message) (Command, bool) {
	var ch, key, vel uint8
	if msg.GetNoteStart(&ch, &key, &vel) {
		return Command{Kind: CmdNoteOn, Arg: int(key), HasArg: true}, true
	}
	if msg.GetNoteEnd(&ch, &key) {
		return Command{Kind: CmdNoteOff, Arg: int(key), HasArg: true}, true
	}
	return Command{}, false
}

// -------------------- utility --------------------

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
