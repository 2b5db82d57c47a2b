package main

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

const (
	MaxChannel  = 15
	MaxNote     = 127
	MaxDACValue = 255
	MaxGate     = 1
	Velocity    = 127

	ctrlCoarse = 0 // 1 = coarse high half
	ctrlFine   = 2 // 3 = fine high half
	ctrlGate   = 4
	ctrlTuning = 127
	valTuning  = 127
)

// Channel is the MIDI channel nibble (0-15) OR'd into every status byte.
type Channel uint8

// DAC selects one of the two 8-bit DACs on the synth.
type DAC int

const (
	Coarse DAC = iota
	Fine
)

func (d DAC) String() string {
	if d == Fine {
		return "Fine"
	}
	return "Coarse"
}

// Frame is one 3-byte MIDI channel message, the only unit written to the link.
//
//	[status|channel][data1][data2]
type Frame [3]byte

// Message views the frame as a gomidi message.
func (f Frame) Message() midi.Message { return midi.Message(f[:]) }

func (f Frame) String() string { return fmt.Sprintf("% X", f[:]) }

func frameOf(m midi.Message) Frame {
	var f Frame
	copy(f[:], m)
	return f
}

// RangeError reports an argument outside the range the wire format allows.
type RangeError struct {
	What     string
	Value    int
	Min, Max int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d out of range (%d..%d)", e.What, e.Value, e.Min, e.Max)
}

func checkRange(what string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &RangeError{What: what, Value: v, Min: lo, Max: hi}
	}
	return nil
}

// EncodeNoteOn returns the note-on frame for note at full velocity.
func EncodeNoteOn(ch Channel, note int) (Frame, error) {
	if err := checkRange("note", note, 0, MaxNote); err != nil {
		return Frame{}, err
	}
	return frameOf(midi.NoteOn(uint8(ch), uint8(note), Velocity)), nil
}

// EncodeNoteOff uses an explicit velocity of 127 rather than the
// zero-velocity note-on form.
func EncodeNoteOff(ch Channel, note int) (Frame, error) {
	if err := checkRange("note", note, 0, MaxNote); err != nil {
		return Frame{}, err
	}
	return frameOf(midi.NoteOffVelocity(uint8(ch), uint8(note), Velocity)), nil
}

// EncodeDACSet packs an 8-bit DAC value into a 7-bit controller value. Values
// above 127 go out on the odd controller (base+1) with 128 subtracted.
func EncodeDACSet(ch Channel, dac DAC, value int) (Frame, error) {
	if err := checkRange(dac.String()+" DAC value", value, 0, MaxDACValue); err != nil {
		return Frame{}, err
	}
	ctrl := uint8(ctrlCoarse)
	if dac == Fine {
		ctrl = ctrlFine
	}
	v := value
	if v > 127 {
		v -= 128
		ctrl++
	}
	return frameOf(midi.ControlChange(uint8(ch), ctrl, uint8(v))), nil
}

// EncodeGateSet returns the controller frame that sets the gate output.
func EncodeGateSet(ch Channel, value int) (Frame, error) {
	if err := checkRange("gate", value, 0, MaxGate); err != nil {
		return Frame{}, err
	}
	return frameOf(midi.ControlChange(uint8(ch), ctrlGate, uint8(value))), nil
}

// EncodeTuningStart sends the reserved controller/value pair that puts the
// synth into tuning mode.
func EncodeTuningStart(ch Channel) Frame {
	return frameOf(midi.ControlChange(uint8(ch), ctrlTuning, valTuning))
}

// -------------------- Decoding --------------------

// EventKind is the kind of command a decoded frame carries.
type EventKind int

const (
	EventNoteOn EventKind = iota
	EventNoteOff
	EventDAC
	EventGate
	EventTuning
)

func (k EventKind) String() string {
	switch k {
	case EventNoteOn:
		return "note-on"
	case EventNoteOff:
		return "note-off"
	case EventDAC:
		return "dac"
	case EventGate:
		return "gate"
	case EventTuning:
		return "tuning"
	}
	return "unknown"
}

// Event is the logical meaning of a frame.
type Event struct {
	Kind    EventKind
	Channel Channel
	Note    int
	DAC     DAC
	Value   int // DAC value (0-255) or gate value
}

// DecodeFrame maps a frame back onto the command that produced it. It is the
// exact inverse of the Encode functions and rejects anything they cannot emit.
func DecodeFrame(f Frame) (Event, error) {
	var ch, a, b uint8
	msg := f.Message()
	switch {
	case msg.GetNoteOn(&ch, &a, &b):
		return Event{Kind: EventNoteOn, Channel: Channel(ch), Note: int(a)}, nil
	case msg.GetNoteOff(&ch, &a, &b):
		return Event{Kind: EventNoteOff, Channel: Channel(ch), Note: int(a)}, nil
	case msg.GetControlChange(&ch, &a, &b):
		ev := Event{Channel: Channel(ch)}
		switch {
		case a <= ctrlFine+1:
			ev.Kind = EventDAC
			ev.DAC = Coarse
			if a >= ctrlFine {
				ev.DAC = Fine
			}
			ev.Value = int(b) + 128*int(a%2)
		case a == ctrlGate:
			ev.Kind = EventGate
			ev.Value = int(b)
		case a == ctrlTuning && b == valTuning:
			ev.Kind = EventTuning
		default:
			return Event{}, fmt.Errorf("frame %s: unknown controller %d", f, a)
		}
		return ev, nil
	}
	return Event{}, fmt.Errorf("frame %s: not a synth command", f)
}
