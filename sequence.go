package main

import (
	"fmt"
	"iter"
	"time"
)

// -------------------- Tunables --------------------

const (
	noteHold   = 300 * time.Millisecond
	noteRest   = 100 * time.Millisecond
	gateToggle = 500 * time.Millisecond
)

// -------------------- Steps --------------------

// StepKind is the kind of frame a Step sends.
type StepKind int

const (
	StepNoteOn StepKind = iota
	StepNoteOff
	StepGate
)

// Step is one frame to send followed by a pause before the next one.
type Step struct {
	Kind  StepKind
	Value int // note number or gate value
	Wait  time.Duration
}

// Encode builds the frame for the step on the given channel.
func (st Step) Encode(ch Channel) (Frame, error) {
	switch st.Kind {
	case StepNoteOn:
		return EncodeNoteOn(ch, st.Value)
	case StepNoteOff:
		return EncodeNoteOff(ch, st.Value)
	case StepGate:
		return EncodeGateSet(ch, st.Value)
	}
	return Frame{}, fmt.Errorf("unknown step kind %d", st.Kind)
}

// Sequence is read-only pattern data. Steps is lazy and may never end.
type Sequence struct {
	Name  string
	Base  int
	steps iter.Seq[Step]
}

func (s *Sequence) Steps() iter.Seq[Step] { return s.steps }

// pass emits one run through a pattern and reports whether the consumer
// wants more.
type pass func(yield func(Step) bool) bool

func playNote(yield func(Step) bool, note int) bool {
	return yield(Step{Kind: StepNoteOn, Value: note, Wait: noteHold}) &&
		yield(Step{Kind: StepNoteOff, Value: note, Wait: noteRest})
}

func phrase(base int, offsets []int) pass {
	return func(yield func(Step) bool) bool {
		for _, off := range offsets {
			if !playNote(yield, base+off) {
				return false
			}
		}
		return true
	}
}

func forever(p pass) iter.Seq[Step] {
	return func(yield func(Step) bool) {
		for p(yield) {
		}
	}
}

func once(p pass) iter.Seq[Step] {
	return func(yield func(Step) bool) { p(yield) }
}

// NewPhrase returns a sequence that plays the offsets from base once and
// then ends.
func NewPhrase(name string, base int, offsets []int) *Sequence {
	return &Sequence{Name: name, Base: base, steps: once(phrase(base, offsets))}
}

// -------------------- Built-ins --------------------

var boogiePattern = []int{0, 4, 7, 9, 10, 9, 7, 4}

var melodyPattern = []int{
	0, 12, 7, 10, 12, 15, 12, 10,
	7, 5, 3, 5, 7, 10, 7, 3,
	0, 3, 5, 7, 10, 12, 15, 17,
	19, 17, 15, 12, 10, 7, 5, 3,
}

var variationShifts = []int{0, 0, 5, 0, 7, 0}

func boogie(base int) *Sequence {
	return &Sequence{Name: "boogie", Base: base, steps: forever(phrase(base, boogiePattern))}
}

func melody(base int) *Sequence {
	return &Sequence{Name: "melody", Base: base, steps: forever(phrase(base, melodyPattern))}
}

func boogieVariations(base int) *Sequence {
	shifted := func(yield func(Step) bool) bool {
		for _, shift := range variationShifts {
			if !phrase(base+shift, boogiePattern)(yield) {
				return false
			}
		}
		return true
	}
	return &Sequence{Name: "boogie variations", Base: base, steps: forever(shifted)}
}

// Sequences are the built-ins selected by the s command.
var Sequences = []*Sequence{
	boogie(48),
	melody(36),
	boogieVariations(36),
}

// GateTest switches the gate on and off once a second until stopped.
var GateTest = &Sequence{
	Name: "gate test",
	steps: func(yield func(Step) bool) {
		for yield(Step{Kind: StepGate, Value: 1, Wait: gateToggle}) &&
			yield(Step{Kind: StepGate, Value: 0, Wait: gateToggle}) {
		}
	},
}

// UnknownSequenceError reports an s command index with no built-in behind it.
type UnknownSequenceError struct {
	Index int
}

func (e *UnknownSequenceError) Error() string {
	return fmt.Sprintf("unknown sequence %d (have 0..%d)", e.Index, len(Sequences)-1)
}

// LookupSequence returns built-in sequence i or an *UnknownSequenceError.
func LookupSequence(i int) (*Sequence, error) {
	if i < 0 || i >= len(Sequences) {
		return nil, &UnknownSequenceError{Index: i}
	}
	return Sequences[i], nil
}
