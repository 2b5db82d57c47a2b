package main

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandKind selects what a console Command does.
type CommandKind int

const (
	CmdNoteOn CommandKind = iota
	CmdNoteOff
	CmdCoarse
	CmdFine
	CmdGate
	CmdTune
	CmdSequence
	CmdGateTest
	CmdQuit
)

func (k CommandKind) String() string {
	switch k {
	case CmdNoteOn:
		return "note-on"
	case CmdNoteOff:
		return "note-off"
	case CmdCoarse:
		return "coarse"
	case CmdFine:
		return "fine"
	case CmdGate:
		return "gate"
	case CmdTune:
		return "tune"
	case CmdSequence:
		return "sequence"
	case CmdGateTest:
		return "gate-test"
	case CmdQuit:
		return "quit"
	}
	return "unknown"
}

// Command is one parsed console line. A note-off without an argument
// releases whatever note was played last.
type Command struct {
	Kind   CommandKind
	Arg    int
	HasArg bool
}

// ParseError reports a line that does not match the command grammar. Err is
// the underlying strconv error for a malformed number, if any.
type ParseError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

const usageText = `Usage:
  n123 - send note-on command for note 123 (range 0..127)
  n    - send note-off command for last note
  c123 - set coarse DAC to 123 (range 0..255)
  f123 - set fine DAC to 123 (range 0..255)
  g1   - set gate on
  g0   - set gate off
  t    - start tuning
  s2   - play built-in sequence 2 (range 0..2, default 0; Ctrl-C stops)
  z    - toggle the gate once a second (Ctrl-C stops)
  q    - quit
`

// ParseCommand turns one line into a Command. The first character selects
// the command; the rest, if any, is a decimal argument.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, &ParseError{Line: line, Reason: "empty line"}
	}
	rest := strings.TrimSpace(line[1:])

	switch line[0] {
	case 'n':
		if rest == "" {
			return Command{Kind: CmdNoteOff}, nil
		}
		return argCommand(CmdNoteOn, line, rest, 0, MaxNote)
	case 'c':
		return argCommand(CmdCoarse, line, rest, 0, MaxDACValue)
	case 'f':
		return argCommand(CmdFine, line, rest, 0, MaxDACValue)
	case 'g':
		return argCommand(CmdGate, line, rest, 0, MaxGate)
	case 's':
		if rest == "" {
			return Command{Kind: CmdSequence, Arg: 0, HasArg: true}, nil
		}
		// Upper bound is checked against the sequence table at play time.
		return argCommand(CmdSequence, line, rest, 0, int(^uint(0)>>1))
	case 't':
		return bareCommand(CmdTune, line, rest)
	case 'z':
		return bareCommand(CmdGateTest, line, rest)
	case 'q':
		return bareCommand(CmdQuit, line, rest)
	}
	return Command{}, &ParseError{Line: line, Reason: fmt.Sprintf("unknown command %q", line[:1])}
}

func argCommand(kind CommandKind, line, arg string, lo, hi int) (Command, error) {
	if arg == "" {
		return Command{}, &ParseError{Line: line, Reason: kind.String() + " needs a value"}
	}
	v, err := strconv.Atoi(arg)
	if err != nil {
		return Command{}, &ParseError{Line: line, Reason: fmt.Sprintf("bad number %q", arg), Err: err}
	}
	if err := checkRange(kind.String(), v, lo, hi); err != nil {
		return Command{}, &ParseError{Line: line, Reason: err.Error(), Err: err}
	}
	return Command{Kind: kind, Arg: v, HasArg: true}, nil
}

func bareCommand(kind CommandKind, line, rest string) (Command, error) {
	if rest != "" {
		return Command{}, &ParseError{Line: line, Reason: fmt.Sprintf("unexpected %q after %s", rest, kind)}
	}
	return Command{Kind: kind}, nil
}
