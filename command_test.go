package main

import (
	"errors"
	"strconv"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"n60", Command{Kind: CmdNoteOn, Arg: 60, HasArg: true}},
		{"n0", Command{Kind: CmdNoteOn, Arg: 0, HasArg: true}},
		{"n127", Command{Kind: CmdNoteOn, Arg: 127, HasArg: true}},
		{"  n 64  ", Command{Kind: CmdNoteOn, Arg: 64, HasArg: true}},
		{"n", Command{Kind: CmdNoteOff}},
		{"c200", Command{Kind: CmdCoarse, Arg: 200, HasArg: true}},
		{"c0", Command{Kind: CmdCoarse, Arg: 0, HasArg: true}},
		{"f255", Command{Kind: CmdFine, Arg: 255, HasArg: true}},
		{"g0", Command{Kind: CmdGate, Arg: 0, HasArg: true}},
		{"g1", Command{Kind: CmdGate, Arg: 1, HasArg: true}},
		{"t", Command{Kind: CmdTune}},
		{"s", Command{Kind: CmdSequence, Arg: 0, HasArg: true}},
		{"s2", Command{Kind: CmdSequence, Arg: 2, HasArg: true}},
		{"s7", Command{Kind: CmdSequence, Arg: 7, HasArg: true}},
		{"z", Command{Kind: CmdGateTest}},
		{"q", Command{Kind: CmdQuit}},
	}
	for _, tt := range tests {
		got, err := ParseCommand(tt.line)
		if err != nil {
			t.Errorf("ParseCommand(%q): %v", tt.line, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{
		"",
		"   ",
		"c999",
		"c256",
		"c",
		"c-1",
		"f",
		"fx",
		"gx",
		"g2",
		"g127",
		"g",
		"n128",
		"n-1",
		"n6o",
		"q1",
		"qq",
		"t1",
		"z 3",
		"s-1",
		"sx",
		"x",
		"?",
		"N60",
	} {
		_, err := ParseCommand(line)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("ParseCommand(%q): err = %v, want *ParseError", line, err)
		}
	}
}

func TestParseErrorUnwrap(t *testing.T) {
	_, err := ParseCommand("gx")
	if !errors.Is(err, strconv.ErrSyntax) {
		t.Errorf("ParseCommand(gx) = %v, want wrapped strconv.ErrSyntax", err)
	}

	_, err = ParseCommand("c999")
	var re *RangeError
	if !errors.As(err, &re) || re.Value != 999 || re.Max != MaxDACValue {
		t.Errorf("ParseCommand(c999) = %v, want wrapped *RangeError", err)
	}
}
