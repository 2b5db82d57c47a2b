package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

var errUnplugged = errors.New("device unplugged")

// recordingSink stands in for the serial port. With failAt set, that write
// and every later one fails; short makes the failure a 1-byte partial write.
type recordingSink struct {
	frames []Frame
	writes int
	failAt int
	short  bool
}

func (r *recordingSink) Write(b []byte) (int, error) {
	r.writes++
	if r.failAt > 0 && r.writes >= r.failAt {
		if r.short {
			return 1, nil
		}
		return 0, errUnplugged
	}
	var f Frame
	copy(f[:], b)
	r.frames = append(r.frames, f)
	return len(b), nil
}

func mustFrame(t *testing.T) func(Frame, error) Frame {
	return func(f Frame, err error) Frame {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return f
	}
}

func TestSessionTracksLastNote(t *testing.T) {
	sink := &recordingSink{}
	s := NewSession(0, sink, nil)
	ctx := context.Background()
	must := mustFrame(t)

	if _, ok := s.LastNote(); ok {
		t.Fatal("new session has a last note")
	}
	if err := s.Send(ctx, must(EncodeNoteOn(0, 60))); err != nil {
		t.Fatal(err)
	}
	if n, ok := s.LastNote(); !ok || n != 60 {
		t.Fatalf("LastNote = %d, %v; want 60, true", n, ok)
	}
	// Releasing some other note leaves the last one alone.
	if err := s.Send(ctx, must(EncodeNoteOff(0, 61))); err != nil {
		t.Fatal(err)
	}
	if n, ok := s.LastNote(); !ok || n != 60 {
		t.Fatalf("LastNote after unrelated note-off = %d, %v", n, ok)
	}
	if err := s.Send(ctx, must(EncodeNoteOff(0, 60))); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.LastNote(); ok {
		t.Fatal("LastNote still set after note-off")
	}
}

func TestSessionTracksDACAndGate(t *testing.T) {
	s := NewSession(1, &recordingSink{}, nil)
	ctx := context.Background()
	must := mustFrame(t)

	for _, f := range []Frame{
		must(EncodeDACSet(1, Coarse, 200)),
		must(EncodeDACSet(1, Fine, 10)),
		must(EncodeGateSet(1, 1)),
	} {
		if err := s.Send(ctx, f); err != nil {
			t.Fatal(err)
		}
	}
	if c, f := s.DAC(); c != 200 || f != 10 {
		t.Errorf("DAC() = %d, %d; want 200, 10", c, f)
	}
	if g := s.Gate(); g != 1 {
		t.Errorf("Gate() = %d, want 1", g)
	}
}

func TestSessionWriteFailureLeavesState(t *testing.T) {
	sink := &recordingSink{failAt: 2}
	s := NewSession(0, sink, nil)
	ctx := context.Background()
	must := mustFrame(t)

	if err := s.Send(ctx, must(EncodeNoteOn(0, 50))); err != nil {
		t.Fatal(err)
	}
	err := s.Send(ctx, must(EncodeNoteOn(0, 70)))
	var we *SinkWriteError
	if !errors.As(err, &we) || !errors.Is(err, errUnplugged) {
		t.Fatalf("Send = %v, want *SinkWriteError wrapping errUnplugged", err)
	}
	if we.Frame != (Frame{0x90, 70, 127}) {
		t.Errorf("SinkWriteError.Frame = %v", we.Frame)
	}
	if n, _ := s.LastNote(); n != 50 {
		t.Errorf("LastNote = %d after failed write, want 50", n)
	}
}

func TestSessionShortWrite(t *testing.T) {
	s := NewSession(0, &recordingSink{failAt: 1, short: true}, nil)
	err := s.Send(context.Background(), mustFrame(t)(EncodeGateSet(0, 1)))
	var we *SinkWriteError
	if !errors.As(err, &we) || !errors.Is(err, io.ErrShortWrite) || we.Written != 1 {
		t.Fatalf("Send = %v, want short-write *SinkWriteError", err)
	}
	if s.Gate() != 0 {
		t.Error("gate updated by a partial write")
	}
}

func TestSessionPacingHonoursCancel(t *testing.T) {
	sink := &recordingSink{}
	// One frame of burst, then one every hour.
	s := NewSession(0, sink, rate.NewLimiter(rate.Every(1<<62), 1))
	ctx, cancel := context.WithCancel(context.Background())
	f := EncodeTuningStart(0)

	if err := s.Send(ctx, f); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := s.Send(ctx, f); !errors.Is(err, context.Canceled) {
		t.Fatalf("Send after cancel = %v, want context.Canceled", err)
	}
	if len(sink.frames) != 1 {
		t.Errorf("sink got %d frames, want 1", len(sink.frames))
	}
}

func TestSessionSummary(t *testing.T) {
	s := NewSession(0, &recordingSink{}, nil)
	for i := 0; i < 3; i++ {
		if err := s.Send(context.Background(), EncodeTuningStart(0)); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.Summary(); !strings.HasPrefix(got, "3 frames (9 B)") {
		t.Errorf("Summary() = %q", got)
	}
}
