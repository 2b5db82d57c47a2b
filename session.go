package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"golang.org/x/time/rate"
)

// SinkWriteError reports a frame that did not reach the link intact. Written
// is how many of its bytes the sink accepted before failing.
type SinkWriteError struct {
	Frame   Frame
	Written int
	Err     error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("write frame %s: %d of %d bytes: %v", e.Frame, e.Written, len(e.Frame), e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// Session holds everything the console and sequencer share: the channel, the
// byte sink and a mirror of the synth state as of the last frame that was
// written in full. Only the console goroutine touches it.
type Session struct {
	channel Channel
	out     io.Writer
	limit   *rate.Limiter // nil = unpaced

	lastNote int // -1 = none
	gate     int
	coarse   int
	fine     int

	frames  int
	bytes   uint64
	started time.Time
}

// NewSession returns a session writing to out on ch. A nil limit means no rate limit.
func NewSession(ch Channel, out io.Writer, limit *rate.Limiter) *Session {
	return &Session{
		channel:  ch,
		out:      out,
		limit:    limit,
		lastNote: -1,
		started:  time.Now(),
	}
}

func (s *Session) Channel() Channel { return s.channel }

// LastNote returns the note most recently switched on and not yet off.
func (s *Session) LastNote() (int, bool) {
	return s.lastNote, s.lastNote >= 0
}

func (s *Session) Gate() int { return s.gate }

// DAC returns the last coarse and fine values sent.
func (s *Session) DAC() (coarse, fine int) { return s.coarse, s.fine }

// Send writes one frame and, only once all three bytes are out, folds it
// into the session state. A cancelled ctx stops it before anything is
// written.
func (s *Session) Send(ctx context.Context, f Frame) error {
	if s.limit != nil {
		if err := s.limit.Wait(ctx); err != nil {
			return err
		}
	}
	n, err := s.out.Write(f[:])
	if err == nil && n != len(f) {
		err = io.ErrShortWrite
	}
	if err != nil {
		logger.Debug("session: frame write failed", "frame", f.String(), "written", n, "err", err)
		return &SinkWriteError{Frame: f, Written: n, Err: err}
	}
	s.frames++
	s.bytes += uint64(n)
	s.apply(f)
	logger.Debug("session: frame sent", "frame", f.String(), "last_note", s.lastNote, "gate", s.gate)
	return nil
}

func (s *Session) apply(f Frame) {
	ev, err := DecodeFrame(f)
	if err != nil {
		logger.Warn("session: sent frame not understood", "frame", f.String(), "err", err)
		return
	}
	switch ev.Kind {
	case EventNoteOn:
		s.lastNote = ev.Note
	case EventNoteOff:
		if ev.Note == s.lastNote {
			s.lastNote = -1
		}
	case EventDAC:
		if ev.DAC == Fine {
			s.fine = ev.Value
		} else {
			s.coarse = ev.Value
		}
	case EventGate:
		s.gate = ev.Value
	}
}

// Summary describes what the session has sent so far.
func (s *Session) Summary() string {
	elapsed := time.Since(s.started).Round(time.Second)
	return fmt.Sprintf("%s frames (%s) in %s",
		humanize.Comma(int64(s.frames)),
		humanize.Bytes(s.bytes),
		durafmt.Parse(elapsed).LimitFirstN(2).String(),
	)
}
