package main

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInterrupted is returned by Play when the operator stops playback. It is
// the only outcome treated as a normal stop; every other error is a fault.
var ErrInterrupted = errors.New("playback interrupted")

// Sleeper pauses for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Player runs sequences against a session, one step at a time.
type Player struct {
	session *Session
	sleep   Sleeper
}

// NewPlayer returns a player for s. A nil sleep waits in real time.
func NewPlayer(s *Session, sleep Sleeper) *Player {
	if sleep == nil {
		sleep = sleepContext
	}
	return &Player{session: s, sleep: sleep}
}

// Play emits seq until it ends or ctx is cancelled. Cancellation is checked
// before every frame and wakes any pending sleep, so a frame is either sent
// whole or not at all. A note may be left sounding when interrupted.
func (p *Player) Play(ctx context.Context, seq *Sequence) error {
	ch := p.session.Channel()
	logger.Info("sequencer: start", "sequence", seq.Name, "base", seq.Base, "channel", ch)

	steps := 0
	for step := range seq.Steps() {
		if ctx.Err() != nil {
			return p.interrupted(seq, steps)
		}
		f, err := step.Encode(ch)
		if err != nil {
			return fmt.Errorf("sequence %s step %d: %w", seq.Name, steps, err)
		}
		if err := p.session.Send(ctx, f); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return p.interrupted(seq, steps)
			}
			return err
		}
		steps++
		if err := p.sleep(ctx, step.Wait); err != nil {
			if ctx.Err() != nil {
				return p.interrupted(seq, steps)
			}
			return err
		}
	}

	logger.Info("sequencer: finished", "sequence", seq.Name, "steps", steps)
	return nil
}

func (p *Player) interrupted(seq *Sequence, steps int) error {
	logger.Info("sequencer: interrupted", "sequence", seq.Name, "steps", steps)
	return ErrInterrupted
}
