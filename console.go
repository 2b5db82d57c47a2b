package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const prompt = "> "

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func pitchName(pitch int) string {
	if pitch < 0 {
		return fmt.Sprintf("?\"%d\"", pitch)
	}
	return fmt.Sprintf("%s%d", noteNames[pitch%12], (pitch/12)-1)
}

// Console reads command lines and drives the session. Everything it does
// happens on the goroutine that calls Run, including sequence playback.
type Console struct {
	session    *Session
	player     *Player
	out        io.Writer
	interrupts <-chan os.Signal // nil = never interrupted
	thru       <-chan Command   // nil = no MIDI thru
	echo       bool             // repeat each line after the prompt (scripted input)
}

// NewConsole returns a console driving s and writing feedback to out.
func NewConsole(s *Session, p *Player, out io.Writer) *Console {
	return &Console{session: s, player: p, out: out}
}

// readLines delivers lines from r on the returned channel, which is closed
// at EOF or on a read error. Lines of any length are passed on whole so the
// parser can reject them; only the end of input closes the channel.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				lines <- strings.TrimRight(line, "\r\n")
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				logger.Error("console: read input failed", "err", err)
				return
			}
		}
	}()
	return lines
}

// Run processes lines until q, end of input or ctx is done. It returns nil
// for q and end of input.
func (c *Console) Run(ctx context.Context, lines <-chan string) error {
	fmt.Fprint(c.out, prompt)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return ctx.Err()

		case <-c.interrupts:
			// Ctrl-C at the prompt discards nothing but the prompt.
			fmt.Fprint(c.out, "\n"+prompt)

		case cmd := <-c.thru:
			msg, err := c.execute(ctx, cmd)
			if err != nil {
				c.report(err)
				fmt.Fprint(c.out, prompt)
			} else if msg != "" {
				logger.Info("console: thru", "result", msg)
			}

		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				logger.Info("console: end of input", "sent", c.session.Summary())
				return nil
			}
			if c.handleLine(ctx, line) {
				return nil
			}
			fmt.Fprint(c.out, prompt)
		}
	}
}

// handleLine runs one line and reports whether the console should quit.
func (c *Console) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if c.echo {
		fmt.Fprintln(c.out, line)
	}

	cmd, err := ParseCommand(line)
	if err != nil {
		logger.Debug("console: bad command", "err", err)
		fmt.Fprint(c.out, usageText)
		return false
	}
	if cmd.Kind == CmdQuit {
		fmt.Fprintf(c.out, "Sent %s\n", c.session.Summary())
		return true
	}

	msg, err := c.execute(ctx, cmd)
	if msg != "" {
		fmt.Fprintln(c.out, msg)
	}
	if err != nil {
		c.report(err)
	}
	return false
}

// execute sends the frame(s) for cmd and returns the operator feedback.
func (c *Console) execute(ctx context.Context, cmd Command) (string, error) {
	ch := c.session.Channel()
	switch cmd.Kind {
	case CmdNoteOn:
		f, err := EncodeNoteOn(ch, cmd.Arg)
		if err != nil {
			return "", err
		}
		if err := c.session.Send(ctx, f); err != nil {
			return "", err
		}
		return fmt.Sprintf("Note %d (%s) on", cmd.Arg, pitchName(cmd.Arg)), nil

	case CmdNoteOff:
		note := cmd.Arg
		if !cmd.HasArg {
			last, ok := c.session.LastNote()
			if !ok {
				return "", nil
			}
			note = last
		}
		f, err := EncodeNoteOff(ch, note)
		if err != nil {
			return "", err
		}
		if err := c.session.Send(ctx, f); err != nil {
			return "", err
		}
		return fmt.Sprintf("Note %d (%s) off", note, pitchName(note)), nil

	case CmdCoarse, CmdFine:
		dac, label := Coarse, "Coarse"
		if cmd.Kind == CmdFine {
			dac, label = Fine, "Fine"
		}
		f, err := EncodeDACSet(ch, dac, cmd.Arg)
		if err != nil {
			return "", err
		}
		if err := c.session.Send(ctx, f); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s: %d", label, cmd.Arg), nil

	case CmdGate:
		f, err := EncodeGateSet(ch, cmd.Arg)
		if err != nil {
			return "", err
		}
		if err := c.session.Send(ctx, f); err != nil {
			return "", err
		}
		return fmt.Sprintf("Gate %d", cmd.Arg), nil

	case CmdTune:
		if err := c.session.Send(ctx, EncodeTuningStart(ch)); err != nil {
			return "", err
		}
		return "Tuning", nil

	case CmdSequence:
		seq, err := LookupSequence(cmd.Arg)
		if err != nil {
			return "", err
		}
		return c.play(ctx, seq)

	case CmdGateTest:
		return c.play(ctx, GateTest)
	}
	return "", fmt.Errorf("console: cannot execute %s", cmd.Kind)
}

// play runs seq until it ends or the operator interrupts. The watcher
// goroutine only cancels; all frames are still written from this goroutine.
func (c *Console) play(ctx context.Context, seq *Sequence) (string, error) {
	desc := seq.Name
	if seq.Base > 0 {
		desc += " from " + pitchName(seq.Base)
	}
	fmt.Fprintf(c.out, "Playing %s (Ctrl-C to stop)\n", desc)

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		select {
		case <-c.interrupts:
			cancel()
		case <-done:
		}
	}()

	err := c.player.Play(pctx, seq)
	// Later interrupts belong to the prompt again.
	close(done)
	<-watching

	switch {
	case errors.Is(err, ErrInterrupted):
		return "Interrupted", nil
	case err != nil:
		return "", err
	}
	return "Done", nil
}

// report prints a failed command. Write failures are kept distinct from
// input errors: they mean the link is in trouble, not the operator.
func (c *Console) report(err error) {
	var we *SinkWriteError
	var ue *UnknownSequenceError
	switch {
	case errors.As(err, &we):
		logger.Error("console: serial write failed", "frame", we.Frame.String(), "err", err)
		fmt.Fprintf(c.out, "Serial write failed: %v\n", we.Err)
	case errors.As(err, &ue):
		fmt.Fprintf(c.out, "Unknown sequence %d (have 0..%d)\n", ue.Index, len(Sequences)-1)
	default:
		logger.Error("console: command failed", "err", err)
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
}
