// Package shell drives a DOS command interpreter over a noisy,
// half-duplex serial link: per-character echo verification with
// backspace-based rollback on desync, command-line termination, and
// capture of the shell's output up to its next prompt.
//
// This is spec component B — the part of the system with no analogue in
// goserial (a library for configuring a port, not for talking to what's
// on the other end of it). It is grounded on the same command-as-verified-
// round-trip idea rclone/rclone's backend/ftp/ftp.go applies to its own
// wire protocol (every command followed by a response it inspects before
// trusting it), generalized here to a byte-at-a-time echo check instead
// of a line-oriented FTP reply code.
package shell

import (
	"bytes"
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daedaluz/comftp/internal/serialio"
)

const (
	// DefaultPromptTail is the 3-byte tail of a DOS drive prompt ("C:\>").
	DefaultPromptTail = ":\\>"

	echoTimeout   = 250 * time.Millisecond
	desyncTimeout = 100 * time.Millisecond
	eolTimeout    = 100 * time.Millisecond
	eraseDrain    = 100 * time.Millisecond
)

var eol = []byte{'\r'}

// Driver types commands at a DOS shell and captures its output.
type Driver struct {
	ch  *serialio.Channel
	log *logrus.Entry
}

// New wraps ch with the DOS shell line discipline.
func New(ch *serialio.Channel) *Driver {
	return &Driver{ch: ch, log: logrus.WithField("component", "shell")}
}

// Run types command, recovers from echo desync, and returns the captured
// output up to expectedTail (tail excluded). It retries internally,
// without a ceiling, until the command line is accepted cleanly — a
// permanently unresponsive shell manifests as a hang, not an error. ctx
// lets a caller impose an external bound; it does not change default
// behavior.
func (d *Driver) Run(ctx context.Context, command []byte, expectedTail string) ([]byte, error) {
	tail := []byte(expectedTail)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := d.tryOnce(ctx, command)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		capture, ok := d.ch.ReadUntil(ctx, tail, hugeTimeout)
		if !ok {
			continue
		}
		return capture, nil
	}
}

// hugeTimeout stands in for "no hard timeout": the shell will eventually
// produce its prompt or the link is dead, in which case everything above
// this call is already hung waiting on it too.
const hugeTimeout = 365 * 24 * time.Hour

// tryOnce types command byte by byte with echo verification. ok is false
// if a desync was recovered and the caller should retry from the top.
func (d *Driver) tryOnce(ctx context.Context, command []byte) (ok bool, err error) {
	for _, b := range command {
		if err := d.ch.Write([]byte{b}); err != nil {
			return false, err
		}
		echoed, got := d.ch.ReadExact(ctx, 1, echoTimeout)
		if !got || echoed[0] != b {
			d.log.Warn("echo desync, erasing and retrying command")
			d.erase(len(command) * 2)
			return false, nil
		}
	}

	// Desync check: if a stray byte shows up before we send EOL, something
	// got ahead of us (a duplicated echo, a leftover prompt byte); flush
	// and restart.
	if stray, got := d.ch.ReadExact(ctx, 1, desyncTimeout); got {
		_ = stray
		d.ch.Drain(desyncTimeout)
		d.erase(len(command) * 2)
		return false, nil
	}

	if err := d.ch.Write(eol); err != nil {
		return false, err
	}
	if _, got := d.ch.ReadUntil(ctx, []byte{'\n'}, eolTimeout); !got {
		d.erase(len(command) * 2)
		return false, nil
	}
	return true, nil
}

// erase clears n pending bytes of a partially or duplicately entered
// command line: drain, backspace n times, drain again.
func (d *Driver) erase(n int) {
	d.ch.Drain(eraseDrain)
	bs := bytes.Repeat([]byte{0x08}, n)
	_ = d.ch.Write(bs)
	d.ch.Drain(eraseDrain)
}
