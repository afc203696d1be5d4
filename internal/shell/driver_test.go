//go:build linux

package shell

import (
	"bufio"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daedaluz/comftp/internal/serialio"
	"github.com/daedaluz/comftp/internal/serialtest"
)

// fakeShell plays the DOS side of the wire on slave: it echoes every byte
// it reads back immediately (the normal case), then once it sees '\r'
// answers with "\n" followed by the given response and the prompt tail.
type fakeShell struct {
	slave    *bufio.ReadWriter
	response string
}

func newFakeShell(pty *serialtest.Pty, response string) {
	go func() {
		r := bufio.NewReader(pty.Slave)
		for {
			b, err := r.ReadByte()
			if err != nil {
				return
			}
			if b == '\r' {
				pty.Slave.Write([]byte("\n" + response + ":\\>"))
				continue
			}
			pty.Slave.Write([]byte{b})
		}
	}()
}

func newChannel(t *testing.T) (*serialio.Channel, *serialtest.Pty) {
	t.Helper()
	pty, err := serialtest.OpenPty()
	require.NoError(t, err)
	t.Cleanup(func() { pty.Close() })
	ch, err := serialio.WrapFd(int(pty.Master.Fd()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	return ch, pty
}

func TestRunCapturesOutput(t *testing.T) {
	ch, pty := newChannel(t)
	newFakeShell(pty, "volume in drive c is dos\n")

	d := New(ch)
	out, err := d.Run(context.Background(), []byte("dir c:"), DefaultPromptTail)
	require.NoError(t, err)
	assert.Equal(t, "volume in drive c is dos\n", string(out))
}

func TestRunSurvivesEchoDrop(t *testing.T) {
	ch, pty := newChannel(t)

	// Device drops the echo of the very first byte once, then behaves.
	dropped := false
	go func() {
		r := bufio.NewReader(pty.Slave)
		for {
			b, err := r.ReadByte()
			if err != nil {
				return
			}
			if b == '\r' {
				pty.Slave.Write([]byte("\nok\n:\\>"))
				continue
			}
			if !dropped {
				dropped = true
				continue // swallow the echo of the first byte
			}
			pty.Slave.Write([]byte{b})
		}
	}()

	d := New(ch)
	out, err := d.Run(context.Background(), []byte("dir c:"), DefaultPromptTail)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(out))
}

func TestRunContextCancel(t *testing.T) {
	ch, _ := newChannel(t)
	d := New(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Run(ctx, []byte("dir c:"), DefaultPromptTail)
	assert.Error(t, err)
}
