//go:build linux

package bootstrap

import (
	"bufio"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daedaluz/comftp/internal/serialio"
	"github.com/daedaluz/comftp/internal/serialtest"
)

// fakeDosDevice answers every '\r' it sees with a bare prompt, after
// dropping the first N ctrl-B/EOL rounds entirely to exercise the retry
// loop.
func fakeDosDevice(pty *serialtest.Pty, dropRounds int) {
	go func() {
		r := bufio.NewReader(pty.Slave)
		rounds := 0
		for {
			b, err := r.ReadByte()
			if err != nil {
				return
			}
			if b != '\r' {
				continue // ctrl-B and anything else is silently swallowed
			}
			rounds++
			if rounds <= dropRounds {
				continue
			}
			pty.Slave.Write([]byte("\n:\\>"))
		}
	}()
}

func TestBringRetriesUntilShellResponds(t *testing.T) {
	pty, err := serialtest.OpenPty()
	require.NoError(t, err)
	t.Cleanup(func() { pty.Close() })
	fakeDosDevice(pty, 2)

	ch, err := serialio.WrapFd(int(pty.Master.Fd()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, Bring(ctx, ch))
}
