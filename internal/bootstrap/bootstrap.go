// Package bootstrap brings a freshly connected DOS shell to a known
// ready state before the FTP server starts accepting connections.
package bootstrap

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daedaluz/comftp/internal/serialio"
)

const (
	ctrlB        = 0x02
	settleDelay  = 500 * time.Millisecond
	readyDelay   = 100 * time.Millisecond
	probeTimeout = 100 * time.Millisecond
)

var eol = []byte{'\r'}

// Bring repeats the Ctrl-B/EOL bypass-autoexec sequence until the shell
// answers its prompt within probeTimeout, then gives it one more
// settled round-trip so it's ready for the first real command (spec
// §4.F). It only returns once the far shell has responded; ctx lets a
// caller bound how long it's willing to wait.
func Bring(ctx context.Context, ch *serialio.Channel) error {
	log := logrus.WithField("component", "bootstrap")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ch.Write([]byte{ctrlB}); err != nil {
			return err
		}
		time.Sleep(settleDelay)
		if err := ch.Write(eol); err != nil {
			return err
		}
		if _, ok := ch.ReadUntil(ctx, []byte(":\\>"), probeTimeout); ok {
			break
		}
		log.Debug("shell not ready yet, retrying bypass sequence")
	}

	time.Sleep(readyDelay)
	if err := ch.Write(eol); err != nil {
		return err
	}
	time.Sleep(readyDelay)
	if _, ok := ch.ReadUntil(ctx, []byte(":\\>"), noTimeout); !ok {
		return ctx.Err()
	}
	log.Info("dos shell initialized")
	return nil
}

// noTimeout stands in for the unbounded final read for the settled
// prompt: once the probe round-trip succeeds, the shell is assumed to
// respond eventually with no externally imposed ceiling.
const noTimeout = 365 * 24 * time.Hour
