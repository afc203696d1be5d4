//go:build linux

package serialio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/daedaluz/comftp/internal/serialtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestChannel(t *testing.T) (*Channel, *serialtest.Pty) {
	t.Helper()
	pty, err := serialtest.OpenPty()
	require.NoError(t, err)
	t.Cleanup(func() { pty.Close() })

	port := &lowPort{fd: int(pty.Master.Fd())}
	ch := &Channel{port: port, done: make(chan struct{})}
	ch.cond = sync.NewCond(&ch.mu)
	go ch.readLoop()
	t.Cleanup(func() {
		ch.mu.Lock()
		ch.closed = true
		ch.cond.Broadcast()
		ch.mu.Unlock()
		<-ch.done
	})
	return ch, pty
}

func TestChannelReadExact(t *testing.T) {
	ch, pty := openTestChannel(t)

	go func() {
		_, _ = pty.Slave.Write([]byte("hello"))
	}()

	data, ok := ch.ReadExact(context.Background(), 5, time.Second)
	require.True(t, ok)
	assert.Equal(t, "hello", string(data))
}

func TestChannelReadExactTimeout(t *testing.T) {
	ch, _ := openTestChannel(t)

	_, ok := ch.ReadExact(context.Background(), 5, 50*time.Millisecond)
	assert.False(t, ok)
}

func TestChannelReadUntil(t *testing.T) {
	ch, pty := openTestChannel(t)

	go func() {
		_, _ = pty.Slave.Write([]byte("C:\\foo:\\>"))
	}()

	data, ok := ch.ReadUntil(context.Background(), []byte(":\\>"), time.Second)
	require.True(t, ok)
	assert.Equal(t, "C:\\foo", string(data))
}

func TestChannelDrain(t *testing.T) {
	ch, pty := openTestChannel(t)

	go func() {
		_, _ = pty.Slave.Write([]byte("garbage"))
	}()
	time.Sleep(20 * time.Millisecond)
	ch.Drain(50 * time.Millisecond)

	ch.mu.Lock()
	n := len(ch.buf)
	ch.mu.Unlock()
	assert.Zero(t, n)
}
