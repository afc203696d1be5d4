// Package serialio implements spec component A: a pure byte pipe over a
// blocking serial port, with a background reader and timed reads. It
// knows nothing about DOS shells or XMODEM — those live in internal/shell
// and internal/xmodem and are built on top of Channel.
//
// The low-level port handling (open, raw mode, termios, ioctl) is adapted
// from Daedaluz-goserial's port_linux.go; Channel is new, generalizing
// that library's single-resource synchronization style (an atomic closed
// flag guarding a file descriptor) to a byte queue guarded by a mutex and
// condition variable.
package serialio

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Channel is an async serial byte pipe: a background goroutine reads
// whatever bytes the port has ready (up to 64 per read) and appends them to
// an internal queue; readers
// block on the queue with a timeout rather than on the port directly.
type Channel struct {
	port *lowPort
	log  *logrus.Entry

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
	readErr error

	done chan struct{}
}

// Open opens the named serial device, puts it into raw mode at baud, and
// starts the background reader.
func Open(name string, baud int) (*Channel, error) {
	port, err := openPort(name)
	if err != nil {
		return nil, err
	}
	if err := port.MakeRaw(baud); err != nil {
		port.Close()
		return nil, err
	}
	c := &Channel{
		port: port,
		log:  logrus.WithField("port", name),
		done: make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	go c.readLoop()
	return c, nil
}

// WrapFd adopts an already-open, already-configured file descriptor as a
// Channel without touching its termios settings. It exists for tests that
// hand Channel one end of a pty pair (see internal/serialtest), where the
// fd is never a real serial device and MakeRaw's baud-rate ioctl would be
// meaningless.
func WrapFd(fd int) (*Channel, error) {
	c := &Channel{
		port: &lowPort{fd: fd},
		log:  logrus.WithField("port", "fd"),
		done: make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	go c.readLoop()
	return c, nil
}

// MakeRawFd puts an arbitrary open fd into the same raw, unechoed mode
// Open puts a real serial device into, without requiring a baud rate. Used
// by internal/serialtest to keep a pty slave from double-echoing bytes the
// fake device under test already echoes itself.
func MakeRawFd(fd int) error {
	p := &lowPort{fd: fd}
	attrs, err := p.GetAttr()
	if err != nil {
		return err
	}
	attrs.MakeRaw()
	return p.SetAttr(TCSANOW, attrs)
}

// readLoop is the background task: one small read per iteration, appended
// to buf, waking any blocked consumer. It exits once Close has been
// called and the port read unblocks (or errors out).
func (c *Channel) readLoop() {
	defer close(c.done)
	tmp := make([]byte, 64)
	for {
		n, err := c.port.ReadTimeout(tmp, 200*time.Millisecond)
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if n > 0 {
			c.buf = append(c.buf, tmp[:n]...)
			c.cond.Broadcast()
		}
		if err != nil && n == 0 && !isTimeout(err) {
			c.readErr = err
			c.mu.Unlock()
			c.log.WithError(err).Warn("serial reader stopped")
			return
		}
		c.mu.Unlock()
	}
}

// ReadExact waits until n bytes are queued or timeout elapses. ok is false
// on timeout; the queue is left untouched in that case.
func (c *Channel) ReadExact(ctx context.Context, n int, timeout time.Duration) (data []byte, ok bool) {
	deadline := time.Now().Add(timeout)
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.buf) < n {
		if ctx.Err() != nil || c.closed {
			return nil, false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		c.waitWithTimeout(remaining)
	}
	out := make([]byte, n)
	copy(out, c.buf[:n])
	c.buf = c.buf[n:]
	return out, true
}

// ReadUntil reads bytes until the accumulated buffer ends with tail,
// returning the buffer with tail stripped. ok is false on timeout.
func (c *Channel) ReadUntil(ctx context.Context, tail []byte, timeout time.Duration) (data []byte, ok bool) {
	deadline := time.Now().Add(timeout)
	c.mu.Lock()
	defer c.mu.Unlock()
	for !hasSuffix(c.buf, tail) {
		if ctx.Err() != nil || c.closed {
			return nil, false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		c.waitWithTimeout(remaining)
	}
	idx := len(c.buf) - len(tail)
	out := make([]byte, idx)
	copy(out, c.buf[:idx])
	c.buf = c.buf[idx+len(tail):]
	return out, true
}

// Drain reads and discards whatever arrives for d, ignoring the absence of
// any data at all.
func (c *Channel) Drain(d time.Duration) {
	deadline := time.Now().Add(d)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = c.buf[:0]
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		c.waitWithTimeout(remaining)
		c.buf = c.buf[:0]
	}
}

// Write synchronously enqueues data to the UART.
func (c *Channel) Write(data []byte) error {
	_, err := c.port.Write(data)
	return err
}

// Close stops the background reader and releases the port.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()
	<-c.done
	return c.port.Close()
}

// waitWithTimeout blocks on cond for at most timeout, waking periodically
// so the deadline is honored even though sync.Cond has no native timeout.
func (c *Channel) waitWithTimeout(timeout time.Duration) {
	const tick = 5 * time.Millisecond
	wait := tick
	if timeout < wait {
		wait = timeout
	}
	timer := time.AfterFunc(wait, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()
	c.cond.Wait()
}

func hasSuffix(buf, tail []byte) bool {
	if len(tail) == 0 {
		return true
	}
	if len(buf) < len(tail) {
		return false
	}
	start := len(buf) - len(tail)
	for i := range tail {
		if buf[start+i] != tail[i] {
			return false
		}
	}
	return true
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if te, ok := err.(timeouter); ok {
		return te.Timeout()
	}
	return false
}
