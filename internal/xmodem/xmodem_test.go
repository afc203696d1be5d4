//go:build linux

package xmodem

import (
	"bufio"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daedaluz/comftp/internal/serialio"
	"github.com/daedaluz/comftp/internal/serialtest"
)

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

// fakeDevice plays the far end of an upload: acks every well-formed SOH
// frame, then acks EOT once seen.
func fakeDevice(t *testing.T, slave *serialtest.Pty, frames *[][]byte) {
	t.Helper()
	go func() {
		r := bufio.NewReader(slave.Slave)
		for {
			mode, err := r.ReadByte()
			if err != nil {
				return
			}
			if mode == EOT {
				slave.Slave.Write([]byte{ACK})
				continue
			}
			if mode != SOH {
				continue
			}
			header := make([]byte, 2)
			if _, err := r.Read(header); err != nil {
				return
			}
			data := make([]byte, 128)
			if _, err := r.Read(data); err != nil {
				return
			}
			csum, err := r.ReadByte()
			if err != nil {
				return
			}
			if csum != checksum(data) {
				slave.Slave.Write([]byte{NAK})
				continue
			}
			*frames = append(*frames, append([]byte(nil), data...))
			slave.Slave.Write([]byte{ACK})
		}
	}()
}

func TestSenderSendsFullAndPaddedBlocks(t *testing.T) {
	ch, pty := newChannel(t)
	var frames [][]byte
	fakeDevice(t, pty, &frames)

	s := NewSender(ch)
	payload := append(make([]byte, 128), []byte("tail")...)
	_, err := s.Write(payload)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	time.Sleep(50 * time.Millisecond)
	require.Len(t, frames, 2)
	assert.Equal(t, payload[:128], frames[0])
	assert.Equal(t, byte('0'), frames[1][4]) // padding starts right after "tail"
	assert.Equal(t, []byte("tail"), frames[1][:4])
}

func TestSenderRetriesOnNak(t *testing.T) {
	ch, pty := newChannel(t)
	attempts := 0
	go func() {
		r := bufio.NewReader(pty.Slave)
		for {
			mode, err := r.ReadByte()
			if err != nil {
				return
			}
			if mode == EOT {
				pty.Slave.Write([]byte{ACK})
				continue
			}
			if mode != SOH {
				continue
			}
			buf := make([]byte, 2+128+1)
			if _, err := r.Read(buf); err != nil {
				return
			}
			attempts++
			if attempts < 2 {
				pty.Slave.Write([]byte{NAK})
				continue
			}
			pty.Slave.Write([]byte{ACK})
		}
	}()

	s := NewSender(ch)
	_, err := s.Write(make([]byte, 128))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestReceiverReadsBlocksAndTruncates(t *testing.T) {
	ch, pty := newChannel(t)

	go func() {
		// wait for the initial NAK
		nak := make([]byte, 1)
		pty.Slave.Read(nak)

		data := make([]byte, 128)
		for i := range data {
			data[i] = byte(i)
		}
		frame := append([]byte{SOH, 1, 0xFF - 1}, data...)
		frame = append(frame, checksum(data))
		pty.Slave.Write(frame)

		ack := make([]byte, 1)
		pty.Slave.Read(ack)

		pty.Slave.Write([]byte{EOT})
		pty.Slave.Read(ack)
	}()

	r := NewReceiver(ch, 100)
	require.NoError(t, r.Start())

	block, err := r.ReadBlock()
	require.NoError(t, err)
	assert.Len(t, block, 100) // truncated to the declared size

	block, err = r.ReadBlock()
	require.NoError(t, err)
	assert.Nil(t, block)
}

// TestReceiverWaitsPastFrameTimeoutForSlowDevice proves a slow far end
// never aborts a receive: the device here takes far longer than
// frameTimeout to start a block, which must not surface as an error.
func TestReceiverWaitsPastFrameTimeoutForSlowDevice(t *testing.T) {
	ch, pty := newChannel(t)

	go func() {
		nak := make([]byte, 1)
		pty.Slave.Read(nak)

		time.Sleep(frameTimeout + 500*time.Millisecond)

		data := make([]byte, 128)
		frame := append([]byte{SOH, 1, 0xFF - 1}, data...)
		frame = append(frame, checksum(data))
		pty.Slave.Write(frame)

		ack := make([]byte, 1)
		pty.Slave.Read(ack)
	}()

	r := NewReceiver(ch, 128)
	require.NoError(t, r.Start())
	block, err := r.ReadBlock()
	require.NoError(t, err)
	assert.Len(t, block, 128)
}

func TestReceiverNaksBadChecksum(t *testing.T) {
	ch, pty := newChannel(t)
	var gotNak, gotAck bool

	go func() {
		nak := make([]byte, 1)
		pty.Slave.Read(nak) // initial

		data := make([]byte, 128)
		frame := append([]byte{SOH, 1, 0xFF - 1}, data...)
		frame = append(frame, ^checksum(data)) // deliberately wrong
		pty.Slave.Write(frame)

		resp := make([]byte, 1)
		pty.Slave.Read(resp)
		gotNak = resp[0] == NAK

		goodFrame := append([]byte{SOH, 1, 0xFF - 1}, data...)
		goodFrame = append(goodFrame, checksum(data))
		pty.Slave.Write(goodFrame)

		pty.Slave.Read(resp)
		gotAck = resp[0] == ACK
	}()

	r := NewReceiver(ch, 128)
	require.NoError(t, r.Start())
	block, err := r.ReadBlock()
	require.NoError(t, err)
	assert.Len(t, block, 128)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, gotNak)
	assert.True(t, gotAck)
}
