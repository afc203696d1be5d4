// Package xmodem runs an XMODEM sender and receiver over the same
// full-duplex byte channel the shell driver uses, once the far side's DOS
// shell has acknowledged an ftrans-family command and is waiting for a
// framed payload.
//
// Grounded on the same idea goserial's Port applies to termios: a thin,
// retry-aware wrapper around raw reads and writes of a device that has
// its own handshake rules, none of which the caller should have to know.
// The framing is implemented from scratch against the classic XMODEM
// byte layout; only the "drive a noisy link with retries" shape is
// borrowed.
package xmodem

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daedaluz/comftp/internal/serialio"
)

// Control bytes. CRC is defined but unused: the engine only ever speaks
// plain 8-bit checksum, never CRC-16.
const (
	SOH = 0x01
	STX = 0x02
	EOT = 0x04
	ACK = 0x06
	NAK = 0x15
	ETB = 0x17
	CAN = 0x18
	CRC = 'C'
)

const blockSize = 128

// frameTimeout bounds how long a send waits for the ACK/NAK byte after a
// frame. It is not a hard ceiling: on expiry Sender just retransmits the
// same frame and waits again, so the value only affects how promptly a
// slow-but-alive link gets nudged, never whether the transfer succeeds.
const frameTimeout = 2 * time.Second

// noTimeout stands in for the unbounded waits a receiver does mid-frame:
// once a transfer is under way there is no hard ceiling on how long the
// far end may take to produce its next byte, only on whether the link is
// still open at all.
const noTimeout = 365 * 24 * time.Hour

// Sender accumulates written bytes into 128-byte SOH frames and transmits
// each one, retrying indefinitely until the far end ACKs it. seq starts
// at 1 and wraps mod 256.
type Sender struct {
	ch  *serialio.Channel
	log *logrus.Entry
	seq byte
	buf []byte
}

// NewSender returns a Sender ready for a fresh upload; seq starts at 1 as
// required on every open.
func NewSender(ch *serialio.Channel) *Sender {
	return &Sender{ch: ch, log: logrus.WithField("component", "xmodem-send"), seq: 1}
}

// Write buffers p and flushes every full 128-byte block it completes. It
// never returns a short write or an error from partial buffering; errors
// surface only from the underlying channel write.
func (s *Sender) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	for len(s.buf) >= blockSize {
		block := s.buf[:blockSize]
		if err := s.sendFrame(SOH, block); err != nil {
			return 0, err
		}
		s.buf = s.buf[blockSize:]
	}
	return len(p), nil
}

// Close pads any trailing partial block to 128 bytes with '0' (0x30),
// transmits it, sends EOT, waits for its ACK, then sends ETB. Called with
// nothing buffered, it still emits the terminating EOT/ACK/ETB sequence.
func (s *Sender) Close() error {
	if len(s.buf) > 0 {
		block := make([]byte, blockSize)
		copy(block, s.buf)
		for i := len(s.buf); i < blockSize; i++ {
			block[i] = '0'
		}
		if err := s.sendFrame(SOH, block); err != nil {
			return err
		}
		s.buf = nil
	}
	if err := s.ch.Write([]byte{EOT}); err != nil {
		return err
	}
	s.ch.ReadExact(context.Background(), 1, frameTimeout) // expected ACK, not itself checked
	return s.ch.Write([]byte{ETB})
}

// sendFrame transmits one SOH/STX frame and retries, unbounded, until the
// far end replies ACK.
func (s *Sender) sendFrame(mode byte, data []byte) error {
	frame := make([]byte, 0, 4+len(data))
	frame = append(frame, mode, s.seq, 0xFF-s.seq)
	frame = append(frame, data...)
	frame = append(frame, checksum(data))

	for {
		if err := s.ch.Write(frame); err != nil {
			return err
		}
		reply, ok := s.ch.ReadExact(context.Background(), 1, frameTimeout)
		if ok && reply[0] == ACK {
			s.seq++
			return nil
		}
		s.log.Debug("frame not acked, resending")
	}
}

// Receiver pulls SOH/STX frames off the wire and delivers their data,
// truncated to a remaining-byte budget derived from the file's declared
// size.
type Receiver struct {
	ch        *serialio.Channel
	log       *logrus.Entry
	remaining int64
}

// NewReceiver returns a Receiver that will deliver at most size bytes
// total across all ReadBlock calls.
func NewReceiver(ch *serialio.Channel, size int64) *Receiver {
	return &Receiver{ch: ch, log: logrus.WithField("component", "xmodem-recv"), remaining: size}
}

// Start sends the initial NAK that tells the far end to begin sending.
func (r *Receiver) Start() error {
	return r.ch.Write([]byte{NAK})
}

// ReadBlock reads and validates one frame, retrying (via NAK) on checksum
// failure, and returns its data truncated to the remaining byte budget.
// It returns a nil block and a nil error once EOT is seen. No read
// here carries a real deadline: a slow far end is waited out
// indefinitely, exactly like Sender's indefinite frame retries. The only
// error this can return is the channel itself having gone away.
func (r *Receiver) ReadBlock() ([]byte, error) {
	for {
		mode, ok := r.ch.ReadExact(context.Background(), 1, noTimeout)
		if !ok {
			return nil, errLinkClosed("mode byte")
		}
		switch mode[0] {
		case EOT:
			if err := r.ch.Write([]byte{ACK}); err != nil {
				return nil, err
			}
			return nil, nil
		case SOH, STX:
			size := blockSize
			if mode[0] == STX {
				size = 1024
			}
			if _, ok := r.ch.ReadExact(context.Background(), 2, noTimeout); !ok {
				return nil, errLinkClosed("sequence bytes")
			}
			data, ok := r.ch.ReadExact(context.Background(), size, noTimeout)
			if !ok {
				return nil, errLinkClosed("data block")
			}
			csum, ok := r.ch.ReadExact(context.Background(), 1, noTimeout)
			if !ok {
				return nil, errLinkClosed("checksum byte")
			}
			if csum[0] != checksum(data) {
				r.log.Debug("bad checksum, requesting retransmit")
				if err := r.ch.Write([]byte{NAK}); err != nil {
					return nil, err
				}
				continue
			}
			if err := r.ch.Write([]byte{ACK}); err != nil {
				return nil, err
			}
			return r.truncate(data), nil
		default:
			// Unrecognized mode byte: treat like a bad frame and ask for
			// retransmission rather than getting stuck.
			if err := r.ch.Write([]byte{NAK}); err != nil {
				return nil, err
			}
		}
	}
}

// truncate clips data to the remaining byte budget and decrements it.
func (r *Receiver) truncate(data []byte) []byte {
	if int64(len(data)) > r.remaining {
		data = data[:r.remaining]
	}
	r.remaining -= int64(len(data))
	return data
}

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// errLinkClosed is the only way ReadBlock's reads can give up: the
// channel was closed (or its context canceled) out from under it, not a
// slow far end — slowness alone is waited out forever.
type errLinkClosed string

func (e errLinkClosed) Error() string { return "xmodem: link closed waiting for " + string(e) }
