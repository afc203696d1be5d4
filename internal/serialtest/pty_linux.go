//go:build linux

// Package serialtest provides a fake "DOS device" for exercising the
// serial path-IO bridge without real hardware, in the manner of
// rclone/rclone's fstest package: a small, non-_test.go helper library
// that only ever gets imported from other packages' tests.
//
// It is adapted from Daedaluz-goserial's pty_linux.go (OpenPTY): that
// file opened a PTY pair purely to hand a slave Termios/Winsize to a
// caller. Here the same PTY-allocation plumbing backs a two-ended fake
// wire: the test takes the master end as if it were the host's serial
// port, and plays "device" on the slave end.
package serialtest

import (
	"fmt"
	"os"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"

	"github.com/daedaluz/comftp/internal/serialio"
)

const (
	tiocgptn   = uintptr(0x80045430)
	tiocsptlck = uintptr(0x40045431)
)

// Pty is a master/slave pseudo-terminal pair standing in for a real
// RS-232 link in tests: writes to Master are what a DOS shell "receives"
// on the wire, writes to Slave are what the host's serial port "receives".
type Pty struct {
	Master    *os.File
	Slave     *os.File
	SlaveName string
}

// OpenPty allocates a PTY pair and unlocks the slave side so it can be
// opened for the life of the test.
func OpenPty() (*Pty, error) {
	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/ptmx: %w", err)
	}
	var locked int32
	if err := ioctl.Ioctl(master.Fd(), tiocsptlck, uintptr(unsafe.Pointer(&locked))); err != nil {
		master.Close()
		return nil, fmt.Errorf("unlock pty: %w", err)
	}
	var n int32
	if err := ioctl.Ioctl(master.Fd(), tiocgptn, uintptr(unsafe.Pointer(&n))); err != nil {
		master.Close()
		return nil, fmt.Errorf("get pty number: %w", err)
	}
	name := fmt.Sprintf("/dev/pts/%d", n)
	slave, err := os.OpenFile(name, os.O_RDWR|os.O_NOCTTY, 0)
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	// The kernel line discipline on the slave defaults to canonical mode
	// with local echo; left alone it would echo bytes itself in addition
	// to whatever the fake device under test writes back, corrupting the
	// byte-for-byte echo check the shell driver relies on.
	if err := serialio.MakeRawFd(int(slave.Fd())); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("raw mode on %s: %w", name, err)
	}
	return &Pty{Master: master, Slave: slave, SlaveName: name}, nil
}

// Close releases both ends of the pair.
func (p *Pty) Close() error {
	err1 := p.Master.Close()
	err2 := p.Slave.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
