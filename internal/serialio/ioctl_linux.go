//go:build linux

package serialio

// termios ioctl request numbers, from <asm-generic/ioctls.h>.
var (
	tcgets = uintptr(0x5401)
	tcsets = uintptr(0x5402)
)
