//go:build linux

package serialio

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// patterns the kernel uses for USB/onboard/bluetooth serial adapters.
// goserial only opens a port given its name and has no enumeration API
// of its own, so this glob — the same approach most Go serial libraries
// take — is stdlib-only; see DESIGN.md.
var portPrefixes = []string{"ttyS", "ttyUSB", "ttyACM", "rfcomm"}

// ListPorts returns the available serial device nodes under /dev,
// sorted, so a caller can default to the first entry when no port is
// given explicitly.
func ListPorts() ([]string, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	var ports []string
	for _, e := range entries {
		name := e.Name()
		for _, prefix := range portPrefixes {
			if strings.HasPrefix(name, prefix) {
				ports = append(ports, filepath.Join("/dev", name))
				break
			}
		}
	}
	sort.Strings(ports)
	return ports, nil
}
