// Package host finds ThunderX TWSI controllers on a Linux host and exposes
// them as periph.io I²C buses.
//
// Controllers are discovered through sysfs by PCI vendor and device ID. The
// register window (BAR0) is mapped through /dev/mem and the completion
// interrupt is received from a userspace I/O (UIO) device bound to the
// controller, if there is one. Without UIO the controller is polled.
package host

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/soypat/twsi/csr"
)

// Device is a TWSI controller found on the PCI bus.
type Device struct {
	// Slot is the PCI address, i.e: "0002:01:09.4".
	Slot string
	// Base is the physical address of the register window (BAR0).
	Base uint64
	// Size of the register window in bytes.
	Size uint64
	// UIO is the userspace interrupt device bound to the controller or the
	// empty string if there is none.
	UIO string
}

func (d Device) String() string {
	return fmt.Sprintf("%s@0x%x", d.Slot, d.Base)
}

// Discover lists the TWSI controllers under the sysfs tree mounted at root,
// usually "/sys", sorted by PCI slot. Controllers with an unassigned BAR0 are
// left out.
func Discover(root string) ([]Device, error) {
	slots, err := filepath.Glob(filepath.Join(root, "bus", "pci", "devices", "*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(slots)
	var devs []Device
	for _, dir := range slots {
		vendor, err := readHex(filepath.Join(dir, "vendor"))
		if err != nil || vendor != csr.PCI_VENDOR_ID_CAVIUM {
			continue
		}
		device, err := readHex(filepath.Join(dir, "device"))
		if err != nil || device != csr.PCI_DEVICE_ID_THUNDER_TWSI {
			continue
		}
		base, size, err := readBAR(filepath.Join(dir, "resource"), csr.PCI_CFG_REG_BAR_NUM)
		if err != nil {
			return devs, fmt.Errorf("%s: %w", filepath.Base(dir), err)
		}
		if base == 0 || size == 0 {
			continue
		}
		dev := Device{Slot: filepath.Base(dir), Base: base, Size: size}
		uios, _ := filepath.Glob(filepath.Join(dir, "uio", "uio*"))
		if len(uios) > 0 {
			sort.Strings(uios)
			dev.UIO = "/dev/" + filepath.Base(uios[0])
		}
		devs = append(devs, dev)
	}
	return devs, nil
}

func readHex(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 0, 64)
}

// readBAR parses line bar of a PCI resource file. Each line holds the start
// address, end address and flags of one region.
func readBAR(path string, bar int) (base, size uint64, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if bar >= len(lines) {
		return 0, 0, fmt.Errorf("resource: no BAR%d", bar)
	}
	fields := strings.Fields(lines[bar])
	if len(fields) < 2 {
		return 0, 0, errors.New("resource: malformed line " + strconv.Quote(lines[bar]))
	}
	start, err := strconv.ParseUint(fields[0], 0, 64)
	if err != nil {
		return 0, 0, err
	}
	end, err := strconv.ParseUint(fields[1], 0, 64)
	if err != nil {
		return 0, 0, err
	}
	if end < start || start == 0 {
		return 0, 0, nil
	}
	return start, end - start + 1, nil
}
