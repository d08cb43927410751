package host

import (
	"github.com/soypat/twsi"
	"github.com/soypat/twsi/csr"
)

// IOClockRate returns the I/O clock rate in Hz derived from the PNR_MUL field
// of RST_BOOT in the reset block mapped by w.
func IOClockRate(w twsi.Window) uint32 {
	boot := w.Read64(csr.RST_BOOT)
	mul := (boot & csr.RST_PNR_MUL_MASK) >> csr.RST_PNR_MUL_SHIFT
	return uint32(mul * csr.REF_CLOCK_RATE)
}

// ReadIOClockRate maps the reset block and returns IOClockRate. It returns 0
// if the block cannot be mapped.
func ReadIOClockRate() uint32 {
	w, err := Map(csr.RST_BASE, csr.RST_SIZE)
	if err != nil {
		return 0
	}
	defer w.Close()
	return IOClockRate(w)
}
