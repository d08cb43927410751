package twsi

// Indirect access to the TWSI core registers through the SW_TWSI CSR.

import (
	"log/slog"

	"github.com/soypat/twsi/csr"
)

// csrPollLimit bounds the SW_TWSI valid bit spin. The hardware clears V
// within a few core register cycles.
const csrPollLimit = 100_000

// writeSW writes data to the core register selected by sel.
func (c *Controller) writeSW(sel uint64, data uint8) error {
	c.w.Write64(csr.SW_TWSI, csr.SW_TWSI_V|sel|uint64(data))
	_, err := c.pollSW(sel, false)
	c.trace("sw:write",
		slog.String("reg", csr.SelectorName(sel, false)),
		hexattr("val", uint64(data)),
	)
	return err
}

// readSW reads the core register selected by sel.
func (c *Controller) readSW(sel uint64) (uint8, error) {
	c.w.Write64(csr.SW_TWSI, csr.SW_TWSI_V|sel|csr.SW_TWSI_R)
	v, err := c.pollSW(sel, true)
	c.trace("sw:read",
		slog.String("reg", csr.SelectorName(sel, true)),
		hexattr("val", v&0xff),
	)
	return uint8(v), err
}

func (c *Controller) pollSW(sel uint64, read bool) (uint64, error) {
	for i := 0; i < csrPollLimit; i++ {
		v := c.w.Read64(csr.SW_TWSI)
		if v&csr.SW_TWSI_V == 0 {
			return v, nil
		}
	}
	op := "write "
	if read {
		op = "read "
	}
	return 0, &HardwareFault{Op: op + csr.SelectorName(sel, read), Err: ErrCSRBusy}
}

// writeInt writes TWSI_INT and reads it back so the write is not left
// sitting in a posted write buffer.
func (c *Controller) writeInt(v uint64) {
	c.w.Write64(csr.TWSI_INT, v)
	c.w.Read64(csr.TWSI_INT)
}

func (c *Controller) writeCtl(ctl uint8) error {
	if c._traceenabled {
		c.trace("ctl", slog.String("ctl", csr.Ctl(ctl).String()))
	}
	return c.writeSW(csr.SW_TWSI_EOP_TWSI_CTL, ctl)
}

func (c *Controller) status() (csr.Status, error) {
	v, err := c.readSW(csr.SW_TWSI_EOP_TWSI_STAT)
	return csr.Status(v), err
}
