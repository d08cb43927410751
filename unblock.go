package twsi

import (
	"time"

	"github.com/soypat/twsi/csr"
)

// Bus recovery timing. A receiver stuck mid-byte releases SDA after at most
// nine SCL pulses.
const (
	unblockPulses = 9
	unblockDelay  = 5 * time.Microsecond
)

// unblock frees a bus held low by a target, e.g. one that was mid transfer
// when the controller got reset. It toggles SCL by hand through TWSI_INT and
// finishes with a STOP condition.
func (c *Controller) unblock() {
	c.debug("unblock")
	for i := 0; i < unblockPulses; i++ {
		c.writeInt(0)
		c.delay(unblockDelay)
		c.writeInt(csr.INT_SCL_OVR)
		c.delay(unblockDelay)
	}
	c.writeInt(csr.INT_SCL_OVR | csr.INT_SDA_OVR)
	c.delay(unblockDelay)
	c.writeInt(csr.INT_SDA_OVR)
	c.delay(unblockDelay)
	c.writeInt(0)
}
