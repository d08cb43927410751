package twsi

import (
	"time"

	"github.com/soypat/twsi/csr"
)

// intEnable unmasks the core interrupt. It is asserted while the status
// register holds a non-idle state.
func (c *Controller) intEnable() {
	c.w.Write64(csr.TWSI_INT_ENA_W1S, csr.INT_ENA_CORE)
	c.w.Read64(csr.TWSI_INT_ENA_W1S)
}

func (c *Controller) intDisable() {
	c.w.Write64(csr.TWSI_INT_ENA_W1C, csr.INT_ENA_CORE)
	c.w.Read64(csr.TWSI_INT_ENA_W1C)
}

// HandleInterrupt is the controller's interrupt service routine. It masks the
// interrupt so it cannot re-fire before the status is consumed and wakes the
// waiter. It never blocks and may be called from any goroutine.
func (c *Controller) HandleInterrupt() {
	c.intDisable()
	select {
	case c.done <- struct{}{}:
	default:
	}
}

// testIFLG reports whether the current bus step has completed.
func (c *Controller) testIFLG() (bool, error) {
	ctl, err := c.readSW(csr.SW_TWSI_EOP_TWSI_CTL)
	return ctl&csr.CTL_IFLG != 0, err
}

// wait blocks until IFLG is set or the timeout elapses. IFLG is re-read after
// every wake-up; a signal alone does not complete the step.
func (c *Controller) wait() error {
	// Discard a stale signal from a previous step.
	select {
	case <-c.done:
	default:
	}
	c.intEnable()
	defer c.intDisable()

	timer := c.clock.NewTimer(c.timeout)
	defer timer.Stop()
	var poll <-chan time.Time
	for {
		ready, err := c.testIFLG()
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		if c.irq == nil {
			poll = c.clock.After(c.pollPeriod)
		}
		select {
		case <-c.done:
			// Handler masked the interrupt; unmask it in case the
			// predicate is still false and we go back to sleep.
			c.intEnable()
		case <-poll:
		case <-timer.Chan():
			ready, err = c.testIFLG()
			if err == nil && !ready {
				err = ErrTimeout
			}
			if err == ErrTimeout {
				c.debug("wait:timeout")
			}
			return err
		}
	}
}
