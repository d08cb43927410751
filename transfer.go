package twsi

import (
	"fmt"
	"log/slog"

	"github.com/soypat/twsi/csr"
)

// xferState tracks where the controller is in a bus transaction.
type xferState uint8

const (
	stateIdle xferState = iota
	stateStartSent
	stateAddrAcked
	stateDataAcked
	stateStopSent
	stateError
)

func (s xferState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStartSent:
		return "start-sent"
	case stateAddrAcked:
		return "addr-acked"
	case stateDataAcked:
		return "data-acked"
	case stateStopSent:
		return "stop-sent"
	case stateError:
		return "error"
	}
	return "unknown"
}

func (c *Controller) setState(s xferState) {
	if c.state != s {
		c.trace("state", slog.String("from", c.state.String()), slog.String("to", s.String()))
	}
	c.state = s
}

// fail records the error state and returns err.
func (c *Controller) fail(err error) error {
	c.setState(stateError)
	return err
}

// ExecuteBatch runs msgs as a single bus transaction. Each message starts
// with a START (a repeated START after the first), and the batch always ends
// with one STOP even when a message fails. It returns the number of messages
// completed and the first error. A STOP failure is only returned when no
// message failed.
func (c *Controller) ExecuteBatch(msgs []Message) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range msgs {
		m := &msgs[i]
		c.debug("xfer",
			slog.String("dir", m.dir()),
			slog.Int("len", len(m.Buf)),
			hexattr("addr", uint64(m.Addr)),
			slog.Int("msg", i+1),
			slog.Int("of", len(msgs)),
		)
		if m.Read {
			err = c.readMessage(m.Addr, m.Buf)
		} else {
			err = c.writeMessage(m.Addr, m.Buf)
		}
		if err != nil {
			break
		}
		n++
	}
	stopErr := c.stop()
	if stopErr != nil {
		if err != nil {
			c.logerr("xfer:stop after failed message", slog.Any("err", stopErr), slog.Any("pending", err))
		} else {
			err = stopErr
		}
	}
	return n, err
}

// start sends a START (or repeated START) condition.
func (c *Controller) start() error {
	err := c.writeCtl(csr.CTL_ENAB | csr.CTL_STA)
	if err != nil {
		return c.fail(err)
	}
	err = c.wait()
	if err != nil {
		status, serr := c.status()
		if serr == nil && status == csr.STAT_IDLE {
			// Controller refused to send START. A target may be
			// holding SDA low, try to free it and retry once.
			c.unblock()
			if c.writeCtl(csr.CTL_ENAB|csr.CTL_STA) == nil && c.wait() == nil {
				err = nil
			}
		}
		if err != nil {
			return c.fail(err)
		}
	}
	status, err := c.status()
	if err != nil {
		return c.fail(err)
	}
	if status != csr.STAT_START && status != csr.STAT_RSTART {
		c.logerr("start:bad status", slog.String("status", status.String()))
		return c.fail(&ProtocolError{
			Step:     "start",
			Expected: []csr.Status{csr.STAT_START, csr.STAT_RSTART},
			Got:      status,
		})
	}
	c.setState(stateStartSent)
	return nil
}

// stop sends a STOP condition. The controller returns to idle without
// raising IFLG so there is nothing to wait for.
func (c *Controller) stop() error {
	err := c.writeCtl(csr.CTL_ENAB | csr.CTL_STP)
	if err != nil {
		return c.fail(err)
	}
	status, err := c.status()
	if err != nil {
		return c.fail(err)
	}
	if status != csr.STAT_IDLE {
		c.logerr("stop:bad status", slog.String("status", status.String()))
		return c.fail(&ProtocolError{Step: "stop", Expected: []csr.Status{csr.STAT_IDLE}, Got: status})
	}
	c.setState(stateStopSent)
	c.setState(stateIdle)
	return nil
}

func checkAddr(addr uint16) error {
	if addr > 0x7f {
		return fmt.Errorf("%w: address 0x%x exceeds 7 bits", ErrInvalidArgument, addr)
	}
	return nil
}

// writeMessage sends the target address with the write bit followed by p.
// An empty p only addresses the target.
func (c *Controller) writeMessage(addr uint16, p []byte) error {
	if err := checkAddr(addr); err != nil {
		return err
	}
	err := c.start()
	if err != nil {
		return err
	}
	err = c.sendByte(uint8(addr << 1))
	if err != nil {
		return c.fail(err)
	}
	for i, b := range p {
		status, err := c.status()
		if err != nil {
			return c.fail(err)
		}
		want := csr.STAT_TXDATA_ACK
		if i == 0 {
			want = csr.STAT_TXADDR_ACK
		}
		if status != want {
			c.logerr("write:bad status before write", slog.String("status", status.String()), slog.Int("byte", i))
			return c.fail(&ProtocolError{Step: "write", Expected: []csr.Status{want}, Got: status})
		}
		c.afterAck(i)
		err = c.sendByte(b)
		if err != nil {
			return c.fail(err)
		}
	}
	return nil
}

// sendByte loads the data register, clears IFLG to shift it out and waits for
// the bus step to finish.
func (c *Controller) sendByte(b uint8) error {
	err := c.writeSW(csr.SW_TWSI_EOP_TWSI_DATA, b)
	if err != nil {
		return err
	}
	err = c.writeCtl(csr.CTL_ENAB)
	if err != nil {
		return err
	}
	return c.wait()
}

// readMessage sends the target address with the read bit and receives
// len(buf) bytes, acknowledging every byte except the last.
func (c *Controller) readMessage(addr uint16, buf []byte) error {
	if len(buf) < 1 {
		return fmt.Errorf("%w: zero length read", ErrInvalidArgument)
	}
	if err := checkAddr(addr); err != nil {
		return err
	}
	err := c.start()
	if err != nil {
		return err
	}
	err = c.sendByte(uint8(addr<<1) | 1)
	if err != nil {
		return c.fail(err)
	}
	for i := range buf {
		status, err := c.status()
		if err != nil {
			return c.fail(err)
		}
		want := csr.STAT_RXDATA_ACK
		if i == 0 {
			want = csr.STAT_RXADDR_ACK
		}
		if status != want {
			c.logerr("read:bad status before read", slog.String("status", status.String()), slog.Int("byte", i))
			return c.fail(&ProtocolError{Step: "read", Expected: []csr.Status{want}, Got: status})
		}
		c.afterAck(i)
		ctl := uint8(csr.CTL_ENAB)
		if i+1 < len(buf) {
			ctl |= csr.CTL_AAK // More to come, keep the target sending.
		}
		err = c.writeCtl(ctl)
		if err != nil {
			return c.fail(err)
		}
		err = c.wait()
		if err != nil {
			return c.fail(err)
		}
		buf[i], err = c.readSW(csr.SW_TWSI_EOP_TWSI_DATA)
		if err != nil {
			return c.fail(err)
		}
	}
	return nil
}

func (c *Controller) afterAck(i int) {
	if i == 0 {
		c.setState(stateAddrAcked)
	} else {
		c.setState(stateDataAcked)
	}
}
