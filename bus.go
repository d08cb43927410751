package twsi

// Adapters for the bus interfaces device drivers in the Go ecosystem consume.

import (
	"fmt"

	"golang.org/x/exp/io/i2c/driver"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

var (
	_ i2c.BusCloser = (*Controller)(nil)
	_ drivers.I2C   = (*Controller)(nil)
	_ driver.Opener = (*Controller)(nil)
)

// Tx writes w to addr then reads len(r) bytes into r with a repeated START in
// between, all within one transaction. Either buffer may be empty. If both are
// empty the address is checked with a zero length write.
func (c *Controller) Tx(addr uint16, w, r []byte) error {
	var msgs [2]Message
	n := 0
	if len(w) > 0 || len(r) == 0 {
		msgs[n] = WriteMsg(addr, w)
		n++
	}
	if len(r) > 0 {
		msgs[n] = ReadMsg(addr, r)
		n++
	}
	_, err := c.ExecuteBatch(msgs[:n])
	return err
}

// SetSpeed reprograms the bus clock. It implements periph's i2c.Bus.
func (c *Controller) SetSpeed(f physic.Frequency) error {
	hz := f / physic.Hertz
	if hz <= 0 || hz > physic.Frequency(^uint32(0)) {
		return fmt.Errorf("%w: bus speed %s", ErrInvalidArgument, f)
	}
	return c.SetFrequency(uint32(hz))
}

// Open returns a connection to the 7 bit target addr. It implements the
// golang.org/x/exp/io/i2c/driver.Opener interface. Ten bit addressing is not
// supported by the controller.
func (c *Controller) Open(addr int, tenbit bool) (driver.Conn, error) {
	if tenbit || addr < 0 || addr > 0x7f {
		return nil, fmt.Errorf("%w: address 0x%x (tenbit=%v)", ErrInvalidArgument, addr, tenbit)
	}
	return &conn{c: c, addr: uint16(addr)}, nil
}

type conn struct {
	c    *Controller
	addr uint16
}

func (cn *conn) Tx(w, r []byte) error { return cn.c.Tx(cn.addr, w, r) }

// Close releases nothing; the bus stays open for other targets.
func (cn *conn) Close() error { return nil }
