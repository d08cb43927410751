package csr

import "strconv"

// Status is the value read back from the TWSI status register. Each protocol
// step leaves a well known code behind once IFLG is set.
type Status uint8

const (
	STAT_BUS_ERROR  Status = 0x00
	STAT_START      Status = 0x08
	STAT_RSTART     Status = 0x10
	STAT_TXADDR_ACK Status = 0x18
	STAT_TXADDR_NAK Status = 0x20
	STAT_TXDATA_ACK Status = 0x28
	STAT_TXDATA_NAK Status = 0x30
	STAT_LOST_ARB   Status = 0x38
	STAT_RXADDR_ACK Status = 0x40
	STAT_RXADDR_NAK Status = 0x48
	STAT_RXDATA_ACK Status = 0x50
	STAT_RXDATA_NAK Status = 0x58
	STAT_IDLE       Status = 0xF8
)

func (s Status) String() (str string) {
	switch s {
	case STAT_BUS_ERROR:
		str = "bus-error"
	case STAT_START:
		str = "start"
	case STAT_RSTART:
		str = "repeated-start"
	case STAT_TXADDR_ACK:
		str = "txaddr-ack"
	case STAT_TXADDR_NAK:
		str = "txaddr-nak"
	case STAT_TXDATA_ACK:
		str = "txdata-ack"
	case STAT_TXDATA_NAK:
		str = "txdata-nak"
	case STAT_LOST_ARB:
		str = "lost-arb"
	case STAT_RXADDR_ACK:
		str = "rxaddr-ack"
	case STAT_RXADDR_NAK:
		str = "rxaddr-nak"
	case STAT_RXDATA_ACK:
		str = "rxdata-ack"
	case STAT_RXDATA_NAK:
		str = "rxdata-nak"
	case STAT_IDLE:
		str = "idle"
	default:
		str = "status(0x" + strconv.FormatUint(uint64(s), 16) + ")"
	}
	return str
}

// Ctl is a TWSI_CTL register value.
type Ctl uint8

func (c Ctl) String() (str string) {
	if c == 0 {
		return "none"
	}
	flags := [...]struct {
		bit  Ctl
		name string
	}{
		{CTL_CE, "ce"}, {CTL_ENAB, "enab"}, {CTL_STA, "sta"}, {CTL_STP, "stp"},
		{CTL_IFLG, "iflg"}, {CTL_AAK, "aak"},
	}
	for _, f := range flags {
		if c&f.bit != 0 {
			if str != "" {
				str += "|"
			}
			str += f.name
		}
	}
	if rem := c &^ (CTL_CE | CTL_ENAB | CTL_STA | CTL_STP | CTL_IFLG | CTL_AAK); rem != 0 {
		if str != "" {
			str += "|"
		}
		str += "0x" + strconv.FormatUint(uint64(rem), 16)
	}
	return str
}

// SelectorName returns a human readable name for a SW_TWSI selector. Reads of
// the CLKCTL selector return the status register, hence read is needed to
// disambiguate.
func SelectorName(sel uint64, read bool) string {
	switch sel &^ (SW_TWSI_V | SW_TWSI_R) {
	case SW_TWSI_EOP_TWSI_DATA:
		return "data"
	case SW_TWSI_EOP_TWSI_CTL:
		return "ctl"
	case SW_TWSI_EOP_TWSI_CLKCTL:
		if read {
			return "stat"
		}
		return "clkctl"
	case SW_TWSI_EOP_TWSI_RST:
		return "rst"
	case SW_TWSI_OP_TWSI_CLK:
		return "clk"
	}
	return "sel(0x" + strconv.FormatUint(sel>>32, 16) + ")"
}
