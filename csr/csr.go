// package csr holds the register map of the ThunderX TWSI controller.
//
// The I2C core registers are not memory mapped. They are reached indirectly
// through the SW_TWSI CSR by writing a command word with the valid bit set and
// polling until the hardware clears it.
package csr

// Offsets into the controller's BAR0 window.
const (
	SW_TWSI          = 0x1000
	TWSI_INT         = 0x1010
	TWSI_INT_ENA_W1C = 0x1028
	TWSI_INT_ENA_W1S = 0x1030
)

// SW_TWSI command patterns.
const (
	SW_TWSI_V               uint64 = 0x8000000000000000
	SW_TWSI_EOP_TWSI_DATA   uint64 = 0x0C00000100000000
	SW_TWSI_EOP_TWSI_CTL    uint64 = 0x0C00000200000000
	SW_TWSI_EOP_TWSI_CLKCTL uint64 = 0x0C00000300000000
	// Same selector as CLKCTL: writes hit the clock control register and
	// reads return the status register.
	SW_TWSI_EOP_TWSI_STAT uint64 = 0x0C00000300000000
	SW_TWSI_EOP_TWSI_RST  uint64 = 0x0C00000700000000
	SW_TWSI_OP_TWSI_CLK   uint64 = 0x0800000000000000
	SW_TWSI_R             uint64 = 0x0100000000000000

	// SelectorMask covers every bit a selector may set.
	SelectorMask uint64 = 0x7fffffff00000000
)

// TWSI_CTL bits.
const (
	CTL_CE   = 0x80
	CTL_ENAB = 0x40
	CTL_STA  = 0x20
	CTL_STP  = 0x10
	CTL_IFLG = 0x08
	CTL_AAK  = 0x04
)

// TWSI_INT bits used when bit-banging the bus. Writing them overrides the
// corresponding line.
const (
	INT_SDA_OVR = 0x100
	INT_SCL_OVR = 0x200
)

// INT_ENA_CORE is written to TWSI_INT_ENA_W1S/W1C to gate the core interrupt,
// asserted while the status register holds a non-idle state.
const INT_ENA_CORE = 0x4

// ThunderX reset block, used to derive the I/O clock rate.
const (
	RST_BASE          = 0x87e006000000
	RST_SIZE          = 0x2000
	RST_BOOT          = 0x1600
	RST_PNR_MUL_MASK  = 0x007e00000000
	RST_PNR_MUL_SHIFT = 33
	REF_CLOCK_RATE    = 50000000
)

// PCI identification of the controller.
const (
	PCI_VENDOR_ID_CAVIUM       = 0x177d
	PCI_DEVICE_ID_THUNDER_TWSI = 0xa012
	PCI_CFG_REG_BAR_NUM        = 0
)
