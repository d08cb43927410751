// Package twsisim simulates the ThunderX TWSI controller at the register level.
//
// A Sim implements the register window and interrupt line consumed by
// twsi.Open. Indirect SW_TWSI commands complete after BusyPolls reads of the
// valid bit. Bus steps (START, address, data) complete immediately unless
// Manual is set, leaving the status a well behaved target would produce or the
// next entry of Script.
package twsisim

import (
	"sync"

	"github.com/soypat/twsi/csr"
)

// Step overrides the outcome of one bus step.
type Step struct {
	Status csr.Status
	// Stall leaves IFLG clear so the step never completes. The status
	// register still changes.
	Stall bool
}

// Access is one SW_TWSI command observed by the simulator.
type Access struct {
	Read bool
	// Sel is the register selector with the valid and read bits removed.
	Sel  uint64
	Data uint8
}

// Sim is a simulated controller. Exported fields configure behavior and must
// be set before use.
type Sim struct {
	// Script is consumed one entry per bus step.
	Script []Step
	// RxData is shifted out by the target during reads.
	RxData []byte
	// RefuseStart is the number of START requests left unanswered with the
	// bus idle, as happens when a target holds SDA low.
	RefuseStart int
	// ResetPolls is the number of status reads after a reset that still
	// return a non-idle status.
	ResetPolls int
	// BusyPolls is the number of SW_TWSI reads the valid bit stays set after
	// each command. Negative keeps it set forever.
	BusyPolls int
	// Manual holds completed bus steps until Complete is called.
	Manual bool
	// StopStatus, if non-zero, is left in the status register after a STOP.
	StopStatus csr.Status

	mu       sync.Mutex
	handler  func()
	sw       uint64
	busyLeft int
	ctl      uint8
	data     uint8
	stat     csr.Status
	clk      uint8
	clkctl   uint8
	intReg   uint64
	ena      bool
	iflg     bool
	pending  bool // Manual step waiting for Complete.
	active   bool // Bus owned between START and STOP.
	reading  bool
	rstLeft  int
	rxIdx    int

	accesses  []Access
	intWrites []uint64
	irqs      int
}

// New returns an idle simulated controller.
func New() *Sim {
	return &Sim{stat: csr.STAT_IDLE}
}

// SetHandler implements twsi.IRQ.
func (s *Sim) SetHandler(h func()) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// HasHandler reports whether an interrupt handler is installed.
func (s *Sim) HasHandler() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler != nil
}

// Read64 implements twsi.Window.
func (s *Sim) Read64(off uint32) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch off {
	case csr.SW_TWSI:
		if s.busyLeft != 0 {
			if s.busyLeft > 0 {
				s.busyLeft--
			}
			return s.sw | csr.SW_TWSI_V
		}
		return s.sw
	case csr.TWSI_INT:
		return s.intReg
	case csr.TWSI_INT_ENA_W1S, csr.TWSI_INT_ENA_W1C:
		if s.ena {
			return csr.INT_ENA_CORE
		}
	}
	return 0
}

// Write64 implements twsi.Window.
func (s *Sim) Write64(off uint32, v uint64) {
	s.mu.Lock()
	var fire func()
	switch off {
	case csr.SW_TWSI:
		if v&csr.SW_TWSI_V != 0 {
			s.command(v)
			fire = s.irqLocked()
		}
	case csr.TWSI_INT:
		s.intReg = v
		s.intWrites = append(s.intWrites, v)
	case csr.TWSI_INT_ENA_W1S:
		if v&csr.INT_ENA_CORE != 0 {
			s.ena = true
			fire = s.irqLocked()
		}
	case csr.TWSI_INT_ENA_W1C:
		if v&csr.INT_ENA_CORE != 0 {
			s.ena = false
		}
	}
	s.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// irqLocked returns the handler to run if the interrupt is asserted.
func (s *Sim) irqLocked() func() {
	if s.ena && s.iflg && s.handler != nil {
		s.irqs++
		return s.handler
	}
	return nil
}

func (s *Sim) command(v uint64) {
	read := v&csr.SW_TWSI_R != 0
	sel := v & csr.SelectorMask &^ csr.SW_TWSI_R
	data := uint8(v)
	s.busyLeft = s.BusyPolls
	var result uint8
	if read {
		switch sel {
		case csr.SW_TWSI_EOP_TWSI_DATA:
			result = s.data
		case csr.SW_TWSI_EOP_TWSI_CTL:
			result = s.ctl
			if s.iflg {
				result |= csr.CTL_IFLG
			}
		case csr.SW_TWSI_EOP_TWSI_STAT:
			result = uint8(s.stat)
			if s.rstLeft > 0 {
				s.rstLeft--
				result = 0
			}
		}
		s.accesses = append(s.accesses, Access{Read: true, Sel: sel, Data: result})
		s.sw = v&^(csr.SW_TWSI_V|0xff) | uint64(result)
		return
	}
	s.accesses = append(s.accesses, Access{Sel: sel, Data: data})
	s.sw = v &^ csr.SW_TWSI_V
	switch sel {
	case csr.SW_TWSI_EOP_TWSI_DATA:
		s.data = data
	case csr.SW_TWSI_OP_TWSI_CLK:
		s.clk = data
	case csr.SW_TWSI_EOP_TWSI_CLKCTL:
		s.clkctl = data
	case csr.SW_TWSI_EOP_TWSI_RST:
		s.reset()
	case csr.SW_TWSI_EOP_TWSI_CTL:
		s.control(data)
	}
}

func (s *Sim) reset() {
	s.ctl, s.data = 0, 0
	s.iflg, s.pending, s.active, s.reading = false, false, false, false
	s.stat = csr.STAT_IDLE
	s.rstLeft = s.ResetPolls
}

// control handles a TWSI_CTL write. Writing the register without IFLG set
// acknowledges the previous step and starts the next one.
func (s *Sim) control(v uint8) {
	s.ctl = v &^ csr.CTL_IFLG
	s.iflg = false
	switch {
	case v&csr.CTL_STP != 0:
		s.active, s.reading = false, false
		s.stat = csr.STAT_IDLE
		if s.StopStatus != 0 {
			s.stat = s.StopStatus
		}
		s.ctl &^= csr.CTL_STP
	case v&csr.CTL_STA != 0:
		if !s.active && s.RefuseStart > 0 {
			s.RefuseStart--
			return
		}
		natural := csr.STAT_START
		if s.active {
			natural = csr.STAT_RSTART
		}
		s.active = true
		s.ctl &^= csr.CTL_STA
		s.step(natural)
	case v&csr.CTL_ENAB != 0 && s.active:
		var natural csr.Status
		switch s.stat {
		case csr.STAT_START, csr.STAT_RSTART:
			s.reading = s.data&1 != 0
			natural = csr.STAT_TXADDR_ACK
			if s.reading {
				natural = csr.STAT_RXADDR_ACK
			}
		default:
			if s.reading {
				natural = csr.STAT_RXDATA_ACK
				s.data = s.nextRx()
			} else {
				natural = csr.STAT_TXDATA_ACK
			}
		}
		s.step(natural)
	}
}

func (s *Sim) nextRx() uint8 {
	if s.rxIdx >= len(s.RxData) {
		return 0xff // Released bus reads high.
	}
	b := s.RxData[s.rxIdx]
	s.rxIdx++
	return b
}

func (s *Sim) step(natural csr.Status) {
	st := Step{Status: natural}
	if len(s.Script) > 0 {
		st = s.Script[0]
		s.Script = s.Script[1:]
		if st.Status == 0 {
			st.Status = natural
		}
	}
	s.stat = st.Status
	if st.Stall {
		return
	}
	if s.Manual {
		s.pending = true
		return
	}
	s.iflg = true
}

// Complete finishes a step held back by Manual and raises the interrupt if
// enabled. It reports whether a step was pending.
func (s *Sim) Complete() bool {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return false
	}
	s.pending = false
	s.iflg = true
	fire := s.irqLocked()
	s.mu.Unlock()
	if fire != nil {
		fire()
	}
	return true
}

// Accesses returns a copy of every SW_TWSI command seen.
func (s *Sim) Accesses() []Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Access(nil), s.accesses...)
}

// IntWrites returns the values written to TWSI_INT.
func (s *Sim) IntWrites() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.intWrites...)
}

// CtlWrites returns every value written to TWSI_CTL.
func (s *Sim) CtlWrites() (ctls []uint8) {
	for _, a := range s.Accesses() {
		if !a.Read && a.Sel == csr.SW_TWSI_EOP_TWSI_CTL {
			ctls = append(ctls, a.Data)
		}
	}
	return ctls
}

// CountCtl counts TWSI_CTL writes with all bits of mask set.
func (s *Sim) CountCtl(mask uint8) (n int) {
	for _, ctl := range s.CtlWrites() {
		if ctl&mask == mask {
			n++
		}
	}
	return n
}

// Clock returns the programmed TWSI_CLK and TWSI_CLKCTL values.
func (s *Sim) Clock() (clk, clkctl uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clk, s.clkctl
}

// InterruptEnabled reports whether the core interrupt is unmasked.
func (s *Sim) InterruptEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ena
}

// Interrupts returns how many times the handler was invoked.
func (s *Sim) Interrupts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.irqs
}

// ClearLog forgets recorded accesses.
func (s *Sim) ClearLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accesses = s.accesses[:0]
	s.intWrites = s.intWrites[:0]
}
