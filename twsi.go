// Package twsi drives the ThunderX TWSI (I2C) bus master.
//
// The controller's I2C core registers sit behind the SW_TWSI CSR of a PCI BAR
// and are reached with indirect command words. A Controller owns one such
// register window, the interrupt used to signal completion of each bus step
// and the programmed clock divider. Batches of messages are executed with
// ExecuteBatch, or through the periph.io, TinyGo and x/exp I2C bus interfaces
// a Controller implements.
package twsi

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultFrequency is the bus rate used when Open is called with freq 0.
const DefaultFrequency = 100000

// Window is a mapped controller register window accessed with 64 bit words.
// Implementations must tolerate concurrent access to distinct offsets since
// the interrupt handler writes the interrupt enable registers while a
// transfer may be polling SW_TWSI.
type Window interface {
	Read64(offset uint32) uint64
	Write64(offset uint32, v uint64)
}

// IRQ is the controller's interrupt line. The Controller installs its handler
// during Open. The handler runs in interrupt context: it never blocks.
type IRQ interface {
	SetHandler(handler func())
}

// Config holds optional Controller settings.
type Config struct {
	// Name is returned by String. Defaults to "twsi".
	Name string
	// Timeout bounds every wait for a bus step to complete.
	Timeout time.Duration
	// Logger receives driver logs. nil disables logging.
	Logger *slog.Logger
	// Delay busy-waits for short durations, used by the reset and bus
	// recovery sequences. Defaults to a spin on the monotonic clock.
	Delay func(time.Duration)
	// Clock drives completion timeouts. Defaults to the real clock.
	Clock clockwork.Clock
	// PollPeriod is how often the IFLG predicate is re-checked when no
	// interrupt line is given to Open.
	PollPeriod time.Duration
}

// DefaultConfig returns a 20ms step timeout, busy-wait delays and the real
// clock.
func DefaultConfig() Config {
	return Config{
		Name:       "twsi",
		Timeout:    20 * time.Millisecond,
		Delay:      spinDelay,
		Clock:      clockwork.NewRealClock(),
		PollPeriod: 50 * time.Microsecond,
	}
}

func (cfg *Config) fillDefaults() {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Delay == nil {
		cfg.Delay = def.Delay
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = def.PollPeriod
	}
}

// Message is one segment of a bus transaction addressed to a 7 bit target.
// Write messages send Buf, read messages fill Buf.
type Message struct {
	Addr uint16
	Read bool
	Buf  []byte
}

// WriteMsg returns a message writing p to addr.
func WriteMsg(addr uint16, p []byte) Message { return Message{Addr: addr, Buf: p} }

// ReadMsg returns a message reading len(buf) bytes from addr into buf.
func ReadMsg(addr uint16, buf []byte) Message { return Message{Addr: addr, Read: true, Buf: buf} }

func (m Message) dir() string {
	if m.Read {
		return "read"
	}
	return "write"
}

// Functionality mirrors the Linux I2C adapter functionality bits.
type Functionality uint32

const (
	FuncI2C       Functionality = 0x00000001
	FuncSMBusEmul Functionality = 0x0eff0008
)

func spinDelay(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
		runtime.Gosched()
	}
}
