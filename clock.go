package twsi

import (
	"log/slog"

	"github.com/soypat/twsi/csr"
	"golang.org/x/exp/constraints"
)

// Divider search space.
const (
	thpMin  = 5
	thpMax  = 0xff
	mdivMin = 2 // Values below 2 do not work well with ds1337 RTCs.
	mdivMax = 15
	ndivMax = 7
)

// ClockParams are the TWSI bit-rate generator settings. The bus clock is
//
//	sysclk / (2 * (Thp+1) * 2^Ndiv * (Mdiv+1) * 10)
type ClockParams struct {
	// Thp is the half-period counter in [5, 255].
	Thp uint8
	// Mdiv is the linear divider in [2, 15].
	Mdiv uint8
	// Ndiv is the binary prescaler exponent in [0, 7].
	Ndiv uint8
}

// DefaultClockParams is programmed when no divider gets near the target.
var DefaultClockParams = ClockParams{Thp: 0x18, Mdiv: 2, Ndiv: 0}

// Frequency returns the bus frequency in Hz these parameters achieve with a
// system clock of sysclk Hz.
func (p ClockParams) Frequency(sysclk uint32) uint32 {
	return uint32(achievedFreq(uint64(sysclk), uint64(p.Thp), uint64(p.Mdiv), uint64(p.Ndiv)))
}

// clkctl returns the TWSI_CLKCTL register value.
func (p ClockParams) clkctl() uint8 { return p.Mdiv<<3 | p.Ndiv }

// SearchClock finds the divider parameters whose bus frequency is closest to
// target given a system clock of sysclk Hz. For every (ndiv, mdiv) pair only
// the two half-period values bracketing the target are considered. If no
// in-range candidate comes within 1MHz of target it returns
// DefaultClockParams and false.
func SearchClock(target, sysclk uint32) (p ClockParams, ok bool) {
	p = DefaultClockParams
	var (
		f     = uint64(target)
		sys   = uint64(sysclk)
		delta = uint64(1000000)
	)
	if f == 0 {
		return p, false
	}
	for ndiv := uint64(0); ndiv <= ndivMax && delta != 0; ndiv++ {
		for mdiv := uint64(mdivMax); mdiv >= mdivMin && delta != 0; mdiv-- {
			tclk := f * (mdiv + 1) * 10 << ndiv
			base := int64(sys/(tclk*2)) - 1
			for inc := int64(0); inc <= 1; inc++ {
				thp := base + inc
				if thp < thpMin || thp > thpMax {
					continue
				}
				diff := absdiff(achievedFreq(sys, uint64(thp), mdiv, ndiv), f)
				if diff < delta {
					delta = diff
					p = ClockParams{Thp: uint8(thp), Mdiv: uint8(mdiv), Ndiv: uint8(ndiv)}
					ok = true
				}
			}
		}
	}
	return p, ok
}

func achievedFreq[T constraints.Unsigned](sys, thp, mdiv, ndiv T) T {
	return sys / (2 * (thp + 1)) >> ndiv / (mdiv + 1) / 10
}

func absdiff[T constraints.Integer](a, b T) T {
	if a > b {
		return a - b
	}
	return b - a
}

// programClock writes the divider to the controller.
func (c *Controller) programClock(p ClockParams) error {
	err := c.writeSW(csr.SW_TWSI_OP_TWSI_CLK, p.Thp)
	if err != nil {
		return err
	}
	err = c.writeSW(csr.SW_TWSI_EOP_TWSI_CLKCTL, p.clkctl())
	if err != nil {
		return err
	}
	c.clk = p
	return nil
}

// setclock searches and programs the divider for freq.
func (c *Controller) setclock(freq uint32) error {
	p, ok := SearchClock(freq, c.sysclk)
	if !ok {
		c.warn("setclock:no divider near target, using default",
			slog.Uint64("freq", uint64(freq)),
			slog.Uint64("sysclk", uint64(c.sysclk)),
		)
	}
	err := c.programClock(p)
	if err != nil {
		return err
	}
	c.freq = freq
	c.debug("setclock",
		slog.Uint64("freq", uint64(freq)),
		slog.Uint64("achieved", uint64(p.Frequency(c.sysclk))),
		slog.Int("thp", int(p.Thp)),
		slog.Int("mdiv", int(p.Mdiv)),
		slog.Int("ndiv", int(p.Ndiv)),
	)
	return nil
}
