package twsi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/soypat/twsi/csr"
)

// Controller is one TWSI bus master. It is safe for concurrent use: each
// batch holds the controller for its whole START..STOP span.
type Controller struct {
	mu     sync.Mutex
	w      Window
	irq    IRQ
	name   string
	freq   uint32
	sysclk uint32
	clk    ClockParams
	// state is the last transfer step reached, kept for trace output.
	state xferState
	// done is the completion signal raised by HandleInterrupt.
	done       chan struct{}
	timeout    time.Duration
	pollPeriod time.Duration
	clock      clockwork.Clock
	delay      func(time.Duration)
	logger     *slog.Logger

	_traceenabled bool
}

// Open resets the controller behind w, programs its bit-rate generator for
// freq Hz given a system (I/O) clock of sysclk Hz and installs the completion
// interrupt handler on irq. A freq of 0 selects DefaultFrequency. If irq is nil
// the controller polls for completion every cfg.PollPeriod.
func Open(freq uint32, w Window, irq IRQ, sysclk uint32, cfg Config) (*Controller, error) {
	if w == nil {
		return nil, errors.New("twsi: nil register window")
	}
	cfg.fillDefaults()
	if freq == 0 {
		freq = DefaultFrequency
	}
	c := &Controller{
		w:          w,
		irq:        irq,
		name:       cfg.Name,
		sysclk:     sysclk,
		done:       make(chan struct{}, 1),
		timeout:    cfg.Timeout,
		pollPeriod: cfg.PollPeriod,
		clock:      cfg.Clock,
		delay:      cfg.Delay,
		logger:     cfg.Logger,
	}
	c._traceenabled = c.logger != nil && c.logger.Handler().Enabled(context.Background(), levelTrace)
	c.info("Open:start", slog.String("name", c.name), slog.Uint64("sysclk", uint64(sysclk)))
	if sysclk == 0 {
		c.warn("Open:unknown io clock rate")
	}
	err := c.initLowLevel()
	if err != nil {
		c.logerr("Open:init low level failed", slog.Any("err", err))
		return nil, err
	}
	err = c.setclock(freq)
	if err != nil {
		c.logerr("Open:clock init failed", slog.Any("err", err))
		return nil, err
	}
	if irq != nil {
		irq.SetHandler(c.HandleInterrupt)
	}
	c.info("Open:done", slog.Uint64("freq", uint64(freq)))
	return c, nil
}

// initLowLevel enables bus access with the high level controller disabled,
// resets the controller and waits for it to report idle.
func (c *Controller) initLowLevel() error {
	const resetTries = 10
	err := c.writeCtl(csr.CTL_ENAB)
	if err != nil {
		return err
	}
	err = c.writeSW(csr.SW_TWSI_EOP_TWSI_RST, 0)
	if err != nil {
		return err
	}
	var status csr.Status
	for tries := resetTries; tries > 0; tries-- {
		c.delay(time.Microsecond)
		status, err = c.status()
		if err != nil {
			return err
		}
		if status == csr.STAT_IDLE {
			c.state = stateIdle
			return nil
		}
	}
	return &HardwareFault{Op: "TWSI_RST", Status: status}
}

// Close masks the controller interrupt. No other state is released; the
// register window and interrupt line belong to the caller.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intDisable()
	c.debug("Close")
	return nil
}

// Frequency returns the configured target bus frequency in Hz.
func (c *Controller) Frequency() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freq
}

// ClockParams returns the programmed divider.
func (c *Controller) ClockParams() ClockParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clk
}

// SetFrequency reprograms the bit-rate generator for freq Hz.
func (c *Controller) SetFrequency(freq uint32) error {
	if freq == 0 {
		return ErrInvalidArgument
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setclock(freq)
}

// Functionality reports what the adapter supports: plain I2C messages and
// SMBus transfers emulated on top of them.
func (c *Controller) Functionality() Functionality {
	return FuncI2C | FuncSMBusEmul
}

// String returns the controller name.
func (c *Controller) String() string { return c.name }
