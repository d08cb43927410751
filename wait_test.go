package twsi

import (
	"bytes"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/soypat/twsi/csr"
	"github.com/soypat/twsi/internal/twsisim"
)

// completer finishes held bus steps until stopped.
func completer(sim *twsisim.Sim) (stop func()) {
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-quit:
				return
			default:
			}
			sim.Complete()
			runtime.Gosched()
		}
	}()
	return func() {
		close(quit)
		<-done
	}
}

func TestInterruptDriven(t *testing.T) {
	sim := twsisim.New()
	sim.Manual = true
	sim.RxData = []byte{0x10, 0x20}
	cfg := testConfig()
	cfg.Timeout = time.Second
	c, err := Open(100000, sim, sim, testSysclk, cfg)
	if err != nil {
		t.Fatal(err)
	}
	stop := completer(sim)
	buf := make([]byte, 2)
	n, err := c.ExecuteBatch([]Message{WriteMsg(0x50, []byte{0}), ReadMsg(0x50, buf)})
	stop()
	if n != 2 || err != nil {
		t.Fatalf("got %d, %v", n, err)
	}
	if !bytes.Equal(buf, sim.RxData) {
		t.Errorf("read %x", buf)
	}
	// START, address, data, repeated START, address and two reads.
	if got := sim.Interrupts(); got < 7 {
		t.Error("want an interrupt per bus step, got", got)
	}
	if sim.InterruptEnabled() {
		t.Error("interrupt left enabled")
	}
}

func TestPolled(t *testing.T) {
	sim := twsisim.New()
	sim.Manual = true
	sim.RxData = []byte{0x42}
	cfg := testConfig()
	cfg.Timeout = time.Second
	cfg.PollPeriod = 10 * time.Microsecond
	c, err := Open(100000, sim, nil, testSysclk, cfg)
	if err != nil {
		t.Fatal(err)
	}
	stop := completer(sim)
	buf := make([]byte, 1)
	_, err = c.ExecuteBatch([]Message{ReadMsg(0x50, buf)})
	stop()
	if err != nil {
		t.Fatal(err)
	}
	if buf[0] != 0x42 {
		t.Errorf("read %#x", buf[0])
	}
	if sim.Interrupts() != 0 {
		t.Error("handler installed in polled mode")
	}
}

func TestWaitTimeout(t *testing.T) {
	sim := twsisim.New()
	// START never completes and the bus is not idle so no recovery is tried.
	sim.Script = []twsisim.Step{{Stall: true}}
	fc := clockwork.NewFakeClock()
	cfg := testConfig()
	cfg.Clock = fc
	c, err := Open(100000, sim, sim, testSysclk, cfg)
	if err != nil {
		t.Fatal(err)
	}
	sim.ClearLog()
	type result struct {
		n   int
		err error
	}
	res := make(chan result, 1)
	go func() {
		n, err := c.ExecuteBatch([]Message{WriteMsg(0x50, []byte{1})})
		res <- result{n, err}
	}()
	fc.BlockUntil(1)
	if !sim.InterruptEnabled() {
		t.Error("interrupt not enabled while waiting")
	}
	fc.Advance(cfg.Timeout)
	r := <-res
	if r.n != 0 || !errors.Is(r.err, ErrTimeout) {
		t.Fatalf("got %d, %v", r.n, r.err)
	}
	var to interface{ Timeout() bool }
	if !errors.As(r.err, &to) || !to.Timeout() {
		t.Error("timeout error does not report Timeout")
	}
	if sim.InterruptEnabled() {
		t.Error("interrupt left enabled after timeout")
	}
	if len(sim.IntWrites()) != 0 {
		t.Error("bus recovery attempted with a busy bus")
	}
	if sim.CountCtl(csr.CTL_STP) != 1 {
		t.Error("STOP not sent after timeout")
	}
}

func TestWaitLateCompletion(t *testing.T) {
	sim := twsisim.New()
	sim.Manual = true
	fc := clockwork.NewFakeClock()
	cfg := testConfig()
	cfg.Clock = fc
	c, err := Open(100000, sim, nil, testSysclk, cfg)
	if err != nil {
		t.Fatal(err)
	}
	// Complete the START behind the waiter's back with no interrupt line:
	// the final check on timeout must still see IFLG.
	c.mu.Lock()
	defer c.mu.Unlock()
	err = c.writeCtl(csr.CTL_ENAB | csr.CTL_STA)
	if err != nil {
		t.Fatal(err)
	}
	c.pollPeriod = time.Hour
	errc := make(chan error, 1)
	go func() { errc <- c.wait() }()
	fc.BlockUntil(2) // Timeout and poll timers.
	if !sim.Complete() {
		t.Fatal("no step pending")
	}
	fc.Advance(cfg.Timeout)
	if err := <-errc; err != nil {
		t.Fatal("want success on final check, got", err)
	}
}

func TestHandleInterruptNeverBlocks(t *testing.T) {
	sim := twsisim.New()
	c := newTestController(t, sim)
	sim.Write64(csr.TWSI_INT_ENA_W1S, csr.INT_ENA_CORE)
	for i := 0; i < 3; i++ {
		c.HandleInterrupt()
	}
	if len(c.done) != 1 {
		t.Error("want one pending signal, got", len(c.done))
	}
	if sim.InterruptEnabled() {
		t.Error("handler did not mask the interrupt")
	}

	// A stale signal must not complete the next step early.
	sim.Manual = true
	c.mu.Lock()
	err := c.writeCtl(csr.CTL_ENAB | csr.CTL_STA)
	c.mu.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	c.timeout = 5 * time.Millisecond
	c.mu.Lock()
	err = c.wait()
	c.mu.Unlock()
	if !errors.Is(err, ErrTimeout) {
		t.Error("stale signal completed the wait:", err)
	}
}

func TestCloseMasksInterrupt(t *testing.T) {
	sim := twsisim.New()
	c := newTestController(t, sim)
	sim.Write64(csr.TWSI_INT_ENA_W1S, csr.INT_ENA_CORE)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if sim.InterruptEnabled() {
		t.Error("interrupt enabled after Close")
	}
}
