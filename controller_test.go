package twsi

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/soypat/twsi/csr"
	"github.com/soypat/twsi/internal/twsisim"
)

const testSysclk = 50000000

func testConfig() Config {
	return Config{
		Name:    "twsi-test",
		Timeout: 50 * time.Millisecond,
		Delay:   func(time.Duration) {},
	}
}

func newTestController(t *testing.T, sim *twsisim.Sim) *Controller {
	t.Helper()
	c, err := Open(100000, sim, sim, testSysclk, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestOpenNilWindow(t *testing.T) {
	_, err := Open(100000, nil, nil, testSysclk, Config{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenDefaults(t *testing.T) {
	sim := twsisim.New()
	c, err := Open(0, sim, sim, testSysclk, Config{Delay: func(time.Duration) {}})
	if err != nil {
		t.Fatal(err)
	}
	if c.Frequency() != DefaultFrequency {
		t.Error("want default frequency, got", c.Frequency())
	}
	if c.String() != "twsi" {
		t.Error("want default name, got", c.String())
	}
	if c.timeout != 20*time.Millisecond {
		t.Error("want default timeout, got", c.timeout)
	}
	if c.Functionality()&FuncI2C == 0 {
		t.Error("plain i2c not reported")
	}
	if !sim.HasHandler() {
		t.Error("interrupt handler not installed")
	}
}

func TestOpenResetSequence(t *testing.T) {
	sim := twsisim.New()
	sim.ResetPolls = 3
	var delays []time.Duration
	cfg := testConfig()
	cfg.Delay = func(d time.Duration) { delays = append(delays, d) }
	_, err := Open(100000, sim, sim, testSysclk, cfg)
	if err != nil {
		t.Fatal(err)
	}
	acc := sim.Accesses()
	if len(acc) < 2 {
		t.Fatal("too few accesses", acc)
	}
	if acc[0].Read || acc[0].Sel != csr.SW_TWSI_EOP_TWSI_CTL || acc[0].Data != csr.CTL_ENAB {
		t.Errorf("first access should enable bus access: %+v", acc[0])
	}
	if acc[1].Read || acc[1].Sel != csr.SW_TWSI_EOP_TWSI_RST {
		t.Errorf("second access should reset: %+v", acc[1])
	}
	// Three non-idle reads then the idle one.
	if len(delays) != 4 {
		t.Errorf("want 4 reset polls, got %d", len(delays))
	}
	for _, d := range delays {
		if d != time.Microsecond {
			t.Error("bad reset poll delay", d)
		}
	}
}

func TestOpenResetFails(t *testing.T) {
	sim := twsisim.New()
	sim.ResetPolls = 20
	_, err := Open(100000, sim, sim, testSysclk, testConfig())
	if !errors.Is(err, ErrHardware) {
		t.Fatal("want hardware fault, got", err)
	}
	var hf *HardwareFault
	if !errors.As(err, &hf) || hf.Op != "TWSI_RST" {
		t.Errorf("unexpected fault %#v", err)
	}
	clk, clkctl := sim.Clock()
	if clk != 0 || clkctl != 0 {
		t.Error("clock programmed after failed reset")
	}
	if sim.HasHandler() {
		t.Error("failed Open left its interrupt handler installed")
	}
}

func TestCSRStuck(t *testing.T) {
	sim := twsisim.New()
	sim.BusyPolls = -1
	_, err := Open(100000, sim, sim, testSysclk, testConfig())
	if !errors.Is(err, ErrHardware) || !errors.Is(err, ErrCSRBusy) {
		t.Fatal("want stuck CSR fault, got", err)
	}
	if sim.HasHandler() {
		t.Error("failed Open left its interrupt handler installed")
	}
}

func TestCSRSlow(t *testing.T) {
	sim := twsisim.New()
	sim.BusyPolls = 3
	sim.RxData = []byte{0x5a}
	c := newTestController(t, sim)
	buf := make([]byte, 1)
	_, err := c.ExecuteBatch([]Message{ReadMsg(0x20, buf)})
	if err != nil {
		t.Fatal(err)
	}
	if buf[0] != 0x5a {
		t.Errorf("got %#x", buf[0])
	}
}

func TestTraceLogging(t *testing.T) {
	var buf bytes.Buffer
	sim := twsisim.New()
	cfg := testConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: levelTrace}))
	c, err := Open(100000, sim, sim, testSysclk, cfg)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ExecuteBatch([]Message{WriteMsg(0x50, []byte{1})})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Open:done", "sw:write", "reg=ctl", "ctl=enab|sta", "ctl=enab|stp", "to=start-sent", "xfer", "addr=0x50"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q", want)
		}
	}

	buf.Reset()
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	_, err = Open(100000, twsisim.New(), nil, testSysclk, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "sw:write") {
		t.Error("trace logged above trace level")
	}
}
