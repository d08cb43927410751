package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/soypat/twsi"
	"github.com/soypat/twsi/host"
	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
)

const usage = `twsictl - access ThunderX TWSI I2C buses.
	Usage:
	twsictl [flags] list
	twsictl [flags] read BUS.ADDR[.REG] N
	twsictl [flags] write BUS.ADDR[.REG] BYTE...
	twsictl [flags] clock FREQ SYSCLK
BUS is decimal, ADDR, REG and BYTE are hex.
`

var (
	flagSpeed = flag.Uint("speed", twsi.DefaultFrequency, "Bus frequency in Hz.")
	flagSysfs = flag.String("sysfs", "/sys", "sysfs mount point.")
	flagV     = flag.Bool("v", false, "Debug logging.")
	flagTrace = flag.Bool("trace", false, "Log every register access.")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	level := slog.LevelWarn
	if *flagV {
		level = slog.LevelDebug
	}
	if *flagTrace {
		level = slog.LevelDebug - 1
	}
	host.Config.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	host.SysfsRoot = *flagSysfs
	err := run(os.Stdout, flag.Args())
	if errors.Is(err, errUsage) {
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

var errUsage = errors.New("usage")

func run(w io.Writer, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "list":
		return list(w)
	case "read":
		if len(args) != 3 {
			return errUsage
		}
		t, err := parseTarget(args[1])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[2])
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: invalid byte count", args[2])
		}
		return read(w, t, n)
	case "write":
		if len(args) < 3 {
			return errUsage
		}
		t, err := parseTarget(args[1])
		if err != nil {
			return err
		}
		data, err := parseBytes(args[2:])
		if err != nil {
			return err
		}
		return write(t, data)
	case "clock":
		if len(args) != 3 {
			return errUsage
		}
		freq, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("%s: invalid frequency: %w", args[1], err)
		}
		sysclk, err := strconv.ParseUint(args[2], 0, 32)
		if err != nil {
			return fmt.Errorf("%s: invalid system clock: %w", args[2], err)
		}
		return clock(w, uint32(freq), uint32(sysclk))
	}
	return fmt.Errorf("%s: unknown command", args[0])
}

// target is a parsed BUS.ADDR[.REG].
type target struct {
	bus    int
	addr   uint16
	reg    uint8
	hasReg bool
}

func (t target) String() string {
	s := fmt.Sprintf("%d.%02x", t.bus, t.addr)
	if t.hasReg {
		s += fmt.Sprintf(".%02x", t.reg)
	}
	return s
}

func parseTarget(s string) (t target, err error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 && len(parts) != 3 {
		return t, fmt.Errorf("%s: invalid BUS.ADDR[.REG]", s)
	}
	_, err = fmt.Sscanf(parts[0], "%d", &t.bus)
	if err == nil {
		_, err = fmt.Sscanf(parts[1], "%x", &t.addr)
	}
	if err == nil && len(parts) == 3 {
		_, err = fmt.Sscanf(parts[2], "%x", &t.reg)
		t.hasReg = true
	}
	if err != nil {
		return t, fmt.Errorf("%s: invalid BUS.ADDR[.REG]: %w", s, err)
	}
	if t.bus < 0 || t.addr > 0x7f {
		return t, fmt.Errorf("%s: bus or address out of range", s)
	}
	return t, nil
}

func parseBytes(args []string) ([]byte, error) {
	data := make([]byte, len(args))
	for i, a := range args {
		_, err := fmt.Sscanf(a, "%x", &data[i])
		if err != nil {
			return nil, fmt.Errorf("%s: invalid byte: %w", a, err)
		}
	}
	return data, nil
}

func list(w io.Writer) error {
	if _, err := driverreg.Init(); err != nil {
		return err
	}
	refs := i2creg.All()
	if len(refs) == 0 {
		return errors.New("no TWSI buses found")
	}
	for _, ref := range refs {
		fmt.Fprintf(w, "%s\t%s\n", ref.Name, strings.Join(ref.Aliases, ","))
	}
	return nil
}

func openBus(n int) (i2c.BusCloser, error) {
	if _, err := driverreg.Init(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open("TWSI" + strconv.Itoa(n))
	if err != nil {
		return nil, err
	}
	if *flagSpeed != twsi.DefaultFrequency {
		err = bus.SetSpeed(physic.Frequency(*flagSpeed) * physic.Hertz)
		if err != nil {
			bus.Close()
			return nil, err
		}
	}
	return bus, nil
}

func read(w io.Writer, t target, n int) error {
	bus, err := openBus(t.bus)
	if err != nil {
		return err
	}
	defer bus.Close()
	var wbuf []byte
	if t.hasReg {
		wbuf = []byte{t.reg}
	}
	r := make([]byte, n)
	err = bus.Tx(t.addr, wbuf, r)
	if err != nil {
		return err
	}
	hexdump(w, t.reg, r)
	return nil
}

func write(t target, data []byte) error {
	bus, err := openBus(t.bus)
	if err != nil {
		return err
	}
	defer bus.Close()
	if t.hasReg {
		data = append([]byte{t.reg}, data...)
	}
	return bus.Tx(t.addr, data, nil)
}

func clock(w io.Writer, freq, sysclk uint32) error {
	p, ok := twsi.SearchClock(freq, sysclk)
	fmt.Fprintf(w, "thp=%d mdiv=%d ndiv=%d achieved=%dHz", p.Thp, p.Mdiv, p.Ndiv, p.Frequency(sysclk))
	if !ok {
		fmt.Fprint(w, " (default, no divider near target)")
	}
	fmt.Fprintln(w)
	return nil
}

// hexdump prints 16 bytes per line prefixed by the register of the first one.
func hexdump(w io.Writer, reg uint8, data []byte) {
	var line, ascii strings.Builder
	for i, b := range data {
		if i%16 == 0 {
			fmt.Fprintf(&line, "%02x: ", int(reg)+i)
		}
		fmt.Fprintf(&line, "%02x ", b)
		if b > 0x1f && b < 0x7f {
			ascii.WriteByte(b)
		} else {
			ascii.WriteByte('.')
		}
		if i%16 == 15 || i == len(data)-1 {
			fmt.Fprintf(w, "%-52s%s\n", line.String(), ascii.String())
			line.Reset()
			ascii.Reset()
		}
	}
}
