package host

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/soypat/twsi"
	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

// Config is applied to every bus opened through i2creg. Set it before calling
// driverreg.Init; the Name field is replaced by the bus name.
var Config = twsi.DefaultConfig()

// SysfsRoot is where sysfs is mounted.
var SysfsRoot = "/sys"

// Bus is an opened TWSI controller together with its register window and
// interrupt device.
type Bus struct {
	*twsi.Controller
	win *Window
	irq *UIO
}

// Close masks the controller interrupt and releases the interrupt device and
// register window.
func (b *Bus) Close() error {
	err := b.Controller.Close()
	if b.irq != nil {
		err = errors.Join(err, b.irq.Close())
	}
	return errors.Join(err, b.win.Close())
}

// OpenDevice maps dev and opens it as a bus running at freq Hz. A freq of 0
// selects twsi.DefaultFrequency. sysclk is the I/O clock rate, see
// ReadIOClockRate.
func OpenDevice(dev Device, freq, sysclk uint32, cfg twsi.Config) (*Bus, error) {
	w, err := Map(dev.Base, int(dev.Size))
	if err != nil {
		return nil, err
	}
	b := &Bus{win: w}
	var irq twsi.IRQ
	if dev.UIO != "" {
		b.irq, err = OpenUIO(dev.UIO)
		if err != nil {
			w.Close()
			return nil, err
		}
		irq = b.irq
	} else if cfg.Logger != nil {
		cfg.Logger.Warn("no uio device bound, polling for completion", slog.String("slot", dev.Slot))
	}
	b.Controller, err = twsi.Open(freq, w, irq, sysclk, cfg)
	if err != nil {
		if b.irq != nil {
			b.irq.Close()
		}
		w.Close()
		return nil, err
	}
	return b, nil
}

type opener struct {
	name    string
	dev     Device
	ioclock func() uint32
}

func (o *opener) Open() (i2c.BusCloser, error) {
	cfg := Config
	cfg.Name = o.name
	b, err := OpenDevice(o.dev, 0, o.ioclock(), cfg)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// slotAlias turns a PCI slot into an i2creg alias, which may not contain ':'.
func slotAlias(slot string) string {
	return "pci-" + strings.ReplaceAll(slot, ":", "-")
}

// driver implements periph's driver.Impl, registering one i2creg bus per
// controller named "TWSI<n>" with its PCI slot as alias.
type driver struct {
	mu      sync.Mutex
	root    string
	ioclock func() uint32
	buses   []string
}

func (d *driver) String() string {
	return "thunderx-twsi"
}

func (d *driver) Prerequisites() []string {
	return nil
}

func (d *driver) After() []string {
	return nil
}

func (d *driver) Init() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	root := d.root
	if root == "" {
		root = SysfsRoot
	}
	devs, err := Discover(root)
	if err != nil {
		return true, err
	}
	if len(devs) == 0 {
		return false, errors.New("no ThunderX TWSI controller found")
	}
	ioclock := d.ioclock
	if ioclock == nil {
		ioclock = ReadIOClockRate
	}
	for i, dev := range devs {
		name := "TWSI" + strconv.Itoa(i)
		o := &opener{name: name, dev: dev, ioclock: ioclock}
		err = i2creg.Register(name, []string{slotAlias(dev.Slot)}, -1, o.Open)
		if err != nil {
			return true, err
		}
		d.buses = append(d.buses, name)
	}
	return true, nil
}

func init() {
	driverreg.MustRegister(&drv)
}

var drv driver

var _ i2c.BusCloser = &Bus{}
