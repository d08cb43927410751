package host

import (
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unsafe"

	"github.com/soypat/twsi/csr"
	"periph.io/x/conn/v3/i2c/i2creg"
)

type pciDev struct {
	slot, vendor, device, resource string
	uio                            string
}

func fakeSysfs(t *testing.T, devs ...pciDev) string {
	t.Helper()
	root := t.TempDir()
	for _, d := range devs {
		dir := filepath.Join(root, "bus", "pci", "devices", d.slot)
		files := map[string]string{
			"vendor":   d.vendor + "\n",
			"device":   d.device + "\n",
			"resource": d.resource,
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		for name, content := range files {
			if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
		}
		if d.uio != "" {
			if err := os.MkdirAll(filepath.Join(dir, "uio", d.uio), 0o755); err != nil {
				t.Fatal(err)
			}
		}
	}
	return root
}

const twsiResource = "0x000087e0d0000000 0x000087e0d001ffff 0x000000000014220c\n" +
	"0x0000000000000000 0x0000000000000000 0x0000000000000000\n"

func testSysfs(t *testing.T) string {
	return fakeSysfs(t,
		pciDev{slot: "0000:01:09.5", vendor: "0x177d", device: "0xa012", resource: twsiResource},
		pciDev{slot: "0000:01:09.4", vendor: "0x177d", device: "0xa012",
			resource: "0x000087e0d1000000 0x000087e0d100ffff 0x0\n", uio: "uio3"},
		pciDev{slot: "0000:01:00.0", vendor: "0x177d", device: "0xa001", resource: twsiResource},
		pciDev{slot: "0000:02:00.0", vendor: "0x8086", device: "0xa012", resource: twsiResource},
		pciDev{slot: "0000:01:09.6", vendor: "0x177d", device: "0xa012",
			resource: "0x0000000000000000 0x0000000000000000 0x0\n"},
	)
}

func TestDiscover(t *testing.T) {
	devs, err := Discover(testSysfs(t))
	if err != nil {
		t.Fatal(err)
	}
	want := []Device{
		{Slot: "0000:01:09.4", Base: 0x87e0d1000000, Size: 0x10000, UIO: "/dev/uio3"},
		{Slot: "0000:01:09.5", Base: 0x87e0d0000000, Size: 0x20000},
	}
	if len(devs) != len(want) {
		t.Fatalf("got %v, want %v", devs, want)
	}
	for i := range want {
		if devs[i] != want[i] {
			t.Errorf("device %d: got %+v, want %+v", i, devs[i], want[i])
		}
	}
}

func TestDiscoverMalformed(t *testing.T) {
	root := fakeSysfs(t, pciDev{slot: "0000:01:09.4", vendor: "0x177d", device: "0xa012", resource: "garbage\n"})
	_, err := Discover(root)
	if err == nil {
		t.Fatal("expected error for malformed resource file")
	}
	devs, err := Discover(t.TempDir())
	if err != nil || len(devs) != 0 {
		t.Errorf("empty sysfs: got %v, %v", devs, err)
	}
}

// heapWindow returns a Window over ordinary memory.
func heapWindow(size int) *Window {
	buf := make([]uint64, size/8)
	return &Window{regs: unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), size)}
}

func TestWindow(t *testing.T) {
	w := heapWindow(0x2000)
	w.Write64(csr.SW_TWSI, 0x8c00000200000040)
	if got := w.Read64(csr.SW_TWSI); got != 0x8c00000200000040 {
		t.Errorf("read back %#x", got)
	}
	if got := binary.NativeEndian.Uint64(w.regs[csr.SW_TWSI:]); got != 0x8c00000200000040 {
		t.Errorf("stored %#x", got)
	}
	for _, off := range []uint32{0x1004, 0x2000} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("offset %#x did not panic", off)
				}
			}()
			w.Read64(off)
		}()
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestIOClockRate(t *testing.T) {
	w := heapWindow(csr.RST_SIZE)
	w.Write64(csr.RST_BOOT, 16<<csr.RST_PNR_MUL_SHIFT|0xff)
	if got := IOClockRate(w); got != 800000000 {
		t.Error("got", got)
	}
}

func TestUIO(t *testing.T) {
	dev, kernel := net.Pipe()
	u := newUIO(dev)
	irqs := make(chan struct{}, 4)
	u.SetHandler(func() { irqs <- struct{}{} })

	var buf [4]byte
	for i := uint32(1); i <= 2; i++ {
		kernel.SetDeadline(time.Now().Add(5 * time.Second))
		if _, err := kernel.Read(buf[:]); err != nil {
			t.Fatal(err)
		}
		if binary.NativeEndian.Uint32(buf[:]) != 1 {
			t.Fatal("interrupt not re-armed with 1")
		}
		binary.NativeEndian.PutUint32(buf[:], i)
		if _, err := kernel.Write(buf[:]); err != nil {
			t.Fatal(err)
		}
		select {
		case <-irqs:
		case <-time.After(5 * time.Second):
			t.Fatal("handler not called")
		}
	}
	if err := u.Close(); err != nil {
		t.Fatal(err)
	}
	if err := u.Err(); err != nil {
		t.Error("unexpected error after close:", err)
	}
}

func TestUIOCloseUnstarted(t *testing.T) {
	dev, _ := net.Pipe()
	u := newUIO(dev)
	if err := u.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDriverInit(t *testing.T) {
	d := &driver{root: testSysfs(t), ioclock: func() uint32 { return 800000000 }}
	t.Cleanup(func() {
		for _, name := range d.buses {
			i2creg.Unregister(name)
		}
	})
	ok, err := d.Init()
	if !ok || err != nil {
		t.Fatalf("got %v, %v", ok, err)
	}
	if len(d.buses) != 2 {
		t.Fatal("want 2 buses, got", d.buses)
	}
	refs := map[string][]string{}
	for _, ref := range i2creg.All() {
		refs[ref.Name] = ref.Aliases
	}
	for name, alias := range map[string]string{"TWSI0": "pci-0000-01-09.4", "TWSI1": "pci-0000-01-09.5"} {
		aliases, ok := refs[name]
		if !ok {
			t.Errorf("%s not registered", name)
			continue
		}
		if len(aliases) != 1 || aliases[0] != alias {
			t.Errorf("%s aliases %v, want %s", name, aliases, alias)
		}
	}

	skip := &driver{root: t.TempDir()}
	ok, err = skip.Init()
	if ok || err == nil {
		t.Errorf("host without controllers should be skipped, got %v, %v", ok, err)
	}
	if skip.String() != "thunderx-twsi" || skip.Prerequisites() != nil || skip.After() != nil {
		t.Error("bad driver metadata")
	}
}
