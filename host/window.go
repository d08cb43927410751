package host

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"periph.io/x/host/v3/pmem"
)

// Window is a mapped register window. Every access is a single aligned 64 bit
// load or store.
type Window struct {
	view *pmem.View
	regs []byte
}

// Map maps size bytes of physical memory at base through /dev/mem. It
// requires root.
func Map(base uint64, size int) (*Window, error) {
	v, err := pmem.Map(base, size)
	if err != nil {
		return nil, err
	}
	return &Window{view: v, regs: v.Bytes()}, nil
}

// Read64 implements twsi.Window.
func (w *Window) Read64(off uint32) uint64 {
	return atomic.LoadUint64(w.word(off))
}

// Write64 implements twsi.Window.
func (w *Window) Write64(off uint32, v uint64) {
	atomic.StoreUint64(w.word(off), v)
}

func (w *Window) word(off uint32) *uint64 {
	if off&7 != 0 || uint64(off)+8 > uint64(len(w.regs)) {
		panic(fmt.Sprintf("host: register offset 0x%x outside %d byte window", off, len(w.regs)))
	}
	return (*uint64)(unsafe.Pointer(&w.regs[off]))
}

// Close unmaps the window. It must not be used afterwards.
func (w *Window) Close() error {
	w.regs = nil
	if w.view == nil {
		return nil
	}
	return w.view.Close()
}
