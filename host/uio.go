package host

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sync"
)

// UIO receives interrupts from a Linux userspace I/O device. Reading the
// device blocks until the next interrupt and writing 1 re-enables it.
type UIO struct {
	rw      io.ReadWriteCloser
	mu      sync.Mutex
	handler func()
	start   sync.Once
	done    chan struct{}
	err     error
}

// OpenUIO opens the UIO device at path, i.e: "/dev/uio0".
func OpenUIO(path string) (*UIO, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return newUIO(f), nil
}

func newUIO(rw io.ReadWriteCloser) *UIO {
	return &UIO{rw: rw, done: make(chan struct{})}
}

// SetHandler implements twsi.IRQ. The first call starts delivering
// interrupts to handler on a dedicated goroutine.
func (u *UIO) SetHandler(handler func()) {
	u.mu.Lock()
	u.handler = handler
	u.mu.Unlock()
	u.start.Do(func() { go u.loop() })
}

func (u *UIO) loop() {
	defer close(u.done)
	var arm, count [4]byte
	binary.NativeEndian.PutUint32(arm[:], 1)
	for {
		_, err := u.rw.Write(arm[:])
		if err == nil {
			_, err = io.ReadFull(u.rw, count[:])
		}
		if err != nil {
			u.mu.Lock()
			u.err = err
			u.mu.Unlock()
			return
		}
		u.mu.Lock()
		h := u.handler
		u.mu.Unlock()
		if h != nil {
			h()
		}
	}
}

// Close stops interrupt delivery and closes the device.
func (u *UIO) Close() error {
	err := u.rw.Close()
	started := true
	u.start.Do(func() { started = false })
	if started {
		<-u.done
	}
	return err
}

// Err returns the error that stopped interrupt delivery, if any.
func (u *UIO) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if errors.Is(u.err, os.ErrClosed) || errors.Is(u.err, io.ErrClosedPipe) {
		return nil
	}
	return u.err
}
