package twsi

import (
	"errors"
	"strings"

	"github.com/soypat/twsi/csr"
)

var (
	// ErrTimeout is returned when a bus step does not complete within the
	// configured timeout. The interrupt is left disabled. The caller decides
	// whether to retry the batch.
	ErrTimeout error = timeoutError{}

	// ErrInvalidArgument is returned before any register access for requests
	// the controller cannot express, such as zero length reads.
	ErrInvalidArgument = errors.New("twsi: invalid argument")

	// ErrProtocol matches every *ProtocolError with errors.Is.
	ErrProtocol = errors.New("twsi: bad status")

	// ErrHardware matches every *HardwareFault with errors.Is.
	ErrHardware = errors.New("twsi: hardware fault")

	// ErrCSRBusy is wrapped by a HardwareFault when the SW_TWSI valid bit
	// never clears.
	ErrCSRBusy = errors.New("sw_twsi valid bit stuck")
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "twsi: timeout waiting for IFLG" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// ProtocolError reports a status register value inconsistent with the
// protocol step that just completed.
type ProtocolError struct {
	// Step names the transfer step, i.e: "start", "write", "read", "stop".
	Step     string
	Expected []csr.Status
	Got      csr.Status
}

func (e *ProtocolError) Error() string {
	var b strings.Builder
	b.WriteString("twsi: ")
	b.WriteString(e.Step)
	b.WriteString(": bad status ")
	b.WriteString(e.Got.String())
	if len(e.Expected) > 0 {
		b.WriteString(", want ")
		for i, s := range e.Expected {
			if i > 0 {
				b.WriteString(" or ")
			}
			b.WriteString(s.String())
		}
	}
	return b.String()
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// HardwareFault reports a controller that did not reach an expected state
// within its retry budget.
type HardwareFault struct {
	Op string
	// Status is the last status read, if any.
	Status csr.Status
	Err    error
}

func (e *HardwareFault) Error() string {
	msg := "twsi: " + e.Op + " failed"
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg + " (status " + e.Status.String() + ")"
}

func (e *HardwareFault) Is(target error) bool { return target == ErrHardware }

func (e *HardwareFault) Unwrap() error { return e.Err }
