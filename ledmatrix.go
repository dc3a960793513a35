// Package ledmatrix streams a bit-plane framebuffer to a multiplexed LED dot-matrix panel.
//
// The panel has no memory of its own: it only shows the row currently being driven, so the whole
// buffer must be replayed back to back. Dev owns the transmit resource and Render streams one complete
// refresh per call.
//
// See the examples for how to use this package.
package ledmatrix

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ledmatrix/bitplane"
)

// Bus is a transmit peripheral that clocks control words onto the panel bus in the background.
type Bus interface {
	// Start begins clocking out w, one byte per bus cycle. The bus reads w directly while the
	// transfer runs and never modifies it.
	Start(w []byte) (Transfer, error)
	String() string
}

// Transfer is a bulk transfer in flight.
type Transfer interface {
	// Wait blocks until the transfer is done and reports any fault raised while it ran.
	Wait() error
}

// Idler is implemented by buses that can drive a fixed word while no transfer runs.
type Idler interface {
	Idle(w bitplane.Word) error
}

// Edge selects the clock edge on which the panel samples a word.
type Edge int

const (
	EdgeFalling Edge = iota // Sample on the falling edge (default)
	EdgeRising              // Sample on the rising edge
)

// BitOrder selects how a control word is packed on serial-capable buses.
type BitOrder int

const (
	MSBFirst BitOrder = iota // Default
	LSBFirst
)

// Opts is the bus peripheral configuration. It is applied once, when the Dev is created.
type Opts struct {
	Freq  physic.Frequency // Bus clock (default: 1MHz)
	Edge  Edge             // Sample edge (default: falling)
	Order BitOrder         // Bit order (default: MSB first)

	// Idle is the word driven while no transfer is active, on buses implementing Idler. The blank
	// bit is always added so the panel stays dark between transfers.
	Idle bitplane.Word
}

// DefaultOpts is used when nil is passed as Opts.
var DefaultOpts = Opts{
	Freq: physic.MegaHertz,
	Idle: bitplane.BlankBit,
}

func (o *Opts) withDefaults() (Opts, error) {
	if o == nil {
		return DefaultOpts, nil
	}
	out := *o
	if out.Freq < 0 {
		return out, fmt.Errorf("ledmatrix: invalid bus clock %s", out.Freq)
	}
	if out.Freq == 0 {
		out.Freq = DefaultOpts.Freq
	}
	if out.Edge != EdgeFalling && out.Edge != EdgeRising {
		return out, errors.New("ledmatrix: invalid sample edge")
	}
	if out.Order != MSBFirst && out.Order != LSBFirst {
		return out, errors.New("ledmatrix: invalid bit order")
	}
	out.Idle = out.Idle.WithBlank(true)
	return out, nil
}

// ErrConsumed is returned when a handle that was already passed to Render or Halt is used again.
// The live handle is the one returned by that call.
var ErrConsumed = errors.New("ledmatrix: handle already consumed")

// ErrorKind classifies render faults.
type ErrorKind int

const (
	// KindPeripheral means the bus peripheral refused to start the transfer.
	KindPeripheral ErrorKind = iota
	// KindDMA means the transfer engine reported a fault while the transfer was in flight.
	KindDMA
)

func (k ErrorKind) String() string {
	switch k {
	case KindPeripheral:
		return "peripheral"
	case KindDMA:
		return "dma"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// RenderError is a fault limited to one refresh. The buffer and the Dev returned with it stay usable.
type RenderError struct {
	Kind ErrorKind
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("ledmatrix: %s fault: %v", e.Kind, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Dev is the handle on the panel bus.
//
// A Dev is consumed by Render and Halt. Render always hands back a new Dev, on failure too, so the
// bus is never lost and at most one transfer is in flight per bus.
type Dev struct {
	st atomic.Pointer[state]
}

type state struct {
	bus  Bus
	idle bitplane.Word
}

// New returns a Dev that renders through bus. The idle word is driven right away when bus
// implements Idler.
func New(bus Bus, opts *Opts) (*Dev, error) {
	if bus == nil {
		return nil, errors.New("ledmatrix: nil bus")
	}
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if i, ok := bus.(Idler); ok {
		if err := i.Idle(o.Idle); err != nil {
			return nil, fmt.Errorf("ledmatrix: failed to drive idle word: %w", err)
		}
	}
	return newDev(&state{bus: bus, idle: o.Idle}), nil
}

func newDev(st *state) *Dev {
	d := &Dev{}
	d.st.Store(st)
	return d
}

// Render streams one complete refresh of fb and blocks until the bus is done with it.
//
// The receiver is consumed. The returned Dev is the one to use for the next call; it is returned
// with the error when the transfer fails. Using d again returns ErrConsumed and a nil Dev.
//
// The buffer is read through fb.Unsynchronized, without taking its lock: a pixel written while the
// transfer runs may show up in some planes only for this refresh.
func (d *Dev) Render(fb *bitplane.Buffer) (*Dev, error) {
	st := d.st.Swap(nil)
	if st == nil {
		return nil, ErrConsumed
	}
	next := newDev(st)

	xfer, err := st.bus.Start(fb.Unsynchronized())
	if err != nil {
		return next, &RenderError{Kind: KindPeripheral, Err: err}
	}
	if err := xfer.Wait(); err != nil {
		return next, &RenderError{Kind: KindDMA, Err: err}
	}
	return next, nil
}

// Halt drives the idle word and releases the handle. The Dev can't be used afterwards.
func (d *Dev) Halt() error {
	st := d.st.Swap(nil)
	if st == nil {
		return ErrConsumed
	}
	if i, ok := st.bus.(Idler); ok {
		return i.Idle(st.idle)
	}
	return nil
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	st := d.st.Load()
	if st == nil {
		return "ledmatrix.Dev{consumed}"
	}
	return fmt.Sprintf("ledmatrix.Dev{%s}", st.bus)
}

// failureLogEvery throttles logging of consecutive render faults in Run.
const failureLogEvery = 1000

// Run renders fb back to back until stop is closed and returns the live Dev.
//
// Render faults are logged and the refresh is retried immediately. Run returns nil if d was already
// consumed.
func Run(d *Dev, fb *bitplane.Buffer, stop <-chan struct{}) *Dev {
	failures := 0
	for {
		select {
		case <-stop:
			return d
		default:
		}

		next, err := d.Render(fb)
		if next == nil {
			log.Printf("ledmatrix: render loop stopped: %v", err)
			return nil
		}
		d = next

		if err != nil {
			if failures%failureLogEvery == 0 {
				log.Printf("ledmatrix: render failed (%d in a row), retrying: %v", failures+1, err)
			}
			failures++
			continue
		}
		if failures > 0 {
			log.Printf("ledmatrix: render recovered after %d failures", failures)
			failures = 0
		}
	}
}
