package ledmatrix

import (
	"errors"
	"fmt"
	"math/bits"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/ledmatrix/bitplane"
)

// done is a Transfer completed by a background goroutine.
type done chan error

func (d done) Wait() error {
	return <-d
}

// connBus streams words through a periph connection, split in chunks no larger than the connection
// accepts in one Tx.
type connBus struct {
	c     conn.Conn
	chunk int
	lsb   bool   // Reverse the bits of every word before sending
	stage []byte // Reversed copy of the buffer, reused across transfers
}

// NewConn returns a Dev that streams the buffer through c.
//
// The connection must already be configured for the panel clock and sample edge. With opts.Order set
// to LSBFirst every word is bit-reversed into a staging buffer before it is sent. Transfers are split
// in chunks of conn.Limits.MaxTxSize when c implements conn.Limits.
//
// A connection can't hold a word on the bus between transfers, so opts.Idle is not driven and Halt
// only releases the handle. Every refresh ends on the trailing word of the last row, which has blank
// set, so the panel is dark once a transfer is over.
func NewConn(c conn.Conn, opts *Opts) (*Dev, error) {
	if c == nil {
		return nil, errors.New("ledmatrix: nil connection")
	}
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	b := newConnBus(c)
	b.lsb = o.Order == LSBFirst
	return New(b, &o)
}

func newConnBus(c conn.Conn) *connBus {
	b := &connBus{c: c}
	if l, ok := c.(conn.Limits); ok {
		b.chunk = l.MaxTxSize()
	}
	return b
}

func (b *connBus) Start(w []byte) (Transfer, error) {
	if len(w) == 0 {
		return nil, errors.New("empty transfer")
	}
	if b.lsb {
		// At most one transfer is in flight per Dev, so the stage is free here.
		if len(b.stage) != len(w) {
			b.stage = make([]byte, len(w))
		}
		for i, v := range w {
			b.stage[i] = bits.Reverse8(v)
		}
		w = b.stage
	}
	chunks := b.split(w)
	d := make(done, 1)
	go func() {
		for i, c := range chunks {
			if err := b.c.Tx(c, nil); err != nil {
				d <- fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
				return
			}
		}
		d <- nil
	}()
	return d, nil
}

// split cuts w into chunks that alias w.
func (b *connBus) split(w []byte) [][]byte {
	if b.chunk <= 0 || len(w) <= b.chunk {
		return [][]byte{w}
	}
	out := make([][]byte, 0, (len(w)+b.chunk-1)/b.chunk)
	for len(w) > b.chunk {
		out = append(out, w[:b.chunk])
		w = w[b.chunk:]
	}
	return append(out, w)
}

func (b *connBus) String() string {
	return b.c.String()
}

// NewSPI returns a Dev that streams the buffer through an SPI port.
//
// The port is connected at opts.Freq with 8 bits per word. Mode0 is used for EdgeRising and Mode1 for
// EdgeFalling; LSBFirst sets spi.LSBFirst. Failing to connect is an initialization fault.
//
// Each control word goes out as one byte on MOSI, so the panel needs a serial-to-parallel stage in
// front of it; see the package documentation. As with NewConn, opts.Idle is not driven.
//
// opts can be nil to use DefaultOpts.
func NewSPI(p spi.Port, opts *Opts) (*Dev, error) {
	if p == nil {
		return nil, errors.New("ledmatrix: nil SPI port")
	}
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	mode := spi.Mode1
	if o.Edge == EdgeRising {
		mode = spi.Mode0
	}
	if o.Order == LSBFirst {
		mode |= spi.LSBFirst
	}
	c, err := p.Connect(o.Freq, mode, 8)
	if err != nil {
		return nil, fmt.Errorf("ledmatrix: %w", err)
	}
	return New(newConnBus(c), &o)
}

// Pins are the GPIO lines of the parallel panel bus.
type Pins struct {
	Clock gpio.PinOut
	Value gpio.PinOut
	Latch gpio.PinOut
	Blank gpio.PinOut
	Row   [3]gpio.PinOut // Row[0] is the least significant address bit
}

// dataBits maps each data pin to its bit in the control word.
func (p *Pins) dataBits() [6]gpio.PinOut {
	return [6]gpio.PinOut{p.Row[0], p.Row[1], p.Row[2], p.Blank, p.Latch, p.Value}
}

// gpioBus bit-bangs the parallel bus. Each word is placed on the data pins, then the clock is
// toggled through the sample edge and back.
type gpioBus struct {
	clk    gpio.PinOut
	data   [6]gpio.PinOut
	sample gpio.Level // Clock level at the sample edge
	idle   bitplane.Word
	level  [6]gpio.Level
	known  bool
}

// NewGPIO returns a Dev that bit-bangs the buffer over GPIO pins.
//
// The clock runs as fast as the pins can be driven; opts.Freq and opts.Order don't apply to a
// parallel bus. Every pin must be set.
//
// opts can be nil to use DefaultOpts.
func NewGPIO(pins Pins, opts *Opts) (*Dev, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if pins.Clock == nil {
		return nil, errors.New("ledmatrix: missing clock pin")
	}
	b := &gpioBus{clk: pins.Clock, data: pins.dataBits(), sample: gpio.Low, idle: bitplane.BlankBit}
	for i, p := range b.data {
		if p == nil {
			return nil, fmt.Errorf("ledmatrix: missing data pin for bit %d", i)
		}
	}
	if o.Edge == EdgeRising {
		b.sample = gpio.High
	}
	return New(b, &o)
}

// Idle drives w on the data pins and parks the clock away from the sample edge. w is driven again
// after every transfer.
func (b *gpioBus) Idle(w bitplane.Word) error {
	b.idle = w
	if err := b.clk.Out(!b.sample); err != nil {
		return err
	}
	return b.put(w)
}

// put sets the data pins to w, skipping pins already at the right level.
func (b *gpioBus) put(w bitplane.Word) error {
	for i, p := range b.data {
		l := gpio.Level(w&(1<<uint(i)) != 0)
		if b.known && b.level[i] == l {
			continue
		}
		if err := p.Out(l); err != nil {
			b.known = false
			return err
		}
		b.level[i] = l
	}
	b.known = true
	return nil
}

func (b *gpioBus) Start(w []byte) (Transfer, error) {
	if len(w) == 0 {
		return nil, errors.New("empty transfer")
	}
	d := make(done, 1)
	go func() {
		d <- b.run(w)
	}()
	return d, nil
}

func (b *gpioBus) run(w []byte) error {
	for i, v := range w {
		if err := b.put(bitplane.Word(v)); err != nil {
			return fmt.Errorf("word %d: %w", i, err)
		}
		if err := b.clk.Out(b.sample); err != nil {
			return fmt.Errorf("word %d: clock: %w", i, err)
		}
		if err := b.clk.Out(!b.sample); err != nil {
			return fmt.Errorf("word %d: clock: %w", i, err)
		}
	}
	if err := b.put(b.idle); err != nil {
		return fmt.Errorf("idle: %w", err)
	}
	return nil
}

func (b *gpioBus) String() string {
	return fmt.Sprintf("gpio(clk=%s)", b.clk)
}
