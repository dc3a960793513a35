// Package panelsim emulates a multiplexed LED dot-matrix panel driven by the ledmatrix control word
// stream.
//
// Panel models the column shift register, the output latch and the output enable of the panel and
// accumulates, per pixel, the number of bus cycles it was lit. Bus plugs a Panel into ledmatrix as a
// transmit peripheral, with injectable faults.
package panelsim

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"periph.io/x/devices/v3/ledmatrix"
	"periph.io/x/devices/v3/ledmatrix/bitplane"
)

// LitCycles is the number of cycles a latched row is displayed during one row period.
const LitCycles = bitplane.Cols - bitplane.BlankingDelay - 2

// Panel is the emulated panel hardware.
type Panel struct {
	mu      sync.Mutex
	shift   [bitplane.Cols]bool // shift[Cols-1] holds the last bit shifted in
	latched [bitplane.Cols]bool
	onTime  [bitplane.Rows][bitplane.Cols]int
	cycles  int
	latches int
}

// New returns a dark panel.
func New() *Panel {
	return &Panel{}
}

// Feed clocks every word of stream into the panel.
//
// On each cycle the value bit is shifted in. A word with latch set copies the shift register to the
// output latch. While blank is clear the latched columns light up on the addressed row.
func (p *Panel) Feed(stream []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range stream {
		w := bitplane.Word(b)
		copy(p.shift[:], p.shift[1:])
		p.shift[bitplane.Cols-1] = w.Value()
		if w.Latch() {
			p.latched = p.shift
			p.latches++
		}
		if !w.Blank() {
			row := &p.onTime[w.Row()]
			for c, on := range p.latched {
				if on {
					row[c]++
				}
			}
		}
		p.cycles++
	}
}

// Reset clears the on-time counters. The shift register and latch are kept, like on real hardware.
func (p *Panel) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTime = [bitplane.Rows][bitplane.Cols]int{}
	p.cycles = 0
	p.latches = 0
}

// Cycles returns the number of words clocked in since the last Reset.
func (p *Panel) Cycles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycles
}

// Latches returns the number of latch strobes seen since the last Reset.
func (p *Panel) Latches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latches
}

// OnTime returns the number of cycles the pixel at (x, y) was lit since the last Reset.
func (p *Panel) OnTime(x, y int) int {
	if x < 0 || y < 0 || x >= bitplane.Width || y >= bitplane.Height {
		return 0
	}
	row, col := y, x
	if y >= bitplane.Rows {
		row, col = y-bitplane.Rows, x+bitplane.Width
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onTime[row][col]
}

// Level returns the on-time of the pixel at (x, y) in whole planes, rounded to the nearest.
func (p *Panel) Level(x, y int) int {
	return (p.OnTime(x, y) + LitCycles/2) / LitCycles
}

// Levels returns Level for every pixel, indexed [y][x].
func (p *Panel) Levels() [bitplane.Height][bitplane.Width]int {
	var out [bitplane.Height][bitplane.Width]int
	for y := range out {
		for x := range out[y] {
			out[y][x] = p.Level(x, y)
		}
	}
	return out
}

// Image returns the perceived brightness of every pixel, scaling FrameCount planes to 255.
func (p *Panel) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, bitplane.Width, bitplane.Height))
	for y, row := range p.Levels() {
		for x, l := range row {
			if l > bitplane.FrameCount {
				l = bitplane.FrameCount
			}
			img.SetGray(x, y, color.Gray{Y: uint8(l * 0xFF / bitplane.FrameCount)})
		}
	}
	return img
}

// ErrInjected is the default fault returned by FailStart and FailTransfer.
var ErrInjected = errors.New("panelsim: injected fault")

// Bus is a ledmatrix.Bus that feeds a Panel.
type Bus struct {
	Panel *Panel

	mu        sync.Mutex
	startErr  error
	xferErr   error
	transfers int
	inFlight  int
	maxFlight int
	idle      bitplane.Word
}

// NewBus returns a Bus driving a new Panel.
func NewBus() *Bus {
	return &Bus{Panel: New()}
}

// FailStart makes the next Start fail with err, or ErrInjected if err is nil.
func (b *Bus) FailStart(err error) {
	if err == nil {
		err = ErrInjected
	}
	b.mu.Lock()
	b.startErr = err
	b.mu.Unlock()
}

// FailTransfer makes the next transfer fail with err, or ErrInjected if err is nil. The words are
// still clocked into the panel.
func (b *Bus) FailTransfer(err error) {
	if err == nil {
		err = ErrInjected
	}
	b.mu.Lock()
	b.xferErr = err
	b.mu.Unlock()
}

// Start feeds w to the panel in the background.
func (b *Bus) Start(w []byte) (ledmatrix.Transfer, error) {
	b.mu.Lock()
	if err := b.startErr; err != nil {
		b.startErr = nil
		b.mu.Unlock()
		return nil, err
	}
	xferErr := b.xferErr
	b.xferErr = nil
	b.inFlight++
	if b.inFlight > b.maxFlight {
		b.maxFlight = b.inFlight
	}
	b.mu.Unlock()

	t := make(transfer, 1)
	go func() {
		b.Panel.Feed(w)
		b.mu.Lock()
		b.inFlight--
		b.transfers++
		b.mu.Unlock()
		t <- xferErr
	}()
	return t, nil
}

// Idle records the word driven between transfers.
func (b *Bus) Idle(w bitplane.Word) error {
	b.mu.Lock()
	b.idle = w
	b.mu.Unlock()
	return nil
}

// IdleWord returns the last word passed to Idle.
func (b *Bus) IdleWord() bitplane.Word {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.idle
}

// Transfers returns the number of completed transfers, failed ones included.
func (b *Bus) Transfers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transfers
}

// MaxInFlight returns the highest number of transfers seen running at once.
func (b *Bus) MaxInFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxFlight
}

func (b *Bus) String() string {
	return fmt.Sprintf("panelsim(%dx%d)", bitplane.Width, bitplane.Height)
}

type transfer chan error

func (t transfer) Wait() error {
	return <-t
}
