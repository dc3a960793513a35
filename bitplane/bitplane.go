// Package bitplane provides the bit-plane framebuffer streamed to a multiplexed LED dot-matrix panel.
//
// Pixel writes are spread over FrameCount brightness planes of control words. The row template
// (address, blank, latch) is computed once per row and never recomputed by pixel writes.
package bitplane

import (
	"fmt"
	"image"
	"image/color"
	"sync"
)

// Panel geometry and grayscale depth. These are fixed at build time: every row template is derived
// from them.
const (
	Rows          = 16 / 2 // Scan lines per frame; one address drives a top and a bottom line
	Cols          = 96 * 2 // Columns shifted per row; both half panels are chained
	Bits          = 3      // Grayscale depth
	FrameCount    = 1<<Bits - 1
	BlankingDelay = 25 // Blanked columns before the latch, hides ghosting from the next row
	RowExtra      = 1  // Trailing words that pre-stage the next row address

	RowLen   = Cols + RowExtra
	FrameLen = Rows * RowLen
	Size     = FrameCount * FrameLen // Bytes in a full refresh

	Width  = Cols / 2
	Height = Rows * 2

	step = 256 >> Bits
)

// Build-time checks on the geometry.
var (
	_ [8 - Rows]struct{}                 // Row address is 3 bits wide
	_ [Cols - BlankingDelay - 2]struct{} // Column 1 must be left unblanked
	_ [7 - Bits]struct{}                 // GrayAt needs a luma step of at least 2
	_ [Bits - 1]struct{}
	_ [RowExtra - 1]struct{}
)

// Threshold returns the luma a pixel must exceed to be lit in plane i.
func Threshold(i int) uint8 {
	return uint8((i + 1) * step)
}

// prevAddr returns the address of the row scanned before addr.
func prevAddr(addr uint8) uint8 {
	if addr == 0 {
		return Rows - 1
	}
	return addr - 1
}

// FormatRow writes the control template for the row at addr into row, which must be RowLen long.
// All value bits are cleared.
//
// The previous row's address is held while this row is shifted in, so the previous row stays on
// display. Output is enabled from column 1 and blanked again BlankingDelay columns before the latch
// strobe on the last column. The trailing word switches the address to addr.
func FormatRow(row []byte, addr uint8) {
	_ = row[RowLen-1]

	w := Word(0).WithRow(prevAddr(addr)).WithBlank(true)
	for x := 0; x < Cols; x++ {
		switch x {
		case 1:
			w = w.WithBlank(false)
		case Cols - BlankingDelay - 1:
			w = w.WithBlank(true)
		case Cols - 1:
			w = w.WithLatch(true)
		}
		row[x] = byte(w)
	}

	w = w.WithRow(addr).WithLatch(false)
	for x := Cols; x < RowLen; x++ {
		row[x] = byte(w)
	}
}

// formatFrame writes the template for every row of a frame.
func formatFrame(frame []byte) {
	for addr := 0; addr < Rows; addr++ {
		FormatRow(frame[addr*RowLen:(addr+1)*RowLen], uint8(addr))
	}
}

// Template returns a freshly formatted buffer image: every row template applied, every pixel black.
func Template() []byte {
	pix := make([]byte, Size)
	for plane := 0; plane < FrameCount; plane++ {
		formatFrame(pix[plane*FrameLen : (plane+1)*FrameLen])
	}
	return pix
}

// Buffer is the complete multi-plane control word buffer for the panel.
//
// Mutations and reads through its methods are serialized by an internal lock. The renderer reads the
// storage through Unsynchronized instead, see there.
type Buffer struct {
	mu  sync.Mutex
	pix []byte
}

// New returns a buffer with every row template applied and all pixels black.
func New() *Buffer {
	return &Buffer{pix: Template()}
}

// Size returns the drawable size in pixels.
func (b *Buffer) Size() (w, h int) {
	return Width, Height
}

// Clear re-applies the row template to every row of every plane. All pixels become black.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for plane := 0; plane < FrameCount; plane++ {
		formatFrame(b.pix[plane*FrameLen : (plane+1)*FrameLen])
	}
}

// SetGray sets the pixel at (x, y) to luma. Coordinates outside the panel are ignored.
func (b *Buffer) SetGray(x, y int, luma uint8) {
	b.mu.Lock()
	b.setGray(x, y, luma)
	b.mu.Unlock()
}

// Fill sets every pixel to luma.
func (b *Buffer) Fill(luma uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			b.setGray(x, y, luma)
		}
	}
}

func (b *Buffer) setGray(x, y int, luma uint8) {
	off, ok := pixOffset(x, y)
	if !ok {
		return
	}
	for plane := 0; plane < FrameCount; plane++ {
		i := plane*FrameLen + off
		b.pix[i] = byte(Word(b.pix[i]).WithValue(luma > Threshold(plane)))
	}
}

// pixOffset returns the offset of pixel (x, y) within a frame.
// The top half of the panel maps to columns [0, Width), the bottom half to [Width, Cols) of the
// same row address.
func pixOffset(x, y int) (int, bool) {
	if x < 0 || y < 0 || x >= Width || y >= Height {
		return 0, false
	}
	row, col := y, x
	if y >= Rows {
		row, col = y-Rows, x+Cols/2
	}
	return row*RowLen + col, true
}

// Level returns the number of planes in which the pixel at (x, y) is lit, from 0 to FrameCount.
func (b *Buffer) Level(x, y int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level(x, y)
}

func (b *Buffer) level(x, y int) int {
	off, ok := pixOffset(x, y)
	if !ok {
		return 0
	}
	n := 0
	for plane := 0; plane < FrameCount; plane++ {
		if Word(b.pix[plane*FrameLen+off]).Value() {
			n++
		}
	}
	return n
}

// Word returns the control word at the given plane, row address and column. It panics if plane is
// not in [0, FrameCount), row in [0, Rows) or col in [0, RowLen).
func (b *Buffer) Word(plane, row, col int) Word {
	if plane < 0 || plane >= FrameCount || row < 0 || row >= Rows || col < 0 || col >= RowLen {
		panic(fmt.Sprintf("bitplane: Word(%d, %d, %d) out of range", plane, row, col))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return Word(b.pix[plane*FrameLen+row*RowLen+col])
}

// Snapshot returns a consistent copy of the whole buffer.
func (b *Buffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.pix))
	copy(out, b.pix)
	return out
}

// Unsynchronized returns the live backing storage of the buffer without taking the lock.
//
// The slice is the buffer itself, not a copy, and is laid out in transfer order. Writes running
// concurrently with a reader may be observed partially applied: a scan may show a pixel lit in some
// planes but not yet in others. The next scan shows the completed write. Callers must not modify the
// returned slice.
func (b *Buffer) Unsynchronized() []byte {
	return b.pix
}

// ColorModel returns the color model of the buffer.
func (b *Buffer) ColorModel() color.Model {
	return color.GrayModel
}

// Bounds returns the image bounds of the panel.
func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, Width, Height)
}

// At returns the quantized color of the pixel at (x, y).
// It implements the image.Image interface.
func (b *Buffer) At(x, y int) color.Color {
	return b.GrayAt(x, y)
}

// GrayAt returns the quantized gray of the pixel at (x, y). Black and full white map to 0 and 255,
// other levels to the middle of the luma interval that lights the same planes.
func (b *Buffer) GrayAt(x, y int) color.Gray {
	switch n := b.Level(x, y); n {
	case 0:
		return color.Gray{}
	case FrameCount:
		return color.Gray{Y: 0xFF}
	default:
		return color.Gray{Y: uint8(n*step + step/2)}
	}
}

// Set sets the color of the pixel at (x, y).
// It implements the draw.Image interface.
func (b *Buffer) Set(x, y int, c color.Color) {
	b.SetGray(x, y, color.GrayModel.Convert(c).(color.Gray).Y)
}

// String returns a string representation of the buffer.
func (b *Buffer) String() string {
	return fmt.Sprintf("bitplane.Buffer{%dx%d, %d planes}", Width, Height, FrameCount)
}
