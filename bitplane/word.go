package bitplane

import "fmt"

// Word is one control word clocked onto the panel bus.
type Word uint8

const (
	// RowMask selects the row address bits.
	RowMask Word = 0x07
	// BlankBit forces the panel output off while set.
	BlankBit Word = 1 << 3
	// LatchBit commits the shifted row on the next clock edge.
	LatchBit Word = 1 << 4
	// ValueBit is the pixel data shifted into the column drivers.
	ValueBit Word = 1 << 5
	// ReservedMask covers the two unused top bits, always zero.
	ReservedMask Word = 0xC0
)

// Value reports whether the pixel data bit is set.
func (w Word) Value() bool { return w&ValueBit != 0 }

// Latch reports whether the latch strobe is asserted.
func (w Word) Latch() bool { return w&LatchBit != 0 }

// Blank reports whether the display output is blanked.
func (w Word) Blank() bool { return w&BlankBit != 0 }

// Row returns the row address (0-7).
func (w Word) Row() uint8 { return uint8(w & RowMask) }

// WithValue returns w with the pixel data bit set to v.
func (w Word) WithValue(v bool) Word { return w.with(ValueBit, v) }

// WithLatch returns w with the latch strobe set to v.
func (w Word) WithLatch(v bool) Word { return w.with(LatchBit, v) }

// WithBlank returns w with the blank bit set to v.
func (w Word) WithBlank(v bool) Word { return w.with(BlankBit, v) }

// WithRow returns w addressing row. Only the low 3 bits of row are used.
func (w Word) WithRow(row uint8) Word {
	return (w &^ RowMask) | (Word(row) & RowMask)
}

func (w Word) with(bit Word, v bool) Word {
	if v {
		return w | bit
	}
	return w &^ bit
}

// String returns a compact representation, e.g. "Word{row:3 blank latch}".
func (w Word) String() string {
	s := fmt.Sprintf("Word{row:%d", w.Row())
	if w.Value() {
		s += " value"
	}
	if w.Latch() {
		s += " latch"
	}
	if w.Blank() {
		s += " blank"
	}
	return s + "}"
}
