// Package bitplane provides the bit-plane framebuffer streamed to a multiplexed LED dot-matrix panel.
//
// The panel is driven by clocking one control word per cycle onto an 8-bit parallel bus:
//
//	bit  7 6 | 5     | 4     | 3     | 2 1 0
//	     0 0 | value | latch | blank | row
//
// A Row is Cols+1 words: Cols pixel columns (two 96-pixel half panels chained) plus one trailing word
// that moves the row address to the row just shifted in. A Frame is Rows rows, one full scan of the
// panel. The Buffer holds FrameCount frames, one per brightness threshold:
//
//	plane 0: luma > 32
//	plane 1: luma > 64
//	...
//	plane 6: luma > 224
//
// Every plane is displayed for the same duration, so a pixel's perceived brightness is the number of
// planes in which it is lit (0..7).
//
// Memory layout of the whole buffer, in transfer order:
//
//	Pix[plane*FrameLen + row*RowLen + col]
//
// Example usage:
//
//	fb := bitplane.New()
//
//	// Set a pixel to mid gray (lit in planes 0..2)
//	fb.SetGray(10, 3, 100)
//
//	// Draw with the standard library
//	draw.Draw(fb, fb.Bounds(), image.NewUniform(color.Gray{Y: 255}), image.Point{}, draw.Src)
//
//	// Restore the all-black template
//	fb.Clear()
package bitplane
