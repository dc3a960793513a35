// Package ledmatrix drives a 96×16 monochrome LED dot-matrix panel with 8 levels of brightness.
//
// The panel is a pair of 192-column shift registers behind a 3-bit row multiplexer. It only lights
// the row currently addressed, so the host has to replay the whole picture continuously. Brightness
// comes from equal-duration bit planes: every refresh sends 7 planes of the same length and a pixel of
// level n is lit in the first n of them.
//
// # Panel Characteristics
//
// - 96×16 visible pixels, driven as 8 rows of 192 columns
// - 8 brightness levels (0-7), from 8-bit luma
// - One control word per bus cycle: value, latch, blank and row address
// - A full refresh is 10808 words
//
// # Hardware Connection
//
// The panel is clocked one control word per cycle. On a parallel GPIO bus (NewGPIO) every line has
// its own pin. A SPI port (NewSPI) sends each control word as one byte on MOSI, so it needs a
// serial-to-parallel stage such as a 74HC595 in front of the panel: SCLK and MOSI shift the byte in,
// RCLK is SCLK divided by 8 so the outputs update once per byte, and the inverted RCLK clocks the
// panel so it samples after the outputs settle. With the default MSB first order, output Qn carries
// bit n of the word.
//
//	Panel Pin → GPIO bus      → SPI bus, via 74HC595
//	GND       → GND           → GND
//	CLK       → Clock         → inverted RCLK
//	DATA      → Value         → Q5
//	LATCH     → Latch         → Q4
//	OE        → Blank         → Q3 (active high)
//	A, B, C   → Row[0..2]     → Q0, Q1, Q2
//
// # Basic Usage
//
// Example of creating a device and keeping the panel refreshed:
//
//	package main
//
//	import (
//		"periph.io/x/conn/v3/spi/spireg"
//		"periph.io/x/devices/v3/ledmatrix"
//		"periph.io/x/devices/v3/ledmatrix/bitplane"
//		"periph.io/x/host/v3"
//	)
//
//	func main() {
//		// Initialize periph.io
//		host.Init()
//
//		// Open SPI bus
//		p, _ := spireg.Open("")
//
//		// Create device
//		dev, _ := ledmatrix.NewSPI(p, nil)
//
//		// Draw into the framebuffer from any goroutine
//		fb := bitplane.New()
//		fb.SetGray(0, 0, 255)
//
//		// Refresh until stop is closed
//		stop := make(chan struct{})
//		dev = ledmatrix.Run(dev, fb, stop)
//	}
//
// # Bit Planes
//
// The bitplane package holds the framebuffer in the exact byte stream the panel expects. Each byte is
// a control word:
//
//	bit 7-6  reserved, always 0
//	bit 5    value, the pixel bit shifted into the column register
//	bit 4    latch, copies the shift register to the outputs
//	bit 3    blank, turns the outputs off
//	bit 2-0  row address
//
// The control bits are written once when the buffer is created. Drawing only touches the value bit,
// so refreshes stream the buffer without any conversion.
//
// # Render Ownership
//
// Render consumes the Dev it is called on and returns a fresh handle, on success and on failure alike.
// Calling Render or Halt on a consumed handle returns ErrConsumed. This keeps a single transfer in
// flight per device without locking the framebuffer:
//
//	for {
//		var err error
//		if dev, err = dev.Render(fb); err != nil {
//			log.Printf("refresh failed: %v", err)
//		}
//	}
//
// Faults are reported as *RenderError, with KindPeripheral when the transfer could not start and
// KindDMA when it failed while running.
//
// # Consistency
//
// Render reads the framebuffer without taking its lock. A pixel written during a refresh may show its
// old or its new level for that refresh; the next refresh shows the new one. Control bits are never
// written after creation, so the panel timing is never affected.
//
// # Testing Without Hardware
//
// The panelsim package emulates the panel and implements Bus, so a Dev can be built with New and
// checked pixel by pixel:
//
//	bus := panelsim.NewBus()
//	dev, _ := ledmatrix.New(bus, nil)
//	dev, _ = dev.Render(fb)
//	level := bus.Panel.Level(0, 0)
package ledmatrix
