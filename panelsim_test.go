package ledmatrix_test

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/devices/v3/ledmatrix"
	"periph.io/x/devices/v3/ledmatrix/bitplane"
	"periph.io/x/devices/v3/ledmatrix/panelsim"
)

func newSim(t *testing.T) (*ledmatrix.Dev, *panelsim.Bus) {
	t.Helper()
	bus := panelsim.NewBus()
	d, err := ledmatrix.New(bus, nil)
	if err != nil {
		t.Fatal(err)
	}
	return d, bus
}

// refresh renders fb twice and measures the second refresh only.
func refresh(t *testing.T, d *ledmatrix.Dev, bus *panelsim.Bus, fb *bitplane.Buffer) *ledmatrix.Dev {
	t.Helper()
	d, err := d.Render(fb)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	bus.Panel.Reset()
	d, err = d.Render(fb)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return d
}

func TestPanelShowsBuffer(t *testing.T) {
	d, bus := newSim(t)
	fb := bitplane.New()
	for y := 0; y < bitplane.Height; y++ {
		for x := 0; x < bitplane.Width; x++ {
			fb.SetGray(x, y, uint8(x*255/(bitplane.Width-1)))
		}
	}

	refresh(t, d, bus, fb)

	for y := 0; y < bitplane.Height; y++ {
		for x := 0; x < bitplane.Width; x++ {
			if got, want := bus.Panel.Level(x, y), fb.Level(x, y); got != want {
				t.Fatalf("panel level at (%d, %d) = %d, want %d", x, y, got, want)
			}
		}
	}
	if got := bus.Panel.Cycles(); got != bitplane.Size {
		t.Errorf("cycles per refresh = %d, want %d", got, bitplane.Size)
	}
}

func TestPanelBrightnessLevels(t *testing.T) {
	d, bus := newSim(t)
	fb := bitplane.New()
	fb.SetGray(0, 0, 255)
	fb.SetGray(1, 0, 0)
	fb.SetGray(2, 0, 100)

	refresh(t, d, bus, fb)

	tests := []struct {
		x    int
		want int
	}{
		{0, 7},
		{1, 0},
		{2, 3},
	}
	for _, tt := range tests {
		if got := bus.Panel.Level(tt.x, 0); got != tt.want {
			t.Errorf("Level(%d, 0) = %d, want %d", tt.x, got, tt.want)
		}
	}
}

func TestPanelRecoversAfterFaults(t *testing.T) {
	d, bus := newSim(t)
	fb := bitplane.New()
	fb.SetGray(10, 10, 255)

	bus.FailStart(nil)
	d, err := d.Render(fb)
	var re *ledmatrix.RenderError
	if !errors.As(err, &re) || re.Kind != ledmatrix.KindPeripheral {
		t.Fatalf("Render() error = %v, want a peripheral fault", err)
	}
	if !errors.Is(err, panelsim.ErrInjected) {
		t.Errorf("error %v does not wrap the injected fault", err)
	}

	bus.FailTransfer(nil)
	d, err = d.Render(fb)
	if !errors.As(err, &re) || re.Kind != ledmatrix.KindDMA {
		t.Fatalf("Render() error = %v, want a dma fault", err)
	}

	refresh(t, d, bus, fb)
	if got := bus.Panel.Level(10, 10); got != bitplane.FrameCount {
		t.Errorf("Level(10, 10) after recovery = %d, want %d", got, bitplane.FrameCount)
	}
	if got := bus.MaxInFlight(); got != 1 {
		t.Errorf("MaxInFlight() = %d, want 1", got)
	}
}

func TestPanelIdleWord(t *testing.T) {
	d, bus := newSim(t)
	if got := bus.IdleWord(); got != bitplane.BlankBit {
		t.Errorf("idle word = %v, want %v", got, bitplane.BlankBit)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if got := bus.IdleWord(); !got.Blank() {
		t.Errorf("idle word after Halt = %v, want blank", got)
	}
}

func TestRunWithPanel(t *testing.T) {
	d, bus := newSim(t)
	fb := bitplane.New()
	fb.Fill(255)

	stop := make(chan struct{})
	out := make(chan *ledmatrix.Dev)
	go func() {
		out <- ledmatrix.Run(d, fb, stop)
	}()
	for bus.Transfers() < 3 {
		time.Sleep(time.Millisecond)
	}
	close(stop)
	d = <-out
	if d == nil {
		t.Fatal("Run() lost the handle")
	}
	if got := bus.MaxInFlight(); got != 1 {
		t.Errorf("MaxInFlight() = %d, want 1", got)
	}
	if _, err := d.Render(fb); err != nil {
		t.Errorf("Render() after Run error = %v", err)
	}
}
