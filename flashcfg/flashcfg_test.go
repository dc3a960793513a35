package flashcfg

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// memFlash is an in-memory flash image that fails on demand.
type memFlash struct {
	b        []byte
	readErr  error
	writeErr error
}

func newMemFlash(size int) *memFlash {
	b := make([]byte, size)
	for i := range b {
		b[i] = 0xFF
	}
	return &memFlash{b: b}
}

func (m *memFlash) ReadAt(p []byte, off int64) (int, error) {
	if m.readErr != nil {
		return 0, m.readErr
	}
	if off >= int64(len(m.b)) {
		return 0, io.EOF
	}
	n := copy(p, m.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memFlash) WriteAt(p []byte, off int64) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	if end := int(off) + len(p); end > len(m.b) {
		m.b = append(m.b, make([]byte, end-len(m.b))...)
	}
	return copy(m.b[off:], p), nil
}

func TestSetGet(t *testing.T) {
	s := New(newMemFlash(BaseAddress + 4*EntryLen))

	if err := s.Set(SSID, "matrix-net"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(Password, "hunter2"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		id   uint32
		want string
	}{
		{SSID, "matrix-net"},
		{Password, "hunter2"},
	}
	for _, tt := range tests {
		got, err := s.Get(tt.id)
		if err != nil {
			t.Errorf("Get(%d) error = %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("Get(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestSetLayout(t *testing.T) {
	m := newMemFlash(BaseAddress + 2*EntryLen)
	s := New(m)
	if err := s.Set(Password, "pw"); err != nil {
		t.Fatal(err)
	}
	slot := m.b[BaseAddress+EntryLen : BaseAddress+2*EntryLen]
	if string(slot[:2]) != "pw" {
		t.Errorf("slot starts with %q, want %q", slot[:2], "pw")
	}
	for i, c := range slot[2:] {
		if c != 0 {
			t.Fatalf("padding byte %d = 0x%02X, want 0", i+2, c)
		}
	}
	// The neighbouring slot stays erased.
	if m.b[BaseAddress] != 0xFF {
		t.Error("Set wrote outside its slot")
	}
}

func TestGetNotFound(t *testing.T) {
	tests := []struct {
		name  string
		flash *memFlash
	}{
		{"erased", newMemFlash(BaseAddress + EntryLen)},
		{"zeroed", &memFlash{b: make([]byte, BaseAddress+EntryLen)}},
		{"past end of image", newMemFlash(16)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.flash).Get(SSID); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestGetCorrupt(t *testing.T) {
	m := newMemFlash(BaseAddress + EntryLen)
	copy(m.b[BaseAddress:], []byte{'a', 0xC3, 0x28, 0})
	if _, err := New(m).Get(SSID); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Get() error = %v, want ErrCorrupt", err)
	}

	// A partially erased slot isn't a valid string either.
	m = newMemFlash(BaseAddress + EntryLen)
	copy(m.b[BaseAddress:], "half")
	if _, err := New(m).Get(SSID); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Get() error = %v, want ErrCorrupt", err)
	}
}

func TestGetReadError(t *testing.T) {
	cause := errors.New("flash timeout")
	m := newMemFlash(BaseAddress + EntryLen)
	m.readErr = cause
	_, err := New(m).Get(SSID)
	if !errors.Is(err, cause) {
		t.Errorf("Get() error = %v, want %v", err, cause)
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt) {
		t.Errorf("read error %v classified as missing or corrupt", err)
	}
}

func TestSetErrors(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		writeErr error
		wantErr  error
	}{
		{"too long", strings.Repeat("x", EntryLen+1), nil, ErrTooLong},
		{"write failure", "ok", errors.New("flash locked"), nil},
		{"contains NUL", "a\x00b", nil, nil},
		{"latin-1", "caf\xe9", nil, nil},
		{"erased bytes", "\xff\xff", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMemFlash(BaseAddress + EntryLen)
			m.writeErr = tt.writeErr
			err := New(m).Set(SSID, tt.value)
			var we *WriteError
			if !errors.As(err, &we) {
				t.Fatalf("Set() error = %v, want a *WriteError", err)
			}
			if we.ID != SSID {
				t.Errorf("WriteError.ID = %d, want %d", we.ID, SSID)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Set() error = %v, want %v", err, tt.wantErr)
			}
			if tt.writeErr != nil && !errors.Is(err, tt.writeErr) {
				t.Errorf("Set() error = %v, want %v", err, tt.writeErr)
			}
			if tt.writeErr == nil && m.b[BaseAddress] != 0xFF {
				t.Error("rejected value was written")
			}
		})
	}

	// A full slot is fine.
	s := New(newMemFlash(BaseAddress + EntryLen))
	full := strings.Repeat("y", EntryLen)
	if err := s.Set(SSID, full); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get(SSID); got != full {
		t.Errorf("Get() = %q, want %q", got, full)
	}
}

func TestErase(t *testing.T) {
	s := New(newMemFlash(BaseAddress + EntryLen))
	if err := s.Set(SSID, "net"); err != nil {
		t.Fatal(err)
	}
	if err := s.Erase(SSID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(SSID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Erase error = %v, want ErrNotFound", err)
	}
}

func TestFileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	s := New(f)
	if _, err := s.Get(SSID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() on empty image error = %v, want ErrNotFound", err)
	}
	if err := s.Set(Password, "secret"); err != nil {
		t.Fatal(err)
	}
	if got, err := s.Get(Password); err != nil || got != "secret" {
		t.Errorf("Get() = %q, %v, want %q", got, err, "secret")
	}
	// The gap written before the slot by the OS reads as zeros, so the SSID slot is empty.
	if _, err := s.Get(SSID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(SSID) error = %v, want ErrNotFound", err)
	}
}
