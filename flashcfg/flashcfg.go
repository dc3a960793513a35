// Package flashcfg stores small configuration strings in fixed slots of a flash image.
//
// Each entry is EntryLen bytes at BaseAddress + id*EntryLen, NUL padded. Erased flash (0xFF) and
// all-zero slots read as ErrNotFound. The panel renderer doesn't use this package; it holds the
// network credentials of the device.
package flashcfg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const (
	BaseAddress = 0x9000
	EntryLen    = 64
)

// Well known entry ids.
const (
	SSID     uint32 = 0
	Password uint32 = 1
)

var (
	// ErrNotFound is returned by Get for an empty or erased slot.
	ErrNotFound = errors.New("flashcfg: entry not found")
	// ErrCorrupt is returned by Get when a slot doesn't hold a valid string.
	ErrCorrupt = errors.New("flashcfg: entry corrupt")
	// ErrTooLong is wrapped in a WriteError when a value doesn't fit in a slot.
	ErrTooLong = errors.New("flashcfg: value too long")
)

// WriteError reports a failed Set.
type WriteError struct {
	ID  uint32
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("flashcfg: write entry %d: %v", e.ID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Flash is the storage backing a Store, e.g. an *os.File holding a flash image.
type Flash interface {
	io.ReaderAt
	io.WriterAt
}

// Store reads and writes configuration entries.
type Store struct {
	f Flash
}

// New returns a Store backed by f.
func New(f Flash) *Store {
	return &Store{f: f}
}

func offset(id uint32) int64 {
	return BaseAddress + int64(id)*EntryLen
}

// Get returns the value stored under id.
func (s *Store) Get(id uint32) (string, error) {
	buf := make([]byte, EntryLen)
	n, err := s.f.ReadAt(buf, offset(id))
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("flashcfg: read entry %d: %w", id, err)
	}
	// Past the end of the image reads as erased flash.
	for i := n; i < len(buf); i++ {
		buf[i] = 0xFF
	}

	if isErased(buf) {
		return "", ErrNotFound
	}
	v := bytes.Trim(buf, "\x00")
	if len(v) == 0 {
		return "", ErrNotFound
	}
	if !utf8.Valid(v) {
		return "", ErrCorrupt
	}
	return string(v), nil
}

// Set stores value under id. value must be valid UTF-8, fit in EntryLen bytes and can't contain NUL.
func (s *Store) Set(id uint32, value string) error {
	if len(value) > EntryLen {
		return &WriteError{ID: id, Err: ErrTooLong}
	}
	if strings.IndexByte(value, 0) >= 0 {
		return &WriteError{ID: id, Err: errors.New("value contains NUL")}
	}
	if !utf8.ValidString(value) {
		return &WriteError{ID: id, Err: errors.New("value is not valid UTF-8")}
	}
	buf := make([]byte, EntryLen)
	copy(buf, value)
	if _, err := s.f.WriteAt(buf, offset(id)); err != nil {
		return &WriteError{ID: id, Err: err}
	}
	return nil
}

// Erase resets the slot of id to erased flash.
func (s *Store) Erase(id uint32) error {
	buf := bytes.Repeat([]byte{0xFF}, EntryLen)
	if _, err := s.f.WriteAt(buf, offset(id)); err != nil {
		return &WriteError{ID: id, Err: err}
	}
	return nil
}

func isErased(b []byte) bool {
	for _, c := range b {
		if c != 0xFF {
			return false
		}
	}
	return true
}
