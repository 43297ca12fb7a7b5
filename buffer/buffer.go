// Package buffer provides bounded, little-endian views over byte slices.
// Every read past the end of a view returns a sentinel value and marks
// the view errored rather than panicking; every write past the end is a
// silent no-op that marks the same flag. EtherNet/IP and PCCC are both
// little-endian on the wire, so that is the only byte order this package
// knows about.
package buffer

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// View is a bounded cursor over a []byte. The zero value is not usable;
// construct one with New or Wrap.
type View struct {
	data   []byte
	pos    int
	errd   bool
}

// New allocates a fresh, zeroed buffer of the given size.
func New(size int) *View {
	return &View{data: make([]byte, size)}
}

// Wrap builds a View over an existing slice without copying it.
func Wrap(b []byte) *View {
	return &View{data: b}
}

// Bytes returns the underlying slice. Callers must not retain it past
// the View's lifetime if the View is reused.
func (v *View) Bytes() []byte { return v.data }

// Len returns the total length of the view.
func (v *View) Len() int { return len(v.data) }

// Pos returns the current cursor position.
func (v *View) Pos() int { return v.pos }

// SetPos repositions the cursor. A position outside [0, Len()] clamps to
// the nearer bound and marks the view errored.
func (v *View) SetPos(pos int) {
	if pos < 0 || pos > len(v.data) {
		v.errd = true
		if pos < 0 {
			pos = 0
		} else {
			pos = len(v.data)
		}
	}
	v.pos = pos
}

// Remaining returns the number of unread bytes from the cursor to the end.
func (v *View) Remaining() int { return len(v.data) - v.pos }

// Err reports whether any read or write so far has gone out of bounds.
func (v *View) Err() bool { return v.errd }

// Sub returns a child view over data[start:start+n], with both bounds
// truncated to fit the parent. The returned view shares storage with the
// parent but has its own cursor and error flag.
func (v *View) Sub(start, n int) *View {
	if start < 0 {
		start = 0
	}
	if start > len(v.data) {
		start = len(v.data)
	}
	end := start + n
	if end < start {
		end = start
	}
	if end > len(v.data) {
		end = len(v.data)
	}
	return &View{data: v.data[start:end]}
}

func (v *View) canRead(n int) bool {
	if v.pos+n > len(v.data) || n < 0 {
		v.errd = true
		return false
	}
	return true
}

func (v *View) canWrite(n int) bool {
	if v.pos+n > len(v.data) || n < 0 {
		v.errd = true
		return false
	}
	return true
}

// GetU8 reads one byte and advances the cursor. Returns 0xFF on
// out-of-bounds.
func (v *View) GetU8() uint8 {
	if !v.canRead(1) {
		return 0xFF
	}
	b := v.data[v.pos]
	v.pos++
	return b
}

// GetU16 reads a little-endian uint16. Returns 0xFFFF on out-of-bounds.
func (v *View) GetU16() uint16 {
	if !v.canRead(2) {
		return 0xFFFF
	}
	val := binary.LittleEndian.Uint16(v.data[v.pos:])
	v.pos += 2
	return val
}

// GetU32 reads a little-endian uint32. Returns 0xFFFFFFFF on out-of-bounds.
func (v *View) GetU32() uint32 {
	if !v.canRead(4) {
		return 0xFFFFFFFF
	}
	val := binary.LittleEndian.Uint32(v.data[v.pos:])
	v.pos += 4
	return val
}

// GetU64 reads a little-endian uint64. Returns all-ones on out-of-bounds.
func (v *View) GetU64() uint64 {
	if !v.canRead(8) {
		return 0xFFFFFFFFFFFFFFFF
	}
	val := binary.LittleEndian.Uint64(v.data[v.pos:])
	v.pos += 8
	return val
}

// GetBytes reads n raw bytes and advances the cursor. Returns a nil slice
// on out-of-bounds (and still marks the view errored); the returned slice
// aliases the underlying storage.
func (v *View) GetBytes(n int) []byte {
	if !v.canRead(n) {
		return nil
	}
	b := v.data[v.pos : v.pos+n]
	v.pos += n
	return b
}

// PutU8 writes one byte and advances the cursor.
func (v *View) PutU8(val uint8) {
	if !v.canWrite(1) {
		return
	}
	v.data[v.pos] = val
	v.pos++
}

// PutU16 writes a little-endian uint16 and advances the cursor.
func (v *View) PutU16(val uint16) {
	if !v.canWrite(2) {
		return
	}
	binary.LittleEndian.PutUint16(v.data[v.pos:], val)
	v.pos += 2
}

// PutU32 writes a little-endian uint32 and advances the cursor.
func (v *View) PutU32(val uint32) {
	if !v.canWrite(4) {
		return
	}
	binary.LittleEndian.PutUint32(v.data[v.pos:], val)
	v.pos += 4
}

// PutU64 writes a little-endian uint64 and advances the cursor.
func (v *View) PutU64(val uint64) {
	if !v.canWrite(8) {
		return
	}
	binary.LittleEndian.PutUint64(v.data[v.pos:], val)
	v.pos += 8
}

// PutBytes writes raw bytes and advances the cursor.
func (v *View) PutBytes(b []byte) {
	if !v.canWrite(len(b)) {
		return
	}
	copy(v.data[v.pos:], b)
	v.pos += len(b)
}

// HexDump renders all of b as a classic hex/ASCII dump,
// used by the ambient logger to trace TX/RX frames.
func HexDump(b []byte) string {
	var sb strings.Builder
	for i := 0; i < len(b); i += 16 {
		end := i + 16
		if end > len(b) {
			end = len(b)
		}
		row := b[i:end]
		fmt.Fprintf(&sb, "%04x  ", i)
		for j := 0; j < 16; j++ {
			if j < len(row) {
				fmt.Fprintf(&sb, "%02x ", row[j])
			} else {
				sb.WriteString("   ")
			}
			if j == 7 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(" |")
		for _, c := range row {
			if c >= 0x20 && c < 0x7f {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}
	return sb.String()
}
