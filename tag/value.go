package tag

import (
	"math"
	"sync/atomic"

	"github.com/libplctag/libplctag-sub000/buffer"
	"github.com/libplctag/libplctag-sub000/plcerr"
)

// Requester identity carried in every Execute PCCC request.
const (
	pcccVendorID uint16 = 0x1337
	pcccSerial   uint32 = 42
)

var tnsCounter uint32

func nextTns() uint16 {
	return uint16(atomic.AddUint32(&tnsCounter, 1))
}

// The scalar accessors are byte-order-aware views into the tag data
// buffer. Every accessor validates the offset against the buffer
// bounds and returns OutOfBounds rather than panicking.

func (t *Tag) checkRange(offset, n int) error {
	if offset < 0 || offset+n > len(t.data) {
		return plcerr.Newf(plcerr.OutOfBounds, "tag: offset %d (+%d) outside %d-byte buffer", offset, n, len(t.data))
	}
	return nil
}

// GetUint8 reads one byte at offset.
func (t *Tag) GetUint8(offset int) (uint8, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkRange(offset, 1); err != nil {
		return 0, err
	}
	return t.data[offset], nil
}

// SetUint8 writes one byte at offset and marks the tag dirty.
func (t *Tag) SetUint8(offset int, v uint8) error {
	t.mu.Lock()
	if err := t.checkRange(offset, 1); err != nil {
		t.mu.Unlock()
		return err
	}
	t.data[offset] = v
	t.mu.Unlock()
	t.markDirty()
	return nil
}

// GetInt8 reads a signed byte at offset.
func (t *Tag) GetInt8(offset int) (int8, error) {
	v, err := t.GetUint8(offset)
	return int8(v), err
}

// SetInt8 writes a signed byte at offset.
func (t *Tag) SetInt8(offset int, v int8) error { return t.SetUint8(offset, uint8(v)) }

// GetUint16 reads a little-endian uint16 at offset.
func (t *Tag) GetUint16(offset int) (uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkRange(offset, 2); err != nil {
		return 0, err
	}
	return buffer.Wrap(t.data[offset:]).GetU16(), nil
}

// SetUint16 writes a little-endian uint16 at offset.
func (t *Tag) SetUint16(offset int, v uint16) error {
	t.mu.Lock()
	if err := t.checkRange(offset, 2); err != nil {
		t.mu.Unlock()
		return err
	}
	buffer.Wrap(t.data[offset:]).PutU16(v)
	t.mu.Unlock()
	t.markDirty()
	return nil
}

// GetInt16 reads a little-endian int16 at offset.
func (t *Tag) GetInt16(offset int) (int16, error) {
	v, err := t.GetUint16(offset)
	return int16(v), err
}

// SetInt16 writes a little-endian int16 at offset.
func (t *Tag) SetInt16(offset int, v int16) error { return t.SetUint16(offset, uint16(v)) }

// GetUint32 reads a little-endian uint32 at offset.
func (t *Tag) GetUint32(offset int) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkRange(offset, 4); err != nil {
		return 0, err
	}
	return buffer.Wrap(t.data[offset:]).GetU32(), nil
}

// SetUint32 writes a little-endian uint32 at offset.
func (t *Tag) SetUint32(offset int, v uint32) error {
	t.mu.Lock()
	if err := t.checkRange(offset, 4); err != nil {
		t.mu.Unlock()
		return err
	}
	buffer.Wrap(t.data[offset:]).PutU32(v)
	t.mu.Unlock()
	t.markDirty()
	return nil
}

// GetInt32 reads a little-endian int32 at offset.
func (t *Tag) GetInt32(offset int) (int32, error) {
	v, err := t.GetUint32(offset)
	return int32(v), err
}

// SetInt32 writes a little-endian int32 at offset.
func (t *Tag) SetInt32(offset int, v int32) error { return t.SetUint32(offset, uint32(v)) }

// GetUint64 reads a little-endian uint64 at offset.
func (t *Tag) GetUint64(offset int) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkRange(offset, 8); err != nil {
		return 0, err
	}
	return buffer.Wrap(t.data[offset:]).GetU64(), nil
}

// SetUint64 writes a little-endian uint64 at offset.
func (t *Tag) SetUint64(offset int, v uint64) error {
	t.mu.Lock()
	if err := t.checkRange(offset, 8); err != nil {
		t.mu.Unlock()
		return err
	}
	buffer.Wrap(t.data[offset:]).PutU64(v)
	t.mu.Unlock()
	t.markDirty()
	return nil
}

// GetInt64 reads a little-endian int64 at offset.
func (t *Tag) GetInt64(offset int) (int64, error) {
	v, err := t.GetUint64(offset)
	return int64(v), err
}

// SetInt64 writes a little-endian int64 at offset.
func (t *Tag) SetInt64(offset int, v int64) error { return t.SetUint64(offset, uint64(v)) }

// GetFloat32 reads a little-endian IEEE 754 float at offset.
func (t *Tag) GetFloat32(offset int) (float32, error) {
	v, err := t.GetUint32(offset)
	return math.Float32frombits(v), err
}

// SetFloat32 writes a little-endian IEEE 754 float at offset.
func (t *Tag) SetFloat32(offset int, v float32) error {
	return t.SetUint32(offset, math.Float32bits(v))
}

// GetFloat64 reads a little-endian IEEE 754 double at offset.
func (t *Tag) GetFloat64(offset int) (float64, error) {
	v, err := t.GetUint64(offset)
	return math.Float64frombits(v), err
}

// SetFloat64 writes a little-endian IEEE 754 double at offset.
func (t *Tag) SetFloat64(offset int, v float64) error {
	return t.SetUint64(offset, math.Float64bits(v))
}

// GetBit reads a single bit addressed by absolute bit offset.
func (t *Tag) GetBit(bitOffset int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byteOff := bitOffset / 8
	if err := t.checkRange(byteOff, 1); err != nil {
		return false, err
	}
	return t.data[byteOff]&(1<<(bitOffset%8)) != 0, nil
}

// SetBit writes a single bit addressed by absolute bit offset.
func (t *Tag) SetBit(bitOffset int, v bool) error {
	t.mu.Lock()
	byteOff := bitOffset / 8
	if err := t.checkRange(byteOff, 1); err != nil {
		t.mu.Unlock()
		return err
	}
	mask := byte(1 << (bitOffset % 8))
	if v {
		t.data[byteOff] |= mask
	} else {
		t.data[byteOff] &^= mask
	}
	t.mu.Unlock()
	t.markDirty()
	return nil
}

// GetBlock copies raw bytes out of the tag buffer.
func (t *Tag) GetBlock(offset int, out []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkRange(offset, len(out)); err != nil {
		return err
	}
	copy(out, t.data[offset:])
	return nil
}

// SetBlock copies raw bytes into the tag buffer.
func (t *Tag) SetBlock(offset int, in []byte) error {
	t.mu.Lock()
	if err := t.checkRange(offset, len(in)); err != nil {
		t.mu.Unlock()
		return err
	}
	copy(t.data[offset:], in)
	t.mu.Unlock()
	t.markDirty()
	return nil
}

// String accessors operate on the tag's string-type descriptor: a
// count word of 1, 2, or 4 bytes followed by character data, with
// optional zero termination, byte swapping, and trailing padding.

// GetStringLength returns the current length count of the string at
// offset.
func (t *Tag) GetStringLength(offset int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stringLengthLocked(offset)
}

func (t *Tag) stringLengthLocked(offset int) (int, error) {
	d := t.opts.Str
	if err := t.checkRange(offset, d.CountWordBytes); err != nil {
		return 0, err
	}
	v := buffer.Wrap(t.data[offset:])
	switch d.CountWordBytes {
	case 1:
		return int(v.GetU8()), nil
	case 2:
		return int(v.GetU16()), nil
	case 4:
		return int(v.GetU32()), nil
	}
	return 0, plcerr.Newf(plcerr.BadConfig, "tag: unsupported string count word size %d", d.CountWordBytes)
}

// GetStringCapacity returns the maximum character capacity.
func (t *Tag) GetStringCapacity() int { return t.opts.Str.MaxCapacity }

// GetStringTotalLength returns the total bytes one string element
// occupies in the tag buffer.
func (t *Tag) GetStringTotalLength() int { return t.opts.Str.TotalLength }

// GetString decodes the string at offset per the descriptor.
func (t *Tag) GetString(offset int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.opts.Str
	n, err := t.stringLengthLocked(offset)
	if err != nil {
		return "", err
	}
	if n > d.MaxCapacity {
		n = d.MaxCapacity
	}
	start := offset + d.CountWordBytes
	if err := t.checkRange(start, n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	copy(raw, t.data[start:start+n])
	if d.IsByteSwapped {
		swapPairs(raw)
	}
	if d.IsZeroTerm {
		for i, c := range raw {
			if c == 0 {
				raw = raw[:i]
				break
			}
		}
	}
	return string(raw), nil
}

// SetString encodes s at offset per the descriptor and marks the tag
// dirty.
func (t *Tag) SetString(offset int, s string) error {
	t.mu.Lock()
	d := t.opts.Str
	if len(s) > d.MaxCapacity {
		t.mu.Unlock()
		return plcerr.Newf(plcerr.TooLarge, "tag: string length %d exceeds capacity %d", len(s), d.MaxCapacity)
	}
	total := d.TotalLength
	if total <= 0 {
		total = d.CountWordBytes + d.MaxCapacity + d.PadBytes
	}
	if err := t.checkRange(offset, total); err != nil {
		t.mu.Unlock()
		return err
	}

	v := buffer.Wrap(t.data[offset:])
	switch d.CountWordBytes {
	case 1:
		v.PutU8(uint8(len(s)))
	case 2:
		v.PutU16(uint16(len(s)))
	case 4:
		v.PutU32(uint32(len(s)))
	default:
		t.mu.Unlock()
		return plcerr.Newf(plcerr.BadConfig, "tag: unsupported string count word size %d", d.CountWordBytes)
	}

	area := t.data[offset+d.CountWordBytes : offset+total]
	for i := range area {
		area[i] = 0
	}
	raw := []byte(s)
	if d.IsByteSwapped {
		padded := make([]byte, (len(raw)+1)&^1)
		copy(padded, raw)
		swapPairs(padded)
		raw = padded
	}
	copy(area, raw)
	t.mu.Unlock()
	t.markDirty()
	return nil
}

func swapPairs(b []byte) {
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
}
