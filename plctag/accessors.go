package plctag

import (
	"github.com/libplctag/libplctag-sub000/plcerr"
	"github.com/libplctag/libplctag-sub000/tag"
)

// The scalar accessors return (value, status). A status < 0 means the
// read failed (unknown id, offset out of bounds); the value is then
// the type's zero.

func statusOf(err error) int {
	if err == nil {
		return StatusOK
	}
	return plcerr.KindOf(err).Code()
}

// GetBit reads a single bit at an absolute bit offset.
func GetBit(id, bitOffset int) (bool, int) {
	t, err := lookupTag(id)
	if err != nil {
		return false, statusOf(err)
	}
	v, err := t.GetBit(bitOffset)
	return v, statusOf(err)
}

// SetBit writes a single bit at an absolute bit offset.
func SetBit(id, bitOffset int, v bool) int {
	t, err := lookupTag(id)
	if err != nil {
		return statusOf(err)
	}
	return statusOf(t.SetBit(bitOffset, v))
}

// GetInt8 reads a signed byte at offset.
func GetInt8(id, offset int) (int8, int) {
	t, err := lookupTag(id)
	if err != nil {
		return 0, statusOf(err)
	}
	v, err := t.GetInt8(offset)
	return v, statusOf(err)
}

// SetInt8 writes a signed byte at offset.
func SetInt8(id, offset int, v int8) int {
	t, err := lookupTag(id)
	if err != nil {
		return statusOf(err)
	}
	return statusOf(t.SetInt8(offset, v))
}

// GetUint8 reads a byte at offset.
func GetUint8(id, offset int) (uint8, int) {
	t, err := lookupTag(id)
	if err != nil {
		return 0, statusOf(err)
	}
	v, err := t.GetUint8(offset)
	return v, statusOf(err)
}

// SetUint8 writes a byte at offset.
func SetUint8(id, offset int, v uint8) int {
	t, err := lookupTag(id)
	if err != nil {
		return statusOf(err)
	}
	return statusOf(t.SetUint8(offset, v))
}

// GetInt16 reads a little-endian int16 at offset.
func GetInt16(id, offset int) (int16, int) {
	t, err := lookupTag(id)
	if err != nil {
		return 0, statusOf(err)
	}
	v, err := t.GetInt16(offset)
	return v, statusOf(err)
}

// SetInt16 writes a little-endian int16 at offset.
func SetInt16(id, offset int, v int16) int {
	t, err := lookupTag(id)
	if err != nil {
		return statusOf(err)
	}
	return statusOf(t.SetInt16(offset, v))
}

// GetUint16 reads a little-endian uint16 at offset.
func GetUint16(id, offset int) (uint16, int) {
	t, err := lookupTag(id)
	if err != nil {
		return 0, statusOf(err)
	}
	v, err := t.GetUint16(offset)
	return v, statusOf(err)
}

// SetUint16 writes a little-endian uint16 at offset.
func SetUint16(id, offset int, v uint16) int {
	t, err := lookupTag(id)
	if err != nil {
		return statusOf(err)
	}
	return statusOf(t.SetUint16(offset, v))
}

// GetInt32 reads a little-endian int32 at offset.
func GetInt32(id, offset int) (int32, int) {
	t, err := lookupTag(id)
	if err != nil {
		return 0, statusOf(err)
	}
	v, err := t.GetInt32(offset)
	return v, statusOf(err)
}

// SetInt32 writes a little-endian int32 at offset.
func SetInt32(id, offset int, v int32) int {
	t, err := lookupTag(id)
	if err != nil {
		return statusOf(err)
	}
	return statusOf(t.SetInt32(offset, v))
}

// GetUint32 reads a little-endian uint32 at offset. Library tags
// (debug) support this accessor too.
func GetUint32(id, offset int) (uint32, int) {
	e, err := lookup(id)
	if err != nil {
		return 0, statusOf(err)
	}
	if e.lib != nil {
		v, lerr := e.lib.getU32(offset)
		return v, statusOf(lerr)
	}
	v, err := e.t.GetUint32(offset)
	return v, statusOf(err)
}

// SetUint32 writes a little-endian uint32 at offset. Writing a library
// tag's buffer stages the value for its Write call.
func SetUint32(id, offset int, v uint32) int {
	e, err := lookup(id)
	if err != nil {
		return statusOf(err)
	}
	if e.lib != nil {
		return statusOf(e.lib.setU32(offset, v))
	}
	return statusOf(e.t.SetUint32(offset, v))
}

// GetInt64 reads a little-endian int64 at offset.
func GetInt64(id, offset int) (int64, int) {
	t, err := lookupTag(id)
	if err != nil {
		return 0, statusOf(err)
	}
	v, err := t.GetInt64(offset)
	return v, statusOf(err)
}

// SetInt64 writes a little-endian int64 at offset.
func SetInt64(id, offset int, v int64) int {
	t, err := lookupTag(id)
	if err != nil {
		return statusOf(err)
	}
	return statusOf(t.SetInt64(offset, v))
}

// GetUint64 reads a little-endian uint64 at offset.
func GetUint64(id, offset int) (uint64, int) {
	t, err := lookupTag(id)
	if err != nil {
		return 0, statusOf(err)
	}
	v, err := t.GetUint64(offset)
	return v, statusOf(err)
}

// SetUint64 writes a little-endian uint64 at offset.
func SetUint64(id, offset int, v uint64) int {
	t, err := lookupTag(id)
	if err != nil {
		return statusOf(err)
	}
	return statusOf(t.SetUint64(offset, v))
}

// GetFloat32 reads a little-endian IEEE 754 float at offset.
func GetFloat32(id, offset int) (float32, int) {
	t, err := lookupTag(id)
	if err != nil {
		return 0, statusOf(err)
	}
	v, err := t.GetFloat32(offset)
	return v, statusOf(err)
}

// SetFloat32 writes a little-endian IEEE 754 float at offset.
func SetFloat32(id, offset int, v float32) int {
	t, err := lookupTag(id)
	if err != nil {
		return statusOf(err)
	}
	return statusOf(t.SetFloat32(offset, v))
}

// GetFloat64 reads a little-endian IEEE 754 double at offset.
func GetFloat64(id, offset int) (float64, int) {
	t, err := lookupTag(id)
	if err != nil {
		return 0, statusOf(err)
	}
	v, err := t.GetFloat64(offset)
	return v, statusOf(err)
}

// SetFloat64 writes a little-endian IEEE 754 double at offset.
func SetFloat64(id, offset int, v float64) int {
	t, err := lookupTag(id)
	if err != nil {
		return statusOf(err)
	}
	return statusOf(t.SetFloat64(offset, v))
}

// GetBlock copies raw bytes from the tag buffer into out.
func GetBlock(id, offset int, out []byte) int {
	t, err := lookupTag(id)
	if err != nil {
		return statusOf(err)
	}
	return statusOf(t.GetBlock(offset, out))
}

// SetBlock copies raw bytes from in into the tag buffer.
func SetBlock(id, offset int, in []byte) int {
	t, err := lookupTag(id)
	if err != nil {
		return statusOf(err)
	}
	return statusOf(t.SetBlock(offset, in))
}

// GetString decodes the string at offset using the tag's string-type
// descriptor. Library tags return their full string content.
func GetString(id, offset int) (string, int) {
	e, err := lookup(id)
	if err != nil {
		return "", statusOf(err)
	}
	if e.lib != nil {
		return e.lib.getString(), StatusOK
	}
	v, err := e.t.GetString(offset)
	return v, statusOf(err)
}

// SetString encodes the string at offset using the tag's string-type
// descriptor.
func SetString(id, offset int, s string) int {
	t, err := lookupTag(id)
	if err != nil {
		return statusOf(err)
	}
	return statusOf(t.SetString(offset, s))
}

// GetStringLength returns the current length of the string at offset.
func GetStringLength(id, offset int) (int, int) {
	t, err := lookupTag(id)
	if err != nil {
		return 0, statusOf(err)
	}
	v, err := t.GetStringLength(offset)
	return v, statusOf(err)
}

// GetStringCapacity returns the maximum character capacity per the
// tag's string-type descriptor.
func GetStringCapacity(id int) (int, int) {
	t, err := lookupTag(id)
	if err != nil {
		return 0, statusOf(err)
	}
	return t.GetStringCapacity(), StatusOK
}

// GetStringTotalLength returns the total bytes one string element
// occupies.
func GetStringTotalLength(id int) (int, int) {
	t, err := lookupTag(id)
	if err != nil {
		return 0, statusOf(err)
	}
	return t.GetStringTotalLength(), StatusOK
}

// GetSize returns the tag data buffer length in bytes.
func GetSize(id int) (int, int) {
	e, err := lookup(id)
	if err != nil {
		return 0, statusOf(err)
	}
	if e.lib != nil {
		return e.lib.size(), StatusOK
	}
	return e.t.Size(), StatusOK
}

// GetTemplate returns the UDT member list decoded by the last
// successful read of a "@udt/<n>" tag handle.
func GetTemplate(id int) (*tag.Template, error) {
	t, err := lookupTag(id)
	if err != nil {
		return nil, err
	}
	return t.Template()
}

// TagState exposes the tag's lifecycle state for diagnostics.
func TagState(id int) (tag.State, int) {
	t, err := lookupTag(id)
	if err != nil {
		return tag.StateDestroyed, statusOf(err)
	}
	return t.State(), StatusOK
}
