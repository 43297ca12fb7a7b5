// Package frag drives multi-part tag transfers: CIP Read/Write Tag
// Fragmented sequences for payloads larger than one reply, and bounded
// sequential PCCC transfers for data-table tags larger than one
// command's payload limit.
package frag

import (
	"encoding/binary"

	"github.com/libplctag/libplctag-sub000/cip"
	"github.com/libplctag/libplctag-sub000/plcerr"
)

// RequestOverhead is a conservative bound on the per-request CIP bytes
// (service, path, type, count, offset fields) that do not carry tag
// data, used when computing a write chunk size from the session payload
// budget.
const RequestOverhead = 64

// BuildRead marshals a plain Read Tag request for count elements.
func BuildRead(path cip.EPath_t, count uint16) []byte {
	data := binary.LittleEndian.AppendUint16(nil, count)
	return cip.Request{Service: cip.SvcReadTag, Path: path, Data: data}.Marshal()
}

// BuildReadFragment marshals a Read Tag Fragmented request continuing
// at byteOffset.
func BuildReadFragment(path cip.EPath_t, count uint16, byteOffset uint32) []byte {
	data := binary.LittleEndian.AppendUint16(nil, count)
	data = binary.LittleEndian.AppendUint32(data, byteOffset)
	return cip.Request{Service: cip.SvcReadTagFragmented, Path: path, Data: data}.Marshal()
}

// BuildWrite marshals a plain Write Tag request.
func BuildWrite(path cip.EPath_t, dataType uint16, count uint16, payload []byte) []byte {
	data := binary.LittleEndian.AppendUint16(nil, dataType)
	data = binary.LittleEndian.AppendUint16(data, count)
	data = append(data, payload...)
	return cip.Request{Service: cip.SvcWriteTag, Path: path, Data: data}.Marshal()
}

// BuildWriteFragment marshals a Write Tag Fragmented request carrying
// one chunk at byteOffset. count is the tag's total element count, not
// the chunk's.
func BuildWriteFragment(path cip.EPath_t, dataType uint16, count uint16, byteOffset uint32, chunk []byte) []byte {
	data := binary.LittleEndian.AppendUint16(nil, dataType)
	data = binary.LittleEndian.AppendUint16(data, count)
	data = binary.LittleEndian.AppendUint32(data, byteOffset)
	data = append(data, chunk...)
	return cip.Request{Service: cip.SvcWriteTagFragmented, Path: path, Data: data}.Marshal()
}

// ReadAssembler accumulates the fragments of a (possibly fragmented)
// read. Feed it each raw CIP response frame; it tracks the byte offset
// for the next fragment request and reports completion when a reply
// arrives with general status Success instead of PartialTransfer.
type ReadAssembler struct {
	buf      []byte
	dataType uint16
	typed    bool
	done     bool
}

// Add consumes one CIP response frame. It returns done=true when the
// transfer is complete, done=false when another fragment must be
// requested at Offset().
func (a *ReadAssembler) Add(frame []byte) (done bool, err error) {
	resp, err := cip.ParseResponse(frame)
	if err != nil {
		return false, err
	}
	if resp.IsFatal() {
		return false, cipStatusError(resp)
	}
	if len(resp.Data) < 2 {
		return false, plcerr.New(plcerr.NoData, "frag: read reply missing type word")
	}
	dt := binary.LittleEndian.Uint16(resp.Data[0:2])
	payload := resp.Data[2:]
	// Structured tags carry a two-byte template handle after the 0x02A0
	// type marker; it is not tag data.
	if dt == 0x02A0 && len(payload) >= 2 {
		payload = payload[2:]
	}
	if !a.typed {
		a.dataType = dt
		a.typed = true
	}
	a.buf = append(a.buf, payload...)
	a.done = resp.GeneralStatus == cip.StatusSuccess
	return a.done, nil
}

// Offset returns the byte offset the next Read Tag Fragmented request
// should carry.
func (a *ReadAssembler) Offset() uint32 { return uint32(len(a.buf)) }

// Bytes returns the accumulated payload.
func (a *ReadAssembler) Bytes() []byte { return a.buf }

// DataType returns the CIP type code from the first fragment.
func (a *ReadAssembler) DataType() uint16 { return a.dataType }

// Done reports whether the final fragment has arrived.
func (a *ReadAssembler) Done() bool { return a.done }

// ParseWriteReply checks a Write Tag (or fragment) response frame.
func ParseWriteReply(frame []byte) error {
	resp, err := cip.ParseResponse(frame)
	if err != nil {
		return err
	}
	if resp.IsFatal() {
		return cipStatusError(resp)
	}
	return nil
}

func cipStatusError(resp *cip.Response) error {
	if len(resp.AdditionalStatus) > 0 {
		return plcerr.Newf(plcerr.BadStatus, "frag: %s (status 0x%02X, extended 0x%04X)",
			cip.StatusName(resp.GeneralStatus), resp.GeneralStatus, resp.AdditionalStatus[0])
	}
	return plcerr.Newf(plcerr.BadStatus, "frag: %s (status 0x%02X)",
		cip.StatusName(resp.GeneralStatus), resp.GeneralStatus)
}

// Chunk is one contiguous byte range of a larger transfer.
type Chunk struct {
	Offset int
	Len    int
}

// Chunks splits a total of totalBytes into transfer chunks of at most
// chunkLimit bytes, aligned down to elemSize boundaries. All chunks but
// possibly the last are the same size. An elemSize <= 0 is treated as
// 1. An elemSize larger than the limit yields a single whole-transfer
// chunk; the caller's payload validation catches genuinely oversized
// elements.
func Chunks(totalBytes, chunkLimit, elemSize int) []Chunk {
	if totalBytes <= 0 {
		return nil
	}
	if elemSize <= 0 {
		elemSize = 1
	}
	if chunkLimit >= totalBytes {
		return []Chunk{{Offset: 0, Len: totalBytes}}
	}
	size := chunkLimit - chunkLimit%elemSize
	if size <= 0 {
		return []Chunk{{Offset: 0, Len: totalBytes}}
	}
	var out []Chunk
	for off := 0; off < totalBytes; off += size {
		n := size
		if off+n > totalBytes {
			n = totalBytes - off
		}
		out = append(out, Chunk{Offset: off, Len: n})
	}
	return out
}

// WriteChunkSize computes the data bytes one write request may carry
// given the session's client-to-server payload budget.
func WriteChunkSize(maxPayloadC2S int) int {
	n := maxPayloadC2S - RequestOverhead
	if n < 1 {
		n = 1
	}
	return n
}

// NeedsFragmentedWrite reports whether a write of totalBytes must use
// the fragmented service under the given payload budget.
func NeedsFragmentedWrite(totalBytes, maxPayloadC2S int) bool {
	return totalBytes > WriteChunkSize(maxPayloadC2S)
}
