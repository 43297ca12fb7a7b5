package cip

import (
	"fmt"

	"github.com/libplctag/libplctag-sub000/buffer"
)

// SvcMultipleServicePacket batches several CIP sub-requests into one
// request/reply exchange through the Message Router.
const SvcMultipleServicePacket byte = 0x0A

// MaxMultiServiceRequests is a hard backstop on the number of
// sub-requests packed into one Multiple Service Packet; the request
// packer's byte-budget check is the primary bound.
const MaxMultiServiceRequests = 200

// MultiServiceRequest is one sub-request inside a Multiple Service
// Packet.
type MultiServiceRequest struct {
	Service byte
	Path    EPath_t
	Data    []byte
}

func (r *MultiServiceRequest) encodedLen() int {
	return 2 + len(r.Path) + len(r.Data)
}

// BuildMultipleServiceRequest encodes the sub-request list as the MSP
// service data: count, offset table, then the concatenated
// sub-requests. Offsets are relative to the count word.
func BuildMultipleServiceRequest(requests []MultiServiceRequest) ([]byte, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("MultipleService: no requests provided")
	}
	if len(requests) > MaxMultiServiceRequests {
		return nil, fmt.Errorf("MultipleService: too many requests (%d), max %d", len(requests), MaxMultiServiceRequests)
	}

	total := 2 + 2*len(requests)
	offsets := make([]uint16, len(requests))
	for i := range requests {
		offsets[i] = uint16(total)
		total += requests[i].encodedLen()
	}

	w := buffer.New(total)
	w.PutU16(uint16(len(requests)))
	for _, off := range offsets {
		w.PutU16(off)
	}
	for i := range requests {
		w.PutU8(requests[i].Service)
		w.PutU8(requests[i].Path.WordLen())
		w.PutBytes(requests[i].Path)
		w.PutBytes(requests[i].Data)
	}
	if w.Err() {
		return nil, fmt.Errorf("MultipleService: encoding overflow")
	}
	return w.Bytes(), nil
}

// MultiServiceResponse is one decoded sub-reply.
type MultiServiceResponse struct {
	Service   byte   // reply service (request | 0x80)
	Status    byte   // general status
	ExtStatus []byte // raw extended status words
	Data      []byte
}

// ParseMultipleServiceResponse decodes the MSP reply service data into
// per-sub-request responses. A truncated slot yields a zero-valued
// entry rather than failing the whole packet, keeping sub-request
// errors isolated.
func ParseMultipleServiceResponse(data []byte) ([]MultiServiceResponse, error) {
	r := buffer.Wrap(data)
	if r.Len() < 2 {
		return nil, fmt.Errorf("MultipleService response too short: %d bytes", r.Len())
	}
	count := int(r.GetU16())
	if count == 0 {
		return nil, nil
	}
	if r.Len() < 2+count*2 {
		return nil, fmt.Errorf("MultipleService response too short for %d services", count)
	}
	offsets := make([]int, count)
	for i := range offsets {
		offsets[i] = int(r.GetU16())
	}

	out := make([]MultiServiceResponse, count)
	for i := range out {
		start := offsets[i]
		end := len(data)
		if i+1 < count {
			end = offsets[i+1]
		}
		if start < 0 || start+4 > end || end > len(data) {
			continue
		}
		sub := data[start:end]
		resp := MultiServiceResponse{Service: sub[0], Status: sub[2]}
		extBytes := int(sub[3]) * 2
		if extBytes > 0 && 4+extBytes <= len(sub) {
			resp.ExtStatus = sub[4 : 4+extBytes]
		}
		if 4+extBytes < len(sub) {
			resp.Data = sub[4+extBytes:]
		}
		out[i] = resp
	}
	return out, nil
}
