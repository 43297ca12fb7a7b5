// Package cip implements the CIP service-frame layer: request/response
// framing, EPath segment encoding, Forward Open/Close connection
// management, and Multiple Service Packet batching. It sits inside the
// EtherNet/IP encapsulation and CPF layers implemented by package eip.
package cip

import (
	"fmt"

	"github.com/libplctag/libplctag-sub000/buffer"
)

// Well-known CIP service codes.
const (
	SvcGetAttributesAll      byte = 0x01
	SvcGetAttributesList     byte = 0x03
	SvcReadTag               byte = 0x4C
	SvcWriteTag              byte = 0x4D
	SvcReadTagFragmented     byte = 0x52
	SvcWriteTagFragmented    byte = 0x53
	SvcGetAttributeSingle    byte = 0x0E
	SvcGetInstanceAttrList   byte = 0x55
	SvcExecutePCCC           byte = 0x4B
	SvcNOP                   byte = 0x17
	ReplyFlag                byte = 0x80
)

// General status codes (response byte 2).
const (
	StatusSuccess           byte = 0x00
	StatusConnFailure       byte = 0x01
	StatusResourceShort     byte = 0x02
	StatusInvalidParam      byte = 0x03
	StatusPathSegErr        byte = 0x04
	StatusPathDestUnknown   byte = 0x05
	StatusPartialTransfer   byte = 0x06 // "more fragments follow" -- not an error
	StatusConnLost          byte = 0x07
	StatusServiceNotSup     byte = 0x08
	StatusInvalidAttrVal    byte = 0x09
	StatusAttrListErr       byte = 0x0A
	StatusAlreadyInReqState byte = 0x0B
	StatusObjStateConflict  byte = 0x0C
	StatusObjAlreadyExists  byte = 0x0D
	StatusAttrNotSettable   byte = 0x0E
	StatusPermissionDenied  byte = 0x0F
	StatusDeviceStateConfl  byte = 0x10
	StatusReplyTooLarge     byte = 0x11
	StatusFragPrimitive     byte = 0x12
	StatusNotEnoughData     byte = 0x13
	StatusAttrNotSupported  byte = 0x14
	StatusTooMuchData       byte = 0x15
	StatusObjDoesNotExist   byte = 0x16
	StatusNoFragData        byte = 0x17
	StatusInvalidMemberID   byte = 0x28
	StatusGeneralError      byte = 0xFF
)

// StatusName returns a human-readable name for a CIP general status byte,
// for use in error messages and the ambient logger.
func StatusName(status byte) string {
	switch status {
	case StatusSuccess:
		return "Success"
	case StatusConnFailure:
		return "Connection Failure"
	case StatusResourceShort:
		return "Resource Unavailable"
	case StatusInvalidParam:
		return "Invalid Parameter"
	case StatusPathSegErr:
		return "Path Segment Error"
	case StatusPathDestUnknown:
		return "Path Destination Unknown"
	case StatusPartialTransfer:
		return "Partial Transfer (more data follows)"
	case StatusConnLost:
		return "Connection Lost"
	case StatusServiceNotSup:
		return "Service Not Supported"
	case StatusInvalidAttrVal:
		return "Invalid Attribute Value"
	case StatusAttrListErr:
		return "Attribute List Error"
	case StatusAlreadyInReqState:
		return "Already in Requested Mode/State"
	case StatusObjStateConflict:
		return "Object State Conflict"
	case StatusObjAlreadyExists:
		return "Object Already Exists"
	case StatusAttrNotSettable:
		return "Attribute Not Settable"
	case StatusPermissionDenied:
		return "Permission Denied"
	case StatusDeviceStateConfl:
		return "Device State Conflict"
	case StatusReplyTooLarge:
		return "Reply Data Too Large"
	case StatusFragPrimitive:
		return "Fragmentation of a Primitive Value"
	case StatusNotEnoughData:
		return "Not Enough Data"
	case StatusAttrNotSupported:
		return "Attribute Not Supported"
	case StatusTooMuchData:
		return "Too Much Data"
	case StatusObjDoesNotExist:
		return "Object Does Not Exist"
	case StatusNoFragData:
		return "No Stored Fragment Data"
	case StatusInvalidMemberID:
		return "Invalid Member ID"
	case StatusGeneralError:
		return "General Error (see extended status)"
	default:
		return fmt.Sprintf("Unknown Status 0x%02X", status)
	}
}

// Request is a single CIP service request: service byte, path, and
// service-specific data.
type Request struct {
	Service byte
	Path    EPath_t
	Data    []byte
}

// Marshal encodes the request as service | path_words | path | data.
func (r Request) Marshal() []byte {
	w := buffer.New(2 + len(r.Path) + len(r.Data))
	w.PutU8(r.Service)
	w.PutU8(r.Path.WordLen())
	w.PutBytes(r.Path)
	w.PutBytes(r.Data)
	return w.Bytes()
}

// Response is a parsed CIP service response.
type Response struct {
	ReplyService     byte
	GeneralStatus    byte
	AdditionalStatus []uint16
	Data             []byte
}

// ParseResponse decodes a CIP response frame:
// replyService | reserved(0) | generalStatus | extStatusSize | extStatus... | data.
// A general status of StatusPartialTransfer is not treated as an error;
// the caller (the fragmentation engine) checks for it explicitly.
func ParseResponse(data []byte) (*Response, error) {
	r := buffer.Wrap(data)
	if r.Len() < 4 {
		return nil, fmt.Errorf("cip: response too short: %d bytes", r.Len())
	}
	resp := &Response{}
	resp.ReplyService = r.GetU8()
	_ = r.GetU8() // reserved
	resp.GeneralStatus = r.GetU8()
	extWords := r.GetU8()
	if int(extWords) > 0 {
		resp.AdditionalStatus = make([]uint16, extWords)
		for i := range resp.AdditionalStatus {
			resp.AdditionalStatus[i] = r.GetU16()
		}
	}
	if r.Err() {
		return nil, fmt.Errorf("cip: malformed response header")
	}
	resp.Data = data[r.Pos():]
	return resp, nil
}

// IsFatal reports whether the response's general status represents a
// real error rather than the benign "more fragments follow" signal.
func (resp *Response) IsFatal() bool {
	return resp.GeneralStatus != StatusSuccess && resp.GeneralStatus != StatusPartialTransfer
}
