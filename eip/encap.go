// Package eip implements the EtherNet/IP encapsulation layer (24-byte
// header framing over TCP) and the Common Packet Format used to carry
// CIP requests and replies inside SendRRData/SendUnitData.
package eip

import (
	"fmt"

	"github.com/libplctag/libplctag-sub000/buffer"
)

// Encapsulation command codes.
const (
	CmdNOP             uint16 = 0x0000
	CmdListServices    uint16 = 0x0004
	CmdListIdentity    uint16 = 0x0063
	CmdListInterfaces  uint16 = 0x0064
	CmdRegisterSession uint16 = 0x0065
	CmdUnregisterSess  uint16 = 0x0066
	CmdSendRRData      uint16 = 0x006F
	CmdSendUnitData    uint16 = 0x0070
)

// EncapHeaderLen is the fixed size of the EtherNet/IP encapsulation
// header that precedes every command's payload.
const EncapHeaderLen = 24

// Encap is one EtherNet/IP encapsulation frame: a fixed 24-byte header
// plus a variable-length payload.
type Encap struct {
	Command       uint16
	SessionHandle uint32
	Status        uint32
	Context       uint64
	Options       uint32
	Data          []byte
}

// Bytes serializes the frame, computing Length from len(Data).
func (e *Encap) Bytes() []byte {
	w := buffer.New(EncapHeaderLen + len(e.Data))
	w.PutU16(e.Command)
	w.PutU16(uint16(len(e.Data)))
	w.PutU32(e.SessionHandle)
	w.PutU32(e.Status)
	w.PutU64(e.Context)
	w.PutU32(e.Options)
	w.PutBytes(e.Data)
	return w.Bytes()
}

// ParseEncap decodes a full encapsulation frame (header + payload) from
// raw. The caller is responsible for having already read exactly
// EncapHeaderLen + length bytes (the session worker loop does this once
// it has peeked the length field).
func ParseEncap(raw []byte) (*Encap, error) {
	if len(raw) < EncapHeaderLen {
		return nil, fmt.Errorf("eip: encapsulation header too short: %d bytes", len(raw))
	}
	r := buffer.Wrap(raw)
	e := &Encap{}
	e.Command = r.GetU16()
	length := r.GetU16()
	e.SessionHandle = r.GetU32()
	e.Status = r.GetU32()
	e.Context = r.GetU64()
	e.Options = r.GetU32()
	if r.Err() {
		return nil, fmt.Errorf("eip: malformed encapsulation header")
	}
	if EncapHeaderLen+int(length) > len(raw) {
		return nil, fmt.Errorf("eip: frame length %d exceeds available %d bytes", length, len(raw)-EncapHeaderLen)
	}
	e.Data = raw[EncapHeaderLen : EncapHeaderLen+int(length)]
	return e, nil
}

// PeekLength reads just the length field (bytes 2-3) out of a header
// that may not be fully received yet, so the worker loop knows how many
// more bytes to wait for before calling ParseEncap.
func PeekLength(header []byte) (uint16, error) {
	if len(header) < 4 {
		return 0, fmt.Errorf("eip: need at least 4 bytes to peek length")
	}
	return buffer.Wrap(header).Sub(2, 2).GetU16(), nil
}

// CommandData is the interface_handle + router_timeout envelope that
// precedes the CPF item list inside SendRRData/SendUnitData payloads.
type CommandData struct {
	InterfaceHandle uint32
	Timeout         uint16
	Packet          []byte
}

// Bytes serializes the envelope followed by the raw CPF packet bytes.
func (c *CommandData) Bytes() []byte {
	w := buffer.New(6 + len(c.Packet))
	w.PutU32(c.InterfaceHandle)
	w.PutU16(c.Timeout)
	w.PutBytes(c.Packet)
	return w.Bytes()
}

// ParseCommandData splits the interface_handle/timeout envelope from the
// trailing CPF packet bytes.
func ParseCommandData(raw []byte) (*CommandData, error) {
	if len(raw) < 6 {
		return nil, fmt.Errorf("eip: command data too short: %d bytes, need 6", len(raw))
	}
	r := buffer.Wrap(raw)
	c := &CommandData{}
	c.InterfaceHandle = r.GetU32()
	c.Timeout = r.GetU16()
	c.Packet = raw[6:]
	return c, nil
}
