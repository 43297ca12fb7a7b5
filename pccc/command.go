package pccc

import (
	"encoding/binary"
	"fmt"

	"github.com/libplctag/libplctag-sub000/cip"
	"github.com/libplctag/libplctag-sub000/plcerr"
)

// CIP encapsulation of PCCC.
const (
	// CipClassPCCC is the CIP class for the PCCC Object (service 0x4B
	// Execute PCCC is sent to class 0x67, instance 1).
	CipClassPCCC byte = 0x67

	// CipSvcExecutePCCCReply is the reply service code (0x4B | 0x80).
	CipSvcExecutePCCCReply byte = 0xCB
)

// PCCC command codes.
const (
	// CmdTypedCommand is the command code for typed read/write operations.
	CmdTypedCommand byte = 0x0F

	// CmdTypedReply is the reply bit ORed with the command code.
	CmdTypedReply byte = 0x4F // 0x0F | 0x40

	// CmdDiagnosticStatus is the Diagnostic Status command (no FNC byte).
	// Returns processor catalog string and status information.
	CmdDiagnosticStatus byte = 0x06

	// CmdDiagnosticReply is the reply to Diagnostic Status.
	CmdDiagnosticReply byte = 0x46 // 0x06 | 0x40
)

// PCCC function codes for typed commands (CMD=0x0F).
const (
	// FncProtectedTypedLogicalRead reads data using 3-address-field format.
	// Used by SLC500 and MicroLogix.
	FncProtectedTypedLogicalRead byte = 0xA2

	// FncProtectedTypedLogicalWrite writes data using 3-address-field format.
	// Used by SLC500 and MicroLogix.
	FncProtectedTypedLogicalWrite byte = 0xAA

	// FncTypedRead is the PLC-5 typed read function.
	FncTypedRead byte = 0x68

	// FncTypedWrite is the PLC-5 typed write function.
	FncTypedWrite byte = 0x67

	// FncReadSection reads a section of a data file (file directory discovery).
	FncReadSection byte = 0xA1
)

// PCCC status codes (STS byte in response). The high nibble carries the
// error class; 0xF0 means an extended status byte follows the TNS.
const (
	StsSuccess        byte = 0x00
	StsIllegalCommand byte = 0x10
	StsHostProblem    byte = 0x20
	StsRemoteProblem  byte = 0x30
	StsHardwareFault  byte = 0x40
	StsAddressProblem byte = 0x50
	StsFunctionNA     byte = 0x60
	StsTargetProblem  byte = 0x70
	StsTypesMismatch  byte = 0x80
	StsDataFieldError byte = 0x90
	StsAccessDenied   byte = 0xA0
	StsNoFunctionErr  byte = 0xB0
	StsDataConvErr    byte = 0xC0
	StsScnrSuspError  byte = 0xD0
	StsNotCompatible  byte = 0xE0
	StsExtStatusFlag  byte = 0xF0
)

// PCCC extended status codes (EXT_STS byte, when STS has the 0xF0 flag).
const (
	ExtStsNotAllowed            byte = 0x01
	ExtStsPrivilegeViolation    byte = 0x02
	ExtStsNotExecuted           byte = 0x03
	ExtStsBadIOSAddress         byte = 0x04
	ExtStsParamOutOfRange       byte = 0x05
	ExtStsAddressFieldShort     byte = 0x06
	ExtStsAddressNotExist       byte = 0x07
	ExtStsDataFieldShort        byte = 0x08
	ExtStsInsufficientDataField byte = 0x09
	ExtStsFileNumberNotExist    byte = 0x0C
	ExtStsWrongFileType         byte = 0x0F
	ExtStsElementOutOfRange     byte = 0x10
	ExtStsSubElementOutOfRange  byte = 0x11
	ExtStsFileAccessDenied      byte = 0x12
	ExtStsAccessDenied          byte = 0x13
)

// RequesterIDLength is the fixed requester ID length for PCCC-over-CIP:
// 1-byte length + 2-byte vendor ID + 4-byte serial number = 7 bytes.
const RequesterIDLength byte = 7

// MaxTransferBytes is the bounded per-command payload for a single PCCC
// typed read or write. Larger transfers are split into sequential
// commands by the fragmentation engine.
const MaxTransferBytes = 240

// BuildReadRequest builds a PCCC typed logical read for byteCount bytes
// starting at addr, wrapped in a CIP Execute PCCC request. For SLC500
// and MicroLogix the function is Protected Typed Logical Read (0xA2);
// PLC5 uses Typed Read (0x68), selected by plc5.
//
// PCCC command format:
//
//	[CMD:1] [STS:1] [TNS:2 LE] [FNC:1] [ByteSize] [FileNumber] [FileType] [Element] [SubElement]
//
// Each address field uses compact encoding: values 0-254 as a single
// byte, values 255+ as 0xFF followed by a 2-byte little-endian value.
func BuildReadRequest(addr *Address, byteCount int, tns uint16, plc5 bool, vendorID uint16, serialNum uint32) ([]byte, error) {
	if byteCount <= 0 || byteCount > MaxTransferBytes {
		return nil, plcerr.Newf(plcerr.TooLarge, "pccc: read size %d out of range (1..%d)", byteCount, MaxTransferBytes)
	}
	fnc := FncProtectedTypedLogicalRead
	if plc5 {
		fnc = FncTypedRead
	}
	cmd := buildHeader(CmdTypedCommand, tns, fnc)
	cmd = appendCompactValue(cmd, uint16(byteCount))
	cmd = appendCompactValue(cmd, addr.FileNumber)
	cmd = append(cmd, addr.FileType)
	cmd = appendCompactValue(cmd, addr.Element)
	cmd = appendCompactValue(cmd, addr.SubElement)
	return WrapExecutePCCC(cmd, vendorID, serialNum)
}

// BuildWriteRequest builds a PCCC typed logical write of data at addr,
// wrapped in a CIP Execute PCCC request (SLC FNC 0xAA, PLC5 FNC 0x67).
func BuildWriteRequest(addr *Address, data []byte, tns uint16, plc5 bool, vendorID uint16, serialNum uint32) ([]byte, error) {
	if len(data) == 0 || len(data) > MaxTransferBytes {
		return nil, plcerr.Newf(plcerr.TooLarge, "pccc: write size %d out of range (1..%d)", len(data), MaxTransferBytes)
	}
	fnc := FncProtectedTypedLogicalWrite
	if plc5 {
		fnc = FncTypedWrite
	}
	cmd := buildHeader(CmdTypedCommand, tns, fnc)
	cmd = appendCompactValue(cmd, uint16(len(data)))
	cmd = appendCompactValue(cmd, addr.FileNumber)
	cmd = append(cmd, addr.FileType)
	cmd = appendCompactValue(cmd, addr.Element)
	cmd = appendCompactValue(cmd, addr.SubElement)
	cmd = append(cmd, data...)
	return WrapExecutePCCC(cmd, vendorID, serialNum)
}

// buildHeader creates the common PCCC command header:
// [CMD:1] [STS:1=0x00] [TNS:2 LE] [FNC:1].
func buildHeader(cmd byte, tns uint16, fnc byte) []byte {
	header := make([]byte, 0, 5)
	header = append(header, cmd)
	header = append(header, 0x00)
	header = binary.LittleEndian.AppendUint16(header, tns)
	header = append(header, fnc)
	return header
}

// appendCompactValue appends a value using PCCC compact encoding.
func appendCompactValue(buf []byte, value uint16) []byte {
	if value < 255 {
		return append(buf, byte(value))
	}
	buf = append(buf, 0xFF)
	return binary.LittleEndian.AppendUint16(buf, value)
}

// takeCompactValue reads a compact-encoded value off the front of data
// (server-side decode) and returns the remainder.
func takeCompactValue(data []byte) (value uint16, rest []byte, err error) {
	if len(data) < 1 {
		return 0, nil, plcerr.New(plcerr.BadData, "pccc: truncated compact value")
	}
	if data[0] != 0xFF {
		return uint16(data[0]), data[1:], nil
	}
	if len(data) < 3 {
		return 0, nil, plcerr.New(plcerr.BadData, "pccc: truncated extended compact value")
	}
	return binary.LittleEndian.Uint16(data[1:3]), data[3:], nil
}

// WrapExecutePCCC wraps a raw PCCC command in a CIP Execute PCCC
// request:
//
//	[Service:0x4B] [PathSize] [Path: class 0x67, instance 1]
//	[RequesterIDLen:7] [VendorID:2 LE] [SerialNum:4 LE]
//	[PCCC command bytes...]
func WrapExecutePCCC(pcccPayload []byte, vendorID uint16, serialNum uint32) ([]byte, error) {
	path, err := cip.EPath().Class(CipClassPCCC).Instance(1).Build()
	if err != nil {
		return nil, fmt.Errorf("pccc: failed to build PCCC Object path: %w", err)
	}

	req := make([]byte, 0, 2+len(path)+7+len(pcccPayload))
	req = append(req, cip.SvcExecutePCCC)
	req = append(req, path.WordLen())
	req = append(req, path...)

	req = append(req, RequesterIDLength)
	req = binary.LittleEndian.AppendUint16(req, vendorID)
	req = binary.LittleEndian.AppendUint32(req, serialNum)

	req = append(req, pcccPayload...)
	return req, nil
}

// UnwrapExecutePCCCResponse parses a CIP Execute PCCC response and
// returns the embedded raw PCCC response bytes (CMD/STS/TNS onward).
//
// CIP response format:
//
//	[ReplyService:0xCB] [Reserved:1] [Status:1] [AddlStatusSize:1] [AddlStatus...]
//	[RequesterIDLen] [VendorID:2] [SerialNum:4]
//	[PCCC response bytes...]
func UnwrapExecutePCCCResponse(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, plcerr.Newf(plcerr.BadReply, "pccc: CIP response too short: %d bytes", len(data))
	}

	replyService := data[0]
	status := data[2]
	addlStatusSize := data[3]

	if replyService != CipSvcExecutePCCCReply {
		return nil, plcerr.Newf(plcerr.BadReply, "pccc: unexpected CIP reply service 0x%02X (expected 0x%02X)", replyService, CipSvcExecutePCCCReply)
	}

	if status != 0 {
		if addlStatusSize >= 1 && len(data) >= 6 {
			extStatus := binary.LittleEndian.Uint16(data[4:6])
			return nil, plcerr.Newf(plcerr.BadStatus, "pccc: CIP Execute PCCC error: status=0x%02X (%s), extended=0x%04X", status, cip.StatusName(status), extStatus)
		}
		return nil, plcerr.Newf(plcerr.BadStatus, "pccc: CIP Execute PCCC error: status=0x%02X (%s)", status, cip.StatusName(status))
	}

	payloadStart := 4 + int(addlStatusSize)*2
	if payloadStart >= len(data) {
		return nil, plcerr.New(plcerr.NoData, "pccc: CIP response has no PCCC payload")
	}
	payload := data[payloadStart:]

	if len(payload) < 1 {
		return nil, plcerr.New(plcerr.BadReply, "pccc: CIP response missing requester ID")
	}
	idLen := int(payload[0])
	if len(payload) < idLen {
		return nil, plcerr.New(plcerr.BadReply, "pccc: CIP response requester ID truncated")
	}
	return payload[idLen:], nil
}

// ParseReadResponse parses the PCCC response to a typed read command and
// returns the data payload.
//
// Success:  [CMD:1 = 0x4F] [STS:1 = 0x00] [TNS:2 LE] [Data...]
// Failure:  [CMD:1 = 0x4F] [STS:1 with 0xF0] [TNS:2 LE] [EXT_STS:1]
func ParseReadResponse(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, plcerr.Newf(plcerr.BadReply, "pccc: response too short: %d bytes", len(data))
	}
	if data[0] != CmdTypedReply {
		return nil, plcerr.Newf(plcerr.BadReply, "pccc: unexpected reply command 0x%02X (expected 0x%02X)", data[0], CmdTypedReply)
	}
	if sts := data[1]; sts != StsSuccess {
		var extSts byte
		if sts&0xF0 == 0xF0 && len(data) >= 5 {
			extSts = data[4]
		}
		return nil, StatusError(sts, extSts)
	}
	return data[4:], nil
}

// ParseWriteResponse parses the PCCC response to a typed write command.
// The response carries no data payload on success.
func ParseWriteResponse(data []byte) error {
	if len(data) < 4 {
		return plcerr.Newf(plcerr.BadReply, "pccc: response too short: %d bytes", len(data))
	}
	if data[0] != CmdTypedReply {
		return plcerr.Newf(plcerr.BadReply, "pccc: unexpected reply command 0x%02X (expected 0x%02X)", data[0], CmdTypedReply)
	}
	if sts := data[1]; sts != StsSuccess {
		var extSts byte
		if sts&0xF0 == 0xF0 && len(data) >= 5 {
			extSts = data[4]
		}
		return StatusError(sts, extSts)
	}
	return nil
}

// Command is a decoded PCCC typed command, the server-side view of what
// BuildReadRequest/BuildWriteRequest produce.
type Command struct {
	Cmd        byte
	Sts        byte
	Tns        uint16
	Fnc        byte
	ByteCount  uint16
	FileNumber uint16
	FileType   byte
	Element    uint16
	SubElement uint16
	Data       []byte // write payload, nil for reads
}

// IsRead reports whether the decoded function is a read variant.
func (c *Command) IsRead() bool {
	return c.Fnc == FncProtectedTypedLogicalRead || c.Fnc == FncTypedRead
}

// IsWrite reports whether the decoded function is a write variant.
func (c *Command) IsWrite() bool {
	return c.Fnc == FncProtectedTypedLogicalWrite || c.Fnc == FncTypedWrite
}

// ParseCommand decodes a raw PCCC typed command (after the CIP Execute
// PCCC requester ID has been stripped). Used by the test PLC server.
func ParseCommand(raw []byte) (*Command, error) {
	if len(raw) < 5 {
		return nil, plcerr.Newf(plcerr.BadData, "pccc: command too short: %d bytes", len(raw))
	}
	c := &Command{
		Cmd: raw[0],
		Sts: raw[1],
		Tns: binary.LittleEndian.Uint16(raw[2:4]),
		Fnc: raw[4],
	}
	if c.Cmd != CmdTypedCommand {
		return nil, plcerr.Newf(plcerr.Unsupported, "pccc: unsupported command 0x%02X", c.Cmd)
	}

	rest := raw[5:]
	var err error
	if c.ByteCount, rest, err = takeCompactValue(rest); err != nil {
		return nil, err
	}
	if c.FileNumber, rest, err = takeCompactValue(rest); err != nil {
		return nil, err
	}
	if len(rest) < 1 {
		return nil, plcerr.New(plcerr.BadData, "pccc: truncated file type")
	}
	c.FileType = rest[0]
	rest = rest[1:]
	if c.Element, rest, err = takeCompactValue(rest); err != nil {
		return nil, err
	}
	if c.SubElement, rest, err = takeCompactValue(rest); err != nil {
		return nil, err
	}

	if c.IsWrite() {
		c.Data = rest
		if len(c.Data) != int(c.ByteCount) {
			return nil, plcerr.Newf(plcerr.BadData, "pccc: write payload %d bytes, header says %d", len(c.Data), c.ByteCount)
		}
	}
	return c, nil
}

// BuildReply builds a raw PCCC typed reply for a decoded command: the
// server-side inverse of ParseReadResponse/ParseWriteResponse. A
// non-zero sts of 0xF0 carries extSts after the TNS.
func (c *Command) BuildReply(sts byte, extSts byte, data []byte) []byte {
	out := make([]byte, 0, 5+len(data))
	out = append(out, c.Cmd|0x40)
	out = append(out, sts)
	out = binary.LittleEndian.AppendUint16(out, c.Tns)
	if sts&0xF0 == 0xF0 {
		out = append(out, extSts)
		return out
	}
	out = append(out, data...)
	return out
}

// StatusError converts a PCCC status pair into the error taxonomy's
// RemoteErr kind, preserving the remote code in the message.
func StatusError(sts byte, extSts byte) error {
	name := statusName(sts)
	if sts&0xF0 == 0xF0 && extSts != 0 {
		return plcerr.Newf(plcerr.RemoteErr, "pccc: %s (STS=0x%02X), extended: %s (EXT_STS=0x%02X)",
			name, sts, extStatusName(extSts), extSts)
	}
	return plcerr.Newf(plcerr.RemoteErr, "pccc: %s (STS=0x%02X)", name, sts)
}

func statusName(sts byte) string {
	switch sts & 0xF0 {
	case 0x00:
		return "Success"
	case 0x10:
		return "Illegal Command or Format"
	case 0x20:
		return "Host has a Problem"
	case 0x30:
		return "Remote Node has a Problem"
	case 0x40:
		return "Hardware Fault"
	case 0x50:
		return "Address Problem"
	case 0x60:
		return "Function Not Allowed"
	case 0x70:
		return "Target Node Problem"
	case 0x80:
		return "Command Parameter Types Mismatch"
	case 0x90:
		return "Data Field Error"
	case 0xA0:
		return "Access Denied"
	case 0xB0:
		return "No Function Error"
	case 0xC0:
		return "Data Conversion Error"
	case 0xD0:
		return "Scanner Suspended Error"
	case 0xE0:
		return "Not Compatible"
	case 0xF0:
		return "Extended Status"
	default:
		return fmt.Sprintf("Unknown Status 0x%02X", sts)
	}
}

func extStatusName(extSts byte) string {
	switch extSts {
	case ExtStsNotAllowed:
		return "Not Allowed"
	case ExtStsPrivilegeViolation:
		return "Privilege Violation"
	case ExtStsNotExecuted:
		return "Not Executed"
	case ExtStsBadIOSAddress:
		return "Bad IOS Address"
	case ExtStsParamOutOfRange:
		return "Parameter Out of Range"
	case ExtStsAddressFieldShort:
		return "Address Field Too Short"
	case ExtStsAddressNotExist:
		return "Address Does Not Exist"
	case ExtStsDataFieldShort:
		return "Data Field Too Short"
	case ExtStsInsufficientDataField:
		return "Insufficient Data Field"
	case ExtStsFileNumberNotExist:
		return "File Number Does Not Exist"
	case ExtStsWrongFileType:
		return "Wrong File Type"
	case ExtStsElementOutOfRange:
		return "Element Out of Range"
	case ExtStsSubElementOutOfRange:
		return "Sub-Element Out of Range"
	case ExtStsFileAccessDenied:
		return "File Access Denied"
	case ExtStsAccessDenied:
		return "Access Denied"
	default:
		return fmt.Sprintf("Extended Status 0x%02X", extSts)
	}
}
