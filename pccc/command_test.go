package pccc

import (
	"bytes"
	"testing"

	"github.com/libplctag/libplctag-sub000/plcerr"
)

func TestParseAddressInteger(t *testing.T) {
	a, err := ParseAddress("N7:0")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if a.FileType != FileTypeInteger || a.FileNumber != 7 || a.Element != 0 {
		t.Fatalf("unexpected address: %+v", a)
	}
	if a.BitNumber != -1 {
		t.Errorf("BitNumber = %d, want -1", a.BitNumber)
	}
}

func TestParseAddressBit(t *testing.T) {
	a, err := ParseAddress("B3:4/5")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if a.FileType != FileTypeBinary || a.Element != 4 || a.BitNumber != 5 {
		t.Fatalf("unexpected address: %+v", a)
	}
}

func TestParseAddressTimerSub(t *testing.T) {
	a, err := ParseAddress("T4:0.ACC")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if a.SubElement != uint16(TimerACC) {
		t.Fatalf("SubElement = %d, want %d", a.SubElement, TimerACC)
	}
}

func TestBuildReadRequestRoundTrip(t *testing.T) {
	a, err := ParseAddress("N7:0")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	req, err := BuildReadRequest(a, 20, 0x1234, false, 0x1337, 42)
	if err != nil {
		t.Fatalf("BuildReadRequest failed: %v", err)
	}
	if req[0] != 0x4B {
		t.Fatalf("service byte = %#x, want 0x4B", req[0])
	}

	// Skip CIP service/path/requester-id to reach the raw PCCC command
	// the way the server does, then decode it.
	pathWords := int(req[1])
	pcccStart := 2 + pathWords*2
	idLen := int(req[pcccStart])
	raw := req[pcccStart+idLen:]

	cmd, err := ParseCommand(raw)
	if err != nil {
		t.Fatalf("ParseCommand failed: %v", err)
	}
	if !cmd.IsRead() {
		t.Errorf("IsRead() = false")
	}
	if cmd.ByteCount != 20 || cmd.FileNumber != 7 || cmd.FileType != FileTypeInteger || cmd.Element != 0 {
		t.Fatalf("decoded command mismatch: %+v", cmd)
	}
	if cmd.Tns != 0x1234 {
		t.Errorf("Tns = %#x, want 0x1234", cmd.Tns)
	}
}

func TestBuildWriteRequestRoundTrip(t *testing.T) {
	a, err := ParseAddress("N7:3")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	payload := []byte{0x34, 0x12}
	req, err := BuildWriteRequest(a, payload, 7, false, 0x1337, 42)
	if err != nil {
		t.Fatalf("BuildWriteRequest failed: %v", err)
	}

	pathWords := int(req[1])
	pcccStart := 2 + pathWords*2
	idLen := int(req[pcccStart])
	cmd, err := ParseCommand(req[pcccStart+idLen:])
	if err != nil {
		t.Fatalf("ParseCommand failed: %v", err)
	}
	if !cmd.IsWrite() {
		t.Errorf("IsWrite() = false")
	}
	if !bytes.Equal(cmd.Data, payload) {
		t.Fatalf("Data = %x, want %x", cmd.Data, payload)
	}
	if cmd.Element != 3 {
		t.Errorf("Element = %d, want 3", cmd.Element)
	}
}

func TestCompactValueLargeElement(t *testing.T) {
	a := &Address{FileType: FileTypeInteger, FileNumber: 7, Element: 300}
	req, err := BuildReadRequest(a, 2, 1, false, 0x1337, 42)
	if err != nil {
		t.Fatalf("BuildReadRequest failed: %v", err)
	}
	pathWords := int(req[1])
	pcccStart := 2 + pathWords*2
	idLen := int(req[pcccStart])
	cmd, err := ParseCommand(req[pcccStart+idLen:])
	if err != nil {
		t.Fatalf("ParseCommand failed: %v", err)
	}
	if cmd.Element != 300 {
		t.Fatalf("Element = %d, want 300 (compact 0xFF encoding)", cmd.Element)
	}
}

func TestBuildReplyAndParse(t *testing.T) {
	cmd := &Command{Cmd: CmdTypedCommand, Tns: 99, Fnc: FncProtectedTypedLogicalRead}
	reply := cmd.BuildReply(StsSuccess, 0, []byte{1, 2, 3, 4})
	data, err := ParseReadResponse(reply)
	if err != nil {
		t.Fatalf("ParseReadResponse failed: %v", err)
	}
	if !bytes.Equal(data, []byte{1, 2, 3, 4}) {
		t.Fatalf("data = %x", data)
	}
}

func TestBuildReplyError(t *testing.T) {
	cmd := &Command{Cmd: CmdTypedCommand, Tns: 99, Fnc: FncProtectedTypedLogicalRead}
	reply := cmd.BuildReply(StsExtStatusFlag, ExtStsAddressNotExist, nil)
	_, err := ParseReadResponse(reply)
	if err == nil {
		t.Fatalf("expected error for extended status reply")
	}
	if !plcerr.Is(err, plcerr.RemoteErr) {
		t.Errorf("error kind = %v, want RemoteErr", plcerr.KindOf(err))
	}
}

func TestReadSizeTooLarge(t *testing.T) {
	a := &Address{FileType: FileTypeInteger, FileNumber: 7}
	if _, err := BuildReadRequest(a, MaxTransferBytes+1, 1, false, 0, 0); err == nil {
		t.Fatalf("expected error for oversized read")
	}
}
