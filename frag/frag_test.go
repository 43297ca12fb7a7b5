package frag

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/libplctag/libplctag-sub000/cip"
)

func TestBuildReadRequests(t *testing.T) {
	path, _ := cip.EPath().Symbol("Big").Build()
	req := BuildRead(path, 2000)
	if req[0] != cip.SvcReadTag {
		t.Fatalf("service = %#x", req[0])
	}
	frag := BuildReadFragment(path, 2000, 480)
	if frag[0] != cip.SvcReadTagFragmented {
		t.Fatalf("service = %#x", frag[0])
	}
	// Count then offset trail the path.
	tail := frag[len(frag)-6:]
	if binary.LittleEndian.Uint16(tail[0:2]) != 2000 {
		t.Errorf("count = %d", binary.LittleEndian.Uint16(tail[0:2]))
	}
	if binary.LittleEndian.Uint32(tail[2:6]) != 480 {
		t.Errorf("offset = %d", binary.LittleEndian.Uint32(tail[2:6]))
	}
}

func frameWith(status byte, payload []byte) []byte {
	frame := []byte{cip.SvcReadTagFragmented | cip.ReplyFlag, 0x00, status, 0x00, 0xC4, 0x00}
	return append(frame, payload...)
}

func TestReadAssemblerAccumulates(t *testing.T) {
	var a ReadAssembler
	first := bytes.Repeat([]byte{0xAA}, 480)
	done, err := a.Add(frameWith(cip.StatusPartialTransfer, first))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if done {
		t.Fatalf("done after partial transfer")
	}
	if a.Offset() != 480 {
		t.Fatalf("Offset = %d, want 480", a.Offset())
	}

	second := bytes.Repeat([]byte{0xBB}, 20)
	done, err = a.Add(frameWith(cip.StatusSuccess, second))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !done || !a.Done() {
		t.Fatalf("not done after success status")
	}
	if len(a.Bytes()) != 500 {
		t.Fatalf("assembled %d bytes, want 500", len(a.Bytes()))
	}
	if a.DataType() != 0xC4 {
		t.Errorf("DataType = %#x, want 0xC4", a.DataType())
	}
}

func TestReadAssemblerFatalStatus(t *testing.T) {
	var a ReadAssembler
	frame := []byte{cip.SvcReadTag | cip.ReplyFlag, 0x00, cip.StatusPathDestUnknown, 0x00}
	if _, err := a.Add(frame); err == nil {
		t.Fatalf("expected error for fatal status")
	}
}

func TestChunksAlignToElements(t *testing.T) {
	chunks := Chunks(5000, 480, 4)
	total := 0
	for i, c := range chunks {
		if c.Offset != total {
			t.Fatalf("chunk %d offset %d, want %d", i, c.Offset, total)
		}
		if i < len(chunks)-1 && c.Len%4 != 0 {
			t.Fatalf("chunk %d len %d not element-aligned", i, c.Len)
		}
		if i < len(chunks)-1 && c.Len != chunks[0].Len {
			t.Fatalf("chunk %d len %d differs from first chunk %d", i, c.Len, chunks[0].Len)
		}
		total += c.Len
	}
	if total != 5000 {
		t.Fatalf("chunks cover %d bytes, want 5000", total)
	}
}

func TestChunksSingleWhenFits(t *testing.T) {
	chunks := Chunks(100, 480, 4)
	if len(chunks) != 1 || chunks[0].Len != 100 {
		t.Fatalf("chunks = %+v, want one chunk of 100", chunks)
	}
}

func TestParseWriteReply(t *testing.T) {
	ok := []byte{cip.SvcWriteTag | cip.ReplyFlag, 0x00, cip.StatusSuccess, 0x00}
	if err := ParseWriteReply(ok); err != nil {
		t.Fatalf("ParseWriteReply failed: %v", err)
	}
	bad := []byte{cip.SvcWriteTag | cip.ReplyFlag, 0x00, cip.StatusTooMuchData, 0x00}
	if err := ParseWriteReply(bad); err == nil {
		t.Fatalf("expected error for failure status")
	}
}
