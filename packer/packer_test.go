package packer

import (
	"bytes"
	"testing"

	"github.com/libplctag/libplctag-sub000/cip"
	"github.com/libplctag/libplctag-sub000/frag"
)

func readCandidate(t *testing.T, tag string, elems int) Candidate {
	t.Helper()
	path, err := cip.EPath().Symbol(tag).Build()
	if err != nil {
		t.Fatalf("path build failed: %v", err)
	}
	return Candidate{
		CIP:              frag.BuildRead(path, uint16(elems)),
		ExpectedReplyLen: EstimateReadReplyLen(4, elems),
		AllowPack:        true,
	}
}

func TestPackMergesCompatibleReads(t *testing.T) {
	cands := []Candidate{
		readCandidate(t, "TagA", 1),
		readCandidate(t, "TagB", 1),
		readCandidate(t, "TagC", 1),
	}
	n, packed, err := Pack(cands, 504, 504)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("packed %d candidates, want 3", n)
	}
	if packed[0] != cip.SvcMultipleServicePacket {
		t.Fatalf("packed service = %#x, want MSP", packed[0])
	}
}

func TestPackRespectsByteBudget(t *testing.T) {
	// Each reply is ~2+4*100 = 402 bytes; two cannot fit in a 504-byte
	// server-to-client budget.
	cands := []Candidate{
		readCandidate(t, "BigA", 100),
		readCandidate(t, "BigB", 100),
	}
	n, packed, err := Pack(cands, 504, 504)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("packed %d candidates, want 1 (reply budget)", n)
	}
	if !bytes.Equal(packed, cands[0].CIP) {
		t.Fatalf("single candidate should pass through unchanged")
	}
}

func TestPackSkipsUnpackable(t *testing.T) {
	noPack := readCandidate(t, "TagA", 1)
	noPack.AllowPack = false
	n, packed, err := Pack([]Candidate{noPack, readCandidate(t, "TagB", 1)}, 504, 504)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if n != 1 || !bytes.Equal(packed, noPack.CIP) {
		t.Fatalf("allow_packing=0 head must travel alone (n=%d)", n)
	}
}

func TestPackStopsAtModeBoundary(t *testing.T) {
	connected := readCandidate(t, "TagB", 1)
	connected.UseConnected = true
	n, _, err := Pack([]Candidate{readCandidate(t, "TagA", 1), connected}, 504, 504)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("mixed connected/unconnected must not pack (n=%d)", n)
	}
}

func TestUnpackRoutesSubReplies(t *testing.T) {
	// Build an MSP reply with two sub-replies: one success, one error.
	sub1 := []byte{cip.SvcReadTag | cip.ReplyFlag, 0x00, cip.StatusSuccess, 0x00, 0xC4, 0x00, 0x2A, 0x00, 0x00, 0x00}
	sub2 := []byte{cip.SvcReadTag | cip.ReplyFlag, 0x00, cip.StatusPathDestUnknown, 0x00}

	inner := make([]byte, 0, 64)
	inner = append(inner, 0x02, 0x00)             // service count
	inner = append(inner, 0x06, 0x00)             // offset of sub1
	inner = append(inner, byte(6+len(sub1)), 0x00) // offset of sub2
	inner = append(inner, sub1...)
	inner = append(inner, sub2...)

	reply := []byte{cip.SvcMultipleServicePacket | cip.ReplyFlag, 0x00, 0x1E, 0x00}
	reply = append(reply, inner...)

	frames, err := Unpack(reply, 2)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	r1, err := cip.ParseResponse(frames[0])
	if err != nil || r1.GeneralStatus != cip.StatusSuccess {
		t.Fatalf("sub-reply 1 parse: %v status=%#x", err, r1.GeneralStatus)
	}
	r2, err := cip.ParseResponse(frames[1])
	if err != nil || r2.GeneralStatus != cip.StatusPathDestUnknown {
		t.Fatalf("sub-reply 2 should keep its own error status")
	}
}

func TestUnpackCountMismatch(t *testing.T) {
	reply := []byte{cip.SvcMultipleServicePacket | cip.ReplyFlag, 0x00, 0x00, 0x00, 0x01, 0x00, 0x04, 0x00}
	if _, err := Unpack(reply, 3); err == nil {
		t.Fatalf("expected count mismatch error")
	}
}
