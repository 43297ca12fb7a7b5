package buffer

import "testing"

func TestRoundTripScalars(t *testing.T) {
	v := New(16)
	v.PutU8(0x12)
	v.PutU16(0x3456)
	v.PutU32(0x789ABCDE)
	v.PutU64(0x0102030405060708)

	v.SetPos(0)
	if got := v.GetU8(); got != 0x12 {
		t.Errorf("GetU8 = %#x, want 0x12", got)
	}
	if got := v.GetU16(); got != 0x3456 {
		t.Errorf("GetU16 = %#x, want 0x3456", got)
	}
	if got := v.GetU32(); got != 0x789ABCDE {
		t.Errorf("GetU32 = %#x, want 0x789abcde", got)
	}
	if got := v.GetU64(); got != 0x0102030405060708 {
		t.Errorf("GetU64 = %#x, want 0x0102030405060708", got)
	}
	if v.Err() {
		t.Errorf("unexpected error flag after in-bounds round trip")
	}
}

func TestOutOfBoundsReadReturnsSentinel(t *testing.T) {
	v := Wrap([]byte{0x01})
	v.SetPos(0)
	if got := v.GetU32(); got != 0xFFFFFFFF {
		t.Errorf("GetU32 past end = %#x, want sentinel", got)
	}
	if !v.Err() {
		t.Errorf("expected error flag after out-of-bounds read")
	}
}

func TestOutOfBoundsWriteIsNoop(t *testing.T) {
	b := []byte{0xAA, 0xBB}
	v := Wrap(b)
	v.SetPos(1)
	v.PutU32(0xDEADBEEF)
	if b[0] != 0xAA || b[1] != 0xBB {
		t.Errorf("write past end mutated buffer: %x", b)
	}
	if !v.Err() {
		t.Errorf("expected error flag after out-of-bounds write")
	}
}

func TestSubTruncatesToParent(t *testing.T) {
	v := Wrap(make([]byte, 8))
	sub := v.Sub(4, 100)
	if sub.Len() != 4 {
		t.Errorf("Sub truncated length = %d, want 4", sub.Len())
	}

	sub2 := v.Sub(-5, 3)
	if sub2.Len() != 3 {
		t.Errorf("Sub with negative start length = %d, want 3", sub2.Len())
	}
}

func TestHexDumpShape(t *testing.T) {
	out := HexDump([]byte{0x00, 0x01, 0x02, 'A', 'B'})
	if len(out) == 0 {
		t.Fatalf("HexDump returned empty string")
	}
}
