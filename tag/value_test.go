package tag

import (
	"testing"

	"github.com/libplctag/libplctag-sub000/attrstr"
	"github.com/libplctag/libplctag-sub000/plcerr"
)

// newScratchTag builds a tag whose session never dials (the gateway is
// only contacted on the first wire operation), so the in-memory buffer
// and accessors can be exercised alone.
func newScratchTag(t *testing.T, extra string) *Tag {
	t.Helper()
	attrib := "protocol=ab_eip&gateway=127.0.0.1:1&path=1,0&plc=LGX&elem_size=4&elem_count=32&name=Scratch"
	if extra != "" {
		attrib += "&" + extra
	}
	o, err := attrstr.Parse(attrib)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	tg, err := New(1, o)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { tg.Destroy() })
	return tg
}

func TestScalarRoundTrips(t *testing.T) {
	tg := newScratchTag(t, "")

	if err := tg.SetInt32(0, -42); err != nil {
		t.Fatalf("SetInt32 failed: %v", err)
	}
	if v, _ := tg.GetInt32(0); v != -42 {
		t.Errorf("GetInt32 = %d, want -42", v)
	}
	if err := tg.SetFloat32(4, 1.5); err != nil {
		t.Fatalf("SetFloat32 failed: %v", err)
	}
	if v, _ := tg.GetFloat32(4); v != 1.5 {
		t.Errorf("GetFloat32 = %g, want 1.5", v)
	}
	if err := tg.SetUint16(8, 0xBEEF); err != nil {
		t.Fatalf("SetUint16 failed: %v", err)
	}
	if v, _ := tg.GetUint16(8); v != 0xBEEF {
		t.Errorf("GetUint16 = %#x", v)
	}
}

func TestAccessorBounds(t *testing.T) {
	tg := newScratchTag(t, "")
	if _, err := tg.GetInt32(126); plcerr.KindOf(err) != plcerr.OutOfBounds {
		t.Errorf("straddling read should be OutOfBounds, got %v", err)
	}
	if err := tg.SetInt64(-1, 0); plcerr.KindOf(err) != plcerr.OutOfBounds {
		t.Errorf("negative offset should be OutOfBounds, got %v", err)
	}
	if _, err := tg.GetUint8(128); plcerr.KindOf(err) != plcerr.OutOfBounds {
		t.Errorf("read at end should be OutOfBounds, got %v", err)
	}
}

func TestBitAccessors(t *testing.T) {
	tg := newScratchTag(t, "")
	if err := tg.SetBit(13, true); err != nil {
		t.Fatalf("SetBit failed: %v", err)
	}
	if v, _ := tg.GetBit(13); !v {
		t.Errorf("GetBit(13) = false after set")
	}
	if b, _ := tg.GetUint8(1); b != 1<<5 {
		t.Errorf("byte 1 = %#x, want bit 5 set", b)
	}
	if err := tg.SetBit(13, false); err != nil {
		t.Fatalf("SetBit clear failed: %v", err)
	}
	if v, _ := tg.GetBit(13); v {
		t.Errorf("GetBit(13) = true after clear")
	}
}

func TestStringDescriptorDefault(t *testing.T) {
	// The default layout is the ControlLogix STRING: 4-byte count word,
	// 82 capacity, 88 total.
	tg := newScratchTag(t, "elem_size=88&elem_count=1")
	if err := tg.SetString(0, "hello plc"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	n, err := tg.GetStringLength(0)
	if err != nil || n != 9 {
		t.Fatalf("GetStringLength = %d, %v", n, err)
	}
	s, err := tg.GetString(0)
	if err != nil || s != "hello plc" {
		t.Fatalf("GetString = %q, %v", s, err)
	}
	if tg.GetStringCapacity() != 82 || tg.GetStringTotalLength() != 88 {
		t.Errorf("descriptor = cap %d total %d", tg.GetStringCapacity(), tg.GetStringTotalLength())
	}
}

func TestStringDescriptorOverride(t *testing.T) {
	// A PLC5-style layout: 2-byte count word, byte-swapped data.
	tg := newScratchTag(t, "elem_size=84&elem_count=1&str_count_word_bytes=2&str_max_capacity=82&str_total_length=84&str_is_byte_swapped=1")
	if err := tg.SetString(0, "AB"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	raw := tg.Data()
	if raw[0] != 2 || raw[1] != 0 {
		t.Fatalf("count word = %x", raw[:2])
	}
	if raw[2] != 'B' || raw[3] != 'A' {
		t.Fatalf("swapped data = %q, want BA", raw[2:4])
	}
	s, err := tg.GetString(0)
	if err != nil || s != "AB" {
		t.Fatalf("GetString = %q, %v", s, err)
	}
}

func TestStringTooLong(t *testing.T) {
	tg := newScratchTag(t, "elem_size=88&elem_count=1")
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	if err := tg.SetString(0, string(long)); plcerr.KindOf(err) != plcerr.TooLarge {
		t.Errorf("oversized string should be TooLarge, got %v", err)
	}
}

func TestCallbackSlot(t *testing.T) {
	tg := newScratchTag(t, "")
	cb := func(tagID int, ev Event, status int, userdata any) {}
	if err := tg.RegisterCallback(cb, nil); err != nil {
		t.Fatalf("RegisterCallback failed: %v", err)
	}
	if err := tg.RegisterCallback(cb, nil); plcerr.KindOf(err) != plcerr.Duplicate {
		t.Errorf("second registration should be Duplicate, got %v", err)
	}
	if err := tg.UnregisterCallback(); err != nil {
		t.Fatalf("UnregisterCallback failed: %v", err)
	}
	if err := tg.UnregisterCallback(); plcerr.KindOf(err) != plcerr.NotFound {
		t.Errorf("unregister with empty slot should be NotFound, got %v", err)
	}
}

func TestStatusLifecycle(t *testing.T) {
	tg := newScratchTag(t, "")
	if tg.State() != StateIdle {
		t.Fatalf("fresh tag state = %v, want Idle", tg.State())
	}
	if tg.Status() != 0 {
		t.Fatalf("fresh tag status = %d, want OK", tg.Status())
	}
	tg.Destroy()
	if tg.State() != StateDestroyed {
		t.Fatalf("state after destroy = %v", tg.State())
	}
	if tg.Status() >= 0 {
		t.Fatalf("status after destroy = %d, want NotFound", tg.Status())
	}
}
