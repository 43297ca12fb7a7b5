package abserver

import (
	"testing"
)

func TestParseTagDefScalar(t *testing.T) {
	tag, err := ParseTagDef("Counter:DINT", PLCControlLogix)
	if err != nil {
		t.Fatalf("ParseTagDef failed: %v", err)
	}
	if tag.Name != "Counter" || tag.Type.size != 4 || tag.ElemCount() != 1 {
		t.Fatalf("unexpected tag: %+v", tag)
	}
}

func TestParseTagDefArray(t *testing.T) {
	tag, err := ParseTagDef("TestArr:DINT[10]", PLCControlLogix)
	if err != nil {
		t.Fatalf("ParseTagDef failed: %v", err)
	}
	if tag.ElemCount() != 10 || tag.Size() != 40 {
		t.Fatalf("unexpected geometry: count=%d size=%d", tag.ElemCount(), tag.Size())
	}
}

func TestParseTagDefMultiDim(t *testing.T) {
	tag, err := ParseTagDef("Grid:INT[4,5,6]", PLCControlLogix)
	if err != nil {
		t.Fatalf("ParseTagDef failed: %v", err)
	}
	if tag.ElemCount() != 120 {
		t.Fatalf("ElemCount = %d, want 120", tag.ElemCount())
	}
	off, err := tag.elemOffset([]uint32{1, 2, 3})
	if err != nil {
		t.Fatalf("elemOffset failed: %v", err)
	}
	// ((1*5)+2)*6+3 = 45 elements * 2 bytes
	if off != 90 {
		t.Fatalf("elemOffset = %d, want 90", off)
	}
}

func TestParseTagDefPCCC(t *testing.T) {
	tag, err := ParseTagDef("N7:0:INT[10]", PLCSLC)
	if err != nil {
		t.Fatalf("ParseTagDef failed: %v", err)
	}
	if tag.Name != "N7:0" || tag.FileNumber != 7 || tag.Size() != 20 {
		t.Fatalf("unexpected tag: %+v", tag)
	}
}

func TestParseTagDefRejectsBadInput(t *testing.T) {
	for _, bad := range []string{"", "NoType", "X:FLOAT64", "A:DINT[0]", "A:DINT[1,2,3,4]", "A:DINT[2"} {
		if _, err := ParseTagDef(bad, PLCControlLogix); err == nil {
			t.Errorf("ParseTagDef(%q) should fail", bad)
		}
	}
}

func TestElemOffsetBounds(t *testing.T) {
	tag, _ := ParseTagDef("A:DINT[10]", PLCControlLogix)
	if _, err := tag.elemOffset([]uint32{10}); err == nil {
		t.Fatalf("subscript at dimension bound should fail")
	}
	if _, err := tag.elemOffset([]uint32{1, 2}); err == nil {
		t.Fatalf("too many subscripts should fail")
	}
}

func TestReadWriteAtBounds(t *testing.T) {
	tag, _ := ParseTagDef("A:DINT[4]", PLCControlLogix)
	if err := tag.WriteAt(12, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("in-bounds write failed: %v", err)
	}
	if err := tag.WriteAt(14, []byte{1, 2, 3, 4}); err == nil {
		t.Fatalf("out-of-bounds write should fail")
	}
	b, err := tag.ReadAt(12, 4)
	if err != nil || b[0] != 1 || b[3] != 4 {
		t.Fatalf("ReadAt = %x, %v", b, err)
	}
	if _, err := tag.ReadAt(-1, 4); err == nil {
		t.Fatalf("negative offset read should fail")
	}
}

func TestParseEPathSymbolicWithIndex(t *testing.T) {
	// 0x91 len "TestArr" pad, then 0x28 0x03
	raw := []byte{0x91, 0x07, 'T', 'e', 's', 't', 'A', 'r', 'r', 0x00, 0x28, 0x03}
	p, err := parseEPath(raw)
	if err != nil {
		t.Fatalf("parseEPath failed: %v", err)
	}
	if p.name != "TestArr" || len(p.indices) != 1 || p.indices[0] != 3 {
		t.Fatalf("parsed %+v", p)
	}
}

func TestParseEPathLogical(t *testing.T) {
	raw := []byte{0x20, 0x06, 0x24, 0x01}
	p, err := parseEPath(raw)
	if err != nil {
		t.Fatalf("parseEPath failed: %v", err)
	}
	if !p.hasClass || p.class != 0x06 || p.instance != 1 {
		t.Fatalf("parsed %+v", p)
	}
}

func TestParsePLCType(t *testing.T) {
	for _, ok := range []string{"ControlLogix", "LGX", "Micro800", "Omron", "PLC5", "SLC", "MicroLogix"} {
		if _, err := ParsePLCType(ok); err != nil {
			t.Errorf("ParsePLCType(%q) failed: %v", ok, err)
		}
	}
	if _, err := ParsePLCType("S7-1200"); err == nil {
		t.Errorf("ParsePLCType should reject unknown flavors")
	}
}
