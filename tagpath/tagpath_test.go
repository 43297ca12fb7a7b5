package tagpath

import (
	"testing"

	"github.com/libplctag/libplctag-sub000/attrstr"
	"github.com/libplctag/libplctag-sub000/pccc"
)

func TestEncodeSymbolic(t *testing.T) {
	e, err := Encode(attrstr.FamilyControlLogix, "TestDINTArray[0]")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if e.Kind != KindSymbolic {
		t.Fatalf("Kind = %v, want KindSymbolic", e.Kind)
	}
	if len(e.Path) == 0 || e.Path[0] != 0x91 {
		t.Fatalf("path should start with ANSI symbolic marker: %x", e.Path)
	}
}

func TestEncodeMultiDimSubscript(t *testing.T) {
	e, err := Encode(attrstr.FamilyControlLogix, "Grid[3,4]")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// Two 8-bit member segments: 0x28 0x03 and 0x28 0x04.
	var members []byte
	for i := 0; i+1 < len(e.Path); i++ {
		if e.Path[i] == 0x28 {
			members = append(members, e.Path[i+1])
		}
	}
	if len(members) != 2 || members[0] != 3 || members[1] != 4 {
		t.Fatalf("member segments = %v, want [3 4] in path %x", members, e.Path)
	}
}

func TestEncodeProgramScoped(t *testing.T) {
	e, err := Encode(attrstr.FamilyControlLogix, "Program:Main.Counter")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if e.Kind != KindSymbolic {
		t.Fatalf("Kind = %v", e.Kind)
	}
	// "Program:Main" must stay one segment; two symbolic markers total.
	count := 0
	for i := 0; i < len(e.Path); i++ {
		if e.Path[i] == 0x91 {
			count++
			i += 1 + int(e.Path[i+1])
		}
	}
	if count != 2 {
		t.Fatalf("symbolic segment count = %d, want 2 (path %x)", count, e.Path)
	}
}

func TestEncodeDataTable(t *testing.T) {
	e, err := Encode(attrstr.FamilySLC, "N7:0")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if e.Kind != KindDataTable || e.Addr == nil {
		t.Fatalf("expected data-table encoding, got %+v", e)
	}
	if e.Addr.FileType != pccc.FileTypeInteger {
		t.Errorf("FileType = %#x", e.Addr.FileType)
	}
}

func TestEncodeSpecials(t *testing.T) {
	cases := []struct {
		name string
		kind Kind
	}{
		{"@tags", KindTagList},
		{"@udt/123", KindUDT},
		{"@raw", KindRaw},
		{"@change", KindChange},
		{"@services", KindServices},
	}
	for _, c := range cases {
		e, err := Encode(attrstr.FamilyControlLogix, c.name)
		if err != nil {
			t.Fatalf("Encode(%q) failed: %v", c.name, err)
		}
		if e.Kind != c.kind {
			t.Errorf("Encode(%q).Kind = %v, want %v", c.name, e.Kind, c.kind)
		}
	}
	if e, _ := Encode(attrstr.FamilyControlLogix, "@udt/123"); e.UDTInstance != 123 {
		t.Errorf("UDTInstance = %d, want 123", e.UDTInstance)
	}
}

func TestEncodeUnknownSpecial(t *testing.T) {
	if _, err := Encode(attrstr.FamilyControlLogix, "@bogus"); err == nil {
		t.Fatalf("expected error for unknown special name")
	}
}

func TestConnectionPath(t *testing.T) {
	o := &attrstr.Options{Path: "1,0"}
	p, err := ConnectionPath(o)
	if err != nil {
		t.Fatalf("ConnectionPath failed: %v", err)
	}
	if len(p) != 2 || p[0] != 1 || p[1] != 0 {
		t.Fatalf("path = %x, want 01 00", p)
	}
}

func TestConnectionPathOddLength(t *testing.T) {
	o := &attrstr.Options{Path: "1,0,5"}
	if _, err := ConnectionPath(o); err == nil {
		t.Fatalf("expected error for odd-length path")
	}
}
