package attrstr

import "testing"

func TestParseControlLogix(t *testing.T) {
	opt, err := Parse("protocol=ab-eip&gateway=127.0.0.1&path=1,0&plc=LGX&elem_count=10&name=TestArr")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if opt.Gateway != "127.0.0.1" {
		t.Errorf("Gateway = %q", opt.Gateway)
	}
	if opt.Family != FamilyControlLogix {
		t.Errorf("Family = %q, want ControlLogix", opt.Family)
	}
	if opt.ElemCount != 10 {
		t.Errorf("ElemCount = %d, want 10", opt.ElemCount)
	}
	segs, err := opt.PathSegments()
	if err != nil || len(segs) != 2 || segs[0] != 1 || segs[1] != 0 {
		t.Errorf("PathSegments = %v, err %v", segs, err)
	}
}

func TestParseMissingRequiredKeys(t *testing.T) {
	if _, err := Parse("gateway=127.0.0.1&name=Foo"); err == nil {
		t.Fatalf("expected error for missing protocol")
	}
	if _, err := Parse("protocol=ab_eip&name=Foo"); err == nil {
		t.Fatalf("expected error for missing gateway")
	}
	if _, err := Parse("protocol=ab_eip&gateway=127.0.0.1&plc=LGX&name=Foo"); err == nil {
		t.Fatalf("expected error for missing path on ControlLogix")
	}
}

func TestParseUnknownKeysPreserved(t *testing.T) {
	opt, err := Parse("protocol=ab_eip&gateway=127.0.0.1&name=Foo&future_option=42")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if opt.Extra["future_option"] != "42" {
		t.Errorf("unknown key not preserved: %+v", opt.Extra)
	}
}

func TestPCCCAddress(t *testing.T) {
	opt, err := Parse("protocol=ab_eip&gateway=127.0.0.1&cpu=SLC&elem_size=2&elem_count=1&name=N7:0")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if opt.Family != FamilySLC {
		t.Errorf("Family = %q, want SLC", opt.Family)
	}
	if opt.Name != "N7:0" {
		t.Errorf("Name = %q", opt.Name)
	}
}

func TestLibraryTagDetection(t *testing.T) {
	opt, err := Parse("protocol=ab_eip&gateway=127.0.0.1&make=system&family=library&name=version")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !IsLibraryTag(opt) {
		t.Errorf("IsLibraryTag = false, want true")
	}
}

func TestLibraryTagNeedsNoGateway(t *testing.T) {
	opt, err := Parse("make=system&family=library&name=debug")
	if err != nil {
		t.Fatalf("library tag without protocol/gateway should parse: %v", err)
	}
	if !IsLibraryTag(opt) {
		t.Errorf("IsLibraryTag = false, want true")
	}
}
