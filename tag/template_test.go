package tag

import (
	"testing"

	"github.com/libplctag/libplctag-sub000/attrstr"
	"github.com/libplctag/libplctag-sub000/cip"
	"github.com/libplctag/libplctag-sub000/plcerr"
)

func TestTemplateFromCIP(t *testing.T) {
	src := &cip.Template{
		InstanceID:  123,
		MemberCount: 2,
		Members: []cip.TemplateMember{
			{Name: "Count", TypeCode: 0x00C4, Offset: 0},
			{Name: "Flags", TypeCode: 0x00C3, Offset: 4, ArrayCount: 8},
		},
	}
	tpl := templateFromCIP(src, 12)
	if tpl.InstanceID != 123 || tpl.StructSize != 12 || tpl.MemberCount != 2 {
		t.Fatalf("header = %+v", tpl)
	}
	if tpl.Members[0].Name != "Count" || tpl.Members[0].TypeCode != 0x00C4 {
		t.Fatalf("member 0 = %+v", tpl.Members[0])
	}
	if tpl.Members[1].Offset != 4 || tpl.Members[1].ArrayCount != 8 {
		t.Fatalf("member 1 = %+v", tpl.Members[1])
	}
}

func TestTemplateBeforeRead(t *testing.T) {
	o, err := attrstr.Parse("protocol=ab_eip&gateway=127.0.0.1:1&path=1,0&plc=LGX&name=@udt/42")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	tg, err := New(1, o)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tg.Destroy()

	if _, err := tg.Template(); plcerr.KindOf(err) != plcerr.NoData {
		t.Fatalf("Template before read = %v, want NoData", err)
	}
}
