package tag

import (
	"github.com/libplctag/libplctag-sub000/cip"
	"github.com/libplctag/libplctag-sub000/plcerr"
)

// UDTMember is one field of a UDT template: its name, CIP type code,
// byte offset inside the structure, and array count (0 for scalars).
type UDTMember struct {
	Name       string
	TypeCode   uint16
	Offset     uint32
	ArrayCount uint16
}

// Template is the decoded member list of a UDT template, read from a
// "@udt/<n>" tag. StructSize is the byte footprint of one structure
// instance as the controller reports it.
type Template struct {
	InstanceID  uint32
	StructSize  uint32
	MemberCount uint16
	Members     []UDTMember
}

func templateFromCIP(src *cip.Template, structSize uint32) *Template {
	t := &Template{
		InstanceID:  src.InstanceID,
		StructSize:  structSize,
		MemberCount: src.MemberCount,
		Members:     make([]UDTMember, len(src.Members)),
	}
	for i, m := range src.Members {
		t.Members[i] = UDTMember{
			Name:       m.Name,
			TypeCode:   m.TypeCode,
			Offset:     m.Offset,
			ArrayCount: m.ArrayCount,
		}
	}
	return t
}

// Template returns the member list decoded by the last successful read
// of a "@udt/<n>" tag.
func (t *Tag) Template() (*Template, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tpl == nil {
		return nil, plcerr.New(plcerr.NoData, "tag: no template decoded (read the @udt tag first)")
	}
	return t.tpl, nil
}
