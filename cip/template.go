package cip

import (
	"fmt"

	"github.com/libplctag/libplctag-sub000/buffer"
)

// TemplateMember describes one field of a UDT template, decoded from a
// Read Template (Class 0x6C) reply.
type TemplateMember struct {
	Name       string
	TypeCode   uint16
	Offset     uint32
	ArrayCount uint16
}

// Template is the decoded member list of a UDT template.
type Template struct {
	InstanceID  uint32
	MemberCount uint16
	Members     []TemplateMember
}

// ParseTemplate decodes a reassembled Read Template definition chunk
// into its member descriptor table and trailing name strings. The
// layout is memberCount descriptors of (array_count u16, type u16,
// offset u32) followed by NUL-terminated names: the first chunk names
// the template itself, then one name per member.
func ParseTemplate(instanceID uint32, memberCount uint16, data []byte) (*Template, error) {
	r := buffer.Wrap(data)
	if r.Len() < int(memberCount)*8 {
		return nil, fmt.Errorf("cip: template definition too short for %d members: %d bytes", memberCount, r.Len())
	}

	t := &Template{InstanceID: instanceID, MemberCount: memberCount}
	t.Members = make([]TemplateMember, memberCount)
	for i := range t.Members {
		t.Members[i].ArrayCount = r.GetU16()
		t.Members[i].TypeCode = r.GetU16()
		t.Members[i].Offset = r.GetU32()
	}
	if r.Err() {
		return nil, fmt.Errorf("cip: malformed template descriptor table")
	}

	names := data[r.Pos():]
	// The template's own name ends at the first ';'; the remainder of
	// that NUL-terminated chunk is metadata.
	pos := 0
	for pos < len(names) && names[pos] != 0 {
		pos++
	}
	pos++ // skip the NUL

	for i := range t.Members {
		start := pos
		for pos < len(names) && names[pos] != 0 {
			pos++
		}
		if start >= len(names) {
			break
		}
		t.Members[i].Name = string(names[start:pos])
		pos++
	}
	return t, nil
}

// ParseTemplateAttributes decodes the Get Attributes List reply for a
// template instance: the attribute values that size the definition
// transfer (definition size in 32-bit words, structure size in bytes,
// member count, structure handle).
func ParseTemplateAttributes(data []byte) (defWords uint32, structBytes uint32, memberCount uint16, handle uint16, err error) {
	r := buffer.Wrap(data)
	count := r.GetU16()
	for i := uint16(0); i < count; i++ {
		attrID := r.GetU16()
		status := r.GetU16()
		if r.Err() {
			return 0, 0, 0, 0, fmt.Errorf("cip: truncated template attribute list")
		}
		if status != 0 {
			return 0, 0, 0, 0, fmt.Errorf("cip: template attribute %d status %d", attrID, status)
		}
		switch attrID {
		case 1: // structure handle
			handle = r.GetU16()
		case 2: // member count
			memberCount = r.GetU16()
		case 4: // definition size in 32-bit words
			defWords = r.GetU32()
		case 5: // structure size in bytes
			structBytes = r.GetU32()
		default:
			return 0, 0, 0, 0, fmt.Errorf("cip: unexpected template attribute %d", attrID)
		}
	}
	if r.Err() {
		return 0, 0, 0, 0, fmt.Errorf("cip: truncated template attribute list")
	}
	return defWords, structBytes, memberCount, handle, nil
}
