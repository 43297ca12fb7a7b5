package cip

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// EPath_t is an encoded CIP path: the raw segment bytes as they appear
// on the wire, padded to an even length when built via PathBuilder.
type EPath_t []byte

// WordLen returns the path length in 16-bit words, the unit CIP
// request headers count paths in.
func (p *EPath_t) WordLen() byte {
	return byte(len([]byte(*p)) / 2)
}

// Segment type and format fields of the segment header byte.
type LogicalType byte
type LogicalFormat byte
type SegmentType byte

const (
	CipPortSegment            SegmentType = 0b000
	CipLogicalSegment         SegmentType = 0b001
	CipNetworkSegment         SegmentType = 0b010
	CipSymbolicSegment        SegmentType = 0b011
	CipDataSegmentConstructed SegmentType = 0b101
	CipDataSegmentElementary  SegmentType = 0b110

	CipLogicalTypeClassId         LogicalType = 0b000
	CipLogicalTypeInstanceId      LogicalType = 0b001
	CipLogicalTypeMemberId        LogicalType = 0b010
	CipLogicalTypeConnectionPoint LogicalType = 0b011
	CipLogicalTypeAttributeId     LogicalType = 0b100
	CipLogicalTypeSpecial         LogicalType = 0b101
	CipLogicalTypeServiceId       LogicalType = 0b110

	CipLogicalFormat8bit  LogicalFormat = 0b00
	CipLogicalFormat16bit LogicalFormat = 0b01
	CipLogicalFormat32bit LogicalFormat = 0b10
)

// PathBuilder accumulates segments fluently; errors stick and surface
// from Build.
type PathBuilder struct {
	err    error
	epath  EPath_t
	padded bool
}

// EPath starts a padded path builder, the variant every CIP request in
// this module uses.
func EPath() *PathBuilder {
	return &PathBuilder{padded: true}
}

func (b *PathBuilder) add(p EPath_t, err error) *PathBuilder {
	if b.err != nil {
		return b
	}
	if err != nil {
		b.err = err
		return b
	}
	b.epath = append(b.epath, p...)
	return b
}

// Class appends an 8-bit class segment.
func (b *PathBuilder) Class(id byte) *PathBuilder {
	return b.add(logicalSegment(CipLogicalTypeClassId, CipLogicalFormat8bit, []byte{id}, b.padded))
}

// Instance appends an 8-bit instance segment.
func (b *PathBuilder) Instance(id byte) *PathBuilder {
	return b.add(logicalSegment(CipLogicalTypeInstanceId, CipLogicalFormat8bit, []byte{id}, b.padded))
}

// Instance16 appends a 16-bit instance segment.
func (b *PathBuilder) Instance16(id uint16) *PathBuilder {
	return b.add(logicalSegment(CipLogicalTypeInstanceId, CipLogicalFormat16bit, binary.LittleEndian.AppendUint16(nil, id), b.padded))
}

// Instance32 appends a 32-bit instance segment.
func (b *PathBuilder) Instance32(id uint32) *PathBuilder {
	return b.add(logicalSegment(CipLogicalTypeInstanceId, CipLogicalFormat32bit, binary.LittleEndian.AppendUint32(nil, id), b.padded))
}

// Attribute appends an 8-bit attribute segment.
func (b *PathBuilder) Attribute(id byte) *PathBuilder {
	return b.add(logicalSegment(CipLogicalTypeAttributeId, CipLogicalFormat8bit, []byte{id}, b.padded))
}

// Symbol appends the segments for a textual tag path: one ANSI
// extended symbolic segment per dot-separated name, one member segment
// per array subscript. A colon is not a separator ("Program:Main"
// stays a single segment), and a bracketed subscript list may be
// multi-dimensional ("Arr[3,4]").
func (b *PathBuilder) Symbol(tag string) *PathBuilder {
	for _, part := range splitTagPath(tag) {
		if part.isIndex {
			b = b.add(memberSegment(part.index))
		} else {
			b = b.add(symbolicSegmentAsciiExt([]byte(part.name)))
		}
	}
	return b
}

// Build returns a copy of the accumulated path, padded to an even
// byte length for a padded builder.
func (b *PathBuilder) Build() (EPath_t, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := append(EPath_t{}, b.epath...)
	if b.padded && len(out)%2 != 0 {
		out = append(out, 0x00)
	}
	return out, nil
}

// logicalSegment encodes one logical segment. Padded 16- and 32-bit
// formats carry an internal pad byte between the header and the value
// for word alignment, so padding must be decided at encode time.
func logicalSegment(ltype LogicalType, format LogicalFormat, value []byte, padded bool) (EPath_t, error) {
	switch ltype {
	case CipLogicalTypeSpecial:
		return append(EPath_t{0x34}, value...), nil
	case CipLogicalTypeServiceId:
		return append(EPath_t{0x38}, value...), nil
	}

	wantLen := map[LogicalFormat]int{
		CipLogicalFormat8bit:  1,
		CipLogicalFormat16bit: 2,
		CipLogicalFormat32bit: 4,
	}[format]
	if wantLen == 0 {
		return nil, fmt.Errorf("LogicalSegment: unsupported logical format %v", format)
	}
	if len(value) != wantLen {
		return nil, fmt.Errorf("LogicalSegment: format needs %d value bytes, got %d", wantLen, len(value))
	}

	header := byte(CipLogicalSegment)<<5 | byte(ltype)<<2 | byte(format)
	out := EPath_t{header}
	if padded && wantLen > 1 {
		out = append(out, 0x00)
	}
	return append(out, value...), nil
}

// tagPart is one component of a textual tag path: a name or an array
// subscript.
type tagPart struct {
	name    string
	index   uint32
	isIndex bool
}

func splitTagPath(tag string) []tagPart {
	var parts []tagPart
	flush := func(name string) []tagPart {
		if name != "" {
			parts = append(parts, tagPart{name: name})
		}
		return parts
	}

	current := ""
	for i := 0; i < len(tag); i++ {
		switch tag[i] {
		case '.':
			parts = flush(current)
			current = ""
		case '[':
			parts = flush(current)
			current = ""
			j := i + 1
			for j < len(tag) && tag[j] != ']' {
				j++
			}
			// One member segment per comma-separated dimension.
			for _, sub := range strings.Split(tag[i+1:j], ",") {
				var idx uint32
				for _, c := range sub {
					if c >= '0' && c <= '9' {
						idx = idx*10 + uint32(c-'0')
					}
				}
				if sub != "" {
					parts = append(parts, tagPart{index: idx, isIndex: true})
				}
			}
			i = j
		case ']':
			// consumed by the '[' arm
		default:
			current += string(tag[i])
		}
	}
	return flush(current)
}

// memberSegment encodes an array subscript, choosing the narrowest
// member format that holds the index.
func memberSegment(index uint32) (EPath_t, error) {
	switch {
	case index <= 0xFF:
		return EPath_t{0x28, byte(index)}, nil
	case index <= 0xFFFF:
		return EPath_t{0x29, 0x00, byte(index), byte(index >> 8)}, nil
	default:
		return EPath_t{0x2A, 0x00, byte(index), byte(index >> 8), byte(index >> 16), byte(index >> 24)}, nil
	}
}

// symbolicSegmentAsciiExt encodes an ANSI extended symbolic segment:
// marker, length, name bytes, padded to even length.
func symbolicSegmentAsciiExt(symbol []byte) (EPath_t, error) {
	if len(symbol) == 0 {
		return nil, fmt.Errorf("SymbolicSegment: empty symbol")
	}
	if len(symbol) > 255 {
		return nil, fmt.Errorf("SymbolicSegment: symbol longer than 255 bytes")
	}
	out := append(EPath_t{0x91, byte(len(symbol))}, symbol...)
	if len(out)%2 != 0 {
		out = append(out, 0x00)
	}
	return out, nil
}

// Classes addressed by the special tag names.
const (
	ClassSymbolObject     byte = 0x6B
	ClassTemplateObject   byte = 0x6C
	ClassMessageRouter    byte = 0x02
	InstanceMessageRouter byte = 0x01
)

// TagListPath addresses the Symbol Object for a controller tag-list
// request.
func TagListPath() (EPath_t, error) {
	return EPath().Class(ClassSymbolObject).Instance(0).Build()
}

// TemplatePath addresses one UDT template instance for a Read Template
// request.
func TemplatePath(instanceID uint32) (EPath_t, error) {
	return EPath().Class(ClassTemplateObject).Instance32(instanceID).Build()
}

// MessageRouterPath is the embedded path of a Multiple Service Packet.
func MessageRouterPath() (EPath_t, error) {
	return EPath().Class(ClassMessageRouter).Instance(InstanceMessageRouter).Build()
}
