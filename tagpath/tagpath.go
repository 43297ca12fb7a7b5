// Package tagpath translates textual tag names into their wire-level
// addressing form: CIP symbolic/logical segments for Logix-family and
// Omron NJ/NX controllers, PCCC file/element tuples for PLC5, SLC500,
// and MicroLogix data-table addresses, and the special "@" names that
// route to discovery and diagnostic services instead of tag data.
package tagpath

import (
	"strconv"
	"strings"

	"github.com/libplctag/libplctag-sub000/attrstr"
	"github.com/libplctag/libplctag-sub000/cip"
	"github.com/libplctag/libplctag-sub000/pccc"
	"github.com/libplctag/libplctag-sub000/plcerr"
)

// Kind classifies what a tag name addresses.
type Kind int

const (
	// KindSymbolic is a normal CIP symbolic tag ("Program:Main.Arr[3,4]").
	KindSymbolic Kind = iota
	// KindDataTable is a PCCC data-table address ("N7:0", "F8:10/3").
	KindDataTable
	// KindTagList is the "@tags" controller tag-inventory listing
	// (Get Instance Attribute List against the Symbol Object).
	KindTagList
	// KindUDT is "@udt/<n>", a Read Template against template instance n.
	KindUDT
	// KindRaw is "@raw": the caller supplies the full CIP payload.
	KindRaw
	// KindChange is "@change", the controller change-counter diagnostic read.
	KindChange
	// KindServices is "@services", an EIP ListServices discovery request
	// (no CIP path at all).
	KindServices
	// KindIdentity is "@identity" (no CIP path). The tag runtime does not
	// read it; device discovery goes through the identity library tag.
	KindIdentity
)

// Encoded is a tag name resolved to its addressing form. Exactly one of
// Path or Addr is populated for the tag-data kinds. Of the special
// kinds, KindTagList and KindUDT carry a Path (KindUDT also its
// UDTInstance); the others carry only their Kind.
type Encoded struct {
	Kind        Kind
	Path        cip.EPath_t
	Addr        *pccc.Address
	UDTInstance uint32
}

// IsPCCC reports whether the family uses PCCC data-table addressing
// rather than CIP symbolic paths.
func IsPCCC(family attrstr.PLCFamily) bool {
	switch family {
	case attrstr.FamilyPLC5, attrstr.FamilySLC, attrstr.FamilyMicroLogix:
		return true
	}
	return false
}

// IsPLC5 reports whether the family uses the PLC5 typed read/write
// function codes rather than the SLC protected typed logical ones.
func IsPLC5(family attrstr.PLCFamily) bool {
	return family == attrstr.FamilyPLC5
}

// Encode resolves a textual tag name for the given controller family.
func Encode(family attrstr.PLCFamily, name string) (*Encoded, error) {
	if name == "" {
		return nil, plcerr.New(plcerr.BadConfig, "tagpath: empty tag name")
	}

	if strings.HasPrefix(name, "@") {
		return encodeSpecial(name)
	}

	if IsPCCC(family) {
		addr, err := pccc.ParseAddress(name)
		if err != nil {
			return nil, err
		}
		return &Encoded{Kind: KindDataTable, Addr: addr}, nil
	}

	path, err := cip.EPath().Symbol(name).Build()
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadConfig, "tagpath: "+name, err)
	}
	return &Encoded{Kind: KindSymbolic, Path: path}, nil
}

func encodeSpecial(name string) (*Encoded, error) {
	lower := strings.ToLower(name)
	switch {
	case lower == "@tags":
		path, err := cip.TagListPath()
		if err != nil {
			return nil, err
		}
		return &Encoded{Kind: KindTagList, Path: path}, nil

	case strings.HasPrefix(lower, "@udt/"):
		n, err := strconv.ParseUint(lower[len("@udt/"):], 10, 32)
		if err != nil {
			return nil, plcerr.Newf(plcerr.BadConfig, "tagpath: bad template instance in %q", name)
		}
		path, err := cip.TemplatePath(uint32(n))
		if err != nil {
			return nil, err
		}
		return &Encoded{Kind: KindUDT, Path: path, UDTInstance: uint32(n)}, nil

	case lower == "@raw":
		return &Encoded{Kind: KindRaw}, nil

	case lower == "@change":
		return &Encoded{Kind: KindChange}, nil

	case lower == "@services":
		return &Encoded{Kind: KindServices}, nil

	case lower == "@identity":
		return &Encoded{Kind: KindIdentity}, nil
	}
	return nil, plcerr.Newf(plcerr.BadConfig, "tagpath: unknown special name %q", name)
}

// ConnectionPath renders the comma-separated backplane path from the
// attribute string ("1,0") as raw port/link segment bytes, the route
// prefix Forward Open and Unconnected Send both carry.
func ConnectionPath(o *attrstr.Options) ([]byte, error) {
	segs, err := o.PathSegments()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(segs))
	for _, s := range segs {
		if s < 0 || s > 255 {
			return nil, plcerr.Newf(plcerr.BadConfig, "tagpath: path segment %d out of range", s)
		}
		out = append(out, byte(s))
	}
	if len(out)%2 != 0 {
		return nil, plcerr.Newf(plcerr.BadConfig, "tagpath: path %q must have an even number of segments", o.Path)
	}
	return out, nil
}
