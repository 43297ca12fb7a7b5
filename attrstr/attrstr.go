// Package attrstr parses libplctag-style attribute strings
// ("k=v&k=v&...") into a typed options bag. Unknown keys are preserved,
// never rejected; only the keys required for the selected protocol are
// enforced.
package attrstr

import (
	"strconv"
	"strings"

	"github.com/libplctag/libplctag-sub000/plcerr"
)

// Protocol selects the CIP-over-EIP dialect.
type Protocol string

const (
	ProtocolABEIP  Protocol = "ab_eip"
	ProtocolABEIP2 Protocol = "ab-eip2"
)

// PLCFamily selects the addressed controller family, which in turn
// selects symbolic-vs-PCCC tag-path encoding and default string layout.
type PLCFamily string

const (
	FamilyControlLogix PLCFamily = "ControlLogix"
	FamilyMicro800     PLCFamily = "Micro800"
	FamilyPLC5         PLCFamily = "PLC5"
	FamilySLC          PLCFamily = "SLC"
	FamilyMicroLogix   PLCFamily = "MicroLogix"
	FamilyOmron        PLCFamily = "Omron"
)

var familyAliases = map[string]PLCFamily{
	"controllogix": FamilyControlLogix,
	"lgx":          FamilyControlLogix,
	"micro800":     FamilyMicro800,
	"plc5":         FamilyPLC5,
	"slc":          FamilySLC,
	"slc500":       FamilySLC,
	"micrologix":   FamilyMicroLogix,
	"omron":        FamilyOmron,
}

// NormalizeFamily maps any accepted alias to its canonical PLCFamily.
func NormalizeFamily(s string) (PLCFamily, bool) {
	f, ok := familyAliases[strings.ToLower(s)]
	return f, ok
}

// StringDescriptor overrides how strings are laid out inside tag data
// (the "str_*" attribute family): count word size, capacity, total
// footprint, termination, byte order, and padding.
type StringDescriptor struct {
	CountWordBytes int // 1, 2, or 4
	MaxCapacity    int
	TotalLength    int
	IsZeroTerm     bool
	IsByteSwapped  bool
	PadBytes       int
}

// DefaultStringDescriptor matches ControlLogix's standard STRING type:
// a 4-byte length prefix followed by up to 82 data bytes.
func DefaultStringDescriptor() StringDescriptor {
	return StringDescriptor{CountWordBytes: 4, MaxCapacity: 82, TotalLength: 88}
}

// Options is the parsed, typed form of an attribute string.
type Options struct {
	Protocol         Protocol
	Gateway          string
	Path             string
	Family           PLCFamily
	ElemSize         int
	ElemCount        int
	Name             string
	DebugLevel       int
	ReadCacheMs      int
	AutoSyncReadMs   int
	AutoSyncWriteMs  int
	AllowPacking     bool
	ConnectionGroup  int
	UseConnectedMsg  *bool // nil = protocol default
	Str              StringDescriptor
	Extra            map[string]string
}

// Parse parses a single "k=v&k=v" attribute string. Required keys:
// protocol, gateway, and name, plus path for ControlLogix; library
// tags need only a name. Unknown keys land in Extra.
func Parse(s string) (*Options, error) {
	opt := &Options{
		AllowPacking: true,
		Str:          DefaultStringDescriptor(),
		Extra:        map[string]string{},
	}

	haveProtocol, haveGateway, haveName, havePath := false, false, false, false

	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		k, v, found := strings.Cut(pair, "=")
		if !found {
			return nil, plcerr.Newf(plcerr.BadConfig, "malformed attribute pair %q", pair)
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)

		switch k {
		case "protocol":
			opt.Protocol = Protocol(strings.ToLower(v))
			haveProtocol = true
		case "gateway":
			opt.Gateway = v
			haveGateway = true
		case "path":
			opt.Path = v
			havePath = true
		case "plc", "cpu":
			fam, ok := NormalizeFamily(v)
			if !ok {
				return nil, plcerr.Newf(plcerr.BadConfig, "unknown plc/cpu family %q", v)
			}
			opt.Family = fam
		case "elem_size":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, plcerr.Wrap(plcerr.BadConfig, "elem_size", err)
			}
			opt.ElemSize = n
		case "elem_count":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, plcerr.Wrap(plcerr.BadConfig, "elem_count", err)
			}
			opt.ElemCount = n
		case "name":
			opt.Name = v
			haveName = true
		case "debug":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, plcerr.Wrap(plcerr.BadConfig, "debug", err)
			}
			opt.DebugLevel = n
		case "read_cache_ms":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, plcerr.Wrap(plcerr.BadConfig, "read_cache_ms", err)
			}
			opt.ReadCacheMs = n
		case "auto_sync_read_ms":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, plcerr.Wrap(plcerr.BadConfig, "auto_sync_read_ms", err)
			}
			opt.AutoSyncReadMs = n
		case "auto_sync_write_ms":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, plcerr.Wrap(plcerr.BadConfig, "auto_sync_write_ms", err)
			}
			opt.AutoSyncWriteMs = n
		case "allow_packing":
			opt.AllowPacking = v != "0"
		case "connection_group_id":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, plcerr.Wrap(plcerr.BadConfig, "connection_group_id", err)
			}
			opt.ConnectionGroup = n
		case "use_connected_msg":
			b := v != "0"
			opt.UseConnectedMsg = &b
		case "str_count_word_bytes":
			n, _ := strconv.Atoi(v)
			opt.Str.CountWordBytes = n
		case "str_max_capacity":
			n, _ := strconv.Atoi(v)
			opt.Str.MaxCapacity = n
		case "str_total_length":
			n, _ := strconv.Atoi(v)
			opt.Str.TotalLength = n
		case "str_is_zero_terminated":
			opt.Str.IsZeroTerm = v != "0"
		case "str_is_byte_swapped":
			opt.Str.IsByteSwapped = v != "0"
		case "str_pad_bytes":
			n, _ := strconv.Atoi(v)
			opt.Str.PadBytes = n
		default:
			opt.Extra[k] = v
		}
	}

	if !haveName {
		return nil, plcerr.New(plcerr.BadConfig, "missing required key: name")
	}
	// Library tags address the library itself, not a PLC; they carry no
	// protocol or gateway.
	if IsLibraryTag(opt) {
		return opt, nil
	}
	if !haveProtocol {
		return nil, plcerr.New(plcerr.BadConfig, "missing required key: protocol")
	}
	if !haveGateway {
		return nil, plcerr.New(plcerr.BadConfig, "missing required key: gateway")
	}
	if opt.Family == FamilyControlLogix && !havePath {
		return nil, plcerr.New(plcerr.BadConfig, "missing required key: path (required for ControlLogix)")
	}

	return opt, nil
}

// PathSegments splits the comma-separated backplane path ("1,0") into
// its numeric segments.
func (o *Options) PathSegments() ([]int, error) {
	if o.Path == "" {
		return nil, nil
	}
	parts := strings.Split(o.Path, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, plcerr.Wrap(plcerr.BadConfig, "path segment", err)
		}
		out = append(out, n)
	}
	return out, nil
}

// IsLibraryTag reports whether the attributes carry make=system and
// family=library, the marks of a synthetic "library" tag
// (...&name=version, ...&name=debug, ...&name=identity). Name is not
// checked here.
func IsLibraryTag(o *Options) bool {
	return o.Extra["make"] == "system" && o.Extra["family"] == "library"
}
