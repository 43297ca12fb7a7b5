// Package abserver is the server side of the protocol core: a test PLC
// that accepts EtherNet/IP sessions, serves Forward Open/Close, Read
// and Write Tag (plain and fragmented), and Execute PCCC against a
// configured tag inventory. It decodes requests with the same codecs
// the client encodes with, inverted.
package abserver

import (
	"strconv"
	"strings"
	"sync"

	"github.com/libplctag/libplctag-sub000/pccc"
	"github.com/libplctag/libplctag-sub000/plcerr"
)

// PLCType selects the served controller flavor.
type PLCType int

const (
	PLCControlLogix PLCType = iota
	PLCMicro800
	PLCOmron
	PLC5
	PLCSLC
	PLCMicroLogix
)

// ParsePLCType maps the CLI spelling to a PLCType.
func ParsePLCType(s string) (PLCType, error) {
	switch strings.ToLower(s) {
	case "controllogix", "lgx":
		return PLCControlLogix, nil
	case "micro800":
		return PLCMicro800, nil
	case "omron":
		return PLCOmron, nil
	case "plc5":
		return PLC5, nil
	case "slc", "slc500":
		return PLCSLC, nil
	case "micrologix":
		return PLCMicroLogix, nil
	}
	return 0, plcerr.Newf(plcerr.BadConfig, "abserver: unknown plc type %q", s)
}

// IsPCCC reports whether the served flavor speaks PCCC-in-CIP.
func (p PLCType) IsPCCC() bool {
	return p == PLC5 || p == PLCSLC || p == PLCMicroLogix
}

// elemType describes one supported tag element type.
type elemType struct {
	name    string
	size    int
	cipType uint16
}

var elemTypes = map[string]elemType{
	"SINT":  {"SINT", 1, 0x00C2},
	"INT":   {"INT", 2, 0x00C3},
	"DINT":  {"DINT", 4, 0x00C4},
	"LINT":  {"LINT", 8, 0x00C5},
	"REAL":  {"REAL", 4, 0x00CA},
	"LREAL": {"LREAL", 8, 0x00CB},
}

// ServerTag is one inventory entry with its backing storage.
type ServerTag struct {
	Name string
	Type elemType
	Dims []int

	// PCCC addressing, populated for data-table flavors.
	FileType   byte
	FileNumber uint16

	mu   sync.Mutex
	data []byte
}

// ElemCount is the flattened element count across all dimensions.
func (t *ServerTag) ElemCount() int {
	n := 1
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// Size is the tag's total backing size in bytes.
func (t *ServerTag) Size() int { return t.ElemCount() * t.Type.size }

// ReadAt copies n bytes at byte offset off out of the tag storage.
func (t *ServerTag) ReadAt(off, n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if off < 0 || off+n > len(t.data) {
		return nil, plcerr.Newf(plcerr.OutOfBounds, "abserver: read [%d,+%d) outside tag %s (%d bytes)", off, n, t.Name, len(t.data))
	}
	out := make([]byte, n)
	copy(out, t.data[off:])
	return out, nil
}

// WriteAt copies b into the tag storage at byte offset off.
func (t *ServerTag) WriteAt(off int, b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if off < 0 || off+len(b) > len(t.data) {
		return plcerr.Newf(plcerr.OutOfBounds, "abserver: write [%d,+%d) outside tag %s (%d bytes)", off, len(b), t.Name, len(t.data))
	}
	copy(t.data[off:], b)
	return nil
}

// elemOffset resolves member subscripts to a linear byte offset,
// validating each subscript against its dimension.
func (t *ServerTag) elemOffset(indices []uint32) (int, error) {
	if len(indices) == 0 {
		return 0, nil
	}
	if len(indices) > len(t.Dims) {
		return 0, plcerr.Newf(plcerr.BadParam, "abserver: %d subscripts for %d-dimensional tag %s", len(indices), len(t.Dims), t.Name)
	}
	elem := 0
	for i, idx := range indices {
		if int(idx) >= t.Dims[i] {
			return 0, plcerr.Newf(plcerr.OutOfBounds, "abserver: subscript %d out of range for dimension %d of %s", idx, t.Dims[i], t.Name)
		}
		elem = elem*t.Dims[i] + int(idx)
	}
	// Trailing unsubscripted dimensions address whole slices.
	for i := len(indices); i < len(t.Dims); i++ {
		elem *= t.Dims[i]
	}
	return elem * t.Type.size, nil
}

// ParseTagDef parses one inventory definition of the form
// "name:TYPE[d1,d2,d3]" ("TestArr:DINT[10]", "N7:0:INT[10]"). The
// dimension list is optional and defaults to a scalar.
func ParseTagDef(s string, plc PLCType) (*ServerTag, error) {
	spec := s
	var dims []int
	if i := strings.IndexByte(spec, '['); i >= 0 {
		if !strings.HasSuffix(spec, "]") {
			return nil, plcerr.Newf(plcerr.BadConfig, "abserver: malformed tag definition %q", s)
		}
		for _, d := range strings.Split(spec[i+1:len(spec)-1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(d))
			if err != nil || n <= 0 {
				return nil, plcerr.Newf(plcerr.BadConfig, "abserver: bad dimension %q in %q", d, s)
			}
			dims = append(dims, n)
		}
		if len(dims) > 3 {
			return nil, plcerr.Newf(plcerr.BadConfig, "abserver: too many dimensions in %q", s)
		}
		spec = spec[:i]
	}
	if len(dims) == 0 {
		dims = []int{1}
	}

	colon := strings.LastIndexByte(spec, ':')
	if colon < 0 {
		return nil, plcerr.Newf(plcerr.BadConfig, "abserver: tag definition %q missing type", s)
	}
	name, typeName := spec[:colon], strings.ToUpper(spec[colon+1:])
	et, ok := elemTypes[typeName]
	if !ok {
		return nil, plcerr.Newf(plcerr.BadConfig, "abserver: unknown type %q in %q", typeName, s)
	}
	if name == "" {
		return nil, plcerr.Newf(plcerr.BadConfig, "abserver: tag definition %q missing name", s)
	}

	t := &ServerTag{Name: name, Type: et, Dims: dims}
	t.data = make([]byte, t.Size())

	if plc.IsPCCC() {
		addr, err := pccc.ParseAddress(name)
		if err != nil {
			return nil, plcerr.Wrap(plcerr.BadConfig, "abserver: tag "+s, err)
		}
		t.FileType = addr.FileType
		t.FileNumber = addr.FileNumber
	}
	return t, nil
}
