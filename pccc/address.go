package pccc

import (
	"strconv"
	"strings"

	"github.com/libplctag/libplctag-sub000/plcerr"
)

// Address is a parsed SLC500/PLC5/MicroLogix data-table address, the
// PCCC counterpart of cip.EPath_t for symbolic CIP tags.
//
// Format: [TypePrefix][FileNumber]:[Element][/Bit][.SubElement]
//
//	N7:0        Integer file 7, element 0
//	F8:5        Float file 8, element 5
//	B3:0/5      Binary file 3, element 0, bit 5
//	T4:0.ACC    Timer file 4, element 0, accumulated value
//	ST9:0       String file 9, element 0
type Address struct {
	FileType   byte
	FileNumber uint16
	Element    uint16
	SubElement uint16
	BitNumber  int // -1 if not a bit address
	TypeLetter string
	Raw        string
}

// ReadSize returns the number of bytes one element (or sub-element, or
// bit-containing word) of this address occupies on the wire.
func (a *Address) ReadSize() int {
	if a.BitNumber >= 0 {
		return SubElementSize
	}
	if IsComplexType(a.FileType) && a.SubElement > 0 {
		return SubElementSize
	}
	return ElementSize(a.FileType)
}

// WithElement returns a copy of the address advanced to a different
// element number, used by the fragmentation engine to step through a
// bulk read/write element-by-element.
func (a Address) WithElement(elem uint16) Address {
	a.Element = elem
	return a
}

var typePrefixes = map[string]byte{
	"O": FileTypeOutput, "I": FileTypeInput, "S": FileTypeStatus,
	"B": FileTypeBinary, "T": FileTypeTimer, "C": FileTypeCounter,
	"R": FileTypeControl, "N": FileTypeInteger, "F": FileTypeFloat,
	"A": FileTypeASCII, "L": FileTypeLong,
}

var multiLetterPrefixes = map[string]byte{
	"ST": FileTypeString, "MG": FileTypeMessage, "PD": FileTypePID,
}

var defaultFileNumber = map[byte]int{
	FileTypeOutput: 0, FileTypeInput: 1, FileTypeStatus: 2,
}

// ParseAddress parses a PCCC data-table address string.
func ParseAddress(addr string) (*Address, error) {
	if addr == "" {
		return nil, plcerr.New(plcerr.BadParam, "pccc: empty address")
	}

	colon := strings.IndexByte(addr, ':')
	if colon < 0 {
		return nil, plcerr.Newf(plcerr.BadParam, "pccc: address %q missing colon", addr)
	}
	fileSpec, remainder := addr[:colon], addr[colon+1:]

	typeLetter, fileNum, fileType, err := parseFileSpec(fileSpec)
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadParam, "pccc: address "+addr, err)
	}

	a := &Address{FileType: fileType, TypeLetter: typeLetter, BitNumber: -1, Raw: addr}
	if fileNum >= 0 {
		a.FileNumber = uint16(fileNum)
	} else if def, ok := defaultFileNumber[fileType]; ok {
		a.FileNumber = uint16(def)
	} else {
		return nil, plcerr.Newf(plcerr.BadParam, "pccc: address %q: file number required for type %q", addr, typeLetter)
	}

	if remainder == "" {
		return nil, plcerr.Newf(plcerr.BadParam, "pccc: address %q: missing element number", addr)
	}
	if err := parseElementAndModifiers(remainder, a); err != nil {
		return nil, plcerr.Wrap(plcerr.BadParam, "pccc: address "+addr, err)
	}
	return a, nil
}

func parseFileSpec(spec string) (typeLetter string, fileNum int, fileType byte, err error) {
	if spec == "" {
		return "", -1, 0, plcerr.New(plcerr.BadParam, "empty file specifier")
	}
	if len(spec) >= 2 {
		prefix := strings.ToUpper(spec[:2])
		if ft, ok := multiLetterPrefixes[prefix]; ok {
			n, perr := optionalNumber(spec[2:])
			if perr != nil {
				return "", -1, 0, perr
			}
			return prefix, n, ft, nil
		}
	}
	prefix := strings.ToUpper(spec[:1])
	ft, ok := typePrefixes[prefix]
	if !ok {
		return "", -1, 0, plcerr.Newf(plcerr.BadParam, "unknown file type %q", prefix)
	}
	n, perr := optionalNumber(spec[1:])
	if perr != nil {
		return "", -1, 0, perr
	}
	return prefix, n, ft, nil
}

func optionalNumber(s string) (int, error) {
	if s == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1, plcerr.Newf(plcerr.BadParam, "invalid file number %q", s)
	}
	return n, nil
}

func parseElementAndModifiers(remainder string, a *Address) error {
	if slash := strings.IndexByte(remainder, '/'); slash >= 0 {
		elem, err := strconv.ParseUint(remainder[:slash], 10, 16)
		if err != nil {
			return plcerr.Newf(plcerr.BadParam, "invalid element number %q", remainder[:slash])
		}
		bit, err := strconv.Atoi(remainder[slash+1:])
		if err != nil || bit < 0 || bit > 15 {
			return plcerr.Newf(plcerr.BadParam, "invalid bit number %q", remainder[slash+1:])
		}
		a.Element = uint16(elem)
		a.BitNumber = bit
		return nil
	}
	if dot := strings.IndexByte(remainder, '.'); dot >= 0 {
		elem, err := strconv.ParseUint(remainder[:dot], 10, 16)
		if err != nil {
			return plcerr.Newf(plcerr.BadParam, "invalid element number %q", remainder[:dot])
		}
		a.Element = uint16(elem)
		return parseSubElement(strings.ToUpper(remainder[dot+1:]), a)
	}
	elem, err := strconv.ParseUint(remainder, 10, 16)
	if err != nil {
		return plcerr.Newf(plcerr.BadParam, "invalid element number %q", remainder)
	}
	a.Element = uint16(elem)
	return nil
}

func parseSubElement(name string, a *Address) error {
	switch a.FileType {
	case FileTypeTimer:
		switch name {
		case "PRE":
			a.SubElement = uint16(TimerPRE)
		case "ACC":
			a.SubElement = uint16(TimerACC)
		case "EN":
			a.SubElement, a.BitNumber = uint16(TimerControl), TimerBitEN
		case "TT":
			a.SubElement, a.BitNumber = uint16(TimerControl), TimerBitTT
		case "DN":
			a.SubElement, a.BitNumber = uint16(TimerControl), TimerBitDN
		default:
			return numericSubElement(name, a)
		}
	case FileTypeCounter:
		switch name {
		case "PRE":
			a.SubElement = uint16(CounterPRE)
		case "ACC":
			a.SubElement = uint16(CounterACC)
		case "CU":
			a.SubElement, a.BitNumber = uint16(CounterControl), CounterBitCU
		case "CD":
			a.SubElement, a.BitNumber = uint16(CounterControl), CounterBitCD
		case "DN":
			a.SubElement, a.BitNumber = uint16(CounterControl), CounterBitDN
		case "OV":
			a.SubElement, a.BitNumber = uint16(CounterControl), CounterBitOV
		case "UN":
			a.SubElement, a.BitNumber = uint16(CounterControl), CounterBitUN
		default:
			return numericSubElement(name, a)
		}
	case FileTypeControl:
		switch name {
		case "LEN":
			a.SubElement = uint16(ControlLEN)
		case "POS":
			a.SubElement = uint16(ControlPOS)
		case "EN":
			a.SubElement, a.BitNumber = uint16(ControlWord), ControlBitEN
		case "EU":
			a.SubElement, a.BitNumber = uint16(ControlWord), ControlBitEU
		case "DN":
			a.SubElement, a.BitNumber = uint16(ControlWord), ControlBitDN
		case "EM":
			a.SubElement, a.BitNumber = uint16(ControlWord), ControlBitEM
		case "ER":
			a.SubElement, a.BitNumber = uint16(ControlWord), ControlBitER
		case "UL":
			a.SubElement, a.BitNumber = uint16(ControlWord), ControlBitUL
		case "IN":
			a.SubElement, a.BitNumber = uint16(ControlWord), ControlBitIN
		case "FD":
			a.SubElement, a.BitNumber = uint16(ControlWord), ControlBitFD
		default:
			return numericSubElement(name, a)
		}
	default:
		return numericSubElement(name, a)
	}
	return nil
}

func numericSubElement(name string, a *Address) error {
	sub, err := strconv.ParseUint(name, 10, 16)
	if err != nil {
		return plcerr.Newf(plcerr.BadParam, "unknown sub-element %q for file type %s", name, FileTypeName(a.FileType))
	}
	a.SubElement = uint16(sub)
	return nil
}
