package plctag

import (
	"fmt"
	"sync"
	"time"

	"github.com/libplctag/libplctag-sub000/attrstr"
	"github.com/libplctag/libplctag-sub000/buffer"
	"github.com/libplctag/libplctag-sub000/plcerr"
)

// libraryTag is a synthetic tag addressing library state rather than
// PLC data: "make=system&family=library&name=version" reads the packed
// version string, "...&name=debug" reads or writes the global debug
// level as a u32, and "...&name=identity&gateway=host" performs a
// ListIdentity discovery call against the gateway on each read.
type libraryTag struct {
	name    string
	gateway string

	mu    sync.Mutex
	data  []byte
	ident *DeviceIdentity
}

func createLibraryTag(o *attrstr.Options, cb Callback, userdata any) (int, error) {
	switch o.Name {
	case "version", "debug":
	case "identity":
		if o.Gateway == "" {
			return plcerr.BadConfig.Code(), plcerr.New(plcerr.BadConfig, "plctag: identity library tag requires a gateway")
		}
	default:
		return plcerr.NotFound.Code(), plcerr.Newf(plcerr.NotFound, "plctag: unknown library tag %q", o.Name)
	}

	lt := &libraryTag{name: o.Name, gateway: o.Gateway}
	lt.refresh()

	id := allocID()
	lib.mu.Lock()
	lib.tags[id] = &entry{lib: lt}
	lib.mu.Unlock()

	if cb != nil {
		cb(id, EventCreated, StatusOK, userdata)
	}
	return id, nil
}

// refresh materializes the tag's data buffer from library state. The
// identity tag refreshes on read instead: its state lives on the
// remote device.
func (l *libraryTag) refresh() {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.name {
	case "version":
		s := fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
		l.data = append([]byte(s), 0)
	case "debug":
		w := buffer.New(4)
		w.PutU32(uint32(DebugLevel()))
		l.data = w.Bytes()
	}
}

func (l *libraryTag) read() int {
	if l.name == "identity" {
		if _, err := l.identity(); err != nil {
			return plcerr.KindOf(err).Code()
		}
		return StatusOK
	}
	l.refresh()
	return StatusOK
}

// identity queries the gateway and caches the decoded identity block;
// the tag's data buffer becomes the NUL-terminated product name.
func (l *libraryTag) identity() (*DeviceIdentity, error) {
	if l.name != "identity" {
		return nil, plcerr.Newf(plcerr.Unsupported, "plctag: library tag %q has no device identity", l.name)
	}
	ident, err := QueryIdentity(l.gateway, 5*time.Second)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.ident = ident
	l.data = append([]byte(ident.ProductName), 0)
	l.mu.Unlock()
	return ident, nil
}

func (l *libraryTag) write() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.name {
	case "debug":
		if len(l.data) < 4 {
			return plcerr.TooSmall.Code()
		}
		SetDebugLevel(int(buffer.Wrap(l.data).GetU32()))
		return StatusOK
	}
	return plcerr.NotAllowed.Code()
}

func (l *libraryTag) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.data)
}

func (l *libraryTag) getU32(offset int) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if offset < 0 || offset+4 > len(l.data) {
		return 0, plcerr.New(plcerr.OutOfBounds, "plctag: offset outside library tag data")
	}
	return buffer.Wrap(l.data[offset:]).GetU32(), nil
}

func (l *libraryTag) setU32(offset int, v uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if offset < 0 || offset+4 > len(l.data) {
		return plcerr.New(plcerr.OutOfBounds, "plctag: offset outside library tag data")
	}
	buffer.Wrap(l.data[offset:]).PutU32(v)
	return nil
}

func (l *libraryTag) getString() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.data
	for i, c := range out {
		if c == 0 {
			out = out[:i]
			break
		}
	}
	return string(out)
}
