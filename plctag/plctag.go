// Package plctag is the control-plane API: integer tag handles over
// the tag runtime, with create/destroy/read/write/abort/status, the
// scalar accessors, callback and logger registration, and the
// synthetic "library" tags (version, debug level, identity).
package plctag

import (
	"sync"
	"time"

	"github.com/libplctag/libplctag-sub000/attrstr"
	"github.com/libplctag/libplctag-sub000/logging"
	"github.com/libplctag/libplctag-sub000/plcerr"
	"github.com/libplctag/libplctag-sub000/session"
	"github.com/libplctag/libplctag-sub000/tag"
)

// Library version, reported by the "version" library tag and checked
// by CheckLibVersion.
const (
	VersionMajor = 2
	VersionMinor = 6
	VersionPatch = 4
)

// Status codes re-exported for callers that prefer symbolic names over
// raw integers.
const (
	StatusOK      = 0
	StatusPending = 1
)

// Event re-exports so callers don't import the tag package just for
// callback registration.
const (
	EventCreated        = tag.EventCreated
	EventReadStarted    = tag.EventReadStarted
	EventReadCompleted  = tag.EventReadCompleted
	EventWriteStarted   = tag.EventWriteStarted
	EventWriteCompleted = tag.EventWriteCompleted
	EventAborted        = tag.EventAborted
	EventDestroyed      = tag.EventDestroyed
)

// Callback mirrors tag.Callback.
type Callback = tag.Callback

// entry is one live handle: either a real tag or a synthetic library
// tag.
type entry struct {
	t   *tag.Tag
	lib *libraryTag
}

var lib = struct {
	mu     sync.Mutex
	tags   map[int]*entry
	nextID int

	loggerMu sync.Mutex
	logger   func(level int, msg string)

	debugMu    sync.Mutex
	debugLevel int

	shutdown bool
}{tags: make(map[int]*entry), nextID: 1}

// Create parses an attribute string and returns a new tag handle, or a
// negative status code on failure. With timeout == 0 the tag is
// returned immediately and the caller polls Status; tag creation never
// touches the wire, so the distinction only matters to callers written
// against the asynchronous contract.
func Create(attrib string, timeout time.Duration) (int, error) {
	return create(attrib, timeout, nil, nil)
}

// CreateEx is Create with a callback registered atomically before any
// event can fire, so EventCreated is reliably delivered.
func CreateEx(attrib string, cb Callback, userdata any, timeout time.Duration) (int, error) {
	return create(attrib, timeout, cb, userdata)
}

func create(attrib string, timeout time.Duration, cb Callback, userdata any) (int, error) {
	lib.mu.Lock()
	if lib.shutdown {
		lib.mu.Unlock()
		return plcerr.NotAllowed.Code(), plcerr.New(plcerr.NotAllowed, "plctag: library is shut down")
	}
	lib.mu.Unlock()

	o, err := attrstr.Parse(attrib)
	if err != nil {
		return plcerr.KindOf(err).Code(), err
	}
	if o.DebugLevel > 0 {
		SetDebugLevel(o.DebugLevel)
	}

	if attrstr.IsLibraryTag(o) {
		return createLibraryTag(o, cb, userdata)
	}

	id := allocID()
	t, err := tag.New(id, o)
	if err != nil {
		return plcerr.KindOf(err).Code(), err
	}
	if cb != nil {
		_ = t.RegisterCallback(cb, userdata)
	}

	lib.mu.Lock()
	lib.tags[id] = &entry{t: t}
	lib.mu.Unlock()

	t.FireCreated()
	logging.DebugLog("tag", "created tag %d for %q", id, o.Name)
	return id, nil
}

func allocID() int {
	lib.mu.Lock()
	defer lib.mu.Unlock()
	id := lib.nextID
	// Handles are never reused for the lifetime of the process, which
	// makes use-after-destroy reliably detectable.
	lib.nextID++
	return id
}

func lookup(id int) (*entry, error) {
	lib.mu.Lock()
	defer lib.mu.Unlock()
	e, ok := lib.tags[id]
	if !ok {
		return nil, plcerr.Newf(plcerr.NotFound, "plctag: no tag with id %d", id)
	}
	return e, nil
}

func lookupTag(id int) (*tag.Tag, error) {
	e, err := lookup(id)
	if err != nil {
		return nil, err
	}
	if e.t == nil {
		return nil, plcerr.Newf(plcerr.Unsupported, "plctag: tag %d is a library tag", id)
	}
	return e.t, nil
}

// Destroy tears down a tag handle. It is synchronous with respect to
// callback delivery: EventDestroyed fires exactly once, after any
// in-flight operation has been aborted or completed. A library-tag
// handle keeps no callback, so destroying one fires no event. A second
// Destroy of the same id returns NotFound.
func Destroy(id int) int {
	lib.mu.Lock()
	e, ok := lib.tags[id]
	if ok {
		delete(lib.tags, id)
	}
	lib.mu.Unlock()
	if !ok {
		return plcerr.NotFound.Code()
	}
	if e.t != nil {
		return e.t.Destroy()
	}
	return StatusOK
}

// Read starts (or completes, with a positive timeout) a read of the
// tag's data from the PLC.
func Read(id int, timeout time.Duration) int {
	e, err := lookup(id)
	if err != nil {
		return plcerr.KindOf(err).Code()
	}
	if e.lib != nil {
		return e.lib.read()
	}
	return e.t.Read(timeout)
}

// Write starts (or completes) a write of the tag's data to the PLC.
func Write(id int, timeout time.Duration) int {
	e, err := lookup(id)
	if err != nil {
		return plcerr.KindOf(err).Code()
	}
	if e.lib != nil {
		return e.lib.write()
	}
	return e.t.Write(timeout)
}

// Abort cancels the currently pending operation on the tag.
func Abort(id int) int {
	t, err := lookupTag(id)
	if err != nil {
		return plcerr.KindOf(err).Code()
	}
	return t.Abort()
}

// Status returns the tag's current status: StatusPending while an
// operation is in flight, otherwise the last terminal status.
func Status(id int) int {
	e, err := lookup(id)
	if err != nil {
		return plcerr.KindOf(err).Code()
	}
	if e.lib != nil {
		return StatusOK
	}
	return e.t.Status()
}

// Lock acquires the tag's advisory lock for multi-step accessor
// atomicity.
func Lock(id int) int {
	t, err := lookupTag(id)
	if err != nil {
		return plcerr.KindOf(err).Code()
	}
	t.Lock()
	return StatusOK
}

// Unlock releases the tag's advisory lock.
func Unlock(id int) int {
	t, err := lookupTag(id)
	if err != nil {
		return plcerr.KindOf(err).Code()
	}
	t.Unlock()
	return StatusOK
}

// RegisterCallback installs the tag's single callback slot; a second
// registration returns Duplicate.
func RegisterCallback(id int, cb Callback, userdata any) int {
	t, err := lookupTag(id)
	if err != nil {
		return plcerr.KindOf(err).Code()
	}
	if err := t.RegisterCallback(cb, userdata); err != nil {
		return plcerr.KindOf(err).Code()
	}
	return StatusOK
}

// UnregisterCallback clears the tag's callback slot.
func UnregisterCallback(id int) int {
	t, err := lookupTag(id)
	if err != nil {
		return plcerr.KindOf(err).Code()
	}
	if err := t.UnregisterCallback(); err != nil {
		return plcerr.KindOf(err).Code()
	}
	return StatusOK
}

// RegisterLogger installs the process-global log callback, which then
// receives every protocol trace message tagged with its debug level; a
// second registration returns Duplicate.
func RegisterLogger(fn func(level int, msg string)) int {
	lib.loggerMu.Lock()
	defer lib.loggerMu.Unlock()
	if lib.logger != nil {
		return plcerr.Duplicate.Code()
	}
	lib.logger = fn
	logging.SetCallbackLogger(fn)
	return StatusOK
}

// UnregisterLogger clears the global log callback.
func UnregisterLogger() int {
	lib.loggerMu.Lock()
	defer lib.loggerMu.Unlock()
	if lib.logger == nil {
		return plcerr.NotFound.Code()
	}
	lib.logger = nil
	logging.SetCallbackLogger(nil)
	return StatusOK
}

// SetDebugLevel sets the process-global debug level (0-5).
func SetDebugLevel(level int) {
	if level < 0 {
		level = 0
	}
	if level > 5 {
		level = 5
	}
	lib.debugMu.Lock()
	lib.debugLevel = level
	lib.debugMu.Unlock()
}

// DebugLevel returns the process-global debug level.
func DebugLevel() int {
	lib.debugMu.Lock()
	defer lib.debugMu.Unlock()
	return lib.debugLevel
}

// CheckLibVersion reports whether the linked library is semantically
// compatible with the requested version: same major, minor at least
// the requested one.
func CheckLibVersion(major, minor, patch int) int {
	if major != VersionMajor {
		return plcerr.Unsupported.Code()
	}
	if minor > VersionMinor {
		return plcerr.Unsupported.Code()
	}
	if minor == VersionMinor && patch > VersionPatch {
		return plcerr.Unsupported.Code()
	}
	return StatusOK
}

// Shutdown force-tears down every tag and session. After Shutdown no
// further API call is valid; it is the caller's responsibility that no
// other call is in flight.
func Shutdown() {
	lib.mu.Lock()
	lib.shutdown = true
	entries := make([]*entry, 0, len(lib.tags))
	for id, e := range lib.tags {
		entries = append(entries, e)
		delete(lib.tags, id)
	}
	lib.mu.Unlock()

	for _, e := range entries {
		if e.t != nil {
			e.t.Destroy()
		}
	}
	session.ShutdownAll()
}

// DecodeError renders a status code as a short human-readable string.
func DecodeError(code int) string {
	if code >= 0 {
		if code == StatusPending {
			return "PENDING"
		}
		return "OK"
	}
	return plcerr.Kind(-code).String()
}
