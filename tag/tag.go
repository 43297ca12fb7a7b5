// Package tag implements the per-tag runtime: the state machine
// coordinating create, read, write, abort, and destroy; the tag data
// buffer and its read cache; auto-sync polling and write coalescing;
// and single-slot callback delivery.
package tag

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/libplctag/libplctag-sub000/attrstr"
	"github.com/libplctag/libplctag-sub000/cip"
	"github.com/libplctag/libplctag-sub000/frag"
	"github.com/libplctag/libplctag-sub000/logging"
	"github.com/libplctag/libplctag-sub000/packer"
	"github.com/libplctag/libplctag-sub000/pccc"
	"github.com/libplctag/libplctag-sub000/plcerr"
	"github.com/libplctag/libplctag-sub000/session"
	"github.com/libplctag/libplctag-sub000/tagpath"
)

// State is the tag lifecycle state.
type State int

const (
	StateInitializing State = iota
	StateIdle
	StateReadPending
	StateWritePending
	StateAborting
	StateDestroyed
	StateFaulted
)

// Event identifies a callback notification.
type Event int

const (
	EventCreated Event = iota
	EventReadStarted
	EventReadCompleted
	EventWriteStarted
	EventWriteCompleted
	EventAborted
	EventDestroyed
)

// Callback receives tag lifecycle events. It runs outside the tag's
// internal lock, on the goroutine driving the operation; it must not
// issue blocking operations against the same tag.
type Callback func(tagID int, event Event, status int, userdata any)

// CIP elementary type codes used when a write precedes the first read
// and the type must be inferred from the element size.
const (
	TypeBOOL  uint16 = 0x00C1
	TypeSINT  uint16 = 0x00C2
	TypeINT   uint16 = 0x00C3
	TypeDINT  uint16 = 0x00C4
	TypeLINT  uint16 = 0x00C5
	TypeREAL  uint16 = 0x00CA
	TypeLREAL uint16 = 0x00CB
)

// Tag is one client data point bound to a session.
type Tag struct {
	ID int

	opts *attrstr.Options
	enc  *tagpath.Encoded
	sess *session.Session
	plc5 bool

	mu        sync.Mutex
	state     State
	lastErr   error // terminal status of the last operation
	data      []byte
	dataType  uint16
	elemSize  int
	elemCount int

	cacheExpiry time.Time
	dirty       bool
	tpl         *Template // decoded by @udt/<n> reads

	cur       *session.Request
	abortFlag bool

	cb       Callback
	userdata any

	// advisory caller-facing lock (Lock/Unlock API)
	advisory sync.Mutex

	stopAuto  chan struct{}
	autoOnce  sync.Once
	writeTmr  *time.Timer
	destroyed sync.Once
}

// New validates the attribute string's tag addressing, acquires the
// shared session, and returns the tag in Idle state. No wire traffic
// happens here; the session connects lazily on the first operation.
func New(id int, o *attrstr.Options) (*Tag, error) {
	enc, err := tagpath.Encode(o.Family, o.Name)
	if err != nil {
		return nil, err
	}

	t := &Tag{
		ID:       id,
		opts:     o,
		enc:      enc,
		plc5:     tagpath.IsPLC5(o.Family),
		state:    StateInitializing,
		stopAuto: make(chan struct{}),
	}

	t.elemSize = o.ElemSize
	t.elemCount = o.ElemCount
	if t.elemCount <= 0 {
		t.elemCount = 1
	}
	if enc.Kind == tagpath.KindDataTable {
		if t.elemSize <= 0 {
			t.elemSize = enc.Addr.ReadSize()
		}
		t.dataType = typeForElemSize(t.elemSize)
	} else if t.elemSize > 0 {
		t.dataType = typeForElemSize(t.elemSize)
	}
	if t.elemSize > 0 {
		t.data = make([]byte, t.elemSize*t.elemCount)
	}

	sess, err := session.Acquire(o)
	if err != nil {
		return nil, err
	}
	t.sess = sess
	t.state = StateIdle

	if o.AutoSyncReadMs > 0 {
		go t.autoReadLoop(time.Duration(o.AutoSyncReadMs) * time.Millisecond)
	}
	return t, nil
}

func typeForElemSize(n int) uint16 {
	switch n {
	case 1:
		return TypeSINT
	case 2:
		return TypeINT
	case 8:
		return TypeLINT
	default:
		return TypeDINT
	}
}

// RegisterCallback installs the single callback slot. A second
// registration returns Duplicate.
func (t *Tag) RegisterCallback(cb Callback, userdata any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cb != nil {
		return plcerr.New(plcerr.Duplicate, "tag: callback already registered")
	}
	t.cb = cb
	t.userdata = userdata
	return nil
}

// UnregisterCallback clears the callback slot.
func (t *Tag) UnregisterCallback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cb == nil {
		return plcerr.New(plcerr.NotFound, "tag: no callback registered")
	}
	t.cb = nil
	t.userdata = nil
	return nil
}

// fire delivers an event outside the tag lock.
func (t *Tag) fire(ev Event, status int) {
	t.mu.Lock()
	cb := t.cb
	ud := t.userdata
	t.mu.Unlock()
	if cb != nil {
		cb(t.ID, ev, status, ud)
	}
}

// FireCreated delivers the creation event (used by create_ex, which
// registers the callback atomically with creation).
func (t *Tag) FireCreated() { t.fire(EventCreated, 0) }

// Status returns the control-plane status code: PENDING while an
// operation is in flight, otherwise the last terminal status.
func (t *Tag) Status() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case StateReadPending, StateWritePending, StateAborting, StateInitializing:
		return plcerr.Pending.Code()
	case StateDestroyed:
		return plcerr.NotFound.Code()
	}
	if t.lastErr != nil {
		return plcerr.KindOf(t.lastErr).Code()
	}
	return plcerr.OK.Code()
}

// State returns the current lifecycle state.
func (t *Tag) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Lock acquires the advisory caller lock used for multi-step atomicity
// across the scalar accessors.
func (t *Tag) Lock() { t.advisory.Lock() }

// Unlock releases the advisory caller lock.
func (t *Tag) Unlock() { t.advisory.Unlock() }

// Read starts a read. With timeout > 0 it blocks until the operation
// completes, aborting on expiry; with timeout == 0 it returns
// Pending immediately.
func (t *Tag) Read(timeout time.Duration) int {
	t.mu.Lock()
	switch t.state {
	case StateDestroyed:
		t.mu.Unlock()
		return plcerr.NotFound.Code()
	case StateReadPending, StateWritePending, StateAborting:
		t.mu.Unlock()
		return plcerr.Busy.Code()
	}

	// Read cache: a fresh enough buffer satisfies the read without
	// touching the wire.
	if t.opts.ReadCacheMs > 0 && time.Now().Before(t.cacheExpiry) {
		t.lastErr = nil
		t.mu.Unlock()
		t.fire(EventReadCompleted, plcerr.OK.Code())
		return plcerr.OK.Code()
	}

	t.state = StateReadPending
	t.abortFlag = false
	t.mu.Unlock()

	t.fire(EventReadStarted, plcerr.Pending.Code())

	done := make(chan int, 1)
	go func() { done <- t.doRead(deadlineFor(timeout)) }()

	if timeout <= 0 {
		go func() { <-done }()
		return plcerr.Pending.Code()
	}
	select {
	case code := <-done:
		return code
	case <-time.After(timeout):
		t.Abort()
		<-done
		return plcerr.Timeout.Code()
	}
}

// Write starts a write of the tag's entire data buffer. Timeout
// semantics match Read.
func (t *Tag) Write(timeout time.Duration) int {
	t.mu.Lock()
	switch t.state {
	case StateDestroyed:
		t.mu.Unlock()
		return plcerr.NotFound.Code()
	case StateReadPending, StateWritePending, StateAborting:
		t.mu.Unlock()
		return plcerr.Busy.Code()
	}
	if len(t.data) == 0 {
		t.mu.Unlock()
		return plcerr.NoData.Code()
	}
	t.state = StateWritePending
	t.abortFlag = false
	t.dirty = false
	t.mu.Unlock()

	t.fire(EventWriteStarted, plcerr.Pending.Code())

	done := make(chan int, 1)
	go func() { done <- t.doWrite(deadlineFor(timeout)) }()

	if timeout <= 0 {
		go func() { <-done }()
		return plcerr.Pending.Code()
	}
	select {
	case code := <-done:
		return code
	case <-time.After(timeout):
		t.Abort()
		<-done
		return plcerr.Timeout.Code()
	}
}

func deadlineFor(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// Abort cancels the currently pending operation, if any.
func (t *Tag) Abort() int {
	t.mu.Lock()
	if t.state != StateReadPending && t.state != StateWritePending {
		t.mu.Unlock()
		return plcerr.OK.Code()
	}
	t.state = StateAborting
	t.abortFlag = true
	cur := t.cur
	t.mu.Unlock()
	if cur != nil {
		t.sess.Abort(cur)
	}
	return plcerr.OK.Code()
}

func (t *Tag) aborted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.abortFlag
}

// finish records the terminal state of an operation and fires the
// matching event.
func (t *Tag) finish(ev Event, err error) int {
	t.mu.Lock()
	if t.state == StateDestroyed {
		t.mu.Unlock()
		return plcerr.NotFound.Code()
	}
	wasAborting := t.state == StateAborting || t.abortFlag
	t.abortFlag = false
	t.cur = nil
	if wasAborting && err == nil {
		err = plcerr.New(plcerr.Abort, "tag: operation aborted")
	}
	t.lastErr = err
	kind := plcerr.KindOf(err)
	if kind == plcerr.BadConnection || kind == plcerr.BadGateway {
		t.state = StateFaulted
	} else {
		t.state = StateIdle
	}
	t.mu.Unlock()

	code := kind.Code()
	if kind == plcerr.Abort {
		t.fire(EventAborted, code)
	} else {
		t.fire(ev, code)
	}
	return code
}

// issue enqueues one request and waits for its completion.
func (t *Tag) issue(cipBytes []byte, expectedReply int, deadline time.Time) ([]byte, error) {
	r := session.NewRequest(t.ID, cipBytes)
	r.AllowPack = t.opts.AllowPacking
	r.ExpectedReplyLen = expectedReply
	r.Deadline = deadline

	t.mu.Lock()
	if t.abortFlag {
		t.mu.Unlock()
		return nil, plcerr.New(plcerr.Abort, "tag: operation aborted")
	}
	t.cur = r
	t.mu.Unlock()

	if err := t.sess.Enqueue(r); err != nil {
		return nil, err
	}
	<-r.Done()
	return r.Reply()
}

// doRead drives the full read: one Read Tag plus as many fragmented
// continuations as general status 0x06 demands, or the bounded PCCC
// command sequence for data-table tags.
func (t *Tag) doRead(deadline time.Time) int {
	var err error
	switch t.enc.Kind {
	case tagpath.KindDataTable:
		err = t.readPCCC(deadline)
	case tagpath.KindTagList:
		err = t.readTagList(deadline)
	case tagpath.KindUDT:
		err = t.readTemplate(deadline)
	case tagpath.KindRaw:
		err = t.readRaw(deadline)
	case tagpath.KindChange, tagpath.KindServices, tagpath.KindIdentity:
		err = plcerr.Newf(plcerr.Unsupported, "tag: %q is not readable through the tag runtime", t.opts.Name)
	default:
		err = t.readCIP(deadline)
	}
	if err == nil {
		t.mu.Lock()
		if t.opts.ReadCacheMs > 0 {
			t.cacheExpiry = time.Now().Add(time.Duration(t.opts.ReadCacheMs) * time.Millisecond)
		}
		t.mu.Unlock()
	}
	return t.finish(EventReadCompleted, err)
}

func (t *Tag) readCIP(deadline time.Time) error {
	count := uint16(t.elemCount)
	expected := packer.EstimateReadReplyLen(maxInt(t.elemSize, 4), t.elemCount)

	var asm frag.ReadAssembler
	req := frag.BuildRead(t.enc.Path, count)
	for {
		if t.aborted() {
			return plcerr.New(plcerr.Abort, "tag: operation aborted")
		}
		frame, err := t.issue(req, expected, deadline)
		if err != nil {
			return err
		}
		done, err := asm.Add(frame)
		if err != nil {
			return err
		}
		if done {
			break
		}
		logging.DebugLog("frag", "tag %d: read continues at offset %d", t.ID, asm.Offset())
		req = frag.BuildReadFragment(t.enc.Path, count, asm.Offset())
	}

	payload := asm.Bytes()
	t.mu.Lock()
	t.dataType = asm.DataType()
	if t.elemSize <= 0 && t.elemCount > 0 {
		t.elemSize = len(payload) / t.elemCount
	}
	if len(t.data) != len(payload) {
		t.data = make([]byte, len(payload))
	}
	copy(t.data, payload)
	t.mu.Unlock()
	return nil
}

func (t *Tag) readPCCC(deadline time.Time) error {
	total := t.elemSize * t.elemCount
	chunks := frag.Chunks(total, pccc.MaxTransferBytes, t.elemSize)
	buf := make([]byte, 0, total)

	for _, c := range chunks {
		if t.aborted() {
			return plcerr.New(plcerr.Abort, "tag: operation aborted")
		}
		addr := t.enc.Addr.WithElement(t.enc.Addr.Element + uint16(c.Offset/t.elemSize))
		req, err := pccc.BuildReadRequest(&addr, c.Len, nextTns(), t.plc5, pcccVendorID, pcccSerial)
		if err != nil {
			return err
		}
		frame, err := t.issue(req, c.Len+16, deadline)
		if err != nil {
			return err
		}
		raw, err := pccc.UnwrapExecutePCCCResponse(frame)
		if err != nil {
			return err
		}
		data, err := pccc.ParseReadResponse(raw)
		if err != nil {
			return err
		}
		if len(data) < c.Len {
			return plcerr.Newf(plcerr.NoData, "tag: pccc read returned %d bytes, want %d", len(data), c.Len)
		}
		buf = append(buf, data[:c.Len]...)
	}

	t.mu.Lock()
	if len(t.data) != len(buf) {
		t.data = make([]byte, len(buf))
	}
	copy(t.data, buf)
	t.mu.Unlock()
	return nil
}

// readTagList issues a Get Instance Attribute List against the Symbol
// Object and stores the raw reply payload as the tag data; callers
// decode the entry list themselves, so the buffer grows to whatever
// the controller returns.
func (t *Tag) readTagList(deadline time.Time) error {
	// Requested attributes: symbol name (1) and symbol type (2).
	data := []byte{0x02, 0x00, 0x01, 0x00, 0x02, 0x00}
	req := cipRequest(cip.SvcGetInstanceAttrList, t.enc.Path, data)
	frame, err := t.issue(req, t.sess.MaxPayloadC2S(), deadline)
	if err != nil {
		return err
	}
	return t.storeRawReply(frame)
}

// readTemplate reads a UDT template definition: first the template
// instance attributes that size the transfer (definition length,
// structure size, member count), then the definition bytes themselves
// via as many Read Template chunks as the payload budget demands, and
// finally the decode into the member list Template() exposes. The raw
// definition bytes remain the tag's data buffer.
func (t *Tag) readTemplate(deadline time.Time) error {
	// Attributes 4 (definition size in 32-bit words), 5 (structure
	// size), 2 (member count), 1 (structure handle).
	attrReq := []byte{0x04, 0x00, 0x04, 0x00, 0x05, 0x00, 0x02, 0x00, 0x01, 0x00}
	frame, err := t.issue(cipRequest(cip.SvcGetAttributesList, t.enc.Path, attrReq), 64, deadline)
	if err != nil {
		return err
	}
	attrData, err := parseServiceReply(frame)
	if err != nil {
		return err
	}
	defWords, structSize, memberCount, _, err := cip.ParseTemplateAttributes(attrData)
	if err != nil {
		return plcerr.Wrap(plcerr.BadReply, "tag: template attributes", err)
	}

	// The on-wire definition is the attribute's word count minus the 23
	// bytes of header the controller holds back.
	defSize := int(defWords)*4 - 23
	if defSize <= 0 {
		return plcerr.Newf(plcerr.BadReply, "tag: template definition size %d words is too small", defWords)
	}

	budget := t.sess.MaxPayloadC2S() - frag.RequestOverhead
	raw := make([]byte, 0, defSize)
	for len(raw) < defSize {
		if t.aborted() {
			return plcerr.New(plcerr.Abort, "tag: operation aborted")
		}
		chunk := defSize - len(raw)
		if chunk > budget {
			chunk = budget
		}
		data := make([]byte, 6)
		binary.LittleEndian.PutUint32(data[0:4], uint32(len(raw)))
		binary.LittleEndian.PutUint16(data[4:6], uint16(chunk))
		frame, err := t.issue(cipRequest(cip.SvcReadTag, t.enc.Path, data), chunk+8, deadline)
		if err != nil {
			return err
		}
		payload, err := parseServiceReply(frame)
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			return plcerr.New(plcerr.NoData, "tag: empty template definition chunk")
		}
		raw = append(raw, payload...)
	}

	decoded, err := cip.ParseTemplate(t.enc.UDTInstance, memberCount, raw)
	if err != nil {
		return plcerr.Wrap(plcerr.BadReply, "tag: template definition", err)
	}

	t.mu.Lock()
	t.data = make([]byte, len(raw))
	copy(t.data, raw)
	t.elemSize = 1
	t.elemCount = len(raw)
	t.tpl = templateFromCIP(decoded, structSize)
	t.mu.Unlock()
	return nil
}

// readRaw sends the tag's current buffer as a complete CIP request and
// stores the raw reply frame. The caller stages the request with
// SetBlock before calling read.
func (t *Tag) readRaw(deadline time.Time) error {
	t.mu.Lock()
	payload := make([]byte, len(t.data))
	copy(payload, t.data)
	t.mu.Unlock()
	if len(payload) == 0 {
		return plcerr.New(plcerr.NoData, "tag: @raw tag has no staged request")
	}
	frame, err := t.issue(payload, t.sess.MaxPayloadC2S(), deadline)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.data = make([]byte, len(frame))
	copy(t.data, frame)
	t.elemSize = 1
	t.elemCount = len(frame)
	t.mu.Unlock()
	return nil
}

func (t *Tag) storeRawReply(frame []byte) error {
	resp, err := parseServiceReply(frame)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.data = make([]byte, len(resp))
	copy(t.data, resp)
	t.elemSize = 1
	t.elemCount = len(resp)
	t.mu.Unlock()
	return nil
}

// doWrite drives the full write, switching to the fragmented service
// when the payload exceeds what one request carries.
func (t *Tag) doWrite(deadline time.Time) int {
	t.mu.Lock()
	data := make([]byte, len(t.data))
	copy(data, t.data)
	t.mu.Unlock()

	var err error
	switch t.enc.Kind {
	case tagpath.KindDataTable:
		err = t.writePCCC(data, deadline)
	default:
		err = t.writeCIP(data, deadline)
	}
	return t.finish(EventWriteCompleted, err)
}

func (t *Tag) writeCIP(data []byte, deadline time.Time) error {
	count := uint16(t.elemCount)
	dt := t.dataType
	if dt == 0 {
		dt = typeForElemSize(t.elemSize)
	}
	maxPayload := t.sess.MaxPayloadC2S()

	if !frag.NeedsFragmentedWrite(len(data), maxPayload) {
		req := frag.BuildWrite(t.enc.Path, dt, count, data)
		frame, err := t.issue(req, 8, deadline)
		if err != nil {
			return err
		}
		return frag.ParseWriteReply(frame)
	}

	chunkSize := frag.WriteChunkSize(maxPayload)
	for _, c := range frag.Chunks(len(data), chunkSize, maxInt(t.elemSize, 1)) {
		if t.aborted() {
			return plcerr.New(plcerr.Abort, "tag: operation aborted")
		}
		req := frag.BuildWriteFragment(t.enc.Path, dt, count, uint32(c.Offset), data[c.Offset:c.Offset+c.Len])
		frame, err := t.issue(req, 8, deadline)
		if err != nil {
			return err
		}
		if err := frag.ParseWriteReply(frame); err != nil {
			return err
		}
		logging.DebugLog("frag", "tag %d: wrote fragment at offset %d (%d bytes)", t.ID, c.Offset, c.Len)
	}
	return nil
}

func (t *Tag) writePCCC(data []byte, deadline time.Time) error {
	for _, c := range frag.Chunks(len(data), pccc.MaxTransferBytes, t.elemSize) {
		if t.aborted() {
			return plcerr.New(plcerr.Abort, "tag: operation aborted")
		}
		addr := t.enc.Addr.WithElement(t.enc.Addr.Element + uint16(c.Offset/t.elemSize))
		req, err := pccc.BuildWriteRequest(&addr, data[c.Offset:c.Offset+c.Len], nextTns(), t.plc5, pcccVendorID, pcccSerial)
		if err != nil {
			return err
		}
		frame, err := t.issue(req, 16, deadline)
		if err != nil {
			return err
		}
		raw, err := pccc.UnwrapExecutePCCCResponse(frame)
		if err != nil {
			return err
		}
		if err := pccc.ParseWriteResponse(raw); err != nil {
			return err
		}
	}
	return nil
}

// Destroy aborts any in-flight operation, stops the auto-sync timers,
// fires DESTROYED exactly once, and releases the session reference.
func (t *Tag) Destroy() int {
	code := plcerr.OK.Code()
	t.destroyed.Do(func() {
		t.Abort()
		t.autoOnce.Do(func() { close(t.stopAuto) })

		t.mu.Lock()
		if t.writeTmr != nil {
			t.writeTmr.Stop()
			t.writeTmr = nil
		}
		// Wait out the pending operation by spinning on state; the
		// abort above guarantees it terminates promptly.
		for t.state == StateReadPending || t.state == StateWritePending || t.state == StateAborting {
			t.mu.Unlock()
			time.Sleep(pollStep)
			t.mu.Lock()
		}
		t.state = StateDestroyed
		t.mu.Unlock()

		t.sess.RemoveTag(t.ID)
		t.fire(EventDestroyed, plcerr.OK.Code())
		t.sess.Release()
	})
	return code
}

const pollStep = 2 * time.Millisecond

// autoReadLoop periodically issues a background read while the tag is
// idle; ticks that land while an operation is pending are skipped, not
// queued.
func (t *Tag) autoReadLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopAuto:
			return
		case <-ticker.C:
			t.mu.Lock()
			idle := t.state == StateIdle
			t.mu.Unlock()
			if idle {
				t.Read(0)
			}
		}
	}
}

// markDirty arms the auto-sync write coalescing timer after a set_*
// mutation. Multiple mutations inside the window coalesce into one
// write of the whole buffer.
func (t *Tag) markDirty() {
	if t.opts.AutoSyncWriteMs <= 0 {
		t.mu.Lock()
		t.dirty = true
		t.mu.Unlock()
		return
	}
	t.mu.Lock()
	t.dirty = true
	if t.writeTmr == nil {
		t.writeTmr = time.AfterFunc(time.Duration(t.opts.AutoSyncWriteMs)*time.Millisecond, t.autoWriteFire)
	}
	t.mu.Unlock()
}

func (t *Tag) autoWriteFire() {
	t.mu.Lock()
	t.writeTmr = nil
	dirty := t.dirty
	destroyed := t.state == StateDestroyed
	t.mu.Unlock()
	if dirty && !destroyed {
		t.Write(0)
	}
}

// Data returns a copy of the tag's data buffer.
func (t *Tag) Data() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.data))
	copy(out, t.data)
	return out
}

// Size returns the tag data buffer length in bytes.
func (t *Tag) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.data)
}

// ElemSize returns the element size in bytes.
func (t *Tag) ElemSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elemSize
}

// ElemCount returns the element count.
func (t *Tag) ElemCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elemCount
}

// StringDescriptor returns the effective string layout for this tag.
func (t *Tag) StringDescriptor() attrstr.StringDescriptor { return t.opts.Str }

// Options returns the parsed attribute options this tag was created
// with. The returned pointer is shared; callers must not mutate it.
func (t *Tag) Options() *attrstr.Options { return t.opts }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func cipRequest(svc byte, path cip.EPath_t, data []byte) []byte {
	return cip.Request{Service: svc, Path: path, Data: data}.Marshal()
}

// parseServiceReply strips the CIP response header and surfaces a
// fatal general status as a BadStatus error. Partial-transfer replies
// pass through: the caller keeps whatever arrived.
func parseServiceReply(frame []byte) ([]byte, error) {
	resp, err := cip.ParseResponse(frame)
	if err != nil {
		return nil, err
	}
	if resp.IsFatal() {
		return nil, plcerr.Newf(plcerr.BadStatus, "tag: %s (status 0x%02X)",
			cip.StatusName(resp.GeneralStatus), resp.GeneralStatus)
	}
	return resp.Data, nil
}
