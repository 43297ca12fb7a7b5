// Package session owns the per-endpoint protocol state: the TCP socket,
// the EtherNet/IP session handle, the optional CIP Forward-Open
// connection, and the FIFO of pending requests drained by one worker
// goroutine per session. Sessions are shared: tags whose attribute
// strings agree on (gateway, path, family, connection group) multiplex
// onto one session; a differing connection_group_id forces a distinct
// session and its own Forward Open.
package session

import (
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/libplctag/libplctag-sub000/attrstr"
	"github.com/libplctag/libplctag-sub000/cip"
	"github.com/libplctag/libplctag-sub000/eip"
	"github.com/libplctag/libplctag-sub000/logging"
	"github.com/libplctag/libplctag-sub000/packer"
	"github.com/libplctag/libplctag-sub000/plcerr"
	"github.com/libplctag/libplctag-sub000/tagpath"
)

const (
	// DefaultPort is the EtherNet/IP TCP port.
	DefaultPort = 44818

	// PayloadSmall is the legacy connection payload negotiated by a
	// standard Forward Open.
	PayloadSmall = 504

	// PayloadLarge is the payload negotiated by a Large Forward Open.
	PayloadLarge = 4002

	// ForwardOpenRetries bounds consecutive Forward Open rejections
	// tolerated during connect before the session surfaces
	// BadConnection.
	ForwardOpenRetries = 5

	// pollInterval is the worker's wakeup cadence for servicing
	// timeouts and shutdown while the queue is idle.
	pollInterval = 10 * time.Millisecond

	// teardownGrace is how long an unreferenced session lingers before
	// its TCP connection is torn down, so a destroy-then-recreate churn
	// does not thrash Register Session.
	teardownGrace = 2 * time.Second

	defaultIOTimeout = 5 * time.Second
)

// Key identifies a shareable session.
type Key struct {
	Gateway string
	Path    string
	Family  attrstr.PLCFamily
	Group   int
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%d", k.Gateway, k.Path, k.Family, k.Group)
}

// Session multiplexes the tags of one endpoint over one TCP connection.
type Session struct {
	key          Key
	routePath    []byte
	useConnected bool
	preferLarge  bool

	mu         sync.Mutex
	queue      []*Request
	wake       chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
	refs       int
	graceTimer *time.Timer

	// Wire state below is touched only by the worker goroutine. A
	// faulted session simply has conn == nil; the next serviced request
	// triggers the rebuild.
	conn          net.Conn
	handle        uint32
	cipConn       *cip.Connection
	maxPayloadC2S int
	maxPayloadS2C int
}

var registry = struct {
	mu sync.Mutex
	m  map[Key]*Session
}{m: make(map[Key]*Session)}

// KeyFor derives the sharing key from parsed attributes.
func KeyFor(o *attrstr.Options) Key {
	return Key{Gateway: o.Gateway, Path: o.Path, Family: o.Family, Group: o.ConnectionGroup}
}

// Acquire returns the shared session for the given attributes, creating
// and starting it on first use. The caller must Release when the owning
// tag is destroyed.
func Acquire(o *attrstr.Options) (*Session, error) {
	key := KeyFor(o)

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if s, ok := registry.m[key]; ok {
		s.mu.Lock()
		s.refs++
		if s.graceTimer != nil {
			s.graceTimer.Stop()
			s.graceTimer = nil
		}
		s.mu.Unlock()
		return s, nil
	}

	routePath, err := tagpath.ConnectionPath(o)
	if err != nil {
		return nil, err
	}

	s := &Session{
		key:           key,
		routePath:     routePath,
		useConnected:  defaultConnected(o),
		preferLarge:   o.Protocol == attrstr.ProtocolABEIP2,
		wake:          make(chan struct{}, 1),
		closed:        make(chan struct{}),
		refs:          1,
		maxPayloadC2S: PayloadSmall,
		maxPayloadS2C: PayloadSmall,
	}
	registry.m[key] = s
	go s.worker()
	return s, nil
}

func defaultConnected(o *attrstr.Options) bool {
	if o.UseConnectedMsg != nil {
		return *o.UseConnectedMsg
	}
	// Logix-family and Omron default to connected messaging; the PCCC
	// flavors default to unconnected Execute PCCC.
	return !tagpath.IsPCCC(o.Family)
}

// Release drops one tag's reference. The session lingers for a grace
// period after the last reference before tearing down.
func (s *Session) Release() {
	s.mu.Lock()
	s.refs--
	if s.refs > 0 {
		s.mu.Unlock()
		return
	}
	s.graceTimer = time.AfterFunc(teardownGrace, func() {
		registry.mu.Lock()
		s.mu.Lock()
		idle := s.refs == 0
		s.mu.Unlock()
		if idle {
			delete(registry.m, s.key)
		}
		registry.mu.Unlock()
		if idle {
			s.Shutdown()
		}
	})
	s.mu.Unlock()
}

// Shutdown force-tears the session down: all queued and in-flight
// requests fail, the CIP connection is Forward-Closed and the EIP
// session unregistered best-effort, and the worker exits.
func (s *Session) Shutdown() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// ShutdownAll tears down every registered session. Used by the
// control-plane library shutdown.
func ShutdownAll() {
	registry.mu.Lock()
	all := make([]*Session, 0, len(registry.m))
	for k, s := range registry.m {
		all = append(all, s)
		delete(registry.m, k)
	}
	registry.mu.Unlock()
	for _, s := range all {
		s.Shutdown()
	}
}

// MaxPayloadC2S returns the negotiated client-to-server payload budget.
func (s *Session) MaxPayloadC2S() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPayloadC2S
}

// UseConnected reports whether this session frames requests over a CIP
// Forward-Open connection.
func (s *Session) UseConnected() bool { return s.useConnected }

// Enqueue appends a request to the FIFO and wakes the worker. A
// faulted session revives lazily: the worker attempts a fresh connect
// on this request's behalf.
func (s *Session) Enqueue(r *Request) error {
	select {
	case <-s.closed:
		return plcerr.New(plcerr.BadConnection, "session: shut down")
	default:
	}
	r.UseConnected = s.useConnected
	s.mu.Lock()
	s.queue = append(s.queue, r)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Abort cancels a request: removed and completed immediately if still
// queued; if already on the wire, its reply is consumed and discarded
// by the worker, then the request completes with Abort.
func (s *Session) Abort(r *Request) {
	r.markAborted()
	s.mu.Lock()
	for i, q := range s.queue {
		if q == r {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.mu.Unlock()
			r.complete(nil, plcerr.New(plcerr.Abort, "session: request aborted"))
			return
		}
	}
	s.mu.Unlock()
}

// RemoveTag aborts every queued request belonging to tagID. Called on
// tag destroy.
func (s *Session) RemoveTag(tagID int) {
	s.mu.Lock()
	var kept []*Request
	var dropped []*Request
	for _, q := range s.queue {
		if q.TagID == tagID {
			dropped = append(dropped, q)
		} else {
			kept = append(kept, q)
		}
	}
	s.queue = kept
	s.mu.Unlock()
	for _, r := range dropped {
		r.complete(nil, plcerr.New(plcerr.Abort, "session: tag removed"))
	}
}

// worker is the single I/O goroutine: it drains the queue, packs
// compatible runs of requests, performs the wire transaction, and
// routes replies back. All socket access happens here.
func (s *Session) worker() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			s.teardown()
			return
		case <-s.wake:
		case <-ticker.C:
		}
		s.expireTimeouts()
		s.serviceQueue()
	}
}

func (s *Session) expireTimeouts() {
	now := time.Now()
	s.mu.Lock()
	var kept []*Request
	var expired []*Request
	for _, q := range s.queue {
		if q.expired(now) {
			expired = append(expired, q)
		} else {
			kept = append(kept, q)
		}
	}
	s.queue = kept
	s.mu.Unlock()
	for _, r := range expired {
		r.complete(nil, plcerr.New(plcerr.Timeout, "session: request expired in queue"))
	}
}

func (s *Session) serviceQueue() {
	for {
		select {
		case <-s.closed:
			return
		default:
		}

		s.mu.Lock()
		pending := len(s.queue)
		s.mu.Unlock()
		if pending == 0 {
			return
		}

		// Connect before dequeuing so the packer sees the negotiated
		// payload budgets, and so requests enqueued while the connect
		// handshake runs can still join the first packed batch.
		if err := s.ensureConnected(); err != nil {
			s.failAllQueued(err)
			return
		}

		batch, packed := s.dequeueBatch()
		if len(batch) == 0 {
			return
		}

		reply, err := s.transact(packed, batch[0].UseConnected, s.batchDeadline(batch))
		if err != nil {
			// TCP-level errors fault the session; the reconnect is lazy.
			if plcerr.KindOf(err) == plcerr.BadConnection || plcerr.KindOf(err) == plcerr.Timeout {
				s.fault(err)
				s.failBatch(batch, err)
				s.failAllQueued(err)
				return
			}
			// Wire-parse errors abort only this batch.
			s.failBatch(batch, err)
			continue
		}
		s.deliver(batch, reply)
	}
}

// dequeueBatch pops the head request, or a packable run of head
// requests merged into one Multiple Service Packet.
func (s *Session) dequeueBatch() ([]*Request, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop aborted requests before they reach the wire.
	var live []*Request
	var aborted []*Request
	for _, q := range s.queue {
		if q.Aborted() {
			aborted = append(aborted, q)
		} else {
			live = append(live, q)
		}
	}
	s.queue = live
	for _, r := range aborted {
		r.complete(nil, plcerr.New(plcerr.Abort, "session: request aborted"))
	}
	if len(s.queue) == 0 {
		return nil, nil
	}

	cands := make([]packer.Candidate, len(s.queue))
	for i, q := range s.queue {
		cands[i] = packer.Candidate{
			CIP:              q.CIP,
			ExpectedReplyLen: q.ExpectedReplyLen,
			AllowPack:        q.AllowPack,
			UseConnected:     q.UseConnected,
		}
	}
	n, packed, err := packer.Pack(cands, s.maxPayloadC2S, s.maxPayloadS2C)
	if err != nil || n < 1 {
		n, packed = 1, s.queue[0].CIP
	}
	batch := s.queue[:n:n]
	s.queue = s.queue[n:]
	if n > 1 {
		logging.DebugLog("packer", "packed %d requests into one Multiple Service Packet (%d bytes)", n, len(packed))
	}
	return batch, packed
}

func (s *Session) batchDeadline(batch []*Request) time.Time {
	deadline := time.Now().Add(defaultIOTimeout)
	for _, r := range batch {
		if !r.Deadline.IsZero() && r.Deadline.Before(deadline) {
			deadline = r.Deadline
		}
	}
	return deadline
}

func (s *Session) failBatch(batch []*Request, err error) {
	for _, r := range batch {
		if r.Aborted() {
			r.complete(nil, plcerr.New(plcerr.Abort, "session: request aborted"))
		} else {
			r.complete(nil, err)
		}
	}
}

func (s *Session) failAllQueued(err error) {
	s.mu.Lock()
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, r := range queued {
		r.complete(nil, err)
	}
}

// deliver routes the raw reply to the batch: one frame for a single
// request, per-sub-reply routing for a packed batch.
func (s *Session) deliver(batch []*Request, reply []byte) {
	if len(batch) == 1 {
		r := batch[0]
		if r.Aborted() {
			r.complete(nil, plcerr.New(plcerr.Abort, "session: request aborted"))
			return
		}
		r.complete(reply, nil)
		return
	}

	frames, err := packer.Unpack(reply, len(batch))
	if err != nil {
		s.failBatch(batch, err)
		return
	}
	for i, r := range batch {
		if r.Aborted() {
			r.complete(nil, plcerr.New(plcerr.Abort, "session: request aborted"))
			continue
		}
		if frames[i] == nil {
			r.complete(nil, plcerr.New(plcerr.BadReply, "session: missing sub-reply"))
			continue
		}
		r.complete(frames[i], nil)
	}
}

func (s *Session) fault(err error) {
	logging.DebugError("session", s.key.String(), err)
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.handle = 0
	s.cipConn = nil
}

// ensureConnected dials, registers the EIP session, and (for connected
// sessions) performs the Forward Open, on first use and again after a
// fault. Rebuild is lazy: it only runs when a request needs the wire.
func (s *Session) ensureConnected() error {
	if s.conn != nil {
		return nil
	}

	addr := s.key.Gateway
	if !strings.Contains(addr, ":") {
		addr = fmt.Sprintf("%s:%d", addr, DefaultPort)
	}

	logging.DebugConnect("session", addr)
	d := net.Dialer{Timeout: defaultIOTimeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		logging.DebugConnectError("session", addr, err)
		return plcerr.Wrap(plcerr.BadGateway, "session: connect "+addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(30 * time.Second)
	}
	s.conn = conn

	if err := s.registerSession(); err != nil {
		_ = conn.Close()
		s.conn = nil
		return err
	}
	logging.DebugConnectSuccess("session", addr, fmt.Sprintf("session=0x%08X", s.handle))

	if s.useConnected {
		if err := s.forwardOpen(); err != nil {
			_ = conn.Close()
			s.conn = nil
			s.handle = 0
			return err
		}
	}
	return nil
}

func (s *Session) registerSession() error {
	req := &eip.Encap{
		Command: eip.CmdRegisterSession,
		Data:    []byte{1, 0, 0, 0}, // protocol version 1, options 0
	}
	resp, err := s.transactEncap(req, time.Now().Add(defaultIOTimeout))
	if err != nil {
		return plcerr.Wrap(plcerr.BadConnection, "session: register session", err)
	}
	if resp.Status != 0 {
		return plcerr.Newf(plcerr.BadConnection, "session: register session status 0x%08X", resp.Status)
	}
	if resp.SessionHandle == 0 {
		return plcerr.New(plcerr.BadConnection, "session: register session returned handle 0")
	}
	s.handle = resp.SessionHandle
	return nil
}

// forwardOpen negotiates the CIP connection. Each budgeted attempt
// sends one Forward Open; the first attempt uses the large variant when
// the dialect prefers it, later attempts fall back to the standard
// size.
func (s *Session) forwardOpen() error {
	var lastErr error
	for attempt := 0; attempt < ForwardOpenRetries; attempt++ {
		size := uint16(PayloadSmall)
		if s.preferLarge && attempt == 0 {
			size = PayloadLarge
		}
		if err := s.tryForwardOpen(size); err != nil {
			lastErr = err
			logging.DebugLog("session", "forward open attempt %d (size %d) failed: %v", attempt+1, size, err)
			if k := plcerr.KindOf(err); k == plcerr.BadConnection || k == plcerr.Timeout {
				break
			}
			continue
		}
		s.maxPayloadC2S = int(size)
		s.maxPayloadS2C = int(size)
		logging.DebugLog("session", "forward open established: O->T 0x%08X, T->O 0x%08X, payload %d",
			s.cipConn.OTConnID, s.cipConn.TOConnID, size)
		return nil
	}
	return plcerr.Wrap(plcerr.BadConnection, "session: forward open rejected", lastErr)
}

func (s *Session) tryForwardOpen(size uint16) error {
	cfg := cip.DefaultForwardOpenConfig()
	cfg.ConnectionPath = s.connectionPath()
	cfg.OTConnectionSize = size
	cfg.TOConnectionSize = size

	var reqData []byte
	var connSerial uint16
	var err error
	if size <= 511 {
		reqData, connSerial, err = cip.BuildForwardOpenRequestSmall(cfg)
	} else {
		reqData, connSerial, err = cip.BuildForwardOpenRequest(cfg)
	}
	if err != nil {
		return err
	}

	frame, err := s.rrTransaction(reqData, time.Now().Add(defaultIOTimeout))
	if err != nil {
		return err
	}
	resp, err := cip.ParseResponse(frame)
	if err != nil {
		return plcerr.Wrap(plcerr.BadReply, "session: forward open reply", err)
	}
	if resp.ReplyService != (cip.SvcForwardOpen|cip.ReplyFlag) && resp.ReplyService != (cip.SvcForwardOpenLarge|cip.ReplyFlag) {
		return plcerr.Newf(plcerr.BadReply, "session: unexpected forward open reply service 0x%02X", resp.ReplyService)
	}
	if resp.GeneralStatus != cip.StatusSuccess {
		ext := uint16(0)
		if len(resp.AdditionalStatus) > 0 {
			ext = resp.AdditionalStatus[0]
		}
		return plcerr.Newf(plcerr.BadStatus, "session: forward open rejected: %s (status 0x%02X, extended 0x%04X)",
			cip.StatusName(resp.GeneralStatus), resp.GeneralStatus, ext)
	}

	fo, err := cip.ParseForwardOpenResponse(resp.Data)
	if err != nil {
		return plcerr.Wrap(plcerr.BadReply, "session: forward open reply", err)
	}
	s.cipConn = &cip.Connection{
		OTConnID:     fo.OTConnectionID,
		TOConnID:     fo.TOConnectionID,
		SerialNumber: connSerial,
		VendorID:     cfg.VendorID,
		OrigSerial:   cfg.OriginatorSerial,
	}
	return nil
}

// connectionPath is the Forward Open route: the backplane path followed
// by the Message Router (class 2, instance 1).
func (s *Session) connectionPath() []byte {
	path := make([]byte, 0, len(s.routePath)+4)
	path = append(path, s.routePath...)
	path = append(path, 0x20, 0x02, 0x24, 0x01)
	return path
}

func (s *Session) forwardClose() {
	if s.cipConn == nil {
		return
	}
	reqData, err := cip.BuildForwardCloseRequest(s.cipConn, s.connectionPath())
	if err == nil {
		_, _ = s.rrTransaction(reqData, time.Now().Add(defaultIOTimeout))
	}
	s.cipConn = nil
}

func (s *Session) unregisterSession() {
	if s.conn == nil || s.handle == 0 {
		return
	}
	req := &eip.Encap{Command: eip.CmdUnregisterSess, SessionHandle: s.handle}
	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = s.conn.Write(req.Bytes())
	s.handle = 0
}

func (s *Session) teardown() {
	err := plcerr.New(plcerr.BadConnection, "session: shut down")
	s.failAllQueued(err)
	s.forwardClose()
	s.unregisterSession()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	logging.DebugDisconnect("session", s.key.Gateway, "session teardown")
}

// transact performs one wire operation: frame the CIP payload (routed
// or connected as appropriate), write, and read the matching reply.
func (s *Session) transact(cipReq []byte, connected bool, deadline time.Time) ([]byte, error) {
	if connected && s.cipConn != nil {
		return s.unitTransaction(cipReq, deadline)
	}
	// Logix behind a backplane path needs Unconnected Send routing; a
	// direct-attach target (Micro800, PCCC flavors, our test server)
	// takes the request bare.
	routed := cipReq
	if len(s.routePath) > 0 && !tagpath.IsPCCC(s.key.Family) {
		var err error
		routed, err = cip.BuildUnconnectedSend(cipReq, s.routePath)
		if err != nil {
			return nil, plcerr.Wrap(plcerr.BadParam, "session: ucmm wrap", err)
		}
	}
	frame, err := s.rrTransaction(routed, deadline)
	if err != nil {
		return nil, err
	}
	return cip.UnwrapUnconnectedSendResponse(frame)
}

// rrTransaction sends one SendRRData exchange and returns the raw CIP
// response frame from the unconnected-data CPF item.
func (s *Session) rrTransaction(cipReq []byte, deadline time.Time) ([]byte, error) {
	cpf := eip.NewUnconnectedCPF(cipReq)
	cmd := &eip.CommandData{Packet: cpf.Bytes()}
	req := &eip.Encap{
		Command:       eip.CmdSendRRData,
		SessionHandle: s.handle,
		Data:          cmd.Bytes(),
	}
	resp, err := s.transactEncap(req, deadline)
	if err != nil {
		return nil, err
	}
	if resp.Status != 0 {
		return nil, plcerr.Newf(plcerr.BadStatus, "session: SendRRData status 0x%08X", resp.Status)
	}
	cdata, err := eip.ParseCommandData(resp.Data)
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadReply, "session: SendRRData", err)
	}
	pkt, err := eip.ParseCPF(cdata.Packet)
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadReply, "session: SendRRData", err)
	}
	return cpfUnconnected(pkt)
}

func cpfUnconnected(pkt *eip.CPF) ([]byte, error) {
	data, err := pkt.UnconnectedData()
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadReply, "session: cpf", err)
	}
	return data, nil
}

// unitTransaction sends one SendUnitData exchange over the CIP
// connection and returns the raw CIP response frame with the sequence
// prefix stripped.
func (s *Session) unitTransaction(cipReq []byte, deadline time.Time) ([]byte, error) {
	seqData := s.cipConn.WrapConnected(cipReq)
	cpf := eip.NewConnectedCPF(s.cipConn.OTConnID, seqData)
	cmd := &eip.CommandData{Packet: cpf.Bytes()}
	req := &eip.Encap{
		Command:       eip.CmdSendUnitData,
		SessionHandle: s.handle,
		Data:          cmd.Bytes(),
	}
	resp, err := s.transactEncap(req, deadline)
	if err != nil {
		return nil, err
	}
	if resp.Status != 0 {
		return nil, plcerr.Newf(plcerr.BadStatus, "session: SendUnitData status 0x%08X", resp.Status)
	}
	cdata, err := eip.ParseCommandData(resp.Data)
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadReply, "session: SendUnitData", err)
	}
	pkt, err := eip.ParseCPF(cdata.Packet)
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadReply, "session: SendUnitData", err)
	}
	_, data, err := pkt.ConnectedData()
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadReply, "session: SendUnitData", err)
	}
	_, cipResp, err := s.cipConn.UnwrapConnected(data)
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadReply, "session: SendUnitData", err)
	}
	return cipResp, nil
}

// transactEncap writes one encapsulation frame and reads the reply. The
// read loop uses short poll deadlines so shutdown stays responsive.
func (s *Session) transactEncap(req *eip.Encap, deadline time.Time) (*eip.Encap, error) {
	req.Context = s.nextContext()
	raw := req.Bytes()
	logging.DebugTX("eip", raw)
	_ = s.conn.SetWriteDeadline(time.Now().Add(defaultIOTimeout))
	if _, err := s.conn.Write(raw); err != nil {
		return nil, plcerr.Wrap(plcerr.BadConnection, "session: write", err)
	}

	header, err := s.readFull(eip.EncapHeaderLen, deadline)
	if err != nil {
		return nil, err
	}
	length, err := eip.PeekLength(header)
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadReply, "session: peek length", err)
	}
	payload, err := s.readFull(int(length), deadline)
	if err != nil {
		return nil, err
	}
	full := append(header, payload...)
	logging.DebugRX("eip", full)
	resp, err := eip.ParseEncap(full)
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadReply, "session: parse encap", err)
	}
	if resp.SessionHandle != 0 && s.handle != 0 && resp.SessionHandle != s.handle {
		return nil, plcerr.Newf(plcerr.BadReply, "session: handle mismatch: got 0x%08X want 0x%08X", resp.SessionHandle, s.handle)
	}
	return resp, nil
}

// readFull reads exactly n bytes, polling in short slices so the
// closed flag and the overall deadline are both serviced.
func (s *Session) readFull(n int, deadline time.Time) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		select {
		case <-s.closed:
			return nil, plcerr.New(plcerr.BadConnection, "session: shut down")
		default:
		}
		if time.Now().After(deadline) {
			return nil, plcerr.New(plcerr.Timeout, "session: read timed out")
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pollInterval))
		m, err := s.conn.Read(buf[got:])
		got += m
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if err == io.EOF && got < n {
				return nil, plcerr.New(plcerr.BadConnection, "session: connection closed by peer")
			}
			return nil, plcerr.Wrap(plcerr.BadConnection, "session: read", err)
		}
	}
	return buf, nil
}

var contextCounter struct {
	mu sync.Mutex
	n  uint64
}

func (s *Session) nextContext() uint64 {
	contextCounter.mu.Lock()
	contextCounter.n++
	n := contextCounter.n
	contextCounter.mu.Unlock()
	return n
}
