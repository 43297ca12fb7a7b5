package abserver

import (
	"encoding/binary"
	"io"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/libplctag/libplctag-sub000/buffer"
	"github.com/libplctag/libplctag-sub000/eip"
	"github.com/libplctag/libplctag-sub000/logging"
	"github.com/libplctag/libplctag-sub000/plcerr"
)

// Config is the server's startup configuration.
type Config struct {
	PLC  PLCType
	Path []byte // expected backplane path bytes ("1,0" -> {1,0}); nil accepts any

	// RejectForwardOpens makes the server bounce the first N Forward
	// Open attempts with status 0x01 / extended 0x0100, to exercise the
	// client's retry logic.
	RejectForwardOpens int

	Tags []*ServerTag
}

// Server is one listening test PLC.
type Server struct {
	cfg Config

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	rejectFO int

	tagsByName map[string]*ServerTag
	filesByKey map[fileKey]*ServerTag

	stats statCounters
}

type fileKey struct {
	fileType   byte
	fileNumber uint16
}

// New builds a server from its configuration.
func New(cfg Config) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		conns:      make(map[net.Conn]struct{}),
		rejectFO:   cfg.RejectForwardOpens,
		tagsByName: make(map[string]*ServerTag),
		filesByKey: make(map[fileKey]*ServerTag),
	}
	for _, t := range cfg.Tags {
		if _, dup := s.tagsByName[strings.ToLower(t.Name)]; dup {
			return nil, plcerr.Newf(plcerr.Duplicate, "abserver: duplicate tag %q", t.Name)
		}
		s.tagsByName[strings.ToLower(t.Name)] = t
		if cfg.PLC.IsPCCC() {
			s.filesByKey[fileKey{t.FileType, t.FileNumber}] = t
		}
	}
	return s, nil
}

// Start listens on addr ("127.0.0.1:0" in tests, ":44818" in the CLI)
// and serves connections until Close.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	go s.acceptLoop()
	logging.DebugLog("abserver", "listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Tag returns the inventory entry with the given name, or nil.
func (s *Server) Tag(name string) *ServerTag {
	return s.tagsByName[strings.ToLower(name)]
}

// Close stops the listener and drops every open connection.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		go s.serveConn(conn)
	}
}

// clientState is the per-connection protocol state.
type clientState struct {
	conn          net.Conn
	sessionHandle uint32

	// Forward Open connection state.
	open          bool
	clientConnID  uint32 // the client's T->O id: we address replies with it
	serverConnID  uint32 // our O->T id: the client addresses requests with it
	connSerial    uint16
	maxPacketC2S  int
	maxPacketS2C  int
}

func (s *Server) serveConn(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	st := &clientState{conn: conn, maxPacketC2S: 504, maxPacketS2C: 504}

	for {
		req, err := readEncap(conn)
		if err != nil {
			if err != io.EOF {
				logging.DebugError("abserver", "read", err)
			}
			return
		}
		logging.DebugRX("abserver", req.Bytes())

		var resp *eip.Encap
		switch req.Command {
		case eip.CmdRegisterSession:
			s.stats.registerSessions.Add(1)
			resp = s.handleRegister(st, req)
		case eip.CmdUnregisterSess:
			s.stats.unregisterSessions.Add(1)
			return
		case eip.CmdListIdentity:
			s.stats.listIdentities.Add(1)
			resp = s.handleListIdentity(st, req)
		case eip.CmdListServices:
			resp = s.handleListServices(req)
		case eip.CmdSendRRData:
			resp = s.handleSendRRData(st, req)
		case eip.CmdSendUnitData:
			resp = s.handleSendUnitData(st, req)
		case eip.CmdNOP:
			continue
		default:
			resp = &eip.Encap{Command: req.Command, SessionHandle: req.SessionHandle, Status: 0x0001, Context: req.Context}
		}
		if resp == nil {
			return
		}
		raw := resp.Bytes()
		logging.DebugTX("abserver", raw)
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if _, err := conn.Write(raw); err != nil {
			return
		}
	}
}

func readEncap(conn net.Conn) (*eip.Encap, error) {
	header := make([]byte, eip.EncapHeaderLen)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}
	length, err := eip.PeekLength(header)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return eip.ParseEncap(append(header, payload...))
}

// handleRegister validates the Register Session request (handle 0,
// status 0, protocol version 1, options 0) and assigns a random
// non-zero session handle.
func (s *Server) handleRegister(st *clientState, req *eip.Encap) *eip.Encap {
	fail := func(status uint32) *eip.Encap {
		return &eip.Encap{Command: eip.CmdRegisterSession, Status: status, Context: req.Context, Data: req.Data}
	}
	if req.SessionHandle != 0 || req.Status != 0 || req.Options != 0 {
		return fail(0x0003)
	}
	if len(req.Data) < 4 {
		return fail(0x0003)
	}
	version := binary.LittleEndian.Uint16(req.Data[0:2])
	options := binary.LittleEndian.Uint16(req.Data[2:4])
	if version != 1 || options != 0 {
		return fail(0x0003)
	}

	for st.sessionHandle == 0 {
		st.sessionHandle = rand.Uint32()
	}
	return &eip.Encap{
		Command:       eip.CmdRegisterSession,
		SessionHandle: st.sessionHandle,
		Context:       req.Context,
		Data:          []byte{1, 0, 0, 0},
	}
}

func (s *Server) handleListServices(req *eip.Encap) *eip.Encap {
	// One "Communications" service item: version 1, capability flags
	// for CIP-over-TCP.
	name := [16]byte{}
	copy(name[:], "Communications")
	item := buffer.New(4 + 20)
	item.PutU16(eip.ItemListServicesResp)
	item.PutU16(20)
	item.PutU16(1)      // protocol version
	item.PutU16(0x0020) // capability: TCP
	item.PutBytes(name[:])

	payload := buffer.New(2 + item.Len())
	payload.PutU16(1)
	payload.PutBytes(item.Bytes())
	return &eip.Encap{Command: eip.CmdListServices, SessionHandle: req.SessionHandle, Context: req.Context, Data: payload.Bytes()}
}

func (s *Server) handleListIdentity(st *clientState, req *eip.Encap) *eip.Encap {
	name := "ab_server test PLC"

	body := buffer.New(2 + 16 + 2 + 2 + 2 + 2 + 2 + 4 + 1 + len(name) + 1)
	body.PutU16(1) // encapsulation version
	// Socket address: family/port big-endian, then the IPv4 address.
	sock := make([]byte, 16)
	binary.BigEndian.PutUint16(sock[0:2], 2) // AF_INET
	binary.BigEndian.PutUint16(sock[2:4], 44818)
	if tcp, ok := st.conn.LocalAddr().(*net.TCPAddr); ok {
		if v4 := tcp.IP.To4(); v4 != nil {
			copy(sock[4:8], v4)
		}
	}
	body.PutBytes(sock)
	body.PutU16(0x0001) // vendor: Rockwell
	body.PutU16(0x000E) // device type: programmable controller
	body.PutU16(0x0042) // product code
	body.PutU8(27)      // revision major
	body.PutU8(11)      // revision minor
	body.PutU16(0x0000) // status
	body.PutU32(0xC0FFEE01)
	body.PutU8(uint8(len(name)))
	body.PutBytes([]byte(name))
	body.PutU8(0x03) // state

	payload := buffer.New(2 + 4 + body.Len())
	payload.PutU16(1)
	payload.PutU16(eip.ItemListIdentityResp)
	payload.PutU16(uint16(body.Len()))
	payload.PutBytes(body.Bytes())
	return &eip.Encap{Command: eip.CmdListIdentity, SessionHandle: req.SessionHandle, Context: req.Context, Data: payload.Bytes()}
}

func (s *Server) handleSendRRData(st *clientState, req *eip.Encap) *eip.Encap {
	fail := func(status uint32) *eip.Encap {
		return &eip.Encap{Command: req.Command, SessionHandle: req.SessionHandle, Status: status, Context: req.Context}
	}
	if st.sessionHandle == 0 || req.SessionHandle != st.sessionHandle {
		return fail(0x0064) // invalid session handle
	}
	cdata, err := eip.ParseCommandData(req.Data)
	if err != nil {
		return fail(0x0003)
	}
	pkt, err := eip.ParseCPF(cdata.Packet)
	if err != nil {
		return fail(0x0003)
	}
	cipReq, err := pkt.UnconnectedData()
	if err != nil {
		return fail(0x0003)
	}

	cipResp := s.dispatchCIP(st, cipReq, false)

	respCPF := eip.NewUnconnectedCPF(cipResp)
	respCmd := &eip.CommandData{Packet: respCPF.Bytes()}
	return &eip.Encap{
		Command:       eip.CmdSendRRData,
		SessionHandle: st.sessionHandle,
		Context:       req.Context,
		Data:          respCmd.Bytes(),
	}
}

func (s *Server) handleSendUnitData(st *clientState, req *eip.Encap) *eip.Encap {
	fail := func(status uint32) *eip.Encap {
		return &eip.Encap{Command: req.Command, SessionHandle: req.SessionHandle, Status: status, Context: req.Context}
	}
	if st.sessionHandle == 0 || req.SessionHandle != st.sessionHandle {
		return fail(0x0064)
	}
	if !st.open {
		return fail(0x0001)
	}
	cdata, err := eip.ParseCommandData(req.Data)
	if err != nil {
		return fail(0x0003)
	}
	pkt, err := eip.ParseCPF(cdata.Packet)
	if err != nil {
		return fail(0x0003)
	}
	connID, seqData, err := pkt.ConnectedData()
	if err != nil {
		return fail(0x0003)
	}
	if connID != st.serverConnID {
		return fail(0x0001)
	}
	if len(seqData) < 2 {
		return fail(0x0003)
	}
	seq := binary.LittleEndian.Uint16(seqData[0:2])
	cipReq := seqData[2:]

	cipResp := s.dispatchCIP(st, cipReq, true)

	respSeq := make([]byte, 2+len(cipResp))
	binary.LittleEndian.PutUint16(respSeq[0:2], seq)
	copy(respSeq[2:], cipResp)
	respCPF := eip.NewConnectedCPF(st.clientConnID, respSeq)
	respCmd := &eip.CommandData{Packet: respCPF.Bytes()}
	return &eip.Encap{
		Command:       eip.CmdSendUnitData,
		SessionHandle: st.sessionHandle,
		Context:       req.Context,
		Data:          respCmd.Bytes(),
	}
}
