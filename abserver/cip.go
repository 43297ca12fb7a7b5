package abserver

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"strconv"
	"strings"

	"github.com/libplctag/libplctag-sub000/cip"
	"github.com/libplctag/libplctag-sub000/logging"
)

// replyOverhead is the CIP response header plus type-word cost reserved
// out of the negotiated packet budget when sizing read replies.
const replyOverhead = 12

// parsedPath is a decoded request EPath: either a logical class/
// instance address or a symbolic tag reference with member subscripts.
type parsedPath struct {
	name     string
	indices  []uint32
	class    uint32
	instance uint32
	hasClass bool
}

func parseEPath(b []byte) (*parsedPath, error) {
	p := &parsedPath{}
	var nameParts []string
	i := 0
	for i < len(b) {
		seg := b[i]
		switch {
		case seg == 0x91: // ANSI extended symbolic
			if i+1 >= len(b) {
				return nil, errTruncatedPath
			}
			n := int(b[i+1])
			if i+2+n > len(b) {
				return nil, errTruncatedPath
			}
			nameParts = append(nameParts, string(b[i+2:i+2+n]))
			i += 2 + n
			if n%2 != 0 {
				i++ // pad
			}
		case seg == 0x28: // 8-bit member
			if i+1 >= len(b) {
				return nil, errTruncatedPath
			}
			p.indices = append(p.indices, uint32(b[i+1]))
			i += 2
		case seg == 0x29: // 16-bit member (padded)
			if i+3 >= len(b) {
				return nil, errTruncatedPath
			}
			p.indices = append(p.indices, uint32(binary.LittleEndian.Uint16(b[i+2:i+4])))
			i += 4
		case seg == 0x2A: // 32-bit member (padded)
			if i+5 >= len(b) {
				return nil, errTruncatedPath
			}
			p.indices = append(p.indices, binary.LittleEndian.Uint32(b[i+2:i+6]))
			i += 6
		case seg == 0x20: // 8-bit class
			if i+1 >= len(b) {
				return nil, errTruncatedPath
			}
			p.class = uint32(b[i+1])
			p.hasClass = true
			i += 2
		case seg == 0x21: // 16-bit class (padded)
			if i+3 >= len(b) {
				return nil, errTruncatedPath
			}
			p.class = uint32(binary.LittleEndian.Uint16(b[i+2:i+4]))
			p.hasClass = true
			i += 4
		case seg == 0x24: // 8-bit instance
			if i+1 >= len(b) {
				return nil, errTruncatedPath
			}
			p.instance = uint32(b[i+1])
			i += 2
		case seg == 0x25: // 16-bit instance (padded)
			if i+3 >= len(b) {
				return nil, errTruncatedPath
			}
			p.instance = uint32(binary.LittleEndian.Uint16(b[i+2:i+4]))
			i += 4
		case seg == 0x26: // 32-bit instance (padded)
			if i+5 >= len(b) {
				return nil, errTruncatedPath
			}
			p.instance = binary.LittleEndian.Uint32(b[i+2:i+6])
			i += 6
		default:
			return nil, errTruncatedPath
		}
	}
	p.name = strings.Join(nameParts, ".")
	return p, nil
}

type pathError string

func (e pathError) Error() string { return string(e) }

const errTruncatedPath = pathError("abserver: truncated or unsupported path segment")

// makeCIPError builds an error response frame for a request service.
func makeCIPError(svc byte, status byte, ext ...uint16) []byte {
	out := []byte{svc | cip.ReplyFlag, 0x00, status, byte(len(ext))}
	for _, e := range ext {
		out = binary.LittleEndian.AppendUint16(out, e)
	}
	return out
}

// dispatchCIP routes one CIP request frame to its handler and returns
// the raw response frame.
func (s *Server) dispatchCIP(st *clientState, req []byte, connected bool) []byte {
	if len(req) < 2 {
		return makeCIPError(0x00, cip.StatusNotEnoughData)
	}
	svc := req[0]
	pathLen := int(req[1]) * 2
	if 2+pathLen > len(req) {
		return makeCIPError(svc, cip.StatusNotEnoughData)
	}
	path, err := parseEPath(req[2 : 2+pathLen])
	if err != nil {
		return makeCIPError(svc, cip.StatusPathSegErr)
	}
	data := req[2+pathLen:]

	switch {
	case svc == cip.SvcUnconnectedSend && path.hasClass && path.class == uint32(cip.ClassConnectionManager):
		return s.handleUnconnectedSend(st, svc, data, connected)

	case (svc == cip.SvcForwardOpen || svc == cip.SvcForwardOpenLarge) && path.hasClass && path.class == uint32(cip.ClassConnectionManager):
		s.stats.forwardOpens.Add(1)
		return s.handleForwardOpen(st, svc, data)

	case svc == cip.SvcForwardClose && path.hasClass && path.class == uint32(cip.ClassConnectionManager):
		s.stats.forwardCloses.Add(1)
		return s.handleForwardClose(st, svc, data)

	case svc == cip.SvcExecutePCCC && path.hasClass && path.class == 0x67:
		s.stats.pcccExecutes.Add(1)
		return s.handleExecutePCCC(svc, data)

	case svc == cip.SvcMultipleServicePacket && path.hasClass && path.class == uint32(cip.ClassMessageRouter):
		s.stats.multiServices.Add(1)
		return s.handleMultipleService(st, svc, data, connected)

	case svc == cip.SvcReadTag && !path.hasClass:
		s.stats.readTags.Add(1)
		return s.handleReadTag(st, svc, path, data, 0)

	case svc == cip.SvcReadTagFragmented && !path.hasClass:
		s.stats.readFragments.Add(1)
		if len(data) < 6 {
			return makeCIPError(svc, cip.StatusNotEnoughData)
		}
		offset := binary.LittleEndian.Uint32(data[2:6])
		return s.handleReadTag(st, svc, path, data[:2], offset)

	case svc == cip.SvcWriteTag && !path.hasClass:
		s.stats.writeTags.Add(1)
		return s.handleWriteTag(svc, path, data, false)

	case svc == cip.SvcWriteTagFragmented && !path.hasClass:
		s.stats.writeFragments.Add(1)
		return s.handleWriteTag(svc, path, data, true)
	}
	return makeCIPError(svc, cip.StatusServiceNotSup)
}

// handleUnconnectedSend unwraps a routed request, validates the route
// against the configured backplane path, and dispatches the embedded
// request.
func (s *Server) handleUnconnectedSend(st *clientState, svc byte, data []byte, connected bool) []byte {
	if len(data) < 4 {
		return makeCIPError(svc, cip.StatusNotEnoughData)
	}
	msgLen := int(binary.LittleEndian.Uint16(data[2:4]))
	if 4+msgLen > len(data) {
		return makeCIPError(svc, cip.StatusNotEnoughData)
	}
	embedded := data[4 : 4+msgLen]

	routeStart := 4 + msgLen
	if msgLen%2 != 0 {
		routeStart++
	}
	if routeStart+2 <= len(data) && len(s.cfg.Path) > 0 {
		routeWords := int(data[routeStart])
		route := data[routeStart+2:]
		if len(route) >= routeWords*2 {
			route = route[:routeWords*2]
		}
		if !bytes.Equal(route, s.cfg.Path) {
			logging.DebugLog("abserver", "route %x does not match configured path %x", route, s.cfg.Path)
			return makeCIPError(svc, cip.StatusConnFailure, 0x0311)
		}
	}

	inner := s.dispatchCIP(st, embedded, connected)
	// The reply travels back bare: the Unconnected_Send wrapper is not
	// echoed on success.
	return inner
}

func (s *Server) handleForwardOpen(st *clientState, svc byte, data []byte) []byte {
	large := svc == cip.SvcForwardOpenLarge
	need := 2 + 4 + 4 + 2 + 2 + 4 + 4 + 4 + 2 + 4 + 2 + 1 + 1
	if large {
		need += 4 // both connection parameter fields widen to 32 bits
	}
	if len(data) < need {
		return makeCIPError(svc, cip.StatusNotEnoughData)
	}

	r := data
	// priority(1) timeoutTicks(1), then the O->T id the client proposes
	// (unused: the server assigns its own O->T id in the reply).
	toConnID := binary.LittleEndian.Uint32(r[6:10])
	connSerial := binary.LittleEndian.Uint16(r[10:12])
	vendorID := binary.LittleEndian.Uint16(r[12:14])
	origSerial := binary.LittleEndian.Uint32(r[14:18])
	// multiplier(4) at [18:22]
	otRPI := binary.LittleEndian.Uint32(r[22:26])
	pos := 26
	var otParams, toParams uint32
	if large {
		otParams = binary.LittleEndian.Uint32(r[pos : pos+4])
		pos += 4
	} else {
		otParams = uint32(binary.LittleEndian.Uint16(r[pos : pos+2]))
		pos += 2
	}
	toRPI := binary.LittleEndian.Uint32(r[pos : pos+4])
	pos += 4
	if large {
		toParams = binary.LittleEndian.Uint32(r[pos : pos+4])
		pos += 4
	} else {
		toParams = uint32(binary.LittleEndian.Uint16(r[pos : pos+2]))
		pos += 2
	}
	pos++ // transport trigger
	if pos >= len(r) {
		return makeCIPError(svc, cip.StatusNotEnoughData)
	}
	pathWords := int(r[pos])
	pos++
	if pos+pathWords*2 > len(r) {
		return makeCIPError(svc, cip.StatusNotEnoughData)
	}
	connPath := r[pos : pos+pathWords*2]

	// The connection path is the backplane route plus the Message
	// Router address; validate the route part when one is configured.
	if len(s.cfg.Path) > 0 {
		want := append(append([]byte{}, s.cfg.Path...), 0x20, 0x02, 0x24, 0x01)
		if !bytes.Equal(connPath, want) {
			logging.DebugLog("abserver", "forward open path %x does not match %x", connPath, want)
			return makeCIPError(svc, cip.StatusServiceNotSup)
		}
	}

	s.mu.Lock()
	reject := s.rejectFO > 0
	if reject {
		s.rejectFO--
	}
	s.mu.Unlock()
	if reject {
		logging.DebugLog("abserver", "bouncing forward open for debugging")
		return makeCIPError(svc, cip.StatusConnFailure, 0x0100)
	}

	if large {
		st.maxPacketC2S = int(otParams & 0xFFFF)
		st.maxPacketS2C = int(toParams & 0xFFFF)
	} else {
		st.maxPacketC2S = int(otParams & 0x1FF)
		st.maxPacketS2C = int(toParams & 0x1FF)
	}
	st.open = true
	st.clientConnID = toConnID
	st.serverConnID = rand.Uint32()
	st.connSerial = connSerial

	out := []byte{svc | cip.ReplyFlag, 0x00, cip.StatusSuccess, 0x00}
	out = binary.LittleEndian.AppendUint32(out, st.serverConnID) // O->T id, server-chosen
	out = binary.LittleEndian.AppendUint32(out, toConnID)        // T->O id, echoed
	out = binary.LittleEndian.AppendUint16(out, connSerial)
	out = binary.LittleEndian.AppendUint16(out, vendorID)
	out = binary.LittleEndian.AppendUint32(out, origSerial)
	out = binary.LittleEndian.AppendUint32(out, otRPI)
	out = binary.LittleEndian.AppendUint32(out, toRPI)
	out = append(out, 0x00, 0x00) // application reply size, reserved
	return out
}

func (s *Server) handleForwardClose(st *clientState, svc byte, data []byte) []byte {
	if len(data) < 10 {
		return makeCIPError(svc, cip.StatusNotEnoughData)
	}
	connSerial := binary.LittleEndian.Uint16(data[2:4])
	vendorID := binary.LittleEndian.Uint16(data[4:6])
	origSerial := binary.LittleEndian.Uint32(data[6:10])
	if !st.open || connSerial != st.connSerial {
		return makeCIPError(svc, cip.StatusConnLost)
	}
	st.open = false

	out := []byte{svc | cip.ReplyFlag, 0x00, cip.StatusSuccess, 0x00}
	out = binary.LittleEndian.AppendUint16(out, connSerial)
	out = binary.LittleEndian.AppendUint16(out, vendorID)
	out = binary.LittleEndian.AppendUint32(out, origSerial)
	out = append(out, 0x00, 0x00)
	return out
}

func (s *Server) lookupTag(p *parsedPath) *ServerTag {
	return s.tagsByName[strings.ToLower(p.name)]
}

// handleReadTag serves Read Tag and Read Tag Fragmented. The reply is
// capped at the negotiated server-to-client packet budget; a transfer
// that does not fit ends with general status 0x06 so the client
// continues with fragmented reads at increasing offsets.
func (s *Server) handleReadTag(st *clientState, svc byte, p *parsedPath, data []byte, fragOffset uint32) []byte {
	t := s.lookupTag(p)
	if t == nil {
		return makeCIPError(svc, cip.StatusPathDestUnknown)
	}
	if len(data) < 2 {
		return makeCIPError(svc, cip.StatusNotEnoughData)
	}
	count := int(binary.LittleEndian.Uint16(data[0:2]))
	if count == 0 {
		return makeCIPError(svc, cip.StatusInvalidParam)
	}

	base, err := t.elemOffset(p.indices)
	if err != nil {
		return makeCIPError(svc, cip.StatusPathDestUnknown)
	}
	total := count * t.Type.size
	if base+total > t.Size() {
		return makeCIPError(svc, cip.StatusTooMuchData, 0x2105)
	}

	start := base + int(fragOffset)
	remaining := base + total - start
	if remaining <= 0 {
		return makeCIPError(svc, cip.StatusInvalidParam)
	}

	budget := st.maxPacketS2C - replyOverhead
	budget -= budget % t.Type.size
	partial := remaining > budget
	n := remaining
	if partial {
		n = budget
	}

	payload, err := t.ReadAt(start, n)
	if err != nil {
		return makeCIPError(svc, cip.StatusInvalidParam)
	}

	status := cip.StatusSuccess
	if partial {
		status = cip.StatusPartialTransfer
	}
	out := []byte{svc | cip.ReplyFlag, 0x00, status, 0x00}
	out = binary.LittleEndian.AppendUint16(out, t.Type.cipType)
	out = append(out, payload...)
	return out
}

// handleWriteTag serves Write Tag and Write Tag Fragmented.
func (s *Server) handleWriteTag(svc byte, p *parsedPath, data []byte, fragmented bool) []byte {
	t := s.lookupTag(p)
	if t == nil {
		return makeCIPError(svc, cip.StatusPathDestUnknown)
	}
	header := 4
	if fragmented {
		header = 8
	}
	if len(data) < header {
		return makeCIPError(svc, cip.StatusNotEnoughData)
	}
	dataType := binary.LittleEndian.Uint16(data[0:2])
	count := int(binary.LittleEndian.Uint16(data[2:4]))
	var offset uint32
	if fragmented {
		offset = binary.LittleEndian.Uint32(data[4:8])
	}
	payload := data[header:]

	if dataType != t.Type.cipType {
		return makeCIPError(svc, cip.StatusInvalidAttrVal, 0x2107)
	}
	base, err := t.elemOffset(p.indices)
	if err != nil {
		return makeCIPError(svc, cip.StatusPathDestUnknown)
	}
	if base+count*t.Type.size > t.Size() {
		return makeCIPError(svc, cip.StatusTooMuchData, 0x2105)
	}
	if err := t.WriteAt(base+int(offset), payload); err != nil {
		return makeCIPError(svc, cip.StatusTooMuchData, 0x2105)
	}
	return []byte{svc | cip.ReplyFlag, 0x00, cip.StatusSuccess, 0x00}
}

// handleMultipleService dispatches each sub-request of a Multiple
// Service Packet independently; sub-request errors stay isolated in
// their own sub-reply.
func (s *Server) handleMultipleService(st *clientState, svc byte, data []byte, connected bool) []byte {
	if len(data) < 2 {
		return makeCIPError(svc, cip.StatusNotEnoughData)
	}
	count := int(binary.LittleEndian.Uint16(data[0:2]))
	if count == 0 || len(data) < 2+count*2 {
		return makeCIPError(svc, cip.StatusNotEnoughData)
	}
	offsets := make([]int, count)
	for i := 0; i < count; i++ {
		offsets[i] = int(binary.LittleEndian.Uint16(data[2+i*2 : 4+i*2]))
	}

	replies := make([][]byte, count)
	anyFailed := false
	for i := 0; i < count; i++ {
		start := offsets[i]
		end := len(data)
		if i+1 < count {
			end = offsets[i+1]
		}
		if start < 0 || start >= end || end > len(data) {
			replies[i] = makeCIPError(0x00, cip.StatusNotEnoughData)
			anyFailed = true
			continue
		}
		replies[i] = s.dispatchCIP(st, data[start:end], connected)
		if len(replies[i]) >= 3 && replies[i][2] != cip.StatusSuccess && replies[i][2] != cip.StatusPartialTransfer {
			anyFailed = true
		}
	}

	status := cip.StatusSuccess
	if anyFailed {
		status = 0x1E // embedded service error
	}
	out := []byte{svc | cip.ReplyFlag, 0x00, status, 0x00}
	out = binary.LittleEndian.AppendUint16(out, uint16(count))
	off := 2 + count*2
	for _, r := range replies {
		out = binary.LittleEndian.AppendUint16(out, uint16(off))
		off += len(r)
	}
	for _, r := range replies {
		out = append(out, r...)
	}
	return out
}

// ParsePath parses a CLI "--path=1,0" string into route bytes.
func ParsePath(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]byte, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return nil, pathError("abserver: bad path segment " + p)
		}
		out = append(out, byte(n))
	}
	return out, nil
}
