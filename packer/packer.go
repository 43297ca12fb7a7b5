// Package packer merges compatible pending requests into CIP Multiple
// Service Packets. Packing is byte-budget-first against the session's
// negotiated payload sizes, with a hard sub-request count ceiling as a
// backstop.
package packer

import (
	"github.com/libplctag/libplctag-sub000/cip"
	"github.com/libplctag/libplctag-sub000/plcerr"
)

// SafetyMargin is subtracted from the negotiated payload budget on both
// directions before packing.
const SafetyMargin = 8

// Candidate is one pending request considered for packing: its fully
// marshaled CIP request bytes plus the metadata the packing rules need.
type Candidate struct {
	CIP              []byte
	ExpectedReplyLen int
	AllowPack        bool
	UseConnected     bool
}

// packable services: only tag data transfers may be merged. Forward
// Open/Close, PCCC, and raw requests always travel alone.
func packableService(svc byte) bool {
	switch svc {
	case cip.SvcReadTag, cip.SvcWriteTag, cip.SvcReadTagFragmented, cip.SvcWriteTagFragmented:
		return true
	}
	return false
}

// Packable reports whether the candidate may appear inside a Multiple
// Service Packet at all.
func Packable(c Candidate) bool {
	return c.AllowPack && len(c.CIP) > 0 && packableService(c.CIP[0])
}

// mspOverhead is the fixed cost of the MSP service byte, embedded
// Message Router path, and the sub-request count word.
const mspOverhead = 1 + 1 + 4 + 2

// Pack examines the head of the queue and decides how many leading
// candidates to merge into one Multiple Service Packet. It returns the
// number of candidates consumed and the complete marshaled CIP request.
//
// n == 1 means the head request travels alone (its CIP bytes are
// returned unchanged). n > 1 means the first n candidates were merged.
// Candidates are only merged while: each is individually packable, all
// share the head's connected/unconnected mode, and both the request and
// the estimated reply stay within the payload budgets.
func Pack(cands []Candidate, maxC2S, maxS2C int) (n int, packed []byte, err error) {
	if len(cands) == 0 {
		return 0, nil, plcerr.New(plcerr.BadParam, "packer: empty candidate list")
	}
	head := cands[0]
	if !Packable(head) || len(cands) == 1 {
		return 1, head.CIP, nil
	}

	reqBudget := maxC2S - SafetyMargin
	replyBudget := maxS2C - SafetyMargin

	// Per sub-request cost: the offset-table entry plus the bytes.
	// Per sub-reply cost: the offset entry, the four-byte response
	// header, and the estimated payload.
	reqTotal := mspOverhead + 2 + len(head.CIP)
	replyTotal := mspOverhead + 2 + 4 + head.ExpectedReplyLen

	n = 1
	for n < len(cands) && n < cip.MaxMultiServiceRequests {
		c := cands[n]
		if !Packable(c) || c.UseConnected != head.UseConnected {
			break
		}
		nextReq := reqTotal + 2 + len(c.CIP)
		nextReply := replyTotal + 2 + 4 + c.ExpectedReplyLen
		if nextReq > reqBudget || nextReply > replyBudget {
			break
		}
		reqTotal, replyTotal = nextReq, nextReply
		n++
	}

	if n == 1 {
		return 1, head.CIP, nil
	}

	subs := make([]cip.MultiServiceRequest, n)
	for i := 0; i < n; i++ {
		svc, path, data, perr := splitCIPRequest(cands[i].CIP)
		if perr != nil {
			return 0, nil, perr
		}
		subs[i] = cip.MultiServiceRequest{Service: svc, Path: path, Data: data}
	}
	msData, err := cip.BuildMultipleServiceRequest(subs)
	if err != nil {
		return 0, nil, err
	}

	msPath, err := cip.MessageRouterPath()
	if err != nil {
		return 0, nil, err
	}
	req := cip.Request{Service: cip.SvcMultipleServicePacket, Path: msPath, Data: msData}
	return n, req.Marshal(), nil
}

// splitCIPRequest splits a marshaled CIP request back into its service,
// path, and data parts so it can be re-nested as an MSP sub-request.
func splitCIPRequest(raw []byte) (svc byte, path cip.EPath_t, data []byte, err error) {
	if len(raw) < 2 {
		return 0, nil, nil, plcerr.New(plcerr.BadParam, "packer: truncated CIP request")
	}
	pathLen := int(raw[1]) * 2
	if 2+pathLen > len(raw) {
		return 0, nil, nil, plcerr.New(plcerr.BadParam, "packer: CIP request path overruns buffer")
	}
	return raw[0], cip.EPath_t(raw[2 : 2+pathLen]), raw[2+pathLen:], nil
}

// Unpack splits a Multiple Service Packet reply (the full CIP response
// frame, starting at the reply-service byte) into the per-sub-request
// raw CIP response frames, rebuilt so each can be handed to
// cip.ParseResponse exactly as if it had traveled alone. Sub-request
// errors stay isolated: a missing or truncated sub-reply yields a nil
// entry, not a packet-level failure.
func Unpack(reply []byte, n int) ([][]byte, error) {
	resp, err := cip.ParseResponse(reply)
	if err != nil {
		return nil, err
	}
	if resp.ReplyService != (cip.SvcMultipleServicePacket | cip.ReplyFlag) {
		return nil, plcerr.Newf(plcerr.BadReply, "packer: reply service 0x%02X is not a Multiple Service Packet", resp.ReplyService)
	}
	// General status 0x1E (embedded service error) still carries valid
	// per-service replies; anything else non-zero is a packet failure.
	if resp.GeneralStatus != cip.StatusSuccess && resp.GeneralStatus != 0x1E {
		return nil, plcerr.Newf(plcerr.BadStatus, "packer: MSP failed: %s", cip.StatusName(resp.GeneralStatus))
	}

	subs, err := cip.ParseMultipleServiceResponse(resp.Data)
	if err != nil {
		return nil, err
	}
	if len(subs) != n {
		return nil, plcerr.Newf(plcerr.BadReply, "packer: expected %d sub-replies, got %d", n, len(subs))
	}

	out := make([][]byte, n)
	for i, sub := range subs {
		if sub.Service == 0 && sub.Status == 0 && sub.Data == nil && sub.ExtStatus == nil {
			// Truncated slot skipped by the parser.
			continue
		}
		frame := make([]byte, 0, 4+len(sub.ExtStatus)+len(sub.Data))
		frame = append(frame, sub.Service, 0x00, sub.Status, byte(len(sub.ExtStatus)/2))
		frame = append(frame, sub.ExtStatus...)
		frame = append(frame, sub.Data...)
		out[i] = frame
	}
	return out, nil
}

// EstimateReadReplyLen estimates the reply payload for a Read Tag of
// count elements of elemSize bytes: type word + data.
func EstimateReadReplyLen(elemSize, count int) int {
	return 2 + elemSize*count
}
