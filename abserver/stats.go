package abserver

import "sync/atomic"

// Stats counts protocol operations served, for debugging and for
// wire-level assertions in tests.
type Stats struct {
	RegisterSessions   uint64
	UnregisterSessions uint64
	ForwardOpens       uint64
	ForwardCloses      uint64
	ReadTags           uint64
	ReadFragments      uint64
	WriteTags          uint64
	WriteFragments     uint64
	MultiServices      uint64
	PCCCExecutes       uint64
	ListIdentities     uint64
}

type statCounters struct {
	registerSessions   atomic.Uint64
	unregisterSessions atomic.Uint64
	forwardOpens       atomic.Uint64
	forwardCloses      atomic.Uint64
	readTags           atomic.Uint64
	readFragments      atomic.Uint64
	writeTags          atomic.Uint64
	writeFragments     atomic.Uint64
	multiServices      atomic.Uint64
	pcccExecutes       atomic.Uint64
	listIdentities     atomic.Uint64
}

// Stats returns a snapshot of the operation counters.
func (s *Server) Stats() Stats {
	return Stats{
		RegisterSessions:   s.stats.registerSessions.Load(),
		UnregisterSessions: s.stats.unregisterSessions.Load(),
		ForwardOpens:       s.stats.forwardOpens.Load(),
		ForwardCloses:      s.stats.forwardCloses.Load(),
		ReadTags:           s.stats.readTags.Load(),
		ReadFragments:      s.stats.readFragments.Load(),
		WriteTags:          s.stats.writeTags.Load(),
		WriteFragments:     s.stats.writeFragments.Load(),
		MultiServices:      s.stats.multiServices.Load(),
		PCCCExecutes:       s.stats.pcccExecutes.Load(),
		ListIdentities:     s.stats.listIdentities.Load(),
	}
}
