package session

import (
	"testing"
	"time"

	"github.com/libplctag/libplctag-sub000/attrstr"
	"github.com/libplctag/libplctag-sub000/plcerr"
)

func parseOpts(t *testing.T, s string) *attrstr.Options {
	t.Helper()
	o, err := attrstr.Parse(s)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return o
}

func TestAcquireSharesByKey(t *testing.T) {
	o1 := parseOpts(t, "protocol=ab_eip&gateway=127.0.0.1:1&path=1,0&plc=LGX&name=A")
	o2 := parseOpts(t, "protocol=ab_eip&gateway=127.0.0.1:1&path=1,0&plc=LGX&name=B")

	s1, err := Acquire(o1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	s2, err := Acquire(o2)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("same (gateway, path, family, group) must share one session")
	}
	s1.Release()
	s2.Release()
}

func TestConnectionGroupForcesDistinctSession(t *testing.T) {
	o1 := parseOpts(t, "protocol=ab_eip&gateway=127.0.0.1:1&path=1,0&plc=LGX&name=A")
	o2 := parseOpts(t, "protocol=ab_eip&gateway=127.0.0.1:1&path=1,0&plc=LGX&name=A&connection_group_id=7")

	s1, err := Acquire(o1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	s2, err := Acquire(o2)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if s1 == s2 {
		t.Fatalf("distinct connection_group_id must force a distinct session")
	}
	s1.Release()
	s2.Release()
}

func TestAbortQueuedRequest(t *testing.T) {
	// A blackhole gateway: the connect stalls and the request stays
	// queued, so the abort must complete it immediately.
	o := parseOpts(t, "protocol=ab_eip&gateway=10.255.255.1&path=1,0&plc=LGX&name=A")
	s, err := Acquire(o)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer s.Release()

	r := NewRequest(1, []byte{0x4C, 0x00, 0x01, 0x00})
	if err := s.Enqueue(r); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	s.Abort(r)

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatalf("aborted request did not complete")
	}
	_, rerr := r.Reply()
	if plcerr.KindOf(rerr) != plcerr.Abort && plcerr.KindOf(rerr) != plcerr.BadGateway {
		t.Fatalf("reply error = %v, want Abort (or connect failure)", rerr)
	}
}

func TestQueuedRequestDeadline(t *testing.T) {
	o := parseOpts(t, "protocol=ab_eip&gateway=10.255.255.1&path=1,0&plc=LGX&name=B&connection_group_id=9")
	s, err := Acquire(o)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer s.Release()

	r := NewRequest(1, []byte{0x4C, 0x00, 0x01, 0x00})
	r.Deadline = time.Now().Add(50 * time.Millisecond)
	if err := s.Enqueue(r); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case <-r.Done():
	case <-time.After(6 * time.Second):
		t.Fatalf("expired request did not complete")
	}
	_, rerr := r.Reply()
	k := plcerr.KindOf(rerr)
	if k != plcerr.Timeout && k != plcerr.BadGateway {
		t.Fatalf("reply error kind = %v, want Timeout (or connect failure)", k)
	}
}

func TestEnqueueAfterShutdown(t *testing.T) {
	o := parseOpts(t, "protocol=ab_eip&gateway=127.0.0.1:1&path=1,0&plc=LGX&name=C&connection_group_id=11")
	s, err := Acquire(o)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	s.Shutdown()
	if err := s.Enqueue(NewRequest(1, []byte{0x4C, 0x00})); err == nil {
		t.Fatalf("Enqueue after Shutdown should fail")
	}
	s.Release()
}

func TestRequestWaitTimeout(t *testing.T) {
	r := NewRequest(1, nil)
	if _, err := r.Wait(10 * time.Millisecond); plcerr.KindOf(err) != plcerr.Timeout {
		t.Fatalf("Wait on incomplete request should time out")
	}
	r.complete([]byte{1}, nil)
	b, err := r.Wait(10 * time.Millisecond)
	if err != nil || len(b) != 1 {
		t.Fatalf("Wait after completion = %x, %v", b, err)
	}
}
