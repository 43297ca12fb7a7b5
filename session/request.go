package session

import (
	"sync"
	"time"

	"github.com/libplctag/libplctag-sub000/plcerr"
)

// Request is one queued wire operation. The CIP bytes are fully
// marshaled by the caller (tag runtime or fragmentation engine); the
// session only decides framing (connected vs unconnected, routed vs
// direct) and transport.
type Request struct {
	TagID            int
	CIP              []byte
	UseConnected     bool
	AllowPack        bool
	ExpectedReplyLen int
	Deadline         time.Time // zero = session default I/O timeout

	mu        sync.Mutex
	done      chan struct{}
	reply     []byte
	err       error
	completed bool
	aborted   bool
}

// NewRequest builds a request carrying a marshaled CIP frame.
func NewRequest(tagID int, cipBytes []byte) *Request {
	return &Request{
		TagID: tagID,
		CIP:   cipBytes,
		done:  make(chan struct{}),
	}
}

// Done returns a channel closed when the request completes (reply,
// error, abort, or timeout).
func (r *Request) Done() <-chan struct{} { return r.done }

// Reply returns the raw CIP response frame and the terminal error.
// Valid only after Done() is closed.
func (r *Request) Reply() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reply, r.err
}

// Wait blocks until the request completes or the timeout elapses. A
// zero timeout waits forever.
func (r *Request) Wait(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		<-r.done
		return r.Reply()
	}
	select {
	case <-r.done:
		return r.Reply()
	case <-time.After(timeout):
		return nil, plcerr.New(plcerr.Timeout, "session: request timed out")
	}
}

// markAborted flips the cancellation flag. The session completes the
// request: immediately if still queued, after the in-flight reply is
// consumed and discarded otherwise.
func (r *Request) markAborted() {
	r.mu.Lock()
	r.aborted = true
	r.mu.Unlock()
}

// Aborted reports whether cancellation was requested.
func (r *Request) Aborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}

// complete records the terminal state exactly once; later calls are
// ignored (a late reply for an already-aborted request is discarded).
func (r *Request) complete(reply []byte, err error) {
	r.mu.Lock()
	if r.completed {
		r.mu.Unlock()
		return
	}
	r.completed = true
	r.reply = reply
	r.err = err
	r.mu.Unlock()
	close(r.done)
}

// expired reports whether the request's deadline has passed.
func (r *Request) expired(now time.Time) bool {
	return !r.Deadline.IsZero() && now.After(r.Deadline)
}
