// Package body implements the opt-in body-streaming collaborator: a
// handler may register on_data/on_end/on_error callbacks before returning,
// trading the default buffered body for chunk-by-chunk delivery with
// pause/resume backpressure.
//
// There is no direct original_source file dedicated to this concern (the
// reference implementation inlines it into body.c alongside buffered
// reads); the shape here is phrased the way flux's other per-request
// collaborators (route match, middleware chain) are — a small value type
// owned by the request, consulted by the connection's read loop.
package body

import "errors"

// ErrSizeLimitExceeded is passed to OnError when a chunk would push the
// running total past the configured limit.
var ErrSizeLimitExceeded = errors.New("body exceeds size limit")

// DataFunc is called once per chunk. Returning false requests a pause:
// the current chunk is still considered fully delivered (per the
// recommended resolution to the body_pause Open Question in DESIGN.md)
// before delivery of later chunks stops.
type DataFunc func(chunk []byte) bool

// EndFunc is called exactly once when the body completes successfully.
type EndFunc func()

// ErrorFunc is called at most once, instead of EndFunc, if the body fails
// mid-stream (size cap exceeded or a parse error).
type ErrorFunc func(err error)

// Stream is the per-request streaming context, created lazily the first
// time a handler calls any of the request's streaming hooks.
type Stream struct {
	onData  DataFunc
	onEnd   EndFunc
	onError ErrorFunc

	limit    int64
	received int64
	paused   bool
	ended    bool
	errored  bool

	// bufferedPrefix holds bytes the parser had already buffered before
	// streaming was opted into; it is delivered as one synthetic first
	// chunk the next time Deliver runs.
	bufferedPrefix []byte
}

// NewStream returns a Stream with the default body limit (callers
// typically override via Limit before the first chunk arrives).
func NewStream(defaultLimit int64) *Stream {
	return &Stream{limit: defaultLimit}
}

// OnData registers the chunk callback. If bytes were already buffered
// before streaming was enabled, SetBufferedPrefix must be called first so
// they are replayed as the synthetic first chunk ("late registration").
func (s *Stream) OnData(fn DataFunc) { s.onData = fn }

// OnEnd registers the end-of-body callback.
func (s *Stream) OnEnd(fn EndFunc) { s.onEnd = fn }

// OnError registers the error callback.
func (s *Stream) OnError(fn ErrorFunc) { s.onError = fn }

// Limit overrides the per-request body size cap (the body_limit(n) hook).
func (s *Stream) Limit(n int64) { s.limit = n }

// SetBufferedPrefix stashes bytes already read before streaming was
// enabled; they are replayed as the first Deliver call.
func (s *Stream) SetBufferedPrefix(b []byte) {
	if len(b) > 0 {
		s.bufferedPrefix = append([]byte(nil), b...)
	}
}

// Paused reports whether the stream is currently paused.
func (s *Stream) Paused() bool { return s.paused }

// Pause sets the paused flag directly (the body_pause hook), independent
// of a DataFunc returning false. Takes effect before the next chunk is
// delivered; a chunk already in Deliver still completes.
func (s *Stream) Pause() { s.paused = true }

// Resume clears the paused flag; the connection's read loop checks Paused
// before handing each chunk it has read to Deliver, and delivers again
// once this returns false. Reading itself does not stop while paused.
func (s *Stream) Resume() { s.paused = false }

// Deliver feeds one chunk to the registered callback, enforcing the size
// cap and the buffered-prefix replay. It must not be called again after
// Fail or Finish.
func (s *Stream) Deliver(chunk []byte) {
	if s.ended || s.errored {
		return
	}

	if len(s.bufferedPrefix) > 0 {
		prefix := s.bufferedPrefix
		s.bufferedPrefix = nil
		s.deliverOne(prefix)
		if s.ended || s.errored {
			return
		}
	}

	if len(chunk) > 0 {
		s.deliverOne(chunk)
	}
}

func (s *Stream) deliverOne(chunk []byte) {
	s.received += int64(len(chunk))
	if s.limit > 0 && s.received > s.limit {
		s.Fail(ErrSizeLimitExceeded)
		return
	}
	if s.onData != nil {
		// The current chunk is always delivered in full before a pause
		// takes effect, rather than splitting delivery partway through.
		if !s.onData(chunk) {
			s.paused = true
		}
	}
}

// Finish calls OnEnd exactly once for a successful message-complete.
func (s *Stream) Finish() {
	if s.ended || s.errored {
		return
	}
	s.ended = true
	if s.onEnd != nil {
		s.onEnd()
	}
}

// Fail calls OnError exactly once; Finish is guaranteed not to fire
// afterward.
func (s *Stream) Fail(err error) {
	if s.ended || s.errored {
		return
	}
	s.errored = true
	if s.onError != nil {
		s.onError(err)
	}
}

// BytesReceived returns the running total delivered so far.
func (s *Stream) BytesReceived() int64 { return s.received }
