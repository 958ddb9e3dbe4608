package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// Handle is an opaque token correlating a dispatched transport task
// with its tracked state.
type Handle uuid.UUID

// NewHandle allocates a fresh in-flight handle.
func NewHandle() Handle {
	return Handle(uuid.New())
}

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// HTTPDoer implements a Do method in the same manner as the standard
// library [http.Client].
type HTTPDoer interface {
	Do(r *http.Request) (*http.Response, error)
}

// Resolver receives the terminal state of a dispatched request: either
// the response with its accumulated body, or an error. A session must
// invoke it exactly once per dispatch, possibly from another goroutine.
type Resolver func(resp *http.Response, body []byte, err error)

// Session is the transport capability the engine dispatches through.
//
// Issue is the one-shot mode: the session performs the request and
// hands the fully read result to resolve.
//
// IssueTracked is the progressive mode: the session performs the
// request without a callback and instead delivers header, data, and
// terminal events to the [Demux] it was constructed with, keyed by h.
// The caller registers h before dispatching, so no event can arrive
// for an unregistered handle.
//
// A Session is expected to be swapped, if at all, before any concurrent
// request activity begins.
type Session interface {
	Issue(req *http.Request, resolve Resolver) Handle
	IssueTracked(h Handle, req *http.Request)
}

// trackedChunkSize is the read granularity for tracked response bodies.
const trackedChunkSize = 32 << 10

// HTTPSession adapts an [HTTPDoer] to the [Session] capability. The
// zero value is not usable; construct with [NewHTTPSession].
type HTTPSession struct {
	doer   HTTPDoer
	demux  *Demux
	logger *slog.Logger
}

// NewHTTPSession wraps doer, delivering tracked events to demux. A nil
// doer falls back to [http.DefaultClient], a nil logger to
// [slog.Default], and a nil demux to a fresh instance.
func NewHTTPSession(doer HTTPDoer, demux *Demux, logger *slog.Logger) *HTTPSession {
	if doer == nil {
		doer = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if demux == nil {
		demux = NewDemux(logger)
	}

	return &HTTPSession{doer: doer, demux: demux, logger: logger}
}

func (s *HTTPSession) Issue(req *http.Request, resolve Resolver) Handle {
	h := NewHandle()
	go func() {
		resp, err := s.doer.Do(req)
		if err != nil {
			resolve(nil, nil, err)
			return
		}

		body, err := io.ReadAll(resp.Body)
		s.closeBody(resp)
		if err != nil {
			resolve(resp, nil, err)
			return
		}

		resolve(resp, body, nil)
	}()

	return h
}

func (s *HTTPSession) IssueTracked(h Handle, req *http.Request) {
	go func() {
		resp, err := s.doer.Do(req)
		if err != nil {
			s.demux.Fail(h, err)
			return
		}
		defer s.closeBody(resp)

		s.demux.HeadersReceived(h, resp)

		buf := make([]byte, trackedChunkSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				s.demux.DataReceived(h, buf[:n])
			}
			switch {
			case errors.Is(err, io.EOF):
				s.demux.Complete(h)
				return
			case err != nil:
				s.demux.Fail(h, err)
				return
			}
		}
	}()
}

func (s *HTTPSession) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		s.logger.Error("failed to close response body", "error", err)
	}
}
