package pipeline

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Progress is one notification about a tracked in-flight request.
type Progress struct {
	// Received is the number of body bytes accumulated so far.
	Received int64
	// Total is the declared body length, or 0 when unknown.
	Total int64
}

// progressBuffer bounds the notification channel. Notifications are
// advisory; when the consumer lags, newer pairs are dropped rather
// than stalling the transport goroutine.
const progressBuffer = 16

// tracker accumulates the streamed state of one tracked request.
// Events for a single tracker arrive sequentially from the transport
// goroutine that owns the request; the done flag guards against stray
// events after the terminal one.
type tracker struct {
	logger  *slog.Logger
	limiter *rate.Limiter
	resolve Resolver

	// notify carries (received, total) pairs and is closed after the
	// single terminal event.
	notify chan Progress

	// sink, when set, receives body bytes instead of the in-memory
	// buffer.
	sink io.Writer

	resp     *http.Response
	body     bytes.Buffer
	received int64
	sinkErr  error
	done     bool
}

func newTracker(logger *slog.Logger, resolve Resolver, sink io.Writer) *tracker {
	return &tracker{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		resolve: resolve,
		notify:  make(chan Progress, progressBuffer),
		sink:    sink,
	}
}

func (t *tracker) headers(resp *http.Response) {
	if t.done {
		t.logger.Error("headers received after terminal event")
		return
	}

	t.resp = resp
}

func (t *tracker) data(chunk []byte) {
	if t.done {
		t.logger.Error("data received after terminal event")
		return
	}
	if t.resp == nil {
		// Contract violation in the session: data must follow headers.
		t.logger.Error("data received before headers on in-flight request")
	}
	if t.sinkErr != nil {
		return
	}

	if t.sink != nil {
		if _, err := t.sink.Write(chunk); err != nil {
			t.sinkErr = err
			return
		}
	} else {
		t.body.Write(chunk)
	}
	t.received += int64(len(chunk))

	var total int64
	if t.resp != nil && t.resp.ContentLength > 0 {
		total = t.resp.ContentLength
	}

	select {
	case t.notify <- Progress{Received: t.received, Total: total}:
	default:
	}

	if t.limiter.Allow() {
		t.logger.Debug("tracked request progress", "received", t.received, "total", total)
	}
}

// finish emits the terminal event exactly once: the notification
// channel is closed, then the resolver is invoked with either the
// accumulated state or the failure.
func (t *tracker) finish(err error) {
	if t.done {
		return
	}
	t.done = true
	close(t.notify)

	switch {
	case err != nil:
		t.resolve(t.resp, nil, err)
	case t.sinkErr != nil:
		t.resolve(t.resp, nil, t.sinkErr)
	default:
		t.resolve(t.resp, t.body.Bytes(), nil)
	}
}
