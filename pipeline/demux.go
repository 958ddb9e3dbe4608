package pipeline

import (
	"log/slog"
	"net/http"
	"sync"
)

// Demux routes out-of-band transport events to the tracker of the
// in-flight request they belong to. A single Demux serves arbitrarily
// many concurrent requests; registrations, lookups, and removals are
// mutually exclusive.
//
// The engine constructs its own Demux unless one is injected via
// [WithDemux], so tests can substitute an independent instance without
// touching any global state.
type Demux struct {
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[Handle]*tracker
}

// NewDemux creates an empty registry. A nil logger falls back to
// [slog.Default].
func NewDemux(logger *slog.Logger) *Demux {
	if logger == nil {
		logger = slog.Default()
	}

	return &Demux{
		logger:   logger,
		inflight: make(map[Handle]*tracker),
	}
}

// HeadersReceived records the response object for the given in-flight
// request. An unknown handle indicates a callback routing defect in the
// session; it is logged and otherwise ignored.
func (d *Demux) HeadersReceived(h Handle, resp *http.Response) {
	t := d.lookup(h)
	if t == nil {
		d.logger.Error("headers for unknown in-flight handle", "handle", h.String())
		return
	}

	t.headers(resp)
}

// DataReceived appends a body chunk to the given in-flight request and
// pushes a progress notification.
func (d *Demux) DataReceived(h Handle, chunk []byte) {
	t := d.lookup(h)
	if t == nil {
		d.logger.Error("data for unknown in-flight handle", "handle", h.String())
		return
	}

	t.data(chunk)
}

// Complete delivers the successful terminal event for the given
// in-flight request. The registry entry is removed unconditionally.
func (d *Demux) Complete(h Handle) {
	t := d.take(h)
	if t == nil {
		d.logger.Error("completion for unknown in-flight handle", "handle", h.String())
		return
	}

	t.finish(nil)
}

// Fail delivers the failed terminal event for the given in-flight
// request. The registry entry is removed unconditionally.
func (d *Demux) Fail(h Handle, err error) {
	t := d.take(h)
	if t == nil {
		d.logger.Error("failure for unknown in-flight handle", "handle", h.String(), "error", err)
		return
	}

	t.finish(err)
}

// Inflight reports how many requests are currently registered.
func (d *Demux) Inflight() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.inflight)
}

func (d *Demux) register(h Handle, t *tracker) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.inflight[h] = t
}

func (d *Demux) lookup(h Handle) *tracker {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.inflight[h]
}

// take removes and returns the tracker for h, or nil.
func (d *Demux) take(h Handle) *tracker {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.inflight[h]
	delete(d.inflight, h)

	return t
}
