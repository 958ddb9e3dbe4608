package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/reqpipe/reqpipe/pipeline/download"
)

// Engine executes descriptors end to end: cache gate, request
// construction, session dispatch, response validation, decoding, and
// classified failure reporting. Build one with [Build]; an Engine is
// safe for concurrent use by multiple goroutines.
type Engine struct {
	session       Session
	demux         *Demux
	cache         Cache
	cacheBypass   bool
	offline       bool
	defaultHeader http.Header
	logger        *slog.Logger
	tracer        trace.Tracer
}

// Build creates an [Engine] with the given options. Defaults:
// [http.DefaultClient] wrapped in an [HTTPSession], a private [Demux],
// [slog.Default], a no-op tracer, and no cache.
func Build(optFns ...Option) (*Engine, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying engine option: %w", err)
		}
	}

	e := &Engine{
		cache:         opts.cache,
		cacheBypass:   opts.cacheBypass,
		offline:       opts.offline,
		defaultHeader: opts.defaultHeader,
		logger:        slog.Default(),
		tracer:        noop.NewTracerProvider().Tracer("no-op tracer"),
	}

	if opts.logger != nil {
		e.logger = opts.logger
	}
	if opts.tracer != nil {
		e.tracer = opts.tracer
	}

	e.demux = opts.demux
	if e.demux == nil {
		e.demux = NewDemux(e.logger)
	}

	e.session = opts.session
	if e.session == nil {
		doer := opts.doer
		if doer == nil && opts.client != nil {
			doer = opts.client
		}
		e.session = NewHTTPSession(doer, e.demux, e.logger)
	}

	return e, nil
}

// StartOption is a functional option for [Engine.Start].
type StartOption func(*startOpts) error

type startOpts struct {
	model any
}

// WithModel decodes the validated response body into model.
func WithModel[T any](model *T) StartOption {
	return func(opts *startOpts) error {
		opts.model = model

		return nil
	}
}

// resolution is the single terminal value of one dispatch, handed from
// the session back to Start through a buffered channel.
type resolution struct {
	resp *http.Response
	body []byte
	err  error
}

// Start executes the descriptor and produces exactly one terminal
// outcome: nil after a validated (and, with [WithModel], decoded)
// response, or an error. Transport failures pass through unmodified;
// validation and decode failures carry the typed errors from this
// package. No failure is retried or recovered internally.
//
// Cancelling ctx surfaces as a transport failure through the same
// terminal path; there is no separate cancellation result.
func (e *Engine) Start(ctx context.Context, d *Descriptor, opts ...StartOption) error {
	var settings startOpts
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return err
		}
	}

	ctx, span := e.tracer.Start(ctx, "pipeline.start", trace.WithAttributes(
		attribute.String("http.method", d.method),
		attribute.String("url.full", d.urlStr),
	))
	defer span.End()

	if e.cacheHit(ctx, d, settings.model) {
		return nil
	}

	req, payload, err := d.newRequest(ctx, e.defaultHeader)
	if err != nil {
		return err
	}

	e.logger.Debug("dispatching request", "method", d.method, "url", d.urlStr)

	if e.offline {
		err := fmt.Errorf("%w: simulated", ErrOffline)
		e.report(err, d, payload, nil)
		return err
	}

	start := time.Now()
	res := e.dispatch(req, d, nil)

	if res.err != nil {
		e.report(res.err, d, payload, nil)
		return res.err
	}

	if err := validateResponse(d, res.resp, res.body); err != nil {
		e.report(err, d, payload, res.body)
		return err
	}
	span.SetAttributes(attribute.Int("http.status_code", res.resp.StatusCode))

	if settings.model != nil {
		data, err := decodePayload(res.resp, res.body)
		if err != nil {
			e.report(err, d, payload, res.body)
			return err
		}

		if err := d.codec.Decode(ctx, data, settings.model); err != nil {
			perr := &ParseError{Detail: err.Error(), Err: ErrParse}
			e.report(perr, d, payload, res.body)
			return perr
		}
	}

	e.logger.Debug("request complete",
		"method", d.method,
		"url", d.urlStr,
		"status", res.resp.StatusCode,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return nil
}

// StartAsync runs [Engine.Start] on its own goroutine and delivers its
// single terminal value on the returned channel, which is closed after
// the send. The caller chooses where to receive it.
func (e *Engine) StartAsync(ctx context.Context, d *Descriptor, opts ...StartOption) <-chan error {
	result := make(chan error, 1)
	go func() {
		defer close(result)
		result <- e.Start(ctx, d, opts...)
	}()

	return result
}

// Download executes the descriptor through the tracked path, streaming
// the response body to destPath instead of memory: a temp file in the
// destination directory, renamed into place on success and removed on
// failure. Status validation applies; content-type validation and
// decoding do not.
func (e *Engine) Download(ctx context.Context, d *Descriptor, destPath string, optFns ...download.Option) error {
	ctx, span := e.tracer.Start(ctx, "pipeline.download", trace.WithAttributes(
		attribute.String("http.method", d.method),
		attribute.String("url.full", d.urlStr),
	))
	defer span.End()

	sink, err := download.NewSink(destPath, e.logger, optFns...)
	if err != nil {
		if errors.Is(err, download.ErrExists) {
			e.logger.Debug("skipping existing file", "path", destPath)
			return nil
		}

		return err
	}

	req, payload, err := d.newRequest(ctx, e.defaultHeader)
	if err != nil {
		sink.Abort()
		return err
	}

	e.logger.Debug("dispatching download", "method", d.method, "url", d.urlStr, "path", destPath)

	if e.offline {
		sink.Abort()
		err := fmt.Errorf("%w: simulated", ErrOffline)
		e.report(err, d, payload, nil)
		return err
	}

	start := time.Now()
	res := e.dispatch(req, d, sink)

	if res.err != nil {
		sink.Abort()
		e.report(res.err, d, payload, nil)
		return res.err
	}

	if err := validateResponse(d, res.resp, nil); err != nil {
		sink.Abort()
		e.report(err, d, payload, nil)
		return err
	}
	span.SetAttributes(attribute.Int("http.status_code", res.resp.StatusCode))

	if err := sink.Commit(res.resp.ContentLength); err != nil {
		e.report(err, d, payload, nil)
		return err
	}

	e.logger.Debug("download complete",
		"url", d.urlStr,
		"path", destPath,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return nil
}

// dispatch hands the request to the session and blocks for its single
// terminal value. The tracked path is taken when the descriptor is
// progressive or a sink needs the body streamed.
func (e *Engine) dispatch(req *http.Request, d *Descriptor, sink io.Writer) resolution {
	resolved := make(chan resolution, 1)
	resolve := func(resp *http.Response, body []byte, err error) {
		resolved <- resolution{resp: resp, body: body, err: err}
	}

	if d.progress != nil || sink != nil {
		e.dispatchTracked(req, d.progress, sink, resolve)
	} else {
		e.session.Issue(req, resolve)
	}

	return <-resolved
}

// dispatchTracked registers the tracker before handing the request to
// the session, so the first out-of-band event always finds its handle.
func (e *Engine) dispatchTracked(req *http.Request, notify func(Progress), sink io.Writer, resolve Resolver) {
	t := newTracker(e.logger, resolve, sink)
	if notify != nil {
		go func() {
			for p := range t.notify {
				notify(p)
			}
		}()
	}

	h := NewHandle()
	e.demux.register(h, t)
	e.session.IssueTracked(h, req)
}

// cacheHit resolves the pipeline from the cache provider when one is
// configured, enabled, and holds a value fitting the model.
func (e *Engine) cacheHit(ctx context.Context, d *Descriptor, model any) bool {
	if e.cache == nil || e.cacheBypass || model == nil {
		return false
	}

	v, ok := e.cache.Lookup(ctx, d.Identity())
	if !ok {
		return false
	}

	if !assign(model, v) {
		e.logger.Error("cached value does not fit model", "key", d.Identity())
		return false
	}

	return true
}

// assign stores v into dst, which must be a non-nil pointer whose
// element type v is assignable to.
func assign(dst, v any) bool {
	rd := reflect.ValueOf(dst)
	if rd.Kind() != reflect.Pointer || rd.IsNil() {
		return false
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() || !rv.Type().AssignableTo(rd.Elem().Type()) {
		return false
	}

	rd.Elem().Set(rv)

	return true
}

// report routes a terminal failure through the classifier. Transient
// failures are expected noise and only traced at debug level;
// everything else goes to the error sink with diagnostic fields.
// Reporting never changes what the caller receives.
func (e *Engine) report(err error, d *Descriptor, reqBody, respBody []byte) {
	if Transient(err) {
		e.logger.Debug("transient request failure", "method", d.method, "url", d.urlStr, "error", err)
		return
	}

	attrs := []any{"method", d.method, "url", d.urlStr, "error", err.Error()}
	if text, ok := bodyText(reqBody); ok {
		attrs = append(attrs, "request_body", text)
	}
	if text, ok := bodyText(respBody); ok {
		attrs = append(attrs, "response_body", text)
	}

	e.logger.Error("request failed", attrs...)
}

// bodyText returns body as a string when it is non-empty and decodable
// as text, clipped to maxLoggedBodySize.
func bodyText(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	if len(body) > maxLoggedBodySize {
		body = body[:maxLoggedBodySize]
	}
	if !utf8.Valid(body) {
		return "", false
	}

	return string(body), true
}
