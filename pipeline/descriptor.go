package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Descriptor is an immutable description of one endpoint: how to
// compose the request and what response the engine should accept.
// Build one with [NewDescriptor]; a Descriptor is safe for concurrent
// reuse across many [Engine.Start] calls.
type Descriptor struct {
	method      string
	baseURL     string
	relPath     string
	urlStr      string
	query       []queryParam
	header      http.Header
	payload     any
	stream      io.Reader
	streamLen   int64
	contentType string

	accept          func(int) bool
	expectedCT      string
	checkCT         bool
	serverErrMapper func(statusCode int, body []byte) error
	codec           Codec
	progress        func(Progress)
	cacheKey        string
}

type queryParam struct {
	key   string
	value string
}

type descriptorParams struct {
	Method  string `json:"method" validate:"required,oneof=GET POST PUT DELETE"`
	BaseURL string `json:"base_url" validate:"required,url"`
}

// NewDescriptor builds and validates a Descriptor for the endpoint at
// baseURL joined with relPath. The method must be one of GET, POST,
// PUT, or DELETE. The accepted status set defaults to [200,300) and the
// expected response content type to "application/json".
//
// Supplying both a body payload and a body stream is a construction
// error wrapping [ErrConflictingBody], never resolved silently.
func NewDescriptor(method, baseURL, relPath string, optFns ...DescriptorOption) (*Descriptor, error) {
	d := &Descriptor{
		method:      method,
		baseURL:     baseURL,
		relPath:     relPath,
		header:      http.Header{},
		streamLen:   -1,
		contentType: "application/json",
		accept:      defaultAccept,
		expectedCT:  "application/json",
		checkCT:     true,
		codec:       JSONCodec{},
	}

	for _, opt := range optFns {
		if err := opt(d); err != nil {
			return nil, fmt.Errorf("applying descriptor option: %w", err)
		}
	}

	if d.payload != nil && d.stream != nil {
		return nil, ErrConflictingBody
	}

	if err := validateStruct(descriptorParams{Method: d.method, BaseURL: d.baseURL}); err != nil {
		return nil, fmt.Errorf("invalid descriptor: %w", err)
	}

	u, err := url.Parse(d.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if d.relPath != "" {
		u.Path = path.Join(u.Path, d.relPath)
	}
	u.RawQuery = encodeQuery(d.query)
	d.urlStr = u.String()

	return d, nil
}

// Method returns the HTTP method the descriptor was built with.
func (d *Descriptor) Method() string { return d.method }

// URL returns the fully composed absolute URL, path percent-encoded
// once and query values encoded with no unescaped '+'.
func (d *Descriptor) URL() string { return d.urlStr }

// Identity is the cache key for the descriptor: the value set via
// [WithCacheKey], or "METHOD url" by default.
func (d *Descriptor) Identity() string {
	if d.cacheKey != "" {
		return d.cacheKey
	}

	return d.method + " " + d.urlStr
}

// Request builds the transport-level request. Defaults, if any, are
// applied before the descriptor's own headers so that descriptor
// values win on key collision.
func (d *Descriptor) Request(ctx context.Context) (*http.Request, error) {
	req, _, err := d.newRequest(ctx, nil)
	return req, err
}

// newRequest additionally returns the encoded payload bytes so the
// engine can attach them to error log records.
func (d *Descriptor) newRequest(ctx context.Context, defaults http.Header) (*http.Request, []byte, error) {
	var (
		encoded []byte
		body    io.Reader
		err     error
	)
	switch {
	case d.payload != nil:
		encoded, err = d.codec.Encode(d.payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding request payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	case d.stream != nil:
		body = d.stream
	}

	req, err := http.NewRequestWithContext(ctx, d.method, d.urlStr, body)
	if err != nil {
		return nil, nil, fmt.Errorf("instantiating request: %w", err)
	}

	for k, vs := range defaults {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	if body != nil {
		req.Header.Set("Content-Type", d.contentType)
	}
	if d.stream != nil {
		req.ContentLength = d.streamLen
		req.Header.Set("Content-Length", strconv.FormatInt(d.streamLen, 10))
	}

	for k, vs := range d.header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	return req, encoded, nil
}

func (d *Descriptor) accepts(statusCode int) bool {
	return d.accept(statusCode)
}

func defaultAccept(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// encodeQuery percent-encodes query pairs in insertion order. Unlike
// url.Values.Encode, spaces become %20 rather than '+', so a literal
// '+' in a key or value is never ambiguous with an encoded space. An
// empty item list yields an empty string and therefore no '?' in the
// composed URL.
func encodeQuery(items []queryParam) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escapeQueryComponent(item.key))
		b.WriteByte('=')
		b.WriteString(escapeQueryComponent(item.value))
	}

	return b.String()
}

func escapeQueryComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// DescriptorOption is a functional option for [NewDescriptor].
type DescriptorOption func(*Descriptor) error

// WithQuery appends a query parameter. Order is preserved; repeated
// keys are allowed.
func WithQuery(key, value string) DescriptorOption {
	return func(d *Descriptor) error {
		if key == "" {
			return errors.New("query key must not be empty")
		}
		d.query = append(d.query, queryParam{key: key, value: value})
		return nil
	}
}

// WithHeader sets a request header. Keys are unique; setting the same
// key twice keeps the last value.
func WithHeader(key, value string) DescriptorOption {
	return func(d *Descriptor) error {
		if key == "" {
			return errors.New("header key must not be empty")
		}
		d.header.Set(key, value)
		return nil
	}
}

// WithHeaders sets multiple request headers at once.
func WithHeaders(headers map[string]string) DescriptorOption {
	return func(d *Descriptor) error {
		for k, v := range headers {
			if k == "" {
				return errors.New("header key must not be empty")
			}
			d.header.Set(k, v)
		}
		return nil
	}
}

// WithPayload sets the request body payload, encoded with the
// descriptor's codec at dispatch time. Mutually exclusive with
// [WithBodyStream].
func WithPayload(payload any) DescriptorOption {
	return func(d *Descriptor) error {
		if payload == nil {
			return errors.New("payload must not be nil")
		}
		d.payload = payload
		return nil
	}
}

// WithBodyStream attaches a streaming request body of the given length.
// The engine sets an explicit Content-Length header from length.
// Mutually exclusive with [WithPayload].
func WithBodyStream(r io.Reader, length int64) DescriptorOption {
	return func(d *Descriptor) error {
		if r == nil {
			return errors.New("body stream must not be nil")
		}
		if length < 0 {
			return errors.New("body stream length must not be negative")
		}
		d.stream = r
		d.streamLen = length
		return nil
	}
}

// WithContentType overrides the default "application/json" Content-Type
// header set on requests carrying a body.
func WithContentType(contentType string) DescriptorOption {
	return func(d *Descriptor) error {
		if contentType == "" {
			return errors.New("cannot use empty content type")
		}
		d.contentType = contentType
		return nil
	}
}

// WithExpectedContentType overrides the content type the response must
// carry. A trailing charset qualifier on the response value is
// tolerated.
func WithExpectedContentType(contentType string) DescriptorOption {
	return func(d *Descriptor) error {
		if contentType == "" {
			return errors.New("cannot expect empty content type")
		}
		d.expectedCT = contentType
		return nil
	}
}

// WithoutContentTypeCheck suppresses response content-type validation.
func WithoutContentTypeCheck() DescriptorOption {
	return func(d *Descriptor) error {
		d.checkCT = false
		return nil
	}
}

// WithAcceptedStatus replaces the default [200,300) accepted set with
// an explicit list of status codes.
func WithAcceptedStatus(codes ...int) DescriptorOption {
	return func(d *Descriptor) error {
		if len(codes) == 0 {
			return errors.New("accepted status list must not be empty")
		}
		set := make(map[int]struct{}, len(codes))
		for _, c := range codes {
			set[c] = struct{}{}
		}
		d.accept = func(statusCode int) bool {
			_, ok := set[statusCode]
			return ok
		}
		return nil
	}
}

// WithAcceptedStatusRange replaces the accepted set with the half-open
// range [lo, hi).
func WithAcceptedStatusRange(lo, hi int) DescriptorOption {
	return func(d *Descriptor) error {
		if lo >= hi {
			return fmt.Errorf("invalid status range [%d,%d)", lo, hi)
		}
		d.accept = func(statusCode int) bool {
			return statusCode >= lo && statusCode < hi
		}
		return nil
	}
}

// WithServerErrorMapper replaces the default [ServerFailureError] for
// out-of-set status codes with a caller-built error carrying the raw
// body, allowing domain-specific failures.
func WithServerErrorMapper(fn func(statusCode int, body []byte) error) DescriptorOption {
	return func(d *Descriptor) error {
		if fn == nil {
			return errors.New("server error mapper must not be nil")
		}
		d.serverErrMapper = fn
		return nil
	}
}

// WithCodec replaces the default [JSONCodec].
func WithCodec(c Codec) DescriptorOption {
	return func(d *Descriptor) error {
		if c == nil {
			return errors.New("codec must not be nil")
		}
		d.codec = c
		return nil
	}
}

// WithProgress marks the descriptor progressive: the engine dispatches
// it through the tracked path and invokes fn with (received, total)
// pairs as body bytes arrive. fn stops being called after the request
// reaches its terminal state.
func WithProgress(fn func(Progress)) DescriptorOption {
	return func(d *Descriptor) error {
		if fn == nil {
			return errors.New("progress func must not be nil")
		}
		d.progress = fn
		return nil
	}
}

// WithCacheKey overrides the default "METHOD url" cache identity.
func WithCacheKey(key string) DescriptorOption {
	return func(d *Descriptor) error {
		if key == "" {
			return errors.New("cache key must not be empty")
		}
		d.cacheKey = key
		return nil
	}
}
