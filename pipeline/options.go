package pipeline

import (
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Option is a functional option for configuring an [Engine] via [Build].
type Option func(*options) error

type options struct {
	client        *http.Client
	doer          HTTPDoer
	session       Session
	demux         *Demux
	cache         Cache
	cacheBypass   bool
	offline       bool
	defaultHeader http.Header
	logger        *slog.Logger
	tracer        trace.Tracer
}

// WithClient replaces the default [http.Client] backing the engine's
// session.
func WithClient(hc *http.Client) Option {
	return func(o *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		o.client = hc
		return nil
	}
}

// WithDoer replaces the transport with any [HTTPDoer]. Takes precedence
// over [WithClient].
func WithDoer(doer HTTPDoer) Option {
	return func(o *options) error {
		if doer == nil {
			return errors.New("doer must not be nil")
		}
		o.doer = doer
		return nil
	}
}

// WithSession replaces the whole [Session] capability. A custom session
// that supports tracked dispatch must deliver its events to the same
// [Demux] the engine uses; inject one with [WithDemux] and hand it to
// both.
func WithSession(s Session) Option {
	return func(o *options) error {
		if s == nil {
			return errors.New("session must not be nil")
		}
		o.session = s
		return nil
	}
}

// WithDemux injects the registry for tracked requests. Each engine gets
// its own instance by default; sharing or substituting one is only
// needed when also substituting the session.
func WithDemux(d *Demux) Option {
	return func(o *options) error {
		if d == nil {
			return errors.New("demux must not be nil")
		}
		o.demux = d
		return nil
	}
}

// WithCache enables the pre-dispatch cache gate.
func WithCache(c Cache) Option {
	return func(o *options) error {
		if c == nil {
			return errors.New("cache must not be nil")
		}
		o.cache = c
		return nil
	}
}

// WithCacheBypass forces cache misses without removing the provider,
// so test environments can disable caching wholesale.
func WithCacheBypass() Option {
	return func(o *options) error {
		o.cacheBypass = true
		return nil
	}
}

// WithSimulatedOffline makes every dispatch fail immediately with
// [ErrOffline] before any transport call, for test environments.
func WithSimulatedOffline() Option {
	return func(o *options) error {
		o.offline = true
		return nil
	}
}

// WithDefaultHeader sets a header applied to every request before the
// descriptor's own headers, which win on key collision.
func WithDefaultHeader(key, value string) Option {
	return func(o *options) error {
		if key == "" {
			return errors.New("header key must not be empty")
		}
		if o.defaultHeader == nil {
			o.defaultHeader = http.Header{}
		}
		o.defaultHeader.Set(key, value)
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Engine].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithTracer injects an OpenTelemetry tracer. A no-op tracer is used
// unless set.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		o.tracer = tracer
		return nil
	}
}
