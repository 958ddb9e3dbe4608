// Package reqpipe exposes the request pipeline engine builder.
package reqpipe

import (
	"github.com/reqpipe/reqpipe/pipeline"
)

// NewEngine instantiates a new *pipeline.Engine with the provided
// options. If not specified, the default http.Client and transport
// are used.
func NewEngine(opts ...pipeline.Option) (*pipeline.Engine, error) {
	return pipeline.Build(opts...)
}
