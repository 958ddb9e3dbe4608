// Package pipeline executes declaratively described HTTP endpoints:
// callers build a [Descriptor] for an endpoint once, and the [Engine]
// performs the request, validates the transport contract, decodes the
// payload, and reports typed errors.
//
// # Building an Engine
//
// Use [Build] with functional options:
//
//	e, err := pipeline.Build(
//		pipeline.WithClient(hc),
//		pipeline.WithLogger(logger),
//	)
//
// # Describing an Endpoint
//
// A [Descriptor] is validated at construction and immutable afterwards:
//
//	d, err := pipeline.NewDescriptor(http.MethodGet, "https://api.example.com", "/v1/users",
//		pipeline.WithQuery("page", "2"),
//		pipeline.WithHeader("X-Request-ID", id),
//	)
//
// # Starting Requests
//
// [Engine.Start] produces exactly one terminal outcome per call: a
// decoded model or an error.
//
//	var users []User
//	err = e.Start(ctx, d, pipeline.WithModel(&users))
//
// [Engine.StartAsync] delivers the same single outcome on a channel,
// and [Engine.Download] streams the body to disk through the tracked
// dispatch path.
//
// # Failure Classification
//
// Every failure is classified by [Transient]. Transient conditions
// (timeouts, cancellation, connectivity loss) are expected noise and
// only traced at debug level; everything else is reported to the error
// log. Classification never changes the error the caller receives.
package pipeline
