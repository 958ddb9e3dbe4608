package pipeline

import "context"

// Cache is the optional pre-dispatch short-circuit. Lookup is consulted
// synchronously before any transport request is built, keyed by
// [Descriptor.Identity]. A hit substitutes the entire pipeline: no
// network activity, no validation, no decoding, no timing logs.
//
// The engine never writes to the cache; population is the provider's
// concern.
type Cache interface {
	Lookup(ctx context.Context, key string) (any, bool)
}
