// Package reqid carries the request ID of one GraphQL request through its
// context, including calls to remote executors.
package reqid

import (
	"context"
	"math/rand/v2"
	"strconv"
)

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent with a new random request ID stored.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, int64) {
	id := rand.Int64()
	return WithID(parent, id), id
}

// WithID returns a copy of parent carrying id. Servers use it to continue
// the request of their caller.
func WithID(parent context.Context, id int64) context.Context {
	return context.WithValue(parent, key{}, id)
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(key{})
	id, ok := v.(int64)
	return id, ok
}

// Format renders id for headers and gRPC metadata.
func Format(id int64) string { return strconv.FormatInt(id, 10) }

// Parse reverses Format.
func Parse(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}
