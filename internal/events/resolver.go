package events

// ResolverError is emitted when a root field fails to resolve.
type ResolverError struct {
	ObjectType string
	Field      string
	Err        error
}
