// Package executor runs GraphQL operations level by level against a Runtime.
//
// Fields are either sync or async, as marked by schema.Field.Async. Generated
// schemas mark root fields async: each one is a search or a write against the
// query executor. Everything below a root field is sync, since the root search
// already loaded the associations the selection asked for.
//
// Execution repeats one cycle per async depth:
//
//	A. Expand the frontier. Sync fields are resolved with Runtime.ResolveSync
//	   and completed at once; object results keep expanding without adding
//	   depth. Async fields are queued.
//	B. Resolve the queue with a single Runtime.BatchResolveAsync call. The
//	   runtime returns one result per task, in task order.
//	C. Complete each result. Object results add their subfields to the next
//	   frontier.
//
// A schema with async depth d therefore calls BatchResolveAsync d times. For a
// generated schema d is 1.
//
// Value completion follows GraphQL rules. A null or failed Non-Null field
// nulls its nearest nullable ancestor, and queued tasks below that ancestor
// are dropped. Leaf values go through Runtime.SerializeLeafValue and abstract
// types through Runtime.ResolveType. Errors are collected with their response
// paths; sibling fields still complete, so a response may carry data and
// errors together.
//
// Fragment type conditions match only the concrete object type name.
package executor
