package events

import "time"

// SchemaReload is emitted after the entity metadata was reloaded and the
// GraphQL schema rebuilt. Err is set when the rebuild failed and the previous
// schema stays in service.
type SchemaReload struct {
	Source   string
	Entities int
	Err      error
	Duration time.Duration
}
