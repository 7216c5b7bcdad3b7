package events

import "time"

// DALStart is emitted before a query executor operation.
type DALStart struct {
	Operation string
	Entity    string
}

// DALFinish is emitted after a query executor operation completes.
type DALFinish struct {
	Operation string
	Entity    string
	// Rows is the number of records returned or written.
	Rows     int
	Err      error
	Duration time.Duration
}
