package model

import "time"

// SpoolEntry is a record the archiver permanently gave up storing, as saved
// to the spool directory.
type SpoolEntry struct {
	UUID string
	// Abandoned is when the last attempt failed.
	Abandoned time.Time
	URL       string
	TestType  string
	// Attempts is the number of attempts made, including the last one.
	Attempts int64
	Error    string
	// Record is the JSON encoding of the Record.
	Record string
}
