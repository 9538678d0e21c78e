// Package uuidx generates UUIDv7 identifiers. Version 7 ids are
// time-ordered, which keeps input_id values roughly sortable by
// creation time.
package uuidx

import "github.com/google/uuid"

// New returns a fresh UUIDv7. It panics if the system entropy source
// fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns a fresh UUIDv7 in canonical string form.
func NewString() string {
	return New().String()
}
