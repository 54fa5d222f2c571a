package models

import "github.com/google/uuid"

// assignID fills an empty primary key with a random UUID. Rows are keyed by
// UUID strings so ids can be created insert-side on any backing database.
func assignID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
