package remote

import "errors"

var (
	// ErrNotFound is returned when an update or delete matched no row.
	ErrNotFound = errors.New("remote: no matching row")
	// ErrEmptyPatch is returned by Update when there is nothing to write.
	ErrEmptyPatch = errors.New("remote: empty patch")
	// ErrInvalidPath is returned for blob paths that are empty, absolute or escape the bucket.
	ErrInvalidPath = errors.New("remote: invalid object path")
	// ErrObjectExists is returned when uploading over an existing object.
	ErrObjectExists = errors.New("remote: object already exists")
)
