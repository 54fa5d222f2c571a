// Package remote is the data-access boundary of the service: a small
// table client (select / insert / update / delete against named tables) and a
// blob store (upload / public URL). Everything above it treats the backing
// database and file storage as opaque.
package remote

import (
	"context"
	"io"

	"krishismart/models"
)

// Filter is an equality predicate on one column.
type Filter struct {
	Column string
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter { return Filter{Column: column, Value: value} }

// Order sorts a selection by one column.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a selection from one table. Empty Columns selects all.
type Query struct {
	Table   string
	Columns []string
	Filters []Filter
	Order   *Order
	Limit   int
}

// Client performs reads and writes against named tables.
//
// Insert and Update re-read the written row into their argument, so callers
// always observe what the store holds (defaults, timestamps, serializers).
type Client interface {
	Select(ctx context.Context, q Query, dest any) error
	Insert(ctx context.Context, table string, row any) error
	// Update applies patch (column -> value) to the single row matched by
	// filters and reads it back into dest. ErrNotFound if nothing matched.
	Update(ctx context.Context, table string, patch map[string]any, dest any, filters ...Filter) error
	// Delete removes the rows matched by filters. model names the row type.
	// ErrNotFound if nothing matched.
	Delete(ctx context.Context, table string, model any, filters ...Filter) error
}

// BlobStore keeps uploaded files and exposes them under a public URL.
type BlobStore interface {
	Upload(ctx context.Context, bucket, path string, r io.Reader, contentType, ownerID string) (*models.StoredObject, error)
	PublicURL(bucket, path string) string
}
