// Package queries is the entity read/write layer used by the HTTP handlers and
// the inbox worker. Reads go through the shared query cache; every successful
// write invalidates the affected key so the next read, and every live
// watcher, sees it.
package queries

import (
	"errors"

	"krishismart/pkg/querycache"
)

var (
	// ErrNotAuthenticated is returned by user-scoped writes and watches without a signed-in user.
	ErrNotAuthenticated = errors.New("queries: not authenticated")
	ErrInvalidInput     = errors.New("queries: invalid input")
)

type State string

const (
	// StateNotReady means the read was suppressed because it needs a user and there is none.
	StateNotReady State = "not_ready"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateError    State = "error"
)

// Result is the outcome of a read. Data is only meaningful when State is
// StateReady, or StateLoading during a refetch of earlier data.
type Result[T any] struct {
	State State `json:"state"`
	Data  T     `json:"data"`
	Err   error `json:"-"`
}

func (r Result[T]) Ready() bool { return r.State == StateReady }

func fromState[T any](st querycache.State) Result[T] {
	var r Result[T]
	if v, ok := st.Data.(T); ok {
		r.Data = v
	}
	switch {
	case st.Status == querycache.StatusError:
		r.State, r.Err = StateError, st.Err
	case st.Status == querycache.StatusReady && !st.Stale && !st.Fetching:
		r.State = StateReady
	default:
		r.State = StateLoading
	}
	return r
}
