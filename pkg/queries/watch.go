package queries

import (
	"context"

	"krishismart/models"
	"krishismart/pkg/querycache"
)

// Watch follows one cached collection. While it is open, writes to the
// collection trigger an immediate refetch whose result Next delivers.
type Watch[T any] struct {
	sub *querycache.Subscription
}

// Next blocks until the next state arrives. ok is false once the watch or
// the cache is closed, or ctx is done.
func (w *Watch[T]) Next(ctx context.Context) (r Result[T], ok bool) {
	select {
	case st, open := <-w.sub.Updates():
		if !open {
			return r, false
		}
		return fromState[T](st), true
	case <-ctx.Done():
		return r, false
	}
}

func (w *Watch[T]) Close() { w.sub.Close() }

func watch[T any](s *Store, key querycache.Key, fetch func(context.Context) (T, error)) *Watch[T] {
	sub := s.cache.Subscribe(key, func(ctx context.Context) (any, error) { return fetch(ctx) })
	return &Watch[T]{sub: sub}
}

func (s *Store) WatchAdvisories() *Watch[[]models.Advisory] {
	return watch(s, advisoriesKey(), s.fetchAdvisories)
}

func (s *Store) WatchCropAnalyses(us UserSource) (*Watch[[]models.CropAnalysis], error) {
	uid := userID(us)
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	return watch(s, cropAnalysesKey(uid), s.cropAnalysesFetcher(uid)), nil
}

func (s *Store) WatchResidueRecommendations(us UserSource) (*Watch[[]models.ResidueRecommendation], error) {
	uid := userID(us)
	if uid == "" {
		return nil, ErrNotAuthenticated
	}
	return watch(s, residueKey(uid), s.residueFetcher(uid)), nil
}
