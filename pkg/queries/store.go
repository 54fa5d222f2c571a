package queries

import (
	"context"

	"krishismart/models"
	"krishismart/pkg/querycache"
	"krishismart/pkg/remote"
)

const (
	tableAdvisories             = "advisories"
	tableCropAnalyses           = "crop_analyses"
	tableResidueRecommendations = "residue_recommendations"
	tableProfiles               = "profiles"
)

var newestFirst = &remote.Order{Column: "created_at", Desc: true}

// Store reads and writes entities through a remote.Client, caching reads in a
// querycache.Cache keyed by entity kind and user.
type Store struct {
	rc    remote.Client
	cache *querycache.Cache
}

func NewStore(rc remote.Client, cache *querycache.Cache) *Store {
	return &Store{rc: rc, cache: cache}
}

// Cache exposes the underlying cache, e.g. for sign-out invalidation.
func (s *Store) Cache() *querycache.Cache { return s.cache }

func read[T any](ctx context.Context, s *Store, key querycache.Key, fetch func(context.Context) (T, error)) Result[T] {
	v, err := s.cache.Fetch(ctx, key, func(ctx context.Context) (any, error) { return fetch(ctx) })
	if err != nil {
		return Result[T]{State: StateError, Err: err}
	}
	data, _ := v.(T)
	return Result[T]{State: StateReady, Data: data}
}

func peek[T any](s *Store, key querycache.Key, fetch func(context.Context) (T, error)) Result[T] {
	st := s.cache.Prefetch(key, func(ctx context.Context) (any, error) { return fetch(ctx) })
	return fromState[T](st)
}

func (s *Store) fetchAdvisories(ctx context.Context) ([]models.Advisory, error) {
	out := []models.Advisory{}
	err := s.rc.Select(ctx, remote.Query{
		Table:   tableAdvisories,
		Filters: []remote.Filter{remote.Eq("is_active", true)},
		Order:   newestFirst,
	}, &out)
	return out, err
}

func (s *Store) cropAnalysesFetcher(uid string) func(context.Context) ([]models.CropAnalysis, error) {
	return func(ctx context.Context) ([]models.CropAnalysis, error) {
		out := []models.CropAnalysis{}
		err := s.rc.Select(ctx, remote.Query{
			Table:   tableCropAnalyses,
			Filters: []remote.Filter{remote.Eq("user_id", uid)},
			Order:   newestFirst,
		}, &out)
		return out, err
	}
}

func (s *Store) residueFetcher(uid string) func(context.Context) ([]models.ResidueRecommendation, error) {
	return func(ctx context.Context) ([]models.ResidueRecommendation, error) {
		out := []models.ResidueRecommendation{}
		err := s.rc.Select(ctx, remote.Query{
			Table:   tableResidueRecommendations,
			Filters: []remote.Filter{remote.Eq("user_id", uid)},
			Order:   newestFirst,
		}, &out)
		return out, err
	}
}

func (s *Store) profileFetcher(uid string) func(context.Context) (*models.Profile, error) {
	return func(ctx context.Context) (*models.Profile, error) {
		var out []models.Profile
		err := s.rc.Select(ctx, remote.Query{
			Table:   tableProfiles,
			Filters: []remote.Filter{remote.Eq("user_id", uid)},
			Limit:   1,
		}, &out)
		if err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, remote.ErrNotFound
		}
		return &out[0], nil
	}
}

// Advisories returns every active advisory, newest first.
func (s *Store) Advisories(ctx context.Context) Result[[]models.Advisory] {
	return read(ctx, s, advisoriesKey(), s.fetchAdvisories)
}

// CropAnalyses returns the signed-in user's analyses, newest first. Without a
// user nothing is fetched and the result is StateNotReady.
func (s *Store) CropAnalyses(ctx context.Context, us UserSource) Result[[]models.CropAnalysis] {
	uid := userID(us)
	if uid == "" {
		return Result[[]models.CropAnalysis]{State: StateNotReady}
	}
	return read(ctx, s, cropAnalysesKey(uid), s.cropAnalysesFetcher(uid))
}

func (s *Store) ResidueRecommendations(ctx context.Context, us UserSource) Result[[]models.ResidueRecommendation] {
	uid := userID(us)
	if uid == "" {
		return Result[[]models.ResidueRecommendation]{State: StateNotReady}
	}
	return read(ctx, s, residueKey(uid), s.residueFetcher(uid))
}

func (s *Store) Profile(ctx context.Context, us UserSource) Result[*models.Profile] {
	uid := userID(us)
	if uid == "" {
		return Result[*models.Profile]{State: StateNotReady}
	}
	return read(ctx, s, profileKey(uid), s.profileFetcher(uid))
}

// PeekAdvisories returns what is cached without waiting, starting a fetch
// when the cached data is missing or stale.
func (s *Store) PeekAdvisories() Result[[]models.Advisory] {
	return peek(s, advisoriesKey(), s.fetchAdvisories)
}

func (s *Store) PeekCropAnalyses(us UserSource) Result[[]models.CropAnalysis] {
	uid := userID(us)
	if uid == "" {
		return Result[[]models.CropAnalysis]{State: StateNotReady}
	}
	return peek(s, cropAnalysesKey(uid), s.cropAnalysesFetcher(uid))
}

func (s *Store) PeekResidueRecommendations(us UserSource) Result[[]models.ResidueRecommendation] {
	uid := userID(us)
	if uid == "" {
		return Result[[]models.ResidueRecommendation]{State: StateNotReady}
	}
	return peek(s, residueKey(uid), s.residueFetcher(uid))
}

func (s *Store) PeekProfile(us UserSource) Result[*models.Profile] {
	uid := userID(us)
	if uid == "" {
		return Result[*models.Profile]{State: StateNotReady}
	}
	return peek(s, profileKey(uid), s.profileFetcher(uid))
}
