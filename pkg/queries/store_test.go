package queries

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishismart/models"
	"krishismart/pkg/dbconn"
	"krishismart/pkg/querycache"
	"krishismart/pkg/remote"
)

// spyClient counts selects per table and can fail writes or hold selects.
type spyClient struct {
	remote.Client

	mu        sync.Mutex
	selects   map[string]int
	failWrite error
	gate      chan struct{}
}

func (c *spyClient) Select(ctx context.Context, q remote.Query, dest any) error {
	c.mu.Lock()
	c.selects[q.Table]++
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return c.Client.Select(ctx, q, dest)
}

func (c *spyClient) Insert(ctx context.Context, table string, row any) error {
	if c.failWrite != nil {
		return c.failWrite
	}
	return c.Client.Insert(ctx, table, row)
}

func (c *spyClient) Delete(ctx context.Context, table string, model any, filters ...remote.Filter) error {
	if c.failWrite != nil {
		return c.failWrite
	}
	return c.Client.Delete(ctx, table, model, filters...)
}

func (c *spyClient) count(table string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selects[table]
}

type fixture struct {
	store   *Store
	client  *spyClient
	metrics *querycache.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := dbconn.Open("sqlite:" + filepath.Join(t.TempDir(), "queries.db"))
	require.NoError(t, err)
	require.NoError(t, dbconn.Migrate(db))

	m := querycache.NewMetrics(prometheus.NewRegistry())
	cache := querycache.New(querycache.WithMetrics(m))
	t.Cleanup(cache.Close)
	spy := &spyClient{Client: remote.NewGormClient(db), selects: map[string]int{}}
	return &fixture{store: NewStore(spy, cache), client: spy, metrics: m}
}

func (f *fixture) invalidations(kind string) float64 {
	return testutil.ToFloat64(f.metrics.Invalidations.WithLabelValues(kind))
}

func strp(s string) *string { return &s }

func TestUserScopedReadsWithoutUserAreSuppressed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, StateNotReady, f.store.CropAnalyses(ctx, nil).State)
	assert.Equal(t, StateNotReady, f.store.ResidueRecommendations(ctx, FixedUser("")).State)
	assert.Equal(t, StateNotReady, f.store.Profile(ctx, nil).State)
	assert.Equal(t, StateNotReady, f.store.PeekCropAnalyses(nil).State)

	assert.Zero(t, f.client.count(tableCropAnalyses))
	assert.Zero(t, f.client.count(tableResidueRecommendations))
	assert.Zero(t, f.client.count(tableProfiles))

	_, err := f.store.CreateCropAnalysis(ctx, nil, models.CropAnalysis{ImageURL: "x"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = f.store.WatchResidueRecommendations(nil)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestCreateInvalidatesOnceAndNextReadSeesRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := FixedUser("u1")

	r := f.store.CropAnalyses(ctx, u)
	require.Equal(t, StateReady, r.State)
	assert.Empty(t, r.Data)

	row, err := f.store.CreateCropAnalysis(ctx, u, models.CropAnalysis{
		UserID:   "intruder",
		ImageURL: "http://x/leaf.jpg",
		CropType: strp("Tomato"),
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", row.UserID)
	assert.Equal(t, models.AnalysisCompleted, row.AnalysisStatus)
	assert.Equal(t, 1.0, f.invalidations(KindCropAnalyses))

	r = f.store.CropAnalyses(ctx, u)
	require.Equal(t, StateReady, r.State)
	require.Len(t, r.Data, 1)
	assert.Equal(t, row.ID, r.Data[0].ID)
	assert.Equal(t, 2, f.client.count(tableCropAnalyses))

	// cached until the next write
	f.store.CropAnalyses(ctx, u)
	assert.Equal(t, 2, f.client.count(tableCropAnalyses))
}

func TestFailedMutationLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := FixedUser("u1")

	require.Equal(t, StateReady, f.store.ResidueRecommendations(ctx, u).State)
	key := residueKey("u1")
	before := f.store.Cache().Snapshot(key)

	f.client.failWrite = errors.New("connection reset")
	_, err := f.store.CreateResidueRecommendation(ctx, u, models.ResidueRecommendation{CropType: "Rice", ResidueType: "Straw"})
	assert.Error(t, err)
	err = f.store.DeleteResidueRecommendation(ctx, u, "some-id")
	assert.Error(t, err)

	after := f.store.Cache().Snapshot(key)
	assert.Equal(t, before.Status, after.Status)
	assert.False(t, after.Stale)
	assert.Zero(t, f.invalidations(KindResidueRecommendations))

	f.store.ResidueRecommendations(ctx, u)
	assert.Equal(t, 1, f.client.count(tableResidueRecommendations))
}

func TestAdvisoriesExcludeInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := FixedUser("admin")
	off := false

	_, err := f.store.CreateAdvisory(ctx, admin, AdvisoryInput{Title: "Monsoon prep", Content: "Clear drains"})
	require.NoError(t, err)
	hidden, err := f.store.CreateAdvisory(ctx, admin, AdvisoryInput{Title: "Old", Content: "x", IsActive: &off})
	require.NoError(t, err)
	assert.False(t, hidden.IsActive)
	require.NotNil(t, hidden.CreatedBy)
	assert.Equal(t, "admin", *hidden.CreatedBy)

	r := f.store.Advisories(ctx)
	require.Equal(t, StateReady, r.State)
	require.Len(t, r.Data, 1)
	assert.Equal(t, "Monsoon prep", r.Data[0].Title)

	on := true
	_, err = f.store.UpdateAdvisory(ctx, hidden.ID, AdvisoryPatch{IsActive: &on, Title: strp("Back again")})
	require.NoError(t, err)
	r = f.store.Advisories(ctx)
	require.Len(t, r.Data, 2)

	require.NoError(t, f.store.DeleteAdvisory(ctx, hidden.ID))
	assert.Len(t, f.store.Advisories(ctx).Data, 1)
	assert.ErrorIs(t, f.store.DeleteAdvisory(ctx, hidden.ID), remote.ErrNotFound)

	_, err = f.store.CreateAdvisory(ctx, admin, AdvisoryInput{Title: " ", Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.store.CreateAdvisory(ctx, nil, AdvisoryInput{Title: "t", Content: "x"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestUsersOnlySeeTheirOwnRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := FixedUser("alice"), FixedUser("bob")

	mine, err := f.store.CreateCropAnalysis(ctx, a, models.CropAnalysis{ImageURL: "a.jpg"})
	require.NoError(t, err)
	_, err = f.store.CreateResidueRecommendation(ctx, a, models.ResidueRecommendation{CropType: "Wheat", ResidueType: "Straw"})
	require.NoError(t, err)

	assert.Empty(t, f.store.CropAnalyses(ctx, b).Data)
	assert.Empty(t, f.store.ResidueRecommendations(ctx, b).Data)
	assert.Len(t, f.store.CropAnalyses(ctx, a).Data, 1)
	assert.Len(t, f.store.ResidueRecommendations(ctx, a).Data, 1)

	err = f.store.DeleteCropAnalysis(ctx, b, mine.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.Len(t, f.store.CropAnalyses(ctx, a).Data, 1)

	require.NoError(t, f.store.DeleteCropAnalysis(ctx, a, mine.ID))
	assert.Empty(t, f.store.CropAnalyses(ctx, a).Data)
}

func TestProfileReadAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := FixedUser("u1")

	r := f.store.Profile(ctx, u)
	assert.Equal(t, StateError, r.State)
	assert.ErrorIs(t, r.Err, remote.ErrNotFound)

	require.NoError(t, f.client.Client.Insert(ctx, tableProfiles, &models.Profile{UserID: "u1", FullName: "Asha"}))
	f.store.Cache().Invalidate(profileKey("u1"))

	r = f.store.Profile(ctx, u)
	require.Equal(t, StateReady, r.State)
	assert.Equal(t, "Asha", r.Data.FullName)

	crops := []string{"Rice", "Cotton"}
	p, err := f.store.UpdateProfile(ctx, u, ProfilePatch{Location: strp("Pune"), PrimaryCrops: &crops})
	require.NoError(t, err)
	assert.Equal(t, "Pune", p.Location)

	r = f.store.Profile(ctx, u)
	assert.Equal(t, []string{"Rice", "Cotton"}, r.Data.PrimaryCrops)
	assert.Equal(t, "Asha", r.Data.FullName)

	_, err = f.store.UpdateProfile(ctx, u, ProfilePatch{})
	assert.ErrorIs(t, err, remote.ErrEmptyPatch)
	_, err = f.store.UpdateProfile(ctx, FixedUser("ghost"), ProfilePatch{Phone: strp("1")})
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestWatchersShareOneFetch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := f.store.CreateAdvisory(ctx, FixedUser("admin"), AdvisoryInput{Title: "Sow wheat", Content: "Nov"})
	require.NoError(t, err)

	f.client.mu.Lock()
	f.client.gate = make(chan struct{})
	gate := f.client.gate
	f.client.mu.Unlock()

	w1 := f.store.WatchAdvisories()
	defer w1.Close()
	w2 := f.store.WatchAdvisories()
	defer w2.Close()

	require.Eventually(t, func() bool { return f.client.count(tableAdvisories) == 1 }, time.Second, 5*time.Millisecond)
	f.client.mu.Lock()
	f.client.gate = nil
	f.client.mu.Unlock()
	close(gate)

	next := func(w *Watch[[]models.Advisory]) Result[[]models.Advisory] {
		for {
			r, ok := w.Next(ctx)
			require.True(t, ok)
			if r.Ready() {
				return r
			}
		}
	}
	r1, r2 := next(w1), next(w2)
	assert.Equal(t, r1.Data, r2.Data)
	require.Len(t, r1.Data, 1)
	assert.Equal(t, 1, f.client.count(tableAdvisories))
}

func TestWatchRefetchesAfterWrite(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	u := FixedUser("u1")

	w, err := f.store.WatchCropAnalyses(u)
	require.NoError(t, err)
	defer w.Close()

	waitLen := func(n int) {
		for {
			r, ok := w.Next(ctx)
			require.True(t, ok)
			if r.Ready() && len(r.Data) == n {
				return
			}
		}
	}
	waitLen(0)
	_, err = f.store.CreateCropAnalysis(ctx, u, models.CropAnalysis{ImageURL: "leaf.jpg"})
	require.NoError(t, err)
	waitLen(1)
}

func TestPeekStartsFetch(t *testing.T) {
	f := newFixture(t)
	r := f.store.PeekAdvisories()
	assert.Equal(t, StateLoading, r.State)
	require.Eventually(t, func() bool { return f.store.PeekAdvisories().Ready() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.client.count(tableAdvisories))
}

func TestAdvisoryPatchClearsNullableColumns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.store.CreateAdvisory(ctx, FixedUser("admin"), AdvisoryInput{
		Title: "Sow wheat", Content: "x", Category: strp("sowing"), Season: strp("rabi"), TitleRegional: strp("गेहूं बोएं"),
	})
	require.NoError(t, err)

	var patch AdvisoryPatch
	require.NoError(t, json.Unmarshal([]byte(`{"category": null, "season": "kharif"}`), &patch))
	assert.True(t, patch.Category.Set)
	assert.Nil(t, patch.Category.Value)
	assert.False(t, patch.TitleRegional.Set)

	got, err := f.store.UpdateAdvisory(ctx, a.ID, patch)
	require.NoError(t, err)
	assert.Nil(t, got.Category)
	require.NotNil(t, got.Season)
	assert.Equal(t, "kharif", *got.Season)
	require.NotNil(t, got.TitleRegional)
	assert.Equal(t, "गेहूं बोएं", *got.TitleRegional)

	got, err = f.store.UpdateAdvisory(ctx, a.ID, AdvisoryPatch{TitleRegional: Null[string](), Category: SetTo("irrigation")})
	require.NoError(t, err)
	assert.Nil(t, got.TitleRegional)
	require.NotNil(t, got.Category)
	assert.Equal(t, "irrigation", *got.Category)

	_, err = f.store.UpdateAdvisory(ctx, a.ID, AdvisoryPatch{})
	assert.ErrorIs(t, err, remote.ErrEmptyPatch)
}

func TestStaleTimePicksUpWritesFromAnotherStore(t *testing.T) {
	db, err := dbconn.Open("sqlite:" + filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	require.NoError(t, dbconn.Migrate(db))

	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	serveCache := querycache.New(querycache.WithStaleTime(30*time.Second), querycache.WithClock(clock))
	t.Cleanup(serveCache.Close)
	otherCache := querycache.New()
	t.Cleanup(otherCache.Close)
	serve := NewStore(remote.NewGormClient(db), serveCache)
	other := NewStore(remote.NewGormClient(db), otherCache)

	ctx := context.Background()
	alice := FixedUser("alice")
	require.Empty(t, serve.CropAnalyses(ctx, alice).Data)

	_, err = other.CreateCropAnalysis(ctx, alice, models.CropAnalysis{ImageURL: "http://x/leaf.jpg"})
	require.NoError(t, err)
	assert.Empty(t, serve.CropAnalyses(ctx, alice).Data)

	mu.Lock()
	now = now.Add(30 * time.Second)
	mu.Unlock()
	r := serve.CropAnalyses(ctx, alice)
	require.Equal(t, StateReady, r.State)
	assert.Len(t, r.Data, 1)
}
