package analysis

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishismart/models"
	"krishismart/pkg/advisor"
	"krishismart/pkg/dbconn"
	"krishismart/pkg/photo"
	"krishismart/pkg/querycache"
	"krishismart/pkg/queries"
	"krishismart/pkg/remote"
)

type fixture struct {
	pipeline *Pipeline
	store    *queries.Store
	base     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := dbconn.Open("sqlite:" + filepath.Join(t.TempDir(), "analysis.db"))
	require.NoError(t, err)
	require.NoError(t, dbconn.Migrate(db))
	cache := querycache.New()
	t.Cleanup(cache.Close)
	store := queries.NewStore(remote.NewGormClient(db), cache)
	base := t.TempDir()
	blobs := remote.NewLocalBlobStore(db, base, "http://localhost:8081/public")
	classifier := advisor.NewMockClassifier(0)
	classifier.Pick = func(int) int { return 0 }
	p := New(store, blobs, classifier, prometheus.NewRegistry())
	p.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return &fixture{pipeline: p, store: store, base: base}
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(300, 200, color.NRGBA{R: 90, G: 140, B: 40, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

func TestAnalyzeStoresPhotoAndAnalysis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := queries.FixedUser("u1")

	out, err := f.pipeline.Analyze(ctx, u, "tomato leaf.jpg", jpegBytes(t))
	require.NoError(t, err)
	a := out.Analysis
	assert.Equal(t, "u1", a.UserID)
	assert.Equal(t, "http://localhost:8081/public/crop-images/u1/1700000000000-tomato-leaf.jpg", a.ImageURL)
	require.NotNil(t, a.DetectedDisease)
	assert.Equal(t, "Late Blight", *a.DetectedDisease)
	assert.Equal(t, models.AnalysisCompleted, a.AnalysisStatus)
	assert.Equal(t, "http://localhost:8081/public/crop-images/u1/thumbs/1700000000000-tomato-leaf.jpg", out.ThumbnailURL)

	_, err = os.Stat(filepath.Join(f.base, "crop-images", "u1", "1700000000000-tomato-leaf.jpg"))
	assert.NoError(t, err)

	list := f.store.CropAnalyses(ctx, u)
	require.Len(t, list.Data, 1)
	assert.Equal(t, a.ID, list.Data[0].ID)
}

func TestAnalyzeRejectsBeforeUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Analyze(ctx, queries.FixedUser("u1"), "notes.txt", []byte("just some text"))
	assert.ErrorIs(t, err, photo.ErrNotImage)

	_, err = f.pipeline.Analyze(ctx, nil, "leaf.jpg", jpegBytes(t))
	assert.ErrorIs(t, err, queries.ErrNotAuthenticated)

	_, err = os.Stat(filepath.Join(f.base, "crop-images"))
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, f.store.CropAnalyses(ctx, queries.FixedUser("u1")).Data)
}
