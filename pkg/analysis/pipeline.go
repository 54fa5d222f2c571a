// Package analysis runs a crop photo through the disease check: normalize,
// store, classify and record the result for the photo's owner.
package analysis

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"

	"krishismart/models"
	"krishismart/pkg/advisor"
	"krishismart/pkg/photo"
	"krishismart/pkg/queries"
	"krishismart/pkg/remote"
)

// Bucket holds crop photos and their thumbnails.
const Bucket = "crop-images"

// Outcome is a stored analysis plus where its photo can be fetched.
type Outcome struct {
	Analysis     *models.CropAnalysis `json:"analysis"`
	ThumbnailURL string               `json:"thumbnail_url,omitempty"`
}

type Pipeline struct {
	store      *queries.Store
	blobs      remote.BlobStore
	classifier advisor.Classifier
	now        func() time.Time
	duration   *prometheus.HistogramVec
}

// New builds a pipeline. reg may be nil to skip metrics.
func New(store *queries.Store, blobs remote.BlobStore, classifier advisor.Classifier, reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{store: store, blobs: blobs, classifier: classifier, now: time.Now}
	p.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "krishismart",
		Name:      "analysis_duration_seconds",
		Help:      "Time from photo received to analysis stored.",
		Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 30},
	}, []string{"result"})
	if reg != nil {
		reg.MustRegister(p.duration)
	}
	return p
}

// Analyze checks and stores the photo data, uploaded under name, for the
// signed-in user, classifies it and records the analysis. Nothing is
// uploaded when the photo is rejected.
func (p *Pipeline) Analyze(ctx context.Context, us queries.UserSource, name string, data []byte) (out *Outcome, err error) {
	start := p.now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		p.duration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	uid := ""
	if us != nil {
		uid = us.UserID()
	}
	if uid == "" {
		return nil, queries.ErrNotAuthenticated
	}
	if err := photo.Check(photo.Sniff(data), int64(len(data))); err != nil {
		return nil, err
	}
	normalized, err := photo.Normalize(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	objectPath := photo.ObjectPath(uid, start, name)
	if _, err := p.blobs.Upload(ctx, Bucket, objectPath, bytes.NewReader(normalized), "image/jpeg", uid); err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}
	imageURL := p.blobs.PublicURL(Bucket, objectPath)
	out = &Outcome{ThumbnailURL: p.storeThumbnail(ctx, uid, objectPath, normalized)}

	d, err := p.classifier.Classify(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	row, err := p.store.CreateCropAnalysis(ctx, us, d.Analysis(imageURL))
	if err != nil {
		return nil, err
	}
	out.Analysis = row
	log.WithFields(log.Fields{
		"user_id":  uid,
		"analysis": row.ID,
		"crop":     d.CropType,
		"healthy":  d.Healthy(),
	}).Info("crop analysis stored")
	return out, nil
}

// storeThumbnail is best effort; the analysis does not depend on it.
func (p *Pipeline) storeThumbnail(ctx context.Context, uid, objectPath string, normalized []byte) string {
	thumb, err := photo.Thumbnail(bytes.NewReader(normalized))
	if err != nil {
		log.WithError(err).Warn("thumbnail failed")
		return ""
	}
	tp := photo.ThumbnailPath(objectPath)
	if _, err := p.blobs.Upload(ctx, Bucket, tp, bytes.NewReader(thumb), "image/jpeg", uid); err != nil {
		log.WithError(err).WithField("path", tp).Warn("thumbnail upload failed")
		return ""
	}
	return p.blobs.PublicURL(Bucket, tp)
}
