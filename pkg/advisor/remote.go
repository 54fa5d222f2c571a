package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apex/log"
)

// RemoteClassifier asks an inference service to diagnose a photo. The
// service receives {"image_url": ...} and answers with a Diagnosis.
// When the service fails and a Fallback is set, the fallback answers instead.
type RemoteClassifier struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
	Fallback Classifier
}

func NewRemoteClassifier(endpoint, apiKey string, fallback Classifier) *RemoteClassifier {
	return &RemoteClassifier{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Fallback: fallback,
	}
}

func (r *RemoteClassifier) Classify(ctx context.Context, imageURL string) (Diagnosis, error) {
	d, err := r.classify(ctx, imageURL)
	if err == nil {
		return d, nil
	}
	if r.Fallback == nil || ctx.Err() != nil {
		return Diagnosis{}, err
	}
	log.WithError(err).WithField("endpoint", r.Endpoint).Warn("inference failed, using fallback classifier")
	return r.Fallback.Classify(ctx, imageURL)
}

func (r *RemoteClassifier) classify(ctx context.Context, imageURL string) (Diagnosis, error) {
	body, err := json.Marshal(map[string]string{"image_url": imageURL})
	if err != nil {
		return Diagnosis{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Diagnosis{}, fmt.Errorf("%w: %v", ErrInference, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Diagnosis{}, fmt.Errorf("%w: %v", ErrInference, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Diagnosis{}, fmt.Errorf("%w: status %d: %s", ErrInference, resp.StatusCode, bytes.TrimSpace(msg))
	}
	var d Diagnosis
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return Diagnosis{}, fmt.Errorf("%w: decode response: %v", ErrInference, err)
	}
	if d.CropType == "" {
		return Diagnosis{}, fmt.Errorf("%w: response without crop_type", ErrInference)
	}
	if d.TreatmentSteps == nil {
		d.TreatmentSteps = []string{}
	}
	if d.PreventionTips == nil {
		d.PreventionTips = []string{}
	}
	return d, nil
}

// Config selects the classifier and recommender implementations.
type Config struct {
	InferenceEndpoint string
	InferenceAPIKey   string
	AnalysisDelay     time.Duration
	RecommendDelay    time.Duration
}

// NewClassifier returns the remote classifier, backed by the mock, when an
// endpoint is configured, and the mock alone otherwise.
func NewClassifier(cfg Config) Classifier {
	mock := NewMockClassifier(cfg.AnalysisDelay)
	if cfg.InferenceEndpoint == "" {
		return mock
	}
	return NewRemoteClassifier(cfg.InferenceEndpoint, cfg.InferenceAPIKey, mock)
}

func NewRecommender(cfg Config) Recommender {
	return NewMockRecommender(cfg.RecommendDelay)
}
