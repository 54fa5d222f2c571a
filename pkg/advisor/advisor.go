// Package advisor produces the crop diagnoses and residue reuse plans shown to
// farmers. The built-in implementations are canned stand-ins for a real model;
// a remote inference service can take over classification.
package advisor

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"krishismart/models"
)

const (
	DefaultAnalysisDelay  = 2 * time.Second
	DefaultRecommendDelay = 1500 * time.Millisecond
)

// Diagnosis is the classifier's verdict on one crop photo.
type Diagnosis struct {
	Disease        string   `json:"detected_disease,omitempty"`
	CropType       string   `json:"crop_type"`
	Confidence     float64  `json:"confidence_score"`
	TreatmentSteps []string `json:"treatment_steps"`
	Pesticide      string   `json:"pesticide_recommendation"`
	PreventionTips []string `json:"prevention_tips"`
}

func (d Diagnosis) Healthy() bool { return d.Disease == "" }

// Analysis converts the diagnosis into an unsaved crop analysis for imageURL.
func (d Diagnosis) Analysis(imageURL string) models.CropAnalysis {
	a := models.CropAnalysis{
		ImageURL:                imageURL,
		TreatmentSteps:          append([]string{}, d.TreatmentSteps...),
		PesticideRecommendation: d.Pesticide,
		PreventionTips:          append([]string{}, d.PreventionTips...),
		AnalysisStatus:          models.AnalysisCompleted,
	}
	if d.CropType != "" {
		crop := d.CropType
		a.CropType = &crop
	}
	if !d.Healthy() {
		disease := d.Disease
		a.DetectedDisease = &disease
	}
	confidence := d.Confidence
	a.ConfidenceScore = &confidence
	return a
}

// Recommendation is a residue reuse plan.
type Recommendation struct {
	SuggestedMethods   []string            `json:"suggested_methods"`
	EstimatedIncome    float64             `json:"estimated_income"`
	StepByStepGuidance map[string][]string `json:"step_by_step_guidance"`
}

// Record converts the plan into an unsaved residue recommendation.
func (r Recommendation) Record(cropType, residueType string, quantityKg float64) models.ResidueRecommendation {
	q, income := quantityKg, r.EstimatedIncome
	return models.ResidueRecommendation{
		CropType:           cropType,
		ResidueType:        residueType,
		QuantityKg:         &q,
		SuggestedMethods:   r.SuggestedMethods,
		EstimatedIncome:    &income,
		StepByStepGuidance: r.StepByStepGuidance,
	}
}

// Classifier diagnoses the crop in an uploaded photo.
type Classifier interface {
	Classify(ctx context.Context, imageURL string) (Diagnosis, error)
}

// Recommender suggests ways to reuse crop residue.
type Recommender interface {
	Recommend(ctx context.Context, cropType, residueType string, quantityKg float64) (Recommendation, error)
}

// ParseQuantity reads a residue quantity in kilograms. Only finite numbers
// above zero are accepted.
func ParseQuantity(s string) (float64, error) {
	q, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(q) || math.IsInf(q, 0) || q <= 0 {
		return 0, ErrInvalidQuantity
	}
	return q, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
