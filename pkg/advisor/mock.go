package advisor

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/apex/log"
)

// MockClassifier returns one of a few canned diagnoses after a fixed delay.
// The photo itself is not looked at.
type MockClassifier struct {
	Delay time.Duration
	// Pick chooses a diagnosis index in [0, n). Defaults to a uniform random pick.
	Pick func(n int) int
}

func NewMockClassifier(delay time.Duration) *MockClassifier {
	return &MockClassifier{Delay: delay}
}

func (m *MockClassifier) Classify(ctx context.Context, imageURL string) (Diagnosis, error) {
	if err := sleep(ctx, m.Delay); err != nil {
		return Diagnosis{}, err
	}
	pick := m.Pick
	if pick == nil {
		pick = rand.IntN
	}
	d := diagnoses[pick(len(diagnoses))]
	d.TreatmentSteps = append([]string{}, d.TreatmentSteps...)
	d.PreventionTips = append([]string{}, d.PreventionTips...)
	log.WithFields(log.Fields{"image": imageURL, "crop": d.CropType, "disease": d.Disease}).Debug("mock diagnosis")
	return d, nil
}

// MockRecommender suggests every known reuse method and estimates income as
// the mean of the per-method incomes. It is deterministic.
type MockRecommender struct {
	Delay time.Duration
}

func NewMockRecommender(delay time.Duration) *MockRecommender {
	return &MockRecommender{Delay: delay}
}

func (m *MockRecommender) Recommend(ctx context.Context, cropType, residueType string, quantityKg float64) (Recommendation, error) {
	if cropType == "" || residueType == "" {
		return Recommendation{}, ErrMissingField
	}
	if quantityKg <= 0 {
		return Recommendation{}, ErrInvalidQuantity
	}
	if err := sleep(ctx, m.Delay); err != nil {
		return Recommendation{}, err
	}
	rec := Recommendation{
		SuggestedMethods:   make([]string, 0, len(ReuseMethods)),
		StepByStepGuidance: make(map[string][]string, len(ReuseMethods)),
	}
	var total float64
	for _, method := range ReuseMethods {
		rec.SuggestedMethods = append(rec.SuggestedMethods, method.Name)
		rec.StepByStepGuidance[method.Name] = append([]string{}, method.Steps...)
		total += quantityKg * method.RatePerKg
	}
	rec.EstimatedIncome = total / float64(len(ReuseMethods))
	return rec, nil
}
