package models

import (
	"time"

	"gorm.io/gorm"
)

const AnalysisCompleted = "completed"

// CropAnalysis is the stored outcome of one disease check on a crop photo.
// A nil DetectedDisease means the crop looked healthy.
type CropAnalysis struct {
	ID                      string    `gorm:"primaryKey;size:36" json:"id"`
	UserID                  string    `gorm:"size:36;index;not null" json:"user_id"`
	ImageURL                string    `gorm:"size:1024;not null" json:"image_url"`
	CropType                *string   `gorm:"size:64" json:"crop_type"`
	DetectedDisease         *string   `gorm:"size:255" json:"detected_disease"`
	ConfidenceScore         *float64  `json:"confidence_score"`
	TreatmentSteps          []string  `gorm:"serializer:json" json:"treatment_steps"`
	PesticideRecommendation string    `gorm:"type:text" json:"pesticide_recommendation"`
	PreventionTips          []string  `gorm:"serializer:json" json:"prevention_tips"`
	AnalysisStatus          string    `gorm:"size:32;not null;default:completed" json:"analysis_status"`
	CreatedAt               time.Time `gorm:"index" json:"created_at"`
}

func (CropAnalysis) TableName() string { return "crop_analyses" }

func (c *CropAnalysis) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	if c.AnalysisStatus == "" {
		c.AnalysisStatus = AnalysisCompleted
	}
	return nil
}

// Healthy reports whether no disease was detected.
func (c CropAnalysis) Healthy() bool { return c.DetectedDisease == nil }
