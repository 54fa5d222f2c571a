package models

import (
	"time"

	"gorm.io/gorm"
)

// ResidueRecommendation records the reuse options suggested for a quantity of crop residue.
type ResidueRecommendation struct {
	ID               string   `gorm:"primaryKey;size:36" json:"id"`
	UserID           string   `gorm:"size:36;index;not null" json:"user_id"`
	CropType         string   `gorm:"size:64;not null" json:"crop_type"`
	ResidueType      string   `gorm:"size:64;not null" json:"residue_type"`
	QuantityKg       *float64 `json:"quantity_kg"`
	SuggestedMethods []string `gorm:"serializer:json" json:"suggested_methods"`
	EstimatedIncome  *float64 `json:"estimated_income"`
	// StepByStepGuidance maps a method name to its ordered steps.
	StepByStepGuidance map[string][]string `gorm:"serializer:json" json:"step_by_step_guidance"`
	CreatedAt          time.Time           `gorm:"index" json:"created_at"`
}

func (ResidueRecommendation) TableName() string { return "residue_recommendations" }

func (r *ResidueRecommendation) BeforeCreate(tx *gorm.DB) error {
	assignID(&r.ID)
	return nil
}
