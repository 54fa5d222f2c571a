package models

import (
	"time"

	"gorm.io/gorm"
)

// Profile holds the farmer details for one user (one-to-one with User). It is
// created together with the account and only ever edited by its owner.
type Profile struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    string    `gorm:"size:36;uniqueIndex;not null" json:"user_id"`
	FullName  string    `gorm:"size:255" json:"full_name"`
	Phone     string    `gorm:"size:64" json:"phone"`
	Location  string    `gorm:"size:255" json:"location"`
	FarmSize  string    `gorm:"size:64" json:"farm_size"`
	// PrimaryCrops keeps the order the farmer entered them in.
	PrimaryCrops       []string `gorm:"serializer:json" json:"primary_crops"`
	LanguagePreference string   `gorm:"size:16;default:en" json:"language_preference"`
	IsAdmin            bool     `gorm:"default:false;not null" json:"is_admin"`
}

func (Profile) TableName() string { return "profiles" }

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	if p.LanguagePreference == "" {
		p.LanguagePreference = "en"
	}
	return nil
}
