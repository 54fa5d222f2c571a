package models

import (
	"time"

	"gorm.io/gorm"
)

// Advisory is a seasonal farming notice with an optional regional-language
// translation of its title and content. Only active advisories are shown to farmers.
type Advisory struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	Title           string    `gorm:"size:255;not null" json:"title"`
	TitleRegional   *string   `gorm:"size:255" json:"title_regional"`
	Content         string    `gorm:"type:text;not null" json:"content"`
	ContentRegional *string   `gorm:"type:text" json:"content_regional"`
	Category        *string   `gorm:"size:64" json:"category"`
	Season          *string   `gorm:"size:64" json:"season"`
	IsActive        bool      `gorm:"not null;index" json:"is_active"`
	CreatedBy       *string   `gorm:"size:36" json:"created_by"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Advisory) TableName() string { return "advisories" }

func (a *Advisory) BeforeCreate(tx *gorm.DB) error {
	assignID(&a.ID)
	return nil
}
