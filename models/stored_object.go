package models

import (
	"time"

	"gorm.io/gorm"
)

// StoredObject is the metadata row for a file kept in the blob store.
type StoredObject struct {
	ID          string `gorm:"primaryKey;size:36"`
	CreatedAt   time.Time
	Bucket      string `gorm:"size:64;not null;uniqueIndex:idx_bucket_path"`
	Path        string `gorm:"size:512;not null;uniqueIndex:idx_bucket_path"`
	OwnerID     string `gorm:"size:36;index"`
	ContentType string `gorm:"size:128"`
	Size        int64
}

func (StoredObject) TableName() string { return "stored_objects" }

func (o *StoredObject) BeforeCreate(tx *gorm.DB) error {
	assignID(&o.ID)
	return nil
}
