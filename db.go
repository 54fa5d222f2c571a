package main

import (
	"fmt"
	"os"
	"time"

	"github.com/apex/log"
	"gorm.io/gorm"

	"krishismart/models"
	"krishismart/pkg/dbconn"
)

// initDB opens the database, migrates it when enabled and seeds starter data.
func initDB(cfg Config) (*gorm.DB, error) {
	db, err := dbconn.Open(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		// migration failures are logged per table and do not stop startup
		_ = dbconn.Migrate(db)
	}
	if err := seedDB(db); err != nil {
		return nil, err
	}
	ensureUploadBase(cfg.UploadBase)
	return db, nil
}

func strPtr(s string) *string { return &s }

// starterAdvisories are inserted when the advisories table is empty.
func starterAdvisories() []models.Advisory {
	now := time.Now()
	return []models.Advisory{
		{
			Title:         "Prepare fields for monsoon sowing",
			TitleRegional: strPtr("मानसून बुवाई के लिए खेत तैयार करें"),
			Content:       "Clear field drains and bunds before the first heavy rain. Test soil moisture before sowing kharif crops.",
			Category:      strPtr("weather"),
			Season:        strPtr("kharif"),
			IsActive:      true,
			CreatedAt:     now.Add(-2 * time.Hour),
		},
		{
			Title:         "Do not burn paddy straw",
			TitleRegional: strPtr("धान की पराली न जलाएं"),
			Content:       "Straw can be composted, sold for biofuel or used for mushroom farming. Use the residue advisor to estimate income.",
			Category:      strPtr("residue"),
			Season:        strPtr("rabi"),
			IsActive:      true,
			CreatedAt:     now.Add(-time.Hour),
		},
		{
			Title:    "Watch for late blight in tomato",
			Content:  "Cool, humid nights favour late blight. Inspect lower leaves twice a week and remove infected plants early.",
			Category: strPtr("disease"),
			Season:   strPtr("rabi"),
			IsActive: true,
		},
	}
}

func seedDB(db *gorm.DB) error {
	var n int64
	if err := db.Model(&models.Advisory{}).Count(&n).Error; err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if n > 0 {
		return nil
	}
	seed := starterAdvisories()
	if err := db.Create(&seed).Error; err != nil {
		return fmt.Errorf("seed advisories: %w", err)
	}
	log.Infof("seeded %d advisories", len(seed))
	return nil
}

// ensureUploadBase creates the base uploads directory.
func ensureUploadBase(base string) {
	if err := os.MkdirAll(base, 0755); err != nil {
		log.WithError(err).WithField("dir", base).Warn("failed to create upload base dir")
	}
}
