// Package dbconn opens the service database and keeps its schema migrated.
package dbconn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"krishismart/models"
)

const sqlitePrefix = "sqlite:"

// Open connects to the database named by dsn. A "sqlite:<path>" dsn opens a
// local SQLite file (CGO-free driver); anything else is handed to postgres.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database dsn is empty")
	}
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}
	if strings.HasPrefix(dsn, sqlitePrefix) {
		path := strings.TrimPrefix(dsn, sqlitePrefix)
		if !strings.Contains(path, "?") {
			// concurrent readers and writers wait instead of failing with SQLITE_BUSY
			path += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
		db, err := gorm.Open(sqlite.Open(path), cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
		return db, nil
	}
	db, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// Migrate runs AutoMigrate model by model so a failure on one table does not
// block the others. Failures are logged and returned joined.
func Migrate(db *gorm.DB) error {
	steps := []struct {
		table string
		model any
	}{
		{"users", &models.User{}},
		{"profiles", &models.Profile{}},
		{"refresh_tokens", &models.RefreshToken{}},
		{"advisories", &models.Advisory{}},
		{"crop_analyses", &models.CropAnalysis{}},
		{"residue_recommendations", &models.ResidueRecommendation{}},
		{"stored_objects", &models.StoredObject{}},
	}
	var errs []error
	for _, s := range steps {
		if err := db.AutoMigrate(s.model); err != nil {
			log.WithError(err).WithField("table", s.table).Warn("migration warning")
			errs = append(errs, fmt.Errorf("migrate %s: %w", s.table, err))
		}
	}
	return errors.Join(errs...)
}
