package dbconn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishismart/models"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	db, err := Open("sqlite:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, m := range []any{&models.User{}, &models.Profile{}, &models.Advisory{}, &models.CropAnalysis{}, &models.ResidueRecommendation{}, &models.StoredObject{}, &models.RefreshToken{}} {
		assert.True(t, db.Migrator().HasTable(m), "%T table missing", m)
	}
}

func TestOpenEmptyDSN(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
