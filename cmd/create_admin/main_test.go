package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishismart/models"
	"krishismart/pkg/dbconn"
)

func TestEnsureAdminCreatesThenPromotes(t *testing.T) {
	db, err := dbconn.Open("sqlite:" + filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	require.NoError(t, dbconn.Migrate(db))

	created, u, err := ensureAdmin(db, "officer@example.com", "secret1", "Officer")
	require.NoError(t, err)
	assert.True(t, created)

	var p models.Profile
	require.NoError(t, db.Where("user_id = ?", u.ID).First(&p).Error)
	assert.True(t, p.IsAdmin)
	assert.Equal(t, "Officer", p.FullName)

	require.NoError(t, db.Model(&p).Update("is_admin", false).Error)
	created, again, err := ensureAdmin(db, "officer@example.com", "other-pw", "Officer")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
	require.NoError(t, db.Where("user_id = ?", u.ID).First(&p).Error)
	assert.True(t, p.IsAdmin)

	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}
