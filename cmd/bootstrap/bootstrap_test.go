package bootstrap

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LingByte/LingMeet/pkg/models"
	"github.com/LingByte/LingMeet/pkg/store"
)

func TestSetupDatabase_Sqlite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "meet.db")
	db, err := SetupDatabase(io.Discard, &Options{DSN: dsn, AutoMigrate: true})
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable(&models.MeetingRecord{}))
}

func TestSetupDatabase_UnknownDriver(t *testing.T) {
	_, err := SetupDatabase(io.Discard, &Options{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported db driver")
}

func TestEnsureBannerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banner.txt")
	require.NoError(t, EnsureBannerFile(path, "LingMeet"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "LingMeet")

	require.NoError(t, os.WriteFile(path, []byte("custom"), 0o644))
	require.NoError(t, EnsureBannerFile(path, "LingMeet"))
	data, _ = os.ReadFile(path)
	assert.Equal(t, "custom", string(data))
}

func TestHistoryJanitor(t *testing.T) {
	db, err := SetupDatabase(io.Discard, &Options{DSN: filepath.Join(t.TempDir(), "meet.db"), AutoMigrate: true})
	require.NoError(t, err)
	s := store.NewMeetingStore(db, nil)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s.RoomOpened("old", now.Add(-40*24*time.Hour))
	s.RoomClosed("old", now.Add(-39*24*time.Hour), 2)
	s.RoomOpened("crashed", now.Add(-time.Hour))

	j := NewHistoryJanitor(s, 30)
	j.now = func() time.Time { return now }

	require.NoError(t, j.Recover())
	j.Prune()

	records, err := s.List(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "crashed", records[0].RoomKey)
	assert.False(t, records[0].Open())

	c := cron.New()
	_, err = j.Schedule(c, "@every 1h")
	assert.NoError(t, err)
	_, err = j.Schedule(c, "not a schedule")
	assert.Error(t, err)
}
