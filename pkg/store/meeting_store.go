// Package store persists meeting history metadata.
package store

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/models"
)

// MeetingStore records when rooms open and close. It satisfies
// room.Observer; write failures are logged, never surfaced to the registry.
type MeetingStore struct {
	db *gorm.DB
	lg *zap.Logger
}

func NewMeetingStore(db *gorm.DB, lg *zap.Logger) *MeetingStore {
	return &MeetingStore{db: db, lg: logger.OrDefault(lg, "store")}
}

// Migrate creates or updates the meetings table.
func (s *MeetingStore) Migrate() error {
	return s.db.AutoMigrate(&models.MeetingRecord{})
}

func (s *MeetingStore) RoomOpened(key string, at time.Time) {
	rec := models.MeetingRecord{RoomKey: key, OpenedAt: at.UTC()}
	if err := s.db.Create(&rec).Error; err != nil {
		s.lg.Error("record room opened", zap.String("room_id", key), zap.Error(err))
	}
}

func (s *MeetingStore) RoomClosed(key string, at time.Time, peak int) {
	var rec models.MeetingRecord
	err := s.db.Where("room_key = ? AND closed_at IS NULL", key).
		Order("opened_at DESC").
		First(&rec).Error
	if err != nil {
		s.lg.Warn("no open meeting to close", zap.String("room_id", key), zap.Error(err))
		return
	}
	closed := at.UTC()
	err = s.db.Model(&rec).Updates(map[string]interface{}{
		"closed_at":    &closed,
		"peak_members": peak,
	}).Error
	if err != nil {
		s.lg.Error("record room closed", zap.String("room_id", key), zap.Error(err))
	}
}

// List returns the most recent meetings first.
func (s *MeetingStore) List(limit int) ([]models.MeetingRecord, error) {
	var records []models.MeetingRecord
	err := s.db.Order("opened_at DESC").Order("id DESC").Limit(limit).Find(&records).Error
	return records, err
}

// Prune deletes closed meetings that ended before cutoff and returns how
// many rows went.
func (s *MeetingStore) Prune(cutoff time.Time) (int64, error) {
	res := s.db.Where("closed_at IS NOT NULL AND closed_at < ?", cutoff.UTC()).Delete(&models.MeetingRecord{})
	return res.RowsAffected, res.Error
}

// CloseDangling marks meetings left open by a previous process as closed.
// Room state is in memory, so nothing can still be live at startup.
func (s *MeetingStore) CloseDangling(at time.Time) (int64, error) {
	res := s.db.Model(&models.MeetingRecord{}).
		Where("closed_at IS NULL").
		Update("closed_at", at.UTC())
	return res.RowsAffected, res.Error
}
