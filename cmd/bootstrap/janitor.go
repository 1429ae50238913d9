package bootstrap

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/store"
)

// HistoryJanitor keeps the meetings table tidy across restarts.
type HistoryJanitor struct {
	store     *store.MeetingStore
	retention time.Duration
	now       func() time.Time
}

func NewHistoryJanitor(s *store.MeetingStore, retentionDays int) *HistoryJanitor {
	return &HistoryJanitor{
		store:     s,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// Recover closes meetings a previous process left open; their rooms died
// with it.
func (j *HistoryJanitor) Recover() error {
	n, err := j.store.CloseDangling(j.now())
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("closed dangling meetings", zap.Int64("count", n))
	}
	return nil
}

// Prune deletes meetings that closed before the retention window.
// A zero retention keeps everything.
func (j *HistoryJanitor) Prune() {
	if j.retention <= 0 {
		return
	}
	n, err := j.store.Prune(j.now().Add(-j.retention))
	if err != nil {
		logger.Warn("prune meetings failed", zap.Error(err))
		return
	}
	logger.Debug("pruned meetings", zap.Int64("count", n))
}

// Schedule registers Prune on c with a cron spec such as "@every 1h".
func (j *HistoryJanitor) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, j.Prune)
}
