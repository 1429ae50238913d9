package relay

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cast"

	apperrors "github.com/LingByte/LingMeet/pkg/errors"
	"github.com/LingByte/LingMeet/pkg/models"
)

// MeetingLister is the read side of the meeting history store.
type MeetingLister interface {
	List(limit int) ([]models.MeetingRecord, error)
}

type Routes struct {
	Hub      *Hub
	Meetings MeetingLister       // optional
	Gatherer prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	Started  time.Time
}

// Register mounts the signaling endpoint and the read-only HTTP API on r.
func (rt *Routes) Register(r gin.IRouter) {
	if rt.Started.IsZero() {
		rt.Started = time.Now()
	}
	gatherer := rt.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.GET("/ws", gin.WrapH(rt.Hub))
	r.GET("/health", rt.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/rooms/:id", rt.getRoom)
	api.GET("/meetings", rt.listMeetings)
}

func (rt *Routes) health(c *gin.Context) {
	body := gin.H{
		"status":      "ok",
		"uptime":      time.Since(rt.Started).Round(time.Second).String(),
		"connections": rt.Hub.ConnectionCount(),
		"rooms":       rt.Hub.Registry().Count(),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := p.CPUPercent(); err == nil {
			body["cpu_percent"] = cpu
		}
		if mem, err := p.MemoryInfo(); err == nil {
			body["rss_bytes"] = mem.RSS
		}
	}
	c.JSON(http.StatusOK, body)
}

func (rt *Routes) getRoom(c *gin.Context) {
	snap, ok := rt.Hub.Registry().Snapshot(c.Param("id"))
	if !ok {
		abort(c, apperrors.NewAppError(apperrors.ErrCodeRoomNotFound, "room not found"))
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (rt *Routes) listMeetings(c *gin.Context) {
	if rt.Meetings == nil {
		c.JSON(http.StatusOK, gin.H{"meetings": []models.MeetingRecord{}})
		return
	}
	limit := cast.ToInt(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		abort(c, apperrors.NewAppErrorf(apperrors.ErrCodeInvalidInput, "limit must be between 1 and 500"))
		return
	}
	records, err := rt.Meetings.List(limit)
	if err != nil {
		abort(c, apperrors.WrapError(apperrors.ErrCodeInternal, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetings": records})
}

func abort(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, err)
}
