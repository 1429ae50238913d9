package config

import (
	"log"
	"time"

	"github.com/LingByte/LingMeet/pkg/constants"
	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/utils"
	webrtcconst "github.com/LingByte/LingMeet/pkg/webrtc/constants"
)

// RelayConfig holds websocket relay tuning
type RelayConfig struct {
	ReadBufferSize  int    // upgrader read buffer
	WriteBufferSize int    // upgrader write buffer
	SendQueue       int    // per-connection outbound queue length
	MaxMessageSize  int64  // largest inbound frame
	AllowedOrigin   string // "*" allows every origin
}

// MeshConfig holds participant-side defaults
type MeshConfig struct {
	NegotiationTimeout time.Duration
	ClockSyncInterval  time.Duration
	StunServers        []string
}

// HistoryConfig controls the meeting history janitor
type HistoryConfig struct {
	RetentionDays int
	PruneSchedule string
}

var GlobalConfig *Config

// Config System common config
type Config struct {
	Relay      RelayConfig
	Mesh       MeshConfig
	History    HistoryConfig
	Log        logger.LogConfig
	DBDriver   string `env:"DB_DRIVER"`
	DSN        string `env:"DSN"`
	Addr       string `env:"ADDR"`
	Mode       string `env:"MODE"`
	ServerName string `env:"SERVER_NAME"`
}

func Load() error {
	// 1. 根据环境加载 .env 文件（不存在时使用默认值）
	mode := utils.GetStringOrDefault(constants.ENV_MODE, "development")
	if err := utils.LoadEnv(mode); err != nil {
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}
	// 2. 加载全局配置
	GlobalConfig = &Config{
		Relay: RelayConfig{
			ReadBufferSize:  utils.GetIntOrDefault(constants.ENV_WS_READ_BUFFER, 64*1024),
			WriteBufferSize: utils.GetIntOrDefault(constants.ENV_WS_WRITE_BUFFER, 64*1024),
			SendQueue:       utils.GetIntOrDefault(constants.ENV_WS_SEND_QUEUE, constants.DefaultSendQueue),
			MaxMessageSize:  int64(utils.GetIntOrDefault(constants.ENV_WS_MAX_MESSAGE, constants.DefaultMaxMessageSize)),
			AllowedOrigin:   utils.GetStringOrDefault(constants.ENV_ALLOWED_ORIGIN, "*"),
		},
		Mesh: MeshConfig{
			NegotiationTimeout: utils.GetDurationOrDefault(constants.ENV_NEGOTIATION_TIMEOUT, constants.DefaultNegotiationTimeout),
			ClockSyncInterval:  utils.GetDurationOrDefault(constants.ENV_CLOCK_SYNC_INTERVAL, constants.DefaultClockSyncInterval),
			StunServers:        stunServers(),
		},
		History: HistoryConfig{
			RetentionDays: utils.GetIntOrDefault(constants.ENV_HISTORY_RETENTION_DAYS, constants.DefaultHistoryRetention),
			PruneSchedule: utils.GetStringOrDefault(constants.ENV_HISTORY_PRUNE_SCHEDULE, constants.DefaultPruneSchedule),
		},
		Log: logger.LogConfig{
			Level:      utils.GetStringOrDefault("LOG_LEVEL", "info"),
			Filename:   utils.GetStringOrDefault("LOG_FILENAME", "./logs/app.log"),
			MaxSize:    utils.GetIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     utils.GetIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: utils.GetIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      utils.GetBoolOrDefault("LOG_DAILY", true),
		},
		Mode:       mode,
		DBDriver:   utils.GetStringOrDefault(constants.ENV_DB_DRIVER, "sqlite"),
		DSN:        utils.GetStringOrDefault(constants.ENV_DSN, "./lingmeet.db"),
		Addr:       utils.GetStringOrDefault(constants.ENV_ADDR, constants.DefaultAddr),
		ServerName: utils.GetStringOrDefault(constants.ENV_SERVER_NAME, "LingMeet"),
	}
	return nil
}

func stunServers() []string {
	if urls := utils.SplitURLs(utils.GetEnv(constants.ENV_STUN_SERVERS)); len(urls) > 0 {
		return urls
	}
	return webrtcconst.DefaultStunServers
}
