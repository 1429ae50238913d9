package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/LingByte/LingMeet/pkg/config"
	"github.com/LingByte/LingMeet/pkg/logger"
)

const defaultBanner = `
 _     _              __  __           _
| |   (_)_ __   __ _ |  \/  | ___  ___| |_
| |   | | '_ \ / _' || |\/| |/ _ \/ _ \ __|
| |___| | | | | (_| || |  | |  __/  __/ |_
|_____|_|_| |_|\__, ||_|  |_|\___|\___|\__|
               |___/
`

// LogConfigInfo Print global configuration information
func LogConfigInfo() {
	cfg := config.GlobalConfig
	logger.Info("system config load finished")

	logger.Info("base config",
		zap.String("server_name", cfg.ServerName),
		zap.String("mode", cfg.Mode),
		zap.String("addr", cfg.Addr),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("dsn", cfg.DSN),
	)

	logger.Info("relay config",
		zap.Int("send_queue", cfg.Relay.SendQueue),
		zap.Int64("max_message_size", cfg.Relay.MaxMessageSize),
		zap.String("allowed_origin", cfg.Relay.AllowedOrigin),
	)

	logger.Info("history config",
		zap.Int("retention_days", cfg.History.RetentionDays),
		zap.String("prune_schedule", cfg.History.PruneSchedule),
	)

	logger.Info("log config",
		zap.String("log_level", cfg.Log.Level),
		zap.String("log_filename", cfg.Log.Filename),
		zap.Int("log_max_size", cfg.Log.MaxSize),
		zap.Int("log_max_age", cfg.Log.MaxAge),
		zap.Int("log_max_backups", cfg.Log.MaxBackups),
	)
}

// EnsureBannerFile writes a banner with the server name when filename is missing
func EnsureBannerFile(filename string, serverName string) error {
	if _, err := os.Stat(filename); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	text := defaultBanner
	if serverName != "" {
		text += "  " + serverName + "\n"
	}
	return os.WriteFile(filename, []byte(text), 0o644)
}

// PrintBannerFromFile Read file and print, auto-generate if file doesn't exist
func PrintBannerFromFile(filename string, defaultText string) error {
	if err := EnsureBannerFile(filename, defaultText); err != nil {
		return fmt.Errorf("failed to ensure banner file: %w", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")

	colors := []string{
		"\x1b[38;5;165m",
		"\x1b[38;5;189m",
		"\x1b[38;5;207m",
		"\x1b[38;5;219m",
		"\x1b[38;5;225m",
		"\x1b[38;5;231m",
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		color := colors[i%len(colors)]
		fmt.Println(color + line + "\x1b[0m")
	}
	return nil
}
