package rtcmedia

import (
	"fmt"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/webrtc/rtcmedia/config"
)

// NewAPI 创建 pion API：默认编解码器，日志走 zap
func NewAPI(opt *config.WebRTCOption, lg *zap.Logger) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	s := webrtc.SettingEngine{LoggerFactory: logger.NewPionFactory(lg)}
	disconnected := opt.GetICETimeout()
	s.SetICETimeouts(disconnected, 3*disconnected, disconnected/5)

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(s)), nil
}
