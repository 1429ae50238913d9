package rtcmedia

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v3"

	"github.com/LingByte/LingMeet/pkg/webrtc/rtcmedia/config"
)

// NewSampleTrack 创建本地轨道，id 取媒体类型（audio / video）
func NewSampleTrack(mimeType string, opt *config.WebRTCOption) (*webrtc.TrackLocalStaticSample, error) {
	kind, _, ok := strings.Cut(strings.ToLower(mimeType), "/")
	if !ok || (kind != "audio" && kind != "video") {
		return nil, fmt.Errorf("unsupported mime type %q", mimeType)
	}
	return webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mimeType}, kind, opt.GetStreamID())
}
