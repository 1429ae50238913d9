package config

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/LingByte/LingMeet/pkg/webrtc/constants"
)

// WebRTCOption WebRTC Config options
type WebRTCOption struct {
	ICEServers  []webrtc.ICEServer `json:"iceServers"`  // ICE servers
	StreamID    string             `json:"streamId"`    // stream ID of local tracks
	ICETimeout  time.Duration      `json:"iceTimeout"`  // ICE disconnected timeout
	DataChannel bool               `json:"dataChannel"` // initiator opens the mesh data channel
}

// DefaultWebRTCOption builds options from STUN urls, falling back to the
// public defaults when urls is empty.
func DefaultWebRTCOption(urls []string) *WebRTCOption {
	if len(urls) == 0 {
		urls = constants.DefaultStunServers
	}
	return &WebRTCOption{
		ICEServers:  []webrtc.ICEServer{{URLs: urls}},
		StreamID:    constants.DefaultStreamID,
		ICETimeout:  constants.DefaultICETimeout,
		DataChannel: true,
	}
}

// GetStreamID get stream ID
func (wts *WebRTCOption) GetStreamID() string {
	if wts.StreamID == "" {
		return constants.DefaultStreamID
	}
	return wts.StreamID
}

// GetICETimeout get ICE timeout
func (wts *WebRTCOption) GetICETimeout() time.Duration {
	if wts.ICETimeout == 0 {
		return constants.DefaultICETimeout
	}
	return wts.ICETimeout
}

// String config to string
func (wts WebRTCOption) String() string {
	return fmt.Sprintf("WebRTCOption{ICEServers: %d, StreamID: %s, ICETimeout: %v, DataChannel: %v}",
		len(wts.ICEServers), wts.StreamID, wts.ICETimeout, wts.DataChannel)
}
