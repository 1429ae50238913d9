package rtcmedia

import (
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/peer"
	"github.com/LingByte/LingMeet/pkg/webrtc/rtcmedia/config"
)

// Factory builds PeerTransports sharing one pion API and one set of local
// tracks. Its New method is a peer.TransportFactory.
type Factory struct {
	api    *webrtc.API
	opt    *config.WebRTCOption
	tracks []webrtc.TrackLocal
	lg     *zap.Logger

	// OnTrack is called for each remote track.
	OnTrack func(remote string, track *webrtc.TrackRemote)
	// OnData is called for each mesh data channel message.
	OnData func(remote string, data []byte)

	mu     sync.Mutex
	latest map[string]*PeerTransport
}

func NewFactory(opt *config.WebRTCOption, tracks []webrtc.TrackLocal, lg *zap.Logger) (*Factory, error) {
	lg = logger.OrDefault(lg, "rtcmedia")
	api, err := NewAPI(opt, lg)
	if err != nil {
		return nil, err
	}
	return &Factory{api: api, opt: opt, tracks: tracks, lg: lg, latest: make(map[string]*PeerTransport)}, nil
}

func (f *Factory) New(remote string, role peer.Role, events peer.Events) (peer.Transport, error) {
	t, err := newPeerTransport(transportParams{
		api:     f.api,
		opt:     f.opt,
		remote:  remote,
		role:    role,
		events:  events,
		tracks:  f.tracks,
		onTrack: f.OnTrack,
		onData:  f.OnData,
		lg:      f.lg,
	})
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.latest[remote] = t
	f.mu.Unlock()
	return t, nil
}

// Transport returns the most recent transport made for remote.
func (f *Factory) Transport(remote string) (*PeerTransport, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.latest[remote]
	return t, ok
}

// Broadcast sends data on every open mesh data channel and returns how many
// remotes it reached.
func (f *Factory) Broadcast(data []byte) int {
	f.mu.Lock()
	ts := make([]*PeerTransport, 0, len(f.latest))
	for remote, t := range f.latest {
		if t.ConnectionState() == webrtc.PeerConnectionStateClosed {
			delete(f.latest, remote)
			continue
		}
		ts = append(ts, t)
	}
	f.mu.Unlock()

	sent := 0
	for _, t := range ts {
		if err := t.Send(data); err == nil {
			sent++
		}
	}
	return sent
}
