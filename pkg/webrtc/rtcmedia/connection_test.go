package rtcmedia

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LingByte/LingMeet/pkg/peer"
	"github.com/LingByte/LingMeet/pkg/protocol"
	"github.com/LingByte/LingMeet/pkg/webrtc/rtcmedia/config"
)

// chanEvents forwards transport callbacks to channels.
type chanEvents struct {
	candidates chan protocol.Candidate
	health     chan peer.Health
}

func newChanEvents() *chanEvents {
	return &chanEvents{
		candidates: make(chan protocol.Candidate, 64),
		health:     make(chan peer.Health, 64),
	}
}

func (e *chanEvents) LocalCandidate(c protocol.Candidate) { e.candidates <- c }
func (e *chanEvents) HealthChanged(h peer.Health)         { e.health <- h }

func waitHealth(t *testing.T, ch <-chan peer.Health, want peer.Health) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case h := <-ch:
			if h == want {
				return
			}
		case <-deadline:
			t.Fatalf("transport never reached %s", want)
		}
	}
}

func TestLoopbackNegotiation(t *testing.T) {
	opt := &config.WebRTCOption{DataChannel: true}
	audio, err := NewSampleTrack(webrtc.MimeTypeOpus, opt)
	require.NoError(t, err)

	fa, err := NewFactory(opt, []webrtc.TrackLocal{audio}, zap.NewNop())
	require.NoError(t, err)
	fb, err := NewFactory(opt, []webrtc.TrackLocal{audio}, zap.NewNop())
	require.NoError(t, err)

	received := make(chan []byte, 1)
	fb.OnData = func(remote string, data []byte) {
		assert.Equal(t, "a", remote)
		received <- data
	}

	ea, eb := newChanEvents(), newChanEvents()
	ta, err := fa.New("b", peer.RoleInitiator, ea)
	require.NoError(t, err)
	defer ta.Close()
	tb, err := fb.New("a", peer.RoleResponder, eb)
	require.NoError(t, err)
	defer tb.Close()

	ctx := context.Background()
	offer, err := ta.CreateOffer(ctx)
	require.NoError(t, err)
	assert.Contains(t, offer, "m=audio")
	assert.Contains(t, offer, "m=application")

	answer, err := tb.CreateAnswer(ctx, offer)
	require.NoError(t, err)
	require.NoError(t, ta.ApplyAnswer(ctx, answer))

	stop := make(chan struct{})
	defer close(stop)
	forward := func(from *chanEvents, to peer.Transport) {
		for {
			select {
			case c := <-from.candidates:
				_ = to.AddICECandidate(c)
			case <-stop:
				return
			}
		}
	}
	go forward(ea, tb)
	go forward(eb, ta)

	waitHealth(t, ea.health, peer.HealthConnected)
	waitHealth(t, eb.health, peer.HealthConnected)

	require.Eventually(t, func() bool { return fa.Broadcast([]byte("hi")) == 1 }, 5*time.Second, 20*time.Millisecond)
	select {
	case data := <-received:
		assert.Equal(t, []byte("hi"), data)
	case <-time.After(5 * time.Second):
		t.Fatal("data channel message not received")
	}

	screen, err := NewSampleTrack(webrtc.MimeTypeOpus, opt)
	require.NoError(t, err)
	assert.NoError(t, ta.ReplaceTrack(screen))

	video, err := NewSampleTrack(webrtc.MimeTypeVP8, opt)
	require.NoError(t, err)
	assert.ErrorIs(t, ta.ReplaceTrack(video), ErrNoSender)
}

func TestCancelledContext(t *testing.T) {
	f, err := NewFactory(&config.WebRTCOption{DataChannel: true}, nil, zap.NewNop())
	require.NoError(t, err)
	tr, err := f.New("b", peer.RoleInitiator, newChanEvents())
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.CreateOffer(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMalformedAnswerRejected(t *testing.T) {
	f, err := NewFactory(&config.WebRTCOption{DataChannel: true}, nil, zap.NewNop())
	require.NoError(t, err)
	tr, err := f.New("b", peer.RoleResponder, newChanEvents())
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.CreateAnswer(context.Background(), "not an sdp")
	assert.Error(t, err)
}

func TestNewSampleTrack(t *testing.T) {
	opt := &config.WebRTCOption{StreamID: "s1"}
	track, err := NewSampleTrack(webrtc.MimeTypeVP8, opt)
	require.NoError(t, err)
	assert.Equal(t, "video", track.ID())
	assert.Equal(t, "s1", track.StreamID())
	assert.Equal(t, webrtc.RTPCodecTypeVideo, track.Kind())

	_, err = NewSampleTrack("text/plain", opt)
	assert.Error(t, err)
}

func TestHealthOf(t *testing.T) {
	assert.Equal(t, peer.HealthNew, healthOf(webrtc.PeerConnectionStateNew))
	assert.Equal(t, peer.HealthChecking, healthOf(webrtc.PeerConnectionStateConnecting))
	assert.Equal(t, peer.HealthConnected, healthOf(webrtc.PeerConnectionStateConnected))
	assert.Equal(t, peer.HealthDisconnected, healthOf(webrtc.PeerConnectionStateDisconnected))
	assert.Equal(t, peer.HealthFailed, healthOf(webrtc.PeerConnectionStateFailed))
	assert.Equal(t, peer.HealthClosed, healthOf(webrtc.PeerConnectionStateClosed))
}
