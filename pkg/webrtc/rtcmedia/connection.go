// Package rtcmedia implements peer.Transport on pion/webrtc.
package rtcmedia

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/LingByte/LingMeet/pkg/peer"
	"github.com/LingByte/LingMeet/pkg/protocol"
	"github.com/LingByte/LingMeet/pkg/webrtc/constants"
	"github.com/LingByte/LingMeet/pkg/webrtc/rtcmedia/config"
)

var (
	ErrNoSender          = errors.New("no sender for track kind")
	ErrDataChannelClosed = errors.New("data channel not open")
)

// PeerTransport one RTCPeerConnection towards one remote participant
type PeerTransport struct {
	remote string
	role   peer.Role
	pc     *webrtc.PeerConnection
	events peer.Events
	onData func(remote string, data []byte)
	lg     *zap.Logger

	mu      sync.Mutex
	senders map[webrtc.RTPCodecType]*webrtc.RTPSender
	dc      *webrtc.DataChannel
}

type transportParams struct {
	api     *webrtc.API
	opt     *config.WebRTCOption
	remote  string
	role    peer.Role
	events  peer.Events
	tracks  []webrtc.TrackLocal
	onTrack func(remote string, track *webrtc.TrackRemote)
	onData  func(remote string, data []byte)
	lg      *zap.Logger
}

func newPeerTransport(p transportParams) (*PeerTransport, error) {
	pc, err := p.api.NewPeerConnection(webrtc.Configuration{ICEServers: p.opt.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	t := &PeerTransport{
		remote:  p.remote,
		role:    p.role,
		pc:      pc,
		events:  p.events,
		onData:  p.onData,
		lg:      p.lg.With(zap.String("remote_id", p.remote)),
		senders: make(map[webrtc.RTPCodecType]*webrtc.RTPSender),
	}

	for _, track := range p.tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		t.senders[track.Kind()] = sender
		go drainRTCP(sender)
	}

	if p.opt.DataChannel && p.role == peer.RoleInitiator {
		dc, err := pc.CreateDataChannel(constants.DataChannelLabel, nil)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		t.attachDataChannel(dc)
	}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() == constants.DataChannelLabel {
			t.attachDataChannel(dc)
		}
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if c == nil {
			return
		}
		t.events.LocalCandidate(fromICEInit(c.ToJSON()))
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.lg.Debug("connection state changed", zap.String("state", s.String()))
		t.events.HealthChanged(healthOf(s))
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t.lg.Info("remote track", zap.String("kind", track.Kind().String()), zap.String("codec", track.Codec().MimeType))
		if p.onTrack != nil {
			p.onTrack(p.remote, track)
		}
	})
	return t, nil
}

// drainRTCP 持续读取 RTCP，避免接收缓冲区堆积
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (t *PeerTransport) attachDataChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.dc = dc
	t.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if t.onData != nil {
			t.onData(t.remote, msg.Data)
		}
	})
}

func (t *PeerTransport) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, ctx.Err()
}

func (t *PeerTransport) CreateAnswer(ctx context.Context, offer string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, ctx.Err()
}

func (t *PeerTransport) ApplyAnswer(ctx context.Context, answer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

func (t *PeerTransport) AddICECandidate(c protocol.Candidate) error {
	return t.pc.AddICECandidate(toICEInit(c))
}

// ReplaceTrack swaps the sender of the same kind in place; no renegotiation.
func (t *PeerTransport) ReplaceTrack(track webrtc.TrackLocal) error {
	t.mu.Lock()
	sender := t.senders[track.Kind()]
	t.mu.Unlock()
	if sender == nil {
		return fmt.Errorf("%w: %s", ErrNoSender, track.Kind())
	}
	return sender.ReplaceTrack(track)
}

// Send writes to the mesh data channel.
func (t *PeerTransport) Send(data []byte) error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrDataChannelClosed
	}
	return dc.Send(data)
}

func (t *PeerTransport) ConnectionState() webrtc.PeerConnectionState {
	return t.pc.ConnectionState()
}

func (t *PeerTransport) Close() error {
	return t.pc.Close()
}

func healthOf(s webrtc.PeerConnectionState) peer.Health {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return peer.HealthChecking
	case webrtc.PeerConnectionStateConnected:
		return peer.HealthConnected
	case webrtc.PeerConnectionStateDisconnected:
		return peer.HealthDisconnected
	case webrtc.PeerConnectionStateFailed:
		return peer.HealthFailed
	case webrtc.PeerConnectionStateClosed:
		return peer.HealthClosed
	default:
		return peer.HealthNew
	}
}

func toICEInit(c protocol.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromICEInit(c webrtc.ICECandidateInit) protocol.Candidate {
	return protocol.Candidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
