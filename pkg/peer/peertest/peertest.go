// Package peertest provides in-memory stand-ins for the transport and
// signaling sides of a peer.Link.
package peertest

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/LingByte/LingMeet/pkg/peer"
	"github.com/LingByte/LingMeet/pkg/protocol"
)

// BadSDP is rejected by CreateAnswer and ApplyAnswer.
const BadSDP = "bad"

var ErrBadSDP = errors.New("malformed sdp")

// Transport records what a Link asks of it. SDPs are plain strings:
// offers are "offer:<remote>" and answers are "answer:<offer>".
type Transport struct {
	Remote string
	Role   peer.Role
	Events peer.Events

	// BlockOffer makes CreateOffer wait for its context.
	BlockOffer bool
	// DuringOffer runs inside CreateOffer, before it returns.
	DuringOffer func(ev peer.Events)

	mu         sync.Mutex
	offers     int
	answered   []string
	applied    []string
	candidates []protocol.Candidate
	tracks     []webrtc.TrackLocal
	closed     bool
}

func (t *Transport) CreateOffer(ctx context.Context) (string, error) {
	if t.BlockOffer {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if t.DuringOffer != nil {
		t.DuringOffer(t.Events)
	}
	t.mu.Lock()
	t.offers++
	t.mu.Unlock()
	return "offer:" + t.Remote, nil
}

func (t *Transport) CreateAnswer(_ context.Context, offer string) (string, error) {
	if offer == BadSDP {
		return "", ErrBadSDP
	}
	t.mu.Lock()
	t.answered = append(t.answered, offer)
	t.mu.Unlock()
	return "answer:" + offer, nil
}

func (t *Transport) ApplyAnswer(_ context.Context, answer string) error {
	if answer == BadSDP {
		return ErrBadSDP
	}
	t.mu.Lock()
	t.applied = append(t.applied, answer)
	t.mu.Unlock()
	return nil
}

func (t *Transport) AddICECandidate(c protocol.Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candidates = append(t.candidates, c)
	return nil
}

func (t *Transport) ReplaceTrack(track webrtc.TrackLocal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = append(t.tracks, track)
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *Transport) Offers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offers
}

func (t *Transport) Applied() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.applied...)
}

func (t *Transport) Candidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.candidates))
	for i, c := range t.candidates {
		out[i] = c.Candidate
	}
	return out
}

func (t *Transport) Tracks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracks)
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Factory hands out Transports and remembers every one it made.
type Factory struct {
	// Configure, when set, runs on each Transport before it is returned.
	Configure func(t *Transport)
	// Fail makes New return an error.
	Fail bool

	mu   sync.Mutex
	made map[string][]*Transport
}

func NewFactory() *Factory {
	return &Factory{made: make(map[string][]*Transport)}
}

func (f *Factory) New(remote string, role peer.Role, ev peer.Events) (peer.Transport, error) {
	if f.Fail {
		return nil, errors.New("no transport for you")
	}
	t := &Transport{Remote: remote, Role: role, Events: ev}
	if f.Configure != nil {
		f.Configure(t)
	}
	f.mu.Lock()
	f.made[remote] = append(f.made[remote], t)
	f.mu.Unlock()
	return t, nil
}

// Last returns the newest transport made for remote.
func (f *Factory) Last(remote string) *Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts := f.made[remote]
	if len(ts) == 0 {
		return nil
	}
	return ts[len(ts)-1]
}

// Made returns how many transports exist for remote.
func (f *Factory) Made(remote string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.made[remote])
}

// Signaler collects outbound envelopes in order.
type Signaler struct {
	// Err, when set, is returned by every Signal call.
	Err error

	mu   sync.Mutex
	sent []*protocol.Envelope
	ch   chan *protocol.Envelope
}

func NewSignaler() *Signaler {
	return &Signaler{ch: make(chan *protocol.Envelope, 1024)}
}

func (s *Signaler) Signal(_ context.Context, env *protocol.Envelope) error {
	s.mu.Lock()
	err := s.Err
	if err == nil {
		s.sent = append(s.sent, env)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.ch <- env
	return nil
}

func (s *Signaler) C() <-chan *protocol.Envelope { return s.ch }

func (s *Signaler) SetErr(err error) {
	s.mu.Lock()
	s.Err = err
	s.mu.Unlock()
}

// Kinds lists the signal kinds sent so far, e.g. "offer", "ice-candidate".
func (s *Signaler) Kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, env := range s.sent {
		out[i] = env.Kind
	}
	return out
}
