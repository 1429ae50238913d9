package peer

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v3"

	"github.com/LingByte/LingMeet/pkg/protocol"
)

var (
	ErrClosed             = errors.New("link closed")
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	ErrTransportFailed    = errors.New("transport failed")
	ErrSignalFailed       = errors.New("signaling send failed")
	ErrNotConnected       = errors.New("link not connected")
)

// State is the negotiation state of a Link.
type State int32

const (
	StateIdle State = iota
	StateOffering
	StateAwaitingAnswer
	StateAnswering
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Role is fixed when the link is created.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// Health is the transport's own view of connectivity.
type Health int

const (
	HealthNew Health = iota
	HealthChecking
	HealthConnected
	HealthDisconnected
	HealthFailed
	HealthClosed
)

func (h Health) String() string {
	switch h {
	case HealthNew:
		return "new"
	case HealthChecking:
		return "checking"
	case HealthConnected:
		return "connected"
	case HealthDisconnected:
		return "disconnected"
	case HealthFailed:
		return "failed"
	case HealthClosed:
		return "closed"
	}
	return "unknown"
}

// Transport is the media-capable connection a Link negotiates. CreateOffer
// and CreateAnswer also install the local description; CreateAnswer
// installs the remote offer first.
type Transport interface {
	CreateOffer(ctx context.Context) (string, error)
	CreateAnswer(ctx context.Context, offer string) (string, error)
	ApplyAnswer(ctx context.Context, answer string) error
	AddICECandidate(c protocol.Candidate) error
	ReplaceTrack(track webrtc.TrackLocal) error
	Close() error
}

// Events is how a Transport reports back. Implementations must not block.
type Events interface {
	LocalCandidate(c protocol.Candidate)
	HealthChanged(h Health)
}

// TransportFactory builds the transport for one remote participant.
type TransportFactory func(remote string, role Role, events Events) (Transport, error)

// Signaler delivers negotiation messages to the relay.
type Signaler interface {
	Signal(ctx context.Context, env *protocol.Envelope) error
}
