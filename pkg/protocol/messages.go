package protocol

import (
	"errors"
	"fmt"

	"github.com/LingByte/LingMeet/pkg/constants"
	apperrors "github.com/LingByte/LingMeet/pkg/errors"
)

var ErrInvalidMessage = errors.New("invalid message")

// Candidate mirrors an RTCIceCandidateInit.
type Candidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

// BoardEvent is a whiteboard event. Payload is opaque to the relay.
type BoardEvent struct {
	Type    string      `json:"type" msgpack:"type"`
	Payload interface{} `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// ErrorBody is carried by "error" messages.
type ErrorBody struct {
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// Envelope is every message exchanged between a participant and the relay.
// Type selects which of the remaining fields are meaningful.
type Envelope struct {
	Type string `json:"type" msgpack:"type"`

	// join / joined / peer-joined
	RoomID      string            `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	DisplayName string            `json:"displayName,omitempty" msgpack:"displayName,omitempty"`
	SelfID      string            `json:"selfId,omitempty" msgpack:"selfId,omitempty"`
	Peers       []string          `json:"peers,omitempty" msgpack:"peers,omitempty"`
	Names       map[string]string `json:"names,omitempty" msgpack:"names,omitempty"`

	// signal
	Kind      string     `json:"kind,omitempty" msgpack:"kind,omitempty"`
	From      string     `json:"from,omitempty" msgpack:"from,omitempty"`
	To        string     `json:"to,omitempty" msgpack:"to,omitempty"`
	SDP       string     `json:"sdp,omitempty" msgpack:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty" msgpack:"candidate,omitempty"`

	// left
	PeerID string `json:"peerId,omitempty" msgpack:"peerId,omitempty"`

	// chat
	ID   string `json:"id,omitempty" msgpack:"id,omitempty"`
	Name string `json:"name,omitempty" msgpack:"name,omitempty"`
	Text string `json:"text,omitempty" msgpack:"text,omitempty"`
	At   int64  `json:"at,omitempty" msgpack:"at,omitempty"`

	// whiteboard
	Board *BoardEvent `json:"board,omitempty" msgpack:"board,omitempty"`

	// ping-time / pong-time
	T0         int64 `json:"t0,omitempty" msgpack:"t0,omitempty"`
	ServerTime int64 `json:"serverTime,omitempty" msgpack:"serverTime,omitempty"`

	Error *ErrorBody `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Clone returns a shallow copy safe to re-address.
func (e *Envelope) Clone() *Envelope {
	c := *e
	return &c
}

// IsSignalKind reports whether kind names a directed negotiation message.
func IsSignalKind(kind string) bool {
	switch kind {
	case constants.SignalOffer, constants.SignalAnswer, constants.SignalICECandidate:
		return true
	}
	return false
}

// IsBoardType reports whether t is a known whiteboard event type.
func IsBoardType(t string) bool {
	switch t {
	case constants.BoardStroke, constants.BoardUndo, constants.BoardRedo, constants.BoardClear:
		return true
	}
	return false
}

// Validate checks the fields a participant must supply for inbound types.
func (e *Envelope) Validate() error {
	switch e.Type {
	case constants.MessageJoin:
		if e.RoomID == "" {
			return fmt.Errorf("%w: join without roomId", ErrInvalidMessage)
		}
	case constants.MessageSignal:
		if !IsSignalKind(e.Kind) {
			return fmt.Errorf("%w: unknown signal kind %q", ErrInvalidMessage, e.Kind)
		}
		if e.To == "" {
			return fmt.Errorf("%w: signal without target", ErrInvalidMessage)
		}
		if e.Kind == constants.SignalICECandidate && e.Candidate == nil {
			return fmt.Errorf("%w: ice-candidate without candidate", ErrInvalidMessage)
		}
		if e.Kind != constants.SignalICECandidate && e.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", ErrInvalidMessage, e.Kind)
		}
	case constants.MessageChat:
		if e.Text == "" {
			return fmt.Errorf("%w: empty chat", ErrInvalidMessage)
		}
	case constants.MessageWhiteboard:
		if e.Board == nil || !IsBoardType(e.Board.Type) {
			return fmt.Errorf("%w: bad whiteboard event", ErrInvalidMessage)
		}
	case constants.MessageLeave, constants.MessagePingTime:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, e.Type)
	}
	return nil
}

func NewJoin(roomID, displayName string) *Envelope {
	return &Envelope{Type: constants.MessageJoin, RoomID: roomID, DisplayName: displayName}
}

func NewJoined(roomID, selfID string, peers []string, names map[string]string) *Envelope {
	return &Envelope{Type: constants.MessageJoined, RoomID: roomID, SelfID: selfID, Peers: peers, Names: names}
}

func NewPeerJoined(from, displayName string) *Envelope {
	return &Envelope{Type: constants.MessagePeerJoined, From: from, DisplayName: displayName}
}

func NewLeave() *Envelope {
	return &Envelope{Type: constants.MessageLeave}
}

func NewLeft(peerID string) *Envelope {
	return &Envelope{Type: constants.MessageLeft, PeerID: peerID}
}

func NewOffer(to, sdp string) *Envelope {
	return &Envelope{Type: constants.MessageSignal, Kind: constants.SignalOffer, To: to, SDP: sdp}
}

func NewAnswer(to, sdp string) *Envelope {
	return &Envelope{Type: constants.MessageSignal, Kind: constants.SignalAnswer, To: to, SDP: sdp}
}

func NewICECandidate(to string, c Candidate) *Envelope {
	return &Envelope{Type: constants.MessageSignal, Kind: constants.SignalICECandidate, To: to, Candidate: &c}
}

func NewChat(text string, at int64) *Envelope {
	return &Envelope{Type: constants.MessageChat, Text: text, At: at}
}

func NewWhiteboard(boardType string, payload interface{}) *Envelope {
	return &Envelope{Type: constants.MessageWhiteboard, Board: &BoardEvent{Type: boardType, Payload: payload}}
}

func NewPingTime(t0 int64) *Envelope {
	return &Envelope{Type: constants.MessagePingTime, T0: t0}
}

func NewPongTime(serverTime, t0 int64) *Envelope {
	return &Envelope{Type: constants.MessagePongTime, ServerTime: serverTime, T0: t0}
}

// NewError converts err into an "error" message. AppErrors keep their code.
func NewError(err error) *Envelope {
	body := &ErrorBody{Code: string(apperrors.ErrCodeInternal), Message: err.Error()}
	if appErr, ok := apperrors.AsAppError(err); ok {
		body.Code = string(appErr.Code)
		body.Message = appErr.Message
	}
	return &Envelope{Type: constants.MessageError, Error: body}
}
