package protocol

import (
	"fmt"

	"github.com/LingByte/LingMeet/pkg/constants"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns envelopes into websocket frames and back.
type Codec interface {
	Name() string
	// FrameType is the websocket message type used for encoded envelopes.
	FrameType() int
	Encode(env *Envelope) ([]byte, error)
	Decode(data []byte, env *Envelope) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return constants.SubprotocolJSON }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(env *Envelope) ([]byte, error) {
	return sonic.Marshal(env)
}

func (jsonCodec) Decode(data []byte, env *Envelope) error {
	if err := sonic.Unmarshal(data, env); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return constants.SubprotocolMsgpack }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Encode(env *Envelope) ([]byte, error) {
	return msgpack.Marshal(env)
}

func (msgpackCodec) Decode(data []byte, env *Envelope) error {
	if err := msgpack.Unmarshal(data, env); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// Subprotocols lists the websocket subprotocols the relay accepts, preferred first.
func Subprotocols() []string {
	return []string{constants.SubprotocolJSON, constants.SubprotocolMsgpack}
}

// CodecFor maps a negotiated subprotocol to its codec. Anything unknown,
// including no subprotocol, is JSON.
func CodecFor(subprotocol string) Codec {
	if subprotocol == constants.SubprotocolMsgpack {
		return Msgpack
	}
	return JSON
}
