// Package client is the participant side of the signaling protocol: one
// websocket to the relay feeding a mesh coordinator and a clock sampler.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LingByte/LingMeet/pkg/clocksync"
	"github.com/LingByte/LingMeet/pkg/constants"
	apperrors "github.com/LingByte/LingMeet/pkg/errors"
	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/mesh"
	"github.com/LingByte/LingMeet/pkg/peer"
	"github.com/LingByte/LingMeet/pkg/protocol"
	"github.com/LingByte/LingMeet/pkg/room"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	ErrClosed     = errors.New("signaling connection closed")
	ErrNotJoined  = errors.New("not in a room")
	ErrQueueFull  = errors.New("signaling send queue full")
	ErrJoinFailed = errors.New("join refused")
)

type Options struct {
	URL         string
	Subprotocol string // wire codec, empty means JSON
	SendQueue   int

	NewTransport       peer.TransportFactory
	NegotiationTimeout time.Duration
	MeshObserver       mesh.Observer

	ClockSyncInterval time.Duration
	ClockSmoothing    float64

	OnChat       func(env *protocol.Envelope)
	OnWhiteboard func(env *protocol.Envelope)
	OnError      func(body *protocol.ErrorBody)
	OnOffset     func(offset float64, rtt int64)

	Logger *zap.Logger
}

type Client struct {
	opts  Options
	ws    *websocket.Conn
	codec protocol.Codec
	send  chan *protocol.Envelope
	done  chan struct{}
	once  sync.Once
	lg    *zap.Logger

	coord   *mesh.Coordinator
	sampler *clocksync.Sampler

	mu         sync.Mutex
	roomKey    string
	joinWait   chan *protocol.Envelope
	stopSample context.CancelFunc
}

// Dial connects to the relay and starts the connection's pumps.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.SendQueue <= 0 {
		opts.SendQueue = constants.DefaultSendQueue
	}
	d := websocket.Dialer{HandshakeTimeout: writeWait}
	if opts.Subprotocol != "" {
		d.Subprotocols = []string{opts.Subprotocol}
	}
	ws, _, err := d.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeConnectionFailed, err)
	}

	c := &Client{
		opts:  opts,
		ws:    ws,
		codec: protocol.CodecFor(ws.Subprotocol()),
		send:  make(chan *protocol.Envelope, opts.SendQueue),
		done:  make(chan struct{}),
		lg:    logger.OrDefault(opts.Logger, "client"),
	}
	c.coord = mesh.NewCoordinator(mesh.Config{
		Signaler:           c,
		NewTransport:       opts.NewTransport,
		NegotiationTimeout: opts.NegotiationTimeout,
		Observer:           opts.MeshObserver,
		Logger:             c.lg,
	})
	c.sampler = clocksync.NewSampler(c,
		clocksync.WithInterval(opts.ClockSyncInterval),
		clocksync.WithSmoothing(opts.ClockSmoothing),
		clocksync.WithListener(opts.OnOffset),
		clocksync.WithLogger(c.lg),
	)

	go c.writePump()
	go c.readPump()
	return c, nil
}

func (c *Client) Mesh() *mesh.Coordinator { return c.coord }

// Offset returns the latest clock offset estimate against the relay.
func (c *Client) Offset() (float64, bool) { return c.sampler.Offset() }

// Done is closed when the connection to the relay is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) enqueue(env *protocol.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- env:
		return nil
	default:
		return ErrQueueFull
	}
}

// Signal implements peer.Signaler.
func (c *Client) Signal(_ context.Context, env *protocol.Envelope) error {
	return c.enqueue(env)
}

// Ping implements clocksync.Pinger.
func (c *Client) Ping(t0 int64) error {
	return c.enqueue(protocol.NewPingTime(t0))
}

// Join enters the room, opens links to everybody already there and starts
// clock sampling. It returns our identity and the members found.
func (c *Client) Join(ctx context.Context, roomKey, displayName string) (string, []string, error) {
	if roomKey == "" {
		return "", nil, room.ErrMissingRoomKey
	}
	wait := make(chan *protocol.Envelope, 1)
	c.mu.Lock()
	c.joinWait = wait
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.joinWait = nil
		c.mu.Unlock()
	}()

	if err := c.enqueue(protocol.NewJoin(roomKey, displayName)); err != nil {
		return "", nil, err
	}

	var reply *protocol.Envelope
	select {
	case reply = <-wait:
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case <-c.done:
		return "", nil, ErrClosed
	}
	if reply.Type == constants.MessageError {
		return "", nil, fmt.Errorf("%w: %s: %s", ErrJoinFailed, reply.Error.Code, reply.Error.Message)
	}

	c.mu.Lock()
	c.roomKey = roomKey
	c.mu.Unlock()
	c.lg.Info("joined room", zap.String("room_id", roomKey), zap.String("peer_id", reply.SelfID), zap.Int("peers", len(reply.Peers)))

	err := c.coord.HandleJoined(reply.SelfID, reply.Peers, reply.Names)
	c.startSampler()
	return reply.SelfID, reply.Peers, err
}

func (c *Client) startSampler() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.stopSample != nil {
		c.stopSample()
	}
	c.stopSample = cancel
	c.mu.Unlock()
	go c.sampler.Run(ctx)
}

func (c *Client) stopSampler() {
	c.mu.Lock()
	if c.stopSample != nil {
		c.stopSample()
		c.stopSample = nil
	}
	c.mu.Unlock()
}

func (c *Client) inRoom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomKey != ""
}

func (c *Client) SendChat(text string) error {
	if !c.inRoom() {
		return ErrNotJoined
	}
	return c.enqueue(protocol.NewChat(text, time.Now().UnixMilli()))
}

func (c *Client) SendWhiteboard(boardType string, payload interface{}) error {
	if !c.inRoom() {
		return ErrNotJoined
	}
	if !protocol.IsBoardType(boardType) {
		return fmt.Errorf("%w: whiteboard type %q", protocol.ErrInvalidMessage, boardType)
	}
	return c.enqueue(protocol.NewWhiteboard(boardType, payload))
}

// Leave exits the room and closes every link; the connection stays open.
func (c *Client) Leave() error {
	c.mu.Lock()
	joined := c.roomKey != ""
	c.roomKey = ""
	c.mu.Unlock()
	if !joined {
		return ErrNotJoined
	}
	c.stopSampler()
	c.coord.Leave()
	return c.enqueue(protocol.NewLeave())
}

// Close leaves the room and shuts the connection down.
func (c *Client) Close() error {
	c.stopSampler()
	c.coord.Leave()
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Client) shutdown() {
	c.once.Do(func() { close(c.done) })
	c.stopSampler()
	c.coord.Leave()
	c.mu.Lock()
	c.roomKey = ""
	c.mu.Unlock()
}

func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(constants.DefaultMaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	// the relay pings us too; answering extends our own deadline
	c.ws.SetPingHandler(func(data string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.lg.Debug("read error", zap.Error(err))
			}
			return
		}
		var env protocol.Envelope
		if err := c.codec.Decode(data, &env); err != nil {
			c.lg.Debug("undecodable message", zap.Error(err))
			continue
		}
		c.dispatch(&env)
	}
}

func (c *Client) dispatch(env *protocol.Envelope) {
	switch env.Type {
	case constants.MessageJoined:
		c.replyToJoin(env)
	case constants.MessageError:
		if env.Error == nil {
			env.Error = &protocol.ErrorBody{Code: string(apperrors.ErrCodeInternal)}
		}
		c.replyToJoin(env)
		c.lg.Warn("relay error", zap.String("code", env.Error.Code), zap.String("message", env.Error.Message))
		if c.opts.OnError != nil {
			c.opts.OnError(env.Error)
		}
	case constants.MessagePeerJoined:
		c.coord.HandlePeerJoined(env.From, env.DisplayName)
	case constants.MessageLeft:
		c.coord.HandlePeerLeft(env.PeerID)
	case constants.MessageSignal:
		if err := c.coord.HandleSignal(env); err != nil {
			c.lg.Debug("signal ignored", zap.String("remote_id", env.From), zap.Error(err))
		}
	case constants.MessageChat:
		if c.opts.OnChat != nil {
			c.opts.OnChat(env)
		}
	case constants.MessageWhiteboard:
		if c.opts.OnWhiteboard != nil {
			c.opts.OnWhiteboard(env)
		}
	case constants.MessagePongTime:
		c.sampler.HandlePong(env.ServerTime, env.T0)
	default:
		c.lg.Debug("unknown message", zap.String("type", env.Type))
	}
}

func (c *Client) replyToJoin(env *protocol.Envelope) {
	c.mu.Lock()
	wait := c.joinWait
	c.mu.Unlock()
	if wait == nil {
		return
	}
	select {
	case wait <- env:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case env := <-c.send:
			data, err := c.codec.Encode(env)
			if err != nil {
				c.lg.Error("encode failed", zap.String("type", env.Type), zap.Error(err))
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
