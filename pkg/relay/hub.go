// Package relay carries signaling between participants. It never inspects
// media; it only routes envelopes between connections in the same room.
package relay

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LingByte/LingMeet/pkg/clocksync"
	"github.com/LingByte/LingMeet/pkg/config"
	"github.com/LingByte/LingMeet/pkg/constants"
	apperrors "github.com/LingByte/LingMeet/pkg/errors"
	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/protocol"
	"github.com/LingByte/LingMeet/pkg/room"
	"github.com/LingByte/LingMeet/pkg/utils"
)

var (
	ErrNotConnected = errors.New("peer not connected")
	ErrNotInRoom    = errors.New("connection has not joined a room")
)

// Hub owns every open connection and the room registry they share.
type Hub struct {
	cfg      config.RelayConfig
	registry *room.Registry
	metrics  *Metrics
	upgrader websocket.Upgrader
	lg       *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	conns  map[string]*Conn
	closed bool
}

type HubOption func(*Hub)

func WithMetrics(m *Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

func WithLogger(lg *zap.Logger) HubOption {
	return func(h *Hub) { h.lg = lg }
}

func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

func NewHub(cfg config.RelayConfig, registry *room.Registry, opts ...HubOption) *Hub {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = constants.DefaultSendQueue
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = constants.DefaultMaxMessageSize
	}
	h := &Hub{
		cfg:      cfg,
		registry: registry,
		conns:    make(map[string]*Conn),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics(nil)
	}
	h.lg = logger.OrDefault(h.lg, "relay")
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		Subprotocols:    protocol.Subprotocols(),
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.cfg.AllowedOrigin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == h.cfg.AllowedOrigin
}

func (h *Hub) Registry() *room.Registry { return h.registry }

// ServeHTTP upgrades the request and starts the connection's pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Debug("upgrade failed", zap.Error(err))
		return
	}
	c := h.register(ws)
	if c == nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		ws.Close()
		return
	}
	go c.WritePump()
	go c.ReadPump()
}

func (h *Hub) register(ws *websocket.Conn) *Conn {
	id := utils.NewIdentity()
	c := &Conn{
		id:    id,
		hub:   h,
		ws:    ws,
		codec: protocol.CodecFor(ws.Subprotocol()),
		send:  make(chan *protocol.Envelope, h.cfg.SendQueue),
		done:  make(chan struct{}),
		lg:    h.lg.With(zap.String("peer_id", id)),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.conns[id] = c
	n := len(h.conns)
	h.mu.Unlock()

	h.metrics.Connections.Inc()
	c.lg.Info("connection opened", zap.String("codec", c.codec.Name()), zap.Int("connections", n))
	return c
}

func (h *Hub) disconnect(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c.id]
	delete(h.conns, c.id)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.metrics.Connections.Dec()
	h.leaveRoom(c)
	c.lg.Info("connection closed")
}

// Close stops accepting connections and closes every open one. Their read
// pumps then run the usual disconnect path, so rooms empty out and peers
// still connected hear left.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.lg.Info("closing connections", zap.Int("connections", len(conns)))
	for _, c := range conns {
		c.Close()
	}
}

func (h *Hub) lookup(id string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// SendDirected queues env for the connection identified by to. It fails
// immediately when that connection is not open.
func (h *Hub) SendDirected(to string, env *protocol.Envelope) error {
	c, ok := h.lookup(to)
	if !ok {
		return ErrNotConnected
	}
	return c.enqueue(env)
}

// Broadcast queues env for every member of the room except the one named by
// except. Pass an empty except to reach everyone.
func (h *Hub) Broadcast(roomKey, except string, env *protocol.Envelope) {
	for _, id := range h.registry.Members(roomKey) {
		if id == except {
			continue
		}
		if err := h.SendDirected(id, env); err != nil {
			h.metrics.Dropped.WithLabelValues(DropNotConnected).Inc()
		}
	}
}

func (h *Hub) handle(c *Conn, env *protocol.Envelope) {
	if env.Type == constants.MessageJoin && env.RoomID == "" {
		h.reject(c, room.ErrMissingRoomKey)
		return
	}
	if err := env.Validate(); err != nil {
		h.reject(c, err)
		return
	}
	h.metrics.Messages.WithLabelValues(env.Type).Inc()
	// from is never trusted from the wire
	env.From = c.id

	switch env.Type {
	case constants.MessageJoin:
		h.handleJoin(c, env)
	case constants.MessageLeave:
		h.leaveRoom(c)
	case constants.MessageSignal:
		h.handleSignal(c, env)
	case constants.MessageChat:
		h.handleChat(c, env)
	case constants.MessageWhiteboard:
		h.handleWhiteboard(c, env)
	case constants.MessagePingTime:
		c.enqueue(clocksync.Pong(env.T0, h.now()))
	}
}

func (h *Hub) handleJoin(c *Conn, env *protocol.Envelope) {
	if c.room == env.RoomID {
		existing, _ := h.registry.Join(c.room, c.id, c.name)
		c.enqueue(protocol.NewJoined(c.room, c.id, existing, h.namesOf(c.room, existing)))
		return
	}
	existing, err := h.registry.Join(env.RoomID, c.id, env.DisplayName)
	if err != nil {
		h.reject(c, err)
		return
	}
	c.room, c.name = env.RoomID, env.DisplayName
	h.metrics.Rooms.Set(float64(h.registry.Count()))
	c.lg.Info("joined room", zap.String("room_id", c.room), zap.Int("peers", len(existing)))

	c.enqueue(protocol.NewJoined(c.room, c.id, existing, h.namesOf(c.room, existing)))
	announce := protocol.NewPeerJoined(c.id, c.name)
	for _, id := range existing {
		if err := h.SendDirected(id, announce); err != nil {
			h.metrics.Dropped.WithLabelValues(DropNotConnected).Inc()
		}
	}
}

func (h *Hub) namesOf(roomKey string, ids []string) map[string]string {
	all := h.registry.Names(roomKey)
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		names[id] = all[id]
	}
	return names
}

func (h *Hub) leaveRoom(c *Conn) {
	if c.room == "" {
		return
	}
	key := c.room
	c.room, c.name = "", ""
	if !h.registry.Leave(key, c.id) {
		return
	}
	h.metrics.Rooms.Set(float64(h.registry.Count()))
	c.lg.Info("left room", zap.String("room_id", key))
	h.Broadcast(key, c.id, protocol.NewLeft(c.id))
}

func (h *Hub) handleSignal(c *Conn, env *protocol.Envelope) {
	if c.room == "" {
		h.reject(c, ErrNotInRoom)
		return
	}
	if target, ok := h.registry.RoomOf(env.To); !ok || target != c.room {
		h.metrics.Dropped.WithLabelValues(DropOtherRoom).Inc()
		c.lg.Debug("signal target not in room", zap.String("remote_id", env.To), zap.String("kind", env.Kind))
		return
	}
	if err := h.SendDirected(env.To, env); err != nil {
		h.metrics.Dropped.WithLabelValues(DropNotConnected).Inc()
		c.lg.Debug("signal dropped", zap.String("remote_id", env.To), zap.String("kind", env.Kind), zap.Error(err))
	}
}

func (h *Hub) handleChat(c *Conn, env *protocol.Envelope) {
	if c.room == "" {
		h.reject(c, ErrNotInRoom)
		return
	}
	msg := &protocol.Envelope{
		Type: constants.MessageChat,
		ID:   utils.NewShortID(constants.ChatIDLength),
		From: c.id,
		Name: c.name,
		Text: env.Text,
		At:   env.At,
	}
	if msg.At == 0 {
		msg.At = h.now().UnixMilli()
	}
	h.Broadcast(c.room, "", msg)
}

func (h *Hub) handleWhiteboard(c *Conn, env *protocol.Envelope) {
	if c.room == "" {
		h.reject(c, ErrNotInRoom)
		return
	}
	h.Broadcast(c.room, c.id, &protocol.Envelope{Type: constants.MessageWhiteboard, From: c.id, Board: env.Board})
}

// reject answers c with an error message. The connection stays open.
func (h *Hub) reject(c *Conn, err error) {
	h.metrics.Dropped.WithLabelValues(DropInvalid).Inc()
	c.lg.Debug("rejected message", zap.Error(err))
	c.enqueue(protocol.NewError(toAppError(err)))
}

func toAppError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, room.ErrMissingRoomKey):
		return apperrors.WrapError(apperrors.ErrCodeRoomKeyMissing, err)
	case errors.Is(err, room.ErrAlreadyInRoom):
		return apperrors.WrapError(apperrors.ErrCodeAlreadyInRoom, err)
	case errors.Is(err, ErrNotInRoom):
		return apperrors.WrapError(apperrors.ErrCodeNotInRoom, err)
	case errors.Is(err, protocol.ErrInvalidMessage):
		return apperrors.WrapError(apperrors.ErrCodeInvalidMessage, err)
	default:
		return apperrors.WrapError(apperrors.ErrCodeInternal, err)
	}
}
