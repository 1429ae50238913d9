package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LingByte/LingMeet/pkg/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Conn is one participant's websocket. All reads happen in ReadPump and all
// writes in WritePump; everybody else talks to it through its send queue.
type Conn struct {
	id    string
	hub   *Hub
	ws    *websocket.Conn
	codec protocol.Codec
	send  chan *protocol.Envelope
	done  chan struct{}
	once  sync.Once
	lg    *zap.Logger

	// owned by ReadPump
	room string
	name string
}

func (c *Conn) ID() string { return c.id }

// enqueue never blocks. A full queue means the reader is too slow to keep
// up and the connection is dropped.
func (c *Conn) enqueue(env *protocol.Envelope) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.send <- env:
		return nil
	default:
		c.hub.metrics.Dropped.WithLabelValues(DropQueueFull).Inc()
		c.lg.Warn("send queue full, closing connection")
		c.Close()
		return ErrNotConnected
	}
}

// Close stops both pumps. Safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// ReadPump decodes inbound frames and hands them to the hub in arrival order.
// When it returns the participant has disconnected.
func (c *Conn) ReadPump() {
	defer func() {
		c.hub.disconnect(c)
		c.Close()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.lg.Debug("read error", zap.Error(err))
			}
			return
		}
		var env protocol.Envelope
		if err := c.codec.Decode(data, &env); err != nil {
			c.hub.reject(c, err)
			continue
		}
		c.hub.handle(c, &env)
	}
}

// WritePump drains the send queue onto the websocket and keeps it alive
// with pings.
func (c *Conn) WritePump() {
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
				c.lg.Debug("write error", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
