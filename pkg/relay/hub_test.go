package relay

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LingByte/LingMeet/pkg/config"
	"github.com/LingByte/LingMeet/pkg/constants"
	"github.com/LingByte/LingMeet/pkg/protocol"
	"github.com/LingByte/LingMeet/pkg/room"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(config.RelayConfig{SendQueue: 64}, room.NewRegistry(), WithClock(func() time.Time { return fixedNow }))
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, srv
}

type testPeer struct {
	t     *testing.T
	ws    *websocket.Conn
	codec protocol.Codec
	id    string
}

func dial(t *testing.T, srv *httptest.Server, subprotocol string) *testPeer {
	t.Helper()
	d := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	if subprotocol != "" {
		d.Subprotocols = []string{subprotocol}
	}
	ws, _, err := d.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return &testPeer{t: t, ws: ws, codec: protocol.CodecFor(ws.Subprotocol())}
}

func (p *testPeer) send(env *protocol.Envelope) {
	p.t.Helper()
	data, err := p.codec.Encode(env)
	require.NoError(p.t, err)
	require.NoError(p.t, p.ws.WriteMessage(p.codec.FrameType(), data))
}

func (p *testPeer) recv() *protocol.Envelope {
	p.t.Helper()
	p.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := p.ws.ReadMessage()
	require.NoError(p.t, err)
	var env protocol.Envelope
	require.NoError(p.t, p.codec.Decode(data, &env))
	return &env
}

func (p *testPeer) expect(msgType string) *protocol.Envelope {
	p.t.Helper()
	env := p.recv()
	require.Equal(p.t, msgType, env.Type, "got %+v", env)
	return env
}

// sync round-trips a ping so everything queued earlier has been delivered.
func (p *testPeer) sync() {
	p.t.Helper()
	p.send(protocol.NewPingTime(1))
	p.expect(constants.MessagePongTime)
}

func (p *testPeer) join(roomKey, name string) *protocol.Envelope {
	p.t.Helper()
	p.send(protocol.NewJoin(roomKey, name))
	env := p.expect(constants.MessageJoined)
	p.id = env.SelfID
	return env
}

func TestJoinAnnouncesNewcomer(t *testing.T) {
	_, srv := newTestHub(t)
	a := dial(t, srv, "")
	b := dial(t, srv, "")

	joined := a.join("R1", "Alice")
	assert.NotEmpty(t, joined.SelfID)
	assert.Empty(t, joined.Peers)

	joined = b.join("R1", "Bob")
	assert.Equal(t, []string{a.id}, joined.Peers)
	assert.Equal(t, map[string]string{a.id: "Alice"}, joined.Names)

	pj := a.expect(constants.MessagePeerJoined)
	assert.Equal(t, b.id, pj.From)
	assert.Equal(t, "Bob", pj.DisplayName)
}

func TestSignalIsDirectedAndStamped(t *testing.T) {
	_, srv := newTestHub(t)
	a := dial(t, srv, "")
	b := dial(t, srv, "")
	a.join("R1", "Alice")
	b.join("R1", "Bob")
	a.expect(constants.MessagePeerJoined)

	offer := protocol.NewOffer(a.id, "v=0")
	offer.From = "forged"
	b.send(offer)

	got := a.expect(constants.MessageSignal)
	assert.Equal(t, constants.SignalOffer, got.Kind)
	assert.Equal(t, b.id, got.From)
	assert.Equal(t, "v=0", got.SDP)
}

func TestSignalAcrossRoomsIsDropped(t *testing.T) {
	_, srv := newTestHub(t)
	a := dial(t, srv, "")
	c := dial(t, srv, "")
	a.join("R1", "Alice")
	c.join("R2", "Carol")

	c.send(protocol.NewOffer(a.id, "v=0"))
	c.send(protocol.NewOffer("nobody", "v=0"))
	c.sync()

	a.sync()
}

func TestSignalOrderingPerRecipient(t *testing.T) {
	_, srv := newTestHub(t)
	a := dial(t, srv, "")
	b := dial(t, srv, "")
	a.join("R1", "Alice")
	b.join("R1", "Bob")
	a.expect(constants.MessagePeerJoined)

	const n = 50
	for i := 0; i < n; i++ {
		b.send(protocol.NewICECandidate(a.id, protocol.Candidate{Candidate: string(rune('a'+i%26)) + strings.Repeat("x", i)}))
	}
	for i := 0; i < n; i++ {
		got := a.expect(constants.MessageSignal)
		require.NotNil(t, got.Candidate)
		assert.Equal(t, string(rune('a'+i%26))+strings.Repeat("x", i), got.Candidate.Candidate)
	}
}

func TestDisconnectBroadcastsLeftOnce(t *testing.T) {
	hub, srv := newTestHub(t)
	a := dial(t, srv, "")
	b := dial(t, srv, "")
	a.join("R1", "Alice")
	b.join("R1", "Bob")
	a.expect(constants.MessagePeerJoined)

	b.send(protocol.NewLeave())
	left := a.expect(constants.MessageLeft)
	assert.Equal(t, b.id, left.PeerID)

	b.ws.Close()
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	a.sync()
	assert.Equal(t, []string{a.id}, hub.Registry().Members("R1"))
}

func TestAbruptDisconnectBroadcastsLeft(t *testing.T) {
	hub, srv := newTestHub(t)
	a := dial(t, srv, "")
	b := dial(t, srv, "")
	a.join("R1", "Alice")
	b.join("R1", "Bob")
	a.expect(constants.MessagePeerJoined)

	b.ws.Close()
	left := a.expect(constants.MessageLeft)
	assert.Equal(t, b.id, left.PeerID)

	a.ws.Close()
	assert.Eventually(t, func() bool { return hub.Registry().Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestChatReachesSender(t *testing.T) {
	_, srv := newTestHub(t)
	a := dial(t, srv, "")
	b := dial(t, srv, "")
	a.join("R1", "Alice")
	b.join("R1", "Bob")
	a.expect(constants.MessagePeerJoined)

	b.send(protocol.NewChat("hello", 0))
	for _, p := range []*testPeer{a, b} {
		msg := p.expect(constants.MessageChat)
		assert.Equal(t, b.id, msg.From)
		assert.Equal(t, "Bob", msg.Name)
		assert.Equal(t, "hello", msg.Text)
		assert.Equal(t, fixedNow.UnixMilli(), msg.At)
		assert.Len(t, msg.ID, constants.ChatIDLength)
	}
}

func TestWhiteboardSkipsSender(t *testing.T) {
	_, srv := newTestHub(t)
	a := dial(t, srv, "")
	b := dial(t, srv, "")
	a.join("R1", "Alice")
	b.join("R1", "Bob")
	a.expect(constants.MessagePeerJoined)

	b.send(protocol.NewWhiteboard(constants.BoardStroke, map[string]interface{}{"x": 1.5}))
	got := a.expect(constants.MessageWhiteboard)
	assert.Equal(t, b.id, got.From)
	require.NotNil(t, got.Board)
	assert.Equal(t, constants.BoardStroke, got.Board.Type)

	// the sender's next message is the pong, not its own stroke
	b.sync()
}

func TestPingTime(t *testing.T) {
	_, srv := newTestHub(t)
	a := dial(t, srv, "")
	a.send(protocol.NewPingTime(1000))
	pong := a.expect(constants.MessagePongTime)
	assert.Equal(t, int64(1000), pong.T0)
	assert.Equal(t, fixedNow.UnixMilli(), pong.ServerTime)
}

func TestErrorsAreReported(t *testing.T) {
	hub, srv := newTestHub(t)
	a := dial(t, srv, "")

	a.send(protocol.NewJoin("", "Alice"))
	env := a.expect(constants.MessageError)
	assert.Equal(t, "ROOM_KEY_MISSING", env.Error.Code)
	assert.Equal(t, 0, hub.Registry().Count())

	a.send(protocol.NewChat("hi", 0))
	env = a.expect(constants.MessageError)
	assert.Equal(t, "NOT_IN_ROOM", env.Error.Code)

	require.NoError(t, a.ws.WriteMessage(websocket.TextMessage, []byte("{nope")))
	env = a.expect(constants.MessageError)
	assert.Equal(t, "INVALID_MESSAGE", env.Error.Code)

	a.join("R1", "Alice")
	a.send(protocol.NewJoin("R2", "Alice"))
	env = a.expect(constants.MessageError)
	assert.Equal(t, "ALREADY_IN_ROOM", env.Error.Code)
}

func TestMsgpackSubprotocol(t *testing.T) {
	_, srv := newTestHub(t)
	a := dial(t, srv, constants.SubprotocolMsgpack)
	b := dial(t, srv, "")
	assert.Equal(t, constants.SubprotocolMsgpack, a.ws.Subprotocol())

	a.join("R1", "Alice")
	b.join("R1", "Bob")
	a.expect(constants.MessagePeerJoined)

	b.send(protocol.NewAnswer(a.id, "v=0"))
	got := a.expect(constants.MessageSignal)
	assert.Equal(t, b.id, got.From)
	assert.Equal(t, constants.SignalAnswer, got.Kind)
}

func TestSendDirectedUnknown(t *testing.T) {
	hub, _ := newTestHub(t)
	assert.ErrorIs(t, hub.SendDirected("ghost", protocol.NewLeft("x")), ErrNotConnected)
}

func TestCloseDisconnectsEveryone(t *testing.T) {
	hub, srv := newTestHub(t)
	a := dial(t, srv, "")
	b := dial(t, srv, "")
	a.join("R1", "Alice")
	b.join("R1", "Bob")
	a.expect(constants.MessagePeerJoined)

	hub.Close()

	for _, p := range []*testPeer{a, b} {
		p.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			_, _, err := p.ws.ReadMessage()
			if err != nil {
				assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
				break
			}
		}
	}
	require.Eventually(t, func() bool {
		return hub.ConnectionCount() == 0 && hub.Registry().Count() == 0
	}, 2*time.Second, 10*time.Millisecond)

	late := dial(t, srv, "")
	late.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := late.ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
