// Package peer negotiates one direct connection to one remote participant.
//
// A Link is an actor: every input (remote signals, transport callbacks,
// timeouts, track changes) goes through one ordered mailbox and is handled
// by a single goroutine, so transitions never interleave.
package peer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/LingByte/LingMeet/pkg/constants"
	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/protocol"
)

type Config struct {
	Remote       string
	Role         Role
	Signaler     Signaler
	NewTransport TransportFactory
	// Timeout bounds how long the link may stay short of Connected.
	Timeout time.Duration

	// OnState is called from the link's goroutine on every transition,
	// including the final one to StateClosed.
	OnState func(l *Link, s State)
	// OnClosed is called exactly once, after the transport is released.
	OnClosed func(l *Link, reason error)

	Logger *zap.Logger
}

type eventKind int

const (
	evStart eventKind = iota
	evOffer
	evAnswer
	evRemoteCandidate
	evLocalCandidate
	evHealth
	evReplaceTrack
)

type event struct {
	kind      eventKind
	sdp       string
	candidate protocol.Candidate
	health    Health
	track     webrtc.TrackLocal
	reply     chan error
}

type Link struct {
	remote   string
	role     Role
	signaler Signaler
	cfg      Config
	lg       *zap.Logger

	transport Transport
	inbox     *mailbox
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	state  atomic.Int32
	health atomic.Int32

	reasonMu sync.Mutex
	reason   error

	// owned by the actor goroutine
	remoteSet     bool
	localSent     bool
	pendingRemote []protocol.Candidate
	pendingLocal  []protocol.Candidate
}

// NewLink creates the transport and starts the link's goroutine. An
// initiator does nothing until Start is called; a responder waits for an
// offer.
func NewLink(cfg Config) (*Link, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultNegotiationTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		remote:   cfg.Remote,
		role:     cfg.Role,
		signaler: cfg.Signaler,
		cfg:      cfg,
		inbox:    newMailbox(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	l.lg = logger.OrDefault(cfg.Logger, "peer").With(zap.String("remote_id", cfg.Remote), zap.Stringer("role", cfg.Role))

	tr, err := cfg.NewTransport(cfg.Remote, cfg.Role, l)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrTransportFailed, err)
	}
	l.transport = tr
	go l.run()
	return l, nil
}

func (l *Link) Remote() string { return l.remote }
func (l *Link) Role() Role     { return l.role }
func (l *Link) State() State   { return State(l.state.Load()) }
func (l *Link) Health() Health { return Health(l.health.Load()) }

// Done is closed once the link has reached StateClosed and released its
// transport.
func (l *Link) Done() <-chan struct{} { return l.done }

// Err returns why the link closed, or nil while it is open.
func (l *Link) Err() error {
	l.reasonMu.Lock()
	defer l.reasonMu.Unlock()
	return l.reason
}

// Start begins negotiation on an initiator link.
func (l *Link) Start() { l.inbox.put(event{kind: evStart}) }

func (l *Link) HandleOffer(sdp string) { l.inbox.put(event{kind: evOffer, sdp: sdp}) }

func (l *Link) HandleAnswer(sdp string) { l.inbox.put(event{kind: evAnswer, sdp: sdp}) }

func (l *Link) HandleCandidate(c protocol.Candidate) {
	l.inbox.put(event{kind: evRemoteCandidate, candidate: c})
}

// LocalCandidate implements Events.
func (l *Link) LocalCandidate(c protocol.Candidate) {
	l.inbox.put(event{kind: evLocalCandidate, candidate: c})
}

// HealthChanged implements Events.
func (l *Link) HealthChanged(h Health) {
	l.inbox.put(event{kind: evHealth, health: h})
}

// ReplaceTrack swaps the outgoing track of the same kind without
// renegotiating. The link must be connected.
func (l *Link) ReplaceTrack(track webrtc.TrackLocal) error {
	reply := make(chan error, 1)
	if !l.inbox.put(event{kind: evReplaceTrack, track: track, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-l.done:
		return ErrClosed
	}
}

// Close tears the link down from any state. In-flight transport calls are
// cancelled and no further signals are sent. A nil reason means ErrClosed.
func (l *Link) Close(reason error) {
	if reason == nil {
		reason = ErrClosed
	}
	l.reasonMu.Lock()
	if l.reason == nil {
		l.reason = reason
	}
	l.reasonMu.Unlock()
	l.cancel()
}

func (l *Link) run() {
	defer l.finish()

	timer := time.NewTimer(l.cfg.Timeout)
	defer timer.Stop()
	timeout := timer.C

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-timeout:
			if l.State() != StateConnected {
				l.lg.Info("negotiation timed out", zap.Stringer("state", l.State()))
				l.Close(ErrNegotiationTimeout)
				return
			}
		case <-l.inbox.notify:
			for _, ev := range l.inbox.drain() {
				if l.ctx.Err() != nil {
					return
				}
				l.handle(ev)
			}
			if l.State() == StateConnected && timeout != nil {
				timer.Stop()
				timeout = nil
			}
		}
	}
}

func (l *Link) finish() {
	for _, ev := range l.inbox.close() {
		if ev.reply != nil {
			ev.reply <- ErrClosed
		}
	}
	l.pendingRemote, l.pendingLocal = nil, nil
	if err := l.transport.Close(); err != nil {
		l.lg.Debug("transport close", zap.Error(err))
	}
	l.setState(StateClosed)
	reason := l.Err()
	l.lg.Info("link closed", zap.Error(reason))
	close(l.done)
	if l.cfg.OnClosed != nil {
		l.cfg.OnClosed(l, reason)
	}
}

func (l *Link) setState(s State) {
	if s != StateClosed && l.ctx.Err() != nil {
		return
	}
	if State(l.state.Swap(int32(s))) == s {
		return
	}
	l.lg.Debug("state", zap.Stringer("state", s))
	if l.cfg.OnState != nil {
		l.cfg.OnState(l, s)
	}
}

func (l *Link) handle(ev event) {
	switch ev.kind {
	case evStart:
		l.startOffer()
	case evOffer:
		l.acceptOffer(ev.sdp)
	case evAnswer:
		l.acceptAnswer(ev.sdp)
	case evRemoteCandidate:
		l.addRemoteCandidate(ev.candidate)
	case evLocalCandidate:
		if !l.localSent {
			l.pendingLocal = append(l.pendingLocal, ev.candidate)
			return
		}
		l.send(protocol.NewICECandidate(l.remote, ev.candidate))
	case evHealth:
		l.health.Store(int32(ev.health))
		switch ev.health {
		case HealthFailed, HealthClosed:
			l.lg.Info("transport lost", zap.Stringer("health", ev.health))
			l.Close(ErrTransportFailed)
		case HealthDisconnected:
			l.lg.Debug("transport disconnected")
		}
	case evReplaceTrack:
		if l.State() != StateConnected {
			ev.reply <- ErrNotConnected
			return
		}
		ev.reply <- l.transport.ReplaceTrack(ev.track)
	}
}

func (l *Link) startOffer() {
	if l.role != RoleInitiator || l.State() != StateIdle {
		l.lg.Debug("start ignored", zap.Stringer("state", l.State()))
		return
	}
	l.setState(StateOffering)
	sdp, err := l.transport.CreateOffer(l.ctx)
	if l.ctx.Err() != nil {
		return
	}
	if err != nil {
		l.lg.Warn("create offer failed", zap.Error(err))
		l.Close(fmt.Errorf("%w: %v", ErrTransportFailed, err))
		return
	}
	l.setState(StateAwaitingAnswer)
	if l.send(protocol.NewOffer(l.remote, sdp)) {
		l.flushLocal()
	}
}

func (l *Link) acceptOffer(sdp string) {
	if l.role != RoleResponder || l.State() != StateIdle {
		l.lg.Debug("offer ignored", zap.Stringer("state", l.State()))
		return
	}
	l.setState(StateAnswering)
	answer, err := l.transport.CreateAnswer(l.ctx, sdp)
	if l.ctx.Err() != nil {
		return
	}
	if err != nil {
		l.lg.Debug("offer rejected", zap.Error(err))
		l.setState(StateIdle)
		return
	}
	l.remoteSet = true
	l.flushRemote()
	l.setState(StateConnected)
	if l.send(protocol.NewAnswer(l.remote, answer)) {
		l.flushLocal()
	}
}

func (l *Link) acceptAnswer(sdp string) {
	if l.State() != StateAwaitingAnswer {
		l.lg.Debug("answer ignored", zap.Stringer("state", l.State()))
		return
	}
	err := l.transport.ApplyAnswer(l.ctx, sdp)
	if l.ctx.Err() != nil {
		return
	}
	if err != nil {
		l.lg.Debug("answer rejected", zap.Error(err))
		return
	}
	l.remoteSet = true
	l.flushRemote()
	l.setState(StateConnected)
}

func (l *Link) addRemoteCandidate(c protocol.Candidate) {
	if !l.remoteSet {
		l.pendingRemote = append(l.pendingRemote, c)
		return
	}
	if err := l.transport.AddICECandidate(c); err != nil {
		l.lg.Debug("candidate rejected", zap.Error(err))
	}
}

func (l *Link) flushRemote() {
	pending := l.pendingRemote
	l.pendingRemote = nil
	for _, c := range pending {
		if err := l.transport.AddICECandidate(c); err != nil {
			l.lg.Debug("candidate rejected", zap.Error(err))
		}
	}
}

func (l *Link) flushLocal() {
	l.localSent = true
	pending := l.pendingLocal
	l.pendingLocal = nil
	for _, c := range pending {
		if !l.send(protocol.NewICECandidate(l.remote, c)) {
			return
		}
	}
}

// send reports whether the message went out. A failed send closes the link.
func (l *Link) send(env *protocol.Envelope) bool {
	if l.ctx.Err() != nil {
		return false
	}
	if err := l.signaler.Signal(l.ctx, env); err != nil {
		l.lg.Info("signal send failed", zap.String("kind", env.Kind), zap.Error(err))
		l.Close(fmt.Errorf("%w: %v", ErrSignalFailed, err))
		return false
	}
	return true
}
