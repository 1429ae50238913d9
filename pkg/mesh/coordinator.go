// Package mesh keeps one negotiated link to every other member of the room.
package mesh

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LingByte/LingMeet/pkg/constants"
	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/peer"
	"github.com/LingByte/LingMeet/pkg/protocol"
)

const tombstoneTTL = 10 * time.Minute

// Observer hears about mesh changes. Methods may be called from any
// goroutine and must not block.
type Observer interface {
	PeerJoined(remote, displayName string)
	PeerLeft(remote string)
	LinkConnected(remote string)
	LinkClosed(remote string, reason error)
}

type Config struct {
	Signaler           peer.Signaler
	NewTransport       peer.TransportFactory
	NegotiationTimeout time.Duration
	Observer           Observer
	Logger             *zap.Logger
}

// Coordinator owns the link table. The newcomer initiates towards every
// member it finds on joining; everybody else answers.
type Coordinator struct {
	cfg Config
	lg  *zap.Logger

	mu    sync.Mutex
	self  string
	links map[string]*peer.Link
	names map[string]string

	// candidates that arrived before the offer that creates their link
	early *cache.Cache
	// remotes that left; their late signals are ignored
	departed *cache.Cache
}

func NewCoordinator(cfg Config) *Coordinator {
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = constants.DefaultNegotiationTimeout
	}
	return &Coordinator{
		cfg:      cfg,
		lg:       logger.OrDefault(cfg.Logger, "mesh"),
		links:    make(map[string]*peer.Link),
		names:    make(map[string]string),
		early:    cache.New(cfg.NegotiationTimeout, cfg.NegotiationTimeout),
		departed: cache.New(tombstoneTTL, tombstoneTTL),
	}
}

// Self returns the identity assigned by the relay, empty before joining.
func (c *Coordinator) Self() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// HandleJoined records our identity and opens an initiator link to every
// existing member. Failing transports are reported but do not stop the rest.
func (c *Coordinator) HandleJoined(self string, peers []string, names map[string]string) error {
	c.mu.Lock()
	c.self = self
	for id, name := range names {
		c.names[id] = name
	}
	c.mu.Unlock()
	c.lg.Info("joined", zap.String("peer_id", self), zap.Int("peers", len(peers)))

	var g errgroup.Group
	for _, remote := range peers {
		if remote == self {
			continue
		}
		remote := remote
		g.Go(func() error {
			l, err := c.ensureLink(remote, peer.RoleInitiator)
			if err != nil {
				return err
			}
			if l != nil {
				l.Start()
			}
			return nil
		})
	}
	return g.Wait()
}

// HandlePeerJoined records remote's display name. A remote that left and
// joined again on the same connection is live once more, so its tombstone
// goes.
func (c *Coordinator) HandlePeerJoined(remote, displayName string) {
	c.departed.Delete(remote)
	c.mu.Lock()
	c.names[remote] = displayName
	c.mu.Unlock()
	c.lg.Info("peer joined", zap.String("remote_id", remote), zap.String("name", displayName))
	if c.cfg.Observer != nil {
		c.cfg.Observer.PeerJoined(remote, displayName)
	}
}

// HandlePeerLeft closes the link to remote and ignores anything it still
// sends.
func (c *Coordinator) HandlePeerLeft(remote string) {
	c.departed.Set(remote, struct{}{}, cache.DefaultExpiration)
	c.drop(remote, peer.ErrClosed)
	c.mu.Lock()
	delete(c.names, remote)
	c.mu.Unlock()
	c.lg.Info("peer left", zap.String("remote_id", remote))
	if c.cfg.Observer != nil {
		c.cfg.Observer.PeerLeft(remote)
	}
}

// SendFailed is called when the relay can no longer reach remote. The link
// goes, but a later offer from remote is still answered.
func (c *Coordinator) SendFailed(remote string) {
	c.drop(remote, fmt.Errorf("%w: %s unreachable", peer.ErrSignalFailed, remote))
}

func (c *Coordinator) drop(remote string, reason error) {
	c.early.Delete(remote)

	c.mu.Lock()
	l := c.links[remote]
	delete(c.links, remote)
	c.mu.Unlock()
	if l != nil {
		l.Close(reason)
	}
}

// HandleSignal routes an offer, answer or candidate from the relay.
func (c *Coordinator) HandleSignal(env *protocol.Envelope) error {
	remote := env.From
	if remote == "" {
		return fmt.Errorf("%w: signal without sender", protocol.ErrInvalidMessage)
	}
	if _, gone := c.departed.Get(remote); gone {
		c.lg.Debug("signal from departed peer", zap.String("remote_id", remote), zap.String("kind", env.Kind))
		return nil
	}

	switch env.Kind {
	case constants.SignalOffer:
		return c.handleOffer(remote, env.SDP)
	case constants.SignalAnswer:
		if l := c.link(remote); l != nil {
			l.HandleAnswer(env.SDP)
		} else {
			c.lg.Debug("answer without link", zap.String("remote_id", remote))
		}
	case constants.SignalICECandidate:
		if env.Candidate == nil {
			return fmt.Errorf("%w: candidate missing", protocol.ErrInvalidMessage)
		}
		c.mu.Lock()
		l := c.links[remote]
		if l == nil {
			var pending []protocol.Candidate
			if v, ok := c.early.Get(remote); ok {
				pending = v.([]protocol.Candidate)
			}
			c.early.SetDefault(remote, append(pending, *env.Candidate))
		}
		c.mu.Unlock()
		if l != nil {
			l.HandleCandidate(*env.Candidate)
		}
	default:
		return fmt.Errorf("%w: unknown signal kind %q", protocol.ErrInvalidMessage, env.Kind)
	}
	return nil
}

func (c *Coordinator) handleOffer(remote, sdp string) error {
	c.mu.Lock()
	existing := c.links[remote]
	self := c.self
	c.mu.Unlock()

	if existing != nil && existing.State() != peer.StateClosed {
		if existing.Role() == peer.RoleResponder {
			existing.HandleOffer(sdp)
			return nil
		}
		if self < remote {
			c.lg.Debug("glare, keeping initiator role", zap.String("remote_id", remote))
			return nil
		}
		c.lg.Debug("glare, yielding to remote offer", zap.String("remote_id", remote))
		c.mu.Lock()
		if c.links[remote] == existing {
			delete(c.links, remote)
		}
		c.mu.Unlock()
		existing.Close(nil)
	}

	l, err := c.ensureLink(remote, peer.RoleResponder)
	if err != nil {
		return err
	}
	if l == nil {
		// someone else created it meanwhile
		if l = c.link(remote); l == nil {
			return nil
		}
	}
	l.HandleOffer(sdp)
	c.mu.Lock()
	var pending []protocol.Candidate
	if v, ok := c.early.Get(remote); ok {
		pending = v.([]protocol.Candidate)
		c.early.Delete(remote)
	}
	c.mu.Unlock()
	for _, cand := range pending {
		l.HandleCandidate(cand)
	}
	return nil
}

// ensureLink creates a link unless a live one exists, in which case it
// returns nil.
func (c *Coordinator) ensureLink(remote string, role peer.Role) (*peer.Link, error) {
	if l := c.link(remote); l != nil && l.State() != peer.StateClosed {
		return nil, nil
	}
	l, err := peer.NewLink(peer.Config{
		Remote:       remote,
		Role:         role,
		Signaler:     c.cfg.Signaler,
		NewTransport: c.cfg.NewTransport,
		Timeout:      c.cfg.NegotiationTimeout,
		OnState:      c.linkState,
		OnClosed:     c.linkClosed,
		Logger:       c.lg,
	})
	if err != nil {
		c.lg.Warn("create link failed", zap.String("remote_id", remote), zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	if cur := c.links[remote]; cur != nil && cur.State() != peer.StateClosed {
		c.mu.Unlock()
		l.Close(nil)
		return nil, nil
	}
	c.links[remote] = l
	c.mu.Unlock()
	c.lg.Debug("link created", zap.String("remote_id", remote), zap.Stringer("role", role))
	return l, nil
}

func (c *Coordinator) linkState(l *peer.Link, s peer.State) {
	if s == peer.StateConnected && c.cfg.Observer != nil {
		c.cfg.Observer.LinkConnected(l.Remote())
	}
}

func (c *Coordinator) linkClosed(l *peer.Link, reason error) {
	c.mu.Lock()
	if c.links[l.Remote()] == l {
		delete(c.links, l.Remote())
	}
	c.mu.Unlock()
	if c.cfg.Observer != nil {
		c.cfg.Observer.LinkClosed(l.Remote(), reason)
	}
}

func (c *Coordinator) link(remote string) *peer.Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.links[remote]
}

// Link returns the current link to remote.
func (c *Coordinator) Link(remote string) (*peer.Link, bool) {
	l := c.link(remote)
	return l, l != nil
}

// States snapshots the negotiation state of every link.
func (c *Coordinator) States() map[string]peer.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]peer.State, len(c.links))
	for id, l := range c.links {
		out[id] = l.State()
	}
	return out
}

func (c *Coordinator) Names() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.names))
	for id, name := range c.names {
		out[id] = name
	}
	return out
}

// ReplaceTrack swaps the outgoing track on every connected link.
func (c *Coordinator) ReplaceTrack(track webrtc.TrackLocal) error {
	c.mu.Lock()
	links := make([]*peer.Link, 0, len(c.links))
	for _, l := range c.links {
		if l.State() == peer.StateConnected {
			links = append(links, l)
		}
	}
	c.mu.Unlock()

	var errs []error
	for _, l := range links {
		if err := l.ReplaceTrack(track); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.Remote(), err))
		}
	}
	return errors.Join(errs...)
}

// Leave closes every link and forgets the room.
func (c *Coordinator) Leave() {
	c.mu.Lock()
	links := c.links
	c.links = make(map[string]*peer.Link)
	c.names = make(map[string]string)
	c.self = ""
	c.mu.Unlock()

	c.early.Flush()
	for _, l := range links {
		l.Close(nil)
	}
}
