// Package room keeps track of which connection identities belong to which
// named room.
package room

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LingByte/LingMeet/pkg/logger"
)

var (
	ErrMissingRoomKey = errors.New("room key is required")
	ErrAlreadyInRoom  = errors.New("identity already belongs to another room")
)

// Observer is told when a room gains its first member and loses its last.
// Calls arrive on a single goroutine owned by the Registry, in the order the
// membership changes happened, so a slow Observer never holds up a Join.
type Observer interface {
	RoomOpened(key string, at time.Time)
	RoomClosed(key string, at time.Time, peak int)
}

// Member is one participant of a room.
type Member struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Room is a point-in-time copy of a room.
type Room struct {
	Key      string    `json:"key"`
	Members  []Member  `json:"members"`
	Peak     int       `json:"peak"`
	OpenedAt time.Time `json:"openedAt"`
}

type entry struct {
	mu       sync.Mutex
	refs     int // guarded by Registry.mu
	order    []string
	names    map[string]string
	peak     int
	openedAt time.Time
}

func (e *entry) ids() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

func (e *entry) remove(id string) bool {
	if _, ok := e.names[id]; !ok {
		return false
	}
	delete(e.names, id)
	for i, m := range e.order {
		if m == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return true
}

// Registry maps room keys to member sets. Membership changes on one key are
// serialized; different keys proceed independently.
type Registry struct {
	mu         sync.Mutex
	rooms      map[string]*entry
	identities map[string]string // identity -> room key
	notices    *notifier
	now        func() time.Time
	lg         *zap.Logger
}

type Option func(*Registry)

func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.notices = newNotifier(o)
		}
	}
}

func WithLogger(lg *zap.Logger) Option {
	return func(r *Registry) { r.lg = lg }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:      make(map[string]*entry),
		identities: make(map[string]string),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lg = logger.OrDefault(r.lg, "room")
	return r
}

// acquire pins the entry for key, creating it when create is set, and
// returns it locked.
func (r *Registry) acquire(key string, create bool) *entry {
	r.mu.Lock()
	e, ok := r.rooms[key]
	if !ok {
		if !create {
			r.mu.Unlock()
			return nil
		}
		e = &entry{names: make(map[string]string)}
		r.rooms[key] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()
	return e
}

func (r *Registry) release(key string, e *entry) {
	e.mu.Unlock()
	r.unpin(key, e)
}

// unpin drops a reference taken by acquire. With no references left nobody
// can hold e.mu, so emptiness is read here rather than before unlocking.
func (r *Registry) unpin(key string, e *entry) {
	r.mu.Lock()
	e.refs--
	if e.refs == 0 && len(e.names) == 0 && r.rooms[key] == e {
		delete(r.rooms, key)
	}
	r.mu.Unlock()
}

// Close delivers pending Observer notices and stops the notifier. Joins
// after Close are still tracked but no longer reported.
func (r *Registry) Close() {
	if r.notices != nil {
		r.notices.stop()
	}
}

// Join adds identity to the room and returns the members that were present
// before it, in join order. Joining the room the identity is already in is a
// no-op that returns the other members.
func (r *Registry) Join(key, identity, displayName string) ([]string, error) {
	if key == "" {
		return nil, ErrMissingRoomKey
	}

	r.mu.Lock()
	if cur, ok := r.identities[identity]; ok && cur != key {
		r.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}
	r.identities[identity] = key
	r.mu.Unlock()

	e := r.acquire(key, true)
	defer r.release(key, e)

	if _, ok := e.names[identity]; ok {
		existing := make([]string, 0, len(e.order)-1)
		for _, id := range e.order {
			if id != identity {
				existing = append(existing, id)
			}
		}
		return existing, nil
	}

	existing := e.ids()
	opened := len(e.names) == 0
	if opened {
		e.openedAt = r.now()
		e.peak = 0
	}
	e.names[identity] = displayName
	e.order = append(e.order, identity)
	if len(e.order) > e.peak {
		e.peak = len(e.order)
	}

	r.lg.Debug("member joined", zap.String("room_id", key), zap.String("peer_id", identity), zap.Int("members", len(e.order)))
	if opened && r.notices != nil {
		r.notices.put(notice{key: key, at: e.openedAt})
	}
	return existing, nil
}

// Leave removes identity from the room. It reports whether the identity was
// a member; leaving twice is harmless.
func (r *Registry) Leave(key, identity string) bool {
	e := r.acquire(key, false)
	if e == nil {
		r.forget(key, identity)
		return false
	}
	defer r.release(key, e)

	removed := e.remove(identity)
	r.forget(key, identity)
	if !removed {
		return false
	}

	r.lg.Debug("member left", zap.String("room_id", key), zap.String("peer_id", identity), zap.Int("members", len(e.order)))
	if len(e.names) == 0 && r.notices != nil {
		r.notices.put(notice{key: key, at: r.now(), peak: e.peak, closed: true})
	}
	return true
}

func (r *Registry) forget(key, identity string) {
	r.mu.Lock()
	if r.identities[identity] == key {
		delete(r.identities, identity)
	}
	r.mu.Unlock()
}

// Members returns the current members of the room in join order.
func (r *Registry) Members(key string) []string {
	e := r.acquire(key, false)
	if e == nil {
		return nil
	}
	defer r.release(key, e)
	return e.ids()
}

// Names returns identity -> display name for the room.
func (r *Registry) Names(key string) map[string]string {
	e := r.acquire(key, false)
	if e == nil {
		return map[string]string{}
	}
	defer r.release(key, e)
	out := make(map[string]string, len(e.names))
	for id, name := range e.names {
		out[id] = name
	}
	return out
}

func (r *Registry) DisplayName(key, identity string) (string, bool) {
	e := r.acquire(key, false)
	if e == nil {
		return "", false
	}
	defer r.release(key, e)
	name, ok := e.names[identity]
	return name, ok
}

// Snapshot copies the room, or reports false if it has no members.
func (r *Registry) Snapshot(key string) (Room, bool) {
	e := r.acquire(key, false)
	if e == nil {
		return Room{}, false
	}
	defer r.release(key, e)
	if len(e.order) == 0 {
		return Room{}, false
	}
	rm := Room{Key: key, Peak: e.peak, OpenedAt: e.openedAt, Members: make([]Member, 0, len(e.order))}
	for _, id := range e.order {
		rm.Members = append(rm.Members, Member{ID: id, DisplayName: e.names[id]})
	}
	return rm, true
}

// RoomOf returns the room identity currently belongs to.
func (r *Registry) RoomOf(identity string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.identities[identity]
	return key, ok
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
