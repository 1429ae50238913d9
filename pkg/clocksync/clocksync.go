// Package clocksync estimates the offset between a participant's clock and
// the relay's clock from ping-time / pong-time round trips.
package clocksync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LingByte/LingMeet/pkg/constants"
	"github.com/LingByte/LingMeet/pkg/logger"
	"github.com/LingByte/LingMeet/pkg/protocol"
)

// Sample is one completed round trip, all values in milliseconds.
// T0 is the local send time, ServerTime the relay's clock when it answered,
// T3 the local receive time.
type Sample struct {
	T0         int64
	ServerTime int64
	T3         int64
}

func (s Sample) RTT() int64 {
	return s.T3 - s.T0
}

// Offset is what to add to the local clock to get the relay's clock,
// assuming the reply took half the round trip.
func (s Sample) Offset() float64 {
	return float64(s.ServerTime) + float64(s.T3-s.T0)/2 - float64(s.T3)
}

// Pong builds the relay's reply to a ping carrying t0.
func Pong(t0 int64, now time.Time) *protocol.Envelope {
	return protocol.NewPongTime(now.UnixMilli(), t0)
}

// Pinger sends a ping-time message carrying t0.
type Pinger interface {
	Ping(t0 int64) error
}

type Option func(*Sampler)

func WithInterval(d time.Duration) Option {
	return func(s *Sampler) { s.interval = d }
}

// WithSmoothing blends each new offset into the previous one with weight
// alpha. Values outside (0, 1] are ignored; 1 keeps only the latest sample.
func WithSmoothing(alpha float64) Option {
	return func(s *Sampler) {
		if alpha > 0 && alpha <= 1 {
			s.alpha = alpha
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// WithListener is called with every new offset estimate.
func WithListener(fn func(offset float64, rtt int64)) Option {
	return func(s *Sampler) { s.listener = fn }
}

func WithLogger(lg *zap.Logger) Option {
	return func(s *Sampler) { s.lg = lg }
}

// Sampler pings periodically and keeps the latest offset estimate.
type Sampler struct {
	pinger   Pinger
	interval time.Duration
	alpha    float64
	now      func() time.Time
	listener func(float64, int64)
	lg       *zap.Logger

	mu     sync.Mutex
	offset float64
	rtt    int64
	valid  bool
	lastT0 int64
}

func NewSampler(p Pinger, opts ...Option) *Sampler {
	s := &Sampler{
		pinger:   p,
		interval: constants.DefaultClockSyncInterval,
		alpha:    1,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = constants.DefaultClockSyncInterval
	}
	s.lg = logger.OrDefault(s.lg, "clocksync")
	return s
}

// Run pings once immediately and then every interval until ctx is done.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.pinger.Ping(s.now().UnixMilli()); err != nil {
			s.lg.Debug("ping failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// HandlePong applies a pong. Replies to pings older than the last applied
// one, and replies claiming to come from the future, are ignored.
func (s *Sampler) HandlePong(serverTime, t0 int64) {
	t3 := s.now().UnixMilli()
	sample := Sample{T0: t0, ServerTime: serverTime, T3: t3}
	if sample.RTT() < 0 {
		s.lg.Debug("pong from the future", zap.Int64("t0", t0), zap.Int64("t3", t3))
		return
	}

	s.mu.Lock()
	if s.valid && t0 <= s.lastT0 {
		s.mu.Unlock()
		s.lg.Debug("stale pong", zap.Int64("t0", t0))
		return
	}
	off := sample.Offset()
	if s.valid {
		off = s.alpha*off + (1-s.alpha)*s.offset
	}
	s.offset, s.rtt, s.valid, s.lastT0 = off, sample.RTT(), true, t0
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener(off, sample.RTT())
	}
}

// Offset returns the current estimate, or false before the first pong.
func (s *Sampler) Offset() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset, s.valid
}

// RTT returns the round trip of the last applied sample.
func (s *Sampler) RTT() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rtt, s.valid
}
