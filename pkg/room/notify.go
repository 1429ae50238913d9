package room

import (
	"sync"
	"time"
)

type notice struct {
	key    string
	at     time.Time
	peak   int
	closed bool
}

// notifier hands room open/close notices to the Observer on its own
// goroutine, in the order they were queued. Queuing never blocks.
type notifier struct {
	obs Observer

	mu      sync.Mutex
	items   []notice
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func newNotifier(obs Observer) *notifier {
	n := &notifier{
		obs:  obs,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) put(nt notice) {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.items = append(n.items, nt)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		<-n.wake
		n.mu.Lock()
		items, stopped := n.items, n.stopped
		n.items = nil
		n.mu.Unlock()

		for _, nt := range items {
			if nt.closed {
				n.obs.RoomClosed(nt.key, nt.at, nt.peak)
			} else {
				n.obs.RoomOpened(nt.key, nt.at)
			}
		}
		if stopped {
			return
		}
	}
}

// stop delivers whatever is queued and waits for the worker to exit.
func (n *notifier) stop() {
	n.mu.Lock()
	if !n.stopped {
		n.stopped = true
		select {
		case n.wake <- struct{}{}:
		default:
		}
	}
	n.mu.Unlock()
	<-n.done
}
