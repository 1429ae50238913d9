package room

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	kind string
	key  string
	peak int
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) RoomOpened(key string, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "open", key: key})
}

func (r *recorder) RoomClosed(key string, _ time.Time, peak int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "close", key: key, peak: peak})
}

func TestRoomLifecycle(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(WithObserver(rec))

	existing, err := reg.Join("R1", "A", "Alice")
	require.NoError(t, err)
	assert.Empty(t, existing)

	existing, err = reg.Join("R1", "B", "Bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, existing)
	assert.Equal(t, []string{"A", "B"}, reg.Members("R1"))

	assert.True(t, reg.Leave("R1", "A"))
	assert.Equal(t, []string{"B"}, reg.Members("R1"))

	assert.True(t, reg.Leave("R1", "B"))
	assert.Empty(t, reg.Members("R1"))
	assert.Equal(t, 0, reg.Count())

	existing, err = reg.Join("R1", "A", "Alice")
	require.NoError(t, err)
	assert.Empty(t, existing)

	reg.Close()
	assert.Equal(t, []event{
		{kind: "open", key: "R1"},
		{kind: "close", key: "R1", peak: 2},
		{kind: "open", key: "R1"},
	}, rec.events)
}

func TestJoinMissingKey(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Join("", "A", "Alice")
	assert.ErrorIs(t, err, ErrMissingRoomKey)
	assert.Equal(t, 0, reg.Count())
	_, ok := reg.RoomOf("A")
	assert.False(t, ok)
}

func TestJoinSecondRoomRefused(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Join("R1", "A", "Alice")
	require.NoError(t, err)

	_, err = reg.Join("R2", "A", "Alice")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
	assert.Empty(t, reg.Members("R2"))

	key, ok := reg.RoomOf("A")
	assert.True(t, ok)
	assert.Equal(t, "R1", key)
}

func TestRejoinSameRoomIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Join("R1", "A", "Alice")
	_, _ = reg.Join("R1", "B", "Bob")

	existing, err := reg.Join("R1", "B", "Bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, existing)
	assert.Equal(t, []string{"A", "B"}, reg.Members("R1"))
}

func TestLeaveIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Join("R1", "A", "Alice")
	assert.True(t, reg.Leave("R1", "A"))
	assert.False(t, reg.Leave("R1", "A"))
	assert.False(t, reg.Leave("nowhere", "A"))
}

func TestNamesAndSnapshot(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Join("R1", "A", "Alice")
	_, _ = reg.Join("R1", "B", "Bob")

	assert.Equal(t, map[string]string{"A": "Alice", "B": "Bob"}, reg.Names("R1"))
	name, ok := reg.DisplayName("R1", "B")
	assert.True(t, ok)
	assert.Equal(t, "Bob", name)

	snap, ok := reg.Snapshot("R1")
	require.True(t, ok)
	assert.Equal(t, 2, snap.Peak)
	assert.Equal(t, []Member{{ID: "A", DisplayName: "Alice"}, {ID: "B", DisplayName: "Bob"}}, snap.Members)

	_, ok = reg.Snapshot("R9")
	assert.False(t, ok)
}

func TestConcurrentJoinsSeeDistinctPrefixes(t *testing.T) {
	reg := NewRegistry()
	const n = 50

	results := make([][]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			existing, err := reg.Join("R1", fmt.Sprintf("p%02d", i), "")
			assert.NoError(t, err)
			results[i] = existing
		}(i)
	}
	wg.Wait()

	// Joins are serialized: every joiner saw a different number of predecessors.
	sizes := make([]int, n)
	for i, r := range results {
		sizes[i] = len(r)
	}
	sort.Ints(sizes)
	for i := range sizes {
		assert.Equal(t, i, sizes[i])
	}
	assert.Len(t, reg.Members("R1"), n)
}

func TestDifferentRoomsAreIndependent(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		for p := 0; p < 8; p++ {
			wg.Add(1)
			go func(r, p int) {
				defer wg.Done()
				_, err := reg.Join(fmt.Sprintf("room-%d", r), fmt.Sprintf("%d-%d", r, p), "")
				assert.NoError(t, err)
			}(r, p)
		}
	}
	wg.Wait()
	assert.Equal(t, 8, reg.Count())
	for r := 0; r < 8; r++ {
		assert.Len(t, reg.Members(fmt.Sprintf("room-%d", r)), 8)
	}
}

// A leaver that has dropped the room lock but not yet its reference must not
// delete the room when a joiner slipped in between.
func TestLeaveRacingJoinKeepsRoom(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Join("R1", "a", "")
	require.NoError(t, err)

	// first half of Leave(R1, a)
	e := reg.acquire("R1", false)
	require.NotNil(t, e)
	require.True(t, e.remove("a"))
	reg.forget("R1", "a")
	e.mu.Unlock()

	existing, err := reg.Join("R1", "b", "")
	require.NoError(t, err)
	assert.Empty(t, existing)

	// second half
	reg.unpin("R1", e)

	key, ok := reg.RoomOf("b")
	require.True(t, ok)
	assert.Equal(t, "R1", key)
	assert.Equal(t, []string{"b"}, reg.Members("R1"))

	existing, err = reg.Join("R1", "c", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, existing)
	assert.True(t, reg.Leave("R1", "b"))
}

func TestConcurrentLeaveAndJoinSameKey(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 500; i++ {
		leaver := fmt.Sprintf("old-%d", i)
		joiner := fmt.Sprintf("new-%d", i)
		_, err := reg.Join("R1", leaver, "")
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.Leave("R1", leaver)
		}()
		go func() {
			defer wg.Done()
			_, err := reg.Join("R1", joiner, "")
			assert.NoError(t, err)
		}()
		wg.Wait()

		require.Equal(t, []string{joiner}, reg.Members("R1"), "iteration %d", i)
		check := fmt.Sprintf("check-%d", i)
		existing, err := reg.Join("R1", check, "")
		require.NoError(t, err)
		require.Equal(t, []string{joiner}, existing, "iteration %d", i)

		require.True(t, reg.Leave("R1", check))
		require.True(t, reg.Leave("R1", joiner))
		require.Equal(t, 0, reg.Count())
	}
}

type blockingObserver struct {
	release chan struct{}
	opened  chan string
}

func (o *blockingObserver) RoomOpened(key string, _ time.Time) {
	o.opened <- key
	<-o.release
}

func (o *blockingObserver) RoomClosed(string, time.Time, int) {}

func TestSlowObserverDoesNotBlockJoins(t *testing.T) {
	obs := &blockingObserver{release: make(chan struct{}), opened: make(chan string, 4)}
	reg := NewRegistry(WithObserver(obs))

	_, err := reg.Join("R1", "a", "")
	require.NoError(t, err)
	assert.Equal(t, "R1", <-obs.opened)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := reg.Join("R2", "b", "")
		assert.NoError(t, err)
		_, err = reg.Join("R1", "c", "")
		assert.NoError(t, err)
		reg.Leave("R1", "a")
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("membership changes waited for the observer")
	}

	close(obs.release)
	reg.Close()
	assert.Equal(t, "R2", <-obs.opened)
}
