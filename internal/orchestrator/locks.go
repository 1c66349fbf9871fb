package orchestrator

import (
	"hash/maphash"
	"sync"

	"github.com/rickgao/marketsync/internal/model"
)

// keyLocks is a fixed set of FIFO locks sharded by board key. A task takes
// its place in line when it is reserved, so updates of one board run in the
// order they were reserved even though each runs on its own goroutine.
type keyLocks struct {
	seed   maphash.Seed
	shards []ticketLock
}

// ticketLock grants the lock in ticket order.
type ticketLock struct {
	mu      sync.Mutex
	cond    sync.Cond
	next    uint64
	serving uint64
}

func newKeyLocks(n int) *keyLocks {
	if n < 1 {
		n = 1
	}
	l := &keyLocks{
		seed:   maphash.MakeSeed(),
		shards: make([]ticketLock, n),
	}
	for i := range l.shards {
		l.shards[i].cond.L = &l.shards[i].mu
	}
	return l
}

func (l *keyLocks) shard(key model.Key) *ticketLock {
	h := maphash.Comparable(l.seed, key)
	return &l.shards[h%uint64(len(l.shards))]
}

// reserve takes key's place in line and returns a wait function. wait blocks
// until every earlier reservation on the shard has unlocked and returns the
// unlock function. Every reservation must be waited on and unlocked, or the
// shard stalls.
func (l *keyLocks) reserve(key model.Key) (wait func() (unlock func())) {
	t := l.shard(key)
	t.mu.Lock()
	ticket := t.next
	t.next++
	t.mu.Unlock()

	return func() func() {
		t.mu.Lock()
		for t.serving != ticket {
			t.cond.Wait()
		}
		t.mu.Unlock()
		return t.release
	}
}

// lock reserves and waits in one step.
func (l *keyLocks) lock(key model.Key) func() {
	return l.reserve(key)()
}

func (t *ticketLock) release() {
	t.mu.Lock()
	t.serving++
	t.mu.Unlock()
	t.cond.Broadcast()
}
