package lock

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
)

// exclusiveWeight is the semaphore capacity. A shared holder takes 1, an
// exclusive holder takes all of it.
const exclusiveWeight = 1 << 20

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// LocalLocker serializes ledger keys inside one process. Waiting honours
// context cancellation, and semaphore FIFO ordering keeps exclusive waiters
// from starving behind a stream of shared ones.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*lockEntry)}
}

func (l *LocalLocker) Acquire(ctx context.Context, keys ...domain.LockKey) (func(), error) {
	ordered := domain.CanonicalLockOrder(keys)
	held := make([]heldLock, 0, len(ordered))

	for _, k := range ordered {
		entry := l.ref(k.Name())
		weight := int64(exclusiveWeight)
		if k.Shared {
			weight = 1
		}

		if err := entry.sem.Acquire(ctx, weight); err != nil {
			l.unref(k.Name())
			l.releaseAll(held)
			return nil, fmt.Errorf("lock %s: %w", k.Name(), err)
		}
		held = append(held, heldLock{name: k.Name(), entry: entry, weight: weight})
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.releaseAll(held) })
	}, nil
}

type heldLock struct {
	name   string
	entry  *lockEntry
	weight int64
}

func (l *LocalLocker) releaseAll(held []heldLock) {
	for i := len(held) - 1; i >= 0; i-- {
		held[i].entry.sem.Release(held[i].weight)
		l.unref(held[i].name)
	}
}

func (l *LocalLocker) ref(name string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[name]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(exclusiveWeight)}
		l.entries[name] = e
	}
	e.refs++
	return e
}

func (l *LocalLocker) unref(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[name]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.entries, name)
	}
}

// size reports how many keys currently have holders or waiters.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
