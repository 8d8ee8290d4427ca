package approval

import "sync"

type claimLock struct {
	mu   sync.Mutex
	refs int
}

// claimLocks hands out one mutex per claim id. Entries are dropped once no
// goroutine holds or waits on them, so the map only grows with contention.
type claimLocks struct {
	mu    sync.Mutex
	locks map[string]*claimLock
}

func newClaimLocks() *claimLocks {
	return &claimLocks{locks: make(map[string]*claimLock)}
}

// lock blocks until the caller owns claimID and returns the release func.
func (l *claimLocks) lock(claimID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[claimID]
	if !ok {
		entry = &claimLock{}
		l.locks[claimID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, claimID)
		}
		l.mu.Unlock()
	}
}

func (l *claimLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
