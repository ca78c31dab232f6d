package lifecycle

import "sync"

type refLock struct {
	mu   sync.Mutex
	refs int
}

// requestLocks serializes transitions per request id without contention
// across ids. Entries are removed once the last holder releases.
type requestLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

func (l *requestLocks) acquire(id string) (release func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*refLock)
	}
	rl, ok := l.locks[id]
	if !ok {
		rl = &refLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
