package service

import (
	"sync"

	"clubing-chat/internal/domain"
)

// keyedMutex serializes work per club. Entries are dropped once no
// goroutine holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[domain.ClubID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[domain.ClubID]*refMutex)}
}

// Lock blocks until the club's lock is held and returns its release func.
func (k *keyedMutex) Lock(clubID domain.ClubID) func() {
	k.mu.Lock()
	m, ok := k.locks[clubID]
	if !ok {
		m = &refMutex{}
		k.locks[clubID] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, clubID)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
