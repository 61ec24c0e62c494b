package websocket

import (
	"sync"

	"clubing-chat/internal/domain"
)

const addressHistory = 5

// AddressBook remembers the most recent remote addresses each member
// connected from, newest first.
type AddressBook struct {
	mu      sync.Mutex
	entries map[domain.MemberID][]string
}

func NewAddressBook() *AddressBook {
	return &AddressBook{entries: make(map[domain.MemberID][]string)}
}

// Record moves addr to the front of the member's list, keeping at most
// five entries.
func (b *AddressBook) Record(memberID domain.MemberID, addr string) {
	if addr == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.entries[memberID]
	next := make([]string, 0, addressHistory)
	next = append(next, addr)
	for _, a := range prev {
		if a != addr && len(next) < addressHistory {
			next = append(next, a)
		}
	}
	b.entries[memberID] = next
}

// Recent returns a copy of the member's recorded addresses.
func (b *AddressBook) Recent(memberID domain.MemberID) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.entries[memberID]...)
}
