package services

import "sync"

// pairLocks hands out one mutex per (warehouse, product) pair. Fulfillment
// holds at most one pair lock at a time and always visits pairs in sorted
// order, so circular waits cannot form.
type pairLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newPairLocks() *pairLocks {
	return &pairLocks{m: make(map[string]*sync.Mutex)}
}

// lock acquires the pair's mutex and returns its unlock func.
func (l *pairLocks) lock(warehouseID, productID string) func() {
	key := warehouseID + "\x00" + productID
	l.mu.Lock()
	mu, ok := l.m[key]
	if !ok {
		mu = &sync.Mutex{}
		l.m[key] = mu
	}
	l.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}
