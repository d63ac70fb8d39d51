// Package locking provides per-row mutual exclusion keyed by entity id.
// Locks are held only for the duration of one logical operation; multi-row
// acquisition always happens in ascending key order so two operations that
// touch the same rows in opposite directions cannot deadlock.
package locking

import (
	"sync"

	"github.com/google/uuid"
)

// Keyed is a table of mutexes, one per entity id. Entries are created on
// first use and kept for the table's lifetime; the population is bounded by
// the number of live rows.
type Keyed struct {
	mu sync.Mutex
	m  map[uuid.UUID]*sync.Mutex
}

func NewKeyed() *Keyed {
	return &Keyed{m: make(map[uuid.UUID]*sync.Mutex)}
}

func (k *Keyed) get(id uuid.UUID) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.m[id]
	if !ok {
		l = &sync.Mutex{}
		k.m[id] = l
	}
	return l
}

// Lock acquires the mutex for id and returns its release function.
func (k *Keyed) Lock(id uuid.UUID) func() {
	l := k.get(id)
	l.Lock()
	return l.Unlock
}

// LockPair acquires both mutexes in ascending id order and returns a single
// release function for both.
func (k *Keyed) LockPair(a, b uuid.UUID) func() {
	if b.String() < a.String() {
		a, b = b, a
	}
	la, lb := k.get(a), k.get(b)
	la.Lock()
	lb.Lock()
	return func() {
		lb.Unlock()
		la.Unlock()
	}
}
