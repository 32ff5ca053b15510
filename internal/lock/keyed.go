package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// KeyedMutex maintains one Mutex per application-level key, created lazily
// on first acquisition. Two keys never share a Mutex, so operations on
// distinct keys run fully in parallel while operations on the same key are
// strictly serialized.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*Mutex
}

// Diagnostic is a read-only snapshot of one key's lock state.
type Diagnostic struct {
	Key         string `json:"key"`
	Locked      bool   `json:"locked"`
	Holder      string `json:"holder,omitempty"`
	QueueLength int    `json:"queueLength"`
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*Mutex)}
}

func (k *KeyedMutex) get(key string) *Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = NewMutex(key)
		k.locks[key] = m
	}
	return m
}

// Acquire blocks until the caller holds the lock for key or ctx is
// cancelled.
func (k *KeyedMutex) Acquire(ctx context.Context, key, label string) (*Token, error) {
	return k.get(key).Acquire(ctx, label)
}

// RunExclusive runs fn while holding the lock for key, releasing on return,
// error, or panic.
func (k *KeyedMutex) RunExclusive(ctx context.Context, key, label string, fn func() error) error {
	return k.get(key).RunExclusive(ctx, label, fn)
}

// IsLocked reports whether the given key is currently held.
func (k *KeyedMutex) IsLocked(key string) bool {
	k.mu.Lock()
	m, ok := k.locks[key]
	k.mu.Unlock()
	return ok && m.IsLocked()
}

// Keys returns all known keys in sorted order.
func (k *KeyedMutex) Keys() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	keys := make([]string, 0, len(k.locks))
	for key := range k.locks {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clear removes the mutex for key. It fails if the key is locked or has
// waiters, since dropping a live mutex would orphan its holder.
func (k *KeyedMutex) Clear(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		return nil
	}
	if m.IsLocked() || m.QueueLength() > 0 {
		return fmt.Errorf("lock: cannot clear key %q while in use", key)
	}
	delete(k.locks, key)
	return nil
}

// ClearAll removes every unlocked mutex. Locked keys are kept.
func (k *KeyedMutex) ClearAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, m := range k.locks {
		if !m.IsLocked() && m.QueueLength() == 0 {
			delete(k.locks, key)
		}
	}
}

// Diagnostics returns a snapshot of every key's lock state, sorted by key.
func (k *KeyedMutex) Diagnostics() []Diagnostic {
	k.mu.Lock()
	locks := make(map[string]*Mutex, len(k.locks))
	for key, m := range k.locks {
		locks[key] = m
	}
	k.mu.Unlock()

	diags := make([]Diagnostic, 0, len(locks))
	for key, m := range locks {
		holder, _ := m.Holder()
		diags = append(diags, Diagnostic{
			Key:         key,
			Locked:      m.IsLocked(),
			Holder:      holder,
			QueueLength: m.QueueLength(),
		})
	}
	sort.Slice(diags, func(i, j int) bool { return diags[i].Key < diags[j].Key })
	return diags
}
