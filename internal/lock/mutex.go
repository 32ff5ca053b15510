// Package lock provides exclusive-access primitives for the MCP connection
// core: a FIFO Mutex handing out single-use ownership tokens, and a
// KeyedMutex keeping one lazily-created Mutex per application key (server
// name). Tokens are linear: releasing twice is a programming error surfaced
// as ErrAlreadyReleased, never silently ignored.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrAlreadyReleased is returned when a Token is released a second time.
// It signals a broken ownership invariant rather than a runtime condition.
var ErrAlreadyReleased = errors.New("lock: token already released")

// Token is a one-time-use capability proving exclusive ownership of a
// mutex's critical section. It is valid from Acquire until Release and
// permanently invalid afterwards.
type Token struct {
	mu       sync.Mutex
	released bool

	id         string
	key        string
	label      string
	acquiredAt time.Time
	owner      *Mutex
}

// ID returns the unique token identifier.
func (t *Token) ID() string { return t.id }

// Key returns the key this token locks.
func (t *Token) Key() string { return t.key }

// Label returns the label supplied at acquisition, identifying the holder.
func (t *Token) Label() string { return t.label }

// AcquiredAt returns when the token was granted.
func (t *Token) AcquiredAt() time.Time { return t.acquiredAt }

// Release consumes the token and unlocks the mutex, waking the next waiter
// in FIFO order. A second call returns ErrAlreadyReleased.
func (t *Token) Release() error {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return ErrAlreadyReleased
	}
	t.released = true
	t.mu.Unlock()

	t.owner.release()
	return nil
}

type waiter struct {
	label string
	ready chan *Token
}

// Mutex is an exclusive lock with a strict FIFO waiter queue. Exactly one
// Token is outstanding at a time; waiters are granted in arrival order, so
// no acquirer starves.
type Mutex struct {
	mu      sync.Mutex
	key     string
	locked  bool
	holder  string
	since   time.Time
	waiters []*waiter
}

// NewMutex creates a mutex. The key tags tokens and diagnostics; it may be
// empty for standalone use.
func NewMutex(key string) *Mutex {
	return &Mutex{key: key}
}

func (m *Mutex) newToken(label string) *Token {
	return &Token{
		id:         ulid.Make().String(),
		key:        m.key,
		label:      label,
		acquiredAt: time.Now(),
		owner:      m,
	}
}

// Acquire blocks until the caller holds the mutex or ctx is cancelled. The
// label identifies the holder in diagnostics.
func (m *Mutex) Acquire(ctx context.Context, label string) (*Token, error) {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.holder = label
		m.since = time.Now()
		tok := m.newToken(label)
		m.mu.Unlock()
		return tok, nil
	}

	w := &waiter{label: label, ready: make(chan *Token, 1)}
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case tok := <-w.ready:
		return tok, nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, queued := range m.waiters {
			if queued == w {
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				m.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		m.mu.Unlock()
		// The lock was handed to us between cancellation and dequeue; take
		// the token and give it straight back so the queue keeps moving.
		tok := <-w.ready
		_ = tok.Release()
		return nil, ctx.Err()
	}
}

// release unlocks or hands ownership to the next queued waiter.
func (m *Mutex) release() {
	m.mu.Lock()
	if len(m.waiters) > 0 {
		next := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.holder = next.label
		m.since = time.Now()
		tok := m.newToken(next.label)
		m.mu.Unlock()
		next.ready <- tok
		return
	}
	m.locked = false
	m.holder = ""
	m.since = time.Time{}
	m.mu.Unlock()
}

// RunExclusive acquires the mutex, runs fn, and unconditionally releases,
// even when fn returns an error or panics. Panics in fn are converted into
// errors so the mutex is never left locked.
func (m *Mutex) RunExclusive(ctx context.Context, label string, fn func() error) (err error) {
	tok, acquireErr := m.Acquire(ctx, label)
	if acquireErr != nil {
		return acquireErr
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lock: critical section panic: %v", r)
		}
		if relErr := tok.Release(); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return fn()
}

// IsLocked reports whether the mutex is currently held.
func (m *Mutex) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// QueueLength returns the number of queued waiters.
func (m *Mutex) QueueLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

// Holder returns the label of the current holder, if any.
func (m *Mutex) Holder() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.locked {
		return "", false
	}
	return m.holder, true
}

// LockDuration returns how long the current holder has held the mutex.
func (m *Mutex) LockDuration() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.locked {
		return 0, false
	}
	return time.Since(m.since), true
}
