package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// SessionLocker serializes capacity-affecting work per session. Within one
// process a keyed semaphore admits one caller per session; across replicas the
// callback runs in a transaction holding the session row lock.
type SessionLocker struct {
	db      *sqlx.DB
	timeout time.Duration

	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	sem  chan struct{}
	refs int
}

// NewSessionLocker builds a locker. A nil db yields in-process locking only.
func NewSessionLocker(db *sqlx.DB, timeout time.Duration) *SessionLocker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SessionLocker{db: db, timeout: timeout, slots: make(map[string]*lockSlot)}
}

// WithSessionLock runs fn while holding the session's lock. fn receives the
// transaction to run its reads and writes on, or nil when no database is
// configured. The transaction commits only when fn returns nil; fn's error is
// returned unchanged.
func (l *SessionLocker) WithSessionLock(ctx context.Context, sessionID string, fn func(exec sqlx.ExtContext) error) (err error) {
	lockCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	slot := l.acquireSlot(sessionID)
	defer l.releaseSlot(sessionID, slot)

	select {
	case slot.sem <- struct{}{}:
	case <-lockCtx.Done():
		return fmt.Errorf("acquire session lock %s: %w", sessionID, lockCtx.Err())
	}
	defer func() { <-slot.sem }()

	if l.db == nil {
		return fn(nil)
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked string
	if err = tx.GetContext(lockCtx, &locked, `SELECT id FROM class_sessions WHERE id = $1 FOR UPDATE`, sessionID); err != nil && err != sql.ErrNoRows {
		err = fmt.Errorf("lock session row %s: %w", sessionID, err)
		return err
	}

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("commit session transaction: %w", err)
		return err
	}
	return nil
}

func (l *SessionLocker) acquireSlot(sessionID string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[sessionID]
	if !ok {
		slot = &lockSlot{sem: make(chan struct{}, 1)}
		l.slots[sessionID] = slot
	}
	slot.refs++
	return slot
}

func (l *SessionLocker) releaseSlot(sessionID string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, sessionID)
	}
}
