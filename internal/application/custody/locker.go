package custody

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// AdvanceLocker serializes mutations of a single advance.
// Lock blocks until the advance is free or ctx is done; the returned func releases it.
type AdvanceLocker interface {
	Lock(ctx context.Context, advanceID uuid.UUID) (unlock func(), err error)
}

// LocalAdvanceLocker is an in-process per-advance mutex.
type LocalAdvanceLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocalAdvanceLocker creates an empty in-process locker
func NewLocalAdvanceLocker() *LocalAdvanceLocker {
	return &LocalAdvanceLocker{slots: make(map[uuid.UUID]*lockSlot)}
}

// Lock acquires the advance's slot, honouring ctx cancellation
func (l *LocalAdvanceLocker) Lock(ctx context.Context, advanceID uuid.UUID) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[advanceID]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[advanceID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.release(advanceID, slot)
			})
		}, nil
	case <-ctx.Done():
		l.release(advanceID, slot)
		return nil, ctx.Err()
	}
}

func (l *LocalAdvanceLocker) release(advanceID uuid.UUID, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, advanceID)
	}
}

// held returns how many callers hold or wait for advanceID
func (l *LocalAdvanceLocker) held(advanceID uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slot, ok := l.slots[advanceID]; ok {
		return slot.refs
	}
	return 0
}

var _ AdvanceLocker = (*LocalAdvanceLocker)(nil)
