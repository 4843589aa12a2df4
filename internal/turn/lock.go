package turn

import (
	"context"
	"sync"
)

// DeviceLock grants exclusive audio device access in arrival order.
type DeviceLock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
	onQueue func(int)
}

// NewDeviceLock returns an unlocked lock. onQueue, if set, is told the queue
// depth whenever it changes.
func NewDeviceLock(onQueue func(int)) *DeviceLock {
	return &DeviceLock{onQueue: onQueue}
}

// Lock blocks until the caller owns the device or ctx is done.
func (l *DeviceLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held && len(l.waiters) == 0 {
		l.held = true
		l.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	l.waiters = append(l.waiters, ch)
	l.report()
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, w := range l.waiters {
			if w == ch {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.report()
				return ctx.Err()
			}
		}
		// ownership was handed over while we were giving up; pass it on
		l.releaseLocked()
		return ctx.Err()
	}
}

// Unlock hands the device to the oldest waiter, if any.
func (l *DeviceLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		panic("turn: unlock of unlocked DeviceLock")
	}
	l.releaseLocked()
}

func (l *DeviceLock) releaseLocked() {
	if len(l.waiters) == 0 {
		l.held = false
		return
	}
	next := l.waiters[0]
	l.waiters = l.waiters[1:]
	l.report()
	close(next)
}

func (l *DeviceLock) report() {
	if l.onQueue != nil {
		l.onQueue(len(l.waiters))
	}
}
