package core

// limiter.go bounds the number of saves processed at once. When every slot
// is taken, new saves wait up to maxWait before failing with
// ErrTooManySaves. WaitForDrain supports graceful shutdown.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManySaves is returned when all save slots stay occupied for the
// whole wait. Clients should retry after a short delay.
var ErrTooManySaves = errors.New("too many concurrent saves, please try again later")

// Defaults for NewSaveLimiter.
const (
	DefaultMaxConcurrentSaves = 5
	DefaultMaxWaitTime        = 30 * time.Second
)

// SaveLimiter is a counting semaphore for save requests.
type SaveLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewSaveLimiter allows at most maxConcurrent saves at once. Non-positive
// arguments select the defaults.
func NewSaveLimiter(maxConcurrent int, maxWait time.Duration) *SaveLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSaves
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &SaveLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting at most maxWait. The caller must Release
// the slot when done.
func (l *SaveLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManySaves
	}
}

// Release frees a slot taken by Acquire.
func (l *SaveLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of saves holding a slot.
func (l *SaveLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// Available returns the number of free slots.
func (l *SaveLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until no save holds a slot or ctx is done.
func (l *SaveLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// SaveLimiterStatus is a snapshot of the limiter for health output.
type SaveLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *SaveLimiter) Status() SaveLimiterStatus {
	return SaveLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: cap(l.slots),
	}
}
