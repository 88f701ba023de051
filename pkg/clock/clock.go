// Package clock abstracts time so polling loops can run against a fake in tests.
package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Clock reports the current time and blocks for a duration
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case
	Sleep(ctx context.Context, d time.Duration) error
	// WithDeadline returns a child of ctx that is cancelled once the clock reaches at
	WithDeadline(ctx context.Context, at time.Time) (context.Context, context.CancelFunc)
}

// Real is the wall clock
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (Real) WithDeadline(ctx context.Context, at time.Time) (context.Context, context.CancelFunc) {
	return context.WithDeadline(ctx, at)
}

// Fake advances instantly on Sleep. Deadlines registered with WithDeadline
// fire when Sleep or Advance moves the clock to them.
type Fake struct {
	mu        sync.Mutex
	now       time.Time
	sleeps    []time.Duration
	deadlines []*deadline
}

type deadline struct {
	at     time.Time
	cancel context.CancelCauseFunc
}

// NewFake starts a fake clock at start
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep returns early, with the clock at the deadline, when a deadline that
// falls inside the sleep cancels ctx. A deadline equal to the wake-up time
// fires after the sleep completes.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
	target := f.now.Add(d)
	for _, dl := range f.due(target, false) {
		f.now = dl.at
		dl.cancel(context.DeadlineExceeded)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	f.now = target
	f.fire(f.due(target, true))
	return nil
}

// Advance moves the clock forward without recording a sleep
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.fire(f.due(f.now, true))
}

// WithDeadline cancels the returned context when the fake clock reaches at
func (f *Fake) WithDeadline(ctx context.Context, at time.Time) (context.Context, context.CancelFunc) {
	child, cancel := context.WithCancelCause(ctx)
	dl := &deadline{at: at, cancel: cancel}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.now.Before(at) {
		cancel(context.DeadlineExceeded)
	} else {
		f.deadlines = append(f.deadlines, dl)
	}
	return child, func() {
		f.mu.Lock()
		f.remove(dl)
		f.mu.Unlock()
		cancel(context.Canceled)
	}
}

// due removes and returns pending deadlines before (or, if inclusive, at) t in time order
func (f *Fake) due(t time.Time, inclusive bool) []*deadline {
	var out, keep []*deadline
	for _, dl := range f.deadlines {
		if dl.at.Before(t) || (inclusive && dl.at.Equal(t)) {
			out = append(out, dl)
		} else {
			keep = append(keep, dl)
		}
	}
	f.deadlines = keep
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

func (f *Fake) fire(dls []*deadline) {
	for _, dl := range dls {
		dl.cancel(context.DeadlineExceeded)
	}
}

func (f *Fake) remove(dl *deadline) {
	for i, d := range f.deadlines {
		if d == dl {
			f.deadlines = append(f.deadlines[:i], f.deadlines[i+1:]...)
			return
		}
	}
}

// Sleeps returns every duration passed to Sleep
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}
