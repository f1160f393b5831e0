package scheduler

import (
	"sync"
	"time"
)

// Group tracks the outstanding timers of one owner. A timer leaves the group
// when it fires or when the group is stopped, whichever happens first, so a
// callback never runs twice and never runs after Stop.
type Group struct {
	sched Scheduler

	mu      sync.Mutex
	nextID  uint64
	timers  map[uint64]Timer
	stopped bool
}

// NewGroup creates an empty Group scheduling through sched.
func NewGroup(sched Scheduler) *Group {
	return &Group{
		sched:  sched,
		timers: make(map[uint64]Timer),
	}
}

// AfterFunc schedules f and tracks it. The returned cancel function removes
// and stops the timer; it reports whether the callback was still pending.
// Scheduling on a stopped group is a no-op.
func (g *Group) AfterFunc(d time.Duration, f func()) (cancel func() bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped {
		return func() bool { return false }
	}

	g.nextID++
	id := g.nextID
	g.timers[id] = g.sched.AfterFunc(d, func() {
		if !g.claim(id) {
			return
		}
		f()
	})

	return func() bool {
		g.mu.Lock()
		t, ok := g.timers[id]
		delete(g.timers, id)
		g.mu.Unlock()
		if !ok {
			return false
		}
		t.Stop()
		return true
	}
}

// claim removes id from the group and reports whether the caller owns the
// right to run its callback.
func (g *Group) claim(id uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped {
		return false
	}
	if _, ok := g.timers[id]; !ok {
		return false
	}
	delete(g.timers, id)
	return true
}

// Len returns the number of timers still pending.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}

// Stop stops every pending timer and refuses new ones. It returns the number
// of timers that were drained.
func (g *Group) Stop() int {
	g.mu.Lock()
	timers := g.timers
	g.timers = make(map[uint64]Timer)
	g.stopped = true
	g.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	return len(timers)
}

// Now returns the current time of the underlying scheduler.
func (g *Group) Now() time.Time {
	return g.sched.Now()
}
