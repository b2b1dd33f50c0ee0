// Package guard serializes mutating work per user.
//
// The store's uniqueness constraint is the authority on running intervals;
// the guard keeps same-user operations from interleaving inside this process
// so broadcasts leave in the order transitions were accepted.
package guard

import (
	"context"
	"sync"
)

// Guard hands out one exclusive region per user. Entries exist only while a
// holder or waiter references them.
type Guard struct {
	mu    sync.Mutex
	slots map[int64]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

// New constructs an empty Guard.
func New() *Guard {
	return &Guard{slots: make(map[int64]*slot)}
}

// Lock blocks until the caller owns userID's region or ctx is done. The
// returned unlock func is safe to call more than once.
func (g *Guard) Lock(ctx context.Context, userID int64) (func(), error) {
	g.mu.Lock()
	s, ok := g.slots[userID]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		g.slots[userID] = s
	}
	s.refs++
	g.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		g.release(userID, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.sem
			g.release(userID, s)
		})
	}, nil
}

func (g *Guard) release(userID int64, s *slot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(g.slots, userID)
	}
}

// Len reports how many users currently hold or wait on a region.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.slots)
}
