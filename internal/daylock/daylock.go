// Package daylock serialises shift recomputation per calendar day so two
// writers never interleave their read-aggregate-write of the same shift.
package daylock

import (
	"context"
	"errors"
	"sync"
	"time"

	"lunamatcha/backend/internal/bucket"
)

var ErrLockTimeout = errors.New("day lock not acquired")

// Locker acquires the lock for one calendar day. The returned release func
// must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, day time.Time) (release func(), err error)
}

func dayKey(day time.Time) string {
	return day.Format(bucket.DateLayout)
}

// Local is an in-process Locker, enough for a single server instance.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) Lock(ctx context.Context, day time.Time) (func(), error) {
	key := dayKey(day)

	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, s)
		return nil, errors.Join(ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.sem
			l.unref(key, s)
		})
	}, nil
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
