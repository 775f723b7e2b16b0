package syncer

import (
	"context"
	"sync"
)

// lanes is a keyed mutex: work for one owner is serialized while different
// owners proceed in parallel.
type lanes struct {
	mu sync.Mutex
	m  map[string]*lane
}

type lane struct {
	sem  chan struct{}
	refs int
}

func newLanes() *lanes {
	return &lanes{m: make(map[string]*lane)}
}

// acquire blocks until key is free or ctx is done.
func (l *lanes) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ln, ok := l.m[key]
	if !ok {
		ln = &lane{sem: make(chan struct{}, 1)}
		l.m[key] = ln
	}
	ln.refs++
	l.mu.Unlock()

	select {
	case ln.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-ln.sem
				l.release(key, ln)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, ln)
		return nil, ctx.Err()
	}
}

func (l *lanes) release(key string, ln *lane) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln.refs--
	if ln.refs == 0 {
		delete(l.m, key)
	}
}
