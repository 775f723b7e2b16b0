package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guilherme-santos/eventsync/calendar"
	"github.com/guilherme-santos/eventsync/internal"
	"github.com/guilherme-santos/eventsync/internal/sqlstore"
)

const fakePlatform = "fake"

type sliceIterator struct {
	changes []*internal.Change
	pos     int
	cursor  string
	err     error
}

func (it *sliceIterator) Next() bool {
	if it.err != nil || it.pos >= len(it.changes) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Change() *internal.Change { return it.changes[it.pos-1] }
func (it *sliceIterator) Cursor() string           { return it.cursor }
func (it *sliceIterator) Err() error               { return it.err }

// fakeProvider keeps a remote calendar in memory.
type fakeProvider struct {
	mu        sync.Mutex
	remote    map[string]*internal.Event
	delta     []*internal.Change
	cursor    string
	expired   bool
	listErr   error
	createErr error
	watchErr  error
	onCreate  func()
	nextID    int
	calls     []string
	stopped   []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{remote: make(map[string]*internal.Event)}
}

func (p *fakeProvider) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *fakeProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakeProvider) put(e *internal.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *e
	cp.Color = ""
	p.remote[e.ID] = &cp
}

func (p *fakeProvider) setDelta(cursor string, changes ...*internal.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delta = changes
	p.cursor = cursor
}

func (p *fakeProvider) ListAll(_ context.Context, l *internal.Linkage) (internal.Iterator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("listAll")
	if p.listErr != nil {
		return &sliceIterator{err: p.listErr}, nil
	}

	var changes []*internal.Change
	for _, e := range p.remote {
		cp := *e
		cp.OwnerKey = l.OwnerKey
		changes = append(changes, &internal.Change{ID: e.ID, Event: &cp})
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Event.StartMs < changes[j].Event.StartMs
	})
	return &sliceIterator{changes: changes, cursor: p.cursor}, nil
}

func (p *fakeProvider) ListDelta(_ context.Context, l *internal.Linkage, cursor string) (internal.Iterator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("listDelta:" + cursor)
	if p.expired {
		p.expired = false
		return &sliceIterator{err: fmt.Errorf("fake: %w", internal.ErrCursorExpired)}, nil
	}
	if p.listErr != nil {
		return &sliceIterator{err: p.listErr}, nil
	}
	return &sliceIterator{changes: p.delta, cursor: p.cursor}, nil
}

func (p *fakeProvider) CreateEvent(_ context.Context, l *internal.Linkage, e *internal.Event) (*internal.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("create")
	if p.createErr != nil {
		return nil, p.createErr
	}
	if p.onCreate != nil {
		p.onCreate()
	}
	p.nextID++
	cp := *e
	cp.ID = fmt.Sprintf("remote-%d", p.nextID)
	cp.Color = ""
	p.remote[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (p *fakeProvider) UpdateEvent(_ context.Context, l *internal.Linkage, id string, req *internal.EventRequest) (*internal.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("update:" + id)
	current, ok := p.remote[id]
	if !ok {
		return nil, fmt.Errorf("fake: %w", internal.ErrRemoteNotFound)
	}
	merged, err := current.Apply(req, time.UTC)
	if err != nil {
		return nil, err
	}
	merged.Color = ""
	p.remote[id] = merged
	out := *merged
	return &out, nil
}

func (p *fakeProvider) DeleteEvent(_ context.Context, l *internal.Linkage, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("delete:" + id)
	delete(p.remote, id)
	return nil
}

func (p *fakeProvider) Watch(_ context.Context, l *internal.Linkage, channelID, address, token string) (*internal.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("watch:" + address + ":" + token)
	if p.watchErr != nil {
		return nil, p.watchErr
	}
	return &internal.Channel{
		ID:         channelID,
		ResourceID: "res-" + channelID,
		Expiry:     time.Now().Add(time.Hour),
	}, nil
}

func (p *fakeProvider) StopChannel(_ context.Context, l *internal.Linkage, channelID, resourceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = append(p.stopped, channelID)
	return nil
}

type counter struct{ n int32 }

func (c *counter) NotifyChanged() { atomic.AddInt32(&c.n, 1) }
func (c *counter) Count() int     { return int(atomic.LoadInt32(&c.n)) }

type fixture struct {
	store      *sqlstore.Storage
	provider   *fakeProvider
	pool       *Pool
	notifier   *counter
	syncer     *Syncer
	dispatcher *Dispatcher
	watcher    *Watcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlstore.Open(sqlstore.SQLiteDriver, filepath.Join(t.TempDir(), "eventsync.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	provider := newFakeProvider()
	mux := calendar.NewMux()
	mux.Register(fakePlatform, provider)

	pool := NewPool(nil, 2, 16, 5*time.Second)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	notifier := &counter{}
	s := New(nil, mux, store, store, notifier, pool)
	return &fixture{
		store:      store,
		provider:   provider,
		pool:       pool,
		notifier:   notifier,
		syncer:     s,
		dispatcher: NewDispatcher(nil, mux, store, store, s, notifier, pool),
		watcher:    NewWatcher(nil, mux, store, s, "https://example.com/"),
	}
}

func (f *fixture) link(t *testing.T, ownerKey, cursor string) {
	t.Helper()
	l := &internal.Linkage{OwnerKey: ownerKey, Provider: fakePlatform, SyncCursor: cursor}
	if err := f.store.SaveLinkage(context.Background(), l); err != nil {
		t.Fatalf("save linkage: %v", err)
	}
}

func (f *fixture) localIDs(t *testing.T, ownerKey string) []string {
	t.Helper()
	events, err := f.store.EventsByOwner(context.Background(), ownerKey, internal.Range{})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}

func remoteEvent(id string, hour int) *internal.Event {
	e := &internal.Event{ID: id, Title: "event " + id}
	start := time.Date(2024, 5, 1, hour, 0, 0, 0, time.UTC)
	e.SetTimed(start, start.Add(time.Hour), time.UTC)
	return e
}
