package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/guilherme-santos/eventsync/internal"
)

type (
	Mux     = internal.Mux
	Event   = internal.Event
	Linkage = internal.Linkage
)

type EventStore interface {
	Event(_ context.Context, id string) (*Event, error)
	SaveEvent(context.Context, *Event) error
	DeleteEvent(_ context.Context, ownerKey, id string) (bool, error)
	ReplaceEvents(_ context.Context, ownerKey string, _ []*Event) (skipped []string, _ error)
	RekeyEvent(_ context.Context, oldID string, _ *Event) error
	Colors(_ context.Context, ownerKey string, ids []string) (map[string]string, error)
	OwnerColors(_ context.Context, ownerKey string) (map[string]string, error)
}

type LinkageStore interface {
	Linkage(_ context.Context, ownerKey string) (*Linkage, error)
	LinkageByChannel(_ context.Context, channelID string) (*Linkage, error)
	Linkages(context.Context) ([]*Linkage, error)
	SaveCursor(_ context.Context, ownerKey, cursor string) error
	SaveChannel(_ context.Context, ownerKey string, _ *internal.Channel) error
}

// Notifier is told that an owner's events changed. It carries no payload;
// clients re-read what they need.
type Notifier interface {
	NotifyChanged()
}

type NotifierFunc func()

func (f NotifierFunc) NotifyChanged() { f() }

type nopNotifier struct{}

func (nopNotifier) NotifyChanged() {}

type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

type State string

const (
	StateUnsynced    State = "unsynced"
	StateIncremental State = "incremental"
	StateResyncing   State = "resyncing"
)

// Result summarizes one sync run.
type Result struct {
	Mode     Mode
	Upserted int
	Deleted  int
	Cursor   string
}

func (r Result) String() string {
	return fmt.Sprintf("%s sync: %d upserted, %d deleted", r.Mode, r.Upserted, r.Deleted)
}

// Syncer pulls remote changes into the local store. Runs for the same owner
// never overlap.
type Syncer struct {
	logger     *zap.Logger
	mux        Mux
	linkages   LinkageStore
	reconciler *Reconciler
	notifier   Notifier
	pool       *Pool
	lanes      *lanes

	mu        sync.Mutex
	resyncing map[string]bool
}

func New(logger *zap.Logger, providers Mux, events EventStore, linkages LinkageStore, notifier Notifier, pool *Pool) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Syncer{
		logger:     logger,
		mux:        providers,
		linkages:   linkages,
		reconciler: NewReconciler(logger, events),
		notifier:   notifier,
		pool:       pool,
		lanes:      newLanes(),
		resyncing:  make(map[string]bool),
	}
}

// Sync brings the owner's local events up to date. Without a cursor, or
// when the provider rejects it, the whole calendar is fetched again.
func (s *Syncer) Sync(ctx context.Context, ownerKey string) (*Result, error) {
	release, err := s.lanes.acquire(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	defer release()

	l, provider, err := s.load(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	if l.SyncCursor == "" {
		return s.fullResync(ctx, provider, l)
	}

	res, err := s.incremental(ctx, provider, l)
	if errors.Is(err, internal.ErrCursorExpired) {
		s.logger.Info("sync cursor expired, running full resync", internal.OwnerField(ownerKey))
		if err := s.linkages.SaveCursor(ctx, ownerKey, ""); err != nil {
			return nil, fmt.Errorf("syncer: clearing cursor: %w", err)
		}
		l.SyncCursor = ""
		return s.fullResync(ctx, provider, l)
	}
	return res, err
}

// FullResync replaces the owner's events with the remote calendar.
func (s *Syncer) FullResync(ctx context.Context, ownerKey string) (*Result, error) {
	release, err := s.lanes.acquire(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	defer release()

	l, provider, err := s.load(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	return s.fullResync(ctx, provider, l)
}

// Trigger schedules Sync on the pool and returns immediately.
func (s *Syncer) Trigger(ownerKey string) bool {
	return s.enqueue("sync", ownerKey, s.Sync)
}

// TriggerResync schedules FullResync on the pool.
func (s *Syncer) TriggerResync(ownerKey string) bool {
	return s.enqueue("resync", ownerKey, s.FullResync)
}

func (s *Syncer) enqueue(name, ownerKey string, fn func(context.Context, string) (*Result, error)) bool {
	if s.pool == nil {
		return false
	}
	return s.pool.TryEnqueue(Task{
		Name:  name,
		Owner: ownerKey,
		Run: func(ctx context.Context) error {
			res, err := fn(ctx, ownerKey)
			if err != nil {
				return err
			}
			s.logger.Debug(res.String(), internal.OwnerField(ownerKey))
			return nil
		},
	})
}

// SyncAll syncs every linked owner one after the other. A failing owner
// does not stop the others.
func (s *Syncer) SyncAll(ctx context.Context) error {
	linkages, err := s.linkages.Linkages(ctx)
	if err != nil {
		return fmt.Errorf("syncer: listing linkages: %w", err)
	}
	var errs []error
	for _, l := range linkages {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.Sync(ctx, l.OwnerKey)
		if err != nil {
			s.logger.Warn("sync failed", internal.OwnerField(l.OwnerKey), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", l, err))
			continue
		}
		s.logger.Info(res.String(), internal.OwnerField(l.OwnerKey))
	}
	return errors.Join(errs...)
}

func (s *Syncer) State(ctx context.Context, ownerKey string) (State, error) {
	s.mu.Lock()
	resyncing := s.resyncing[ownerKey]
	s.mu.Unlock()
	if resyncing {
		return StateResyncing, nil
	}

	l, err := s.linkages.Linkage(ctx, ownerKey)
	if err != nil {
		return "", err
	}
	if l.SyncCursor == "" {
		return StateUnsynced, nil
	}
	return StateIncremental, nil
}

func (s *Syncer) load(ctx context.Context, ownerKey string) (*Linkage, internal.Provider, error) {
	l, err := s.linkages.Linkage(ctx, ownerKey)
	if err != nil {
		return nil, nil, err
	}
	provider, err := s.mux.Get(l.Provider)
	if err != nil {
		return nil, nil, fmt.Errorf("syncer: %w", err)
	}
	return l, provider, nil
}

func (s *Syncer) incremental(ctx context.Context, provider internal.Provider, l *Linkage) (*Result, error) {
	it, err := provider.ListDelta(ctx, l, l.SyncCursor)
	if err != nil {
		return nil, err
	}
	changes, cursor, err := internal.Collect(it)
	if err != nil {
		return nil, err
	}

	upserted, deleted, err := s.reconciler.ApplyDelta(ctx, l.OwnerKey, changes)
	if err != nil {
		return nil, err
	}
	// The cursor only moves once the batch is stored.
	if cursor != "" && cursor != l.SyncCursor {
		if err := s.linkages.SaveCursor(ctx, l.OwnerKey, cursor); err != nil {
			return nil, fmt.Errorf("syncer: saving cursor: %w", err)
		}
	}
	if len(changes) > 0 {
		s.notifier.NotifyChanged()
	}
	return &Result{
		Mode:     ModeIncremental,
		Upserted: upserted,
		Deleted:  deleted,
		Cursor:   cursor,
	}, nil
}

func (s *Syncer) fullResync(ctx context.Context, provider internal.Provider, l *Linkage) (*Result, error) {
	s.setResyncing(l.OwnerKey, true)
	defer s.setResyncing(l.OwnerKey, false)

	it, err := provider.ListAll(ctx, l)
	if err != nil {
		return nil, err
	}
	changes, cursor, err := internal.Collect(it)
	if err != nil {
		return nil, err
	}

	events := make([]*Event, 0, len(changes))
	for _, c := range changes {
		if !c.Cancelled && c.Event != nil {
			events = append(events, c.Event)
		}
	}
	n, err := s.reconciler.ReplaceAll(ctx, l.OwnerKey, events)
	if err != nil {
		return nil, err
	}
	if cursor != "" {
		if err := s.linkages.SaveCursor(ctx, l.OwnerKey, cursor); err != nil {
			return nil, fmt.Errorf("syncer: saving cursor: %w", err)
		}
	} else {
		s.logger.Debug("provider returned no sync cursor, next sync is full", internal.OwnerField(l.OwnerKey))
	}
	s.notifier.NotifyChanged()
	return &Result{
		Mode:     ModeFull,
		Upserted: n,
		Cursor:   cursor,
	}, nil
}

func (s *Syncer) setResyncing(ownerKey string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v {
		s.resyncing[ownerKey] = true
		return
	}
	delete(s.resyncing, ownerKey)
}
