package syncer

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/guilherme-santos/eventsync/internal"
)

// Dispatcher pushes local mutations to the owner's remote calendar in the
// background. Remote failures never reach the caller; the next sync
// converges both sides.
type Dispatcher struct {
	logger   *zap.Logger
	mux      Mux
	events   EventStore
	linkages LinkageStore
	syncer   *Syncer
	notifier Notifier
	pool     *Pool

	// creating holds the local ids of creates in flight, set to true once
	// the owner deletes the event.
	mu       sync.Mutex
	creating map[string]bool
}

func NewDispatcher(logger *zap.Logger, providers Mux, events EventStore, linkages LinkageStore, syncer *Syncer, notifier Notifier, pool *Pool) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Dispatcher{
		logger:   logger,
		mux:      providers,
		events:   events,
		linkages: linkages,
		syncer:   syncer,
		notifier: notifier,
		pool:     pool,
		creating: make(map[string]bool),
	}
}

// DispatchCreate creates e remotely and re-keys the local copy to the id the
// provider assigned. It returns false when nothing was scheduled.
//
// A missing local row does not mean the owner deleted the event: a full
// resync drops rows the remote does not know yet. Only a DispatchDelete for
// the local id, received while the create is in flight, removes the remote
// copy again.
func (d *Dispatcher) DispatchCreate(ctx context.Context, ownerKey string, e *Event) bool {
	local := *e
	d.beginCreate(local.ID)
	ok := d.dispatch(ctx, "create", ownerKey, func(ctx context.Context, provider internal.Provider, l *Linkage) error {
		defer d.endCreate(local.ID)

		remote, err := provider.CreateEvent(ctx, l, &local)
		if err != nil {
			return err
		}
		remote.OwnerKey = ownerKey

		if !d.deletedWhileCreating(local.ID) {
			current, err := d.events.Event(ctx, local.ID)
			switch {
			case errors.Is(err, internal.ErrNotFound):
				d.logger.Info("local event dropped by a resync, restoring remote copy",
					internal.OwnerField(ownerKey), internal.EventField(local.ID))
				current = &local
			case err != nil:
				return err
			}
			remote.Color = current.Color
			if err := d.events.RekeyEvent(ctx, local.ID, remote); err != nil {
				return err
			}
			if !d.deletedWhileCreating(local.ID) {
				d.logger.Debug("event linked to remote",
					internal.OwnerField(ownerKey), internal.EventField(local.ID), zap.String("remote_id", remote.ID))
				d.notifier.NotifyChanged()
				return nil
			}
		}

		d.logger.Info("event deleted while being created, removing remote copy",
			internal.OwnerField(ownerKey), internal.EventField(local.ID), zap.String("remote_id", remote.ID))
		removed, err := d.events.DeleteEvent(ctx, ownerKey, remote.ID)
		if err != nil {
			return err
		}
		if removed {
			d.notifier.NotifyChanged()
		}
		return provider.DeleteEvent(ctx, l, remote.ID)
	})
	if !ok {
		d.endCreate(local.ID)
	}
	return ok
}

// DispatchUpdate merges req into the remote event. When the remote event is
// gone a full resync is scheduled instead.
func (d *Dispatcher) DispatchUpdate(ctx context.Context, ownerKey, id string, req *internal.EventRequest) bool {
	return d.dispatch(ctx, "update", ownerKey, func(ctx context.Context, provider internal.Provider, l *Linkage) error {
		remote, err := provider.UpdateEvent(ctx, l, id, req)
		if errors.Is(err, internal.ErrRemoteNotFound) {
			d.logger.Info("remote event not found, scheduling resync",
				internal.OwnerField(ownerKey), internal.EventField(id))
			d.syncer.TriggerResync(ownerKey)
			return nil
		}
		if err != nil {
			return err
		}

		remote.OwnerKey = ownerKey
		if current, err := d.events.Event(ctx, remote.ID); err == nil {
			remote.Color = current.Color
		}
		if err := d.events.SaveEvent(ctx, remote); err != nil {
			return err
		}
		d.notifier.NotifyChanged()
		return nil
	})
}

// DispatchDelete removes the remote event. The local row is already gone.
// When id is a local id whose create is still in flight, the create task
// removes the remote copy once it exists.
func (d *Dispatcher) DispatchDelete(ctx context.Context, ownerKey, id string) bool {
	if d.markDeleted(id) {
		return true
	}
	return d.dispatch(ctx, "delete", ownerKey, func(ctx context.Context, provider internal.Provider, l *Linkage) error {
		return provider.DeleteEvent(ctx, l, id)
	})
}

func (d *Dispatcher) beginCreate(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creating[id] = false
}

func (d *Dispatcher) endCreate(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.creating, id)
}

func (d *Dispatcher) markDeleted(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.creating[id]; !ok {
		return false
	}
	d.creating[id] = true
	return true
}

func (d *Dispatcher) deletedWhileCreating(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creating[id]
}

func (d *Dispatcher) dispatch(ctx context.Context, name, ownerKey string, fn func(context.Context, internal.Provider, *Linkage) error) bool {
	l, err := d.linkages.Linkage(ctx, ownerKey)
	if errors.Is(err, internal.ErrNotLinked) {
		return false
	}
	if err != nil {
		d.logger.Warn("unable to load linkage", internal.OwnerField(ownerKey), zap.Error(err))
		return false
	}
	provider, err := d.mux.Get(l.Provider)
	if err != nil {
		d.logger.Warn("unable to load provider", internal.OwnerField(ownerKey), zap.Error(err))
		return false
	}
	if d.pool == nil {
		return false
	}
	return d.pool.TryEnqueue(Task{
		Name:  name,
		Owner: ownerKey,
		Run: func(ctx context.Context) error {
			return fn(ctx, provider, l)
		},
	})
}
