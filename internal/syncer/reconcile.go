package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/guilherme-santos/eventsync/internal"
)

// Reconciler applies remote changes to the local store. Colors only exist
// locally, so they are captured before a write and put back afterwards.
// Applying the same changes twice leaves the store unchanged.
type Reconciler struct {
	logger *zap.Logger
	events EventStore
}

func NewReconciler(logger *zap.Logger, events EventStore) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		logger: logger,
		events: events,
	}
}

func (r *Reconciler) ApplyDelta(ctx context.Context, ownerKey string, changes []*internal.Change) (upserted, deleted int, err error) {
	if len(changes) == 0 {
		return 0, 0, nil
	}
	ids := make([]string, 0, len(changes))
	for _, c := range changes {
		ids = append(ids, c.ID)
	}
	colors, err := r.events.Colors(ctx, ownerKey, ids)
	if err != nil {
		return 0, 0, fmt.Errorf("syncer: snapshotting colors: %w", err)
	}

	for _, c := range changes {
		if c.Cancelled {
			removed, err := r.events.DeleteEvent(ctx, ownerKey, c.ID)
			if err != nil {
				return upserted, deleted, err
			}
			if removed {
				deleted++
			}
			continue
		}

		e := withColor(ownerKey, c.Event, colors)
		err := r.events.SaveEvent(ctx, e)
		if errors.Is(err, internal.ErrNotOwner) {
			r.logger.Warn("remote event id belongs to another owner, skipping",
				internal.OwnerField(ownerKey), internal.EventField(e.ID))
			continue
		}
		if err != nil {
			return upserted, deleted, err
		}
		upserted++
	}
	return upserted, deleted, nil
}

// ReplaceAll swaps the owner's local events for events in one transaction.
func (r *Reconciler) ReplaceAll(ctx context.Context, ownerKey string, events []*Event) (int, error) {
	colors, err := r.events.OwnerColors(ctx, ownerKey)
	if err != nil {
		return 0, fmt.Errorf("syncer: snapshotting colors: %w", err)
	}

	replaced := make([]*Event, 0, len(events))
	for _, e := range events {
		replaced = append(replaced, withColor(ownerKey, e, colors))
	}
	skipped, err := r.events.ReplaceEvents(ctx, ownerKey, replaced)
	if err != nil {
		return 0, err
	}
	for _, id := range skipped {
		r.logger.Warn("remote event id belongs to another owner, skipping",
			internal.OwnerField(ownerKey), internal.EventField(id))
	}
	return len(replaced) - len(skipped), nil
}

func withColor(ownerKey string, e *Event, colors map[string]string) *Event {
	out := *e
	out.OwnerKey = ownerKey
	if out.Color == "" {
		out.Color = colors[out.ID]
	}
	return &out
}
