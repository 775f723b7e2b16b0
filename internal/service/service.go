package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guilherme-santos/eventsync/internal"
	"github.com/guilherme-santos/eventsync/internal/syncer"
)

const DefaultReadSyncTimeout = 3 * time.Second

type EventStore interface {
	Event(_ context.Context, id string) (*internal.Event, error)
	EventsByOwner(_ context.Context, ownerKey string, _ internal.Range) ([]*internal.Event, error)
	SaveEvent(context.Context, *internal.Event) error
	DeleteEvent(_ context.Context, ownerKey, id string) (bool, error)
}

type LinkageStore interface {
	Linkage(_ context.Context, ownerKey string) (*internal.Linkage, error)
}

type Syncer interface {
	Sync(_ context.Context, ownerKey string) (*syncer.Result, error)
	Trigger(ownerKey string) bool
}

type Dispatcher interface {
	DispatchCreate(_ context.Context, ownerKey string, _ *internal.Event) bool
	DispatchUpdate(_ context.Context, ownerKey, id string, _ *internal.EventRequest) bool
	DispatchDelete(_ context.Context, ownerKey, id string) bool
}

// EventList is what a read returns. Stale is set when the remote refresh
// failed and the events are whatever was stored locally.
type EventList struct {
	Events []*internal.Event `json:"events"`
	Stale  bool              `json:"stale"`
}

// EventService is the owner-facing entry point: local writes happen
// synchronously, remote propagation in the background.
type EventService struct {
	logger     *zap.Logger
	events     EventStore
	linkages   LinkageStore
	syncer     Syncer
	dispatcher Dispatcher
	notifier   syncer.Notifier

	// Location is the zone for requests that do not name one.
	Location *time.Location
	// ReadSyncTimeout bounds the refresh done before a read. Zero refreshes
	// in the background instead.
	ReadSyncTimeout time.Duration

	now   func() time.Time
	newID func() string
}

func New(logger *zap.Logger, events EventStore, linkages LinkageStore, s Syncer, d Dispatcher, notifier syncer.Notifier) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = syncer.NotifierFunc(func() {})
	}
	return &EventService{
		logger:          logger,
		events:          events,
		linkages:        linkages,
		syncer:          s,
		dispatcher:      d,
		notifier:        notifier,
		Location:        time.UTC,
		ReadSyncTimeout: DefaultReadSyncTimeout,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

func (s *EventService) List(ctx context.Context, ownerKey string, r internal.Range) (*EventList, error) {
	stale := !s.refresh(ctx, ownerKey)

	events, err := s.events.EventsByOwner(ctx, ownerKey, r)
	if err != nil {
		return nil, err
	}
	return &EventList{
		Events: events,
		Stale:  stale,
	}, nil
}

// refresh pulls remote changes for linked owners. It reports false when a
// foreground refresh failed.
func (s *EventService) refresh(ctx context.Context, ownerKey string) bool {
	_, err := s.linkages.Linkage(ctx, ownerKey)
	if errors.Is(err, internal.ErrNotLinked) {
		return true
	}
	if err != nil {
		s.logger.Warn("unable to load linkage", internal.OwnerField(ownerKey), zap.Error(err))
		return false
	}

	if s.ReadSyncTimeout <= 0 {
		s.syncer.Trigger(ownerKey)
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, s.ReadSyncTimeout)
	defer cancel()
	if _, err := s.syncer.Sync(ctx, ownerKey); err != nil {
		s.logger.Warn("refresh before read failed, serving local events",
			internal.OwnerField(ownerKey), zap.Error(err))
		return false
	}
	return true
}

func (s *EventService) Get(ctx context.Context, ownerKey, id string) (*internal.Event, error) {
	return s.owned(ctx, ownerKey, id)
}

func (s *EventService) Create(ctx context.Context, ownerKey string, req *internal.EventRequest) (*internal.Event, error) {
	e, err := internal.NewEvent(s.newID(), ownerKey, req, s.Location, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.events.SaveEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("service: saving event: %w", err)
	}
	s.dispatcher.DispatchCreate(ctx, ownerKey, e)
	s.notifier.NotifyChanged()
	return e, nil
}

func (s *EventService) Update(ctx context.Context, ownerKey, id string, req *internal.EventRequest) (*internal.Event, error) {
	current, err := s.owned(ctx, ownerKey, id)
	if err != nil {
		return nil, err
	}
	updated, err := current.Apply(req, s.Location)
	if err != nil {
		return nil, err
	}
	if err := s.events.SaveEvent(ctx, updated); err != nil {
		return nil, fmt.Errorf("service: saving event: %w", err)
	}
	s.dispatcher.DispatchUpdate(ctx, ownerKey, id, req)
	s.notifier.NotifyChanged()
	return updated, nil
}

func (s *EventService) Delete(ctx context.Context, ownerKey, id string) error {
	if _, err := s.owned(ctx, ownerKey, id); err != nil {
		return err
	}
	removed, err := s.events.DeleteEvent(ctx, ownerKey, id)
	if err != nil {
		return fmt.Errorf("service: deleting event: %w", err)
	}
	if !removed {
		return internal.ErrNotFound
	}
	s.dispatcher.DispatchDelete(ctx, ownerKey, id)
	s.notifier.NotifyChanged()
	return nil
}

func (s *EventService) owned(ctx context.Context, ownerKey, id string) (*internal.Event, error) {
	e, err := s.events.Event(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.OwnerKey != ownerKey {
		return nil, internal.ErrNotOwner
	}
	return e, nil
}
