package internal

import (
	"context"
)

type Mux interface {
	Get(platform string) (Provider, error)
}

// Provider is a remote calendar. Every call that reaches the network takes
// the linkage whose credentials it should use.
type Provider interface {
	ListAll(context.Context, *Linkage) (Iterator, error)
	ListDelta(_ context.Context, _ *Linkage, cursor string) (Iterator, error)
	CreateEvent(context.Context, *Linkage, *Event) (*Event, error)
	UpdateEvent(_ context.Context, _ *Linkage, remoteID string, _ *EventRequest) (*Event, error)
	DeleteEvent(_ context.Context, _ *Linkage, remoteID string) error
	Watch(_ context.Context, _ *Linkage, channelID, address, token string) (*Channel, error)
	StopChannel(_ context.Context, _ *Linkage, channelID, resourceID string) error
}

type Iterator interface {
	Next() bool
	Change() *Change
	// Cursor is only meaningful once Next returned false without error.
	Cursor() string
	Err() error
}

// Collect drains it into a slice.
func Collect(it Iterator) ([]*Change, string, error) {
	var changes []*Change
	for it.Next() {
		changes = append(changes, it.Change())
	}
	if err := it.Err(); err != nil {
		return nil, "", err
	}
	return changes, it.Cursor(), nil
}
