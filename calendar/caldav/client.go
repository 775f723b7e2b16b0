// Package caldav talks to CalDAV servers such as iCloud or Fastmail. CalDAV
// has neither sync tokens nor push channels here, so every sync of a CalDAV
// account is a full one.
package caldav

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guilherme-santos/eventsync/internal"
)

const (
	Platform       = "caldav"
	defaultTimeout = 30 * time.Second
)

var _ internal.Provider = (*Client)(nil)

// Client reaches one calendar collection. The linkage supplies the basic
// auth user (RemoteAccount) and password (Credentials.AccessToken).
type Client struct {
	Endpoint string
	// CalendarPath is the collection, e.g. "/123456/calendars/home/".
	CalendarPath string
	// Location is used for floating times.
	Location   *time.Location
	Logger     *zap.Logger
	HTTPClient *http.Client

	now   func() time.Time
	newID func() string
}

func NewClient(endpoint, calendarPath string) *Client {
	return &Client{
		Endpoint:     endpoint,
		CalendarPath: calendarPath,
		Location:     time.UTC,
		Logger:       zap.NewNop(),
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

func (c *Client) ListAll(ctx context.Context, l *internal.Linkage) (internal.Iterator, error) {
	client, err := c.dav(l)
	if err != nil {
		return nil, err
	}
	query := &caldav.CalendarQuery{
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{{Name: ical.CompEvent}},
		},
	}
	objects, err := client.QueryCalendar(ctx, c.CalendarPath, query)
	if err != nil {
		return nil, classify("listing events", err)
	}

	changes := make([]*internal.Change, 0, len(objects))
	for _, obj := range objects {
		if cancelled(obj.Data) {
			continue
		}
		e, err := ToCanonical(obj.Path, obj.Data, l.OwnerKey, c.location())
		if err != nil {
			c.logger().Warn("skipping malformed event",
				internal.OwnerField(l.OwnerKey), zap.String("path", obj.Path), zap.Error(err))
			continue
		}
		changes = append(changes, &internal.Change{ID: e.ID, Event: e})
	}
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Event.StartMs < changes[j].Event.StartMs
	})
	c.logger().Debug("listed events", internal.OwnerField(l.OwnerKey), zap.Int("count", len(changes)))
	return &sliceIterator{changes: changes}, nil
}

// ListDelta always asks for a full resync.
func (c *Client) ListDelta(ctx context.Context, l *internal.Linkage, cursor string) (internal.Iterator, error) {
	return nil, fmt.Errorf("caldav: listing changes: %w", internal.ErrCursorExpired)
}

func (c *Client) CreateEvent(ctx context.Context, l *internal.Linkage, e *internal.Event) (*internal.Event, error) {
	client, err := c.dav(l)
	if err != nil {
		return nil, err
	}
	uid := c.newID()
	cal, err := newCalendar(uid, e, c.now())
	if err != nil {
		return nil, err
	}
	if _, err := client.PutCalendarObject(ctx, c.objectPath(uid), cal); err != nil {
		return nil, classify("creating event", err)
	}

	created := *e
	created.ID = uid
	created.OwnerKey = l.OwnerKey
	created.Color = ""
	return &created, nil
}

func (c *Client) UpdateEvent(ctx context.Context, l *internal.Linkage, remoteID string, req *internal.EventRequest) (*internal.Event, error) {
	client, err := c.dav(l)
	if err != nil {
		return nil, err
	}
	p := c.objectPath(remoteID)
	obj, err := client.GetCalendarObject(ctx, p)
	if err != nil {
		return nil, classify("getting event "+remoteID, err)
	}
	if cancelled(obj.Data) {
		return nil, fmt.Errorf("caldav: event %s: %w", remoteID, internal.ErrRemoteNotFound)
	}
	current, err := ToCanonical(p, obj.Data, l.OwnerKey, c.location())
	if err != nil {
		return nil, err
	}
	updated, err := current.Apply(req, c.location())
	if err != nil {
		return nil, err
	}
	updated.Color = ""

	cal, err := newCalendar(uidOf(obj.Data, remoteID), updated, c.now())
	if err != nil {
		return nil, err
	}
	if _, err := client.PutCalendarObject(ctx, p, cal); err != nil {
		return nil, classify("updating event "+remoteID, err)
	}
	return updated, nil
}

// DeleteEvent treats an already missing object as deleted.
func (c *Client) DeleteEvent(ctx context.Context, l *internal.Linkage, remoteID string) error {
	client, err := c.dav(l)
	if err != nil {
		return err
	}
	if err := client.RemoveAll(ctx, c.objectPath(remoteID)); err != nil {
		if notFound(err) {
			return nil
		}
		return classify("deleting event "+remoteID, err)
	}
	return nil
}

func (c *Client) Watch(ctx context.Context, l *internal.Linkage, channelID, address, token string) (*internal.Channel, error) {
	return nil, fmt.Errorf("caldav: %w", internal.ErrPushUnsupported)
}

func (c *Client) StopChannel(ctx context.Context, l *internal.Linkage, channelID, resourceID string) error {
	return fmt.Errorf("caldav: %w", internal.ErrPushUnsupported)
}

func (c *Client) dav(l *internal.Linkage) (*caldav.Client, error) {
	base := http.DefaultTransport
	timeout := defaultTimeout
	if c.HTTPClient != nil {
		if c.HTTPClient.Transport != nil {
			base = c.HTTPClient.Transport
		}
		if c.HTTPClient.Timeout > 0 {
			timeout = c.HTTPClient.Timeout
		}
	}
	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: l.RemoteAccount,
			password: l.Credentials.AccessToken,
			base:     base,
		},
		Timeout: timeout,
	}
	client, err := caldav.NewClient(httpClient, c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav: connecting to %s: %w", c.Endpoint, err)
	}
	return client, nil
}

func (c *Client) objectPath(id string) string {
	p := c.CalendarPath
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p + id + icsExt
}

func (c *Client) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func uidOf(cal *ical.Calendar, fallback string) string {
	if vevent := firstEvent(cal); vevent != nil {
		if uid, _ := vevent.Props.Text(ical.PropUID); uid != "" {
			return uid
		}
	}
	return fallback
}

type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}

// sliceIterator serves an already fetched listing. Its cursor is always
// empty.
type sliceIterator struct {
	changes []*internal.Change
	pos     int
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.changes) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Change() *internal.Change { return it.changes[it.pos-1] }
func (it *sliceIterator) Cursor() string           { return "" }
func (it *sliceIterator) Err() error               { return nil }
