package google

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/guilherme-santos/eventsync/internal"
)

const (
	Platform          = "google"
	DefaultCalendarID = "primary"

	defaultSleep = 5 * time.Second
	maxAttempts  = 5
	pageSize     = 2500
)

var _ internal.Provider = (*Client)(nil)

type Client struct {
	oauthCfg *oauth2.Config

	Verbose bool
	// Endpoint overrides the API base URL, e.g. "http://127.0.0.1:8080/calendar/v3/".
	Endpoint   string
	CalendarID string
	// Location is used for events that carry no time zone.
	Location   *time.Location
	Logger     *zap.Logger
	HTTPClient *http.Client
	// Sleep is the pause between rate limited attempts.
	Sleep time.Duration
}

// NewClient builds a client from an OAuth client credentials file. Without
// credentials, stored access tokens are used as they are and never refreshed.
func NewClient(credJSON []byte) (*Client, error) {
	c := &Client{
		CalendarID: DefaultCalendarID,
		Location:   time.UTC,
		Logger:     zap.NewNop(),
		Sleep:      defaultSleep,
	}
	if len(credJSON) == 0 {
		return c, nil
	}
	oauthCfg, err := google.ConfigFromJSON(credJSON, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("google: parsing credentials file: %v", err)
	}
	c.oauthCfg = oauthCfg
	return c, nil
}

func (c *Client) ListAll(ctx context.Context, l *internal.Linkage) (internal.Iterator, error) {
	svc, err := c.calendarSvc(ctx, l)
	if err != nil {
		return nil, err
	}
	// Google refuses to hand out a sync token together with orderBy or
	// timeMin, so sorting happens here.
	call := svc.Events.
		List(c.calendarID()).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		MaxResults(pageSize)

	it := newChangeIterator()
	go c.listAll(ctx, l, call, it)
	return it, nil
}

func (c *Client) ListDelta(ctx context.Context, l *internal.Linkage, cursor string) (internal.Iterator, error) {
	svc, err := c.calendarSvc(ctx, l)
	if err != nil {
		return nil, err
	}
	call := svc.Events.
		List(c.calendarID()).
		Context(ctx).
		ShowDeleted(true).
		SingleEvents(true).
		MaxResults(pageSize).
		SyncToken(cursor)

	it := newChangeIterator()
	go c.listDelta(ctx, l, call, it)
	return it, nil
}

func (c *Client) listAll(ctx context.Context, l *internal.Linkage, call *calendar.EventsListCall, it *changeIterator) {
	defer close(it.changes)

	var changes []*internal.Change
	cursor, err := c.pages(ctx, l, call, func(item *calendar.Event) {
		if ch := c.change(l, item); ch != nil && !ch.Cancelled {
			changes = append(changes, ch)
		}
	})
	if err != nil {
		c.send(ctx, it, changeOrError{err: classify("listing events", err)})
		return
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Event.StartMs < changes[j].Event.StartMs
	})
	for _, ch := range changes {
		if !c.send(ctx, it, changeOrError{c: ch}) {
			return
		}
	}
	it.cursor = cursor
	c.logf(l, "listed %d events", len(changes))
}

func (c *Client) listDelta(ctx context.Context, l *internal.Linkage, call *calendar.EventsListCall, it *changeIterator) {
	defer close(it.changes)

	var (
		n       int
		aborted bool
	)
	cursor, err := c.pages(ctx, l, call, func(item *calendar.Event) {
		if aborted {
			return
		}
		if ch := c.change(l, item); ch != nil {
			n++
			aborted = !c.send(ctx, it, changeOrError{c: ch})
		}
	})
	if aborted {
		return
	}
	if err != nil {
		if cursorExpired(err) {
			err = fmt.Errorf("google: listing changes: %w: %w", internal.ErrCursorExpired, err)
		} else {
			err = classify("listing changes", err)
		}
		c.send(ctx, it, changeOrError{err: err})
		return
	}

	it.cursor = cursor
	if n == 0 {
		c.logf(l, "no changes, events are up to date!")
	}
}

// pages walks every page of call and returns the sync token of the last one.
func (c *Client) pages(ctx context.Context, l *internal.Linkage, call *calendar.EventsListCall, fn func(*calendar.Event)) (string, error) {
	var nextPageToken string
	for {
		events, err := retry(ctx, c, func() (*calendar.Events, error) {
			return call.PageToken(nextPageToken).Do()
		})
		if err != nil {
			c.warn(l, "unable to get list of events", err)
			return "", err
		}
		for _, item := range events.Items {
			fn(item)
		}
		nextPageToken = events.NextPageToken
		if nextPageToken == "" {
			return events.NextSyncToken, nil
		}
	}
}

func (c *Client) change(l *internal.Linkage, item *calendar.Event) *internal.Change {
	ch, err := toChange(item, l.OwnerKey, c.location())
	if err != nil {
		c.warn(l, "skipping malformed event", err, internal.EventField(item.Id))
		return nil
	}
	return ch
}

// send delivers v unless ctx is done, in which case the iterator ends with
// the context error.
func (c *Client) send(ctx context.Context, it *changeIterator, v changeOrError) bool {
	select {
	case it.changes <- v:
		return true
	case <-ctx.Done():
		it.abortErr = ctx.Err()
		return false
	}
}

func (c *Client) CreateEvent(ctx context.Context, l *internal.Linkage, req *internal.Event) (*internal.Event, error) {
	msg := fmt.Sprintf("creating event: %q on %s... ", req.Title, req.Start)
	defer func() {
		c.logf(l, "%s", msg)
	}()

	svc, err := c.calendarSvc(ctx, l)
	if err != nil {
		msg += "❌"
		return nil, err
	}
	normalized, err := req.Apply(&internal.EventRequest{}, c.location())
	if err != nil {
		msg += "❌"
		return nil, err
	}

	gevent, err := retry(ctx, c, func() (*calendar.Event, error) {
		return svc.Events.Insert(c.calendarID(), newGoogleEvent(normalized)).Context(ctx).Do()
	})
	if err != nil {
		msg += "❌"
		return nil, classify("creating event", err)
	}
	msg += "✅"
	return ToCanonical(gevent, l.OwnerKey, c.location())
}

// UpdateEvent merges req into the current remote event and writes it back.
// Fields absent from req keep their remote value.
func (c *Client) UpdateEvent(ctx context.Context, l *internal.Linkage, remoteID string, req *internal.EventRequest) (*internal.Event, error) {
	msg := fmt.Sprintf("updating event %s... ", remoteID)
	defer func() {
		c.logf(l, "%s", msg)
	}()

	svc, err := c.calendarSvc(ctx, l)
	if err != nil {
		msg += "❌"
		return nil, err
	}

	current, err := retry(ctx, c, func() (*calendar.Event, error) {
		return svc.Events.Get(c.calendarID(), remoteID).Context(ctx).Do()
	})
	if err != nil {
		msg += "❌"
		return nil, classify("getting event", err)
	}
	if current.Status == statusCancelled {
		msg += "❌"
		return nil, fmt.Errorf("google: getting event %s: %w", remoteID, internal.ErrRemoteNotFound)
	}
	canonical, err := ToCanonical(current, l.OwnerKey, c.location())
	if err != nil {
		msg += "❌"
		return nil, err
	}
	merged, err := canonical.Apply(req, c.location())
	if err != nil {
		msg += "❌"
		return nil, err
	}

	current.Summary = merged.Title
	current.Description = merged.Description
	setSpan(current, merged)

	updated, err := retry(ctx, c, func() (*calendar.Event, error) {
		return svc.Events.Update(c.calendarID(), remoteID, current).Context(ctx).Do()
	})
	if err != nil {
		msg += "❌"
		return nil, classify("updating event", err)
	}
	msg += "✅"
	return ToCanonical(updated, l.OwnerKey, c.location())
}

func (c *Client) DeleteEvent(ctx context.Context, l *internal.Linkage, remoteID string) error {
	msg := fmt.Sprintf("deleting event %s... ", remoteID)
	defer func() {
		c.logf(l, "%s", msg)
	}()

	svc, err := c.calendarSvc(ctx, l)
	if err != nil {
		msg += "❌"
		return err
	}
	_, err = retry(ctx, c, func() (struct{}, error) {
		return struct{}{}, svc.Events.Delete(c.calendarID(), remoteID).Context(ctx).Do()
	})
	if err == nil || alreadyDeleted(err) {
		msg += "✅"
		return nil
	}
	msg += "❌"
	return classify("deleting event", err)
}

// Watch registers a webhook channel for the calendar. Google echoes token
// back on every notification.
func (c *Client) Watch(ctx context.Context, l *internal.Linkage, channelID, address, token string) (*internal.Channel, error) {
	svc, err := c.calendarSvc(ctx, l)
	if err != nil {
		return nil, err
	}
	req := &calendar.Channel{
		Id:      channelID,
		Type:    "web_hook",
		Address: address,
		Token:   token,
	}
	res, err := retry(ctx, c, func() (*calendar.Channel, error) {
		return svc.Events.Watch(c.calendarID(), req).Context(ctx).Do()
	})
	if err != nil {
		return nil, classify("watching calendar", err)
	}

	ch := &internal.Channel{
		ID:         res.Id,
		ResourceID: res.ResourceId,
	}
	if ch.ID == "" {
		ch.ID = channelID
	}
	if res.Expiration > 0 {
		ch.Expiry = time.UnixMilli(res.Expiration)
	}
	c.logf(l, "watching calendar through channel %s until %s", ch.ID, ch.Expiry.Format(time.RFC3339))
	return ch, nil
}

func (c *Client) StopChannel(ctx context.Context, l *internal.Linkage, channelID, resourceID string) error {
	svc, err := c.calendarSvc(ctx, l)
	if err != nil {
		return err
	}
	err = svc.Channels.Stop(&calendar.Channel{
		Id:         channelID,
		ResourceId: resourceID,
	}).Context(ctx).Do()
	if err != nil && !alreadyDeleted(err) {
		return classify("stopping channel", err)
	}
	return nil
}

func (c *Client) calendarSvc(ctx context.Context, l *internal.Linkage) (*calendar.Service, error) {
	tok := &oauth2.Token{
		AccessToken:  l.Credentials.AccessToken,
		RefreshToken: l.Credentials.RefreshToken,
		Expiry:       l.Credentials.Expiry,
		TokenType:    "Bearer",
	}
	if c.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}

	var ts oauth2.TokenSource
	if c.oauthCfg != nil {
		ts = c.oauthCfg.TokenSource(ctx, tok)
	} else {
		ts = oauth2.StaticTokenSource(tok)
	}

	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, ts)),
	}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: creating calendar service: %w", err)
	}
	return svc, nil
}

func (c *Client) calendarID() string {
	if c.CalendarID == "" {
		return DefaultCalendarID
	}
	return c.CalendarID
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

func (c *Client) logf(l *internal.Linkage, format string, a ...any) {
	if c.Verbose {
		c.logger().Sugar().With("owner", l.OwnerKey).Infof("google: "+format, a...)
	}
}

func (c *Client) warn(l *internal.Linkage, msg string, err error, fields ...zap.Field) {
	fields = append(fields, internal.OwnerField(l.OwnerKey), zap.Error(err))
	c.logger().Warn("google: "+msg, fields...)
}

// retry repeats fn while Google reports a rate limit, sleeping between
// attempts.
func retry[T any](ctx context.Context, c *Client, fn func() (T, error)) (T, error) {
	sleep := c.Sleep
	if sleep <= 0 {
		sleep = defaultSleep
	}
	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil || !shouldRetry(err) || attempt >= maxAttempts {
			return v, err
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-time.After(sleep):
		}
	}
}
