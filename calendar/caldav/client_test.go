package caldav

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-ical"

	"github.com/guilherme-santos/eventsync/internal"
)

const dentist = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:abc@example.com\r\n" +
	"DTSTAMP:20240401T000000Z\r\n" +
	"SUMMARY:Dentist\r\n" +
	"DTSTART;TZID=Asia/Seoul:20240501T090000\r\n" +
	"DTEND;TZID=Asia/Seoul:20240501T100000\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

const holiday = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:holiday\r\n" +
	"DTSTAMP:20240401T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20240505\r\n" +
	"DTEND;VALUE=DATE:20240507\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

var testLinkage = &internal.Linkage{
	OwnerKey:      "u1",
	Provider:      Platform,
	RemoteAccount: "me@example.com",
	Credentials:   internal.Credentials{AccessToken: "app-password"},
}

// davServer serves calendar objects from memory for GET, PUT and DELETE.
type davServer struct {
	t       *testing.T
	mu      sync.Mutex
	objects map[string]string
}

func newDAVServer(t *testing.T, objects map[string]string) (*Client, *davServer) {
	t.Helper()
	s := &davServer{t: t, objects: objects}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "/cal/")
	c.now = func() time.Time { return time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC) }
	c.newID = func() string { return "new-1" }
	return c, s
}

func (s *davServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "me@example.com" || pass != "app-password" {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		data, ok := s.objects[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", ical.MIMEType)
		w.Header().Set("ETag", `"1"`)
		io.WriteString(w, data)
	case http.MethodPut:
		b, err := io.ReadAll(r.Body)
		if err != nil {
			s.t.Errorf("reading body: %v", err)
		}
		s.objects[r.URL.Path] = string(b)
		w.Header().Set("ETag", `"2"`)
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if _, ok := s.objects[r.URL.Path]; !ok {
			http.NotFound(w, r)
			return
		}
		delete(s.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *davServer) object(t *testing.T, path string) *ical.Event {
	t.Helper()
	s.mu.Lock()
	data, ok := s.objects[path]
	s.mu.Unlock()
	if !ok {
		t.Fatalf("no object at %s", path)
	}
	cal, err := ical.NewDecoder(strings.NewReader(data)).Decode()
	if err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
	vevent := firstEvent(cal)
	if vevent == nil {
		t.Fatalf("%s has no event", path)
	}
	return vevent
}

func decode(t *testing.T, data string) *ical.Calendar {
	t.Helper()
	cal, err := ical.NewDecoder(strings.NewReader(data)).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return cal
}

func TestToCanonical(t *testing.T) {
	e, err := ToCanonical("/cal/ev1.ics", decode(t, dentist), "u1", time.UTC)
	if err != nil {
		t.Fatalf("timed: %v", err)
	}
	if e.ID != "ev1" || e.Title != "Dentist" || e.AllDay || e.TimeZone != "Asia/Seoul" {
		t.Fatalf("timed = %+v", e)
	}
	if e.Start != "2024-05-01T09:00:00+09:00" || e.End != "2024-05-01T10:00:00+09:00" {
		t.Fatalf("timed span = %s .. %s", e.Start, e.End)
	}

	e, err = ToCanonical("/cal/holiday.ics", decode(t, holiday), "u1", time.UTC)
	if err != nil {
		t.Fatalf("all-day: %v", err)
	}
	if !e.AllDay || e.Start != "2024-05-05" || e.End != "2024-05-07" || e.Title != internal.DefaultTitle {
		t.Fatalf("all-day = %+v", e)
	}

	empty := ical.NewCalendar()
	if _, err := ToCanonical("/cal/x.ics", empty, "u1", time.UTC); !errors.Is(err, internal.ErrInvalidEvent) {
		t.Fatalf("empty err = %v", err)
	}
}

func TestCreateEvent(t *testing.T) {
	c, srv := newDAVServer(t, map[string]string{})
	loc, _ := time.LoadLocation("Asia/Seoul")
	local, err := internal.NewEvent("local-1", "u1", &internal.EventRequest{
		Title: internal.String("Holiday"),
		Start: internal.String("2024-05-05"),
		Color: internal.String("red"),
	}, loc, time.Now())
	if err != nil {
		t.Fatalf("new event: %v", err)
	}

	created, err := c.CreateEvent(context.Background(), testLinkage, local)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "new-1" || created.Color != "" || created.Start != "2024-05-05" {
		t.Fatalf("created = %+v", created)
	}

	vevent := srv.object(t, "/cal/new-1.ics")
	if uid, _ := vevent.Props.Text(ical.PropUID); uid != "new-1" {
		t.Fatalf("uid = %q", uid)
	}
	start := vevent.Props.Get(ical.PropDateTimeStart)
	if start == nil || start.Value != "20240505" || start.ValueType() != ical.ValueDate {
		t.Fatalf("start = %+v", start)
	}
	if color := vevent.Props.Get("COLOR"); color != nil {
		t.Fatal("local color reached the server")
	}
}

func TestUpdateEventMerges(t *testing.T) {
	c, srv := newDAVServer(t, map[string]string{"/cal/ev1.ics": dentist})

	updated, err := c.UpdateEvent(context.Background(), testLinkage, "ev1", &internal.EventRequest{
		Title: internal.String("Dentist (moved)"),
		Start: internal.String("2024-05-02T09:00:00+09:00"),
		End:   internal.String("2024-05-02T10:00:00+09:00"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != "ev1" || updated.Title != "Dentist (moved)" || updated.TimeZone != "Asia/Seoul" {
		t.Fatalf("updated = %+v", updated)
	}

	vevent := srv.object(t, "/cal/ev1.ics")
	if uid, _ := vevent.Props.Text(ical.PropUID); uid != "abc@example.com" {
		t.Fatalf("uid = %q", uid)
	}
	start, err := vevent.DateTimeStart(time.UTC)
	if err != nil || !start.Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v, %v", start, err)
	}
}

func TestUpdateMissingEvent(t *testing.T) {
	c, _ := newDAVServer(t, map[string]string{})
	_, err := c.UpdateEvent(context.Background(), testLinkage, "ghost", &internal.EventRequest{})
	if !errors.Is(err, internal.ErrRemoteNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeleteEvent(t *testing.T) {
	c, srv := newDAVServer(t, map[string]string{"/cal/ev1.ics": dentist})
	ctx := context.Background()

	if err := c.DeleteEvent(ctx, testLinkage, "ev1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	srv.mu.Lock()
	n := len(srv.objects)
	srv.mu.Unlock()
	if n != 0 {
		t.Fatalf("%d objects left", n)
	}
	if err := c.DeleteEvent(ctx, testLinkage, "ev1"); err != nil {
		t.Fatalf("delete again: %v", err)
	}
}

func TestAuthRejected(t *testing.T) {
	c, _ := newDAVServer(t, map[string]string{"/cal/ev1.ics": dentist})
	bad := *testLinkage
	bad.Credentials.AccessToken = "wrong"

	_, err := c.UpdateEvent(context.Background(), &bad, "ev1", &internal.EventRequest{})
	if !errors.Is(err, internal.ErrAuthRejected) {
		t.Fatalf("err = %v", err)
	}
}

func TestNoPushOrDelta(t *testing.T) {
	c := NewClient("https://dav.example.com", "/cal/")
	ctx := context.Background()
	if _, err := c.Watch(ctx, testLinkage, "ch", "https://example.com", "u1"); !errors.Is(err, internal.ErrPushUnsupported) {
		t.Fatalf("watch err = %v", err)
	}
	if _, err := c.ListDelta(ctx, testLinkage, "cursor"); !errors.Is(err, internal.ErrCursorExpired) {
		t.Fatalf("delta err = %v", err)
	}
}

func TestStatusCode(t *testing.T) {
	tests := map[string]int{
		"404 Not Found":                     404,
		"propfind: 401 Unauthorized: nope":  401,
		"dial tcp: connection refused":      0,
		"500 Internal Server Error: broken": 500,
	}
	for msg, want := range tests {
		if got := statusCode(errors.New(msg)); got != want {
			t.Errorf("statusCode(%q) = %d, want %d", msg, got, want)
		}
	}
}
