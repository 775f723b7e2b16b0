package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/guilherme-santos/eventsync/internal"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(SQLiteDriver, filepath.Join(t.TempDir(), "db", "eventsync.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(id, owner string, startMs int64) *internal.Event {
	return &internal.Event{
		ID:       id,
		OwnerKey: owner,
		Title:    "event " + id,
		Start:    time.UnixMilli(startMs).UTC().Format(time.RFC3339),
		End:      time.UnixMilli(startMs + 3600_000).UTC().Format(time.RFC3339),
		StartMs:  startMs,
		EndMs:    startMs + 3600_000,
		TimeZone: "UTC",
	}
}

func TestEventLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	e := testEvent("e1", "u1", 1_000_000)
	e.Color = "#00ff00"
	e.AllDay = true
	if err := s.SaveEvent(ctx, e); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Event(ctx, "e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *got != *e {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, e)
	}

	e.Title = "renamed"
	if err := s.SaveEvent(ctx, e); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, _ = s.Event(ctx, "e1")
	if got.Title != "renamed" {
		t.Fatalf("title = %q after upsert", got.Title)
	}

	removed, err := s.DeleteEvent(ctx, "u2", "e1")
	if err != nil || removed {
		t.Fatalf("delete by other owner = %v, %v", removed, err)
	}
	removed, err = s.DeleteEvent(ctx, "u1", "e1")
	if err != nil || !removed {
		t.Fatalf("delete by owner = %v, %v", removed, err)
	}
	removed, _ = s.DeleteEvent(ctx, "u1", "e1")
	if removed {
		t.Fatal("second delete reported a removal")
	}
	if _, err := s.Event(ctx, "e1"); !errors.Is(err, internal.ErrNotFound) {
		t.Fatalf("get after delete err = %v", err)
	}
}

func TestSaveEventKeepsOwnership(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.SaveEvent(ctx, testEvent("shared", "u1", 1000)); err != nil {
		t.Fatalf("save: %v", err)
	}
	err := s.SaveEvent(ctx, testEvent("shared", "u2", 2000))
	if !errors.Is(err, internal.ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	got, _ := s.Event(ctx, "shared")
	if got.OwnerKey != "u1" || got.StartMs != 1000 {
		t.Fatalf("event was taken over: %+v", got)
	}
}

func TestEventsByOwnerRange(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	hour := int64(3600_000)
	for _, e := range []*internal.Event{
		testEvent("c", "u1", 3*hour),
		testEvent("a", "u1", 1*hour),
		testEvent("b", "u1", 2*hour),
		testEvent("x", "u2", 2*hour),
	} {
		if err := s.SaveEvent(ctx, e); err != nil {
			t.Fatalf("save %s: %v", e.ID, err)
		}
	}

	all, err := s.EventsByOwner(ctx, "u1", internal.Range{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if ids(all) != "a,b,c" {
		t.Fatalf("ids = %s", ids(all))
	}

	// [2h, 3h) overlaps b fully and nothing else; a ends exactly at 2h.
	window, _ := s.EventsByOwner(ctx, "u1", internal.Range{From: 2 * hour, To: 3 * hour})
	if ids(window) != "b" {
		t.Fatalf("window ids = %s", ids(window))
	}

	open, _ := s.EventsByOwner(ctx, "u1", internal.Range{From: 2*hour + 1})
	if ids(open) != "b,c" {
		t.Fatalf("open range ids = %s", ids(open))
	}
}

func TestReplaceEvents(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	s.SaveEvent(ctx, testEvent("old", "u1", 1000))
	s.SaveEvent(ctx, testEvent("other", "u2", 1000))

	skipped, err := s.ReplaceEvents(ctx, "u1", []*internal.Event{
		testEvent("n1", "u1", 2000),
		testEvent("n2", "u1", 1000),
	})
	if err != nil || len(skipped) != 0 {
		t.Fatalf("replace: skipped %v, %v", skipped, err)
	}
	got, _ := s.EventsByOwner(ctx, "u1", internal.Range{})
	if ids(got) != "n2,n1" {
		t.Fatalf("ids = %s", ids(got))
	}
	if _, err := s.Event(ctx, "other"); err != nil {
		t.Fatalf("other owner's event was touched: %v", err)
	}

	// An id held by another owner is skipped, the rest is replaced.
	skipped, err = s.ReplaceEvents(ctx, "u1", []*internal.Event{
		testEvent("n3", "u1", 1000),
		testEvent("other", "u1", 3000),
	})
	if err != nil || len(skipped) != 1 || skipped[0] != "other" {
		t.Fatalf("replace: skipped %v, %v", skipped, err)
	}
	got, _ = s.EventsByOwner(ctx, "u1", internal.Range{})
	if ids(got) != "n3" {
		t.Fatalf("ids = %s", ids(got))
	}
	if e, _ := s.Event(ctx, "other"); e.OwnerKey != "u2" || e.StartMs != 1000 {
		t.Fatalf("other owner's event = %+v", e)
	}

	// A failing replace leaves the previous set in place.
	_, err = s.ReplaceEvents(ctx, "u1", []*internal.Event{
		testEvent("n4", "u1", 1000),
		testEvent("n5", "u2", 1000),
	})
	if !errors.Is(err, internal.ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	got, _ = s.EventsByOwner(ctx, "u1", internal.Range{})
	if ids(got) != "n3" {
		t.Fatalf("ids after failed replace = %s", ids(got))
	}
}

func TestRekeyEvent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	local := testEvent("local-uuid", "u1", 1000)
	local.Color = "red"
	s.SaveEvent(ctx, local)

	remote := *local
	remote.ID = "remote-id"
	if err := s.RekeyEvent(ctx, "local-uuid", &remote); err != nil {
		t.Fatalf("rekey: %v", err)
	}
	if _, err := s.Event(ctx, "local-uuid"); !errors.Is(err, internal.ErrNotFound) {
		t.Fatalf("old id still present: %v", err)
	}
	got, err := s.Event(ctx, "remote-id")
	if err != nil || got.Color != "red" {
		t.Fatalf("rekeyed event = %+v, %v", got, err)
	}
}

func TestColors(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	red := testEvent("r", "u1", 1000)
	red.Color = "red"
	blue := testEvent("b", "u1", 1000)
	blue.Color = "blue"
	foreign := testEvent("f", "u2", 1000)
	foreign.Color = "green"
	for _, e := range []*internal.Event{red, blue, foreign, testEvent("plain", "u1", 1000)} {
		s.SaveEvent(ctx, e)
	}

	colors, err := s.Colors(ctx, "u1", []string{"r", "plain", "f", "missing"})
	if err != nil {
		t.Fatalf("colors: %v", err)
	}
	if len(colors) != 1 || colors["r"] != "red" {
		t.Fatalf("colors = %v", colors)
	}

	empty, err := s.Colors(ctx, "u1", nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("colors(nil) = %v, %v", empty, err)
	}

	all, err := s.OwnerColors(ctx, "u1")
	if err != nil {
		t.Fatalf("owner colors: %v", err)
	}
	if len(all) != 2 || all["b"] != "blue" {
		t.Fatalf("owner colors = %v", all)
	}
}

func TestLinkageLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.Linkage(ctx, "u1"); !errors.Is(err, internal.ErrNotLinked) {
		t.Fatalf("err = %v, want ErrNotLinked", err)
	}
	if err := s.SaveCursor(ctx, "u1", "c"); !errors.Is(err, internal.ErrNotLinked) {
		t.Fatalf("save cursor on missing linkage err = %v", err)
	}

	expiry := time.UnixMilli(time.Now().Add(time.Hour).UnixMilli())
	l := &internal.Linkage{
		OwnerKey:      "u1",
		Provider:      "google",
		RemoteAccount: "u1@example.com",
		Credentials: internal.Credentials{
			AccessToken:  "access",
			RefreshToken: "refresh",
			Expiry:       expiry,
		},
	}
	if err := s.SaveLinkage(ctx, l); err != nil {
		t.Fatalf("save linkage: %v", err)
	}
	if err := s.SaveLinkage(ctx, &internal.Linkage{OwnerKey: "u2", Provider: "google"}); err != nil {
		t.Fatalf("save second linkage: %v", err)
	}

	if err := s.SaveCursor(ctx, "u1", "cursor-1"); err != nil {
		t.Fatalf("save cursor: %v", err)
	}
	ch := &internal.Channel{ID: "ch-1", ResourceID: "res-1", Expiry: expiry}
	if err := s.SaveChannel(ctx, "u1", ch); err != nil {
		t.Fatalf("save channel: %v", err)
	}

	got, err := s.Linkage(ctx, "u1")
	if err != nil {
		t.Fatalf("get linkage: %v", err)
	}
	if got.SyncCursor != "cursor-1" || got.WatchChannelID != "ch-1" || got.WatchResourceID != "res-1" {
		t.Fatalf("linkage = %+v", got)
	}
	if !got.WatchExpiry.Equal(expiry) || !got.Credentials.Expiry.Equal(expiry) {
		t.Fatalf("expiry mismatch: %v / %v", got.WatchExpiry, got.Credentials.Expiry)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("updated_at not set")
	}

	byChannel, err := s.LinkageByChannel(ctx, "ch-1")
	if err != nil || byChannel.OwnerKey != "u1" {
		t.Fatalf("by channel = %+v, %v", byChannel, err)
	}
	if _, err := s.LinkageByChannel(ctx, "unknown"); !errors.Is(err, internal.ErrNotLinked) {
		t.Fatalf("unknown channel err = %v", err)
	}
	if _, err := s.LinkageByChannel(ctx, ""); !errors.Is(err, internal.ErrNotLinked) {
		t.Fatalf("empty channel err = %v", err)
	}

	all, err := s.Linkages(ctx)
	if err != nil || len(all) != 2 || all[0].OwnerKey != "u1" {
		t.Fatalf("linkages = %v, %v", all, err)
	}

	if err := s.SaveChannel(ctx, "u1", nil); err != nil {
		t.Fatalf("clear channel: %v", err)
	}
	got, _ = s.Linkage(ctx, "u1")
	if got.WatchChannelID != "" || !got.WatchExpiry.IsZero() {
		t.Fatalf("channel not cleared: %+v", got)
	}
}

func ids(events []*internal.Event) string {
	var out string
	for i, e := range events {
		if i > 0 {
			out += ","
		}
		out += e.ID
	}
	return out
}
