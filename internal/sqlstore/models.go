package sqlstore

import (
	"database/sql"
	"time"

	"github.com/guilherme-santos/eventsync/internal"
)

type Event struct {
	ID          string `db:"id"`
	OwnerKey    string `db:"owner_key"`
	Title       string
	Description string
	StartISO    string `db:"start_iso"`
	EndISO      string `db:"end_iso"`
	StartMs     int64  `db:"start_ms"`
	EndMs       int64  `db:"end_ms"`
	AllDay      bool   `db:"all_day"`
	TimeZone    string `db:"time_zone"`
	Color       string
}

func newEvent(e *internal.Event) Event {
	return Event{
		ID:          e.ID,
		OwnerKey:    e.OwnerKey,
		Title:       e.Title,
		Description: e.Description,
		StartISO:    e.Start,
		EndISO:      e.End,
		StartMs:     e.StartMs,
		EndMs:       e.EndMs,
		AllDay:      e.AllDay,
		TimeZone:    e.TimeZone,
		Color:       e.Color,
	}
}

func (e Event) Convert() *internal.Event {
	return &internal.Event{
		ID:          e.ID,
		OwnerKey:    e.OwnerKey,
		Title:       e.Title,
		Description: e.Description,
		Start:       e.StartISO,
		End:         e.EndISO,
		StartMs:     e.StartMs,
		EndMs:       e.EndMs,
		AllDay:      e.AllDay,
		TimeZone:    e.TimeZone,
		Color:       e.Color,
	}
}

type Linkage struct {
	OwnerKey        string         `db:"owner_key"`
	Provider        string         `db:"provider"`
	RemoteAccount   string         `db:"remote_account"`
	AccessToken     string         `db:"access_token"`
	RefreshToken    string         `db:"refresh_token"`
	TokenExpiry     int64          `db:"token_expiry"`
	SyncCursor      string         `db:"sync_cursor"`
	WatchChannelID  sql.NullString `db:"watch_channel_id"`
	WatchResourceID string         `db:"watch_resource_id"`
	WatchExpiry     int64          `db:"watch_expiry"`
	UpdatedAt       int64          `db:"updated_at"`
}

func newLinkage(l *internal.Linkage) Linkage {
	return Linkage{
		OwnerKey:        l.OwnerKey,
		Provider:        l.Provider,
		RemoteAccount:   l.RemoteAccount,
		AccessToken:     l.Credentials.AccessToken,
		RefreshToken:    l.Credentials.RefreshToken,
		TokenExpiry:     toMillis(l.Credentials.Expiry),
		SyncCursor:      l.SyncCursor,
		WatchChannelID:  sql.NullString{String: l.WatchChannelID, Valid: l.WatchChannelID != ""},
		WatchResourceID: l.WatchResourceID,
		WatchExpiry:     toMillis(l.WatchExpiry),
		UpdatedAt:       toMillis(l.UpdatedAt),
	}
}

func (l Linkage) Convert() *internal.Linkage {
	return &internal.Linkage{
		OwnerKey:      l.OwnerKey,
		Provider:      l.Provider,
		RemoteAccount: l.RemoteAccount,
		Credentials: internal.Credentials{
			AccessToken:  l.AccessToken,
			RefreshToken: l.RefreshToken,
			Expiry:       fromMillis(l.TokenExpiry),
		},
		SyncCursor:      l.SyncCursor,
		WatchChannelID:  l.WatchChannelID.String,
		WatchResourceID: l.WatchResourceID,
		WatchExpiry:     fromMillis(l.WatchExpiry),
		UpdatedAt:       fromMillis(l.UpdatedAt),
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
