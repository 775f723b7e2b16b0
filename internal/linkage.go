package internal

import "time"

// Credentials is the token material handed over by whoever performed the
// OAuth exchange. It is only referenced here.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Linkage ties a local account to its remote calendar.
type Linkage struct {
	OwnerKey      string
	Provider      string
	RemoteAccount string
	Credentials   Credentials

	// SyncCursor is empty until the first successful sync.
	SyncCursor string

	WatchChannelID  string
	WatchResourceID string
	WatchExpiry     time.Time

	UpdatedAt time.Time
}

func (l Linkage) String() string {
	return l.Provider + "/" + l.OwnerKey
}

// ChannelValid reports whether the watch channel is still good for margin.
func (l Linkage) ChannelValid(now time.Time, margin time.Duration) bool {
	if l.WatchChannelID == "" || l.WatchExpiry.IsZero() {
		return false
	}
	return l.WatchExpiry.After(now.Add(margin))
}

// Channel is a webhook subscription registered with a provider.
type Channel struct {
	ID         string
	ResourceID string
	Expiry     time.Time
}
