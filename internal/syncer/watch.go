package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guilherme-santos/eventsync/internal"
)

const (
	DefaultWatchMargin = time.Minute
	WebhookPath        = "/api/google/webhook"
)

// Ping is a push notification as delivered by the provider's webhook.
type Ping struct {
	ChannelID  string
	ResourceID string
	State      string
	Token      string
}

// Watcher keeps a live push channel per linkage and turns pings into syncs.
type Watcher struct {
	logger   *zap.Logger
	mux      Mux
	linkages LinkageStore
	syncer   *Syncer

	CallbackBaseURL string
	Margin          time.Duration

	now   func() time.Time
	newID func() string
}

func NewWatcher(logger *zap.Logger, providers Mux, linkages LinkageStore, syncer *Syncer, callbackBaseURL string) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		logger:          logger,
		mux:             providers,
		linkages:        linkages,
		syncer:          syncer,
		CallbackBaseURL: callbackBaseURL,
		Margin:          DefaultWatchMargin,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// EnsureChannel registers a new channel unless the current one outlives the
// safety margin. It reports whether a new channel was registered.
func (w *Watcher) EnsureChannel(ctx context.Context, l *Linkage) (bool, error) {
	if l.ChannelValid(w.now(), w.Margin) {
		return false, nil
	}
	if w.CallbackBaseURL == "" {
		return false, errors.New("syncer: callback base url is not configured")
	}
	provider, err := w.mux.Get(l.Provider)
	if err != nil {
		return false, fmt.Errorf("syncer: %w", err)
	}

	address := strings.TrimRight(w.CallbackBaseURL, "/") + WebhookPath
	ch, err := provider.Watch(ctx, l, w.newID(), address, l.OwnerKey)
	if err != nil {
		return false, err
	}
	if err := w.linkages.SaveChannel(ctx, l.OwnerKey, ch); err != nil {
		return false, fmt.Errorf("syncer: saving channel: %w", err)
	}

	if l.WatchChannelID != "" && l.WatchChannelID != ch.ID {
		err := provider.StopChannel(ctx, l, l.WatchChannelID, l.WatchResourceID)
		if err != nil {
			w.logger.Info("unable to stop previous channel",
				internal.OwnerField(l.OwnerKey), zap.String("channel_id", l.WatchChannelID), zap.Error(err))
		}
	}

	l.WatchChannelID = ch.ID
	l.WatchResourceID = ch.ResourceID
	l.WatchExpiry = ch.Expiry
	w.logger.Info("watch channel registered",
		internal.OwnerField(l.OwnerKey), zap.String("channel_id", ch.ID), zap.Time("expiry", ch.Expiry))
	return true, nil
}

// RenewAll ensures a channel for every linkage. Failures are logged and do
// not stop the others.
func (w *Watcher) RenewAll(ctx context.Context) error {
	linkages, err := w.linkages.Linkages(ctx)
	if err != nil {
		return fmt.Errorf("syncer: listing linkages: %w", err)
	}
	for _, l := range linkages {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := w.EnsureChannel(ctx, l)
		if errors.Is(err, internal.ErrPushUnsupported) {
			continue
		}
		if err != nil {
			w.logger.Warn("unable to renew watch channel", internal.OwnerField(l.OwnerKey), zap.Error(err))
		}
	}
	return nil
}

// HandlePing schedules an incremental sync for the owner of the channel.
// Pings for unknown channels are dropped.
func (w *Watcher) HandlePing(ctx context.Context, p Ping) error {
	if p.ChannelID == "" {
		return nil
	}
	l, err := w.linkages.LinkageByChannel(ctx, p.ChannelID)
	if errors.Is(err, internal.ErrNotLinked) {
		w.logger.Debug("ping for unknown channel", zap.String("channel_id", p.ChannelID))
		return nil
	}
	if err != nil {
		return err
	}
	if p.Token != "" && p.Token != l.OwnerKey {
		w.logger.Warn("ping token does not match channel owner",
			internal.OwnerField(l.OwnerKey), zap.String("channel_id", p.ChannelID))
		return nil
	}

	w.logger.Debug("ping received",
		internal.OwnerField(l.OwnerKey), zap.String("channel_id", p.ChannelID), zap.String("state", p.State))
	w.syncer.Trigger(l.OwnerKey)
	return nil
}
