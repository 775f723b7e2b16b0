package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guilherme-santos/eventsync/internal"
)

const linkageColumns = `owner_key, provider, remote_account, access_token, refresh_token, token_expiry,
	sync_cursor, watch_channel_id, watch_resource_id, watch_expiry, updated_at`

func (s *Storage) Linkage(ctx context.Context, ownerKey string) (*internal.Linkage, error) {
	return s.getLinkage(ctx, `SELECT `+linkageColumns+` FROM linkages WHERE owner_key = ?`, ownerKey)
}

// LinkageByChannel finds the linkage currently watched through channelID.
func (s *Storage) LinkageByChannel(ctx context.Context, channelID string) (*internal.Linkage, error) {
	if channelID == "" {
		return nil, internal.ErrNotLinked
	}
	return s.getLinkage(ctx, `SELECT `+linkageColumns+` FROM linkages WHERE watch_channel_id = ?`, channelID)
}

func (s *Storage) getLinkage(ctx context.Context, query string, arg string) (*internal.Linkage, error) {
	var l Linkage
	err := s.db.GetContext(ctx, &l, s.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, internal.ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting linkage: %w", err)
	}
	return l.Convert(), nil
}

func (s *Storage) Linkages(ctx context.Context) ([]*internal.Linkage, error) {
	var rows []Linkage
	err := s.db.SelectContext(ctx, &rows, `SELECT `+linkageColumns+` FROM linkages ORDER BY owner_key`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing linkages: %w", err)
	}
	linkages := make([]*internal.Linkage, 0, len(rows))
	for _, row := range rows {
		linkages = append(linkages, row.Convert())
	}
	return linkages, nil
}

// SaveLinkage inserts or fully replaces the linkage of l.OwnerKey.
func (s *Storage) SaveLinkage(ctx context.Context, l *internal.Linkage) error {
	l.UpdatedAt = time.Now()
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO linkages (`+linkageColumns+`)
		VALUES (:owner_key, :provider, :remote_account, :access_token, :refresh_token, :token_expiry,
			:sync_cursor, :watch_channel_id, :watch_resource_id, :watch_expiry, :updated_at)
		ON CONFLICT (owner_key) DO UPDATE SET
			provider = excluded.provider,
			remote_account = excluded.remote_account,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry,
			sync_cursor = excluded.sync_cursor,
			watch_channel_id = excluded.watch_channel_id,
			watch_resource_id = excluded.watch_resource_id,
			watch_expiry = excluded.watch_expiry,
			updated_at = excluded.updated_at`, newLinkage(l))
	if err != nil {
		return fmt.Errorf("sqlstore: saving linkage %s: %w", l, err)
	}
	return nil
}

// SaveCursor stores the cursor to resume the next incremental sync from. An
// empty cursor forces a full resync.
func (s *Storage) SaveCursor(ctx context.Context, ownerKey, cursor string) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE linkages SET sync_cursor = ?, updated_at = ? WHERE owner_key = ?`),
		cursor, time.Now().UnixMilli(), ownerKey)
	return checkUpdated(res, err, ownerKey)
}

// SaveChannel records the watch channel of ownerKey. A nil channel clears it.
func (s *Storage) SaveChannel(ctx context.Context, ownerKey string, ch *internal.Channel) error {
	var (
		id       sql.NullString
		resource string
		expiry   int64
	)
	if ch != nil {
		id = sql.NullString{String: ch.ID, Valid: ch.ID != ""}
		resource = ch.ResourceID
		expiry = toMillis(ch.Expiry)
	}
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE linkages SET watch_channel_id = ?, watch_resource_id = ?, watch_expiry = ?, updated_at = ? WHERE owner_key = ?`),
		id, resource, expiry, time.Now().UnixMilli(), ownerKey)
	return checkUpdated(res, err, ownerKey)
}

func checkUpdated(res sql.Result, err error, ownerKey string) error {
	if err != nil {
		return fmt.Errorf("sqlstore: updating linkage %s: %w", ownerKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: updating linkage %s: %w", ownerKey, err)
	}
	if n == 0 {
		return internal.ErrNotLinked
	}
	return nil
}
