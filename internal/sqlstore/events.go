package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/guilherme-santos/eventsync/internal"
)

const eventColumns = `id, owner_key, title, description, start_iso, end_iso, start_ms, end_ms, all_day, time_zone, color`

// The WHERE clause keeps an upsert from taking over an id owned by someone
// else; RowsAffected is then zero.
const upsertEvent = `INSERT INTO events (` + eventColumns + `)
	VALUES (:id, :owner_key, :title, :description, :start_iso, :end_iso, :start_ms, :end_ms, :all_day, :time_zone, :color)
	ON CONFLICT (id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		start_iso = excluded.start_iso,
		end_iso = excluded.end_iso,
		start_ms = excluded.start_ms,
		end_ms = excluded.end_ms,
		all_day = excluded.all_day,
		time_zone = excluded.time_zone,
		color = excluded.color
	WHERE events.owner_key = excluded.owner_key`

// colorBatch bounds the IN list sent in a single query.
const colorBatch = 500

func (s *Storage) Event(ctx context.Context, id string) (*internal.Event, error) {
	var e Event
	err := s.db.GetContext(ctx, &e, s.db.Rebind(`SELECT `+eventColumns+` FROM events WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, internal.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting event %s: %w", id, err)
	}
	return e.Convert(), nil
}

// EventsByOwner returns the owner's events overlapping r, ordered by start.
func (s *Storage) EventsByOwner(ctx context.Context, ownerKey string, r internal.Range) ([]*internal.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE owner_key = ?`
	args := []any{ownerKey}
	if r.To != 0 {
		query += ` AND start_ms < ?`
		args = append(args, r.To)
	}
	if r.From != 0 {
		query += ` AND end_ms > ?`
		args = append(args, r.From)
	}
	query += ` ORDER BY start_ms, id`

	var rows []Event
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqlstore: listing events of %s: %w", ownerKey, err)
	}
	events := make([]*internal.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.Convert())
	}
	return events, nil
}

// SaveEvent inserts or replaces e. It fails with internal.ErrNotOwner when
// the id is already taken by another owner.
func (s *Storage) SaveEvent(ctx context.Context, e *internal.Event) error {
	return saveEvent(ctx, s.db, e)
}

// SaveEvents upserts every event in a single transaction.
func (s *Storage) SaveEvents(ctx context.Context, events []*internal.Event) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, e := range events {
			if err := saveEvent(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveEvent(ctx context.Context, db sqlx.ExtContext, e *internal.Event) error {
	res, err := sqlx.NamedExecContext(ctx, db, upsertEvent, newEvent(e))
	if err != nil {
		return fmt.Errorf("sqlstore: saving event %s: %w", e.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: saving event %s: %w", e.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("sqlstore: saving event %s: %w", e.ID, internal.ErrNotOwner)
	}
	return nil
}

// DeleteEvent removes the event only if it belongs to ownerKey and reports
// whether a row was removed.
func (s *Storage) DeleteEvent(ctx context.Context, ownerKey, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM events WHERE id = ? AND owner_key = ?`), id, ownerKey)
	if err != nil {
		return false, fmt.Errorf("sqlstore: deleting event %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: deleting event %s: %w", id, err)
	}
	return n > 0, nil
}

// ReplaceEvents swaps the whole event set of ownerKey atomically. Ids
// already held by another owner are left alone and returned as skipped.
func (s *Storage) ReplaceEvents(ctx context.Context, ownerKey string, events []*internal.Event) (skipped []string, err error) {
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		skipped = skipped[:0]
		_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM events WHERE owner_key = ?`), ownerKey)
		if err != nil {
			return fmt.Errorf("sqlstore: clearing events of %s: %w", ownerKey, err)
		}
		for _, e := range events {
			if e.OwnerKey != ownerKey {
				return fmt.Errorf("sqlstore: event %s: %w", e.ID, internal.ErrNotOwner)
			}
			err := saveEvent(ctx, tx, e)
			if errors.Is(err, internal.ErrNotOwner) {
				skipped = append(skipped, e.ID)
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return skipped, nil
}

// RekeyEvent replaces the event stored under oldID with e in one
// transaction. Used when a provider assigns its own id to a local event.
func (s *Storage) RekeyEvent(ctx context.Context, oldID string, e *internal.Event) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if oldID != e.ID {
			_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM events WHERE id = ? AND owner_key = ?`), oldID, e.OwnerKey)
			if err != nil {
				return fmt.Errorf("sqlstore: deleting event %s: %w", oldID, err)
			}
		}
		return saveEvent(ctx, tx, e)
	})
}

// Colors returns the color of each listed event of ownerKey. Events without
// a color are left out.
func (s *Storage) Colors(ctx context.Context, ownerKey string, ids []string) (map[string]string, error) {
	colors := make(map[string]string)
	for len(ids) > 0 {
		n := min(len(ids), colorBatch)
		batch := ids[:n]
		ids = ids[n:]

		query, args, err := sqlx.In(`SELECT id, color FROM events WHERE owner_key = ? AND color <> '' AND id IN (?)`, ownerKey, batch)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: building color query: %w", err)
		}
		if err := s.scanColors(ctx, colors, s.db.Rebind(query), args...); err != nil {
			return nil, err
		}
	}
	return colors, nil
}

// OwnerColors returns every non-empty color of ownerKey keyed by event id.
func (s *Storage) OwnerColors(ctx context.Context, ownerKey string) (map[string]string, error) {
	colors := make(map[string]string)
	query := s.db.Rebind(`SELECT id, color FROM events WHERE owner_key = ? AND color <> ''`)
	if err := s.scanColors(ctx, colors, query, ownerKey); err != nil {
		return nil, err
	}
	return colors, nil
}

func (s *Storage) scanColors(ctx context.Context, dst map[string]string, query string, args ...any) error {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: loading colors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, color string
		if err := rows.Scan(&id, &color); err != nil {
			return fmt.Errorf("sqlstore: scanning color: %w", err)
		}
		dst[id] = color
	}
	return rows.Err()
}
