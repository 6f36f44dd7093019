package keyspace

import (
	"context"

	"github.com/redlite/redlite/internal/apperr"
	"github.com/redlite/redlite/internal/notify"
	"github.com/redlite/redlite/internal/storage"
)

// Reap is the active half of the expiration reaper (X in spec.md §4.2): in
// one transaction, delete up to limit rows across every db where
// expire_at <= now, oldest first, and queue an `expired` notification for
// each. Returns the number of rows deleted; the caller (internal/reaper)
// retries immediately when that equals limit (the batch may not be empty)
// and sleeps otherwise.
func (k *Keyspace) Reap(ctx context.Context, limit int) (deleted int, err error) {
	var events []notify.Event
	txErr := k.eng.Transaction(ctx, nowMillis(), func(tx *storage.Tx) error {
		rows, err := tx.Query(`SELECT id, db, key FROM keys
			WHERE expire_at IS NOT NULL AND expire_at <= ?
			ORDER BY expire_at ASC LIMIT ?`, tx.Now(), limit)
		if err != nil {
			return apperr.Storage(err)
		}
		type victim struct {
			id  int64
			db  int
			key string
		}
		var victims []victim
		for rows.Next() {
			var v victim
			if err := rows.Scan(&v.id, &v.db, &v.key); err != nil {
				rows.Close()
				return apperr.Storage(err)
			}
			victims = append(victims, v)
		}
		if err := rows.Err(); err != nil {
			return apperr.Storage(err)
		}
		rows.Close()

		for _, v := range victims {
			if _, err := tx.Exec(`DELETE FROM keys WHERE id = ?`, v.id); err != nil {
				return apperr.Storage(err)
			}
			events = append(events, notify.Event{DB: v.db, Key: v.key, Kind: notify.KindExpired})
		}
		deleted = len(victims)
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	for _, ev := range events {
		k.bus.Publish(ev)
	}
	return deleted, nil
}
