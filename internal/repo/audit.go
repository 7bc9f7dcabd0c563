package repo

import (
	"context"
	"database/sql"
	"time"

	"ambush/internal/eventbus"
	"ambush/internal/storage"
)

// appendAudit writes one audit row inside the caller's transaction, so the
// trail commits or rolls back together with the mutation it describes.
func appendAudit(ctx context.Context, tx *sql.Tx, eventType, name, detail string, src eventbus.Source) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit(at, event_type, name, detail, source) VALUES(?,?,?,?,?)`,
		time.Now().Unix(), eventType, name, nullStr(detail), src.String(),
	)
	return err
}

// PruneAudit deletes audit rows older than cutoff and reports how many went.
func PruneAudit(ctx context.Context, gw *storage.Gateway, cutoff time.Time) (int64, error) {
	var n int64
	err := gw.Write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM audit WHERE at < ?`, cutoff.Unix())
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
