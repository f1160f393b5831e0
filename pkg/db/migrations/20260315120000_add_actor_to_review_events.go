package migrations

import (
	"database/sql"

	"github.com/jingkaihe/skillhub/pkg/db"
	"github.com/pkg/errors"
)

// Migration20260315120000AddActorToReviewEvents records who caused each event
// and backfills it from the event kind.
func Migration20260315120000AddActorToReviewEvents() db.Migration {
	return db.Migration{
		Version:     20260315120000,
		Description: "Add actor column to review_events table",
		Up: func(tx *sql.Tx) error {
			var hasColumn bool
			err := tx.QueryRow(`
				SELECT COUNT(*) > 0 FROM pragma_table_info('review_events') WHERE name = 'actor'
			`).Scan(&hasColumn)
			if err != nil {
				return errors.Wrap(err, "failed to check if actor column exists")
			}

			if !hasColumn {
				if _, err := tx.Exec("ALTER TABLE review_events ADD COLUMN actor TEXT NOT NULL DEFAULT ''"); err != nil {
					return errors.Wrap(err, "failed to add actor column")
				}
			}

			_, err = tx.Exec(`
				UPDATE review_events
				SET actor = CASE kind
					WHEN 'auto_rejected' THEN 'auto-reject'
					WHEN 'status_changed' THEN 'admin'
					WHEN 'added' THEN 'submitter'
					ELSE 'system'
				END
				WHERE actor = ''
			`)
			return errors.Wrap(err, "failed to backfill actor")
		},
		Down: func(tx *sql.Tx) error {
			// SQLite before 3.35 has no DROP COLUMN; the column is left in place.
			return nil
		},
	}
}
