package migrations

import (
	"database/sql"

	"github.com/jingkaihe/skillhub/pkg/db"
	"github.com/pkg/errors"
)

// Migration20260301090000CreateReviewEvents creates the review_events table.
func Migration20260301090000CreateReviewEvents() db.Migration {
	return db.Migration{
		Version:     20260301090000,
		Description: "Create review_events table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS review_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					kind TEXT NOT NULL,
					skill_id TEXT NOT NULL DEFAULT '',
					title TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT '',
					role TEXT NOT NULL DEFAULT '',
					notes TEXT NOT NULL DEFAULT '',
					overall INTEGER NOT NULL DEFAULT 0,
					payload TEXT NOT NULL DEFAULT '{}',
					occurred_at DATETIME NOT NULL
				)
			`)
			return errors.Wrap(err, "failed to create review_events table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS review_events")
			return errors.Wrap(err, "failed to drop review_events table")
		},
	}
}
