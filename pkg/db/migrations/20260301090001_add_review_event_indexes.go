package migrations

import (
	"database/sql"

	"github.com/jingkaihe/skillhub/pkg/db"
	"github.com/pkg/errors"
)

var reviewEventIndexes = []struct {
	name   string
	create string
}{
	{"idx_review_events_skill", "CREATE INDEX IF NOT EXISTS idx_review_events_skill ON review_events(skill_id, id)"},
	{"idx_review_events_occurred_at", "CREATE INDEX IF NOT EXISTS idx_review_events_occurred_at ON review_events(occurred_at DESC)"},
	{"idx_review_events_kind", "CREATE INDEX IF NOT EXISTS idx_review_events_kind ON review_events(kind)"},
}

// Migration20260301090001AddReviewEventIndexes adds lookup indexes for history
// and recent-activity queries.
func Migration20260301090001AddReviewEventIndexes() db.Migration {
	return db.Migration{
		Version:     20260301090001,
		Description: "Add review_events indexes",
		Up: func(tx *sql.Tx) error {
			for _, idx := range reviewEventIndexes {
				if _, err := tx.Exec(idx.create); err != nil {
					return errors.Wrapf(err, "failed to create index %s", idx.name)
				}
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			for _, idx := range reviewEventIndexes {
				if _, err := tx.Exec("DROP INDEX IF EXISTS " + idx.name); err != nil {
					return errors.Wrapf(err, "failed to drop index %s", idx.name)
				}
			}
			return nil
		},
	}
}
