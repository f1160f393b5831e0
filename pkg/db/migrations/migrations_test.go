package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jingkaihe/skillhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_VersionsAreUniqueAndOrdered(t *testing.T) {
	all := All()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Version, all[i].Version)
	}
}

func TestAll_ApplyAndRollBack(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := db.OpenAndMigrate(ctx, filepath.Join(t.TempDir(), "review.db"), All())
	require.NoError(t, err)
	defer sqlDB.Close()

	var columns []string
	require.NoError(t, sqlDB.Select(&columns, "SELECT name FROM pragma_table_info('review_events')"))
	assert.Contains(t, columns, "skill_id")
	assert.Contains(t, columns, "payload")
	assert.Contains(t, columns, "actor")

	runner := db.NewMigrationRunner(sqlDB)
	for range All() {
		_, err := runner.Rollback(ctx, All())
		require.NoError(t, err)
	}

	versions, err := runner.GetAppliedVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, versions)

	var tables int
	require.NoError(t, sqlDB.Get(&tables, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='review_events'"))
	assert.Zero(t, tables)
}

func TestActorBackfill(t *testing.T) {
	ctx := context.Background()
	all := All()
	sqlDB, err := db.OpenAndMigrate(ctx, filepath.Join(t.TempDir(), "review.db"), all[:2])
	require.NoError(t, err)
	defer sqlDB.Close()

	_, err = sqlDB.Exec(`INSERT INTO review_events (kind, skill_id, occurred_at) VALUES
		('auto_rejected', '1', '2026-03-01T09:00:00Z'),
		('status_changed', '1', '2026-03-01T09:00:01Z'),
		('downloaded', '1', '2026-03-01T09:00:02Z')`)
	require.NoError(t, err)

	require.NoError(t, db.NewMigrationRunner(sqlDB).Run(ctx, all))

	var actors []string
	require.NoError(t, sqlDB.Select(&actors, "SELECT actor FROM review_events ORDER BY id"))
	assert.Equal(t, []string{"auto-reject", "admin", "system"}, actors)
}
