// Package migrations lists the review log schema migrations.
// Versions are YYYYMMDDHHmmss timestamps.
package migrations

import (
	"github.com/jingkaihe/skillhub/pkg/db"
)

// All returns every migration in version order. Append new migrations here.
func All() []db.Migration {
	return []db.Migration{
		Migration20260301090000CreateReviewEvents(),
		Migration20260301090001AddReviewEventIndexes(),
		Migration20260315120000AddActorToReviewEvents(),
	}
}
