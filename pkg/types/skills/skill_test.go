package skills

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
)

func TestDraft_ToSkill(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	d := Draft{
		Title:            "X",
		Author:           "A",
		Version:          "1.0.0",
		Tags:             []string{"a", "a"},
		Category:         "DevOps",
		EvaluationScores: evaluation.Default().Zero(),
		SubmissionMethod: MethodTemplate,
	}

	s := d.ToSkill("id-1", now)
	assert.Equal(t, "id-1", s.ID)
	assert.Equal(t, StatusPending, s.Status)
	assert.Equal(t, 0, s.Downloads)
	assert.Equal(t, float64(0), s.Rating)
	assert.Equal(t, now, s.SubmittedAt)
	assert.Equal(t, []string{"a", "a"}, s.Tags, "duplicate tags are kept")

	d.Tags[0] = "changed"
	assert.Equal(t, "a", s.Tags[0], "skill does not alias draft tags")
}

func TestSkill_CloneIsDeep(t *testing.T) {
	s := Skill{
		Tags:             []string{"x"},
		EvaluationScores: evaluation.NewResult("", map[string]evaluation.Category{"security": evaluation.Bare(1)}),
	}
	c := s.Clone()
	c.Tags[0] = "y"
	c.EvaluationScores.Scores["security"] = evaluation.Bare(2)

	assert.Equal(t, "x", s.Tags[0])
	assert.Equal(t, 1, s.EvaluationScores.Scores["security"].Score)
}

func TestSkill_JSONTimestampIsISO8601(t *testing.T) {
	s := Skill{ID: "1", SubmittedAt: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)}
	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"submittedAt":"2026-01-15T10:30:00Z"`)
	assert.NotContains(t, string(out), "adminNotes")
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" Admin ")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, r)

	_, ok = ParseRole("owner")
	assert.False(t, ok)
}

func TestStatusValid(t *testing.T) {
	for _, s := range Statuses() {
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("archived").Valid())
}

func TestIsCategory(t *testing.T) {
	assert.True(t, IsCategory("DevOps"))
	assert.False(t, IsCategory("devops"))
}
