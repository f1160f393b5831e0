package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
	"github.com/jingkaihe/skillhub/pkg/pipeline"
	"github.com/jingkaihe/skillhub/pkg/scheduler"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

func testStages() []pipeline.Stage {
	return []pipeline.Stage{
		{ID: "parse", Label: "Parse", Sublabel: "structure", SubSteps: []string{"Reading..."}, Duration: time.Second},
		{ID: "score", Label: "Score", Sublabel: "scoring", SubSteps: []string{"Scoring..."}, Duration: time.Second},
	}
}

func testSkill(status skills.Status) skills.Skill {
	return skills.Skill{
		ID:               "s1",
		Title:            "Release Notes",
		Author:           "Alice",
		Version:          "1.0.0",
		Category:         "Documentation",
		Status:           status,
		EvaluationScores: evaluation.Default().Zero(),
	}
}

// drain feeds snapshots into the model until the run reports done.
func drain(t *testing.T, m Model) Model {
	t.Helper()
	for i := 0; i < 100 && !m.Done(); i++ {
		next, _ := m.Update(m.waitForSnapshot()())
		m = next.(Model)
	}
	require.True(t, m.Done())
	return m
}

func TestModel_ReviewedSkillIsTerminal(t *testing.T) {
	clock := scheduler.NewManual(time.Now())
	m := NewModel(testSkill(skills.StatusApproved), testStages(), evaluation.Default(), WithScheduler(clock))

	assert.True(t, m.Snapshot().Done)
	m = drain(t, m)
	assert.Equal(t, 1.0, Completion(m.Snapshot()))
	assert.Contains(t, m.View(), "Complete")
}

func TestModel_AnimatesPendingSkill(t *testing.T) {
	clock := scheduler.NewManual(time.Now())
	m := NewModel(testSkill(skills.StatusPending), testStages(), evaluation.Default(), WithScheduler(clock))
	assert.False(t, m.Snapshot().Done)
	assert.Contains(t, m.View(), "Waiting")

	m.start()()
	next, _ := m.Update(m.waitForSnapshot()())
	m = next.(Model)
	assert.Equal(t, pipeline.StageRunning, m.Snapshot().Stages[0].Status)

	clock.Advance(pipeline.TotalDuration(testStages()))
	m = drain(t, m)

	snap := m.Snapshot()
	assert.Empty(t, snap.Failure)
	assert.Equal(t, []string{
		pipeline.HeaderLine("Parse"),
		pipeline.DoneLine("Reading..."),
		pipeline.HeaderLine("Score"),
		pipeline.DoneLine("Scoring..."),
	}, snap.Log)

	view := m.View()
	assert.Contains(t, view, "Release Notes")
	assert.Contains(t, view, "Pending", "zero scores render as pending")
}

func TestModel_QuitStopsRun(t *testing.T) {
	clock := scheduler.NewManual(time.Now())
	m := NewModel(testSkill(skills.StatusPending), testStages(), evaluation.Default(), WithScheduler(clock))
	m.start()()
	require.Equal(t, 1, clock.Pending())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 0, clock.Pending())
}

func TestModel_ExitOnDone(t *testing.T) {
	clock := scheduler.NewManual(time.Now())
	m := NewModel(testSkill(skills.StatusRejected), testStages(), evaluation.Default(), WithScheduler(clock), WithExitOnDone())

	_, cmd := m.Update(m.waitForSnapshot()())
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_WindowSize(t *testing.T) {
	m := NewModel(testSkill(skills.StatusApproved), testStages(), evaluation.Default())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = next.(Model)
	assert.True(t, m.ready)
	assert.Equal(t, 100, m.viewport.Width)
	assert.Equal(t, 60, m.bar.Width)
}
