package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
	"github.com/jingkaihe/skillhub/pkg/pipeline"
)

func TestGetSpinnerChar(t *testing.T) {
	assert.Equal(t, ".", GetSpinnerChar(0))
	assert.Equal(t, "●", GetSpinnerChar(7))
	assert.Equal(t, ".", GetSpinnerChar(8))
}

func TestStageIcon(t *testing.T) {
	tests := []struct {
		status pipeline.StageStatus
		want   string
	}{
		{pipeline.StagePending, "○"},
		{pipeline.StageRunning, "∘"},
		{pipeline.StageComplete, "✓"},
		{pipeline.StageFailed, "✗"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, StageIcon(tt.status, 1))
		})
	}
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0.0s", FormatElapsed(0))
	assert.Equal(t, "1.8s", FormatElapsed(1800*time.Millisecond))
	assert.Equal(t, "2.4s", FormatElapsed(2400*time.Millisecond))
}

func TestCompletion(t *testing.T) {
	assert.Equal(t, 0.0, Completion(pipeline.Snapshot{}))

	snap := pipeline.Snapshot{Stages: []pipeline.StageState{
		{Status: pipeline.StageComplete},
		{Status: pipeline.StageRunning},
		{Status: pipeline.StagePending},
		{Status: pipeline.StageComplete},
	}}
	assert.Equal(t, 0.5, Completion(snap))
}

func TestStageRow(t *testing.T) {
	started := time.Now()
	row := StageRow(pipeline.StageState{
		Label:     "Security Scan",
		Sublabel:  "Static analysis",
		Status:    pipeline.StageComplete,
		StartedAt: &started,
		Elapsed:   2400 * time.Millisecond,
	}, 0)
	assert.Contains(t, row, "✓")
	assert.Contains(t, row, "Security Scan")
	assert.Contains(t, row, "Static analysis")
	assert.Contains(t, row, "2.4s")

	pending := StageRow(pipeline.StageState{Label: "Quality", Status: pipeline.StagePending}, 0)
	assert.Contains(t, pending, "○")
	assert.NotContains(t, pending, "0.0s")
}

func TestLogLine(t *testing.T) {
	for _, line := range []string{
		pipeline.HeaderLine("Parse"),
		pipeline.ProgressLine("Reading..."),
		pipeline.DoneLine("Reading..."),
		"  ✗ Rejected",
	} {
		assert.Contains(t, LogLine(line), strings.TrimSpace(line))
	}
}

func TestScoreLine(t *testing.T) {
	schema := evaluation.Default()
	key := schema.Keys[0]

	assert.Contains(t, ScoreLine(schema, key, evaluation.Bare(0)), "Pending")

	line := ScoreLine(schema, key, evaluation.Bare(95))
	assert.Contains(t, line, schema.Label(key))
	assert.Contains(t, line, "95/100")
	assert.Contains(t, line, schema.Grade(95).Label)
}
