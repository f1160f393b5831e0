package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
	"github.com/jingkaihe/skillhub/pkg/pipeline"
)

// Tokyo Night palette.
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7"))
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7dcfff")).Bold(true)
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e"))
	statusStyle  = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(lipgloss.Color("236")).
			Padding(0, 1).
			Bold(true)
)

// GetSpinnerChar returns the spinner character for the given index
func GetSpinnerChar(index int) string {
	spinChars := []string{".", "∘", "○", "◌", "◍", "◉", "◎", "●"}
	return spinChars[index%len(spinChars)]
}

// StageIcon is the marker shown in front of a stage row.
func StageIcon(status pipeline.StageStatus, spinnerIndex int) string {
	switch status {
	case pipeline.StageRunning:
		return GetSpinnerChar(spinnerIndex)
	case pipeline.StageComplete:
		return "✓"
	case pipeline.StageFailed:
		return "✗"
	default:
		return "○"
	}
}

// FormatElapsed renders a stage duration with one decimal, e.g. "1.8s".
func FormatElapsed(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// Completion is the fraction of stages that have finished.
func Completion(snap pipeline.Snapshot) float64 {
	if len(snap.Stages) == 0 {
		return 0
	}
	n := 0
	for _, st := range snap.Stages {
		if st.Status == pipeline.StageComplete {
			n++
		}
	}
	return float64(n) / float64(len(snap.Stages))
}

// StageRow renders one stage as "icon label  sublabel  elapsed".
func StageRow(st pipeline.StageState, spinnerIndex int) string {
	icon := StageIcon(st.Status, spinnerIndex)
	label := st.Label
	switch st.Status {
	case pipeline.StageRunning:
		icon, label = runningStyle.Render(icon), runningStyle.Render(label)
	case pipeline.StageComplete:
		icon = goodStyle.Render(icon)
	case pipeline.StageFailed:
		icon, label = badStyle.Render(icon), badStyle.Render(label)
	default:
		icon, label = faintStyle.Render(icon), faintStyle.Render(label)
	}

	row := fmt.Sprintf("%s %s  %s", icon, label, faintStyle.Render(st.Sublabel))
	if st.StartedAt != nil {
		row += "  " + faintStyle.Render(FormatElapsed(st.Elapsed))
	}
	return row
}

// LogLine colours a pipeline log line by its marker.
func LogLine(line string) string {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "▸"):
		return runningStyle.Render(line)
	case strings.HasPrefix(trimmed, "✗"):
		return badStyle.Render(line)
	case strings.HasPrefix(trimmed, "✓"):
		return goodStyle.Render(line)
	default:
		return faintStyle.Render(line)
	}
}

func toneStyle(t evaluation.Tone) lipgloss.Style {
	switch t {
	case evaluation.ToneGood:
		return goodStyle
	case evaluation.ToneWarning:
		return warnStyle
	default:
		return badStyle
	}
}

// ScoreLine renders one evaluation category. A zero score is still pending.
func ScoreLine(schema evaluation.Schema, key string, c evaluation.Category) string {
	label := schema.Label(key)
	score := evaluation.GetScore(c)
	if score == 0 {
		return fmt.Sprintf("%-24s %s", label, faintStyle.Render("Pending"))
	}
	grade := schema.Grade(score)
	return fmt.Sprintf("%-24s %s", label, toneStyle(grade.Tone).Render(fmt.Sprintf("%d/100 %s", score, grade.Label)))
}
