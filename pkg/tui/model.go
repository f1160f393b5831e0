// Package tui renders a live evaluation pipeline run in the terminal with
// bubbletea.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
	"github.com/jingkaihe/skillhub/pkg/pipeline"
	"github.com/jingkaihe/skillhub/pkg/scheduler"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

const (
	spinnerInterval = 120 * time.Millisecond
	snapshotBuffer  = 64
	headerHeight    = 4
)

// Model is the bubbletea model of one pipeline run.
type Model struct {
	skill  skills.Skill
	schema evaluation.Schema
	run    *pipeline.Full
	snaps  chan pipeline.Snapshot

	snap         pipeline.Snapshot
	viewport     viewport.Model
	bar          progress.Model
	spinnerIndex int
	width        int
	height       int
	ready        bool
	done         bool
	exitOnDone   bool
	sched        scheduler.Scheduler
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithScheduler sets the clock the run is animated with.
func WithScheduler(sched scheduler.Scheduler) ModelOption {
	return func(m *Model) {
		m.sched = sched
	}
}

// WithExitOnDone quits the program as soon as the run finishes instead of
// waiting for a key press.
func WithExitOnDone() ModelOption {
	return func(m *Model) {
		m.exitOnDone = true
	}
}

// NewModel creates a model that animates the pipeline for skill.
func NewModel(skill skills.Skill, stages []pipeline.Stage, schema evaluation.Schema, opts ...ModelOption) Model {
	m := Model{
		skill:  skill,
		schema: schema,
		sched:  scheduler.Real(),
		snaps:  make(chan pipeline.Snapshot, snapshotBuffer),
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
	for _, opt := range opts {
		opt(&m)
	}

	m.run = pipeline.NewFull(stages, skill.Status, m.sched)
	snaps := m.snaps
	m.run.Subscribe(func(s pipeline.Snapshot) {
		select {
		case snaps <- s:
		default:
		}
	})
	m.snap = m.run.Snapshot()

	m.viewport = viewport.New(80, 10)
	m.bar.Width = 40
	m.refreshLog()
	return m
}

// Snapshot is the latest state the model has rendered.
func (m Model) Snapshot() pipeline.Snapshot {
	return m.snap
}

// Done reports whether the run has finished.
func (m Model) Done() bool {
	return m.done
}

type snapshotMsg pipeline.Snapshot

type runDoneMsg pipeline.Snapshot

type spinMsg struct{}

// Init starts the run.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.start(), m.waitForSnapshot(), spin())
}

func (m Model) start() tea.Cmd {
	run := m.run
	return func() tea.Msg {
		run.Start()
		return nil
	}
}

func (m Model) waitForSnapshot() tea.Cmd {
	snaps, run := m.snaps, m.run
	return func() tea.Msg {
		select {
		case s := <-snaps:
			return snapshotMsg(s)
		case <-run.Done():
			return runDoneMsg(run.Snapshot())
		}
	}
}

func spin() tea.Cmd {
	return tea.Tick(spinnerInterval, func(time.Time) tea.Msg {
		return spinMsg{}
	})
}

// Update handles the message updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.run.Stop()
			return m, tea.Quit
		}

	case snapshotMsg:
		m.snap = pipeline.Snapshot(msg)
		m.refreshLog()
		if m.snap.Done {
			return m.finish()
		}
		return m, m.waitForSnapshot()

	case runDoneMsg:
		m.snap = pipeline.Snapshot(msg)
		m.refreshLog()
		return m.finish()

	case spinMsg:
		if m.done {
			return m, nil
		}
		m.spinnerIndex = (m.spinnerIndex + 1) % 8
		return m, spin()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		stageRows := len(m.snap.Stages)
		footer := 3 + len(m.schema.Keys)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(3, msg.Height-headerHeight-stageRows-footer)
		m.bar.Width = max(10, min(60, msg.Width-4))
		m.refreshLog()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) finish() (tea.Model, tea.Cmd) {
	m.done = true
	if m.exitOnDone {
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) refreshLog() {
	lines := make([]string, len(m.snap.Log))
	for i, l := range m.snap.Log {
		lines[i] = LogLine(l)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

// View renders the UI
func (m Model) View() string {
	header := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.skill.Title),
		faintStyle.Render(fmt.Sprintf("by %s · v%s · %s", m.skill.Author, m.skill.Version, m.skill.Category)),
		"",
	)

	rows := make([]string, len(m.snap.Stages))
	for i, st := range m.snap.Stages {
		rows[i] = StageRow(st, m.spinnerIndex)
	}

	sections := []string{
		header,
		strings.Join(rows, "\n"),
		m.bar.ViewAs(Completion(m.snap)),
		"",
		m.viewport.View(),
	}

	if m.done {
		sections = append(sections, "", m.resultView())
	}
	sections = append(sections, m.statusView())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) resultView() string {
	if m.snap.Failure != "" {
		return badStyle.Render("Evaluation failed: " + m.snap.Failure)
	}

	lines := make([]string, 0, len(m.schema.Keys)+1)
	for _, key := range m.schema.Keys {
		c, _ := m.skill.EvaluationScores.Get(key)
		lines = append(lines, ScoreLine(m.schema, key, c))
	}
	if overall := m.skill.EvaluationScores.Overall(); overall > 0 {
		grade := m.schema.Grade(overall)
		lines = append(lines, fmt.Sprintf("%-24s %s", "Overall", toneStyle(grade.Tone).Render(fmt.Sprintf("%d (%s)", overall, grade.Label))))
	}
	return strings.Join(lines, "\n")
}

func (m Model) statusView() string {
	var status string
	switch {
	case m.snap.Failure != "":
		status = "Failed"
	case m.done:
		status = "Complete"
	case m.snap.ActiveStep != "":
		status = fmt.Sprintf("%s %s", GetSpinnerChar(m.spinnerIndex), m.snap.ActiveStep)
	default:
		status = "Waiting"
	}
	return statusStyle.Render(status + " │ q: Quit │ ↑/↓: Scroll")
}
