// Package presenter writes user-facing CLI output: status messages, skill
// listings, evaluation reports and pipeline log lines, with color support
// and a quiet mode.
package presenter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
	"github.com/jingkaihe/skillhub/pkg/registry"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

// Presenter is the CLI output surface.
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
	Section(title string)
	Prompt(question string, options ...string) string
	SkillTable(list []skills.Skill)
	SkillDetail(s skills.Skill, schema evaluation.Schema)
	Scores(r evaluation.Result, schema evaluation.Schema)
	Counts(c registry.Counts)
	PipelineLine(line string)
	Separator()
	SetQuiet(quiet bool)
	IsQuiet() bool
}

// TerminalPresenter implements Presenter for a terminal.
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	input       io.Reader
	colorMode   ColorMode
	quiet       bool
}

// ColorMode selects when output is colored.
type ColorMode int

const (
	// ColorAuto lets fatih/color detect terminal support.
	ColorAuto ColorMode = iota
	// ColorAlways forces color.
	ColorAlways
	// ColorNever disables color.
	ColorNever
)

// New creates a presenter on stdout/stderr.
func New() *TerminalPresenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions creates a presenter with custom writers and color mode.
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	p := &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		input:       os.Stdin,
		colorMode:   colorMode,
	}

	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	case ColorAuto:
	}

	return p
}

// SetInput replaces the reader Prompt consumes.
func (p *TerminalPresenter) SetInput(r io.Reader) {
	p.input = r
}

func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}

	switch os.Getenv("SKILLHUB_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error writes err to stderr, prefixed with context when given.
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}

	errorColor := color.New(color.FgRed, color.Bold)
	if context != "" {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
	} else {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
	}
}

// Success writes a green check line.
func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgGreen, color.Bold).Fprintf(p.output, "✓ %s\n", message)
}

// Warning writes a yellow warning line.
func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgYellow, color.Bold).Fprintf(p.output, "⚠ %s\n", message)
}

// Info writes message as-is.
func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.output, "%s\n", message)
}

// Section writes an underlined header.
func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}

	headerColor := color.New(color.Bold)
	headerColor.Fprintf(p.output, "%s\n", title)
	headerColor.Fprintf(p.output, "%s\n", strings.Repeat("-", len([]rune(title))))
}

// Prompt asks question and returns the trimmed answer line.
func (p *TerminalPresenter) Prompt(question string, options ...string) string {
	promptColor := color.New(color.FgCyan)
	if len(options) > 0 {
		promptColor.Fprintf(p.output, "%s [%s]: ", question, strings.Join(options, "/"))
	} else {
		promptColor.Fprintf(p.output, "%s: ", question)
	}

	response, err := bufio.NewReader(p.input).ReadString('\n')
	if err != nil && response == "" {
		return ""
	}
	return strings.TrimSpace(response)
}

func statusColor(s skills.Status) *color.Color {
	switch s {
	case skills.StatusApproved:
		return color.New(color.FgGreen)
	case skills.StatusPending:
		return color.New(color.FgYellow)
	case skills.StatusRejected:
		return color.New(color.FgRed)
	}
	return color.New(color.Reset)
}

func toneColor(t evaluation.Tone) *color.Color {
	switch t {
	case evaluation.ToneGood:
		return color.New(color.FgGreen, color.Bold)
	case evaluation.ToneWarning:
		return color.New(color.FgYellow, color.Bold)
	}
	return color.New(color.FgRed, color.Bold)
}

// SkillTable writes one row per skill.
func (p *TerminalPresenter) SkillTable(list []skills.Skill) {
	if p.quiet {
		return
	}
	if len(list) == 0 {
		p.Info("No skills found matching your criteria.")
		return
	}

	w := tabwriter.NewWriter(p.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tCATEGORY\tSTATUS\tDOWNLOADS\tRATING")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%.1f\n",
			s.ID, s.Title, s.Author, s.Category,
			statusColor(s.Status).Sprint(s.Status), s.Downloads, s.Rating)
	}
	w.Flush()
}

// SkillDetail writes a skill's metadata and evaluation report.
func (p *TerminalPresenter) SkillDetail(s skills.Skill, schema evaluation.Schema) {
	if p.quiet {
		return
	}

	color.New(color.Bold).Fprintf(p.output, "%s ", s.Title)
	statusColor(s.Status).Fprintf(p.output, "[%s]\n", s.Status)
	fmt.Fprintf(p.output, "Author: %s | Version: v%s | Category: %s\n", s.Author, s.Version, s.Category)
	if len(s.Tags) > 0 {
		fmt.Fprintf(p.output, "Tags: %s\n", strings.Join(s.Tags, ", "))
	}
	fmt.Fprintf(p.output, "Downloads: %d | Rating: %.1f | Submitted: %s\n",
		s.Downloads, s.Rating, s.SubmittedAt.Format("2006-01-02"))
	if s.Description != "" {
		fmt.Fprintf(p.output, "\n%s\n", s.Description)
	}

	fmt.Fprintln(p.output)
	p.Section("Evaluation Report")
	p.Scores(s.EvaluationScores, schema)

	if s.AdminNotes != "" {
		fmt.Fprintln(p.output)
		color.New(color.Faint).Fprintf(p.output, "Admin notes: %s\n", s.AdminNotes)
	}
}

// Scores writes one line per schema category, then the overall score. An
// unevaluated category (score 0) reads "Pending".
func (p *TerminalPresenter) Scores(r evaluation.Result, schema evaluation.Schema) {
	if p.quiet {
		return
	}

	w := tabwriter.NewWriter(p.output, 0, 0, 2, ' ', 0)
	for _, key := range schema.Keys {
		c, _ := r.Get(key)
		if c.Score == 0 {
			fmt.Fprintf(w, "%s\t%s\n", schema.Label(key), "Pending")
			continue
		}
		grade := schema.Grade(c.Score)
		fmt.Fprintf(w, "%s\t%s\t%s\n", schema.Label(key),
			toneColor(grade.Tone).Sprintf("%d/100", c.Score), grade.Label)
		if c.Explanation != "" {
			fmt.Fprintf(w, "\t%s\n", c.Explanation)
		}
	}
	w.Flush()

	if overall := r.Overall(); overall > 0 {
		grade := schema.Grade(overall)
		fmt.Fprintf(p.output, "Overall: %s (%s)\n", toneColor(grade.Tone).Sprint(overall), grade.Label)
	}
	if r.Summary != "" {
		fmt.Fprintf(p.output, "%s\n", r.Summary)
	}
}

// Counts writes the per-status totals.
func (p *TerminalPresenter) Counts(c registry.Counts) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.output, "All: %d | %s | %s | %s\n", c.All,
		statusColor(skills.StatusPending).Sprintf("Pending: %d", c.Pending),
		statusColor(skills.StatusApproved).Sprintf("Approved: %d", c.Approved),
		statusColor(skills.StatusRejected).Sprintf("Rejected: %d", c.Rejected))
}

// PipelineLine writes one evaluation log line, colored by its marker.
func (p *TerminalPresenter) PipelineLine(line string) {
	if p.quiet {
		return
	}

	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "▸"):
		color.New(color.FgCyan, color.Bold).Fprintln(p.output, line)
	case strings.HasPrefix(trimmed, "✗"):
		color.New(color.FgRed).Fprintln(p.output, line)
	case strings.HasPrefix(trimmed, "✓"):
		color.New(color.FgGreen).Fprintln(p.output, line)
	default:
		color.New(color.Faint).Fprintln(p.output, line)
	}
}

// Separator writes a horizontal rule.
func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}
	color.New(color.Faint).Fprintf(p.output, "%s\n", strings.Repeat("-", 60))
}

// SetQuiet toggles quiet mode. Errors are still written.
func (p *TerminalPresenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// IsQuiet reports whether quiet mode is on.
func (p *TerminalPresenter) IsQuiet() bool {
	return p.quiet
}

var defaultPresenter = New()

// Default returns the presenter the package-level functions write through.
func Default() Presenter {
	return defaultPresenter
}

// Error writes through the default presenter.
func Error(err error, context string) {
	defaultPresenter.Error(err, context)
}

// Success writes through the default presenter.
func Success(message string) {
	defaultPresenter.Success(message)
}

// Warning writes through the default presenter.
func Warning(message string) {
	defaultPresenter.Warning(message)
}

// Info writes through the default presenter.
func Info(message string) {
	defaultPresenter.Info(message)
}

// Section writes through the default presenter.
func Section(title string) {
	defaultPresenter.Section(title)
}

// SetInput replaces the reader the default presenter prompts from.
func SetInput(r io.Reader) {
	defaultPresenter.SetInput(r)
}

// Prompt reads through the default presenter.
func Prompt(question string, options ...string) string {
	return defaultPresenter.Prompt(question, options...)
}

// SkillTable writes through the default presenter.
func SkillTable(list []skills.Skill) {
	defaultPresenter.SkillTable(list)
}

// SkillDetail writes through the default presenter.
func SkillDetail(s skills.Skill, schema evaluation.Schema) {
	defaultPresenter.SkillDetail(s, schema)
}

// Scores writes through the default presenter.
func Scores(r evaluation.Result, schema evaluation.Schema) {
	defaultPresenter.Scores(r, schema)
}

// Counts writes through the default presenter.
func Counts(c registry.Counts) {
	defaultPresenter.Counts(c)
}

// PipelineLine writes through the default presenter.
func PipelineLine(line string) {
	defaultPresenter.PipelineLine(line)
}

// Separator writes through the default presenter.
func Separator() {
	defaultPresenter.Separator()
}

// SetQuiet toggles quiet mode on the default presenter.
func SetQuiet(quiet bool) {
	defaultPresenter.SetQuiet(quiet)
}

// IsQuiet reports the default presenter's quiet mode.
func IsQuiet() bool {
	return defaultPresenter.IsQuiet()
}
