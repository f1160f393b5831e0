package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillhub/pkg/client"
	"github.com/jingkaihe/skillhub/pkg/config"
	"github.com/jingkaihe/skillhub/pkg/pipeline"
	"github.com/jingkaihe/skillhub/pkg/presenter"
	"github.com/jingkaihe/skillhub/pkg/registry"
	"github.com/jingkaihe/skillhub/pkg/scheduler"
	"github.com/jingkaihe/skillhub/pkg/submission"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	c, err := config.Load(config.New())
	require.NoError(t, err)
	return c
}

func newLocalCatalog(t *testing.T, c config.Config) *localCatalog {
	t.Helper()
	reg, err := newRegistry(c, registry.WithScheduler(scheduler.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, err)
	cat := &localCatalog{registry: reg, stages: pipeline.DefaultStages()}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestListConfig_Validate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*ListConfig)
		expectedError string
	}{
		{name: "defaults", mutate: func(*ListConfig) {}},
		{name: "recent alias", mutate: func(c *ListConfig) { c.Sort = "recent" }},
		{name: "known category", mutate: func(c *ListConfig) { c.Category = "Testing" }},
		{name: "all categories", mutate: func(c *ListConfig) { c.Category = registry.All }},
		{name: "unknown sort", mutate: func(c *ListConfig) { c.Sort = "stars" }, expectedError: `unknown sort "stars"`},
		{name: "unknown status", mutate: func(c *ListConfig) { c.Status = "archived" }, expectedError: `invalid status "archived"`},
		{name: "unknown category", mutate: func(c *ListConfig) { c.Category = "Cooking" }, expectedError: `unknown category "Cooking"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewListConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectedError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestNewRegistry_FromConfig(t *testing.T) {
	c := defaultConfig(t)
	reg, err := newRegistry(c)
	require.NoError(t, err)
	defer reg.Close()

	assert.Equal(t, 8, reg.Len())
	assert.Equal(t, skills.RoleEmployee, reg.Role())
	policy, enabled := reg.Policy()
	assert.True(t, enabled)
	assert.Equal(t, registry.DefaultTrigger, policy.Trigger)

	c.AutoReject.Enabled = false
	c.Role = "admin"
	reg, err = newRegistry(c)
	require.NoError(t, err)
	defer reg.Close()

	_, enabled = reg.Policy()
	assert.False(t, enabled)
	assert.Equal(t, skills.RoleAdmin, reg.Role())
}

func TestNewRegistry_SeedFile(t *testing.T) {
	c := defaultConfig(t)
	c.SeedFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := newRegistry(c)
	assert.Error(t, err)
}

func TestLoadStages(t *testing.T) {
	c := defaultConfig(t)
	stages, err := loadStages(c)
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultStages(), stages)

	path := filepath.Join(t.TempDir(), "stages.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`stages:
  - id: parse
    label: Parse
    sublabel: structure
    substeps: ["Reading..."]
    duration: 1s
`), 0o644))
	c.StagesFile = path
	stages, err = loadStages(c)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, time.Second, stages[0].Duration)
}

func TestLocalCatalog_ReviewNeedsAdmin(t *testing.T) {
	ctx := context.Background()
	cat := newLocalCatalog(t, defaultConfig(t))
	notes := "ok"

	_, err := cat.UpdateStatus(ctx, "4", skills.StatusApproved, &notes)
	assert.True(t, errors.Is(err, errAdminRequired))

	require.NoError(t, cat.SetRole(ctx, skills.RoleAdmin))
	updated, err := cat.UpdateStatus(ctx, "4", skills.StatusApproved, &notes)
	require.NoError(t, err)
	assert.Equal(t, skills.StatusApproved, updated.Status)
	assert.Equal(t, "ok", updated.AdminNotes)

	_, err = cat.UpdateStatus(ctx, "missing", skills.StatusApproved, nil)
	assert.True(t, errors.Is(err, client.ErrNotFound))

	_, err = cat.UpdateStatus(ctx, "4", skills.Status("archived"), nil)
	assert.Error(t, err)
}

func TestLocalCatalog_ListAndSubmit(t *testing.T) {
	ctx := context.Background()
	cat := newLocalCatalog(t, defaultConfig(t))

	market, err := cat.Marketplace(ctx, registry.Query{Sort: registry.SortPopular})
	require.NoError(t, err)
	for _, s := range market {
		assert.Equal(t, skills.StatusApproved, s.Status)
	}

	_, counts, err := cat.Admin(ctx, registry.All)
	require.NoError(t, err)
	assert.Equal(t, registry.Counts{All: 8, Pending: 2, Approved: 5, Rejected: 1}, counts)

	created, err := cat.Submit(ctx, submission.Request{
		Method: skills.MethodTemplate,
		Template: &submission.TemplateForm{
			Title:    "Release Notes",
			Goal:     "Write release notes",
			Author:   "Bob",
			Category: "Documentation",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, skills.StatusPending, created.Status)

	pending, _, err := cat.Admin(ctx, string(skills.StatusPending))
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	_, err = cat.History(ctx, created.ID)
	assert.Error(t, err, "history needs a review log")
}

func TestBuildSubmission_Template(t *testing.T) {
	req, err := buildSubmission(&SubmitConfig{Form: submission.TemplateForm{
		Title:    "Release Notes",
		Goal:     "Write release notes",
		Author:   "Bob",
		Category: "Documentation",
	}})
	require.NoError(t, err)
	assert.Equal(t, skills.MethodTemplate, req.Method)
	require.NotNil(t, req.Template)
	assert.Nil(t, req.Upload)
	assert.Equal(t, "Write release notes", req.Template.Goal)
}

func TestBuildSubmission_FileUsesFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SKILL.md")
	require.NoError(t, os.WriteFile(path, []byte(`---
name: Release Notes
author: Bob
category: Documentation
tags: [docs, release]
---
# Release Notes

Write release notes.
`), 0o644))

	req, err := buildSubmission(&SubmitConfig{File: path, Form: submission.TemplateForm{Author: "Carol"}})
	require.NoError(t, err)
	assert.Equal(t, skills.MethodUpload, req.Method)
	require.NotNil(t, req.Upload)
	assert.Equal(t, "Release Notes", req.Upload.Title)
	assert.Equal(t, "Carol", req.Upload.Author, "flags win over frontmatter")
	assert.Equal(t, "Documentation", req.Upload.Category)
	assert.Equal(t, "docs, release", req.Upload.Tags)
	assert.Contains(t, req.Upload.Content, "Write release notes.")
}

func TestBuildSubmission_TitleFromFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy-helper.md")
	require.NoError(t, os.WriteFile(path, []byte("Deploy things.\n"), 0o644))

	req, err := buildSubmission(&SubmitConfig{File: path})
	require.NoError(t, err)
	assert.Equal(t, "deploy-helper", req.Upload.Title)
}

func TestBuildSubmission_Errors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.md")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))

	_, err := buildSubmission(&SubmitConfig{File: empty})
	assert.ErrorContains(t, err, "document is empty")

	_, err = buildSubmission(&SubmitConfig{File: filepath.Join(dir, "missing.md")})
	assert.Error(t, err)

	_, err = buildSubmission(&SubmitConfig{Form: submission.TemplateForm{BashScript: filepath.Join(dir, "missing.sh")}})
	assert.ErrorContains(t, err, "failed to read bash script")
}

func TestEditorCommand(t *testing.T) {
	tests := []struct {
		editor   string
		expected []string
		wantErr  bool
	}{
		{editor: "vim", expected: []string{"vim", "/tmp/SKILL.md"}},
		{editor: "code --wait", expected: []string{"code", "--wait", "/tmp/SKILL.md"}},
		{editor: `"/opt/My Editor/bin/edit" -n`, expected: []string{"/opt/My Editor/bin/edit", "-n", "/tmp/SKILL.md"}},
		{editor: "   ", wantErr: true},
		{editor: `vim "unterminated`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.editor, func(t *testing.T) {
			args, err := editorCommand(tt.editor, "/tmp/SKILL.md")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, args)
		})
	}
}

func TestEditDocument(t *testing.T) {
	t.Setenv("VISUAL", `sh -c 'printf "# Edited\n" >> "$0"'`)

	edited, err := editDocument("# Draft\n")
	require.NoError(t, err)
	assert.Equal(t, "# Draft\n# Edited\n", edited)
}

func TestValidateImportConfig(t *testing.T) {
	tests := []struct {
		name          string
		config        *ImportConfig
		args          []string
		expectedError string
	}{
		{name: "url", config: &ImportConfig{}, args: []string{"https://clawhub.ai/a/b"}},
		{name: "dir", config: &ImportConfig{Dir: "."}},
		{name: "nothing", config: &ImportConfig{}, expectedError: "a URL or --dir is required"},
		{name: "both", config: &ImportConfig{Dir: "."}, args: []string{"https://x"}, expectedError: "cannot be combined"},
		{name: "dir with output", config: &ImportConfig{Dir: ".", Output: "out.md"}, expectedError: "--output only applies"},
		{name: "bad category", config: &ImportConfig{Category: "Cooking"}, args: []string{"https://x"}, expectedError: `unknown category "Cooking"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateImportConfig(tt.config, tt.args)
			if tt.expectedError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestRunPlainPipeline_Pending(t *testing.T) {
	clock := scheduler.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	stages := []pipeline.Stage{
		{ID: "parse", Label: "Parse", SubSteps: []string{"Reading..."}, Duration: time.Second},
		{ID: "score", Label: "Score", SubSteps: []string{"Scoring...", "Summing..."}, Duration: 2 * time.Second},
	}

	done := make(chan pipeline.Snapshot, 1)
	go func() {
		done <- runPlainPipeline(context.Background(), skills.Skill{Status: skills.StatusPending}, stages, clock)
	}()

	require.Eventually(t, func() bool { return clock.Pending() == 1 }, time.Second, time.Millisecond)
	clock.Advance(pipeline.TotalDuration(stages))

	select {
	case snap := <-done:
		assert.True(t, snap.Done)
		assert.Empty(t, snap.Failure)
		for _, st := range snap.Stages {
			assert.Equal(t, pipeline.StageComplete, st.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not finish")
	}
}

func TestRunPlainPipeline_Reviewed(t *testing.T) {
	clock := scheduler.NewManual(time.Now())
	snap := runPlainPipeline(context.Background(), skills.Skill{Status: skills.StatusApproved}, pipeline.DefaultStages(), clock)
	assert.True(t, snap.Done)
	assert.Zero(t, clock.Pending())
}

func TestRunPlainPipeline_Cancelled(t *testing.T) {
	clock := scheduler.NewManual(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap := runPlainPipeline(ctx, skills.Skill{Status: skills.StatusPending}, pipeline.DefaultStages(), clock)
	assert.False(t, snap.Done)
}

func TestPrintStages(t *testing.T) {
	var buf bytes.Buffer
	printStages(&buf, pipeline.DefaultStages())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(pipeline.DefaultStages())+2)
	assert.Contains(t, lines[0], "STAGE")
	assert.Contains(t, lines[1], "Parse & Validate")
	assert.Contains(t, lines[len(lines)-1], "10.8s")
}

func TestConfirmOverride(t *testing.T) {
	approved := skills.Skill{Title: "Code Review Assistant", Status: skills.StatusApproved}
	pending := skills.Skill{Title: "New Skill", Status: skills.StatusPending}

	tests := []struct {
		name     string
		current  skills.Skill
		status   skills.Status
		yes      bool
		quiet    bool
		input    string
		expected bool
		prompted bool
		wantErr  bool
	}{
		{name: "pending skill", current: pending, status: skills.StatusRejected, expected: true},
		{name: "same decision", current: approved, status: skills.StatusApproved, expected: true},
		{name: "yes flag", current: approved, status: skills.StatusRejected, yes: true, expected: true},
		{name: "confirmed", current: approved, status: skills.StatusRejected, input: "y\n", expected: true, prompted: true},
		{name: "confirmed long form", current: approved, status: skills.StatusRejected, input: "YES\n", expected: true, prompted: true},
		{name: "declined", current: approved, status: skills.StatusRejected, input: "n\n", prompted: true},
		{name: "no answer", current: approved, status: skills.StatusRejected, prompted: true},
		{name: "quiet without yes", current: approved, status: skills.StatusRejected, quiet: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := presenter.NewWithOptions(&out, &out, presenter.ColorNever)
			p.SetInput(strings.NewReader(tt.input))
			p.SetQuiet(tt.quiet)

			ok, err := confirmOverride(p, tt.current, tt.status, tt.yes)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "--yes")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
			if tt.prompted {
				assert.Contains(t, out.String(), `"Code Review Assistant" is already approved. Change it to rejected? [y/N]: `)
			} else {
				assert.Empty(t, out.String())
			}
		})
	}
}
