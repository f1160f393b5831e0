package tui

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
	"github.com/jingkaihe/skillhub/pkg/pipeline"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

// RunPipeline animates the pipeline for skill until the user quits, or until
// the run finishes when exitOnDone is set. It returns the last snapshot.
func RunPipeline(ctx context.Context, skill skills.Skill, stages []pipeline.Stage, schema evaluation.Schema, exitOnDone bool) (pipeline.Snapshot, error) {
	var modelOpts []ModelOption
	if exitOnDone {
		modelOpts = append(modelOpts, WithExitOnDone())
	}
	model := NewModel(skill, stages, schema, modelOpts...)

	p := tea.NewProgram(model, tea.WithContext(ctx))
	result, err := p.Run()

	final := model.Snapshot()
	if m, ok := result.(Model); ok {
		m.run.Stop()
		final = m.Snapshot()
	} else {
		model.run.Stop()
	}

	if err != nil {
		if ctx.Err() != nil {
			return final, ctx.Err()
		}
		return final, errors.Wrap(err, "error running program")
	}
	return final, nil
}

// IsTTY checks if the terminal supports advanced features
func IsTTY() bool {
	// Simple heuristic - if STDIN is a TTY, we assume we have good terminal support
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
