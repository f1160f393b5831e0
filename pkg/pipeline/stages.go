// Package pipeline simulates the staged evaluation of a skill submission.
// Nothing is analysed: a run only walks a table of stages and sub-steps on a
// timer so viewers get progress feedback while a submission awaits review.
package pipeline

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Stage is one row of the pipeline table.
type Stage struct {
	ID       string        `yaml:"id" json:"id"`
	Label    string        `yaml:"label" json:"label"`
	Sublabel string        `yaml:"sublabel" json:"sublabel"`
	SubSteps []string      `yaml:"substeps" json:"subSteps"`
	Duration time.Duration `yaml:"duration" json:"-"`
}

// MarshalJSON reports the duration in milliseconds.
func (s Stage) MarshalJSON() ([]byte, error) {
	type plain Stage
	return json.Marshal(struct {
		plain
		DurationMS int64 `json:"durationMs"`
	}{plain(s), s.Duration.Milliseconds()})
}

// StepDelay is the time each sub-step of s takes. The sub-steps share the
// stage duration evenly.
func (s Stage) StepDelay() time.Duration {
	if len(s.SubSteps) == 0 {
		return 0
	}
	return s.Duration / time.Duration(len(s.SubSteps))
}

// DefaultStages returns the built-in five-stage table.
func DefaultStages() []Stage {
	return []Stage{
		{
			ID:       "parse",
			Label:    "Parse & Validate",
			Sublabel: "SKILL.md structure",
			SubSteps: []string{
				"Parsing markdown AST...",
				"Validating section headers...",
				"Extracting procedure steps...",
				"Checking schema compliance...",
			},
			Duration: 1800 * time.Millisecond,
		},
		{
			ID:       "security",
			Label:    "Security Analysis",
			Sublabel: "Threat & risk scan",
			SubSteps: []string{
				"Scanning for injection vectors...",
				"Analyzing permission boundaries...",
				"Checking data exposure risks...",
				"Evaluating credential handling...",
				"Assessing sandboxing requirements...",
			},
			Duration: 2800 * time.Millisecond,
		},
		{
			ID:       "compatibility",
			Label:    "Compatibility Check",
			Sublabel: "Enterprise readiness",
			SubSteps: []string{
				"Testing platform integrations...",
				"Validating API contract schemas...",
				"Checking version constraints...",
				"Assessing cross-environment portability...",
			},
			Duration: 2200 * time.Millisecond,
		},
		{
			ID:       "quality",
			Label:    "Quality Assessment",
			Sublabel: "Capability scoring",
			SubSteps: []string{
				"Measuring procedure completeness...",
				"Evaluating verification criteria...",
				"Analyzing edge case coverage...",
				"Computing quality confidence score...",
			},
			Duration: 2400 * time.Millisecond,
		},
		{
			ID:       "report",
			Label:    "Generate Report",
			Sublabel: "Final synthesis",
			SubSteps: []string{
				"Aggregating category scores...",
				"Generating explanations...",
				"Computing overall assessment...",
				"Finalizing evaluation report...",
			},
			Duration: 1600 * time.Millisecond,
		},
	}
}

// TotalDuration is the nominal length of a full run over stages.
func TotalDuration(stages []Stage) time.Duration {
	var total time.Duration
	for _, s := range stages {
		total += s.Duration
	}
	return total
}

// ValidateStages checks that a table is usable.
func ValidateStages(stages []Stage) error {
	if len(stages) == 0 {
		return errors.New("stage table is empty")
	}
	seen := make(map[string]struct{}, len(stages))
	for i, s := range stages {
		if strings.TrimSpace(s.ID) == "" {
			return errors.Errorf("stage %d has no id", i)
		}
		if _, dup := seen[s.ID]; dup {
			return errors.Errorf("duplicate stage id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Label == "" {
			return errors.Errorf("stage %q has no label", s.ID)
		}
		if s.Duration < 0 {
			return errors.Errorf("stage %q has negative duration %s", s.ID, s.Duration)
		}
	}
	return nil
}

type stageFile struct {
	Stages []Stage `yaml:"stages"`
}

// ParseStages decodes a YAML stage table:
//
//	stages:
//	  - id: parse
//	    label: Parse & Validate
//	    sublabel: SKILL.md structure
//	    duration: 1800ms
//	    substeps: ["Parsing markdown AST..."]
func ParseStages(data []byte) ([]Stage, error) {
	var f stageFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to decode stage table")
	}
	if err := ValidateStages(f.Stages); err != nil {
		return nil, err
	}
	return f.Stages, nil
}

// LoadStages reads a YAML stage table from path.
func LoadStages(path string) ([]Stage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read stage table %s", path)
	}
	stages, err := ParseStages(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid stage table %s", path)
	}
	return stages, nil
}

// Table holds the stage table used for new runs. It is safe for concurrent
// use; a reload only affects runs created afterwards.
type Table struct {
	mu     sync.RWMutex
	stages []Stage
}

// NewTable creates a Table holding stages.
func NewTable(stages []Stage) *Table {
	t := &Table{}
	t.Set(stages)
	return t
}

// Stages returns a copy of the current table.
func (t *Table) Stages() []Stage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneStages(t.stages)
}

// Set replaces the current table.
func (t *Table) Set(stages []Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages = cloneStages(stages)
}

func cloneStages(stages []Stage) []Stage {
	out := make([]Stage, len(stages))
	for i, s := range stages {
		out[i] = s
		out[i].SubSteps = append([]string(nil), s.SubSteps...)
	}
	return out
}
