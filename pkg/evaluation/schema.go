package evaluation

import (
	"strings"

	"github.com/pkg/errors"
)

// SchemaName identifies one of the known category sets.
type SchemaName string

const (
	// Safety3 is the original three-category schema.
	Safety3 SchemaName = "safety3"
	// Safety5 adds credential and network egress categories. It is the default.
	Safety5 SchemaName = "safety5"
	// Risk5 is the risk-oriented rubric where a higher score is more severe.
	Risk5 SchemaName = "risk5"
)

// Direction states what a higher score means.
type Direction int

const (
	// HigherIsSafer means 100 is the best possible score.
	HigherIsSafer Direction = iota
	// HigherIsRiskier means 100 is the most severe risk.
	HigherIsRiskier
)

// Tone is a presentation-neutral classification of a score.
type Tone string

const (
	ToneGood    Tone = "good"
	ToneWarning Tone = "warning"
	ToneBad     Tone = "bad"
)

// Grade is the label and tone a schema assigns to a score.
type Grade struct {
	Label string `json:"label"`
	Tone  Tone   `json:"tone"`
}

// Schema is a fixed category key set with one scoring direction.
type Schema struct {
	Name      SchemaName
	Keys      []string
	Labels    map[string]string
	Direction Direction
}

var schemas = map[SchemaName]Schema{
	Safety3: {
		Name: Safety3,
		Keys: []string{"security", "compatibility", "quality"},
		Labels: map[string]string{
			"security":      "Security",
			"compatibility": "Compatibility",
			"quality":       "Quality",
		},
		Direction: HigherIsSafer,
	},
	Safety5: {
		Name: Safety5,
		Keys: []string{"security", "credentials", "compatibility", "quality", "networkEgress"},
		Labels: map[string]string{
			"security":      "Security",
			"credentials":   "Credentials",
			"compatibility": "Compatibility",
			"quality":       "Quality",
			"networkEgress": "Network Egress",
		},
		Direction: HigherIsSafer,
	},
	Risk5: {
		Name: Risk5,
		Keys: []string{"purposeCapability", "instructionScope", "credentials", "installMechanism", "persistencePrivilege"},
		Labels: map[string]string{
			"purposeCapability":    "Purpose & Capability",
			"instructionScope":     "Instruction Scope",
			"installMechanism":     "Install Mechanism",
			"credentials":          "Credentials",
			"persistencePrivilege": "Persistence & Privilege",
		},
		Direction: HigherIsRiskier,
	},
}

// Default returns the canonical schema.
func Default() Schema {
	return schemas[Safety5]
}

// Lookup returns the schema registered under name (case-insensitive).
func Lookup(name string) (Schema, error) {
	s, ok := schemas[SchemaName(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return Schema{}, errors.Errorf("unknown score schema %q (expected one of %s, %s, %s)", name, Safety3, Safety5, Risk5)
	}
	return s, nil
}

// Label returns the human-readable label of a category key.
func (s Schema) Label(key string) string {
	if l, ok := s.Labels[key]; ok {
		return l
	}
	return key
}

// Zero returns a result with every category at a bare score of 0.
func (s Schema) Zero() Result {
	scores := make(map[string]Category, len(s.Keys))
	for _, k := range s.Keys {
		scores[k] = Bare(0)
	}
	return Result{Scores: scores}
}

// Validate checks that r uses exactly this schema's keys with scores in 0..100.
func (s Schema) Validate(r Result) error {
	for _, k := range s.Keys {
		c, ok := r.Scores[k]
		if !ok {
			return errors.Errorf("missing category %q for schema %s", k, s.Name)
		}
		if c.Score < 0 || c.Score > 100 {
			return errors.Errorf("category %q score %d out of range 0..100", k, c.Score)
		}
	}
	if len(r.Scores) != len(s.Keys) {
		for _, k := range r.Keys() {
			if _, ok := s.Labels[k]; !ok {
				return errors.Errorf("unknown category %q for schema %s", k, s.Name)
			}
		}
	}
	return nil
}

// Grade classifies a score according to the schema direction.
func (s Schema) Grade(score int) Grade {
	if s.Direction == HigherIsRiskier {
		return severity(score)
	}
	switch {
	case score >= 90:
		return Grade{Label: "Excellent", Tone: ToneGood}
	case score >= 70:
		return Grade{Label: "Acceptable", Tone: ToneWarning}
	default:
		return Grade{Label: "Below threshold", Tone: ToneBad}
	}
}

func severity(score int) Grade {
	switch {
	case score <= 10:
		return Grade{Label: "Minimal", Tone: ToneGood}
	case score <= 25:
		return Grade{Label: "Low", Tone: ToneGood}
	case score <= 45:
		return Grade{Label: "Moderate", Tone: ToneWarning}
	case score <= 65:
		return Grade{Label: "High", Tone: ToneWarning}
	case score <= 85:
		return Grade{Label: "Very High", Tone: ToneBad}
	default:
		return Grade{Label: "Critical", Tone: ToneBad}
	}
}
