// Package evaluation models the category scores attached to every skill and
// the score schemas that give those numbers meaning.
package evaluation

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Category is a single category score. It is either a bare number or a
// score paired with an explanation; Detailed records which form it takes.
type Category struct {
	Score       int
	Explanation string
	Detailed    bool
}

// Bare returns a category expressed as a bare number.
func Bare(score int) Category {
	return Category{Score: score}
}

// Explained returns a category expressed as {score, explanation}.
func Explained(score int, explanation string) Category {
	return Category{Score: score, Explanation: explanation, Detailed: true}
}

// GetScore returns the numeric score of a category in either form.
func GetScore(c Category) int {
	return c.Score
}

// GetExplanation returns the explanation of a category, or "" for a bare number.
func GetExplanation(c Category) string {
	if !c.Detailed {
		return ""
	}
	return c.Explanation
}

type detailedCategory struct {
	Score       int    `json:"score" yaml:"score"`
	Explanation string `json:"explanation" yaml:"explanation"`
}

// decodedCategory accepts fractional scores, which round to the nearest
// integer in both forms.
type decodedCategory struct {
	Score       float64 `json:"score" yaml:"score"`
	Explanation string  `json:"explanation" yaml:"explanation"`
}

func roundScore(f float64) int {
	return int(math.Round(f))
}

// MarshalJSON reproduces the form the category was created with.
func (c Category) MarshalJSON() ([]byte, error) {
	if !c.Detailed {
		return json.Marshal(c.Score)
	}
	return json.Marshal(detailedCategory{Score: c.Score, Explanation: c.Explanation})
}

// UnmarshalJSON accepts either a number or a {score, explanation} object.
func (c *Category) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var d decodedCategory
		if err := json.Unmarshal(data, &d); err != nil {
			return errors.Wrap(err, "invalid category object")
		}
		*c = Explained(roundScore(d.Score), d.Explanation)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Wrap(err, "category must be a number or an object")
	}
	*c = Bare(roundScore(f))
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (c Category) MarshalYAML() (interface{}, error) {
	if !c.Detailed {
		return c.Score, nil
	}
	return detailedCategory{Score: c.Score, Explanation: c.Explanation}, nil
}

// UnmarshalYAML accepts either a scalar or a mapping.
func (c *Category) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		var d decodedCategory
		if err := value.Decode(&d); err != nil {
			return errors.Wrap(err, "invalid category mapping")
		}
		*c = Explained(roundScore(d.Score), d.Explanation)
		return nil
	case yaml.ScalarNode:
		var score float64
		if err := value.Decode(&score); err != nil {
			return errors.Wrap(err, "invalid category score")
		}
		*c = Bare(roundScore(score))
		return nil
	default:
		return errors.Errorf("category must be a number or a mapping, line %d", value.Line)
	}
}

const summaryKey = "summary"

// Result is a set of category scores plus an optional summary. On the wire
// it is a flat object: one key per category and an optional "summary".
type Result struct {
	Scores  map[string]Category
	Summary string
}

// NewResult builds a Result from the given categories.
func NewResult(summary string, scores map[string]Category) Result {
	copied := make(map[string]Category, len(scores))
	for k, v := range scores {
		copied[k] = v
	}
	return Result{Scores: copied, Summary: summary}
}

// Get returns the category stored under key.
func (r Result) Get(key string) (Category, bool) {
	c, ok := r.Scores[key]
	return c, ok
}

// Keys returns the category keys in lexical order.
func (r Result) Keys() []string {
	keys := make([]string, 0, len(r.Scores))
	for k := range r.Scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Overall is the rounded arithmetic mean of every category score, or 0 when
// the result has no categories.
func (r Result) Overall() int {
	if len(r.Scores) == 0 {
		return 0
	}
	total := 0
	for _, c := range r.Scores {
		total += GetScore(c)
	}
	return int(math.Round(float64(total) / float64(len(r.Scores))))
}

// Clone returns a deep copy.
func (r Result) Clone() Result {
	return NewResult(r.Summary, r.Scores)
}

// MarshalJSON flattens categories and summary into one object.
func (r Result) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(r.Scores)+1)
	for k, v := range r.Scores {
		flat[k] = v
	}
	if r.Summary != "" {
		flat[summaryKey] = r.Summary
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reads the flat object written by MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return errors.Wrap(err, "evaluation result must be an object")
	}

	out := Result{Scores: make(map[string]Category, len(flat))}
	for k, raw := range flat {
		if k == summaryKey {
			if err := json.Unmarshal(raw, &out.Summary); err != nil {
				return errors.Wrap(err, "summary must be a string")
			}
			continue
		}
		var c Category
		if err := json.Unmarshal(raw, &c); err != nil {
			return errors.Wrapf(err, "category %q", k)
		}
		out.Scores[k] = c
	}
	*r = out
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (r Result) MarshalYAML() (interface{}, error) {
	flat := make(map[string]interface{}, len(r.Scores)+1)
	for k, v := range r.Scores {
		flat[k] = v
	}
	if r.Summary != "" {
		flat[summaryKey] = r.Summary
	}
	return flat, nil
}

// UnmarshalYAML reads the same flat layout from YAML.
func (r *Result) UnmarshalYAML(value *yaml.Node) error {
	var flat map[string]yaml.Node
	if err := value.Decode(&flat); err != nil {
		return errors.Wrap(err, "evaluation result must be a mapping")
	}

	out := Result{Scores: make(map[string]Category, len(flat))}
	for k, node := range flat {
		node := node
		if k == summaryKey {
			if err := node.Decode(&out.Summary); err != nil {
				return errors.Wrap(err, "summary must be a string")
			}
			continue
		}
		var c Category
		if err := node.Decode(&c); err != nil {
			return errors.Wrapf(err, "category %q", k)
		}
		out.Scores[k] = c
	}
	*r = out
	return nil
}
