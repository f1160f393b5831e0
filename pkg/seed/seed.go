// Package seed provides the sample skill catalog a fresh registry starts
// with.
package seed

import (
	"bytes"
	_ "embed"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

//go:embed skills.yaml
var builtin []byte

type catalog struct {
	Skills []skills.Skill `yaml:"skills"`
}

// Parse decodes a catalog document and checks every record against schema.
func Parse(data []byte, schema evaluation.Schema) ([]skills.Skill, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "failed to decode seed catalog")
	}
	for i, s := range c.Skills {
		if s.ID == "" {
			return nil, errors.Errorf("seed skill %d has no id", i)
		}
		if !s.Status.Valid() {
			return nil, errors.Errorf("seed skill %s has invalid status %q", s.ID, s.Status)
		}
		if !skills.IsCategory(s.Category) {
			return nil, errors.Errorf("seed skill %s has unknown category %q", s.ID, s.Category)
		}
		if err := schema.Validate(s.EvaluationScores); err != nil {
			return nil, errors.Wrapf(err, "seed skill %s", s.ID)
		}
		if s.Tags == nil {
			c.Skills[i].Tags = []string{}
		}
	}
	return c.Skills, nil
}

// Default returns the built-in catalog. It is authored for the safety5
// schema.
func Default() []skills.Skill {
	list, err := Parse(builtin, evaluation.Default())
	if err != nil {
		panic(errors.Wrap(err, "built-in seed catalog is invalid"))
	}
	return list
}

// Load returns the catalog at path, or the built-in one when path is empty.
// An empty built-in catalog is returned for schemas it was not authored for.
func Load(path string, schema evaluation.Schema) ([]skills.Skill, error) {
	if path == "" {
		if schema.Name != evaluation.Safety5 {
			return []skills.Skill{}, nil
		}
		return Default(), nil
	}
	data, err := lockedfile.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read seed catalog %s", path)
	}
	return Parse(data, schema)
}

// Marshal encodes list in the catalog format Parse reads.
func Marshal(list []skills.Skill) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(catalog{Skills: list}); err != nil {
		return nil, errors.Wrap(err, "failed to encode seed catalog")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to encode seed catalog")
	}
	return buf.Bytes(), nil
}

// WriteFile writes list to path as a catalog, holding the file lock so a
// concurrent Load never sees a partial document.
func WriteFile(path string, list []skills.Skill) error {
	data, err := Marshal(list)
	if err != nil {
		return err
	}
	if err := lockedfile.Write(path, bytes.NewReader(data), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write seed catalog %s", path)
	}
	return nil
}
