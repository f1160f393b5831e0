// Package skilldiff renders skills as SKILL.md documents and compares them
// as unified diffs, e.g. a resubmission against the approved version.
package skilldiff

import (
	"fmt"
	"strings"

	udiff "github.com/aymanbagabas/go-udiff"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

type frontmatter struct {
	Name        string   `yaml:"name"`
	Author      string   `yaml:"author"`
	Version     string   `yaml:"version"`
	Category    string   `yaml:"category"`
	Tags        []string `yaml:"tags,flow"`
	Description string   `yaml:"description,omitempty"`
}

// Document renders s with YAML frontmatter followed by its markdown body
// and, when present, the bundled bash script.
func Document(s skills.Skill) string {
	fm, err := yaml.Marshal(frontmatter{
		Name:        s.Title,
		Author:      s.Author,
		Version:     s.Version,
		Category:    s.Category,
		Tags:        s.Tags,
		Description: s.Description,
	})
	if err != nil {
		// Only plain strings are marshalled here.
		fm = []byte(fmt.Sprintf("name: %q\n", s.Title))
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimRight(s.MarkdownContent, "\n"))
	b.WriteString("\n")
	if s.BashScript != "" {
		b.WriteString("\n```bash\n")
		b.WriteString(strings.TrimRight(s.BashScript, "\n"))
		b.WriteString("\n```\n")
	}
	return b.String()
}

// Label names one side of a diff, e.g. "3@v1.2.0".
func Label(s skills.Skill) string {
	return fmt.Sprintf("%s@v%s", s.ID, s.Version)
}

// Unified returns the unified diff from a to b, or "" when the documents
// are identical.
func Unified(a, b skills.Skill) string {
	return udiff.Unified(Label(a), Label(b), Document(a), Document(b))
}
