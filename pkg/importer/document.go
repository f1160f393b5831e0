package importer

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

var headingPattern = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// Document is a parsed SKILL.md file.
type Document struct {
	Title       string
	Description string
	Author      string
	Version     string
	Category    string
	Tags        []string
	Frontmatter map[string]any
	// Body is the document without its frontmatter block.
	Body string
	// Content is the document as it was read.
	Content string
}

// ParseDocument reads optional YAML frontmatter and the first level-one
// heading. Frontmatter "name" or "title" wins over the heading.
func ParseDocument(content string) (Document, error) {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert([]byte(content), &buf, parser.WithContext(pctx)); err != nil {
		return Document{}, errors.Wrap(err, "failed to parse markdown")
	}

	doc := Document{
		Frontmatter: meta.Get(pctx),
		Body:        stripFrontmatter(content),
		Content:     content,
	}
	if doc.Frontmatter == nil {
		doc.Frontmatter = map[string]any{}
	}

	doc.Title = firstString(doc.Frontmatter, "name", "title")
	if doc.Title == "" {
		if m := headingPattern.FindStringSubmatch(doc.Body); m != nil {
			doc.Title = strings.TrimSpace(m[1])
		}
	}
	doc.Description = firstString(doc.Frontmatter, "description", "summary")
	doc.Author = firstString(doc.Frontmatter, "author", "owner")
	doc.Version = firstString(doc.Frontmatter, "version")
	doc.Category = firstString(doc.Frontmatter, "category")
	doc.Tags = tagList(doc.Frontmatter["tags"])
	return doc, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case nil:
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func tagList(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range t {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// stripFrontmatter removes a leading "---" delimited block.
func stripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n")
		}
	}
	return content
}
