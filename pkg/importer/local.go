package importer

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// SkillFileName is the conventional name of a skill document.
const SkillFileName = "SKILL.md"

// LocalSkill is a skill document found on disk.
type LocalSkill struct {
	Path     string
	Document Document
}

// ScanDir finds every SKILL.md below root, including plugin-style nested
// layouts such as org/repo/skills/name/SKILL.md. Files that cannot be read
// or parsed are reported in the returned error list and skipped.
func ScanDir(root string) ([]LocalSkill, []error) {
	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, "**/"+SkillFileName, doublestar.WithFilesOnly())
	if err != nil {
		return nil, []error{errors.Wrapf(err, "failed to scan %s", root)}
	}
	sort.Strings(matches)

	var found []LocalSkill
	var problems []error
	for _, rel := range matches {
		data, err := fs.ReadFile(fsys, rel)
		if err != nil {
			problems = append(problems, errors.Wrapf(err, "failed to read %s", rel))
			continue
		}
		doc, err := ParseDocument(string(data))
		if err != nil {
			problems = append(problems, errors.Wrapf(err, "failed to parse %s", rel))
			continue
		}
		if doc.Title == "" {
			doc.Title = filepath.Base(filepath.Dir(filepath.FromSlash(rel)))
		}
		found = append(found, LocalSkill{Path: filepath.Join(root, filepath.FromSlash(rel)), Document: doc})
	}
	return found, problems
}
