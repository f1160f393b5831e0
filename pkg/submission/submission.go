// Package submission turns the two submission forms (guided template and raw
// upload) into registry drafts.
package submission

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

// DefaultVersion is used when a form leaves the version empty.
const DefaultVersion = "1.0.0"

// TemplateForm is the guided submission form. Its sections are rendered
// into a SKILL.md document.
type TemplateForm struct {
	Title        string `json:"title" validate:"required" jsonschema:"description=Skill title, becomes the document heading"`
	Goal         string `json:"goal" validate:"required" jsonschema:"description=What the skill achieves"`
	WhenToUse    string `json:"whenToUse,omitempty" jsonschema:"description=Situations that call for the skill"`
	Input        string `json:"input,omitempty"`
	Output       string `json:"output,omitempty"`
	Procedure    string `json:"procedure,omitempty" jsonschema:"description=Numbered steps the agent follows"`
	Verification string `json:"verification,omitempty" jsonschema:"description=How to check the result"`
	Version      string `json:"version,omitempty" validate:"omitempty,semver" jsonschema:"default=1.0.0"`
	Author       string `json:"author" validate:"required"`
	Category     string `json:"category" validate:"required,category"`
	Tags         string `json:"tags,omitempty" jsonschema:"description=Comma-separated tags"`
	Description  string `json:"description,omitempty" jsonschema:"description=Defaults to the goal"`
	BashScript   string `json:"bashScript,omitempty"`
}

// UploadForm carries a ready-made SKILL.md document.
type UploadForm struct {
	Title       string `json:"title" validate:"required"`
	Content     string `json:"content" validate:"required" jsonschema:"description=Raw SKILL.md markdown"`
	Version     string `json:"version,omitempty" validate:"omitempty,semver" jsonschema:"default=1.0.0"`
	Author      string `json:"author" validate:"required"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category" validate:"required,category"`
	Tags        string `json:"tags,omitempty" jsonschema:"description=Comma-separated tags"`
	BashScript  string `json:"bashScript,omitempty"`
}

// Request is the body of a submission. Exactly one form matches Method.
type Request struct {
	Method   skills.SubmissionMethod `json:"method" validate:"required,oneof=template upload" jsonschema:"enum=template,enum=upload"`
	Template *TemplateForm           `json:"template,omitempty" validate:"required_if=Method template"`
	Upload   *UploadForm             `json:"upload,omitempty" validate:"required_if=Method upload"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return skills.IsCategory(fl.Field().String())
	})
	return v
}

// ValidationError lists the fields a form failed on.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid submission: " + strings.Join(e.Fields, "; ")
}

// IsValidation reports whether err is a form validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func check(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "failed to validate submission")
	}
	out := &ValidationError{}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, describe(fe))
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Field())
	case "category":
		return fmt.Sprintf("%s %q is not one of %s", fe.Field(), fe.Value(), strings.Join(skills.Categories, ", "))
	case "semver":
		return fmt.Sprintf("%s %q is not a semantic version", fe.Field(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// ParseTags splits a comma-separated list, trimming blanks and dropping
// empty entries.
func ParseTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// TitleFromFilename derives a title from an uploaded file name.
func TitleFromFilename(name string) string {
	if len(name) >= 3 && strings.EqualFold(name[len(name)-3:], ".md") {
		return name[:len(name)-3]
	}
	return name
}

// Render builds the SKILL.md document for a template form. Empty sections
// are omitted.
func (f TemplateForm) Render() string {
	var parts []string
	if f.Title != "" {
		parts = append(parts, "# "+f.Title)
	}
	if f.Goal != "" {
		parts = append(parts, "\n## Goal\n"+f.Goal)
	}
	if f.WhenToUse != "" {
		parts = append(parts, "\n## When to Use\n"+f.WhenToUse)
	}
	if f.Input != "" || f.Output != "" {
		section := "\n## Input / Output"
		if f.Input != "" {
			section += "\n**Input:** " + f.Input
		}
		if f.Output != "" {
			section += "\n**Output:** " + f.Output
		}
		parts = append(parts, section)
	}
	if f.Procedure != "" {
		parts = append(parts, "\n## Procedure\n"+f.Procedure)
	}
	if f.Verification != "" {
		parts = append(parts, "\n## Verification\n"+f.Verification)
	}
	return strings.Join(parts, "\n")
}

// Draft validates the form and builds a draft carrying the zero result of
// schema.
func (f TemplateForm) Draft(schema evaluation.Schema) (skills.Draft, error) {
	if err := check(f); err != nil {
		return skills.Draft{}, err
	}
	description := f.Description
	if description == "" {
		description = f.Goal
	}
	return skills.Draft{
		Title:            f.Title,
		Author:           f.Author,
		Version:          versionOrDefault(f.Version),
		Description:      description,
		Tags:             ParseTags(f.Tags),
		Category:         f.Category,
		MarkdownContent:  f.Render(),
		BashScript:       f.BashScript,
		EvaluationScores: schema.Zero(),
		SubmissionMethod: skills.MethodTemplate,
	}, nil
}

// Draft validates the form and builds a draft carrying the zero result of
// schema.
func (f UploadForm) Draft(schema evaluation.Schema) (skills.Draft, error) {
	if err := check(f); err != nil {
		return skills.Draft{}, err
	}
	return skills.Draft{
		Title:            f.Title,
		Author:           f.Author,
		Version:          versionOrDefault(f.Version),
		Description:      f.Description,
		Tags:             ParseTags(f.Tags),
		Category:         f.Category,
		MarkdownContent:  f.Content,
		BashScript:       f.BashScript,
		EvaluationScores: schema.Zero(),
		SubmissionMethod: skills.MethodUpload,
	}, nil
}

// Draft dispatches on Method.
func (r Request) Draft(schema evaluation.Schema) (skills.Draft, error) {
	if err := check(r); err != nil {
		return skills.Draft{}, err
	}
	if r.Method == skills.MethodTemplate {
		return r.Template.Draft(schema)
	}
	return r.Upload.Draft(schema)
}

func versionOrDefault(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return DefaultVersion
}

// Schema returns the JSON schema of Request.
func Schema() *jsonschema.Schema {
	return GenerateSchema[Request]()
}

// GenerateSchema reflects a closed JSON schema for T with nested types
// inlined.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
