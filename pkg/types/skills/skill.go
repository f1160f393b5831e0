// Package skills defines the skill record, its lifecycle status, submission
// drafts and the process-wide viewer role shared by the registry, the web
// API and the CLI.
package skills

import (
	"strings"
	"time"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
)

// Status is the review lifecycle state of a skill.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Statuses lists every status in display order.
func Statuses() []Status {
	return []Status{StatusPending, StatusApproved, StatusRejected}
}

// SubmissionMethod records how a skill entered the registry.
type SubmissionMethod string

const (
	MethodTemplate SubmissionMethod = "template"
	MethodUpload   SubmissionMethod = "upload"
)

// Role is the current viewer role.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleEmployee:
		return RoleEmployee, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Categories is the fixed list of marketplace categories.
var Categories = []string{
	"Code Generation",
	"Data Analysis",
	"Documentation",
	"Testing",
	"DevOps",
	"Security",
	"Communication",
}

// IsCategory reports whether name is one of Categories.
func IsCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// Skill is a submitted unit of review.
type Skill struct {
	ID               string            `json:"id" yaml:"id"`
	Title            string            `json:"title" yaml:"title"`
	Author           string            `json:"author" yaml:"author"`
	Version          string            `json:"version" yaml:"version"`
	Description      string            `json:"description" yaml:"description"`
	Tags             []string          `json:"tags" yaml:"tags"`
	Category         string            `json:"category" yaml:"category"`
	MarkdownContent  string            `json:"markdownContent" yaml:"markdownContent"`
	BashScript       string            `json:"bashScript,omitempty" yaml:"bashScript,omitempty"`
	Status           Status            `json:"status" yaml:"status"`
	EvaluationScores evaluation.Result `json:"evaluationScores" yaml:"evaluationScores"`
	Downloads        int               `json:"downloads" yaml:"downloads"`
	Rating           float64           `json:"rating" yaml:"rating"`
	SubmissionMethod SubmissionMethod  `json:"submissionMethod" yaml:"submissionMethod"`
	SubmittedAt      time.Time         `json:"submittedAt" yaml:"submittedAt"`
	AdminNotes       string            `json:"adminNotes,omitempty" yaml:"adminNotes,omitempty"`
}

// Clone returns a copy that shares no mutable state with s.
func (s Skill) Clone() Skill {
	out := s
	if s.Tags != nil {
		out.Tags = append([]string(nil), s.Tags...)
	}
	out.EvaluationScores = s.EvaluationScores.Clone()
	return out
}

// Draft carries every Skill field a submitter controls.
type Draft struct {
	Title            string            `json:"title"`
	Author           string            `json:"author"`
	Version          string            `json:"version"`
	Description      string            `json:"description"`
	Tags             []string          `json:"tags"`
	Category         string            `json:"category"`
	MarkdownContent  string            `json:"markdownContent"`
	BashScript       string            `json:"bashScript,omitempty"`
	EvaluationScores evaluation.Result `json:"evaluationScores"`
	SubmissionMethod SubmissionMethod  `json:"submissionMethod"`
	AdminNotes       string            `json:"adminNotes,omitempty"`
}

// ToSkill materialises a draft with the registry-owned fields filled in.
func (d Draft) ToSkill(id string, submittedAt time.Time) Skill {
	s := Skill{
		ID:               id,
		Title:            d.Title,
		Author:           d.Author,
		Version:          d.Version,
		Description:      d.Description,
		Category:         d.Category,
		MarkdownContent:  d.MarkdownContent,
		BashScript:       d.BashScript,
		Status:           StatusPending,
		EvaluationScores: d.EvaluationScores.Clone(),
		Downloads:        0,
		Rating:           0,
		SubmissionMethod: d.SubmissionMethod,
		SubmittedAt:      submittedAt,
		AdminNotes:       d.AdminNotes,
	}
	if d.Tags != nil {
		s.Tags = append([]string(nil), d.Tags...)
	}
	return s
}
