package registry

import (
	"strings"
	"time"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
)

const (
	// DefaultTrigger is the title substring that marks a submission for
	// automatic rejection.
	DefaultTrigger = "jira"
	// DefaultAutoRejectDelay outlasts the full pipeline animation (10.8s)
	// so a viewer sees the evaluation finish before the verdict lands.
	DefaultAutoRejectDelay = 12 * time.Second
	// DefaultAutoRejectNotes is written to adminNotes on auto-rejection.
	DefaultAutoRejectNotes = "Auto-rejected by evaluation pipeline: security and quality scores fell below the enterprise threshold."
)

// AutoRejectPolicy rejects matching submissions after a delay.
type AutoRejectPolicy struct {
	Trigger string
	Delay   time.Duration
	Notes   string
	Result  evaluation.Result
}

// DefaultAutoRejectPolicy returns the built-in policy with a rejection
// result authored for schema.
func DefaultAutoRejectPolicy(schema evaluation.Schema) AutoRejectPolicy {
	return AutoRejectPolicy{
		Trigger: DefaultTrigger,
		Delay:   DefaultAutoRejectDelay,
		Notes:   DefaultAutoRejectNotes,
		Result:  RejectionResult(schema),
	}
}

// Matches reports whether title contains the trigger, ignoring case. An
// empty trigger matches nothing.
func (p AutoRejectPolicy) Matches(title string) bool {
	if p.Trigger == "" {
		return false
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(p.Trigger))
}

// RejectionResult is the pre-authored low-score evaluation stored on an
// auto-rejected skill.
func RejectionResult(schema evaluation.Schema) evaluation.Result {
	switch schema.Name {
	case evaluation.Safety3:
		return evaluation.NewResult(
			"Integration requests broad issue-tracker access without scoping and lacks verification steps.",
			map[string]evaluation.Category{
				"security":      evaluation.Explained(32, "Requests unrestricted API tokens for the issue tracker and writes to arbitrary projects."),
				"compatibility": evaluation.Explained(58, "Hardcodes a single cloud instance URL and an outdated REST API version."),
				"quality":       evaluation.Explained(41, "Procedure skips error handling and has no verification criteria."),
			},
		)
	case evaluation.Risk5:
		return evaluation.NewResult(
			"High risk: broad credential use and unscoped write access to an external issue tracker.",
			map[string]evaluation.Category{
				"purposeCapability":    evaluation.Explained(62, "Declared purpose is triage but the procedure creates, edits and deletes issues."),
				"instructionScope":     evaluation.Explained(71, "Instructions operate on every project reachable by the token."),
				"credentials":          evaluation.Explained(88, "Asks for an admin API token and stores it in plain text."),
				"installMechanism":     evaluation.Explained(47, "Installs an unpinned CLI from a third-party script."),
				"persistencePrivilege": evaluation.Explained(55, "Registers a recurring job that keeps the token alive."),
			},
		)
	default:
		return evaluation.NewResult(
			"Integration requests broad issue-tracker access without scoping and lacks verification steps.",
			map[string]evaluation.Category{
				"security":      evaluation.Explained(32, "Requests unrestricted API tokens for the issue tracker and writes to arbitrary projects."),
				"credentials":   evaluation.Explained(24, "Stores the API token in plain text inside the skill workspace."),
				"compatibility": evaluation.Explained(58, "Hardcodes a single cloud instance URL and an outdated REST API version."),
				"quality":       evaluation.Explained(41, "Procedure skips error handling and has no verification criteria."),
				"networkEgress": evaluation.Explained(36, "Calls external endpoints that are not on the enterprise allow list."),
			},
		)
	}
}
