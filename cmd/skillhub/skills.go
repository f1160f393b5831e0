package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillhub/pkg/client"
	"github.com/jingkaihe/skillhub/pkg/importer"
	"github.com/jingkaihe/skillhub/pkg/presenter"
	"github.com/jingkaihe/skillhub/pkg/registry"
	"github.com/jingkaihe/skillhub/pkg/seed"
	"github.com/jingkaihe/skillhub/pkg/skilldiff"
	"github.com/jingkaihe/skillhub/pkg/submission"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Browse, submit and review skills",
	Long: `Browse, submit and review skills. Commands work on an in-process catalog
seeded from the built-in skills unless --remote is set, in which case they
talk to the server at --server-url.`,
}

// ListConfig holds configuration for the skills list command
type ListConfig struct {
	Admin    bool
	Status   string
	Search   string
	Category string
	Tag      string
	Sort     string
	JSON     bool
}

// NewListConfig creates a new ListConfig with default values
func NewListConfig() *ListConfig {
	return &ListConfig{
		Status: registry.All,
		Sort:   string(registry.SortPopular),
	}
}

// Validate checks the filter values before any catalog is opened.
func (c *ListConfig) Validate() error {
	if _, err := registry.ParseSort(c.Sort); err != nil {
		return err
	}
	if c.Status != "" && c.Status != registry.All && !skills.Status(c.Status).Valid() {
		return errors.Errorf("invalid status %q, expected all, pending, approved or rejected", c.Status)
	}
	if c.Category != "" && c.Category != registry.All && !skills.IsCategory(c.Category) {
		return errors.Errorf("unknown category %q", c.Category)
	}
	return nil
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List marketplace skills, or every skill with --admin",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		lc := getListConfigFromFlags(cmd)
		if err := lc.Validate(); err != nil {
			presenter.Error(err, "invalid filter")
			os.Exit(1)
		}
		withCatalog(ctx, func(cat catalog) error {
			return runList(ctx, cat, lc)
		})
	},
}

var skillsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a skill and its evaluation report",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		asJSON, _ := cmd.Flags().GetBool("json")
		asMarkdown, _ := cmd.Flags().GetBool("markdown")
		withCatalog(ctx, func(cat catalog) error {
			s, err := cat.Get(ctx, args[0])
			if err != nil {
				return err
			}
			switch {
			case asJSON:
				return printJSON(s)
			case asMarkdown:
				fmt.Print(skilldiff.Document(s))
			default:
				presenter.SkillDetail(s, cfg.EvaluationSchema())
			}
			return nil
		})
	},
}

// SubmitConfig holds configuration for the skills submit command
type SubmitConfig struct {
	File string
	Edit bool
	Form submission.TemplateForm
}

var skillsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a skill from a SKILL.md file, the editor or template fields",
	Long: `Submit a skill for review.

With --file the document is uploaded as is; with --edit it is written in
$VISUAL or $EDITOR first. Otherwise the template fields (--goal, --procedure
and so on) are rendered into a SKILL.md document.`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		sc := getSubmitConfigFromFlags(cmd)
		req, err := buildSubmission(sc)
		if err != nil {
			presenter.Error(err, "failed to prepare submission")
			os.Exit(1)
		}
		withCatalog(ctx, func(cat catalog) error {
			created, err := cat.Submit(ctx, req)
			if err != nil {
				return err
			}
			presenter.Success(fmt.Sprintf("Submitted %q as %s", created.Title, created.ID))
			presenter.Info("The skill is pending review")
			return nil
		})
	},
}

var skillsReviewCmd = &cobra.Command{
	Use:   "review <id>",
	Short: "Approve or reject a skill (admin role)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		status, notes, err := getReviewFromFlags(cmd)
		if err != nil {
			presenter.Error(err, "invalid review")
			os.Exit(1)
		}
		yes, _ := cmd.Flags().GetBool("yes")
		withCatalog(ctx, func(cat catalog) error {
			current, err := cat.Get(ctx, args[0])
			if err != nil {
				return err
			}
			ok, err := confirmOverride(presenter.Default(), current, status, yes)
			if err != nil {
				return err
			}
			if !ok {
				presenter.Info("Review cancelled")
				return nil
			}
			updated, err := cat.UpdateStatus(ctx, args[0], status, notes)
			if err != nil {
				return err
			}
			switch updated.Status {
			case skills.StatusApproved:
				presenter.Success(fmt.Sprintf("%q approved", updated.Title))
			case skills.StatusRejected:
				presenter.Warning(fmt.Sprintf("%q rejected", updated.Title))
			default:
				presenter.Info(fmt.Sprintf("%q is %s", updated.Title, updated.Status))
			}
			return nil
		})
	},
}

var skillsDiffCmd = &cobra.Command{
	Use:   "diff <base-id> <id>",
	Short: "Show the unified diff between two skills' documents",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		withCatalog(ctx, func(cat catalog) error {
			base, err := cat.Get(ctx, args[0])
			if err != nil {
				return errors.Wrap(err, args[0])
			}
			other, err := cat.Get(ctx, args[1])
			if err != nil {
				return errors.Wrap(err, args[1])
			}
			diff := skilldiff.Unified(base, other)
			if diff == "" {
				presenter.Info("The documents are identical")
				return nil
			}
			fmt.Print(diff)
			return nil
		})
	},
}

var skillsExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the catalog as a YAML seed file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		status, _ := cmd.Flags().GetString("status")
		withCatalog(ctx, func(cat catalog) error {
			list, _, err := cat.Admin(ctx, status)
			if err != nil {
				return err
			}
			if err := seed.WriteFile(args[0], list); err != nil {
				return err
			}
			presenter.Success(fmt.Sprintf("Exported %d skills to %s", len(list), args[0]))
			return nil
		})
	},
}

var skillsHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the review log of a skill",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		withCatalog(ctx, func(cat catalog) error {
			entries, err := cat.History(ctx, args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				presenter.Info("No review events recorded for this skill")
				return nil
			}
			presenter.Section("Review History")
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-14s %-9s by %s", e.OccurredAt.Format("2006-01-02 15:04:05"), e.Kind, e.Status, e.Actor)
				if e.Notes != "" {
					line += "  " + e.Notes
				}
				fmt.Println(line)
			}
			return nil
		})
	},
}

var skillsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of skills per status",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		withCatalog(ctx, func(cat catalog) error {
			_, counts, err := cat.Admin(ctx, registry.All)
			if err != nil {
				return err
			}
			presenter.Counts(counts)
			return nil
		})
	},
}

var roleCmd = &cobra.Command{
	Use:   "role [employee|admin]",
	Short: "Show or switch the viewer role",
	Long: `Show or switch the viewer role. Reviews need the admin role.

With --remote this switches the server's role. The in-process catalog only
lives for one command, so set its role with --role or SKILLHUB_ROLE instead.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		withCatalog(ctx, func(cat catalog) error {
			if len(args) == 0 {
				role, err := cat.Role(ctx)
				if err != nil {
					return err
				}
				fmt.Println(role)
				return nil
			}
			role, ok := skills.ParseRole(args[0])
			if !ok {
				return errors.Errorf("invalid role %q, expected employee or admin", args[0])
			}
			if err := cat.SetRole(ctx, role); err != nil {
				return err
			}
			presenter.Success(fmt.Sprintf("Role switched to %s", role))
			return nil
		})
	},
}

func init() {
	listDefaults := NewListConfig()
	skillsListCmd.Flags().Bool("admin", false, "List every skill with per-status counts")
	skillsListCmd.Flags().String("status", listDefaults.Status, "Status filter for --admin (all, pending, approved, rejected)")
	skillsListCmd.Flags().StringP("query", "q", "", "Search title, description and tags")
	skillsListCmd.Flags().String("category", "", "Category filter")
	skillsListCmd.Flags().String("tag", "", "Tag glob, e.g. 'test*'")
	skillsListCmd.Flags().String("sort", listDefaults.Sort, "Sort order (popular, rating, newest)")
	skillsListCmd.Flags().Bool("json", false, "Print JSON")

	skillsShowCmd.Flags().Bool("json", false, "Print JSON")
	skillsShowCmd.Flags().Bool("markdown", false, "Print the SKILL.md document")

	f := skillsSubmitCmd.Flags()
	f.String("file", "", "SKILL.md document to upload")
	f.Bool("edit", false, "Write the document in your editor before uploading")
	f.String("title", "", "Skill title (defaults to the document heading)")
	f.String("author", "", "Author name")
	f.String("category", "", "Category: "+strings.Join(skills.Categories, ", "))
	f.String("tags", "", "Comma-separated tags")
	f.String("version", "", "Semantic version (default 1.0.0)")
	f.String("description", "", "Short description")
	f.String("goal", "", "Template: what the skill achieves")
	f.String("when-to-use", "", "Template: situations that call for the skill")
	f.String("input", "", "Template: expected input")
	f.String("output", "", "Template: produced output")
	f.String("procedure", "", "Template: numbered steps")
	f.String("verification", "", "Template: how to check the result")
	f.String("bash-script", "", "File holding a bash script bundled with the skill")

	skillsReviewCmd.Flags().Bool("approve", false, "Approve the skill")
	skillsReviewCmd.Flags().Bool("reject", false, "Reject the skill")
	skillsReviewCmd.Flags().String("notes", "", "Admin notes shown with the skill")
	skillsReviewCmd.Flags().BoolP("yes", "y", false, "Override an earlier approve or reject decision without asking")
	skillsReviewCmd.MarkFlagsMutuallyExclusive("approve", "reject")
	skillsReviewCmd.MarkFlagsOneRequired("approve", "reject")

	skillsExportCmd.Flags().String("status", registry.All, "Only export skills with this status")

	skillsCmd.AddCommand(skillsListCmd)
	skillsCmd.AddCommand(skillsShowCmd)
	skillsCmd.AddCommand(skillsSubmitCmd)
	skillsCmd.AddCommand(skillsReviewCmd)
	skillsCmd.AddCommand(skillsDiffCmd)
	skillsCmd.AddCommand(skillsExportCmd)
	skillsCmd.AddCommand(skillsHistoryCmd)
	skillsCmd.AddCommand(skillsStatsCmd)
}

// withCatalog opens the catalog, runs fn and exits non-zero on failure.
func withCatalog(ctx context.Context, fn func(catalog) error) {
	remote, _ := rootCmd.PersistentFlags().GetBool("remote")
	cat, err := openCatalog(ctx, remote)
	if err != nil {
		presenter.Error(err, "failed to open catalog")
		os.Exit(1)
	}

	err = fn(cat)
	if closeErr := cat.Close(); closeErr != nil {
		presenter.Warning(fmt.Sprintf("failed to close catalog: %v", closeErr))
	}
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			presenter.Error(err, "")
		} else {
			presenter.Error(err, "command failed")
		}
		os.Exit(1)
	}
}

func getListConfigFromFlags(cmd *cobra.Command) *ListConfig {
	lc := NewListConfig()
	lc.Admin, _ = cmd.Flags().GetBool("admin")
	lc.Status, _ = cmd.Flags().GetString("status")
	lc.Search, _ = cmd.Flags().GetString("query")
	lc.Category, _ = cmd.Flags().GetString("category")
	lc.Tag, _ = cmd.Flags().GetString("tag")
	lc.Sort, _ = cmd.Flags().GetString("sort")
	lc.JSON, _ = cmd.Flags().GetBool("json")
	return lc
}

func runList(ctx context.Context, cat catalog, lc *ListConfig) error {
	if lc.Admin {
		list, counts, err := cat.Admin(ctx, lc.Status)
		if err != nil {
			return err
		}
		if lc.JSON {
			return printJSON(map[string]any{"skills": list, "counts": counts})
		}
		presenter.Counts(counts)
		presenter.Separator()
		presenter.SkillTable(list)
		return nil
	}

	sort, _ := registry.ParseSort(lc.Sort)
	list, err := cat.Marketplace(ctx, registry.Query{
		Search:   lc.Search,
		Category: lc.Category,
		Tag:      lc.Tag,
		Sort:     sort,
	})
	if err != nil {
		return err
	}
	if lc.JSON {
		return printJSON(list)
	}
	presenter.SkillTable(list)
	return nil
}

func getSubmitConfigFromFlags(cmd *cobra.Command) *SubmitConfig {
	f := cmd.Flags()
	sc := &SubmitConfig{}
	sc.File, _ = f.GetString("file")
	sc.Edit, _ = f.GetBool("edit")

	sc.Form.Title, _ = f.GetString("title")
	sc.Form.Author, _ = f.GetString("author")
	sc.Form.Category, _ = f.GetString("category")
	sc.Form.Tags, _ = f.GetString("tags")
	sc.Form.Version, _ = f.GetString("version")
	sc.Form.Description, _ = f.GetString("description")
	sc.Form.Goal, _ = f.GetString("goal")
	sc.Form.WhenToUse, _ = f.GetString("when-to-use")
	sc.Form.Input, _ = f.GetString("input")
	sc.Form.Output, _ = f.GetString("output")
	sc.Form.Procedure, _ = f.GetString("procedure")
	sc.Form.Verification, _ = f.GetString("verification")
	sc.Form.BashScript, _ = f.GetString("bash-script")
	return sc
}

// buildSubmission turns the submit flags into a request. Upload metadata
// missing from the flags is taken from the document's frontmatter.
func buildSubmission(sc *SubmitConfig) (submission.Request, error) {
	form := sc.Form
	if form.BashScript != "" {
		script, err := os.ReadFile(form.BashScript)
		if err != nil {
			return submission.Request{}, errors.Wrap(err, "failed to read bash script")
		}
		form.BashScript = string(script)
	}

	if sc.File == "" && !sc.Edit {
		return submission.Request{Method: skills.MethodTemplate, Template: &form}, nil
	}

	var content string
	if sc.File != "" {
		data, err := os.ReadFile(sc.File)
		if err != nil {
			return submission.Request{}, errors.Wrapf(err, "failed to read %s", sc.File)
		}
		content = string(data)
	} else {
		content = form.Render()
	}

	if sc.Edit {
		edited, err := editDocument(content)
		if err != nil {
			return submission.Request{}, err
		}
		content = edited
	}
	if strings.TrimSpace(content) == "" {
		return submission.Request{}, errors.New("document is empty, submission aborted")
	}

	upload := submission.UploadForm{
		Title:       form.Title,
		Content:     content,
		Version:     form.Version,
		Author:      form.Author,
		Description: form.Description,
		Category:    form.Category,
		Tags:        form.Tags,
		BashScript:  form.BashScript,
	}
	if doc, err := importer.ParseDocument(content); err == nil {
		upload.Title = firstNonEmpty(upload.Title, doc.Title)
		upload.Author = firstNonEmpty(upload.Author, doc.Author)
		upload.Version = firstNonEmpty(upload.Version, doc.Version)
		upload.Description = firstNonEmpty(upload.Description, doc.Description)
		if upload.Category == "" && skills.IsCategory(doc.Category) {
			upload.Category = doc.Category
		}
		if upload.Tags == "" {
			upload.Tags = joinTags(doc.Tags)
		}
	}
	if upload.Title == "" && sc.File != "" {
		upload.Title = submission.TitleFromFilename(filepath.Base(sc.File))
	}

	return submission.Request{Method: skills.MethodUpload, Upload: &upload}, nil
}

// confirmOverride asks before a review replaces an earlier approve or
// reject decision. Quiet mode never prompts, so it requires yes.
func confirmOverride(p presenter.Presenter, current skills.Skill, status skills.Status, yes bool) (bool, error) {
	if yes || current.Status == skills.StatusPending || current.Status == status {
		return true, nil
	}
	if p.IsQuiet() {
		return false, errors.Errorf("%q is already %s; pass --yes to change it to %s", current.Title, current.Status, status)
	}
	answer := p.Prompt(fmt.Sprintf("%q is already %s. Change it to %s?", current.Title, current.Status, status), "y", "N")
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func getReviewFromFlags(cmd *cobra.Command) (skills.Status, *string, error) {
	approve, _ := cmd.Flags().GetBool("approve")
	reject, _ := cmd.Flags().GetBool("reject")

	var status skills.Status
	switch {
	case approve && !reject:
		status = skills.StatusApproved
	case reject && !approve:
		status = skills.StatusRejected
	default:
		return "", nil, errors.New("exactly one of --approve or --reject is required")
	}

	var notes *string
	if cmd.Flags().Changed("notes") {
		n, _ := cmd.Flags().GetString("notes")
		notes = &n
	}
	return status, notes, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	fmt.Println(string(data))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinTags(tags []string) string {
	return strings.Join(tags, ", ")
}
