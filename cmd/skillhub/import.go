package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillhub/pkg/importer"
	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/presenter"
	"github.com/jingkaihe/skillhub/pkg/submission"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

// ImportConfig holds configuration for the import command
type ImportConfig struct {
	Dir      string
	Output   string
	Submit   bool
	Author   string
	Category string
}

var importCmd = &cobra.Command{
	Use:   "import [url]",
	Short: "Import a skill from ClawHub, GitHub or a raw markdown URL",
	Long: `Import a skill document and show the upload form it would prefill.

Supported sources are ClawHub pages (https://clawhub.ai/<user>/<slug>),
GitHub blob and gist URLs, and raw markdown URLs. With --dir every SKILL.md
below a local directory is imported instead.

--submit sends the imported skills for review; --author and --category fill
fields the source did not provide.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		ic := getImportConfigFromFlags(cmd)
		if err := validateImportConfig(ic, args); err != nil {
			presenter.Error(err, "invalid import")
			os.Exit(1)
		}

		var forms []submission.UploadForm
		if ic.Dir != "" {
			forms = scanLocalSkills(ic.Dir)
		} else {
			form, err := importRemote(ctx, args[0])
			if err != nil {
				logger.G(ctx).WithError(err).Debug("import failed")
				presenter.Error(errors.New(importer.FailureMessage), "")
				os.Exit(1)
			}
			forms = append(forms, form)
		}

		for i := range forms {
			forms[i].Author = firstNonEmpty(forms[i].Author, ic.Author)
			forms[i].Category = firstNonEmpty(forms[i].Category, ic.Category)
		}

		if ic.Output != "" && len(forms) == 1 {
			if err := os.WriteFile(ic.Output, []byte(forms[0].Content), 0o644); err != nil {
				presenter.Error(err, "failed to write document")
				os.Exit(1)
			}
			presenter.Success(fmt.Sprintf("Wrote %s", ic.Output))
		}

		if !ic.Submit {
			return
		}
		withCatalog(ctx, func(cat catalog) error {
			return submitImported(ctx, cat, forms)
		})
	},
}

func init() {
	importCmd.Flags().String("dir", "", "Import every SKILL.md below this directory")
	importCmd.Flags().StringP("output", "o", "", "Write the imported document to this file")
	importCmd.Flags().Bool("submit", false, "Submit the imported skills for review")
	importCmd.Flags().String("author", "", "Author for skills whose source names none")
	importCmd.Flags().String("category", "", "Category for skills whose source names none")
	importCmd.Flags().String("github-token", "", "Token for private GitHub and gist URLs")

	bindFlag("import.github_token", importCmd.Flags().Lookup("github-token"))
}

func getImportConfigFromFlags(cmd *cobra.Command) *ImportConfig {
	ic := &ImportConfig{}
	ic.Dir, _ = cmd.Flags().GetString("dir")
	ic.Output, _ = cmd.Flags().GetString("output")
	ic.Submit, _ = cmd.Flags().GetBool("submit")
	ic.Author, _ = cmd.Flags().GetString("author")
	ic.Category, _ = cmd.Flags().GetString("category")
	return ic
}

func validateImportConfig(ic *ImportConfig, args []string) error {
	switch {
	case ic.Dir == "" && len(args) == 0:
		return errors.New("a URL or --dir is required")
	case ic.Dir != "" && len(args) > 0:
		return errors.New("a URL and --dir cannot be combined")
	case ic.Dir != "" && ic.Output != "":
		return errors.New("--output only applies to URL imports")
	case ic.Category != "" && !skills.IsCategory(ic.Category):
		return errors.Errorf("unknown category %q", ic.Category)
	}
	return nil
}

// importRemote imports rawURL through the server with --remote, or with a
// local importer otherwise.
func importRemote(ctx context.Context, rawURL string) (submission.UploadForm, error) {
	remote, _ := rootCmd.PersistentFlags().GetBool("remote")

	var result *importer.Result
	var form submission.UploadForm
	if remote {
		c, err := newClient()
		if err != nil {
			return form, err
		}
		resp, err := c.Import(ctx, rawURL)
		if err != nil {
			return form, err
		}
		result, form = resp.Result, resp.Form
	} else {
		im, err := newImporter(ctx, cfg)
		if err != nil {
			return form, err
		}
		result, err = im.Import(ctx, rawURL)
		if err != nil {
			return form, err
		}
		form = result.Form()
	}

	presenter.Success(fmt.Sprintf("Imported %q from %s", result.Title, result.Source))
	fmt.Printf("Fetched from: %s\n", result.FetchedFrom)
	fmt.Printf("Version: %s\n", result.Version)
	if form.Author != "" {
		fmt.Printf("Author: %s\n", form.Author)
	}
	if form.Tags != "" {
		fmt.Printf("Tags: %s\n", form.Tags)
	}
	if result.Synthesized {
		presenter.Warning("The archive had no SKILL.md; the document was built from its metadata")
	}
	return form, nil
}

func scanLocalSkills(dir string) []submission.UploadForm {
	found, errs := importer.ScanDir(dir)
	for _, err := range errs {
		presenter.Warning(err.Error())
	}
	if len(found) == 0 {
		presenter.Info(fmt.Sprintf("No %s files found below %s", importer.SkillFileName, dir))
		return nil
	}

	forms := make([]submission.UploadForm, 0, len(found))
	for _, ls := range found {
		doc := ls.Document
		fmt.Printf("%s  %s\n", ls.Path, doc.Title)
		form := submission.UploadForm{
			Title:       doc.Title,
			Content:     doc.Content,
			Version:     doc.Version,
			Author:      doc.Author,
			Description: doc.Description,
			Tags:        joinTags(doc.Tags),
		}
		if skills.IsCategory(doc.Category) {
			form.Category = doc.Category
		}
		forms = append(forms, form)
	}
	presenter.Success(fmt.Sprintf("Found %d skills", len(forms)))
	return forms
}

func submitImported(ctx context.Context, cat catalog, forms []submission.UploadForm) error {
	var failed int
	for _, form := range forms {
		created, err := cat.Submit(ctx, submission.Request{Method: skills.MethodUpload, Upload: &form})
		if err != nil {
			presenter.Error(err, fmt.Sprintf("failed to submit %q", form.Title))
			failed++
			continue
		}
		presenter.Success(fmt.Sprintf("Submitted %q as %s", created.Title, created.ID))
	}
	if failed > 0 {
		return errors.Errorf("%d of %d submissions failed", failed, len(forms))
	}
	return nil
}
