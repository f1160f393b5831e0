package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillhub/pkg/config"
	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/presenter"
)

// v holds every configuration source: defaults, config file, SKILLHUB_*
// environment variables and bound flags.
var v = config.New()

// cfg is the decoded configuration, loaded before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "skillhub",
	Short: "Skill marketplace with an evaluation pipeline and admin review",
	Long: `skillhub is a marketplace for agent skills. Submitted skills go through an
animated evaluation pipeline and an admin review before they are listed.

Run "skillhub serve" to start the HTTP API, or use the other commands against
the built-in catalog or a running server (--server).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		if err := config.ReadFile(v, configPath); err != nil {
			return err
		}
		loaded, err := config.Load(v)
		if err != nil {
			return errors.Wrap(err, "invalid configuration")
		}
		cfg = loaded

		quiet, _ := cmd.Flags().GetBool("quiet")
		presenter.SetQuiet(quiet)
		presenter.SetInput(cmd.InOrStdin())

		if err := logger.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
			return err
		}
		return startTracing(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		return stopTracing(cmd.Context())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default $HOME/.skillhub/config.yaml or ./config.yaml)")
	flags.String("profile", "", "Configuration profile to apply")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text or json)")
	flags.String("schema", "safety5", "Evaluation score schema (safety3, safety5, risk5)")
	flags.String("seed-file", "", "YAML catalog to seed the registry with instead of the built-in one")
	flags.String("role", "employee", "Viewer role of the in-process catalog (employee or admin)")
	flags.Bool("remote", false, "Talk to the server at --server-url instead of an in-process catalog")
	flags.String("server-url", "http://localhost:8080", "Address of a running skillhub server")
	flags.BoolP("quiet", "q", false, "Only print results and errors")

	bindFlag("profile", flags.Lookup("profile"))
	bindFlag("log.level", flags.Lookup("log-level"))
	bindFlag("log.format", flags.Lookup("log-format"))
	bindFlag("schema", flags.Lookup("schema"))
	bindFlag("seed_file", flags.Lookup("seed-file"))
	bindFlag("role", flags.Lookup("role"))
	bindFlag("server.url", flags.Lookup("server-url"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(roleCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
