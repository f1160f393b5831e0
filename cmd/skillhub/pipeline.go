package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skillhub/pkg/evaluation"
	"github.com/jingkaihe/skillhub/pkg/pipeline"
	"github.com/jingkaihe/skillhub/pkg/presenter"
	"github.com/jingkaihe/skillhub/pkg/scheduler"
	"github.com/jingkaihe/skillhub/pkg/tui"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Evaluation pipeline commands",
}

// PipelineRunConfig holds configuration for the pipeline run command
type PipelineRunConfig struct {
	Plain      bool
	ExitOnDone bool
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Animate the evaluation pipeline of a skill",
	Long: `Animate the evaluation pipeline of a skill in the terminal. Pending skills
walk through every stage; reviewed skills show the finished pipeline at once.

--plain prints the log lines instead, which is also the default when stdin is
not a terminal.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		rc := &PipelineRunConfig{}
		rc.Plain, _ = cmd.Flags().GetBool("plain")
		rc.ExitOnDone, _ = cmd.Flags().GetBool("exit")

		withCatalog(ctx, func(cat catalog) error {
			skill, err := cat.Get(ctx, args[0])
			if err != nil {
				return err
			}
			stages, err := cat.Stages(ctx)
			if err != nil {
				return err
			}
			schema := cfg.EvaluationSchema()

			if rc.Plain || !tui.IsTTY() {
				snap := runPlainPipeline(ctx, skill, stages, scheduler.Real())
				printOutcome(skill, snap, schema)
				return nil
			}

			snap, err := tui.RunPipeline(ctx, skill, stages, schema, rc.ExitOnDone)
			if err != nil {
				return err
			}
			if rc.ExitOnDone {
				printOutcome(skill, snap, schema)
			}
			return nil
		})
	},
}

var pipelineStagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the evaluation stages",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		withCatalog(ctx, func(cat catalog) error {
			stages, err := cat.Stages(ctx)
			if err != nil {
				return err
			}
			printStages(os.Stdout, stages)
			return nil
		})
	},
}

func init() {
	pipelineRunCmd.Flags().Bool("plain", false, "Print log lines instead of the terminal animation")
	pipelineRunCmd.Flags().Bool("exit", false, "Exit as soon as the run finishes")

	pipelineCmd.AddCommand(pipelineRunCmd)
	pipelineCmd.AddCommand(pipelineStagesCmd)
}

// runPlainPipeline drives a run and prints each new log line until it
// finishes or ctx is cancelled.
func runPlainPipeline(ctx context.Context, skill skills.Skill, stages []pipeline.Stage, sched scheduler.Scheduler) pipeline.Snapshot {
	run := pipeline.NewFull(stages, skill.Status, sched)
	defer run.Stop()

	snaps := make(chan pipeline.Snapshot, 64)
	unsubscribe := run.Subscribe(func(s pipeline.Snapshot) {
		select {
		case snaps <- s:
		default:
		}
	})
	defer unsubscribe()

	printed := 0
	flush := func(s pipeline.Snapshot) {
		for ; printed < len(s.Log); printed++ {
			presenter.PipelineLine(s.Log[printed])
		}
	}

	flush(run.Snapshot())
	run.Start()
	for {
		select {
		case <-ctx.Done():
			return run.Snapshot()
		case s := <-snaps:
			flush(s)
		case <-run.Done():
			final := run.Snapshot()
			flush(final)
			return final
		}
	}
}

func printOutcome(skill skills.Skill, snap pipeline.Snapshot, schema evaluation.Schema) {
	fmt.Println()
	switch {
	case snap.Failure != "":
		presenter.Warning("Evaluation failed: " + snap.Failure)
	case !snap.Done:
		presenter.Info("Evaluation interrupted")
	default:
		presenter.Section("Evaluation Report")
		presenter.Scores(skill.EvaluationScores, schema)
	}
}

func printStages(out io.Writer, stages []pipeline.Stage) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTAGE\tCHECKS\tSUBSTEPS\tDURATION")
	for i, st := range stages {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", i+1, st.Label, st.Sublabel, len(st.SubSteps), st.Duration)
	}
	fmt.Fprintf(w, "\tTotal\t\t\t%s\n", pipeline.TotalDuration(stages))
	w.Flush()
}
