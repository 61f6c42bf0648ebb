package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dozer-project/lucius/core/artifact"
	"github.com/dozer-project/lucius/internal/config"
	"github.com/dozer-project/lucius/runtime"
	"github.com/dozer-project/lucius/runtime/planner"
	"github.com/dozer-project/lucius/runtime/registry"
)

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [pipeline|-]",
		Short: "Compile a pipeline and report errors",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path, err := a.pipelinePath(args)
			if err != nil {
				return err
			}
			plan, name, err := a.compile(path)
			if err != nil {
				return err
			}
			digest, err := plan.Digest()
			if err != nil {
				return err
			}

			component := plan.Component
			if component == "" {
				component = name
			}
			useColor := ShouldUseColor(a.noColor, a.stdout)
			_, err = fmt.Fprintf(a.stdout, "%s %s (%d steps, %d signals, %d clauses) %s\n",
				Colorize("ok", ColorGreen, useColor), component,
				len(plan.Steps), len(plan.Signals), len(plan.Clauses), digest)
			return err
		},
	}
}

func (a *app) planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [pipeline|-]",
		Short: "Print the compiled plan and its digest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path, err := a.pipelinePath(args)
			if err != nil {
				return err
			}
			plan, _, err := a.compile(path)
			if err != nil {
				return err
			}
			digest, err := plan.Digest()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.stdout, "%sdigest: %s\n", planner.Format(plan), digest)
			return err
		},
	}
}

func (a *app) opsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List registered operation functions",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "FUNCTION\tOUTPUT\tMODULE")
			for _, d := range registry.Descriptors() {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Function, d.Output, d.Module)
			}
			return tw.Flush()
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	var showSignals bool

	cmd := &cobra.Command{
		Use:   "run [pipeline] <artifact>...",
		Short: "Run a pipeline against one or more artifacts",
		Long: "Run compiles the pipeline once and evaluates it against every artifact.\n" +
			"The pipeline is the first argument unless --pipeline or the config file names one.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, artifacts := a.cfg.Pipeline, args
			if path == "" {
				if len(args) < 2 {
					return fmt.Errorf("run needs a pipeline and at least one artifact")
				}
				path, artifacts = args[0], args[1:]
			}

			plan, _, err := a.compile(path)
			if err != nil {
				return err
			}

			reports, failed := a.runAll(cmd, plan, artifacts)
			if err := a.writeReports(reports, showSignals); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d artifacts failed", failed, len(artifacts))
			}
			return nil
		},
	}

	defaults := config.Default()
	cmd.Flags().StringVarP(&a.output, "output", "o", defaults.Output, "Report format: text, json or yaml")
	cmd.Flags().IntVarP(&a.workers, "workers", "w", defaults.Workers, "Artifacts evaluated concurrently")
	cmd.Flags().BoolVar(&showSignals, "signals", false, "Include every signal value in the report")
	return cmd
}

// runAll evaluates plan against every artifact with at most cfg.Workers in
// flight. Reports keep argument order; a failed artifact carries its error
// instead of a context.
func (a *app) runAll(cmd *cobra.Command, plan *planner.Plan, paths []string) ([]runReport, int) {
	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID)
	reports := make([]runReport, len(paths))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(a.cfg.Workers)
	for i, path := range paths {
		g.Go(func() error {
			reports[i] = runReport{RunID: runID, Artifact: path}
			if err := ctx.Err(); err != nil {
				reports[i].Error = err.Error()
				return nil
			}

			art, err := artifact.FromFile(path)
			if err != nil {
				logger.Warn("artifact unreadable", "artifact", path, "error", err)
				reports[i].Error = err.Error()
				return nil
			}

			report, err := runtime.RunWithReport(plan, art, runtime.WithLogger(logger.With("artifact", filepath.Base(path))))
			if err != nil {
				logger.Warn("run failed", "artifact", path, "error", err)
				reports[i].Error = err.Error()
				return nil
			}
			reports[i].Context = report.Context
			reports[i].Signals = report.Signals
			return nil
		})
	}
	_ = g.Wait() // per-artifact failures are recorded in reports

	failed := 0
	for _, r := range reports {
		if r.Error != "" {
			failed++
		}
	}
	logger.Debug("run finished", "artifacts", len(paths), "failed", failed)
	return reports, failed
}
