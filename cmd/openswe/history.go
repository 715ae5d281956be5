package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"openswe/pkg/persistence"
)

const (
	shortIDLen      = 8
	requestColWidth = 50
	historyTimeFmt  = "2006-01-02 15:04:05"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := persistence.Open(root.cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			runs, err := persistence.ListRuns(cmd.Context(), db, limit)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")

	cmd.AddCommand(newHistoryShowCmd(root))
	return cmd
}

func newHistoryShowCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run; a unique prefix of the id is enough",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := persistence.Open(root.cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			run, err := persistence.GetRun(cmd.Context(), db, args[0])
			if err != nil {
				return fmt.Errorf("run %q: %w", args[0], err)
			}
			steps, err := persistence.GetRunSteps(cmd.Context(), db, run.RunID)
			if err != nil {
				return err
			}
			return printRun(cmd.OutOrStdout(), run, steps)
		},
	}
}

func printRuns(out io.Writer, runs []*persistence.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "No runs recorded yet.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tSTATUS\tITER\tFILES\tREQUEST")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			shortID(run.RunID),
			run.StartedAt.Local().Format(historyTimeFmt),
			run.Status,
			run.IterationCount,
			len(run.FilesCreated),
			oneLine(run.Request, requestColWidth),
		)
	}
	return tw.Flush()
}

func printRun(out io.Writer, run *persistence.Run, steps []persistence.StepRecord) error {
	tw := tabwriter.NewWriter(out, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", run.RunID)
	fmt.Fprintf(tw, "Request:\t%s\n", run.Request)
	fmt.Fprintf(tw, "Status:\t%s\n", run.Status)
	fmt.Fprintf(tw, "Routing:\t%s\n", run.RoutingMode)
	fmt.Fprintf(tw, "Started:\t%s\n", run.StartedAt.Local().Format(historyTimeFmt))
	if run.EndedAt != nil {
		fmt.Fprintf(tw, "Ended:\t%s (%s)\n", run.EndedAt.Local().Format(historyTimeFmt),
			run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond))
	} else {
		fmt.Fprintf(tw, "Ended:\t-\n")
	}
	fmt.Fprintf(tw, "Iterations:\t%d\n", run.IterationCount)
	if run.ErrorMessage != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", run.ErrorMessage)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(steps) > 0 {
		fmt.Fprintln(out, "\nSteps:")
		tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  #\tSTEP\tDECISION\tSTATUS\tDURATION\tERROR")
		for _, s := range steps {
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\t%s\n", s.Iteration, s.Step, s.Decision, s.Status, s.Duration, s.Error)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if run.Plan != nil && *run.Plan != "" {
		fmt.Fprintf(out, "\nPlan:\n%s\n", *run.Plan)
	}

	if len(run.FilesCreated) > 0 {
		fmt.Fprintln(out, "\nFiles created:")
		for _, f := range run.FilesCreated {
			fmt.Fprintf(out, "  - %s\n", f)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

// oneLine collapses whitespace and cuts s to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
