package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MForofontov/Schema-Refinery/internal/ledger"
)

var (
	ledgerPath string
	runsLimit  int
)

// runsCmd is for listing past runs, or the failed pairs of one
var runsCmd = &cobra.Command{
	Use:                        "runs [run]",
	Short:                      "List the runs recorded in a ledger",
	RunE:                       runsExec,
	Args:                       cobra.MaximumNArgs(1),
	SuggestionsMinimumDistance: 2,
	Long: `List the runs recorded in a ledger, most recent first.
With a run id, list the candidate pairs that run failed to score.`,
	Aliases: []string{"ls"},
}

func init() {
	runsCmd.Flags().StringVarP(&ledgerPath, "ledger", "l", "", "sqlite database runs were recorded in")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs, 0 for all")
	runsCmd.MarkFlagRequired("ledger")

	RootCmd.AddCommand(runsCmd)
}

func runsExec(cmd *cobra.Command, args []string) error {
	l, err := ledger.Open(ledgerPath)
	if err != nil {
		return err
	}
	defer l.Close()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 3, ' ', 0)

	if len(args) == 1 {
		failures, err := l.Failures(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "a\tb\treason\t\n")
		for _, f := range failures {
			fmt.Fprintf(tw, "%s\t%s\t%s\t\n", f.Pair.A, f.Pair.B, f.Reason)
		}
		return tw.Flush()
	}

	runs, err := l.Runs(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	fmt.Fprintf(tw, "run\tstarted\tstatus\tstage\tloci merged\tfailed pairs\tschema\t\n")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Status,
			r.Stage,
			r.Merged,
			r.Failed,
			r.SchemaDir,
		)
	}
	return tw.Flush()
}
