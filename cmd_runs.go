package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"autocurator/models"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		logs, err := st.RecentSearchLogs(ctx, runsLimit)
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if len(logs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		total, err := st.CountVehicles(ctx)
		if err != nil {
			return eris.Wrap(err, "count vehicles")
		}

		formatRuns(os.Stdout, logs)
		fmt.Fprintf(os.Stdout, "\n%d vehicles stored\n", total)
		return nil
	},
}

func formatRuns(w io.Writer, logs []models.SearchLog) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN DATE\tSOURCE\tOK\tFETCHED\tFILTERED\tVIN OK\tSTORED\tDUPES\tCOST\tTIME\tERRORS")
	for _, l := range logs {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\t%d\t%d\t%d\t$%.2f\t%s\t%d\n",
			l.RunDate.Local().Format("2006-01-02 15:04"),
			l.Source,
			l.Success,
			l.ListingsFetched,
			l.AfterBasicFilter,
			l.AfterVINValidation,
			l.FinalStored,
			l.Duplicates,
			l.APICost,
			(time.Duration(l.ExecutionTimeMs) * time.Millisecond).String(),
			l.ErrorsCount,
		)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)
}
