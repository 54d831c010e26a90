package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/court-inventory/internal/store"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show model API usage and cost",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		since, _ := cmd.Flags().GetDuration("since")

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Store.UsageSummary(ctx, time.Now().Add(-since))
		if err != nil {
			return eris.Wrap(err, "usage")
		}

		formatUsage(os.Stdout, summary)
		return nil
	},
}

func init() {
	usageCmd.Flags().Duration("since", 24*time.Hour, "time window (e.g. 24h, 168h)")
	rootCmd.AddCommand(usageCmd)
}

// formatUsage writes totals, the per-model breakdown and recent calls to w.
func formatUsage(out io.Writer, s *store.UsageSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Since:\t%s\n", s.Since.Format("2006-01-02 15:04"))
	_, _ = fmt.Fprintf(w, "Calls:\t%d\n", s.Calls)
	_, _ = fmt.Fprintf(w, "Successful:\t%d (%.1f%%)\n", s.Successful, s.SuccessRate*100)
	_, _ = fmt.Fprintf(w, "Tokens:\t%d\n", s.Tokens)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.4f\n", s.CostUSD)
	if s.LastCall != nil {
		_, _ = fmt.Fprintf(w, "Last call:\t%s\n", s.LastCall.Format("2006-01-02 15:04:05"))
	}
	_ = w.Flush()

	if len(s.ByModel) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "MODEL\tCALLS\tTOKENS\tCOST")
		for _, m := range s.ByModel {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t$%.4f\n", m.Model, m.Calls, m.Tokens, m.CostUSD)
		}
		_ = w.Flush()
	}

	if len(s.Recent) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "TIME\tENDPOINT\tMODEL\tTOKENS\tCOST\tOK")
		for _, u := range s.Recent {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t$%.4f\t%t\n",
				u.Timestamp.Format("01-02 15:04:05"), u.Endpoint, u.Model, u.TokensUsed(), u.CostUSD, u.Success)
		}
		_ = w.Flush()
	}
}
