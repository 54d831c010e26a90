package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/court-inventory/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export courts to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		f, err := courtFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		courts, err := export.Collect(ctx, env.Store, f)
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if err := export.Save(out, courts, time.Now()); err != nil {
			return eris.Wrap(err, "export")
		}

		fmt.Printf("Wrote %d courts to %s\n", len(courts), out)
		return nil
	},
}

func init() {
	addCourtFilterFlags(exportCmd)
	exportCmd.Flags().Int("limit", 0, "max courts to export (0 = all)")
	exportCmd.Flags().String("out", "courts.xlsx", "output file path")
	rootCmd.AddCommand(exportCmd)
}
