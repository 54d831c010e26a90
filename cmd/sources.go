package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/court-inventory/internal/discovery"
	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/registry"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage court directory sources",
}

// -- sources list --

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		jtFlag, _ := cmd.Flags().GetString("jurisdiction-type")
		jid, _ := cmd.Flags().GetInt64("jurisdiction-id")
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")

		jt, err := parseJurisdictionTypeFlag(jtFlag)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		sources, err := env.Sources.List(ctx, registry.Filter{
			JurisdictionType: jt,
			JurisdictionID:   jid,
			ActiveOnly:       !all,
			Limit:            limit,
		})
		if err != nil {
			return eris.Wrap(err, "sources list")
		}
		if len(sources) == 0 {
			fmt.Fprintln(os.Stderr, "No sources found.")
			return nil
		}

		formatSourcesList(os.Stdout, sources, time.Now())
		return nil
	},
}

// -- sources add --

var sourcesAddCmd = &cobra.Command{
	Use:   "add <jurisdiction-id> <url>",
	Short: "Register a source URL for a jurisdiction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		jid, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid jurisdiction id %q", args[0])
		}
		sourceType, _ := cmd.Flags().GetString("type")

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		j, err := env.Hierarchy.Get(ctx, jid)
		if err != nil {
			return eris.Wrap(err, "sources add")
		}

		created, err := env.Sources.RegisterTyped(ctx, j.ID, args[1], sourceType)
		if err != nil {
			return eris.Wrap(err, "sources add")
		}
		if created {
			fmt.Printf("Registered %s for %s\n", args[1], j.Name)
		} else {
			fmt.Printf("%s is already registered for %s\n", args[1], j.Name)
		}
		return nil
	},
}

// -- sources discover --

var sourcesDiscoverCmd = &cobra.Command{
	Use:   "discover <jurisdiction-id>",
	Short: "Ask the model for directory pages of one jurisdiction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		jid, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid jurisdiction id %q", args[0])
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		j, err := env.Hierarchy.Get(ctx, jid)
		if err != nil {
			return eris.Wrap(err, "sources discover")
		}

		outcomes, err := env.Finder.DiscoverSources(ctx, j)
		if err != nil {
			return eris.Wrap(err, "sources discover")
		}
		if len(outcomes) == 0 {
			fmt.Fprintf(os.Stderr, "No sources suggested for %s.\n", j.Name)
			return nil
		}
		formatSourceOutcomes(os.Stdout, outcomes)
		return nil
	},
}

// -- sources deactivate --

var sourcesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <source-id>",
	Short: "Stop checking a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid source id %q", args[0])
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Sources.Deactivate(ctx, id); err != nil {
			return eris.Wrap(err, "sources deactivate")
		}
		fmt.Printf("Deactivated source %d\n", id)
		return nil
	},
}

func init() {
	sourcesListCmd.Flags().String("jurisdiction-type", "", "filter by jurisdiction type")
	sourcesListCmd.Flags().Int64("jurisdiction-id", 0, "filter by jurisdiction id")
	sourcesListCmd.Flags().Bool("all", false, "include inactive sources")
	sourcesListCmd.Flags().Int("limit", 100, "max number of sources to display")

	sourcesAddCmd.Flags().String("type", "directory", "source type label")

	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesDiscoverCmd)
	sourcesCmd.AddCommand(sourcesDeactivateCmd)
	rootCmd.AddCommand(sourcesCmd)
}

// formatSourcesList writes a tabular list of sources to w.
func formatSourcesList(out io.Writer, sources []model.CourtSource, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tJURISDICTION\tTYPE\tURL\tACTIVE\tLAST CHECKED\tDUE")
	_, _ = fmt.Fprintln(w, "--\t------------\t----\t---\t------\t------------\t---")

	for _, s := range sources {
		checked := "never"
		if s.LastChecked != nil {
			checked = s.LastChecked.Format("2006-01-02 15:04")
		}
		due := "no"
		if s.IsActive && registry.IsDue(now, s.LastChecked, s.UpdateFrequency) {
			due = "yes"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\t%s\n",
			s.ID,
			s.JurisdictionName,
			s.JurisdictionType,
			s.URL,
			s.IsActive,
			checked,
			due,
		)
	}
	_ = w.Flush()
}

func formatSourceOutcomes(out io.Writer, outcomes []discovery.SourceOutcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "URL\tTYPE\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintln(w, "---\t----\t------\t------")
	for _, o := range outcomes {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.URL, o.SourceType, o.Status, o.Detail)
	}
	_ = w.Flush()
}
