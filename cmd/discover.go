package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/discovery"
	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/pipeline"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find court directory pages, then update every due source",
	Long:  "Asks the model for official court directory pages of every federal and state jurisdiction, registers the reachable ones, then runs an update over all due sources.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		skipSources, _ := cmd.Flags().GetBool("skip-sources")
		limit, _ := cmd.Flags().GetInt("limit")

		if !skipSources {
			stats, err := discoverAllSources(ctx, env.Hierarchy, env.Finder,
				[]model.JurisdictionType{model.JurisdictionFederal, model.JurisdictionState})
			if err != nil {
				return eris.Wrap(err, "discover sources")
			}
			formatDiscoveryStats(os.Stdout, stats)
		}

		res, err := env.Runner.Run(ctx, pipeline.Options{Limit: limit})
		if err != nil {
			return eris.Wrap(err, "discover")
		}
		formatRunResult(os.Stdout, res)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Process every due source once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		courtType, _ := cmd.Flags().GetString("type")
		jtFlag, _ := cmd.Flags().GetString("jurisdiction-type")
		limit, _ := cmd.Flags().GetInt("limit")

		jt, err := parseJurisdictionTypeFlag(jtFlag)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Runner.Run(ctx, pipeline.Options{
			CourtType:        courtType,
			JurisdictionType: jt,
			Limit:            limit,
		})
		if err != nil {
			return eris.Wrap(err, "update")
		}
		formatRunResult(os.Stdout, res)
		return nil
	},
}

func init() {
	discoverCmd.Flags().Bool("skip-sources", false, "skip AI source discovery and only update due sources")
	discoverCmd.Flags().Int("limit", 0, "max sources to process (0 = all)")

	updateCmd.Flags().String("type", "", "only persist courts of this court type (e.g. \"District Courts\")")
	updateCmd.Flags().String("jurisdiction-type", "", "only process sources of this jurisdiction type (federal, state, county, ...)")
	updateCmd.Flags().Int("limit", 0, "max sources to process (0 = all)")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(updateCmd)
}

// jurisdictionLister lists jurisdictions of one type.
type jurisdictionLister interface {
	List(ctx context.Context, typ model.JurisdictionType) ([]model.Jurisdiction, error)
}

// sourceDiscoverer suggests and registers sources for one jurisdiction.
type sourceDiscoverer interface {
	DiscoverSources(ctx context.Context, j model.Jurisdiction) ([]discovery.SourceOutcome, error)
}

// discoveryStats counts source discovery outcomes across jurisdictions.
type discoveryStats struct {
	Jurisdictions int
	Failed        int
	Suggested     int
	Registered    int
	Existing      int
	Rejected      int
}

// discoverAllSources runs source discovery for every jurisdiction of the
// given types. A failure for one jurisdiction is logged and counted; only
// cancellation and listing errors abort.
func discoverAllSources(ctx context.Context, lister jurisdictionLister, finder sourceDiscoverer, types []model.JurisdictionType) (discoveryStats, error) {
	log := zap.L().With(zap.String("component", "discover"))
	var stats discoveryStats

	for _, jt := range types {
		jurisdictions, err := lister.List(ctx, jt)
		if err != nil {
			return stats, eris.Wrapf(err, "list %s jurisdictions", jt)
		}
		for _, j := range jurisdictions {
			if err := ctx.Err(); err != nil {
				return stats, eris.Wrap(err, "source discovery cancelled")
			}
			stats.Jurisdictions++

			outcomes, err := finder.DiscoverSources(ctx, j)
			if err != nil {
				if ctx.Err() != nil {
					return stats, eris.Wrap(err, "source discovery cancelled")
				}
				stats.Failed++
				log.Warn("source discovery failed",
					zap.String("jurisdiction", j.Name),
					zap.Error(err),
				)
				continue
			}

			registered := discovery.CountStatus(outcomes, discovery.SourceRegistered)
			existing := discovery.CountStatus(outcomes, discovery.SourceExisting)
			stats.Suggested += len(outcomes)
			stats.Registered += registered
			stats.Existing += existing
			stats.Rejected += len(outcomes) - registered - existing
		}
	}
	return stats, nil
}

func formatDiscoveryStats(out io.Writer, s discoveryStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Jurisdictions searched:\t%d\n", s.Jurisdictions)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Sources suggested:\t%d\n", s.Suggested)
	_, _ = fmt.Fprintf(w, "  Registered:\t%d\n", s.Registered)
	_, _ = fmt.Fprintf(w, "  Already known:\t%d\n", s.Existing)
	_, _ = fmt.Fprintf(w, "  Rejected:\t%d\n", s.Rejected)
	_ = w.Flush()
}

func formatRunResult(out io.Writer, res *pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	_, _ = fmt.Fprintf(w, "Sources processed:\t%d/%d\n", res.Processed, res.Sources)
	_, _ = fmt.Fprintf(w, "  Fetch failures:\t%d\n", res.FailedSources)
	_, _ = fmt.Fprintf(w, "Candidates:\t%d\n", res.Candidates)
	_, _ = fmt.Fprintf(w, "  Accepted:\t%d\n", res.Accepted)
	_, _ = fmt.Fprintf(w, "  Rejected:\t%d\n", res.Rejected)
	_, _ = fmt.Fprintf(w, "  Skipped:\t%d\n", res.Skipped)
	_, _ = fmt.Fprintf(w, "New courts:\t%d\n", res.NewCourts)
	_, _ = fmt.Fprintf(w, "Updated courts:\t%d\n", res.Updated)
	_ = w.Flush()
}

func parseJurisdictionTypeFlag(s string) (model.JurisdictionType, error) {
	if s == "" {
		return "", nil
	}
	jt, ok := model.ParseJurisdictionType(s)
	if !ok {
		return "", eris.Errorf("unknown jurisdiction type %q", s)
	}
	return jt, nil
}
