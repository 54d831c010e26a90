package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/store"
	"github.com/sells-group/court-inventory/pkg/geocode"
)

var courtsCmd = &cobra.Command{
	Use:   "courts",
	Short: "Query and maintain stored courts",
}

// -- courts search --

var courtsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search courts by name, address or jurisdiction",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := courtFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			f.Query = args[0]
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		courts, err := env.Store.SearchCourts(ctx, f)
		if err != nil {
			return eris.Wrap(err, "courts search")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(courts)
		}
		if len(courts) == 0 {
			fmt.Fprintln(os.Stderr, "No courts found.")
			return nil
		}
		formatCourtsList(os.Stdout, courts)
		return nil
	},
}

// -- courts geocode --

var courtsGeocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Backfill coordinates for courts with an address",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		limit, _ := cmd.Flags().GetInt("limit")
		batch, _ := cmd.Flags().GetInt("batch-size")
		if batch <= 0 {
			batch = cfg.Geocode.BatchSize
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		matched, total, err := backfillLocations(ctx, env.Store, newGeocoder(), limit, batch)
		if err != nil {
			return eris.Wrap(err, "courts geocode")
		}
		fmt.Printf("Geocoded %d of %d courts\n", matched, total)
		return nil
	},
}

func init() {
	addCourtFilterFlags(courtsSearchCmd)
	courtsSearchCmd.Flags().Int("limit", 50, "max number of courts to display")
	courtsSearchCmd.Flags().Bool("json", false, "print courts as JSON")

	courtsGeocodeCmd.Flags().Int("limit", 1000, "max courts to geocode")
	courtsGeocodeCmd.Flags().Int("batch-size", 0, "addresses per batch request (default from config)")

	courtsCmd.AddCommand(courtsSearchCmd)
	courtsCmd.AddCommand(courtsGeocodeCmd)
	rootCmd.AddCommand(courtsCmd)
}

func addCourtFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("status", nil, "filter by status (Open, Closed, Limited Operations)")
	cmd.Flags().StringSlice("type", nil, "filter by court type")
	cmd.Flags().Int64("jurisdiction-id", 0, "filter by jurisdiction id")
}

// courtFilterFromFlags reads the shared filter flags plus --limit.
func courtFilterFromFlags(cmd *cobra.Command) (store.CourtFilter, error) {
	var f store.CourtFilter

	statuses, _ := cmd.Flags().GetStringSlice("status")
	for _, s := range statuses {
		st, ok := model.ParseCourtStatus(s)
		if !ok {
			return f, eris.Errorf("invalid status %q", s)
		}
		f.Statuses = append(f.Statuses, st)
	}
	f.Types, _ = cmd.Flags().GetStringSlice("type")
	f.JurisdictionID, _ = cmd.Flags().GetInt64("jurisdiction-id")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	return f, nil
}

// locationStore reads courts missing coordinates and writes them back.
type locationStore interface {
	CourtsMissingLocation(ctx context.Context, limit int) ([]model.Court, error)
	SetCourtLocation(ctx context.Context, courtID int64, lat, lon float64) error
}

// backfillLocations geocodes up to limit courts that have an address but no
// coordinates, batch addresses per request. A failed batch is logged and
// skipped; it returns the matched and attempted counts.
func backfillLocations(ctx context.Context, st locationStore, gc geocode.Client, limit, batch int) (int, int, error) {
	log := zap.L().With(zap.String("component", "geocode.backfill"))
	if batch <= 0 || batch > geocode.MaxBatch {
		batch = geocode.MaxBatch
	}

	courts, err := st.CourtsMissingLocation(ctx, limit)
	if err != nil {
		return 0, 0, err
	}

	matched := 0
	for start := 0; start < len(courts); start += batch {
		end := min(start+batch, len(courts))
		chunk := courts[start:end]

		addrs := make([]geocode.AddressInput, len(chunk))
		for i, c := range chunk {
			addrs[i] = geocode.ParseOneLine(strconv.FormatInt(c.ID, 10), c.Address)
		}

		results, err := gc.BatchGeocode(ctx, addrs)
		if err != nil {
			if ctx.Err() != nil {
				return matched, len(courts), eris.Wrap(ctx.Err(), "geocode cancelled")
			}
			log.Warn("batch geocode failed", zap.Int("batch_start", start), zap.Error(err))
			continue
		}

		for i, r := range results {
			if i >= len(chunk) || !r.Matched {
				continue
			}
			if err := st.SetCourtLocation(ctx, chunk[i].ID, r.Latitude, r.Longitude); err != nil {
				return matched, len(courts), err
			}
			matched++
		}
		log.Info("geocoded batch",
			zap.Int("batch_start", start),
			zap.Int("batch_size", len(chunk)),
			zap.Int("matched_total", matched),
		)
	}
	return matched, len(courts), nil
}

// formatCourtsList writes a tabular list of courts to w.
func formatCourtsList(out io.Writer, courts []model.Court) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tTYPE\tJURISDICTION\tSTATUS\tLOCATED\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t------------\t------\t-------\t-------")

	for _, c := range courts {
		name := c.Name
		if len(name) > 48 {
			name = name[:45] + "..."
		}
		status := string(c.Status)
		if c.MaintenanceNotice != "" {
			status += " *"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\t%s\n",
			c.ID,
			name,
			strings.TrimSpace(c.Type),
			c.JurisdictionName,
			status,
			c.HasLocation(),
			c.LastUpdated.Format("2006-01-02"),
		)
	}
	_ = w.Flush()
}
