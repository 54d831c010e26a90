// Package export writes the court inventory to xlsx workbooks.
package export

import (
	"context"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/store"
)

// Sheet names.
const (
	CourtsSheet  = "Courts"
	SummarySheet = "Summary"
)

const pageSize = 1000

// CourtColumns is the header row of the Courts sheet.
var CourtColumns = []string{
	"ID", "Name", "Type", "Jurisdiction", "Status", "Address", "Phone", "Email", "Hours",
	"URL", "Latitude", "Longitude", "Maintenance Notice", "Maintenance Start", "Maintenance End",
	"Last Updated",
}

// CourtSource pages through stored courts.
type CourtSource interface {
	SearchCourts(ctx context.Context, f store.CourtFilter) ([]model.Court, error)
}

// Collect reads every court matching f, paging through the source. A
// positive f.Limit caps the total.
func Collect(ctx context.Context, src CourtSource, f store.CourtFilter) ([]model.Court, error) {
	total := f.Limit
	var out []model.Court
	offset := f.Offset
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "export: collect courts")
		}
		page := pageSize
		if total > 0 {
			page = min(page, total-len(out))
		}
		q := f
		q.Limit, q.Offset = page, offset
		courts, err := src.SearchCourts(ctx, q)
		if err != nil {
			return nil, eris.Wrap(err, "export: search courts")
		}
		out = append(out, courts...)
		offset += len(courts)
		if len(courts) < page || (total > 0 && len(out) >= total) {
			return out, nil
		}
	}
}

// Build assembles a workbook with a Courts sheet and a Summary sheet.
func Build(courts []model.Court, generated time.Time) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(CourtsSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add courts sheet")
	}
	addRow(sheet, CourtColumns...)
	for _, c := range courts {
		writeCourt(sheet.AddRow(), c)
	}

	summary, err := f.AddSheet(SummarySheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add summary sheet")
	}
	writeSummary(summary, courts, generated)

	return f, nil
}

// Write builds the workbook and writes it to w.
func Write(w io.Writer, courts []model.Court, generated time.Time) error {
	f, err := Build(courts, generated)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

// Save builds the workbook and saves it to path.
func Save(path string, courts []model.Court, generated time.Time) error {
	f, err := Build(courts, generated)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func writeCourt(row *xlsx.Row, c model.Court) {
	var phone, email, hours string
	if c.ContactInfo != nil {
		phone, email, hours = c.ContactInfo.Phone, c.ContactInfo.Email, c.ContactInfo.Hours
	}

	row.AddCell().SetInt64(c.ID)
	for _, v := range []string{c.Name, c.Type, c.JurisdictionName, string(c.Status), c.Address, phone, email, hours, c.URL} {
		row.AddCell().SetString(v)
	}
	addCoord(row, c.Lat)
	addCoord(row, c.Lon)
	row.AddCell().SetString(c.MaintenanceNotice)
	row.AddCell().SetString(formatTime(c.MaintenanceStart, time.DateOnly))
	row.AddCell().SetString(formatTime(c.MaintenanceEnd, time.DateOnly))
	row.AddCell().SetString(c.LastUpdated.UTC().Format(time.RFC3339))
}

func addCoord(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}

func formatTime(t *time.Time, layout string) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(layout)
}

func writeSummary(sheet *xlsx.Sheet, courts []model.Court, generated time.Time) {
	byStatus := map[string]int{}
	byType := map[string]int{}
	located := 0
	for _, c := range courts {
		byStatus[string(c.Status)]++
		typ := c.Type
		if typ == "" {
			typ = "Unclassified"
		}
		byType[typ]++
		if c.HasLocation() {
			located++
		}
	}

	addRow(sheet, "Metric", "Value")
	addRow(sheet, "Generated At", generated.UTC().Format(time.RFC3339))
	addRow(sheet, "Total Courts", strconv.Itoa(len(courts)))
	addRow(sheet, "Geocoded", strconv.Itoa(located))
	addRow(sheet, "Status", "Courts")
	for _, st := range model.CourtStatuses() {
		addRow(sheet, string(st), strconv.Itoa(byStatus[string(st)]))
	}
	addRow(sheet, "Court Type", "Courts")
	for _, k := range sortedKeys(byType) {
		addRow(sheet, k, strconv.Itoa(byType[k]))
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
