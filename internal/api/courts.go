package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// CourtFilterFromQuery parses the court query parameters q, status, type,
// jurisdiction_id, limit and offset. status and type accept comma-separated
// lists.
func CourtFilterFromQuery(q url.Values) (store.CourtFilter, error) {
	f := store.CourtFilter{
		Query: strings.TrimSpace(q.Get("q")),
		Types: splitList(q.Get("type")),
		Limit: defaultLimit,
	}

	for _, raw := range splitList(q.Get("status")) {
		st, ok := model.ParseCourtStatus(raw)
		if !ok {
			return f, eris.Errorf("invalid status %q", raw)
		}
		f.Statuses = append(f.Statuses, st)
	}

	if v := q.Get("jurisdiction_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return f, eris.Errorf("invalid jurisdiction_id %q", v)
		}
		f.JurisdictionID = id
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, eris.Errorf("invalid limit %q", v)
		}
		f.Limit = min(n, maxLimit)
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, eris.Errorf("invalid offset %q", v)
		}
		f.Offset = n
	}

	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type courtsResponse struct {
	Courts []model.Court `json:"courts"`
	Count  int           `json:"count"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (s *Server) listCourts(w http.ResponseWriter, r *http.Request) {
	f, err := CourtFilterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	courts, err := s.store.SearchCourts(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if courts == nil {
		courts = []model.Court{}
	}

	writeJSON(w, http.StatusOK, courtsResponse{
		Courts: courts,
		Count:  len(courts),
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

func (s *Server) courtCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CourtCounts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) courtPoints(w http.ResponseWriter, r *http.Request) {
	f, err := CourtFilterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Points are for map rendering and are not paged.
	f.Limit, f.Offset = 0, 0

	courts, err := s.store.CourtPoints(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	data, err := CourtFeatures(courts).MarshalJSON()
	if err != nil {
		s.fail(w, r, eris.Wrap(err, "api: encode points"))
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// CourtFeatures converts located courts into a GeoJSON FeatureCollection.
// Courts without coordinates are left out.
func CourtFeatures(courts []model.Court) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, c := range courts {
		if !c.HasLocation() {
			continue
		}
		props := map[string]any{
			"name":            c.Name,
			"type":            c.Type,
			"status":          string(c.Status),
			"jurisdiction_id": c.JurisdictionID,
		}
		if c.JurisdictionName != "" {
			props["jurisdiction"] = c.JurisdictionName
		}
		if c.URL != "" {
			props["url"] = c.URL
		}
		if c.Address != "" {
			props["address"] = c.Address
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         strconv.FormatInt(c.ID, 10),
			Geometry:   geom.NewPointFlat(geom.XY, []float64{*c.Lon, *c.Lat}).SetSRID(4326),
			Properties: props,
		})
	}
	return fc
}
