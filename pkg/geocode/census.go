package geocode

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	oneLinePath = "/locations/onelineaddress"
	batchPath   = "/locations/addressbatch"
	benchmark   = "Public_AR_Current"
)

// oneLineResponse is the JSON response from the one-line endpoint.
type oneLineResponse struct {
	Result struct {
		AddressMatches []struct {
			Coordinates struct {
				X float64 `json:"x"` // longitude
				Y float64 `json:"y"` // latitude
			} `json:"coordinates"`
			MatchedAddress string `json:"matchedAddress"`
		} `json:"addressMatches"`
	} `json:"result"`
}

func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	line := addr.oneLine()
	if line == "" {
		return &Result{}, nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"address":   {line},
		"benchmark": {benchmark},
		"format":    {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+oneLinePath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}

	body, err := g.do(req)
	if err != nil {
		return nil, err
	}

	var resp oneLineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if len(resp.Result.AddressMatches) == 0 {
		return &Result{}, nil
	}

	m := resp.Result.AddressMatches[0]
	return &Result{
		Latitude:       m.Coordinates.Y,
		Longitude:      m.Coordinates.X,
		Quality:        "exact",
		MatchedAddress: m.MatchedAddress,
		Matched:        true,
	}, nil
}

func (g *geocoder) BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	if len(addrs) > MaxBatch {
		return nil, eris.Errorf("geocode: batch of %d exceeds limit %d", len(addrs), MaxBatch)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: batch rate limit")
	}

	// Rows are keyed by position so caller ids need not be unique.
	var rows bytes.Buffer
	cw := csv.NewWriter(&rows)
	for i, a := range addrs {
		street := a.Street
		if street == "" && a.City == "" {
			street = a.OneLine
		}
		if err := cw.Write([]string{strconv.Itoa(i), street, a.City, a.State, a.ZipCode}); err != nil {
			return nil, eris.Wrap(err, "geocode: batch write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, eris.Wrap(err, "geocode: batch flush rows")
	}

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	if err := mw.WriteField("benchmark", benchmark); err != nil {
		return nil, eris.Wrap(err, "geocode: batch write benchmark")
	}
	part, err := mw.CreateFormFile("addressFile", "addresses.csv")
	if err != nil {
		return nil, eris.Wrap(err, "geocode: batch create form file")
	}
	if _, err := part.Write(rows.Bytes()); err != nil {
		return nil, eris.Wrap(err, "geocode: batch write form file")
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "geocode: batch close form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+batchPath, &form)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: batch build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := g.do(req)
	if err != nil {
		return nil, err
	}
	return parseBatchResponse(body, len(addrs))
}

func (g *geocoder) do(req *http.Request) ([]byte, error) {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: census returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}
	return body, nil
}

// parseBatchResponse reads the batch CSV:
// "id","input address","Match","Exact","matched address","lon,lat","tigerlineid","side".
// Unmatched and unparseable rows leave a zero Result.
func parseBatchResponse(body []byte, total int) ([]Result, error) {
	results := make([]Result, total)

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse batch response")
	}

	for _, rec := range records {
		if len(rec) < 6 {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil || idx < 0 || idx >= total {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(rec[2]), "Match") {
			continue
		}
		lon, lat, err := parseCoords(rec[5])
		if err != nil {
			continue
		}
		results[idx] = Result{
			Latitude:       lat,
			Longitude:      lon,
			Quality:        strings.ToLower(strings.TrimSpace(rec[3])),
			MatchedAddress: rec[4],
			Matched:        true,
		}
	}
	return results, nil
}

// parseCoords parses the "lon,lat" field of a batch row.
func parseCoords(coords string) (lon, lat float64, err error) {
	x, y, ok := strings.Cut(coords, ",")
	if !ok {
		return 0, 0, eris.Errorf("geocode: invalid coords %q", coords)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse lon")
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(y), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse lat")
	}
	return lon, lat, nil
}
