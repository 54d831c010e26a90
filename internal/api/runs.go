package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/store"
)

const defaultLogLimit = 500

// runView adds the computed completion percentage to a run.
type runView struct {
	model.InventoryRun
	Percent float64 `json:"percent"`
}

func viewRun(r model.InventoryRun) runView {
	return runView{InventoryRun: r, Percent: r.Percent()}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	f := store.RunFilter{Limit: 20}
	if v := r.URL.Query().Get("status"); v != "" {
		st := model.RunStatus(v)
		switch st {
		case model.RunStatusRunning, model.RunStatusCompleted, model.RunStatusError:
			f.Status = st
		default:
			writeError(w, http.StatusBadRequest, "invalid status "+strconv.Quote(v))
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit "+strconv.Quote(v))
			return
		}
		f.Limit = min(n, maxLimit)
	}

	runs, err := s.store.ListRuns(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, viewRun(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": views})
}

func (s *Server) latestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.LatestRun(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRun(*run))
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRun(*run))
}

func (s *Server) runLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}

	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit "+strconv.Quote(v))
			return
		}
		limit = n
	}

	logs, err := s.store.ListLogs(r.Context(), id, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []model.RunLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": id, "logs": logs})
}

func (s *Server) usage(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid hours "+strconv.Quote(v))
			return
		}
		hours = n
	}

	summary, err := s.store.UsageSummary(r.Context(), time.Now().UTC().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
