package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/odvcencio/ilanhub/internal/vehicle"
)

func (s *Server) handleVehicleWizard(w http.ResponseWriter, r *http.Request) {
	var sel vehicle.Selection
	for _, f := range []struct {
		key string
		dst *int64
	}{
		{"brand_id", &sel.BrandID},
		{"model_id", &sel.ModelID},
		{"version_id", &sel.VersionID},
	} {
		v, err := queryInt64(r, f.key)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if v != nil {
			*f.dst = *v
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			jsonError(w, "invalid year", http.StatusBadRequest)
			return
		}
		sel.Year = year
	}
	res, err := s.svc.Vehicles.Step(r.Context(), sel)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleEurotaxSearch(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveInt(r.URL.Query().Get("limit"), 20)
	matches, err := s.svc.Vehicles.SearchEurotax(r.URL.Query().Get("q"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, matches)
}

func (s *Server) handleEurotaxValuation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year := 0
	if raw := strings.TrimSpace(q.Get("year")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			jsonError(w, "invalid year", http.StatusBadRequest)
			return
		}
		year = v
	}
	v, err := s.svc.Vehicles.Valuation(q.Get("brand"), q.Get("model"), year)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, v)
}
