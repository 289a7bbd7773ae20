package api

import (
	"net/http"

	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/service"
)

func (s *Server) handleCreateSavedSearch(w http.ResponseWriter, r *http.Request) {
	var req service.SavedSearchInput
	if !decodeJSON(w, r, &req) {
		return
	}
	saved, err := s.svc.SavedSearches.Create(r.Context(), currentUser(r).ID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, saved)
}

func (s *Server) handleListSavedSearches(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.SavedSearches.List(r.Context(), currentUser(r).ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []models.SavedSearch{}
	}
	jsonResponse(w, http.StatusOK, items)
}

func (s *Server) handleDeleteSavedSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "saved search id")
	if !ok {
		return
	}
	if err := s.svc.SavedSearches.Delete(r.Context(), currentUser(r).ID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunSavedSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "saved search id")
	if !ok {
		return
	}
	page, perPage := parsePagination(r, defaultPageSize, maxPageSize)
	res, err := s.svc.SavedSearches.Run(r.Context(), currentUser(r).ID, id, page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}
