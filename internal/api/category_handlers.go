package api

import (
	"net/http"

	"github.com/odvcencio/ilanhub/internal/models"
)

func (s *Server) handleCategoryTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.svc.CategoryAdmin.Tree(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, tree)
}

type categoryResponse struct {
	*models.Category
	Breadcrumb []models.Category `json:"breadcrumb"`
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "category id")
	if !ok {
		return
	}
	c, err := s.svc.CategoryAdmin.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	crumbs, err := s.svc.CategoryAdmin.Breadcrumb(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, categoryResponse{Category: c, Breadcrumb: crumbs})
}

func (s *Server) handleCategoryDescendants(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "category id")
	if !ok {
		return
	}
	ids, err := s.svc.CategoryAdmin.Descendants(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"id": id, "category_ids": ids})
}
