package api

import (
	"net/http"

	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/service"
)

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	s.listPages(w, r, true)
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Content.Published(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request, publishedOnly bool) {
	pages, err := s.svc.Content.List(r.Context(), publishedOnly)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if pages == nil {
		pages = []models.Page{}
	}
	jsonResponse(w, http.StatusOK, pages)
}

func (s *Server) handleAdminListPages(w http.ResponseWriter, r *http.Request) {
	s.listPages(w, r, false)
}

func (s *Server) handleAdminCreatePage(w http.ResponseWriter, r *http.Request) {
	var req service.PageInput
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.svc.Content.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, p)
}

func (s *Server) handleAdminUpdatePage(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "page id")
	if !ok {
		return
	}
	var req service.PageInput
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.svc.Content.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

func (s *Server) handleAdminDeletePage(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "page id")
	if !ok {
		return
	}
	if err := s.svc.Content.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
