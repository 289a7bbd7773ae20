package api

import "net/http"

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	if err := s.svc.Favorites.Add(r.Context(), currentUser(r).ID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	if err := s.svc.Favorites.Remove(r.Context(), currentUser(r).ID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r, defaultPageSize, maxPageSize)
	items, err := s.svc.Favorites.List(r.Context(), currentUser(r).ID, page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, newPage(items, page, perPage))
}
