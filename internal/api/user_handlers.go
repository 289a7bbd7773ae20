package api

import (
	"net/http"

	"github.com/odvcencio/ilanhub/internal/service"
)

func (s *Server) handleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, currentUser(r))
}

func (s *Server) handleUpdateCurrentUser(w http.ResponseWriter, r *http.Request) {
	var req service.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.svc.Accounts.UpdateProfile(r.Context(), currentUser(r).ID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

func (s *Server) handleRequestPhoneVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.Accounts.RequestPhoneVerification(r.Context(), currentUser(r).ID, req.Phone); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleVerifyPhone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.svc.Accounts.VerifyPhone(r.Context(), currentUser(r).ID, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

func (s *Server) handleGetPublicProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.svc.Accounts.PublicProfile(r.Context(), r.PathValue("username"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, profile)
}

func (s *Server) handleListMyListings(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r, defaultPageSize, maxPageSize)
	res, err := s.svc.Listings.ListMine(r.Context(), currentUser(r).ID, r.URL.Query().Get("status"), page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}
