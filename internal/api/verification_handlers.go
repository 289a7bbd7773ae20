package api

import (
	"net/http"

	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/service"
)

func (s *Server) handleListMyVerifications(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.svc.Verifications.ListMine(r.Context(), currentUser(r).ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if reqs == nil {
		reqs = []models.VerificationRequest{}
	}
	jsonResponse(w, http.StatusOK, reqs)
}

func (s *Server) handleSubmitIdentityVerification(w http.ResponseWriter, r *http.Request) {
	var req service.IdentityInput
	if !decodeJSON(w, r, &req) {
		return
	}
	vr, err := s.svc.Verifications.SubmitIdentity(r.Context(), currentUser(r).ID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, vr)
}

func (s *Server) handleSubmitCorporateVerification(w http.ResponseWriter, r *http.Request) {
	var req service.CorporateInput
	if !decodeJSON(w, r, &req) {
		return
	}
	vr, err := s.svc.Verifications.SubmitCorporate(r.Context(), currentUser(r).ID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, vr)
}

func (s *Server) handleUploadVerificationDocument(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r, service.MaxDocumentBytes)
	if !ok {
		return
	}
	key, err := s.svc.Verifications.UploadDocument(r.Context(), currentUser(r).ID, data)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, map[string]string{"document_key": key})
}
