package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/service"
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleAdminListingQueue(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r, defaultPageSize, maxPageSize)
	res, err := s.svc.Moderation.PendingListings(r.Context(), page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleAdminApproveListing(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	l, err := s.svc.Moderation.Approve(r.Context(), currentUser(r).ID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, l)
}

func (s *Server) handleAdminRejectListing(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	l, err := s.svc.Moderation.Reject(r.Context(), currentUser(r).ID, id, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, l)
}

func (s *Server) handleAdminTakedownListing(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	l, err := s.svc.Moderation.Takedown(r.Context(), currentUser(r).ID, id, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, l)
}

func (s *Server) handleAdminDeleteListing(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	if err := s.svc.Listings.Delete(r.Context(), s.viewer(r), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r, 50, 200)
	users, err := s.svc.Moderation.ListUsers(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")), page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, newPage(users, page, perPage))
}

func (s *Server) handleAdminBanUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "user id")
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.svc.Moderation.BanUser(r.Context(), currentUser(r).ID, id, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

func (s *Server) handleAdminUnbanUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "user id")
	if !ok {
		return
	}
	user, err := s.svc.Moderation.UnbanUser(r.Context(), currentUser(r).ID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

func (s *Server) handleAdminListVerifications(w http.ResponseWriter, r *http.Request) {
	status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	if status == "" {
		status = models.VerificationPending
	}
	page, perPage := parsePagination(r, 50, 200)
	reqs, err := s.svc.Verifications.ListByStatus(r.Context(), status, page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, newPage(reqs, page, perPage))
}

func (s *Server) handleAdminGetVerification(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "verification id")
	if !ok {
		return
	}
	vr, err := s.svc.Verifications.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, vr)
}

func (s *Server) handleAdminDecideVerification(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "verification id")
	if !ok {
		return
	}
	var req struct {
		Approve *bool  `json:"approve"`
		Reason  string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Approve == nil {
		writeServiceError(w, &service.ValidationError{Field: "approve", Message: "is required"})
		return
	}
	vr, err := s.svc.Verifications.Decide(r.Context(), currentUser(r).ID, id, *req.Approve, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, vr)
}

func (s *Server) handleAdminCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req service.CategoryInput
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.CategoryAdmin.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, c)
}

func (s *Server) handleAdminUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "category id")
	if !ok {
		return
	}
	var req service.CategoryInput
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.svc.CategoryAdmin.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

func (s *Server) handleAdminDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "category id")
	if !ok {
		return
	}
	if err := s.svc.CategoryAdmin.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminModerationLog(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r, 50, 200)
	actions, err := s.svc.Moderation.ListActions(r.Context(), strings.TrimSpace(r.URL.Query().Get("target_type")), page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, newPage(actions, page, perPage))
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Moderation.QueueStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, adminHealthModeration{
		PendingListings:        stats.PendingListings,
		OldestPendingAgeSecond: ageSeconds(time.Now().UTC(), stats.OldestPendingAt),
		PendingVerifications:   stats.PendingVerifications,
	})
}
