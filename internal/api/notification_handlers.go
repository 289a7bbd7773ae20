package api

import (
	"net/http"
	"strconv"
	"strings"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly := parseBool(r.URL.Query().Get("unread"))
	page, perPage := parsePagination(r, 30, 200)
	items, err := s.svc.Notifications.List(r.Context(), currentUser(r).ID, unreadOnly, page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, newPage(items, page, perPage))
}

func (s *Server) handleUnreadNotificationsCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.svc.Notifications.UnreadCount(r.Context(), currentUser(r).ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "notification id")
	if !ok {
		return
	}
	if err := s.svc.Notifications.MarkRead(r.Context(), currentUser(r).ID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Notifications.MarkAllRead(r.Context(), currentUser(r).ID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseBool(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return v
}
