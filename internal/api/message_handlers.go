package api

import (
	"net/http"

	"github.com/odvcencio/ilanhub/internal/models"
)

type messageRequest struct {
	Message string `json:"message"`
	Body    string `json:"body"`
}

func (m messageRequest) text() string {
	if m.Message != "" {
		return m.Message
	}
	return m.Body
}

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	listingID, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	conv, msg, err := s.svc.Messaging.StartConversation(r.Context(), currentUser(r).ID, listingID, req.text())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, struct {
		Conversation *models.Conversation `json:"conversation"`
		Message      *models.Message      `json:"message"`
	}{conv, msg})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r, defaultPageSize, maxPageSize)
	convs, err := s.svc.Messaging.ListConversations(r.Context(), currentUser(r).ID, page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, newPage(convs, page, perPage))
}

func (s *Server) handleUnreadMessages(w http.ResponseWriter, r *http.Request) {
	count, err := s.svc.Messaging.UnreadCount(r.Context(), currentUser(r).ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "conversation id")
	if !ok {
		return
	}
	conv, err := s.svc.Messaging.GetConversation(r.Context(), currentUser(r).ID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, conv)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "conversation id")
	if !ok {
		return
	}
	page, perPage := parsePagination(r, 50, 200)
	msgs, err := s.svc.Messaging.ListMessages(r.Context(), currentUser(r).ID, id, page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, newPage(msgs, page, perPage))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "conversation id")
	if !ok {
		return
	}
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := s.svc.Messaging.Send(r.Context(), currentUser(r).ID, id, req.text())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, msg)
}

func (s *Server) handleMarkConversationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "conversation id")
	if !ok {
		return
	}
	n, err := s.svc.Messaging.MarkRead(r.Context(), currentUser(r).ID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int64{"marked": n})
}
