package api

import (
	"net/http"
	"time"

	"github.com/odvcencio/ilanhub/internal/models"
)

type createWebhookRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
	Active *bool    `json:"active"`
}

type webhookResponse struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events,omitempty"`
	Active    bool      `json:"active"`
	HasSecret bool      `json:"has_secret"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	hook := &models.Webhook{
		URL:    req.URL,
		Secret: req.Secret,
		Events: req.Events,
		Active: active,
	}
	if err := s.svc.Webhooks.CreateWebhook(r.Context(), currentUser(r), hook); err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, webhookToResponse(hook))
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := s.svc.Webhooks.ListWebhooks(r.Context(), currentUser(r).ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]webhookResponse, 0, len(hooks))
	for i := range hooks {
		resp = append(resp, webhookToResponse(&hooks[i]))
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "webhook id")
	if !ok {
		return
	}
	hook, err := s.svc.Webhooks.GetWebhook(r.Context(), currentUser(r).ID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, webhookToResponse(hook))
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "webhook id")
	if !ok {
		return
	}
	if err := s.svc.Webhooks.DeleteWebhook(r.Context(), currentUser(r).ID, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListWebhookDeliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "webhook id")
	if !ok {
		return
	}
	page, perPage := parsePagination(r, 50, 200)
	deliveries, err := s.svc.Webhooks.ListDeliveries(r.Context(), currentUser(r).ID, id, page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, newPage(deliveries, page, perPage))
}

func (s *Server) handleRedeliverWebhookDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "webhook id")
	if !ok {
		return
	}
	deliveryID, ok := parsePathID(w, r, "delivery_id", "delivery id")
	if !ok {
		return
	}
	delivery, err := s.svc.Webhooks.Redeliver(r.Context(), currentUser(r).ID, id, deliveryID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, delivery)
}

func (s *Server) handlePingWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "webhook id")
	if !ok {
		return
	}
	delivery, err := s.svc.Webhooks.Ping(r.Context(), currentUser(r).ID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, delivery)
}

func webhookToResponse(hook *models.Webhook) webhookResponse {
	return webhookResponse{
		ID:        hook.ID,
		URL:       hook.URL,
		Events:    hook.Events,
		Active:    hook.Active,
		HasSecret: hook.Secret != "",
		CreatedAt: hook.CreatedAt,
		UpdatedAt: hook.UpdatedAt,
	}
}
