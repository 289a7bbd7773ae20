package api

import (
	"net/http"
	"strings"

	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/service"
)

type tokenResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (s *Server) issueToken(w http.ResponseWriter, status int, user *models.User) {
	token, err := s.authSvc.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, status, tokenResponse{Token: token, User: user})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.svc.Accounts.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.issueToken(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Login    string `json:"login"`
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	login := strings.TrimSpace(req.Login)
	if login == "" {
		login = strings.TrimSpace(req.Email)
	}
	if login == "" {
		login = strings.TrimSpace(req.Username)
	}
	if login == "" || req.Password == "" {
		jsonError(w, "login and password are required", http.StatusBadRequest)
		return
	}
	user, err := s.svc.Accounts.Login(r.Context(), login, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.issueToken(w, http.StatusOK, user)
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	s.issueToken(w, http.StatusOK, currentUser(r))
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	user := currentUser(r)
	if err := s.svc.Accounts.VerifyEmail(r.Context(), user.ID, req.Code); err != nil {
		writeServiceError(w, err)
		return
	}
	updated, err := s.svc.Accounts.GetUser(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}

func (s *Server) handleResendEmailOTP(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Accounts.SendEmailOTP(r.Context(), currentUser(r).ID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.Accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.Accounts.ConfirmPasswordReset(r.Context(), req.Email, req.Code, req.Password); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
