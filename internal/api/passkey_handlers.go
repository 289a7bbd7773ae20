package api

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/odvcencio/ilanhub/internal/models"
)

const webauthnSessionTTL = 10 * time.Minute

type passkeyFinishRequest struct {
	SessionID  string          `json:"session_id"`
	Credential json.RawMessage `json:"credential"`
}

func (s *Server) handleBeginWebAuthnRegistration(w http.ResponseWriter, r *http.Request) {
	if s.passkey == nil {
		jsonError(w, "passkeys are not configured", http.StatusServiceUnavailable)
		return
	}
	user := currentUser(r)
	waUser, err := s.loadWebAuthnUser(r.Context(), user)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	options, sessionData, err := s.passkey.BeginRegistration(waUser,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementPreferred),
		webauthn.WithExclusions(webauthn.Credentials(waUser.credentials).CredentialDescriptors()),
	)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	sessionID, err := s.storeWebAuthnSession(r.Context(), user.ID, "register", sessionData)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"options":    options,
	})
}

func (s *Server) handleFinishWebAuthnRegistration(w http.ResponseWriter, r *http.Request) {
	if s.passkey == nil {
		jsonError(w, "passkeys are not configured", http.StatusServiceUnavailable)
		return
	}
	var req passkeyFinishRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || len(req.Credential) == 0 {
		jsonError(w, "session_id and credential are required", http.StatusBadRequest)
		return
	}

	user := currentUser(r)
	sessionRec, sessionData, ok := s.consumeWebAuthnSession(w, r, req.SessionID, "register")
	if !ok {
		return
	}
	if sessionRec.UserID != user.ID {
		jsonError(w, "forbidden", http.StatusForbidden)
		return
	}
	waUser, err := s.loadWebAuthnUser(r.Context(), user)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	parsed, err := protocol.ParseCredentialCreationResponseBytes(req.Credential)
	if err != nil {
		jsonError(w, "invalid credential response", http.StatusBadRequest)
		return
	}
	credential, err := s.passkey.CreateCredential(waUser, *sessionData, parsed)
	if err != nil {
		jsonError(w, "credential validation failed", http.StatusBadRequest)
		return
	}
	credRaw, err := json.Marshal(credential)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	credID := base64.RawURLEncoding.EncodeToString(credential.ID)
	if err := s.db.CreateWebAuthnCredential(r.Context(), &models.WebAuthnCredential{
		UserID:       user.ID,
		CredentialID: credID,
		DataJSON:     string(credRaw),
	}); err != nil {
		jsonError(w, "credential already exists", http.StatusConflict)
		return
	}
	jsonResponse(w, http.StatusCreated, map[string]any{"credential_id": credID})
}

func (s *Server) handleBeginWebAuthnLogin(w http.ResponseWriter, r *http.Request) {
	if s.passkey == nil {
		jsonError(w, "passkeys are not configured", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Login string `json:"login"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	login := strings.ToLower(strings.TrimSpace(req.Login))
	if login == "" {
		jsonError(w, "login is required", http.StatusBadRequest)
		return
	}
	var (
		user *models.User
		err  error
	)
	if strings.Contains(login, "@") {
		user, err = s.db.GetUserByEmail(r.Context(), login)
	} else {
		user, err = s.db.GetUserByUsername(r.Context(), login)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			jsonError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user.Status == models.UserStatusBanned {
		jsonError(w, "forbidden", http.StatusForbidden)
		return
	}
	waUser, err := s.loadWebAuthnUser(r.Context(), user)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(waUser.credentials) == 0 {
		jsonError(w, "no passkeys registered for user", http.StatusBadRequest)
		return
	}

	options, sessionData, err := s.passkey.BeginLogin(waUser)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	sessionID, err := s.storeWebAuthnSession(r.Context(), user.ID, "login", sessionData)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"options":    options,
	})
}

func (s *Server) handleFinishWebAuthnLogin(w http.ResponseWriter, r *http.Request) {
	if s.passkey == nil {
		jsonError(w, "passkeys are not configured", http.StatusServiceUnavailable)
		return
	}
	var req passkeyFinishRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || len(req.Credential) == 0 {
		jsonError(w, "session_id and credential are required", http.StatusBadRequest)
		return
	}

	sessionRec, sessionData, ok := s.consumeWebAuthnSession(w, r, req.SessionID, "login")
	if !ok {
		return
	}
	user, err := s.svc.Accounts.ActiveUser(r.Context(), sessionRec.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	waUser, err := s.loadWebAuthnUser(r.Context(), user)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	parsed, err := protocol.ParseCredentialRequestResponseBytes(req.Credential)
	if err != nil {
		jsonError(w, "invalid credential response", http.StatusBadRequest)
		return
	}
	credential, err := s.passkey.ValidateLogin(waUser, *sessionData, parsed)
	if err != nil {
		jsonError(w, "passkey verification failed", http.StatusUnauthorized)
		return
	}

	// The sign counter is bookkeeping; the login does not wait for it.
	credRaw, err := json.Marshal(credential)
	if err == nil {
		now := time.Now().UTC()
		rec := &models.WebAuthnCredential{
			UserID:       user.ID,
			CredentialID: base64.RawURLEncoding.EncodeToString(credential.ID),
			DataJSON:     string(credRaw),
			LastUsedAt:   &now,
		}
		s.runAsync(r.Context(), "update_passkey", []any{"user_id", user.ID}, func(ctx context.Context) error {
			return s.db.UpdateWebAuthnCredential(ctx, rec)
		})
	}
	s.issueToken(w, http.StatusOK, user)
}

func (s *Server) storeWebAuthnSession(ctx context.Context, userID int64, flow string, data *webauthn.SessionData) (string, error) {
	if data.Expires.IsZero() {
		data.Expires = time.Now().Add(webauthnSessionTTL).UTC()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	err = s.db.CreateWebAuthnSession(ctx, &models.WebAuthnSession{
		ID:        id,
		UserID:    userID,
		Flow:      flow,
		DataJSON:  string(raw),
		ExpiresAt: data.Expires,
	})
	return id, err
}

func (s *Server) consumeWebAuthnSession(w http.ResponseWriter, r *http.Request, id, flow string) (*models.WebAuthnSession, *webauthn.SessionData, bool) {
	rec, err := s.db.ConsumeWebAuthnSession(r.Context(), strings.TrimSpace(id), flow, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			jsonError(w, "invalid or expired session", http.StatusUnauthorized)
			return nil, nil, false
		}
		jsonError(w, "internal error", http.StatusInternalServerError)
		return nil, nil, false
	}
	var data webauthn.SessionData
	if err := json.Unmarshal([]byte(rec.DataJSON), &data); err != nil {
		jsonError(w, "invalid session data", http.StatusInternalServerError)
		return nil, nil, false
	}
	return rec, &data, true
}

type webAuthnUser struct {
	user        *models.User
	credentials []webauthn.Credential
}

func (u *webAuthnUser) WebAuthnID() []byte {
	return []byte(strconv.FormatInt(u.user.ID, 10))
}

func (u *webAuthnUser) WebAuthnName() string {
	return u.user.Username
}

func (u *webAuthnUser) WebAuthnDisplayName() string {
	if u.user.DisplayName != "" {
		return u.user.DisplayName
	}
	return u.user.Username
}

func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func (s *Server) loadWebAuthnUser(ctx context.Context, user *models.User) (*webAuthnUser, error) {
	rows, err := s.db.ListWebAuthnCredentials(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	creds := make([]webauthn.Credential, 0, len(rows))
	for _, row := range rows {
		var c webauthn.Credential
		if err := json.Unmarshal([]byte(row.DataJSON), &c); err != nil {
			return nil, fmt.Errorf("decode webauthn credential %s: %w", row.CredentialID, err)
		}
		creds = append(creds, c)
	}
	return &webAuthnUser{user: user, credentials: creds}, nil
}
