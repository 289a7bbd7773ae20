package api

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-webauthn/webauthn/webauthn"
)

const (
	defaultWebAuthnOrigin      = "http://localhost:3000"
	defaultWebAuthnDisplayName = "ilanhub"
)

// initWebAuthn returns nil when the relying party cannot be configured; the
// passkey endpoints then answer 503.
func initWebAuthn(rpID, origin string) *webauthn.WebAuthn {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		origin = defaultWebAuthnOrigin
	}
	rpID = strings.TrimSpace(rpID)
	if rpID == "" {
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Hostname() == "" {
			slog.Error("init webauthn", "error", "invalid webauthn origin", "origin", origin)
			return nil
		}
		rpID = parsed.Hostname()
	}

	engine, err := webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: defaultWebAuthnDisplayName,
		RPOrigins:     []string{origin},
	})
	if err != nil {
		slog.Error("init webauthn", "error", err)
		return nil
	}
	return engine
}
