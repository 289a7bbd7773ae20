package api

import (
	"context"
	"net/http"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odvcencio/ilanhub/internal/auth"
	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/service"
)

type ServerOptions struct {
	TrustedProxies     []string
	AdminAllowedCIDRs  []string // nil allows loopback only
	CORSAllowedOrigins []string // empty allows any origin
	MaxBodyBytes       int64
	WebAuthnRPID       string
	WebAuthnOrigin     string
	EnablePprof        bool
	// Workers is reported by /admin/health.
	Workers int
	// AuthRateLimit caps auth attempts per client IP per minute. Zero uses
	// the default; negative disables the limiter.
	AuthRateLimit int
	// Registry receives the HTTP metrics; nil uses the process default.
	Registry *prometheus.Registry
}

type Server struct {
	db       database.DB
	authSvc  *auth.Service
	svc      *service.Services
	mux      *http.ServeMux
	handler  http.Handler
	passkey  *webauthn.WebAuthn
	realtime *userEventBroker

	metrics          *httpMetrics
	gatherer         prometheus.Gatherer
	clientIPs        clientIPResolver
	adminRouteAccess adminRouteAccess
	authLimiter      *rateLimiter
	maxBodyBytes     int64
	workers          int
}

func NewServer(db database.DB, authSvc *auth.Service, svc *service.Services, opts ServerOptions) *Server {
	s := &Server{
		db:           db,
		authSvc:      authSvc,
		svc:          svc,
		mux:          http.NewServeMux(),
		passkey:      initWebAuthn(opts.WebAuthnRPID, opts.WebAuthnOrigin),
		realtime:     newUserEventBroker(),
		clientIPs:    newClientIPResolver(opts.TrustedProxies),
		maxBodyBytes: opts.MaxBodyBytes,
		workers:      opts.Workers,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = maxAPIBodyBytes
	}
	adminCIDRs := opts.AdminAllowedCIDRs
	if adminCIDRs == nil {
		adminCIDRs = defaultAdminRouteCIDRs
	}
	s.adminRouteAccess = newAdminRouteAccess(adminCIDRs, s.clientIPs.clientIPFromRequest)
	if opts.AuthRateLimit >= 0 {
		s.authLimiter = newRateLimiter(opts.AuthRateLimit, authRateWindow)
	}
	if opts.Registry != nil {
		s.metrics = newHTTPMetrics(opts.Registry)
		s.gatherer = opts.Registry
	} else {
		s.metrics = getDefaultHTTPMetrics()
		s.gatherer = prometheus.DefaultGatherer
	}
	svc.Notifications.SetPublisher(s.realtime)

	s.routes()
	if opts.EnablePprof {
		s.registerPprofRoutes()
	}
	s.handler = chainMiddleware(s.mux,
		compressionMiddleware,
		func(next http.Handler) http.Handler { return requestMetricsMiddleware(s.metrics, next) },
		requestTracingMiddleware,
		requestLoggingMiddleware,
		corsMiddleware(opts.CORSAllowedOrigins),
		s.requestBodyLimitMiddleware,
		auth.Middleware(authSvc),
	)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type middlewareFunc func(http.Handler) http.Handler

// chainMiddleware wraps h so that the first middleware runs outermost.
func chainMiddleware(h http.Handler, mws ...middlewareFunc) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /admin/health", s.adminRouteAccess.wrap(http.HandlerFunc(s.handleAdminHealth)))
	s.mux.Handle("GET /metrics", metricsHandler(s.gatherer))

	// Auth
	s.mux.HandleFunc("POST /api/v1/auth/register", s.rateLimited(s.handleRegister))
	s.mux.HandleFunc("POST /api/v1/auth/login", s.rateLimited(s.handleLogin))
	s.mux.HandleFunc("POST /api/v1/auth/refresh", s.requireAuth(s.handleRefreshToken))
	s.mux.HandleFunc("POST /api/v1/auth/verify-email", s.requireAuth(s.handleVerifyEmail))
	s.mux.HandleFunc("POST /api/v1/auth/resend-email-otp", s.requireAuth(s.handleResendEmailOTP))
	s.mux.HandleFunc("POST /api/v1/auth/password-reset", s.rateLimited(s.handleRequestPasswordReset))
	s.mux.HandleFunc("POST /api/v1/auth/password-reset/confirm", s.rateLimited(s.handleConfirmPasswordReset))
	s.mux.HandleFunc("POST /api/v1/auth/passkeys/register/begin", s.requireAuth(s.handleBeginWebAuthnRegistration))
	s.mux.HandleFunc("POST /api/v1/auth/passkeys/register/finish", s.requireAuth(s.handleFinishWebAuthnRegistration))
	s.mux.HandleFunc("POST /api/v1/auth/passkeys/login/begin", s.rateLimited(s.handleBeginWebAuthnLogin))
	s.mux.HandleFunc("POST /api/v1/auth/passkeys/login/finish", s.rateLimited(s.handleFinishWebAuthnLogin))

	// User
	s.mux.HandleFunc("GET /api/v1/user", s.requireAuth(s.handleGetCurrentUser))
	s.mux.HandleFunc("PATCH /api/v1/user", s.requireAuth(s.handleUpdateCurrentUser))
	s.mux.HandleFunc("POST /api/v1/user/phone", s.requireAuth(s.handleRequestPhoneVerification))
	s.mux.HandleFunc("POST /api/v1/user/phone/verify", s.requireAuth(s.handleVerifyPhone))
	s.mux.HandleFunc("GET /api/v1/user/listings", s.requireAuth(s.handleListMyListings))
	s.mux.HandleFunc("GET /api/v1/user/events", s.requireAuth(s.handleUserEvents))
	s.mux.HandleFunc("GET /api/v1/users/{username}", s.handleGetPublicProfile)

	// Categories
	s.mux.HandleFunc("GET /api/v1/categories", s.handleCategoryTree)
	s.mux.HandleFunc("GET /api/v1/categories/{id}", s.handleGetCategory)
	s.mux.HandleFunc("GET /api/v1/categories/{id}/descendants", s.handleCategoryDescendants)

	// Vehicles
	s.mux.HandleFunc("GET /api/v1/vehicles/wizard", s.handleVehicleWizard)
	s.mux.HandleFunc("GET /api/v1/vehicles/eurotax/search", s.handleEurotaxSearch)
	s.mux.HandleFunc("GET /api/v1/vehicles/eurotax/valuation", s.handleEurotaxValuation)

	// Listings
	s.mux.HandleFunc("GET /api/v1/listings", s.handleSearchListings)
	s.mux.HandleFunc("POST /api/v1/listings", s.requireAuth(s.handleCreateListing))
	s.mux.HandleFunc("GET /api/v1/listings/{id}", s.handleGetListing)
	s.mux.HandleFunc("PATCH /api/v1/listings/{id}", s.requireAuth(s.handleUpdateListing))
	s.mux.HandleFunc("DELETE /api/v1/listings/{id}", s.requireAuth(s.handleDeleteListing))
	s.mux.HandleFunc("POST /api/v1/listings/{id}/status", s.requireAuth(s.handleChangeListingStatus))
	s.mux.HandleFunc("GET /api/v1/listings/{id}/photos", s.handleListListingPhotos)
	s.mux.HandleFunc("POST /api/v1/listings/{id}/photos", s.requireAuth(s.handleUploadListingPhoto))
	s.mux.HandleFunc("GET /api/v1/listings/{id}/photos/{photo}", s.handleGetListingPhoto)
	s.mux.HandleFunc("DELETE /api/v1/listings/{id}/photos/{photo}", s.requireAuth(s.handleDeleteListingPhoto))
	s.mux.HandleFunc("POST /api/v1/listings/{id}/conversations", s.requireAuth(s.handleStartConversation))

	// Favorites
	s.mux.HandleFunc("GET /api/v1/user/favorites", s.requireAuth(s.handleListFavorites))
	s.mux.HandleFunc("PUT /api/v1/user/favorites/{id}", s.requireAuth(s.handleAddFavorite))
	s.mux.HandleFunc("DELETE /api/v1/user/favorites/{id}", s.requireAuth(s.handleRemoveFavorite))

	// Saved searches
	s.mux.HandleFunc("GET /api/v1/user/saved-searches", s.requireAuth(s.handleListSavedSearches))
	s.mux.HandleFunc("POST /api/v1/user/saved-searches", s.requireAuth(s.handleCreateSavedSearch))
	s.mux.HandleFunc("DELETE /api/v1/user/saved-searches/{id}", s.requireAuth(s.handleDeleteSavedSearch))
	s.mux.HandleFunc("GET /api/v1/user/saved-searches/{id}/results", s.requireAuth(s.handleRunSavedSearch))

	// Conversations
	s.mux.HandleFunc("GET /api/v1/conversations", s.requireAuth(s.handleListConversations))
	s.mux.HandleFunc("GET /api/v1/conversations/unread", s.requireAuth(s.handleUnreadMessages))
	s.mux.HandleFunc("GET /api/v1/conversations/{id}", s.requireAuth(s.handleGetConversation))
	s.mux.HandleFunc("GET /api/v1/conversations/{id}/messages", s.requireAuth(s.handleListMessages))
	s.mux.HandleFunc("POST /api/v1/conversations/{id}/messages", s.requireAuth(s.handleSendMessage))
	s.mux.HandleFunc("POST /api/v1/conversations/{id}/read", s.requireAuth(s.handleMarkConversationRead))

	// Notifications
	s.mux.HandleFunc("GET /api/v1/notifications", s.requireAuth(s.handleListNotifications))
	s.mux.HandleFunc("GET /api/v1/notifications/unread-count", s.requireAuth(s.handleUnreadNotificationsCount))
	s.mux.HandleFunc("PATCH /api/v1/notifications/{id}/read", s.requireAuth(s.handleMarkNotificationRead))
	s.mux.HandleFunc("POST /api/v1/notifications/read-all", s.requireAuth(s.handleMarkAllNotificationsRead))

	// Verification
	s.mux.HandleFunc("GET /api/v1/user/verifications", s.requireAuth(s.handleListMyVerifications))
	s.mux.HandleFunc("POST /api/v1/user/verifications/identity", s.requireAuth(s.handleSubmitIdentityVerification))
	s.mux.HandleFunc("POST /api/v1/user/verifications/corporate", s.requireAuth(s.handleSubmitCorporateVerification))
	s.mux.HandleFunc("POST /api/v1/user/verifications/documents", s.requireAuth(s.handleUploadVerificationDocument))

	// Dealer webhooks
	s.mux.HandleFunc("GET /api/v1/user/webhooks", s.requireAuth(s.handleListWebhooks))
	s.mux.HandleFunc("POST /api/v1/user/webhooks", s.requireAuth(s.handleCreateWebhook))
	s.mux.HandleFunc("GET /api/v1/user/webhooks/{id}", s.requireAuth(s.handleGetWebhook))
	s.mux.HandleFunc("DELETE /api/v1/user/webhooks/{id}", s.requireAuth(s.handleDeleteWebhook))
	s.mux.HandleFunc("GET /api/v1/user/webhooks/{id}/deliveries", s.requireAuth(s.handleListWebhookDeliveries))
	s.mux.HandleFunc("POST /api/v1/user/webhooks/{id}/deliveries/{delivery_id}/redeliver", s.requireAuth(s.handleRedeliverWebhookDelivery))
	s.mux.HandleFunc("POST /api/v1/user/webhooks/{id}/ping", s.requireAuth(s.handlePingWebhook))

	// Content pages
	s.mux.HandleFunc("GET /api/v1/pages", s.handleListPages)
	s.mux.HandleFunc("GET /api/v1/pages/{slug}", s.handleGetPage)

	// Admin
	s.mux.HandleFunc("GET /api/v1/admin/listings", s.requireAdmin(s.handleAdminListingQueue))
	s.mux.HandleFunc("POST /api/v1/admin/listings/{id}/approve", s.requireAdmin(s.handleAdminApproveListing))
	s.mux.HandleFunc("POST /api/v1/admin/listings/{id}/reject", s.requireAdmin(s.handleAdminRejectListing))
	s.mux.HandleFunc("POST /api/v1/admin/listings/{id}/takedown", s.requireAdmin(s.handleAdminTakedownListing))
	s.mux.HandleFunc("DELETE /api/v1/admin/listings/{id}", s.requireAdmin(s.handleAdminDeleteListing))
	s.mux.HandleFunc("GET /api/v1/admin/users", s.requireAdmin(s.handleAdminListUsers))
	s.mux.HandleFunc("POST /api/v1/admin/users/{id}/ban", s.requireAdmin(s.handleAdminBanUser))
	s.mux.HandleFunc("POST /api/v1/admin/users/{id}/unban", s.requireAdmin(s.handleAdminUnbanUser))
	s.mux.HandleFunc("GET /api/v1/admin/verifications", s.requireAdmin(s.handleAdminListVerifications))
	s.mux.HandleFunc("GET /api/v1/admin/verifications/{id}", s.requireAdmin(s.handleAdminGetVerification))
	s.mux.HandleFunc("POST /api/v1/admin/verifications/{id}/decision", s.requireAdmin(s.handleAdminDecideVerification))
	s.mux.HandleFunc("POST /api/v1/admin/categories", s.requireAdmin(s.handleAdminCreateCategory))
	s.mux.HandleFunc("PATCH /api/v1/admin/categories/{id}", s.requireAdmin(s.handleAdminUpdateCategory))
	s.mux.HandleFunc("DELETE /api/v1/admin/categories/{id}", s.requireAdmin(s.handleAdminDeleteCategory))
	s.mux.HandleFunc("GET /api/v1/admin/pages", s.requireAdmin(s.handleAdminListPages))
	s.mux.HandleFunc("POST /api/v1/admin/pages", s.requireAdmin(s.handleAdminCreatePage))
	s.mux.HandleFunc("PATCH /api/v1/admin/pages/{id}", s.requireAdmin(s.handleAdminUpdatePage))
	s.mux.HandleFunc("DELETE /api/v1/admin/pages/{id}", s.requireAdmin(s.handleAdminDeletePage))
	s.mux.HandleFunc("GET /api/v1/admin/moderation-log", s.requireAdmin(s.handleAdminModerationLog))
	s.mux.HandleFunc("GET /api/v1/admin/stats", s.requireAdmin(s.handleAdminStats))
}

type userKey struct{}

// requireAuth loads the token's user and rejects banned accounts even while
// their token is still valid.
func (s *Server) requireAuth(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.GetClaims(r.Context())
		if claims == nil {
			jsonError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		user, err := s.svc.Accounts.ActiveUser(r.Context(), claims.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		fn(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

// requireAdmin checks the stored role, not only the token claim, so a
// demoted admin loses access before the token expires.
func (s *Server) requireAdmin(fn http.HandlerFunc) http.HandlerFunc {
	inner := s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r).Role != models.RoleAdmin {
			jsonError(w, "forbidden", http.StatusForbidden)
			return
		}
		fn(w, r)
	})
	return auth.RequireRole(models.RoleAdmin)(inner).ServeHTTP
}

// currentUser is only valid behind requireAuth.
func currentUser(r *http.Request) *models.User {
	u, _ := r.Context().Value(userKey{}).(*models.User)
	return u
}

// viewer describes the caller for visibility checks without requiring a
// login.
func (s *Server) viewer(r *http.Request) service.Viewer {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		return service.Viewer{}
	}
	return service.Viewer{UserID: claims.UserID, Admin: claims.Role == models.RoleAdmin}
}
