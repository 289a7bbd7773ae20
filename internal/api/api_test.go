package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/odvcencio/ilanhub/internal/api"
	"github.com/odvcencio/ilanhub/internal/auth"
	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/jobs"
	"github.com/odvcencio/ilanhub/internal/mail"
	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/service"
	"github.com/odvcencio/ilanhub/internal/storage"
)

type testApp struct {
	ts         *httptest.Server
	db         *database.SQLiteDB
	auth       *auth.Service
	svc        *service.Services
	queue      *jobs.Queue
	dispatcher *jobs.Dispatcher
	mail       *mail.Recorder

	leafCategoryID int64
}

func setupTestServer(t *testing.T) *testApp {
	return setupTestServerWithOptions(t, api.ServerOptions{})
}

func setupTestServerWithOptions(t *testing.T, opts api.ServerOptions) *testApp {
	t.Helper()
	ctx := context.Background()
	tmpDir := t.TempDir()

	db, err := database.OpenSQLite(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewLocalBackend(filepath.Join(tmpDir, "objects"))
	if err != nil {
		t.Fatal(err)
	}

	app := &testApp{
		db:         db,
		auth:       auth.NewService("test-secret", 24*time.Hour).WithOTPCost(bcrypt.MinCost),
		queue:      jobs.NewQueue(db, jobs.QueueOptions{}),
		dispatcher: jobs.NewDispatcher(),
		mail:       &mail.Recorder{},
	}
	app.svc = service.New(service.Deps{
		DB:         db,
		Auth:       app.auth,
		Queue:      app.queue,
		Storage:    store,
		Mail:       app.mail,
		ListingTTL: service.DefaultListingTTL,
	})
	app.svc.RegisterJobs(app.dispatcher)

	vasita, err := app.svc.CategoryAdmin.Create(ctx, service.CategoryInput{Name: "Vasıta"})
	if err != nil {
		t.Fatal(err)
	}
	otomobil, err := app.svc.CategoryAdmin.Create(ctx, service.CategoryInput{ParentID: &vasita.ID, Name: "Otomobil"})
	if err != nil {
		t.Fatal(err)
	}
	app.leafCategoryID = otomobil.ID

	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.AuthRateLimit == 0 {
		opts.AuthRateLimit = -1
	}
	app.ts = httptest.NewServer(api.NewServer(db, app.auth, app.svc, opts))
	t.Cleanup(app.ts.Close)
	return app
}

// drainJobs runs every due job inline, standing in for the worker pool.
func (a *testApp) drainJobs(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		job, err := a.queue.Claim(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if job == nil {
			return
		}
		if err := a.dispatcher.Process(ctx, job); err != nil {
			t.Fatalf("job %s: %v", job.Type, err)
		}
		if err := a.queue.Complete(ctx, job.ID); err != nil {
			t.Fatal(err)
		}
	}
	t.Fatal("job queue did not drain")
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.ts.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func (a *testApp) expect(t *testing.T, method, path, token string, body any, wantStatus int, out any) {
	t.Helper()
	resp, data := a.do(t, method, path, token, body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, path, wantStatus, resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
}

func registerAndGetToken(t *testing.T, app *testApp, username string) (string, int64) {
	t.Helper()
	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	app.expect(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "parola123",
	}, http.StatusCreated, &resp)
	if resp.Token == "" {
		t.Fatal("expected token in register response")
	}
	return resp.Token, resp.User.ID
}

// adminToken inserts an admin directly; admins cannot self-register.
func adminToken(t *testing.T, app *testApp) (string, int64) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("parola123"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	u := &models.User{
		Username:     "moderator",
		Email:        "moderator@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		Status:       models.UserStatusActive,
		DisplayName:  "Moderatör",
	}
	if err := app.db.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	token, err := app.auth.GenerateToken(u.ID, u.Username, u.Role)
	if err != nil {
		t.Fatal(err)
	}
	return token, u.ID
}

func createListing(t *testing.T, app *testApp, token, title string, price int64) models.Listing {
	t.Helper()
	var l models.Listing
	app.expect(t, http.MethodPost, "/api/v1/listings", token, map[string]any{
		"category_id": app.leafCategoryID,
		"title":       title,
		"description": title + ", tek elden, boyasız",
		"price":       price,
		"city":        "İzmir",
		"attributes":  map[string]string{"fuel": "benzin", "year": "2019"},
	}, http.StatusCreated, &l)
	return l
}

func activeListing(t *testing.T, app *testApp, sellerToken, adminTok, title string, price int64) models.Listing {
	t.Helper()
	l := createListing(t, app, sellerToken, title, price)
	var approved models.Listing
	app.expect(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/listings/%d/approve", l.ID), adminTok, nil, http.StatusOK, &approved)
	return approved
}

func TestRegisterAndLogin(t *testing.T) {
	app := setupTestServer(t)

	token, userID := registerAndGetToken(t, app, "ayse")
	app.drainJobs(t)
	if _, ok := app.mail.Last("ayse@example.com"); !ok {
		t.Fatal("expected an email verification code to be mailed")
	}

	var login struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	app.expect(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "ayse@example.com",
		"password": "parola123",
	}, http.StatusOK, &login)
	if login.Token == "" || login.User.ID != userID {
		t.Fatalf("unexpected login response: %+v", login)
	}

	var me models.User
	app.expect(t, http.MethodGet, "/api/v1/user", token, nil, http.StatusOK, &me)
	if me.Username != "ayse" {
		t.Fatalf("expected username ayse, got %q", me.Username)
	}

	app.expect(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"login":    "ayse",
		"password": "yanlis-parola",
	}, http.StatusUnauthorized, nil)

	app.expect(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "ayse2",
		"email":    "ayse@example.com",
		"password": "parola123",
	}, http.StatusConflict, nil)
}

func TestRegisterValidationReportsField(t *testing.T) {
	app := setupTestServer(t)

	var body map[string]string
	app.expect(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "kisa@example.com",
		"password": "123",
	}, http.StatusBadRequest, &body)
	if body["field"] != "password" {
		t.Fatalf("expected password field error, got %v", body)
	}
}

func TestPublicProfileHidesPrivateFields(t *testing.T) {
	app := setupTestServer(t)
	registerAndGetToken(t, app, "galerici")

	resp, data := app.do(t, http.MethodGet, "/api/v1/users/GALERICI", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
	}
	var profile map[string]any
	if err := json.Unmarshal(data, &profile); err != nil {
		t.Fatal(err)
	}
	if profile["username"] != "galerici" {
		t.Fatalf("username = %v", profile["username"])
	}
	for _, private := range []string{"email", "phone", "status"} {
		if _, ok := profile[private]; ok {
			t.Fatalf("public profile leaks %q: %s", private, data)
		}
	}

	app.expect(t, http.MethodGet, "/api/v1/users/nobody", "", nil, http.StatusNotFound, nil)
}

func TestAuthenticationRequired(t *testing.T) {
	app := setupTestServer(t)
	token, _ := registerAndGetToken(t, app, "mehmet")

	app.expect(t, http.MethodGet, "/api/v1/user", "", nil, http.StatusUnauthorized, nil)
	app.expect(t, http.MethodPost, "/api/v1/listings", "", map[string]any{"title": "x"}, http.StatusUnauthorized, nil)
	app.expect(t, http.MethodGet, "/api/v1/user", "not-a-token", nil, http.StatusUnauthorized, nil)
	app.expect(t, http.MethodGet, "/api/v1/admin/listings", token, nil, http.StatusForbidden, nil)
}

func TestListingLifecycle(t *testing.T) {
	app := setupTestServer(t)
	sellerToken, sellerID := registerAndGetToken(t, app, "satici")
	adminTok, _ := adminToken(t, app)

	l := createListing(t, app, sellerToken, "2019 Fiat Egea 1.4 Urban", 650_000_00)
	if l.Status != models.ListingPending || l.OwnerID != sellerID {
		t.Fatalf("unexpected new listing: %+v", l)
	}

	path := fmt.Sprintf("/api/v1/listings/%d", l.ID)
	app.expect(t, http.MethodGet, path, "", nil, http.StatusNotFound, nil)
	app.expect(t, http.MethodGet, path, sellerToken, nil, http.StatusOK, nil)

	var search service.SearchResult
	app.expect(t, http.MethodGet, "/api/v1/listings", "", nil, http.StatusOK, &search)
	if search.Total != 0 {
		t.Fatalf("pending listing should not be searchable, got %d", search.Total)
	}

	var queue service.SearchResult
	app.expect(t, http.MethodGet, "/api/v1/admin/listings", adminTok, nil, http.StatusOK, &queue)
	if len(queue.Items) != 1 || queue.Items[0].ID != l.ID {
		t.Fatalf("expected listing in moderation queue, got %+v", queue.Items)
	}

	var approved models.Listing
	app.expect(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/listings/%d/approve", l.ID), adminTok, nil, http.StatusOK, &approved)
	if approved.Status != models.ListingActive || approved.ExpiresAt == nil {
		t.Fatalf("expected active listing with expiry, got %+v", approved)
	}
	app.expect(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/listings/%d/approve", l.ID), adminTok, nil, http.StatusConflict, nil)

	other := activeListing(t, app, sellerToken, adminTok, "2021 Renault Clio 1.0 Joy", 820_000_00)

	app.expect(t, http.MethodGet, "/api/v1/listings?sort=price_asc", "", nil, http.StatusOK, &search)
	var gotIDs []int64
	for _, item := range search.Items {
		gotIDs = append(gotIDs, item.ID)
	}
	if diff := cmp.Diff([]int64{l.ID, other.ID}, gotIDs); diff != "" {
		t.Fatalf("search order mismatch (-want +got):\n%s", diff)
	}

	app.expect(t, http.MethodGet, "/api/v1/listings?price_max=70000000&attr.fuel=benzin", "", nil, http.StatusOK, &search)
	if search.Total != 1 || search.Items[0].ID != l.ID {
		t.Fatalf("expected only the cheaper listing under the price cap, got %+v", search.Items)
	}
	app.expect(t, http.MethodGet, "/api/v1/listings?q=egea", "", nil, http.StatusOK, &search)
	if search.Total != 1 || search.Items[0].ID != l.ID {
		t.Fatalf("expected text search to find the Egea, got %+v", search.Items)
	}
	app.expect(t, http.MethodGet, "/api/v1/listings?price_min=abc", "", nil, http.StatusBadRequest, nil)

	var detail struct {
		models.Listing
		Breadcrumb []models.Category `json:"breadcrumb"`
		Seller     struct {
			Username string `json:"username"`
		} `json:"seller"`
	}
	app.expect(t, http.MethodGet, path, "", nil, http.StatusOK, &detail)
	if detail.Seller.Username != "satici" {
		t.Fatalf("expected seller profile, got %+v", detail.Seller)
	}
	var crumbs []string
	for _, c := range detail.Breadcrumb {
		crumbs = append(crumbs, c.Name)
	}
	if diff := cmp.Diff([]string{"Vasıta", "Otomobil"}, crumbs); diff != "" {
		t.Fatalf("breadcrumb mismatch (-want +got):\n%s", diff)
	}

	var passive models.Listing
	app.expect(t, http.MethodPatch, path+"/status", sellerToken, map[string]string{"status": "passive"}, http.StatusOK, &passive)
	if passive.Status != models.ListingPassive {
		t.Fatalf("expected PASSIVE, got %s", passive.Status)
	}
	app.expect(t, http.MethodGet, path, "", nil, http.StatusNotFound, nil)
	app.expect(t, http.MethodPatch, path+"/status", sellerToken, map[string]string{"status": "SOLD"}, http.StatusConflict, nil)

	intruderToken, _ := registerAndGetToken(t, app, "baskasi")
	app.expect(t, http.MethodDelete, path, intruderToken, nil, http.StatusForbidden, nil)
	app.expect(t, http.MethodDelete, path, sellerToken, nil, http.StatusNoContent, nil)
	app.expect(t, http.MethodGet, path, sellerToken, nil, http.StatusNotFound, nil)
}

func TestRejectRequiresReason(t *testing.T) {
	app := setupTestServer(t)
	sellerToken, _ := registerAndGetToken(t, app, "satici")
	adminTok, _ := adminToken(t, app)
	l := createListing(t, app, sellerToken, "Sahibinden temiz Passat", 1_200_000_00)

	rejectPath := fmt.Sprintf("/api/v1/admin/listings/%d/reject", l.ID)
	app.expect(t, http.MethodPost, rejectPath, adminTok, map[string]string{}, http.StatusBadRequest, nil)

	var rejected models.Listing
	app.expect(t, http.MethodPost, rejectPath, adminTok, map[string]string{"reason": "Fotoğraf eksik"}, http.StatusOK, &rejected)
	if rejected.Status != models.ListingRejected || rejected.RejectionReason != "Fotoğraf eksik" {
		t.Fatalf("unexpected rejected listing: %+v", rejected)
	}

	var notifications struct {
		Items []models.Notification `json:"items"`
	}
	app.expect(t, http.MethodGet, "/api/v1/notifications", sellerToken, nil, http.StatusOK, &notifications)
	if len(notifications.Items) != 1 || notifications.Items[0].Type != service.NotifyListingRejected {
		t.Fatalf("expected rejection notification, got %+v", notifications.Items)
	}
	var count map[string]int
	app.expect(t, http.MethodGet, "/api/v1/notifications/unread-count", sellerToken, nil, http.StatusOK, &count)
	if count["count"] != 1 {
		t.Fatalf("expected 1 unread notification, got %v", count)
	}
	app.expect(t, http.MethodPost, "/api/v1/notifications/read-all", sellerToken, nil, http.StatusNoContent, nil)
	app.expect(t, http.MethodGet, "/api/v1/notifications/unread-count", sellerToken, nil, http.StatusOK, &count)
	if count["count"] != 0 {
		t.Fatalf("expected no unread notifications, got %v", count)
	}

	var log struct {
		Items []models.ModerationAction `json:"items"`
	}
	app.expect(t, http.MethodGet, "/api/v1/admin/moderation-log?target_type=listing", adminTok, nil, http.StatusOK, &log)
	if len(log.Items) != 1 || log.Items[0].Action != "listing.reject" {
		t.Fatalf("expected reject action in moderation log, got %+v", log.Items)
	}
}

func TestMessagingFlow(t *testing.T) {
	app := setupTestServer(t)
	sellerToken, _ := registerAndGetToken(t, app, "satici")
	buyerToken, buyerID := registerAndGetToken(t, app, "alici")
	adminTok, _ := adminToken(t, app)
	l := activeListing(t, app, sellerToken, adminTok, "2018 Toyota Corolla 1.6", 900_000_00)

	app.expect(t, http.MethodPost, fmt.Sprintf("/api/v1/listings/%d/conversations", l.ID), sellerToken,
		map[string]string{"message": "kendime"}, http.StatusBadRequest, nil)

	var started struct {
		Conversation models.Conversation `json:"conversation"`
		Message      models.Message      `json:"message"`
	}
	app.expect(t, http.MethodPost, fmt.Sprintf("/api/v1/listings/%d/conversations", l.ID), buyerToken,
		map[string]string{"message": "Merhaba, araç hâlâ satılık mı?"}, http.StatusCreated, &started)
	if started.Conversation.BuyerID != buyerID || started.Message.Body == "" {
		t.Fatalf("unexpected conversation: %+v", started)
	}

	var unread map[string]int
	app.expect(t, http.MethodGet, "/api/v1/conversations/unread", sellerToken, nil, http.StatusOK, &unread)
	if unread["count"] != 1 {
		t.Fatalf("expected seller to have 1 unread message, got %v", unread)
	}

	convPath := fmt.Sprintf("/api/v1/conversations/%d", started.Conversation.ID)
	var marked map[string]int64
	app.expect(t, http.MethodPost, convPath+"/read", sellerToken, nil, http.StatusOK, &marked)
	if marked["marked"] != 1 {
		t.Fatalf("expected one message marked read, got %v", marked)
	}
	app.expect(t, http.MethodPost, convPath+"/messages", sellerToken, map[string]string{"body": "Evet, satılık."}, http.StatusCreated, nil)

	var msgs struct {
		Items []models.Message `json:"items"`
	}
	app.expect(t, http.MethodGet, convPath+"/messages", buyerToken, nil, http.StatusOK, &msgs)
	if len(msgs.Items) != 2 {
		t.Fatalf("expected two messages, got %d", len(msgs.Items))
	}

	outsiderToken, _ := registerAndGetToken(t, app, "merakli")
	app.expect(t, http.MethodGet, convPath, outsiderToken, nil, http.StatusNotFound, nil)
}

func TestFavoritesAndSavedSearches(t *testing.T) {
	app := setupTestServer(t)
	sellerToken, _ := registerAndGetToken(t, app, "satici")
	buyerToken, _ := registerAndGetToken(t, app, "alici")
	adminTok, _ := adminToken(t, app)
	l := activeListing(t, app, sellerToken, adminTok, "2020 Honda Civic Eco", 1_050_000_00)
	app.drainJobs(t)

	favPath := fmt.Sprintf("/api/v1/user/favorites/%d", l.ID)
	app.expect(t, http.MethodPut, favPath, buyerToken, nil, http.StatusNoContent, nil)
	app.expect(t, http.MethodPut, favPath, buyerToken, nil, http.StatusNoContent, nil)
	var favs struct {
		Items []models.Listing `json:"items"`
	}
	app.expect(t, http.MethodGet, "/api/v1/user/favorites", buyerToken, nil, http.StatusOK, &favs)
	if len(favs.Items) != 1 || favs.Items[0].ID != l.ID {
		t.Fatalf("expected one favorite, got %+v", favs.Items)
	}
	app.expect(t, http.MethodDelete, favPath, buyerToken, nil, http.StatusNoContent, nil)

	var saved models.SavedSearch
	app.expect(t, http.MethodPost, "/api/v1/user/saved-searches", buyerToken, map[string]any{
		"name":  "Civic",
		"query": map[string]any{"q": "civic", "category_id": app.leafCategoryID},
		"alert": true,
	}, http.StatusCreated, &saved)

	var results service.SearchResult
	app.expect(t, http.MethodGet, fmt.Sprintf("/api/v1/user/saved-searches/%d/results", saved.ID), buyerToken, nil, http.StatusOK, &results)
	if results.Total != 1 {
		t.Fatalf("expected saved search to match the listing, got %d", results.Total)
	}

	activeListing(t, app, sellerToken, adminTok, "2022 Honda Civic RS", 1_600_000_00)
	app.drainJobs(t)
	var notifications struct {
		Items []models.Notification `json:"items"`
	}
	app.expect(t, http.MethodGet, "/api/v1/notifications?unread=true", buyerToken, nil, http.StatusOK, &notifications)
	if len(notifications.Items) != 1 || notifications.Items[0].Type != service.NotifySavedSearchMatch {
		t.Fatalf("expected saved search alert, got %+v", notifications.Items)
	}

	app.expect(t, http.MethodDelete, fmt.Sprintf("/api/v1/user/saved-searches/%d", saved.ID), sellerToken, nil, http.StatusNotFound, nil)
	app.expect(t, http.MethodDelete, fmt.Sprintf("/api/v1/user/saved-searches/%d", saved.ID), buyerToken, nil, http.StatusNoContent, nil)
}

func TestListingPhotoUploadAndDownload(t *testing.T) {
	app := setupTestServer(t)
	sellerToken, _ := registerAndGetToken(t, app, "satici")
	l := createListing(t, app, sellerToken, "2017 Volkswagen Golf 1.6 TDI", 780_000_00)

	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	var photo models.ListingPhoto
	app.expect(t, http.MethodPost, fmt.Sprintf("/api/v1/listings/%d/photos", l.ID), sellerToken, png, http.StatusCreated, &photo)
	if photo.ContentType != "image/png" {
		t.Fatalf("expected image/png, got %q", photo.ContentType)
	}

	app.expect(t, http.MethodPost, fmt.Sprintf("/api/v1/listings/%d/photos", l.ID), sellerToken,
		[]byte("düz metin, fotoğraf değil"), http.StatusBadRequest, nil)

	photoPath := fmt.Sprintf("/api/v1/listings/%d/photos/%d", l.ID, photo.ID)
	resp, data := app.do(t, http.MethodGet, photoPath, sellerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get photo: expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "image/png" || !bytes.Equal(data, png) {
		t.Fatalf("unexpected photo response: %q, %d bytes", resp.Header.Get("Content-Type"), len(data))
	}
	app.expect(t, http.MethodGet, photoPath, "", nil, http.StatusNotFound, nil)
	app.expect(t, http.MethodDelete, photoPath, sellerToken, nil, http.StatusNoContent, nil)
}

func TestBannedUserIsLockedOut(t *testing.T) {
	app := setupTestServer(t)
	userToken, userID := registerAndGetToken(t, app, "dolandirici")
	adminTok, adminID := adminToken(t, app)
	l := activeListing(t, app, userToken, adminTok, "Çok ucuz iPhone 15 Pro", 5_000_00)

	app.expect(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/ban", adminID), adminTok,
		map[string]string{"reason": "kendini"}, http.StatusBadRequest, nil)
	var banned models.User
	app.expect(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/ban", userID), adminTok,
		map[string]string{"reason": "Sahte ilan"}, http.StatusOK, &banned)
	if banned.Status != models.UserStatusBanned {
		t.Fatalf("expected banned status, got %q", banned.Status)
	}

	app.expect(t, http.MethodGet, "/api/v1/user", userToken, nil, http.StatusForbidden, nil)
	app.expect(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"login":    "dolandirici",
		"password": "parola123",
	}, http.StatusForbidden, nil)
	app.expect(t, http.MethodGet, fmt.Sprintf("/api/v1/listings/%d", l.ID), "", nil, http.StatusNotFound, nil)

	app.expect(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/unban", userID), adminTok, nil, http.StatusOK, nil)
	app.expect(t, http.MethodGet, "/api/v1/user", userToken, nil, http.StatusOK, nil)
}

func TestContentPages(t *testing.T) {
	app := setupTestServer(t)
	adminTok, _ := adminToken(t, app)

	var page models.Page
	app.expect(t, http.MethodPost, "/api/v1/admin/pages", adminTok, map[string]any{
		"slug":  "Güvenli Alışveriş",
		"title": "Güvenli Alışveriş İpuçları",
		"body":  "Kapora göndermeyin.",
	}, http.StatusCreated, &page)
	if page.Slug != "guvenli-alisveris" {
		t.Fatalf("expected folded slug, got %q", page.Slug)
	}

	app.expect(t, http.MethodGet, "/api/v1/pages/guvenli-alisveris", "", nil, http.StatusNotFound, nil)
	var public []models.Page
	app.expect(t, http.MethodGet, "/api/v1/pages", "", nil, http.StatusOK, &public)
	if len(public) != 0 {
		t.Fatalf("drafts should not be listed publicly, got %d", len(public))
	}

	app.expect(t, http.MethodPatch, fmt.Sprintf("/api/v1/admin/pages/%d", page.ID), adminTok, map[string]any{
		"slug":      page.Slug,
		"title":     page.Title,
		"body":      page.Body,
		"published": true,
	}, http.StatusOK, nil)
	app.expect(t, http.MethodGet, "/api/v1/pages/guvenli-alisveris", "", nil, http.StatusOK, &page)
	if !page.Published {
		t.Fatal("expected published page")
	}
}

func TestCategoryEndpoints(t *testing.T) {
	app := setupTestServer(t)
	adminTok, _ := adminToken(t, app)

	var tree []struct {
		models.Category
		Children []struct {
			models.Category
		} `json:"children"`
	}
	app.expect(t, http.MethodGet, "/api/v1/categories", "", nil, http.StatusOK, &tree)
	if len(tree) != 1 || tree[0].Name != "Vasıta" || len(tree[0].Children) != 1 {
		t.Fatalf("unexpected category tree: %+v", tree)
	}

	var created models.Category
	app.expect(t, http.MethodPost, "/api/v1/admin/categories", adminTok, map[string]any{
		"parent_id": tree[0].ID,
		"name":      "Motosiklet",
	}, http.StatusCreated, &created)

	var desc struct {
		CategoryIDs []int64 `json:"category_ids"`
	}
	app.expect(t, http.MethodGet, fmt.Sprintf("/api/v1/categories/%d/descendants", tree[0].ID), "", nil, http.StatusOK, &desc)
	if len(desc.CategoryIDs) != 3 {
		t.Fatalf("expected root plus two children, got %v", desc.CategoryIDs)
	}

	app.expect(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/categories/%d", tree[0].ID), adminTok, nil, http.StatusConflict, nil)
	app.expect(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/categories/%d", created.ID), adminTok, nil, http.StatusNoContent, nil)
	app.expect(t, http.MethodGet, "/api/v1/categories/abc", "", nil, http.StatusBadRequest, nil)
}

func TestRequestBodyLimit(t *testing.T) {
	app := setupTestServerWithOptions(t, api.ServerOptions{MaxBodyBytes: 128})

	body := fmt.Sprintf(`{"email":"buyuk@example.com","password":"parola123","display_name":%q}`, strings.Repeat("a", 512))
	resp, data := app.do(t, http.MethodPost, "/api/v1/auth/register", "", body)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", resp.StatusCode, data)
	}
}

func TestAuthRateLimit(t *testing.T) {
	app := setupTestServerWithOptions(t, api.ServerOptions{AuthRateLimit: 2})

	creds := map[string]string{"login": "yok", "password": "parola123"}
	for i := 0; i < 2; i++ {
		app.expect(t, http.MethodPost, "/api/v1/auth/login", "", creds, http.StatusUnauthorized, nil)
	}
	resp, _ := app.do(t, http.MethodPost, "/api/v1/auth/login", "", creds)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestCORSPreflight(t *testing.T) {
	app := setupTestServerWithOptions(t, api.ServerOptions{
		CORSAllowedOrigins: []string{"https://www.ilanhub.com.tr"},
	})

	preflight := func(origin string) *http.Response {
		req, _ := http.NewRequest(http.MethodOptions, app.ts.URL+"/api/v1/listings", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp
	}

	resp := preflight("https://www.ilanhub.com.tr")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://www.ilanhub.com.tr" {
		t.Fatalf("expected origin to be echoed, got %q", got)
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPatch) {
		t.Fatalf("expected PATCH in allowed methods, got %q", resp.Header.Get("Access-Control-Allow-Methods"))
	}

	resp = preflight("https://evil.example")
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin for unknown origin, got %q", got)
	}
}

func TestHealthz(t *testing.T) {
	app := setupTestServer(t)
	var body map[string]string
	app.expect(t, http.MethodGet, "/healthz", "", nil, http.StatusOK, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected ok, got %v", body)
	}
}
