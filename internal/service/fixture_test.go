package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odvcencio/ilanhub/internal/auth"
	"github.com/odvcencio/ilanhub/internal/cache"
	"github.com/odvcencio/ilanhub/internal/catalog"
	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/jobs"
	"github.com/odvcencio/ilanhub/internal/mail"
	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/storage"
	"github.com/odvcencio/ilanhub/internal/vehicle"
)

type testEnv struct {
	ctx   context.Context
	db    *database.SQLiteDB
	queue *jobs.Queue
	store *storage.LocalBackend
	mail  *mail.Recorder

	resolver      *catalog.Resolver
	auth          *auth.Service
	notifications *NotificationService
	webhooks      *WebhookService
	accounts      *AccountService
	verifications *VerificationService
	listings      *ListingService
	moderation    *ModerationService
	messaging     *MessagingService
	favorites     *FavoriteService
	saved         *SavedSearchService
	categories    *CategoryService
	content       *ContentService

	vasita   *models.Category
	otomobil *models.Category
	emlak    *models.Category
	konut    *models.Category
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		ctx:   ctx,
		db:    db,
		queue: jobs.NewQueue(db, jobs.QueueOptions{}),
		store: store,
		mail:  &mail.Recorder{},
		auth:  auth.NewService("test-secret", time.Hour).WithOTPCost(bcrypt.MinCost),
	}
	env.resolver = catalog.NewResolver(db, cache.NewMemory(), time.Minute)
	env.notifications = NewNotificationService(db)
	env.webhooks = NewWebhookService(db, env.queue)
	env.webhooks.AllowPrivateTargets(true)
	mailer := NewMailer(nil, env.mail)
	env.accounts = NewAccountService(db, env.auth, cache.NewMemory(), mailer, nil, AccountOptions{})
	env.verifications = NewVerificationService(db, store, env.notifications, mailer)
	env.listings = NewListingService(ListingDeps{
		DB:            db,
		Categories:    env.resolver,
		Wizard:        vehicle.NewWizard(db),
		Storage:       store,
		Notifications: env.notifications,
		Webhooks:      env.webhooks,
	})
	env.moderation = NewModerationService(db, env.listings, env.notifications, env.webhooks, env.queue, nil, DefaultListingTTL)
	env.messaging = NewMessagingService(db, env.notifications, env.webhooks, nil)
	env.favorites = NewFavoriteService(db)
	env.saved = NewSavedSearchService(db, env.listings, env.notifications)
	env.categories = NewCategoryService(db, env.resolver)
	env.content = NewContentService(db)

	env.vasita = env.category(t, nil, "Vasıta")
	env.otomobil = env.category(t, &env.vasita.ID, "Otomobil")
	env.emlak = env.category(t, nil, "Emlak")
	env.konut = env.category(t, &env.emlak.ID, "Konut")
	return env
}

func (e *testEnv) category(t *testing.T, parentID *int64, name string) *models.Category {
	t.Helper()
	c, err := e.categories.Create(e.ctx, CategoryInput{ParentID: parentID, Name: name})
	if err != nil {
		t.Fatalf("create category %s: %v", name, err)
	}
	return c
}

// user inserts an account directly, skipping registration.
func (e *testEnv) user(t *testing.T, username, role string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("parola123"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	u := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		Role:         role,
		Status:       models.UserStatusActive,
		DisplayName:  username,
	}
	if role == models.RoleCorporate {
		u.CompanyName = username + " Otomotiv"
	}
	if err := e.db.CreateUser(e.ctx, u); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func (e *testEnv) listing(t *testing.T, ownerID int64, title string, price int64) *models.Listing {
	t.Helper()
	l, err := e.listings.Create(e.ctx, ownerID, ListingInput{
		CategoryID:  e.otomobil.ID,
		Title:       title,
		Description: fmt.Sprintf("%s, hasarsız, bakımları yapıldı", title),
		Price:       price,
		City:        "İstanbul",
		Attributes:  map[string]string{"year": "2018", "fuel": "dizel"},
	})
	if err != nil {
		t.Fatalf("create listing %q: %v", title, err)
	}
	return l
}

// activeListing creates a listing and approves it as admin.
func (e *testEnv) activeListing(t *testing.T, ownerID, adminID int64, title string, price int64) *models.Listing {
	t.Helper()
	l := e.listing(t, ownerID, title, price)
	approved, err := e.moderation.Approve(e.ctx, adminID, l.ID)
	if err != nil {
		t.Fatalf("approve listing %d: %v", l.ID, err)
	}
	return approved
}
