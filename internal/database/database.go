package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/odvcencio/ilanhub/internal/models"
)

// DB defines the data access interface. Implemented by SQLite and PostgreSQL backends.
type DB interface {
	Close() error
	Migrate(ctx context.Context) error
	DBStats() sql.DBStats

	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, user *models.User) error
	UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error
	SetUserEmailVerified(ctx context.Context, userID int64) error
	SetUserPhoneVerified(ctx context.Context, userID int64, phone string) error
	SetUserIdentityVerified(ctx context.Context, userID int64) error
	PromoteUserToCorporate(ctx context.Context, userID int64, companyName string) error
	SetUserStatus(ctx context.Context, userID int64, status string) error
	ListUsersPage(ctx context.Context, query string, limit, offset int) ([]models.User, error)

	// One-time codes
	CreateOTPCode(ctx context.Context, code *models.OTPCode) error
	GetActiveOTPCode(ctx context.Context, userID int64, purpose string, now time.Time) (*models.OTPCode, error)
	ReserveOTPAttempt(ctx context.Context, id int64) error
	ConsumeOTPCode(ctx context.Context, id int64, now time.Time) error

	// Passkeys
	CreateWebAuthnCredential(ctx context.Context, credential *models.WebAuthnCredential) error
	ListWebAuthnCredentials(ctx context.Context, userID int64) ([]models.WebAuthnCredential, error)
	UpdateWebAuthnCredential(ctx context.Context, credential *models.WebAuthnCredential) error
	CreateWebAuthnSession(ctx context.Context, session *models.WebAuthnSession) error
	ConsumeWebAuthnSession(ctx context.Context, id, flow string, now time.Time) (*models.WebAuthnSession, error)

	// Categories
	CreateCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, c *models.Category) error
	DeleteCategory(ctx context.Context, id int64) error
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)

	// Vehicle catalog
	UpsertVehicleBrand(ctx context.Context, b *models.VehicleBrand) error
	UpsertVehicleModel(ctx context.Context, m *models.VehicleModel) error
	UpsertVehicleVersion(ctx context.Context, v *models.VehicleVersion) error
	GetVehicleBrand(ctx context.Context, id int64) (*models.VehicleBrand, error)
	GetVehicleModel(ctx context.Context, id int64) (*models.VehicleModel, error)
	GetVehicleVersion(ctx context.Context, id int64) (*models.VehicleVersion, error)
	ListVehicleBrands(ctx context.Context) ([]models.VehicleBrand, error)
	ListVehicleModels(ctx context.Context, brandID int64) ([]models.VehicleModel, error)
	ListVehicleVersions(ctx context.Context, modelID int64) ([]models.VehicleVersion, error)

	// Listings
	CreateListing(ctx context.Context, l *models.Listing) error
	UpdateListing(ctx context.Context, l *models.Listing, fromStatus string) error
	UpdateListingStatus(ctx context.Context, id int64, from string, change ListingStatusChange) error
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	DeleteListing(ctx context.Context, id int64) error
	SearchListings(ctx context.Context, f ListingFilter) ([]models.Listing, error)
	CountListings(ctx context.Context, f ListingFilter) (int, error)
	IncrementListingViews(ctx context.Context, id int64) error
	ListDueExpiredListings(ctx context.Context, now time.Time, limit int) ([]models.Listing, error)
	PassivateUserListings(ctx context.Context, ownerID int64, now time.Time) (int64, error)

	// Listing photos
	CreateListingPhoto(ctx context.Context, p *models.ListingPhoto) error
	ListListingPhotos(ctx context.Context, listingID int64) ([]models.ListingPhoto, error)
	GetListingPhoto(ctx context.Context, listingID, photoID int64) (*models.ListingPhoto, error)
	DeleteListingPhoto(ctx context.Context, listingID, photoID int64) error
	CountListingPhotos(ctx context.Context, listingID int64) (int, error)

	// Favorites
	AddFavorite(ctx context.Context, userID, listingID int64) (bool, error)
	RemoveFavorite(ctx context.Context, userID, listingID int64) (bool, error)
	IsFavorite(ctx context.Context, userID, listingID int64) (bool, error)
	ListFavoriteListings(ctx context.Context, userID int64, limit, offset int) ([]models.Listing, error)

	// Saved searches
	CreateSavedSearch(ctx context.Context, s *models.SavedSearch) error
	GetSavedSearch(ctx context.Context, userID, id int64) (*models.SavedSearch, error)
	ListSavedSearches(ctx context.Context, userID int64) ([]models.SavedSearch, error)
	CountSavedSearches(ctx context.Context, userID int64) (int, error)
	DeleteSavedSearch(ctx context.Context, userID, id int64) error
	ListAlertingSavedSearches(ctx context.Context, afterID int64, limit int) ([]models.SavedSearch, error)

	// Conversations
	GetOrCreateConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	ListUserConversations(ctx context.Context, userID int64, limit, offset int) ([]models.Conversation, error)
	CreateMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID int64, now time.Time) (int64, error)
	CountUnreadMessages(ctx context.Context, userID int64) (int, error)

	// Notifications
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotificationsPage(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID int64) (int, error)
	MarkNotificationRead(ctx context.Context, id, userID int64, now time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID int64, now time.Time) error

	// Verification
	CreateVerificationRequest(ctx context.Context, r *models.VerificationRequest) error
	GetVerificationRequest(ctx context.Context, id int64) (*models.VerificationRequest, error)
	GetPendingVerificationRequest(ctx context.Context, userID int64, kind string) (*models.VerificationRequest, error)
	ListUserVerificationRequests(ctx context.Context, userID int64) ([]models.VerificationRequest, error)
	ListVerificationRequestsByStatus(ctx context.Context, status string, limit, offset int) ([]models.VerificationRequest, error)
	DecideVerificationRequest(ctx context.Context, r *models.VerificationRequest) error

	// Moderation
	CreateModerationAction(ctx context.Context, a *models.ModerationAction) error
	ApplyListingDecision(ctx context.Context, id int64, from string, change ListingStatusChange, action *models.ModerationAction) error
	ApplyVerificationDecision(ctx context.Context, r *models.VerificationRequest, action *models.ModerationAction) error
	BanUser(ctx context.Context, userID int64, now time.Time, action *models.ModerationAction) (int64, error)
	UnbanUser(ctx context.Context, userID int64, action *models.ModerationAction) error
	ListModerationActionsPage(ctx context.Context, targetType string, limit, offset int) ([]models.ModerationAction, error)

	// Content pages
	CreatePage(ctx context.Context, p *models.Page) error
	UpdatePage(ctx context.Context, p *models.Page) error
	DeletePage(ctx context.Context, id int64) error
	GetPage(ctx context.Context, id int64) (*models.Page, error)
	GetPageBySlug(ctx context.Context, slug string) (*models.Page, error)
	ListPages(ctx context.Context, publishedOnly bool) ([]models.Page, error)

	// Webhooks
	CreateWebhook(ctx context.Context, hook *models.Webhook) error
	GetWebhook(ctx context.Context, userID, id int64) (*models.Webhook, error)
	ListWebhooks(ctx context.Context, userID int64) ([]models.Webhook, error)
	DeleteWebhook(ctx context.Context, userID, id int64) error
	CreateWebhookDelivery(ctx context.Context, d *models.WebhookDelivery) error
	GetWebhookDelivery(ctx context.Context, webhookID, deliveryID int64) (*models.WebhookDelivery, error)
	ListWebhookDeliveriesPage(ctx context.Context, webhookID int64, limit, offset int) ([]models.WebhookDelivery, error)

	// Jobs
	EnqueueJob(ctx context.Context, job *models.Job) (bool, error)
	ClaimJob(ctx context.Context, now time.Time) (*models.Job, error)
	CompleteJob(ctx context.Context, id int64, status models.JobStatus, errMsg string, now time.Time) error
	RequeueJob(ctx context.Context, id int64, errMsg string, nextAttemptAt time.Time) error
	GetJob(ctx context.Context, id int64) (*models.Job, error)

	// Health
	JobQueueStats(ctx context.Context) (JobQueueStats, error)
	ModerationQueueStats(ctx context.Context) (ModerationQueueStats, error)
}

// ListingFilter is a resolved search: category ids are already expanded and
// the text query is already folded.
type ListingFilter struct {
	CategoryIDs []int64
	TextTerms   []string
	PriceMin    *int64
	PriceMax    *int64
	City        string
	SellerRole  string
	BrandID     *int64
	ModelID     *int64
	Attributes  map[string]string
	Statuses    []string
	OwnerID     *int64
	Sort        string
	Limit       int
	Offset      int
}

// ListingStatusChange describes a compare-and-set status update. Nil
// timestamps leave the stored value untouched.
type ListingStatusChange struct {
	Status          string
	RejectionReason string
	PublishedAt     *time.Time
	ExpiresAt       *time.Time
	At              time.Time
}

var (
	_ DB = (*SQLiteDB)(nil)
	_ DB = (*PostgresDB)(nil)
)
