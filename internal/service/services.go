package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odvcencio/ilanhub/internal/auth"
	"github.com/odvcencio/ilanhub/internal/cache"
	"github.com/odvcencio/ilanhub/internal/catalog"
	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/eurotax"
	"github.com/odvcencio/ilanhub/internal/jobs"
	"github.com/odvcencio/ilanhub/internal/mail"
	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/storage"
	"github.com/odvcencio/ilanhub/internal/vehicle"
)

// Deps is everything the marketplace services share.
type Deps struct {
	DB      database.DB
	Auth    *auth.Service
	Cache   cache.Cache
	Queue   *jobs.Queue
	Storage storage.Backend
	Mail    mail.Sender
	SMS     SMSSender
	Eurotax *eurotax.Index // optional

	Metrics     prometheus.Registerer // nil disables domain counters
	CategoryTTL time.Duration
	ListingTTL  time.Duration
	Accounts    AccountOptions

	// WebhookAllowPrivate lets webhooks target loopback and private hosts.
	WebhookAllowPrivate bool
}

// Services is the wired service graph used by the API server and the CLI.
type Services struct {
	Categories    *catalog.Resolver
	Mailer        *Mailer
	Notifications *NotificationService
	Webhooks      *WebhookService
	Accounts      *AccountService
	Verifications *VerificationService
	Vehicles      *VehicleService
	Listings      *ListingService
	Moderation    *ModerationService
	Messaging     *MessagingService
	Favorites     *FavoriteService
	SavedSearches *SavedSearchService
	CategoryAdmin *CategoryService
	Content       *ContentService
}

func New(d Deps) *Services {
	if d.Cache == nil {
		d.Cache = cache.NewMemory()
	}
	if d.Mail == nil {
		d.Mail = mail.LogSender{}
	}
	var metrics *Metrics
	if d.Metrics != nil {
		metrics = NewMetrics(d.Metrics)
	}

	s := &Services{}
	s.Categories = catalog.NewResolver(d.DB, d.Cache, d.CategoryTTL)
	if d.Metrics != nil {
		s.Categories = s.Categories.WithMetrics(d.Metrics)
	}
	wizard := vehicle.NewWizard(d.DB)

	s.Mailer = NewMailer(d.Queue, d.Mail)
	s.Notifications = NewNotificationService(d.DB)
	s.Webhooks = NewWebhookService(d.DB, d.Queue)
	s.Webhooks.AllowPrivateTargets(d.WebhookAllowPrivate)
	s.Accounts = NewAccountService(d.DB, d.Auth, d.Cache, s.Mailer, d.SMS, d.Accounts)
	s.Verifications = NewVerificationService(d.DB, d.Storage, s.Notifications, s.Mailer)
	s.Vehicles = NewVehicleService(wizard, d.Eurotax)
	s.Listings = NewListingService(ListingDeps{
		DB:            d.DB,
		Categories:    s.Categories,
		Wizard:        wizard,
		Eurotax:       d.Eurotax,
		Storage:       d.Storage,
		Notifications: s.Notifications,
		Webhooks:      s.Webhooks,
		Metrics:       metrics,
	})
	s.Moderation = NewModerationService(d.DB, s.Listings, s.Notifications, s.Webhooks, d.Queue, metrics, d.ListingTTL)
	s.Messaging = NewMessagingService(d.DB, s.Notifications, s.Webhooks, metrics)
	s.Favorites = NewFavoriteService(d.DB)
	s.SavedSearches = NewSavedSearchService(d.DB, s.Listings, s.Notifications)
	s.CategoryAdmin = NewCategoryService(d.DB, s.Categories)
	s.Content = NewContentService(d.DB)
	return s
}

// RegisterJobs binds every background job type to its handler.
func (s *Services) RegisterJobs(d *jobs.Dispatcher) {
	d.Handle(models.JobMailSend, s.Mailer.HandleJob)
	d.Handle(models.JobWebhookDeliver, s.Webhooks.HandleDeliveryJob)
	d.Handle(models.JobSavedSearchMatch, s.SavedSearches.HandleMatchJob)
}
