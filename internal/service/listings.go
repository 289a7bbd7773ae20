package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/ilanhub/internal/catalog"
	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/eurotax"
	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/storage"
	"github.com/odvcencio/ilanhub/internal/textnorm"
	"github.com/odvcencio/ilanhub/internal/vehicle"
)

const (
	maxTitleLength       = 150
	minTitleLength       = 5
	maxDescriptionLength = 10000
	maxAttributes        = 30
	expireBatchSize      = 100
)

var attributeKeyPattern = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

var listingCurrencies = map[string]bool{"TRY": true, "USD": true, "EUR": true}

var listingStatuses = map[string]bool{
	models.ListingPending:  true,
	models.ListingActive:   true,
	models.ListingRejected: true,
	models.ListingPassive:  true,
	models.ListingSold:     true,
	models.ListingExpired:  true,
}

// listingTransitions is the listing status machine. EXPIRED and SOLD are
// terminal.
var listingTransitions = map[string][]string{
	models.ListingPending:  {models.ListingActive, models.ListingRejected},
	models.ListingRejected: {models.ListingPending},
	models.ListingActive:   {models.ListingPassive, models.ListingSold, models.ListingExpired, models.ListingPending},
	models.ListingPassive:  {models.ListingPending},
}

// CanTransition reports whether a listing may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range listingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Viewer identifies who is asking. The zero value is an anonymous visitor.
type Viewer struct {
	UserID int64
	Admin  bool
}

func (v Viewer) canSee(l *models.Listing) bool {
	return l.Status == models.ListingActive || v.Admin || (v.UserID > 0 && v.UserID == l.OwnerID)
}

type ListingService struct {
	db            database.DB
	categories    *catalog.Resolver
	wizard        *vehicle.Wizard
	eurotax       *eurotax.Index
	store         storage.Backend
	notifications *NotificationService
	webhooks      *WebhookService
	metrics       *Metrics
	now           func() time.Time
}

type ListingDeps struct {
	DB            database.DB
	Categories    *catalog.Resolver
	Wizard        *vehicle.Wizard
	Eurotax       *eurotax.Index
	Storage       storage.Backend
	Notifications *NotificationService
	Webhooks      *WebhookService
	Metrics       *Metrics
}

func NewListingService(deps ListingDeps) *ListingService {
	return &ListingService{
		db:            deps.DB,
		categories:    deps.Categories,
		wizard:        deps.Wizard,
		eurotax:       deps.Eurotax,
		store:         deps.Storage,
		notifications: deps.Notifications,
		webhooks:      deps.Webhooks,
		metrics:       deps.Metrics,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type ListingInput struct {
	CategoryID       int64             `json:"category_id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Price            int64             `json:"price"`
	Currency         string            `json:"currency"`
	City             string            `json:"city"`
	District         string            `json:"district"`
	Attributes       map[string]string `json:"attributes"`
	VehicleVersionID *int64            `json:"vehicle_version_id"`
}

// Create submits a new listing. Every listing starts PENDING and waits for
// moderation.
func (s *ListingService) Create(ctx context.Context, ownerID int64, in ListingInput) (*models.Listing, error) {
	l := &models.Listing{OwnerID: ownerID, Status: models.ListingPending}
	if err := s.apply(ctx, l, in); err != nil {
		return nil, err
	}
	if err := s.db.CreateListing(ctx, l); err != nil {
		return nil, err
	}
	s.metrics.listingCreated()
	return s.reload(ctx, l.ID)
}

// Update edits an owner's listing. Edits to a live or rejected listing send it
// back to moderation.
func (s *ListingService) Update(ctx context.Context, ownerID, id int64, in ListingInput) (*models.Listing, error) {
	l, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	from := l.Status
	switch from {
	case models.ListingActive, models.ListingRejected:
		l.Status = models.ListingPending
		l.RejectionReason = ""
	case models.ListingPending, models.ListingPassive:
	default:
		return nil, ErrInvalidTransition
	}
	if err := s.apply(ctx, l, in); err != nil {
		return nil, err
	}
	if err := s.db.UpdateListing(ctx, l, from); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return s.reload(ctx, l.ID)
}

// apply validates in and copies it onto l.
func (s *ListingService) apply(ctx context.Context, l *models.Listing, in ListingInput) error {
	title := strings.Join(strings.Fields(in.Title), " ")
	if n := len([]rune(title)); n < minTitleLength || n > maxTitleLength {
		return invalid("title", fmt.Sprintf("must be %d to %d characters", minTitleLength, maxTitleLength))
	}
	description := strings.TrimSpace(in.Description)
	if len([]rune(description)) > maxDescriptionLength {
		return invalid("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}
	if in.Price < 0 {
		return invalid("price", "must not be negative")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "TRY"
	}
	if !listingCurrencies[currency] {
		return invalid("currency", "must be TRY, USD or EUR")
	}
	city := strings.TrimSpace(in.City)
	if city == "" {
		return invalid("city", "is required")
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return err
	}
	attrs, err := cleanAttributes(in.Attributes)
	if err != nil {
		return err
	}
	if in.VehicleVersionID != nil {
		if err := s.checkVehicle(ctx, *in.VehicleVersionID, attrs); err != nil {
			return err
		}
	}

	l.CategoryID = in.CategoryID
	l.Title = title
	l.Description = description
	l.Price = in.Price
	l.Currency = currency
	l.City = city
	l.District = strings.TrimSpace(in.District)
	l.Attributes = attrs
	l.VehicleVersionID = in.VehicleVersionID
	l.SearchText = textnorm.Fold(title + " " + description)
	return nil
}

// checkCategory accepts only active leaf categories.
func (s *ListingService) checkCategory(ctx context.Context, id int64) error {
	if id <= 0 {
		return invalid("category_id", "is required")
	}
	cat, err := s.db.GetCategory(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return invalid("category_id", "unknown category")
	}
	if err != nil {
		return err
	}
	if !cat.IsActive {
		return invalid("category_id", "category is not open for listings")
	}
	tree, err := s.categories.Tree(ctx)
	if err != nil {
		return err
	}
	if len(tree.Children(id)) > 0 {
		return invalid("category_id", "choose a more specific category")
	}
	return nil
}

// checkVehicle runs the brand/model/year/version chain for a vehicle listing.
// The model year comes from the "year" attribute.
func (s *ListingService) checkVehicle(ctx context.Context, versionID int64, attrs map[string]string) error {
	year, err := strconv.Atoi(attrs["year"])
	if err != nil || year <= 0 {
		return invalid("attributes.year", "is required for vehicle listings")
	}
	version, err := s.db.GetVehicleVersion(ctx, versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return invalid("vehicle_version_id", "unknown version")
	}
	if err != nil {
		return err
	}
	model, err := s.db.GetVehicleModel(ctx, version.ModelID)
	if err != nil {
		return notFound(err)
	}
	_, err = s.wizard.Validate(ctx, vehicle.Selection{
		BrandID:   model.BrandID,
		ModelID:   model.ID,
		Year:      year,
		VersionID: version.ID,
	})
	var selErr *vehicle.SelectionError
	if errors.As(err, &selErr) {
		return invalid(selErr.Field, selErr.Message)
	}
	return err
}

func cleanAttributes(in map[string]string) (map[string]string, error) {
	if len(in) > maxAttributes {
		return nil, invalid("attributes", fmt.Sprintf("at most %d attributes", maxAttributes))
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if !attributeKeyPattern.MatchString(k) {
			return nil, invalid("attributes", fmt.Sprintf("invalid key %q", k))
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if len([]rune(v)) > 200 {
			return nil, invalid("attributes."+k, "must be at most 200 characters")
		}
		out[k] = v
	}
	return out, nil
}

// ListingDetail is a listing with everything its page shows.
type ListingDetail struct {
	*models.Listing
	Photos     []models.ListingPhoto `json:"photos"`
	Seller     models.PublicProfile  `json:"seller"`
	Breadcrumb []models.Category     `json:"breadcrumb"`
	Valuation  *eurotax.Valuation    `json:"valuation,omitempty"`
	Favorite   bool                  `json:"favorite"`
}

// Get returns a listing page. Non-active listings are visible only to their
// owner and to admins. Views by anyone but the owner are counted.
func (s *ListingService) Get(ctx context.Context, viewer Viewer, id int64) (*ListingDetail, error) {
	l, err := s.visible(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	if l.Status == models.ListingActive && viewer.UserID != l.OwnerID {
		if err := s.db.IncrementListingViews(ctx, l.ID); err != nil {
			slog.Warn("count listing view", "listing_id", l.ID, "error", err)
		} else {
			l.ViewCount++
		}
	}

	detail := &ListingDetail{Listing: l, Photos: []models.ListingPhoto{}, Breadcrumb: []models.Category{}}
	owner, err := s.db.GetUserByID(ctx, l.OwnerID)
	if err != nil {
		return nil, notFound(err)
	}
	detail.Seller = owner.Public()
	if photos, err := s.db.ListListingPhotos(ctx, l.ID); err != nil {
		return nil, err
	} else if photos != nil {
		detail.Photos = photos
	}
	ids, err := s.categories.Ancestors(ctx, l.CategoryID)
	if err != nil {
		return nil, err
	}
	for _, cid := range ids {
		cat, err := s.db.GetCategory(ctx, cid)
		if err != nil {
			continue
		}
		detail.Breadcrumb = append(detail.Breadcrumb, *cat)
	}
	if viewer.UserID > 0 {
		fav, err := s.db.IsFavorite(ctx, viewer.UserID, l.ID)
		if err != nil {
			return nil, err
		}
		detail.Favorite = fav
	}
	detail.Valuation = s.valuation(ctx, l)
	return detail, nil
}

// valuation looks up the Eurotax price band for a vehicle listing. Missing
// reference data yields nil.
func (s *ListingService) valuation(ctx context.Context, l *models.Listing) *eurotax.Valuation {
	if s.eurotax == nil || l.VehicleVersionID == nil {
		return nil
	}
	version, err := s.db.GetVehicleVersion(ctx, *l.VehicleVersionID)
	if err != nil {
		return nil
	}
	model, err := s.db.GetVehicleModel(ctx, version.ModelID)
	if err != nil {
		return nil
	}
	brand, err := s.db.GetVehicleBrand(ctx, model.BrandID)
	if err != nil {
		return nil
	}
	year, _ := strconv.Atoi(l.Attributes["year"])
	v, ok := s.eurotax.Valuation(brand.Name, model.Name, year)
	if !ok {
		return nil
	}
	return &v
}

// Delete removes a listing and its photos. Owners and admins may delete.
func (s *ListingService) Delete(ctx context.Context, viewer Viewer, id int64) error {
	l, err := s.db.GetListing(ctx, id)
	if err != nil {
		return notFound(err)
	}
	if !viewer.Admin && l.OwnerID != viewer.UserID {
		return ErrForbidden
	}
	photos, err := s.db.ListListingPhotos(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteListing(ctx, id); err != nil {
		return notFound(err)
	}
	for _, p := range photos {
		if err := s.store.Delete(ctx, p.ObjectKey); err != nil && !errors.Is(err, storage.ErrNotExist) {
			slog.Warn("delete listing photo object", "listing_id", id, "key", p.ObjectKey, "error", err)
		}
	}
	return nil
}

// ChangeStatus applies an owner-driven transition: take a live listing down
// (PASSIVE), mark it SOLD, or resubmit a passive or rejected one (PENDING).
func (s *ListingService) ChangeStatus(ctx context.Context, ownerID, id int64, to string) (*models.Listing, error) {
	switch to {
	case models.ListingPassive, models.ListingSold, models.ListingPending:
	default:
		return nil, ErrForbidden
	}
	l, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(l.Status, to) || (to == models.ListingPending && l.Status == models.ListingActive) {
		return nil, ErrInvalidTransition
	}
	if err := s.db.UpdateListingStatus(ctx, id, l.Status, database.ListingStatusChange{Status: to, At: s.now()}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return s.reload(ctx, id)
}

type SearchResult struct {
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
	Items   []models.Listing `json:"items"`
}

// Search runs a public search over ACTIVE listings. A category filter covers
// the category's whole subtree.
func (s *ListingService) Search(ctx context.Context, q models.SearchQuery, page, perPage int) (*SearchResult, error) {
	f, err := s.filterFor(ctx, q)
	if err != nil {
		return nil, err
	}
	f.Statuses = []string{models.ListingActive}
	return s.search(ctx, f, page, perPage)
}

// ListMine lists the owner's listings in any status, newest first.
func (s *ListingService) ListMine(ctx context.Context, ownerID int64, status string, page, perPage int) (*SearchResult, error) {
	f := database.ListingFilter{OwnerID: &ownerID}
	if status != "" {
		if !listingStatuses[status] {
			return nil, invalid("status", "unknown listing status")
		}
		f.Statuses = []string{status}
	}
	return s.search(ctx, f, page, perPage)
}

func (s *ListingService) search(ctx context.Context, f database.ListingFilter, page, perPage int) (*SearchResult, error) {
	limit, offset := normalizePage(page, perPage, 20, 100)
	f.Limit, f.Offset = limit, offset
	res := &SearchResult{PerPage: limit, Page: offset/limit + 1}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.db.CountListings(gctx, f)
		res.Total = n
		return err
	})
	g.Go(func() error {
		items, err := s.db.SearchListings(gctx, f)
		res.Items = items
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if res.Items == nil {
		res.Items = []models.Listing{}
	}
	return res, nil
}

// filterFor resolves a user-facing query into a database filter.
func (s *ListingService) filterFor(ctx context.Context, q models.SearchQuery) (database.ListingFilter, error) {
	f := database.ListingFilter{
		PriceMin:   q.PriceMin,
		PriceMax:   q.PriceMax,
		City:       strings.TrimSpace(q.City),
		BrandID:    q.BrandID,
		ModelID:    q.ModelID,
		TextTerms:  textnorm.Terms(q.Text),
		Attributes: map[string]string{},
	}
	switch q.Sort {
	case "", "newest":
		f.Sort = "newest"
	case "price_asc", "price_desc":
		f.Sort = q.Sort
	default:
		return f, invalid("sort", "must be newest, price_asc or price_desc")
	}
	if q.PriceMin != nil && q.PriceMax != nil && *q.PriceMin > *q.PriceMax {
		return f, invalid("price_min", "must not exceed price_max")
	}
	switch q.SellerRole {
	case "":
	case models.RoleIndividual, models.RoleCorporate:
		f.SellerRole = q.SellerRole
	default:
		return f, invalid("seller_role", "must be individual or corporate")
	}
	for k, v := range q.Attributes {
		k = strings.ToLower(strings.TrimSpace(k))
		if !attributeKeyPattern.MatchString(k) {
			return f, invalid("attributes", fmt.Sprintf("invalid key %q", k))
		}
		f.Attributes[k] = strings.TrimSpace(v)
	}
	if q.CategoryID != nil {
		ids, err := s.categories.AllChildCategoryIDs(ctx, *q.CategoryID)
		if err != nil {
			return f, err
		}
		f.CategoryIDs = ids
	}
	return f, nil
}

// ExpireDue moves ACTIVE listings whose expiry has passed to EXPIRED. It is
// the listing sweeper's work function.
func (s *ListingService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	for {
		due, err := s.db.ListDueExpiredListings(ctx, now, expireBatchSize)
		if err != nil {
			return expired, err
		}
		moved := 0
		for i := range due {
			l := &due[i]
			err := s.db.UpdateListingStatus(ctx, l.ID, models.ListingActive, database.ListingStatusChange{
				Status: models.ListingExpired,
				At:     now,
			})
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return expired, err
			}
			moved++
			l.Status = models.ListingExpired
			logNotifyErr(s.notifications.NotifyListingExpired(ctx, l), "listing.expire", "listing_id", l.ID)
			if err := s.webhooks.EmitListingEvent(ctx, EventListingExpired, l); err != nil {
				slog.Error("emit listing webhook", "listing_id", l.ID, "event", EventListingExpired, "error", err)
			}
		}
		expired += moved
		if len(due) < expireBatchSize || moved == 0 {
			return expired, nil
		}
	}
}

func (s *ListingService) owned(ctx context.Context, ownerID, id int64) (*models.Listing, error) {
	l, err := s.db.GetListing(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if l.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return l, nil
}

func (s *ListingService) visible(ctx context.Context, viewer Viewer, id int64) (*models.Listing, error) {
	l, err := s.db.GetListing(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !viewer.canSee(l) {
		return nil, ErrNotFound
	}
	return l, nil
}

func (s *ListingService) reload(ctx context.Context, id int64) (*models.Listing, error) {
	l, err := s.db.GetListing(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}
