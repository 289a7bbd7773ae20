package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/jobs"
	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/textnorm"
)

const (
	maxSavedSearches      = 50
	savedSearchMatchBatch = 200
)

type SavedSearchService struct {
	db            database.DB
	listings      *ListingService
	notifications *NotificationService
}

func NewSavedSearchService(db database.DB, listings *ListingService, notifications *NotificationService) *SavedSearchService {
	return &SavedSearchService{db: db, listings: listings, notifications: notifications}
}

type SavedSearchInput struct {
	Name  string             `json:"name"`
	Query models.SearchQuery `json:"query"`
	Alert bool               `json:"alert"`
}

func (s *SavedSearchService) Create(ctx context.Context, userID int64, in SavedSearchInput) (*models.SavedSearch, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	// Reject filters the search itself would reject.
	if _, err := s.listings.filterFor(ctx, in.Query); err != nil {
		return nil, err
	}
	n, err := s.db.CountSavedSearches(ctx, userID)
	if err != nil {
		return nil, err
	}
	if n >= maxSavedSearches {
		return nil, invalid("name", fmt.Sprintf("you can keep at most %d saved searches", maxSavedSearches))
	}
	ss := &models.SavedSearch{
		UserID: userID,
		Name:   clipText(name, 100),
		Query:  in.Query,
		Alert:  in.Alert,
	}
	if err := s.db.CreateSavedSearch(ctx, ss); err != nil {
		return nil, err
	}
	return ss, nil
}

func (s *SavedSearchService) List(ctx context.Context, userID int64) ([]models.SavedSearch, error) {
	return s.db.ListSavedSearches(ctx, userID)
}

func (s *SavedSearchService) Delete(ctx context.Context, userID, id int64) error {
	return notFound(s.db.DeleteSavedSearch(ctx, userID, id))
}

// Run executes a saved search against the current live listings.
func (s *SavedSearchService) Run(ctx context.Context, userID, id int64, page, perPage int) (*SearchResult, error) {
	ss, err := s.db.GetSavedSearch(ctx, userID, id)
	if err != nil {
		return nil, notFound(err)
	}
	return s.listings.Search(ctx, ss.Query, page, perPage)
}

type savedSearchMatchJob struct {
	ListingID int64 `json:"listing_id"`
}

// HandleMatchJob notifies owners of alerting saved searches that match a
// freshly approved listing. The listing's own owner is never notified.
func (s *SavedSearchService) HandleMatchJob(ctx context.Context, job *models.Job) error {
	p, err := jobs.Decode[savedSearchMatchJob](job)
	if err != nil {
		return err
	}
	l, err := s.db.GetListing(ctx, p.ListingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if l.Status != models.ListingActive {
		return nil
	}
	m, err := s.newMatcher(ctx, l)
	if err != nil {
		return err
	}

	var afterID int64
	for {
		batch, err := s.db.ListAlertingSavedSearches(ctx, afterID, savedSearchMatchBatch)
		if err != nil {
			return err
		}
		for i := range batch {
			ss := &batch[i]
			afterID = ss.ID
			if ss.UserID == l.OwnerID {
				continue
			}
			ok, err := m.matches(ctx, ss.Query)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := s.notifications.NotifySavedSearchMatch(ctx, ss, l); err != nil {
				return err
			}
		}
		if len(batch) < savedSearchMatchBatch {
			return nil
		}
	}
}

// listingMatcher evaluates saved queries against one listing with the same
// semantics as the database search.
type listingMatcher struct {
	s       *SavedSearchService
	listing *models.Listing
	brandID int64
	modelID int64
	subtree map[int64][]int64
}

func (s *SavedSearchService) newMatcher(ctx context.Context, l *models.Listing) (*listingMatcher, error) {
	m := &listingMatcher{s: s, listing: l, subtree: make(map[int64][]int64)}
	if l.VehicleVersionID != nil {
		version, err := s.db.GetVehicleVersion(ctx, *l.VehicleVersionID)
		if err != nil {
			return nil, notFound(err)
		}
		model, err := s.db.GetVehicleModel(ctx, version.ModelID)
		if err != nil {
			return nil, notFound(err)
		}
		m.modelID, m.brandID = model.ID, model.BrandID
	}
	return m, nil
}

func (m *listingMatcher) matches(ctx context.Context, q models.SearchQuery) (bool, error) {
	l := m.listing
	if q.PriceMin != nil && l.Price < *q.PriceMin {
		return false, nil
	}
	if q.PriceMax != nil && l.Price > *q.PriceMax {
		return false, nil
	}
	if city := strings.TrimSpace(q.City); city != "" && city != l.City {
		return false, nil
	}
	if q.SellerRole != "" && q.SellerRole != l.OwnerRole {
		return false, nil
	}
	if q.BrandID != nil && *q.BrandID != m.brandID {
		return false, nil
	}
	if q.ModelID != nil && *q.ModelID != m.modelID {
		return false, nil
	}
	for k, v := range q.Attributes {
		if l.Attributes[strings.ToLower(strings.TrimSpace(k))] != strings.TrimSpace(v) {
			return false, nil
		}
	}
	for _, term := range textnorm.Terms(q.Text) {
		if !strings.Contains(l.SearchText, term) {
			return false, nil
		}
	}
	if q.CategoryID != nil {
		ids, ok := m.subtree[*q.CategoryID]
		if !ok {
			var err error
			ids, err = m.s.listings.categories.AllChildCategoryIDs(ctx, *q.CategoryID)
			if err != nil {
				return false, err
			}
			m.subtree[*q.CategoryID] = ids
		}
		if !slices.Contains(ids, l.CategoryID) {
			return false, nil
		}
	}
	return true, nil
}
