package service

import (
	"context"

	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/models"
)

type FavoriteService struct {
	db database.DB
}

func NewFavoriteService(db database.DB) *FavoriteService {
	return &FavoriteService{db: db}
}

// Add favorites a live listing. Adding twice is a no-op.
func (s *FavoriteService) Add(ctx context.Context, userID, listingID int64) error {
	l, err := s.db.GetListing(ctx, listingID)
	if err != nil {
		return notFound(err)
	}
	if l.Status != models.ListingActive {
		return ErrNotFound
	}
	_, err = s.db.AddFavorite(ctx, userID, listingID)
	return err
}

func (s *FavoriteService) Remove(ctx context.Context, userID, listingID int64) error {
	_, err := s.db.RemoveFavorite(ctx, userID, listingID)
	return err
}

func (s *FavoriteService) List(ctx context.Context, userID int64, page, perPage int) ([]models.Listing, error) {
	limit, offset := normalizePage(page, perPage, 20, 100)
	return s.db.ListFavoriteListings(ctx, userID, limit, offset)
}
