package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/storage"
)

const (
	MaxPhotoBytes       = 5 << 20
	maxPhotosPerListing = 20
)

var photoTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
}

// sniffUpload detects the content type from the leading bytes and returns it
// with the file extension to store it under.
func sniffUpload(data []byte, allowed map[string]string) (string, string, error) {
	contentType := http.DetectContentType(data)
	ext, ok := allowed[contentType]
	if !ok {
		return "", "", invalid("file", fmt.Sprintf("unsupported file type %s", contentType))
	}
	return contentType, ext, nil
}

// AddPhoto stores a JPEG or PNG photo for an owner's listing.
func (s *ListingService) AddPhoto(ctx context.Context, ownerID, listingID int64, data []byte) (*models.ListingPhoto, error) {
	l, err := s.owned(ctx, ownerID, listingID)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, invalid("file", "is empty")
	}
	if len(data) > MaxPhotoBytes {
		return nil, invalid("file", "must be at most 5 MiB")
	}
	contentType, ext, err := sniffUpload(data, photoTypes)
	if err != nil {
		return nil, err
	}
	n, err := s.db.CountListingPhotos(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	if n >= maxPhotosPerListing {
		return nil, invalid("file", fmt.Sprintf("a listing can have at most %d photos", maxPhotosPerListing))
	}

	key := storage.ListingPhotoKey(l.ID, ext)
	if err := s.store.Write(ctx, key, data, contentType); err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}
	p := &models.ListingPhoto{
		ListingID:   l.ID,
		ObjectKey:   key,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
	}
	if err := s.db.CreateListingPhoto(ctx, p); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			slog.Warn("remove orphaned photo object", "key", key, "error", delErr)
		}
		return nil, err
	}
	return p, nil
}

func (s *ListingService) ListPhotos(ctx context.Context, viewer Viewer, listingID int64) ([]models.ListingPhoto, error) {
	if _, err := s.visible(ctx, viewer, listingID); err != nil {
		return nil, err
	}
	photos, err := s.db.ListListingPhotos(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if photos == nil {
		photos = []models.ListingPhoto{}
	}
	return photos, nil
}

// OpenPhoto returns the photo bytes. The caller closes the reader.
func (s *ListingService) OpenPhoto(ctx context.Context, viewer Viewer, listingID, photoID int64) (io.ReadCloser, *models.ListingPhoto, error) {
	if _, err := s.visible(ctx, viewer, listingID); err != nil {
		return nil, nil, err
	}
	p, err := s.db.GetListingPhoto(ctx, listingID, photoID)
	if err != nil {
		return nil, nil, notFound(err)
	}
	rc, err := s.store.Read(ctx, p.ObjectKey)
	if errors.Is(err, storage.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return rc, p, nil
}

func (s *ListingService) DeletePhoto(ctx context.Context, ownerID, listingID, photoID int64) error {
	if _, err := s.owned(ctx, ownerID, listingID); err != nil {
		return err
	}
	p, err := s.db.GetListingPhoto(ctx, listingID, photoID)
	if err != nil {
		return notFound(err)
	}
	if err := s.db.DeleteListingPhoto(ctx, listingID, photoID); err != nil {
		return notFound(err)
	}
	if err := s.store.Delete(ctx, p.ObjectKey); err != nil && !errors.Is(err, storage.ErrNotExist) {
		slog.Warn("delete photo object", "key", p.ObjectKey, "error", err)
	}
	return nil
}
