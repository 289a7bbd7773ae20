// Package storage keeps uploaded files (listing photos, verification
// documents) in a local directory or an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotExist is returned by Read and Delete when the key has no object.
var ErrNotExist = errors.New("storage: object does not exist")

// Backend abstracts object storage. Keys are slash-separated.
type Backend interface {
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	Write(ctx context.Context, key string, data []byte, contentType string) error
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// List returns all keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ListingPhotoKey returns listings/<id>/<uuid>.<ext>.
func ListingPhotoKey(listingID int64, ext string) string {
	return fmt.Sprintf("listings/%d/%s.%s", listingID, uuid.NewString(), strings.TrimPrefix(ext, "."))
}

// VerificationDocumentKey returns verifications/<userID>/<uuid>.<ext>.
func VerificationDocumentKey(userID int64, ext string) string {
	return fmt.Sprintf("verifications/%d/%s.%s", userID, uuid.NewString(), strings.TrimPrefix(ext, "."))
}

// cleanKey rejects keys that would escape the storage root.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("storage: empty key")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return cleaned, nil
}
