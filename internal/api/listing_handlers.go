package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/service"
)

const attributeQueryPrefix = "attr."

// parseSearchQuery maps query parameters onto a SearchQuery. Attribute filters
// use the attr.<key>=<value> form.
func parseSearchQuery(r *http.Request) (models.SearchQuery, error) {
	q := r.URL.Query()
	sq := models.SearchQuery{
		Text:       strings.TrimSpace(q.Get("q")),
		City:       strings.TrimSpace(q.Get("city")),
		SellerRole: strings.TrimSpace(q.Get("seller_role")),
		Sort:       strings.TrimSpace(q.Get("sort")),
	}
	for _, f := range []struct {
		key string
		dst **int64
	}{
		{"category_id", &sq.CategoryID},
		{"price_min", &sq.PriceMin},
		{"price_max", &sq.PriceMax},
		{"brand_id", &sq.BrandID},
		{"model_id", &sq.ModelID},
	} {
		v, err := queryInt64(r, f.key)
		if err != nil {
			return sq, err
		}
		*f.dst = v
	}
	for key, values := range q {
		name, ok := strings.CutPrefix(key, attributeQueryPrefix)
		if !ok || name == "" || len(values) == 0 {
			continue
		}
		if sq.Attributes == nil {
			sq.Attributes = make(map[string]string)
		}
		sq.Attributes[name] = values[0]
	}
	return sq, nil
}

func (s *Server) handleSearchListings(w http.ResponseWriter, r *http.Request) {
	sq, err := parseSearchQuery(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	page, perPage := parsePagination(r, defaultPageSize, maxPageSize)
	res, err := s.svc.Listings.Search(r.Context(), sq, page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req service.ListingInput
	if !decodeJSON(w, r, &req) {
		return
	}
	l, err := s.svc.Listings.Create(r.Context(), currentUser(r).ID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, l)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	detail, err := s.svc.Listings.Get(r.Context(), s.viewer(r), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, detail)
}

func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	var req service.ListingInput
	if !decodeJSON(w, r, &req) {
		return
	}
	l, err := s.svc.Listings.Update(r.Context(), currentUser(r).ID, id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, l)
}

func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	if err := s.svc.Listings.Delete(r.Context(), s.viewer(r), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangeListingStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	l, err := s.svc.Listings.ChangeStatus(r.Context(), currentUser(r).ID, id, strings.ToUpper(strings.TrimSpace(req.Status)))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, l)
}

// readUpload returns the uploaded bytes from either a multipart "file" field
// or the raw request body.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	var src io.Reader = r.Body
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
				return nil, false
			}
			jsonError(w, "file field is required", http.StatusBadRequest)
			return nil, false
		}
		defer file.Close()
		src = file
	}
	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		jsonError(w, "invalid upload", http.StatusBadRequest)
		return nil, false
	}
	if int64(len(data)) > limit {
		jsonError(w, "upload too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	if len(data) == 0 {
		jsonError(w, "upload is empty", http.StatusBadRequest)
		return nil, false
	}
	return data, true
}

func (s *Server) handleUploadListingPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	data, ok := readUpload(w, r, service.MaxPhotoBytes)
	if !ok {
		return
	}
	photo, err := s.svc.Listings.AddPhoto(r.Context(), currentUser(r).ID, id, data)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, photo)
}

func (s *Server) handleListListingPhotos(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	photos, err := s.svc.Listings.ListPhotos(r.Context(), s.viewer(r), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if photos == nil {
		photos = []models.ListingPhoto{}
	}
	jsonResponse(w, http.StatusOK, photos)
}

func (s *Server) handleGetListingPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	photoID, ok := parsePathID(w, r, "photo", "photo id")
	if !ok {
		return
	}
	rc, photo, err := s.svc.Listings.OpenPhoto(r.Context(), s.viewer(r), id, photoID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", photo.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if photo.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(photo.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("photo stream interrupted", "listing_id", id, "photo_id", photoID, "error", err)
	}
}

func (s *Server) handleDeleteListingPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "listing id")
	if !ok {
		return
	}
	photoID, ok := parsePathID(w, r, "photo", "photo id")
	if !ok {
		return
	}
	if err := s.svc.Listings.DeletePhoto(r.Context(), currentUser(r).ID, id, photoID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
