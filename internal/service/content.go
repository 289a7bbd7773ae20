package service

import (
	"context"
	"strings"

	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/textnorm"
)

// ContentService manages marketing and help pages.
type ContentService struct {
	db database.DB
}

func NewContentService(db database.DB) *ContentService {
	return &ContentService{db: db}
}

type PageInput struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Published bool   `json:"published"`
}

// Published returns a page by slug. Drafts are reported as missing.
func (s *ContentService) Published(ctx context.Context, slug string) (*models.Page, error) {
	p, err := s.db.GetPageBySlug(ctx, textnorm.Slug(slug))
	if err != nil {
		return nil, notFound(err)
	}
	if !p.Published {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *ContentService) List(ctx context.Context, publishedOnly bool) ([]models.Page, error) {
	return s.db.ListPages(ctx, publishedOnly)
}

func (s *ContentService) Get(ctx context.Context, id int64) (*models.Page, error) {
	p, err := s.db.GetPage(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *ContentService) Create(ctx context.Context, in PageInput) (*models.Page, error) {
	p := &models.Page{}
	if err := applyPage(p, in); err != nil {
		return nil, err
	}
	if err := s.db.CreatePage(ctx, p); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, invalid("slug", "is already in use")
		}
		return nil, err
	}
	return p, nil
}

func (s *ContentService) Update(ctx context.Context, id int64, in PageInput) (*models.Page, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyPage(p, in); err != nil {
		return nil, err
	}
	if err := s.db.UpdatePage(ctx, p); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, invalid("slug", "is already in use")
		}
		return nil, notFound(err)
	}
	return s.Get(ctx, id)
}

func (s *ContentService) Delete(ctx context.Context, id int64) error {
	return notFound(s.db.DeletePage(ctx, id))
}

func applyPage(p *models.Page, in PageInput) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return invalid("title", "is required")
	}
	slug := textnorm.Slug(in.Slug)
	if slug == "" {
		slug = textnorm.Slug(title)
	}
	if slug == "" {
		return invalid("slug", "is required")
	}
	p.Slug = slug
	p.Title = clipText(title, 200)
	p.Body = in.Body
	p.Published = in.Published
	return nil
}
