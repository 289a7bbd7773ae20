package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/ilanhub/internal/catalog"
	"github.com/odvcencio/ilanhub/internal/database"
	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/textnorm"
)

type CategoryService struct {
	db       database.DB
	resolver *catalog.Resolver
}

func NewCategoryService(db database.DB, resolver *catalog.Resolver) *CategoryService {
	return &CategoryService{db: db, resolver: resolver}
}

// CategoryNode is a category with its subtree, as served to the browse menu.
type CategoryNode struct {
	models.Category
	Children []CategoryNode `json:"children"`
}

// Tree returns the active category hierarchy. Inactive categories hide their
// whole subtree.
func (s *CategoryService) Tree(ctx context.Context) ([]CategoryNode, error) {
	cats, err := s.db.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}
	tree := catalog.BuildTree(catalog.NodesFromCategories(cats))
	var build func(ids []int64, depth int) []CategoryNode
	build = func(ids []int64, depth int) []CategoryNode {
		out := []CategoryNode{}
		if depth > tree.Len() {
			return out
		}
		for _, id := range ids {
			c, ok := byID[id]
			if !ok || !c.IsActive {
				continue
			}
			out = append(out, CategoryNode{Category: c, Children: build(tree.Children(id), depth+1)})
		}
		slices.SortStableFunc(out, func(a, b CategoryNode) int {
			if a.SortOrder != b.SortOrder {
				return a.SortOrder - b.SortOrder
			}
			return int(a.ID - b.ID)
		})
		return out
	}
	return build(tree.Roots(), 0), nil
}

func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	return s.db.ListCategories(ctx)
}

func (s *CategoryService) Get(ctx context.Context, id int64) (*models.Category, error) {
	c, err := s.db.GetCategory(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// Descendants returns id and every category below it, id first.
func (s *CategoryService) Descendants(ctx context.Context, id int64) ([]int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.resolver.AllChildCategoryIDs(ctx, id)
}

// Breadcrumb returns the path from the root down to id.
func (s *CategoryService) Breadcrumb(ctx context.Context, id int64) ([]models.Category, error) {
	ids, err := s.resolver.Ancestors(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]models.Category, 0, len(ids))
	for _, cid := range ids {
		c, err := s.Get(ctx, cid)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

type CategoryInput struct {
	ParentID  *int64 `json:"parent_id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	SortOrder int    `json:"sort_order"`
	IsActive  *bool  `json:"is_active"`
}

func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (*models.Category, error) {
	c := &models.Category{IsActive: true}
	if err := s.apply(ctx, c, in); err != nil {
		return nil, err
	}
	if err := s.db.CreateCategory(ctx, c); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, invalid("slug", "is already in use")
		}
		return nil, err
	}
	s.invalidate(ctx)
	return c, nil
}

func (s *CategoryService) Update(ctx context.Context, id int64, in CategoryInput) (*models.Category, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		if *in.ParentID == id {
			return nil, invalid("parent_id", "a category cannot be its own parent")
		}
		below, err := s.resolver.AllChildCategoryIDs(ctx, id)
		if err != nil {
			return nil, err
		}
		if slices.Contains(below, *in.ParentID) {
			return nil, invalid("parent_id", "cannot move a category under its own subtree")
		}
	}
	if err := s.apply(ctx, c, in); err != nil {
		return nil, err
	}
	if err := s.db.UpdateCategory(ctx, c); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, invalid("slug", "is already in use")
		}
		return nil, notFound(err)
	}
	s.invalidate(ctx)
	return c, nil
}

// Delete removes an empty leaf category.
func (s *CategoryService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	tree, err := s.resolver.Tree(ctx)
	if err != nil {
		return err
	}
	if len(tree.Children(id)) > 0 {
		return fmt.Errorf("%w: category has subcategories", ErrConflict)
	}
	n, err := s.db.CountListings(ctx, database.ListingFilter{CategoryIDs: []int64{id}})
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: category has listings", ErrConflict)
	}
	if err := s.db.DeleteCategory(ctx, id); err != nil {
		return notFound(err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *CategoryService) apply(ctx context.Context, c *models.Category, in CategoryInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return invalid("name", "is required")
	}
	slug := textnorm.Slug(in.Slug)
	if slug == "" {
		slug = textnorm.Slug(name)
	}
	if slug == "" {
		return invalid("slug", "is required")
	}
	if in.ParentID != nil {
		if _, err := s.db.GetCategory(ctx, *in.ParentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return invalid("parent_id", "unknown category")
			}
			return err
		}
	}
	c.ParentID = in.ParentID
	c.Name = clipText(name, 100)
	c.Slug = slug
	c.SortOrder = in.SortOrder
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	return nil
}

func (s *CategoryService) invalidate(ctx context.Context) {
	if err := s.resolver.Invalidate(ctx); err != nil {
		slog.Error("invalidate category cache", "error", err)
	}
}

// CategorySeed is one entry of a category seed file.
type CategorySeed struct {
	Name     string         `yaml:"name"`
	Slug     string         `yaml:"slug"`
	Inactive bool           `yaml:"inactive"`
	Children []CategorySeed `yaml:"children"`
}

type categorySeedFile struct {
	Categories []CategorySeed `yaml:"categories"`
}

// ParseCategorySeed reads a YAML document of the form
//
//	categories:
//	  - name: Vasıta
//	    children:
//	      - name: Otomobil
func ParseCategorySeed(r io.Reader) ([]CategorySeed, error) {
	var f categorySeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse category seed: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, errors.New("parse category seed: no categories")
	}
	return f.Categories, nil
}

type SeedStats struct {
	Created int
	Updated int
}

// Seed upserts a category tree keyed by slug. Sort order follows the file.
func (s *CategoryService) Seed(ctx context.Context, seeds []CategorySeed) (SeedStats, error) {
	var stats SeedStats
	var walk func(parentID *int64, items []CategorySeed) error
	walk = func(parentID *int64, items []CategorySeed) error {
		for i, item := range items {
			name := strings.TrimSpace(item.Name)
			if name == "" {
				return errors.New("category seed entry without a name")
			}
			slug := textnorm.Slug(item.Slug)
			if slug == "" {
				slug = textnorm.Slug(name)
			}
			c, err := s.db.GetCategoryBySlug(ctx, slug)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				c = &models.Category{}
			case err != nil:
				return err
			}
			c.ParentID = parentID
			c.Name = name
			c.Slug = slug
			c.SortOrder = i + 1
			c.IsActive = !item.Inactive
			if c.ID == 0 {
				if err := s.db.CreateCategory(ctx, c); err != nil {
					return fmt.Errorf("create category %q: %w", slug, err)
				}
				stats.Created++
			} else {
				if err := s.db.UpdateCategory(ctx, c); err != nil {
					return fmt.Errorf("update category %q: %w", slug, err)
				}
				stats.Updated++
			}
			id := c.ID
			if err := walk(&id, item.Children); err != nil {
				return err
			}
		}
		return nil
	}
	err := walk(nil, seeds)
	s.invalidate(ctx)
	return stats, err
}
