// Package vehicle drives the brand → model → year → version selector used
// when creating vehicle listings.
package vehicle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/ilanhub/internal/models"
)

// Wizard levels.
const (
	LevelBrand   = "brand"
	LevelModel   = "model"
	LevelYear    = "year"
	LevelVersion = "version"
	LevelDone    = "done"
)

// Store is the slice of the database the wizard reads.
type Store interface {
	GetVehicleBrand(ctx context.Context, id int64) (*models.VehicleBrand, error)
	GetVehicleModel(ctx context.Context, id int64) (*models.VehicleModel, error)
	GetVehicleVersion(ctx context.Context, id int64) (*models.VehicleVersion, error)
	ListVehicleBrands(ctx context.Context) ([]models.VehicleBrand, error)
	ListVehicleModels(ctx context.Context, brandID int64) ([]models.VehicleModel, error)
	ListVehicleVersions(ctx context.Context, modelID int64) ([]models.VehicleVersion, error)
}

// Selection is what the client has chosen so far. Zero means "not chosen".
type Selection struct {
	BrandID   int64 `json:"brand_id,omitempty"`
	ModelID   int64 `json:"model_id,omitempty"`
	Year      int   `json:"year,omitempty"`
	VersionID int64 `json:"version_id,omitempty"`
}

type Option struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	// Detail is filled for version options, e.g. "Dizel · Otomatik · 1598 cc".
	Detail string `json:"detail,omitempty"`
}

type StepResult struct {
	Level   string                 `json:"level"`
	Options []Option               `json:"options"`
	Path    []Option               `json:"path"`
	Version *models.VehicleVersion `json:"version,omitempty"`
}

// SelectionError reports an inconsistent or unknown choice.
type SelectionError struct {
	Field   string
	Message string
}

func (e *SelectionError) Error() string { return e.Field + ": " + e.Message }

type Wizard struct {
	store Store
	now   func() time.Time
}

func NewWizard(store Store) *Wizard {
	return &Wizard{store: store, now: time.Now}
}

// Step validates the choices made so far and returns the options for the
// next level.
func (w *Wizard) Step(ctx context.Context, sel Selection) (*StepResult, error) {
	res := &StepResult{Options: []Option{}, Path: []Option{}}

	if sel.BrandID == 0 {
		brands, err := w.store.ListVehicleBrands(ctx)
		if err != nil {
			return nil, fmt.Errorf("list brands: %w", err)
		}
		res.Level = LevelBrand
		for _, b := range brands {
			res.Options = append(res.Options, Option{ID: b.ID, Label: b.Name})
		}
		return res, nil
	}
	brand, err := w.brand(ctx, sel.BrandID)
	if err != nil {
		return nil, err
	}
	res.Path = append(res.Path, Option{ID: brand.ID, Label: brand.Name})

	if sel.ModelID == 0 {
		list, err := w.store.ListVehicleModels(ctx, brand.ID)
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		res.Level = LevelModel
		for _, m := range list {
			res.Options = append(res.Options, Option{ID: m.ID, Label: m.Name})
		}
		return res, nil
	}
	model, err := w.model(ctx, brand.ID, sel.ModelID)
	if err != nil {
		return nil, err
	}
	res.Path = append(res.Path, Option{ID: model.ID, Label: model.Name})

	versions, err := w.store.ListVehicleVersions(ctx, model.ID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	if sel.Year == 0 {
		res.Level = LevelYear
		for _, y := range w.years(versions) {
			res.Options = append(res.Options, Option{ID: int64(y), Label: strconv.Itoa(y)})
		}
		return res, nil
	}
	if !w.anyCovers(versions, sel.Year) {
		return nil, &SelectionError{Field: "year", Message: fmt.Sprintf("%s %s was not produced in %d", brand.Name, model.Name, sel.Year)}
	}
	res.Path = append(res.Path, Option{ID: int64(sel.Year), Label: strconv.Itoa(sel.Year)})

	if sel.VersionID == 0 {
		res.Level = LevelVersion
		for _, v := range versions {
			if v.CoversYear(sel.Year) {
				res.Options = append(res.Options, Option{ID: v.ID, Label: v.Name, Detail: versionDetail(&v)})
			}
		}
		return res, nil
	}
	version, err := w.version(ctx, model.ID, sel.VersionID, sel.Year)
	if err != nil {
		return nil, err
	}
	res.Path = append(res.Path, Option{ID: version.ID, Label: version.Name})
	res.Level = LevelDone
	res.Version = version
	return res, nil
}

// Validate checks a complete selection: the model belongs to the brand, the
// version to the model, and the year falls inside the version's range.
func (w *Wizard) Validate(ctx context.Context, sel Selection) (*models.VehicleVersion, error) {
	switch {
	case sel.BrandID == 0:
		return nil, &SelectionError{Field: "brand_id", Message: "is required"}
	case sel.ModelID == 0:
		return nil, &SelectionError{Field: "model_id", Message: "is required"}
	case sel.Year == 0:
		return nil, &SelectionError{Field: "year", Message: "is required"}
	case sel.VersionID == 0:
		return nil, &SelectionError{Field: "version_id", Message: "is required"}
	}
	res, err := w.Step(ctx, sel)
	if err != nil {
		return nil, err
	}
	return res.Version, nil
}

func (w *Wizard) brand(ctx context.Context, id int64) (*models.VehicleBrand, error) {
	b, err := w.store.GetVehicleBrand(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &SelectionError{Field: "brand_id", Message: "unknown brand"}
	}
	return b, err
}

func (w *Wizard) model(ctx context.Context, brandID, id int64) (*models.VehicleModel, error) {
	m, err := w.store.GetVehicleModel(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &SelectionError{Field: "model_id", Message: "unknown model"}
	}
	if err != nil {
		return nil, err
	}
	if m.BrandID != brandID {
		return nil, &SelectionError{Field: "model_id", Message: "model does not belong to brand"}
	}
	return m, nil
}

func (w *Wizard) version(ctx context.Context, modelID, id int64, year int) (*models.VehicleVersion, error) {
	v, err := w.store.GetVehicleVersion(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &SelectionError{Field: "version_id", Message: "unknown version"}
	}
	if err != nil {
		return nil, err
	}
	if v.ModelID != modelID {
		return nil, &SelectionError{Field: "version_id", Message: "version does not belong to model"}
	}
	if !v.CoversYear(year) {
		return nil, &SelectionError{Field: "year", Message: fmt.Sprintf("%s was not produced in %d", v.Name, year)}
	}
	return v, nil
}

// years lists every model year covered by versions, newest first. Versions
// still in production run up to the current year.
func (w *Wizard) years(versions []models.VehicleVersion) []int {
	current := w.now().Year()
	seen := make(map[int]bool)
	for _, v := range versions {
		if !v.Dated() {
			continue
		}
		to := v.YearTo
		if to == 0 || to > current {
			to = current
		}
		for y := v.YearFrom; y <= to; y++ {
			seen[y] = true
		}
	}
	out := make([]int, 0, len(seen))
	for y := range seen {
		out = append(out, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func (w *Wizard) anyCovers(versions []models.VehicleVersion, year int) bool {
	for i := range versions {
		if versions[i].CoversYear(year) {
			return true
		}
	}
	return false
}

func versionDetail(v *models.VehicleVersion) string {
	var parts []string
	for _, s := range []string{v.Fuel, v.Transmission, v.BodyType} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if v.EngineCC > 0 {
		parts = append(parts, strconv.Itoa(v.EngineCC)+" cc")
	}
	if v.Horsepower > 0 {
		parts = append(parts, strconv.Itoa(v.Horsepower)+" hp")
	}
	return strings.Join(parts, " · ")
}
