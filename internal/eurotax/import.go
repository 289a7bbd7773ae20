package eurotax

import (
	"context"
	"fmt"

	"github.com/odvcencio/ilanhub/internal/models"
	"github.com/odvcencio/ilanhub/internal/textnorm"
)

// HierarchyStore is the subset of the database the importer writes to.
type HierarchyStore interface {
	UpsertVehicleBrand(ctx context.Context, b *models.VehicleBrand) error
	UpsertVehicleModel(ctx context.Context, m *models.VehicleModel) error
	UpsertVehicleVersion(ctx context.Context, v *models.VehicleVersion) error
}

type ImportStats struct {
	Brands   int `json:"brands"`
	Models   int `json:"models"`
	Versions int `json:"versions"`
}

// ImportHierarchy upserts every record into the vehicle brand/model/version
// tables. Re-running it over the same file is a no-op apart from refreshed
// attributes.
func ImportHierarchy(ctx context.Context, db HierarchyStore, idx *Index) (ImportStats, error) {
	var stats ImportStats
	brandIDs := make(map[string]int64)
	modelIDs := make(map[string]int64)

	for i := range idx.records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec := &idx.records[i]

		brandSlug := textnorm.Slug(rec.Brand)
		brandID, ok := brandIDs[brandSlug]
		if !ok {
			b := &models.VehicleBrand{Name: rec.Brand, Slug: brandSlug}
			if err := db.UpsertVehicleBrand(ctx, b); err != nil {
				return stats, fmt.Errorf("upsert brand %q: %w", rec.Brand, err)
			}
			brandID = b.ID
			brandIDs[brandSlug] = brandID
			stats.Brands++
		}

		modelSlug := textnorm.Slug(rec.Model)
		modelKey := brandSlug + "/" + modelSlug
		modelID, ok := modelIDs[modelKey]
		if !ok {
			m := &models.VehicleModel{BrandID: brandID, Name: rec.Model, Slug: modelSlug}
			if err := db.UpsertVehicleModel(ctx, m); err != nil {
				return stats, fmt.Errorf("upsert model %q: %w", rec.Model, err)
			}
			modelID = m.ID
			modelIDs[modelKey] = modelID
			stats.Models++
		}

		name := rec.Version
		if name == "" {
			name = rec.Code
		}
		v := &models.VehicleVersion{
			ModelID:      modelID,
			Name:         name,
			YearFrom:     rec.YearFrom,
			YearTo:       rec.YearTo,
			Fuel:         rec.Fuel,
			Transmission: rec.Transmission,
			BodyType:     rec.BodyType,
			EngineCC:     rec.EngineCC,
			Horsepower:   rec.Horsepower,
			EurotaxCode:  rec.Code,
		}
		if err := db.UpsertVehicleVersion(ctx, v); err != nil {
			return stats, fmt.Errorf("upsert version %q: %w", rec.Code, err)
		}
		stats.Versions++
	}
	return stats, nil
}
