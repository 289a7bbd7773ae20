package database

import (
	"context"

	"github.com/odvcencio/ilanhub/internal/models"
)

// --- Categories ---

const categoryColumns = `id, parent_id, name, slug, sort_order, is_active, created_at`

func scanCategory(row rowScanner) (*models.Category, error) {
	c := &models.Category{}
	if err := row.Scan(&c.ID, &c.ParentID, &c.Name, &c.Slug, &c.SortOrder, &c.IsActive, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *store) CreateCategory(ctx context.Context, c *models.Category) error {
	return s.queryRow(ctx,
		`INSERT INTO categories (parent_id, name, slug, sort_order, is_active) VALUES (?, ?, ?, ?, ?)
		 RETURNING id, created_at`,
		c.ParentID, c.Name, c.Slug, c.SortOrder, c.IsActive,
	).Scan(&c.ID, &c.CreatedAt)
}

func (s *store) UpdateCategory(ctx context.Context, c *models.Category) error {
	return s.execAffected(ctx,
		`UPDATE categories SET parent_id = ?, name = ?, slug = ?, sort_order = ?, is_active = ? WHERE id = ?`,
		c.ParentID, c.Name, c.Slug, c.SortOrder, c.IsActive, c.ID)
}

func (s *store) DeleteCategory(ctx context.Context, id int64) error {
	return s.execAffected(ctx, `DELETE FROM categories WHERE id = ?`, id)
}

func (s *store) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	return scanCategory(s.queryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
}

func (s *store) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	return scanCategory(s.queryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE slug = ?`, slug))
}

func (s *store) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// --- Vehicle catalog ---

func (s *store) UpsertVehicleBrand(ctx context.Context, b *models.VehicleBrand) error {
	return s.queryRow(ctx,
		`INSERT INTO vehicle_brands (name, slug) VALUES (?, ?)
		 ON CONFLICT(slug) DO UPDATE SET name = excluded.name
		 RETURNING id`,
		b.Name, b.Slug,
	).Scan(&b.ID)
}

func (s *store) UpsertVehicleModel(ctx context.Context, m *models.VehicleModel) error {
	return s.queryRow(ctx,
		`INSERT INTO vehicle_models (brand_id, name, slug) VALUES (?, ?, ?)
		 ON CONFLICT(brand_id, slug) DO UPDATE SET name = excluded.name
		 RETURNING id`,
		m.BrandID, m.Name, m.Slug,
	).Scan(&m.ID)
}

func (s *store) UpsertVehicleVersion(ctx context.Context, v *models.VehicleVersion) error {
	return s.queryRow(ctx,
		`INSERT INTO vehicle_versions (
			 model_id, name, year_from, year_to, fuel, transmission, body_type, engine_cc, horsepower, eurotax_code
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(model_id, name, year_from) DO UPDATE SET
			 year_to = excluded.year_to,
			 fuel = excluded.fuel,
			 transmission = excluded.transmission,
			 body_type = excluded.body_type,
			 engine_cc = excluded.engine_cc,
			 horsepower = excluded.horsepower,
			 eurotax_code = excluded.eurotax_code
		 RETURNING id`,
		v.ModelID, v.Name, v.YearFrom, v.YearTo, v.Fuel, v.Transmission, v.BodyType, v.EngineCC, v.Horsepower, v.EurotaxCode,
	).Scan(&v.ID)
}

func (s *store) GetVehicleBrand(ctx context.Context, id int64) (*models.VehicleBrand, error) {
	b := &models.VehicleBrand{}
	if err := s.queryRow(ctx, `SELECT id, name, slug FROM vehicle_brands WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &b.Slug); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *store) GetVehicleModel(ctx context.Context, id int64) (*models.VehicleModel, error) {
	m := &models.VehicleModel{}
	if err := s.queryRow(ctx, `SELECT id, brand_id, name, slug FROM vehicle_models WHERE id = ?`, id).
		Scan(&m.ID, &m.BrandID, &m.Name, &m.Slug); err != nil {
		return nil, err
	}
	return m, nil
}

const versionColumns = `id, model_id, name, year_from, year_to, fuel, transmission, body_type, engine_cc, horsepower, eurotax_code`

func scanVersion(row rowScanner) (*models.VehicleVersion, error) {
	v := &models.VehicleVersion{}
	if err := row.Scan(&v.ID, &v.ModelID, &v.Name, &v.YearFrom, &v.YearTo, &v.Fuel, &v.Transmission,
		&v.BodyType, &v.EngineCC, &v.Horsepower, &v.EurotaxCode); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *store) GetVehicleVersion(ctx context.Context, id int64) (*models.VehicleVersion, error) {
	return scanVersion(s.queryRow(ctx, `SELECT `+versionColumns+` FROM vehicle_versions WHERE id = ?`, id))
}

func (s *store) ListVehicleBrands(ctx context.Context) ([]models.VehicleBrand, error) {
	rows, err := s.query(ctx, `SELECT id, name, slug FROM vehicle_brands ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.VehicleBrand
	for rows.Next() {
		var b models.VehicleBrand
		if err := rows.Scan(&b.ID, &b.Name, &b.Slug); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *store) ListVehicleModels(ctx context.Context, brandID int64) ([]models.VehicleModel, error) {
	rows, err := s.query(ctx,
		`SELECT id, brand_id, name, slug FROM vehicle_models WHERE brand_id = ? ORDER BY name, id`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.VehicleModel
	for rows.Next() {
		var m models.VehicleModel
		if err := rows.Scan(&m.ID, &m.BrandID, &m.Name, &m.Slug); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *store) ListVehicleVersions(ctx context.Context, modelID int64) ([]models.VehicleVersion, error) {
	rows, err := s.query(ctx,
		`SELECT `+versionColumns+` FROM vehicle_versions WHERE model_id = ? ORDER BY year_from DESC, name, id`, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.VehicleVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
