package service

import (
	"context"
	"errors"
	"strings"

	"github.com/odvcencio/ilanhub/internal/eurotax"
	"github.com/odvcencio/ilanhub/internal/vehicle"
)

// ErrNoReferenceData is returned by Eurotax lookups when no dump is loaded.
var ErrNoReferenceData = errors.New("eurotax reference data not loaded")

type VehicleService struct {
	wizard *vehicle.Wizard
	index  *eurotax.Index
}

// NewVehicleService wires the selector wizard and an optional Eurotax index.
func NewVehicleService(wizard *vehicle.Wizard, index *eurotax.Index) *VehicleService {
	return &VehicleService{wizard: wizard, index: index}
}

func (s *VehicleService) Step(ctx context.Context, sel vehicle.Selection) (*vehicle.StepResult, error) {
	res, err := s.wizard.Step(ctx, sel)
	var selErr *vehicle.SelectionError
	if errors.As(err, &selErr) {
		return nil, invalid(selErr.Field, selErr.Message)
	}
	return res, err
}

func (s *VehicleService) SearchEurotax(query string, limit int) ([]eurotax.Match, error) {
	if s.index == nil {
		return nil, ErrNoReferenceData
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalid("q", "is required")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	matches := s.index.Match(query, limit)
	if matches == nil {
		matches = []eurotax.Match{}
	}
	return matches, nil
}

func (s *VehicleService) Valuation(brand, model string, year int) (*eurotax.Valuation, error) {
	if s.index == nil {
		return nil, ErrNoReferenceData
	}
	if strings.TrimSpace(brand) == "" || strings.TrimSpace(model) == "" {
		return nil, invalid("brand", "brand and model are required")
	}
	v, ok := s.index.Valuation(brand, model, year)
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}
