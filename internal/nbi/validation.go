package nbi

import (
	"errors"
	"fmt"

	"github.com/citypulse/dispatch-twin/model"
)

var (
	ErrInvalidPoint    = errors.New("invalid coordinate")
	ErrInvalidCategory = errors.New("invalid fleet category")
	ErrInvalidRequest  = errors.New("invalid request")
)

// validatePoint performs structural validation for a request coordinate.
// Bad input is rejected here, at the boundary; engine state is never
// touched with an invalid point.
func validatePoint(p model.Point) error {
	if !p.Valid() {
		return fmt.Errorf("%w: lat=%v lng=%v out of range", ErrInvalidPoint, p.Lat, p.Lng)
	}
	return nil
}

// parseCategory maps a wire category name to the closed enum.
func parseCategory(s string) (model.FleetCategory, error) {
	cat, err := model.ParseFleetCategory(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCategory, err)
	}
	return cat, nil
}

// parseCategories maps the neededTypes list, preserving request order
// (duplicates are meaningful: "ambulance, ambulance" asks for two).
func parseCategories(names []string) ([]model.FleetCategory, error) {
	out := make([]model.FleetCategory, 0, len(names))
	for _, name := range names {
		cat, err := parseCategory(name)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, nil
}
