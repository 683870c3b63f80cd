// Package geometry validates field placement in page-relative coordinates.
//
// Callers measure positions in the unit space of the page render they were
// working against. The package normalizes those units into 0..1 fractions of
// page width/height before they are stored, so stored placement is
// independent of render scale.
package geometry

import (
	"fmt"

	"github.com/and161185/signdesk/internal/errs"
	"github.com/and161185/signdesk/internal/model"
)

// Default field size in page units (matches the placement surface defaults).
const (
	DefaultFieldWidth  = 200.0
	DefaultFieldHeight = 60.0
)

// Normalize converts a unit-space rectangle measured against the given page
// size into a fractional Rect. Fails with ErrInvalidGeometry if any part of
// the rectangle falls outside [0,pageWidth] x [0,pageHeight], or if the page
// size or rectangle dimensions are non-positive.
func Normalize(page model.PageSize, x, y, w, h float64) (model.Rect, error) {
	if page.Width <= 0 || page.Height <= 0 {
		return model.Rect{}, fmt.Errorf("page size %gx%g: %w", page.Width, page.Height, errs.ErrInvalidGeometry)
	}
	if w <= 0 || h <= 0 {
		return model.Rect{}, fmt.Errorf("field size %gx%g: %w", w, h, errs.ErrInvalidGeometry)
	}
	if x < 0 || y < 0 || x+w > page.Width || y+h > page.Height {
		return model.Rect{}, fmt.Errorf("rect (%g,%g %gx%g) outside page %gx%g: %w",
			x, y, w, h, page.Width, page.Height, errs.ErrInvalidGeometry)
	}
	return model.Rect{
		X: x / page.Width,
		Y: y / page.Height,
		W: w / page.Width,
		H: h / page.Height,
	}, nil
}

// Move recomputes the fractional position of an existing rect from new
// unit-space coordinates, preserving its stored fractional size.
func Move(page model.PageSize, r model.Rect, newX, newY float64) (model.Rect, error) {
	w := r.W * page.Width
	h := r.H * page.Height
	moved, err := Normalize(page, newX, newY, w, h)
	if err != nil {
		return model.Rect{}, err
	}
	// Keep the exact stored size; only position changes.
	moved.W, moved.H = r.W, r.H
	return moved, nil
}

// Denormalize maps a fractional Rect back into the unit space of the given
// page size, for callers that need concrete coordinates (e.g., persistence
// of historical signature positions).
func Denormalize(page model.PageSize, r model.Rect) (x, y, w, h float64) {
	return r.X * page.Width, r.Y * page.Height, r.W * page.Width, r.H * page.Height
}
