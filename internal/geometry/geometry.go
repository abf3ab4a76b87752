// Package geometry enforces the page-ratio invariants of template fields.
//
// Field positions are stored as fractions of the page size so they render the
// same at any resolution. A field must lie fully inside the unit page and have
// a strictly positive size.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is matched by every validation failure in this package.
var ErrInvalidGeometry = errors.New("invalid geometry")

// epsilon absorbs float rounding of the x+width / y+height sums only. It is a
// few ulps at 1.0, so any real overflow is still rejected.
const epsilon = 1e-15

// RatioScale is the number of decimal places kept for stored ratios; it matches
// the numeric(10,8) columns.
const RatioScale = 8

var ratioUnit = math.Pow10(RatioScale)

// Bounds reported by InvalidGeometryError.
const (
	BoundX      = "x"
	BoundY      = "y"
	BoundWidth  = "width"
	BoundHeight = "height"
	BoundRight  = "x+width"
	BoundBottom = "y+height"
	BoundPage   = "page"
)

// InvalidGeometryError names the violated bound.
type InvalidGeometryError struct {
	Bound string
	Value float64
	Rule  string
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("invalid geometry: %s=%g must satisfy %s", e.Bound, e.Value, e.Rule)
}

func (e *InvalidGeometryError) Is(target error) bool {
	return target == ErrInvalidGeometry
}

// Rect is a field rectangle. Depending on context it holds ratios or pixels.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Validate checks a ratio rectangle against the unit page.
func Validate(x, y, width, height float64) error {
	for _, c := range []struct {
		bound string
		value float64
	}{{BoundX, x}, {BoundY, y}, {BoundWidth, width}, {BoundHeight, height}} {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &InvalidGeometryError{Bound: c.bound, Value: c.value, Rule: "finite number"}
		}
	}

	if x < 0 || x > 1 {
		return &InvalidGeometryError{Bound: BoundX, Value: x, Rule: "0 <= x <= 1"}
	}
	if y < 0 || y > 1 {
		return &InvalidGeometryError{Bound: BoundY, Value: y, Rule: "0 <= y <= 1"}
	}
	if width <= 0 || width > 1 {
		return &InvalidGeometryError{Bound: BoundWidth, Value: width, Rule: "0 < width <= 1"}
	}
	if height <= 0 || height > 1 {
		return &InvalidGeometryError{Bound: BoundHeight, Value: height, Rule: "0 < height <= 1"}
	}
	if x+width > 1+epsilon {
		return &InvalidGeometryError{Bound: BoundRight, Value: x + width, Rule: "x + width <= 1"}
	}
	if y+height > 1+epsilon {
		return &InvalidGeometryError{Bound: BoundBottom, Value: y + height, Rule: "y + height <= 1"}
	}
	return nil
}

// Quantize rounds every ratio to RatioScale decimals, the precision the
// database keeps. Callers validate the quantized rect so what is checked is
// exactly what gets stored.
func Quantize(r Rect) Rect {
	return Rect{
		X:      roundRatio(r.X),
		Y:      roundRatio(r.Y),
		Width:  roundRatio(r.Width),
		Height: roundRatio(r.Height),
	}
}

func roundRatio(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*ratioUnit) / ratioUnit
}

// ValidateRect is Validate for a Rect.
func ValidateRect(r Rect) error {
	return Validate(r.X, r.Y, r.Width, r.Height)
}

// ValidatePage rejects page numbers below 1.
func ValidatePage(page int) error {
	if page < 1 {
		return &InvalidGeometryError{Bound: BoundPage, Value: float64(page), Rule: "page >= 1"}
	}
	return nil
}
