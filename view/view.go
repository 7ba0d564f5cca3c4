// Package view maps screen-space viewports back into image space through the
// camera transform.
package view

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	ErrInvalidScale     = errors.New("pyramid: invalid camera scale")
	ErrInvalidTransform = errors.New("pyramid: invalid camera transform")
)

// Viewport is a screen-space rectangle.
type Viewport struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Transform is a similarity transform placing image space on screen:
// screen = R(Rotation) * Scale * image + (TX, TY). Rotation is in degrees.
type Transform struct {
	TX       float64
	TY       float64
	Scale    float64
	Rotation float64
}

// Identity returns the transform mapping image pixels 1:1 onto the screen.
func Identity() Transform {
	return Transform{Scale: 1}
}

// Validate rejects transforms that cannot be inverted.
func (t Transform) Validate() error {
	if !(t.Scale > 0) || math.IsInf(t.Scale, 0) || math.IsInf(1/t.Scale, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidScale, t.Scale)
	}
	for _, v := range []float64{t.TX, t.TY, t.Rotation} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %+v", ErrInvalidTransform, t)
		}
	}
	return nil
}

func (t Transform) sincos() (float64, float64) {
	return math.Sincos(t.Rotation * math.Pi / 180)
}

// Apply maps an image-space point to screen space.
func (t Transform) Apply(p orb.Point) orb.Point {
	sin, cos := t.sincos()
	x, y := p[0]*t.Scale, p[1]*t.Scale
	return orb.Point{x*cos - y*sin + t.TX, x*sin + y*cos + t.TY}
}

// Inverse returns the transform mapping screen space back to image space.
func (t Transform) Inverse() (Transform, error) {
	if err := t.Validate(); err != nil {
		return Transform{}, err
	}
	inv := Transform{Scale: 1 / t.Scale, Rotation: -t.Rotation}
	// translation is -R(-a)/z * t
	origin := inv.Apply(orb.Point{t.TX, t.TY})
	inv.TX, inv.TY = -origin[0], -origin[1]
	return inv, nil
}

// Project returns the smallest image-space box containing the viewport
// after inverting the transform. All four corners are mapped because a
// rotated viewport is not axis-aligned in image space.
func Project(viewport Viewport, transform Transform) (orb.Bound, error) {
	inv, err := transform.Inverse()
	if err != nil {
		return orb.Bound{}, err
	}
	x0, y0 := viewport.X, viewport.Y
	x1, y1 := viewport.X+viewport.Width, viewport.Y+viewport.Height

	first := inv.Apply(orb.Point{x0, y0})
	bound := orb.Bound{Min: first, Max: first}
	for _, corner := range []orb.Point{{x1, y0}, {x1, y1}, {x0, y1}} {
		bound = bound.Extend(inv.Apply(corner))
	}
	return bound, nil
}
