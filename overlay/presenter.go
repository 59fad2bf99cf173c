// Package overlay positions and styles the mic icon in the VR compositor.
package overlay

import "math"

// Handle identifies an overlay created by a Presenter.
type Handle uint64

// Matrix34 is a compositor pose: three rows of rotation plus translation in
// the last column.
type Matrix34 [3][4]float32

// Color is a linear RGB tint with channels in [0,1].
type Color struct {
	R, G, B float32
}

var White = Color{1, 1, 1}

const (
	SortOrderDefault uint32 = 0
	SortOrderTop     uint32 = math.MaxUint32
)

// Presenter is the compositor's overlay API. Implementations return an
// error for any non-success result; callers log it and carry on.
type Presenter interface {
	CreateOverlay(key, name string) (Handle, error)
	// SetTransform pins the overlay relative to the headset.
	SetTransform(h Handle, m Matrix34) error
	SetTexture(h Handle, path string) error
	SetColor(h Handle, c Color) error
	SetWidth(h Handle, meters float64) error
	SetAlpha(h Handle, alpha float64) error
	SetSortOrder(h Handle, order uint32) error
	Show(h Handle) error
}
