// Package imaging turns an uploaded photo plus a display-space square crop into the JPEG
// that is stored for the tree.
package imaging

import (
	"errors"
	"image"
	"math"
)

// Unit is the unit a crop rectangle is expressed in.
type Unit string

const (
	UnitPixels  Unit = "px"
	UnitPercent Unit = "%"
)

const (
	// MinPixelRatio and MaxPixelRatio bound the device pixel ratio applied to the output.
	MinPixelRatio = 1.0
	MaxPixelRatio = 4.0

	// MaxEdge caps the output raster so a large crop at a high ratio stays encodable.
	MaxEdge = 4096

	// CenterSquareFraction is the share of the short display side the default crop covers.
	CenterSquareFraction = 0.9
)

var (
	// ErrCropIncomplete is returned when no crop was made or the crop has no area
	ErrCropIncomplete = errors.New("please crop your photo")
)

// Rect is a crop rectangle in display space.
type Rect struct {
	Unit   Unit    `json:"unit"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Size is the size the image was displayed at while cropping.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Request describes one crop-and-encode operation.
type Request struct {
	Crop *Rect
	// Display is the rendered image size the crop refers to. A zero size means the crop is in
	// natural pixels.
	Display    Size
	PixelRatio float64
}

// CenterSquare returns the default crop for an image displayed at w×h: a centred square
// covering 90% of the short side.
func CenterSquare(w, h float64) Rect {
	side := math.Min(w, h) * CenterSquareFraction
	return Rect{
		Unit:   UnitPixels,
		X:      (w - side) / 2,
		Y:      (h - side) / 2,
		Width:  side,
		Height: side,
	}
}

// ClampPixelRatio applies the default of 1 and bounds the ratio to [1, 4].
func ClampPixelRatio(r float64) float64 {
	if math.IsNaN(r) || r < MinPixelRatio {
		return MinPixelRatio
	}
	if r > MaxPixelRatio {
		return MaxPixelRatio
	}
	return r
}

// SourceRect maps the display-space crop onto the source bounds. The result is clamped to the
// image and forced square.
func SourceRect(bounds image.Rectangle, req Request) (image.Rectangle, error) {
	c := req.Crop
	if c == nil || !(c.Width > 0) || !(c.Height > 0) {
		return image.Rectangle{}, ErrCropIncomplete
	}

	naturalW := float64(bounds.Dx())
	naturalH := float64(bounds.Dy())
	displayW, displayH := req.Display.Width, req.Display.Height
	if !(displayW > 0) || !(displayH > 0) {
		displayW, displayH = naturalW, naturalH
	}

	x, y, w, h := c.X, c.Y, c.Width, c.Height
	if c.Unit == UnitPercent {
		x = x / 100 * displayW
		y = y / 100 * displayH
		w = w / 100 * displayW
		h = h / 100 * displayH
	}

	scaleX := naturalW / displayW
	scaleY := naturalH / displayH

	x0 := clampInt(int(math.Floor(x*scaleX)), 0, bounds.Dx())
	y0 := clampInt(int(math.Floor(y*scaleY)), 0, bounds.Dy())
	x1 := clampInt(int(math.Round((x+w)*scaleX)), 0, bounds.Dx())
	y1 := clampInt(int(math.Round((y+h)*scaleY)), 0, bounds.Dy())

	side := min(x1-x0, y1-y0)
	if side <= 0 {
		return image.Rectangle{}, ErrCropIncomplete
	}
	return image.Rect(x0, y0, x0+side, y0+side).Add(bounds.Min), nil
}

// OutputEdge returns the edge length in pixels of the encoded square.
func OutputEdge(side int, pixelRatio float64) int {
	edge := int(math.Floor(float64(side) * ClampPixelRatio(pixelRatio)))
	if edge > MaxEdge {
		return MaxEdge
	}
	if edge < 1 {
		return 1
	}
	return edge
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
