package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// JPEGQuality is the quality every stored photo is encoded with.
	JPEGQuality = 90

	// MaxSourcePixels rejects images whose decoded raster would not fit comfortably in memory.
	MaxSourcePixels = 50_000_000

	ContentType = "image/jpeg"
)

var (
	// ErrEncodeFailed is returned when the upload cannot be decoded or the crop cannot be encoded
	ErrEncodeFailed = errors.New("failed to process image")
)

// Decode reads a JPEG, PNG, GIF or WebP image.
func Decode(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxSourcePixels {
		return nil, fmt.Errorf("%w: image is %dx%d", ErrEncodeFailed, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return img, nil
}

// Render draws the cropped square of src into a new raster of OutputEdge pixels per side.
// Transparent sources are composited onto white.
func Render(src image.Image, req Request) (*image.RGBA, error) {
	rect, err := SourceRect(src.Bounds(), req)
	if err != nil {
		return nil, err
	}

	edge := OutputEdge(rect.Dx(), req.PixelRatio)
	dst := image.NewRGBA(image.Rect(0, 0, edge, edge))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, rect, xdraw.Over, nil)
	return dst, nil
}

// Encode crops src and returns the JPEG bytes.
func Encode(src image.Image, req Request) ([]byte, error) {
	img, err := Render(src, req)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return buf.Bytes(), nil
}

// Process decodes data and encodes the requested crop.
func Process(data []byte, req Request) ([]byte, error) {
	if req.Crop == nil {
		return nil, ErrCropIncomplete
	}
	src, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Encode(src, req)
}
