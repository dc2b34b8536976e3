package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / max(w, 1)), G: uint8(y * 255 / max(h, 1)), B: 128, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSourceRect(t *testing.T) {
	bounds := image.Rect(0, 0, 1000, 500)

	tests := []struct {
		name string
		req  Request
		want image.Rectangle
	}{
		{
			name: "pixels at natural size",
			req:  Request{Crop: &Rect{Unit: UnitPixels, X: 100, Y: 50, Width: 200, Height: 200}},
			want: image.Rect(100, 50, 300, 250),
		},
		{
			name: "display scaled down by half",
			req: Request{
				Crop:    &Rect{Unit: UnitPixels, X: 50, Y: 25, Width: 100, Height: 100},
				Display: Size{Width: 500, Height: 250},
			},
			want: image.Rect(100, 50, 300, 250),
		},
		{
			name: "percent of display",
			req: Request{
				Crop:    &Rect{Unit: UnitPercent, X: 10, Y: 10, Width: 20, Height: 40},
				Display: Size{Width: 500, Height: 250},
			},
			want: image.Rect(100, 50, 300, 250),
		},
		{
			name: "non square forced square",
			req:  Request{Crop: &Rect{Unit: UnitPixels, X: 0, Y: 0, Width: 300, Height: 200}},
			want: image.Rect(0, 0, 200, 200),
		},
		{
			name: "clamped to bounds",
			req:  Request{Crop: &Rect{Unit: UnitPixels, X: 900, Y: 400, Width: 300, Height: 300}},
			want: image.Rect(900, 400, 1000, 500),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SourceRect(bounds, tt.req)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSourceRect_Incomplete(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)

	for _, req := range []Request{
		{},
		{Crop: &Rect{Unit: UnitPixels, Width: 0, Height: 10}},
		{Crop: &Rect{Unit: UnitPixels, Width: 10, Height: -1}},
		{Crop: &Rect{Unit: UnitPixels, X: 200, Y: 200, Width: 10, Height: 10}},
	} {
		_, err := SourceRect(bounds, req)
		require.ErrorIs(t, err, ErrCropIncomplete)
	}
}

func TestCenterSquare(t *testing.T) {
	c := CenterSquare(400, 200)
	require.Equal(t, UnitPixels, c.Unit)
	require.InDelta(t, 180, c.Width, 1e-9)
	require.InDelta(t, 180, c.Height, 1e-9)
	require.InDelta(t, 110, c.X, 1e-9)
	require.InDelta(t, 10, c.Y, 1e-9)
}

func TestClampPixelRatio(t *testing.T) {
	require.Equal(t, 1.0, ClampPixelRatio(0))
	require.Equal(t, 1.0, ClampPixelRatio(0.5))
	require.Equal(t, 2.0, ClampPixelRatio(2))
	require.Equal(t, 4.0, ClampPixelRatio(9))
}

func TestOutputEdge(t *testing.T) {
	require.Equal(t, 200, OutputEdge(200, 1))
	require.Equal(t, 300, OutputEdge(200, 1.5))
	require.Equal(t, 201, OutputEdge(134, 1.5))
	require.Equal(t, MaxEdge, OutputEdge(3000, 3))
}

func TestProcess_EncodesSquareJPEG(t *testing.T) {
	data := pngBytes(t, gradient(120, 80))
	req := Request{
		Crop:       &Rect{Unit: UnitPixels, X: 10, Y: 10, Width: 40, Height: 40},
		Display:    Size{Width: 60, Height: 40},
		PixelRatio: 2,
	}

	out, err := Process(data, req)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 160, cfg.Width)
	require.Equal(t, 160, cfg.Height)
}

func TestProcess_TransparentBecomesWhite(t *testing.T) {
	data := pngBytes(t, image.NewNRGBA(image.Rect(0, 0, 20, 20)))

	out, err := Process(data, Request{Crop: &Rect{Unit: UnitPixels, Width: 20, Height: 20}})
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, g, b, _ := img.At(10, 10).RGBA()
	require.Greater(t, r>>8, uint32(240))
	require.Greater(t, g>>8, uint32(240))
	require.Greater(t, b>>8, uint32(240))
}

func TestProcess_Errors(t *testing.T) {
	_, err := Process([]byte("not an image"), Request{Crop: &Rect{Unit: UnitPixels, Width: 1, Height: 1}})
	require.ErrorIs(t, err, ErrEncodeFailed)

	_, err = Process(pngBytes(t, gradient(10, 10)), Request{})
	require.ErrorIs(t, err, ErrCropIncomplete)
}
