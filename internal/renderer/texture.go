package renderer

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/ftrvxmtrx/tga"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DecodeTexture decodes a PNG, JPEG, WebP, BMP or TGA image into
// premultiplied RGBA ready for upload.
func DecodeTexture(data []byte) (*image.RGBA, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode texture: %w", err)
	}
	rgba := Premultiply(img)
	if rgba.Bounds().Empty() {
		return nil, fmt.Errorf("decode texture: empty %s image", format)
	}
	return rgba, nil
}

// Premultiply converts img into a tightly packed RGBA image at the origin.
// image.RGBA stores premultiplied color, so drawing onto it does the math.
func Premultiply(img image.Image) *image.RGBA {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// mipChain returns img followed by successively halved levels down to 1x1.
func mipChain(img *image.RGBA) []*image.RGBA {
	levels := []*image.RGBA{img}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for w > 1 || h > 1 {
		w, h = max(w/2, 1), max(h/2, 1)
		next := image.NewRGBA(image.Rect(0, 0, w, h))
		prev := levels[len(levels)-1]
		xdraw.BiLinear.Scale(next, next.Bounds(), prev, prev.Bounds(), xdraw.Src, nil)
		levels = append(levels, next)
	}
	return levels
}
