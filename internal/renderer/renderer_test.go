package renderer

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/rigavatar/internal/model"
	"github.com/normanking/rigavatar/internal/model/modeltest"
)

type bareSurface struct{}

func (bareSurface) ClientSize() (int, int) { return 100, 100 }
func (bareSurface) Context() Context       { return nil }

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func newModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.Decode(modeltest.Triangle(modeltest.Rig(), "ParamMouthOpenY", "ParamAngleX@30"))
	require.NoError(t, err)
	return m
}

func setupCanvas(t *testing.T, w, h int, opts Options, textures ...*image.RGBA) (*Canvas, *Pipeline, *model.Model) {
	t.Helper()
	canvas := NewCanvas(w, h)
	p, err := NewPipeline(canvas, opts)
	require.NoError(t, err)
	m := newModel(t)
	require.NoError(t, p.Setup(m, textures))
	return canvas, p, m
}

func TestNewPipeline_NoContext(t *testing.T) {
	_, err := NewPipeline(bareSurface{}, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoContext)

	_, err = NewPipeline(nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoContext)
}

func TestPipeline_SetupState(t *testing.T) {
	canvas := NewCanvas(1280, 720)
	canvas.Soft().BindFramebuffer(7)

	p, err := NewPipeline(canvas, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, p.Setup(newModel(t), []*image.RGBA{solid(4, 4, color.RGBA{255, 0, 0, 255}), nil}))

	soft := canvas.Soft()
	assert.True(t, soft.Enabled(CapBlend))
	assert.True(t, soft.Enabled(CapDepthTest))
	src, dst := soft.Blend()
	assert.Equal(t, BlendSrcAlpha, src)
	assert.Equal(t, BlendOneMinusSrcAlpha, dst)
	assert.Equal(t, DepthLEqual, soft.Depth())
	assert.Equal(t, [4]float32{}, soft.ClearValue())
	assert.Equal(t, 1, soft.LiveTextures())

	// The framebuffer bound at setup is rebound for every draw.
	soft.BindFramebuffer(0)
	require.NoError(t, p.DrawModel(newModel(t)))
	assert.Equal(t, uint32(7), soft.FramebufferBinding())
}

func TestPipeline_Resize(t *testing.T) {
	canvas, p, m := setupCanvas(t, 1280, 720, DefaultOptions())

	require.NoError(t, p.DrawModel(m))
	assert.Equal(t, [4]int{0, 0, 1280, 720}, canvas.Soft().ViewportRect())

	canvas.SetClientSize(800, 800)
	p.Resize()
	w, h := p.Size()
	assert.Equal(t, 800, w)
	assert.Equal(t, 800, h)

	require.NoError(t, p.DrawModel(m))
	assert.Equal(t, [4]int{0, 0, 800, 800}, canvas.Soft().ViewportRect())

	// A size change without a resize signal is picked up before the draw.
	canvas.SetClientSize(640, 480)
	require.NoError(t, p.DrawModel(m))
	assert.Equal(t, [4]int{0, 0, 640, 480}, canvas.Soft().ViewportRect())
}

func TestPipeline_Projection(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		opts   Options
		scaleX float32
		scaleY float32
		origin mgl32.Vec2
	}{
		{"square", 800, 800, DefaultOptions(), 2, 2, mgl32.Vec2{0, -0.6}},
		{"landscape narrows x", 1280, 720, DefaultOptions(), 1.125, 2, mgl32.Vec2{0, -0.6}},
		{"portrait flattens y", 400, 800, DefaultOptions(), 2, 1, mgl32.Vec2{0, -0.6}},
		{"scale option", 800, 800, Options{Scale: 0.5}, 1, 1, mgl32.Vec2{0, -0.6}},
		{"x offset", 800, 800, Options{X: 0.25}, 2, 2, mgl32.Vec2{0.25, -0.6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, p, _ := setupCanvas(t, tt.w, tt.h, tt.opts)
			proj := p.Projection()

			assert.InDelta(t, tt.scaleX, proj.ScaleX(), 1e-5)
			assert.InDelta(t, tt.scaleY, proj.ScaleY(), 1e-5)
			got := proj.Transform(mgl32.Vec2{0, 0})
			assert.InDelta(t, tt.origin[0], got[0], 1e-5)
			assert.InDelta(t, tt.origin[1], got[1], 1e-5)
		})
	}
}

func TestPipeline_DrawModel(t *testing.T) {
	canvas, p, m := setupCanvas(t, 64, 64, DefaultOptions(), solid(4, 4, color.RGBA{255, 0, 0, 255}))

	p.Clear()
	require.NoError(t, p.DrawModel(m))
	assert.Equal(t, 1, canvas.Soft().DrawCalls())

	img := canvas.Image()
	center := img.RGBAAt(32, 32)
	assert.Greater(t, center.R, uint8(0))
	assert.Zero(t, center.G)
	assert.Zero(t, center.B)

	// The triangle's base sits at y=-0.6 in clip space.
	assert.Equal(t, color.RGBA{}, img.RGBAAt(0, 63))
}

func TestPipeline_DrawModel_SkipsUnboundAndHidden(t *testing.T) {
	canvas, p, m := setupCanvas(t, 64, 64, DefaultOptions(), nil)
	require.NoError(t, p.DrawModel(m))
	assert.Zero(t, canvas.Soft().DrawCalls())

	canvas, p, m = setupCanvas(t, 64, 64, DefaultOptions(), solid(1, 1, color.RGBA{255, 255, 255, 255}))
	m.SetOpacity(0)
	require.NoError(t, p.DrawModel(m))
	assert.Zero(t, canvas.Soft().DrawCalls())
}

func TestPipeline_Release(t *testing.T) {
	canvas, p, m := setupCanvas(t, 32, 32, DefaultOptions(), solid(2, 2, color.RGBA{0, 255, 0, 255}))
	require.NoError(t, p.DrawModel(m))

	p.Release()
	p.Release()
	assert.Zero(t, canvas.Soft().LiveTextures())
	assert.Error(t, p.DrawModel(m))
	assert.Error(t, p.Setup(m, nil))
}

func TestMatrix44(t *testing.T) {
	m := NewMatrix44()
	m.Scale(2, 3)
	m.Scale(1, 1)
	assert.Equal(t, float32(1), m.ScaleX())

	m.Scale(2, 2)
	m.ScaleRelative(3, 3)
	assert.Equal(t, float32(6), m.ScaleX())

	m.LoadIdentity()
	m.Scale(2, 2)
	m.TranslateRelative(1, 0)
	assert.Equal(t, float32(2), m.TranslationX())

	m.Translate(5, 6)
	assert.Equal(t, float32(5), m.TranslationX())
	assert.Equal(t, float32(6), m.TranslationY())

	other := NewMatrix44()
	other.Translate(1, 1)
	m.LoadIdentity()
	m.Scale(2, 2)
	m.MultiplyByMatrix(&other)
	assert.Equal(t, mgl32.Vec2{2, 2}, m.Transform(mgl32.Vec2{0, 0}))
}

func TestModelMatrix(t *testing.T) {
	mm := NewModelMatrix(4, 8)
	assert.Equal(t, float32(0.25), mm.ScaleY())

	mm.Bottom(0)
	assert.Equal(t, float32(-2), mm.TranslationY())
	mm.CenterY(0)
	assert.Equal(t, float32(-1), mm.TranslationY())
	mm.CenterX(0)
	assert.Equal(t, float32(-0.5), mm.TranslationX())

	mm.SetWidth(2)
	assert.Equal(t, float32(0.5), mm.ScaleX())
}

func TestDecodeTexture(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 128})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, err := DecodeTexture(buf.Bytes())
	require.NoError(t, err)
	px := img.RGBAAt(0, 0)
	assert.Equal(t, uint8(128), px.A)
	assert.InDelta(t, 128, int(px.R), 1)

	_, err = DecodeTexture([]byte("not an image"))
	assert.Error(t, err)
}

func TestMipChain(t *testing.T) {
	levels := mipChain(solid(4, 2, color.RGBA{10, 20, 30, 255}))
	require.Len(t, levels, 3)
	assert.Equal(t, image.Rect(0, 0, 2, 1), levels[1].Bounds())
	assert.Equal(t, image.Rect(0, 0, 1, 1), levels[2].Bounds())
	px := levels[2].RGBAAt(0, 0)
	assert.Equal(t, uint8(255), px.A)
	assert.InDelta(t, 20, int(px.G), 1)
}
