// internal/renderer/pipeline.go
//
// Render pipeline: GL state setup, texture slots, projection and the
// per-frame draw of a deformed model
package renderer

import (
	"errors"
	"fmt"
	"image"

	"github.com/normanking/rigavatar/internal/model"
	"github.com/rs/zerolog"
)

var errReleased = errors.New("pipeline released")

// Options place the model in the view and pick the blend equation.
type Options struct {
	// X and Y offset the model in view units after fitting.
	X float32
	Y float32
	// Scale multiplies the projection scale. Zero means 1.
	Scale float32

	BlendSrc BlendFactor
	BlendDst BlendFactor

	Logger zerolog.Logger
}

// DefaultOptions draws unscaled with straight-alpha blending.
func DefaultOptions() Options {
	return Options{
		Scale:    1,
		BlendSrc: BlendSrcAlpha,
		BlendDst: BlendOneMinusSrcAlpha,
		Logger:   zerolog.Nop(),
	}
}

// Pipeline owns the graphics context of one surface.
type Pipeline struct {
	surface Surface
	ctx     Context
	opts    Options
	log     zerolog.Logger

	model       *model.Model
	framebuffer uint32
	textures    []Texture
	meshes      map[*model.Drawable]Mesh

	modelMatrix *ModelMatrix
	projection  Matrix44
	width       int
	height      int

	released bool
}

// NewPipeline acquires the graphics context of surface. ErrNoContext is
// returned when the surface cannot provide one.
func NewPipeline(surface Surface, opts Options) (*Pipeline, error) {
	if surface == nil {
		return nil, ErrNoContext
	}
	ctx := surface.Context()
	if ctx == nil {
		return nil, ErrNoContext
	}
	if opts.Scale == 0 {
		opts.Scale = 1
	}
	if opts.BlendSrc == BlendZero && opts.BlendDst == BlendZero {
		opts.BlendSrc, opts.BlendDst = BlendSrcAlpha, BlendOneMinusSrcAlpha
	}
	return &Pipeline{
		surface:    surface,
		ctx:        ctx,
		opts:       opts,
		log:        opts.Logger,
		meshes:     make(map[*model.Drawable]Mesh),
		projection: NewMatrix44(),
	}, nil
}

// Setup configures blending and depth, captures the framebuffer the
// surface renders into, and uploads textures to sequential slots. A nil
// image leaves its slot unbound.
func (p *Pipeline) Setup(m *model.Model, textures []*image.RGBA) error {
	if p.released {
		return errReleased
	}

	p.ctx.Enable(CapBlend)
	p.ctx.BlendFunc(p.opts.BlendSrc, p.opts.BlendDst)
	p.ctx.Enable(CapDepthTest)
	p.ctx.DepthFunc(DepthLEqual)
	p.ctx.ClearColor(0, 0, 0, 0)
	p.framebuffer = p.ctx.FramebufferBinding()

	p.releaseTextures()
	p.textures = make([]Texture, len(textures))
	for i, img := range textures {
		if img == nil {
			continue
		}
		t, err := p.ctx.CreateTexture(img, DefaultTextureParams())
		if err != nil {
			p.releaseTextures()
			return fmt.Errorf("texture slot %d: %w", i, err)
		}
		p.textures[i] = t
	}

	p.model = m
	p.Resize()

	p.log.Debug().
		Int("textures", len(textures)).
		Uint32("framebuffer", p.framebuffer).
		Msg("pipeline setup")
	return nil
}

// Resize recomputes the model and projection matrices from the surface's
// current client size.
func (p *Pipeline) Resize() {
	w, h := p.surface.ClientSize()
	p.width, p.height = w, h
	if p.model == nil || w <= 0 || h <= 0 {
		return
	}

	mm := NewModelMatrix(p.model.CanvasWidth(), p.model.CanvasHeight())
	mm.Bottom(0)
	mm.CenterY(-1)
	mm.TranslateY(-1)

	fw, fh := float32(w), float32(h)
	if fh/fw > 1 {
		mm.Scale(1, fw/fh)
	} else {
		mm.Scale(fh/fw, 1)
	}
	mm.TranslateRelative(p.opts.X, p.opts.Y)
	p.modelMatrix = mm

	p.projection.LoadIdentity()
	p.projection.MultiplyByMatrix(&mm.Matrix44)
	p.projection.ScaleRelative(2*p.opts.Scale, 2*p.opts.Scale)
	p.projection.TranslateY(-0.6)
}

// Projection returns the current model-to-clip transform.
func (p *Pipeline) Projection() Matrix44 { return p.projection }

// Size is the client size the projection was computed for.
func (p *Pipeline) Size() (int, int) { return p.width, p.height }

// Clear clears the captured framebuffer to the clear color.
func (p *Pipeline) Clear() {
	if p.released {
		return
	}
	p.ctx.BindFramebuffer(p.framebuffer)
	p.ctx.Clear()
}

// DrawModel draws every visible drawable of m in render order. Drawables
// referencing an unbound texture slot are skipped.
func (p *Pipeline) DrawModel(m *model.Model) error {
	if p.released {
		return errReleased
	}
	if w, h := p.surface.ClientSize(); w != p.width || h != p.height || p.modelMatrix == nil {
		p.Resize()
	}

	p.ctx.Viewport(0, 0, p.width, p.height)
	p.ctx.BindFramebuffer(p.framebuffer)

	mvp := p.projection.Mat4()
	for _, d := range m.Drawables() {
		if !m.Visible(d) {
			continue
		}

		var tex Texture
		if d.Texture >= 0 {
			if d.Texture >= len(p.textures) || p.textures[d.Texture] == nil {
				continue
			}
			tex = p.textures[d.Texture]
		}

		mesh, ok := p.meshes[d]
		if !ok {
			var err error
			mesh, err = p.ctx.CreateMesh(d.UVs, d.Indices)
			if err != nil {
				return fmt.Errorf("drawable %s: %w", d.ID, err)
			}
			p.meshes[d] = mesh
		}
		mesh.SetPositions(d.Positions())
		p.ctx.Draw(mesh, tex, mvp, d.Opacity*m.Opacity())
	}
	return nil
}

// Release frees textures and meshes. Later calls are no-ops.
func (p *Pipeline) Release() {
	if p.released {
		return
	}
	p.released = true
	p.releaseTextures()
	for d, mesh := range p.meshes {
		mesh.Delete()
		delete(p.meshes, d)
	}
}

func (p *Pipeline) releaseTextures() {
	for _, t := range p.textures {
		if t != nil {
			t.Delete()
		}
	}
	p.textures = nil
}
