package renderer

import (
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// SoftContext is a software rasterizer implementing Context. It renders
// into an in-memory RGBA frame and records the state it was given, which
// makes it the backend for headless output and for tests.
type SoftContext struct {
	frame *image.RGBA
	depth []float32

	enabled   map[Capability]bool
	blendSrc  BlendFactor
	blendDst  BlendFactor
	depthFunc DepthFunc
	clear     [4]float32
	viewport  [4]int
	bound     uint32

	textures  int
	drawCalls int
}

func NewSoftContext(w, h int) *SoftContext {
	c := &SoftContext{
		enabled:   make(map[Capability]bool),
		blendSrc:  BlendOne,
		blendDst:  BlendZero,
		depthFunc: DepthLess,
	}
	c.Resize(w, h)
	return c
}

// Resize reallocates the frame; its contents are discarded.
func (c *SoftContext) Resize(w, h int) {
	w, h = max(w, 0), max(h, 0)
	c.frame = image.NewRGBA(image.Rect(0, 0, w, h))
	c.depth = make([]float32, w*h)
	for i := range c.depth {
		c.depth[i] = 1
	}
}

// Frame is the rendered image, premultiplied.
func (c *SoftContext) Frame() *image.RGBA { return c.frame }

func (c *SoftContext) Enabled(k Capability) bool { return c.enabled[k] }

func (c *SoftContext) Blend() (src, dst BlendFactor) { return c.blendSrc, c.blendDst }

func (c *SoftContext) Depth() DepthFunc { return c.depthFunc }

func (c *SoftContext) ClearValue() [4]float32 { return c.clear }

func (c *SoftContext) ViewportRect() [4]int { return c.viewport }

// LiveTextures counts textures created and not yet deleted.
func (c *SoftContext) LiveTextures() int { return c.textures }

func (c *SoftContext) DrawCalls() int { return c.drawCalls }

func (c *SoftContext) Enable(k Capability) {
	c.enabled[k] = true
}

func (c *SoftContext) BlendFunc(src, dst BlendFactor) {
	c.blendSrc, c.blendDst = src, dst
}

func (c *SoftContext) DepthFunc(f DepthFunc) {
	c.depthFunc = f
}

func (c *SoftContext) ClearColor(r, g, b, a float32) {
	c.clear = [4]float32{r, g, b, a}
}

func (c *SoftContext) Clear() {
	px := [4]uint8{unit(c.clear[0]), unit(c.clear[1]), unit(c.clear[2]), unit(c.clear[3])}
	for i := 0; i < len(c.frame.Pix); i += 4 {
		copy(c.frame.Pix[i:i+4], px[:])
	}
	for i := range c.depth {
		c.depth[i] = 1
	}
}

func (c *SoftContext) Viewport(x, y, w, h int) {
	c.viewport = [4]int{x, y, w, h}
}

func (c *SoftContext) FramebufferBinding() uint32 { return c.bound }

func (c *SoftContext) BindFramebuffer(fb uint32) { c.bound = fb }

type softTexture struct {
	ctx     *SoftContext
	levels  []*image.RGBA
	params  TextureParams
	deleted bool
}

func (t *softTexture) Size() (int, int) {
	b := t.levels[0].Bounds()
	return b.Dx(), b.Dy()
}

func (t *softTexture) Delete() {
	if t.deleted {
		return
	}
	t.deleted = true
	t.ctx.textures--
}

func (c *SoftContext) CreateTexture(img *image.RGBA, p TextureParams) (Texture, error) {
	t := &softTexture{ctx: c, params: p, levels: []*image.RGBA{img}}
	if p.Mipmaps {
		t.levels = mipChain(img)
	}
	c.textures++
	return t, nil
}

type softMesh struct {
	uvs     []mgl32.Vec2
	indices []uint32
	pos     []mgl32.Vec2
}

func (m *softMesh) SetPositions(pos []mgl32.Vec2) {
	m.pos = append(m.pos[:0], pos...)
}

func (m *softMesh) Delete() {}

func (c *SoftContext) CreateMesh(uvs []mgl32.Vec2, indices []uint32) (Mesh, error) {
	return &softMesh{uvs: uvs, indices: indices}, nil
}

// screenVertex is a vertex after viewport mapping, y down.
type screenVertex struct {
	x, y, z float64
	u, v    float64
}

func (c *SoftContext) Draw(mesh Mesh, tex Texture, mvp mgl32.Mat4, opacity float32) {
	m, ok := mesh.(*softMesh)
	if !ok {
		return
	}
	var t *softTexture
	if tex != nil {
		t, _ = tex.(*softTexture)
	}
	c.drawCalls++

	vx, vy, vw, vh := c.viewport[0], c.viewport[1], c.viewport[2], c.viewport[3]
	fh := c.frame.Bounds().Dy()
	verts := make([]screenVertex, len(m.pos))
	for i, p := range m.pos {
		clip := mvp.Mul4x1(mgl32.Vec4{p[0], p[1], 0, 1})
		if clip[3] == 0 {
			clip[3] = 1
		}
		nx, ny, nz := clip[0]/clip[3], clip[1]/clip[3], clip[2]/clip[3]
		sv := screenVertex{
			x: float64(vx) + float64(nx+1)/2*float64(vw),
			y: float64(fh) - (float64(vy) + float64(ny+1)/2*float64(vh)),
			z: float64(nz+1) / 2,
		}
		if i < len(m.uvs) {
			sv.u, sv.v = float64(m.uvs[i][0]), float64(m.uvs[i][1])
		}
		verts[i] = sv
	}

	for i := 0; i+2 < len(m.indices); i += 3 {
		a, b, cc := int(m.indices[i]), int(m.indices[i+1]), int(m.indices[i+2])
		if a >= len(verts) || b >= len(verts) || cc >= len(verts) {
			continue
		}
		c.rasterize(verts[a], verts[b], verts[cc], t, float64(opacity))
	}
}

// rasterize fills one triangle with barycentric interpolation.
func (c *SoftContext) rasterize(p0, p1, p2 screenVertex, t *softTexture, opacity float64) {
	w, h := c.frame.Bounds().Dx(), c.frame.Bounds().Dy()

	det := (p1.y-p2.y)*(p0.x-p2.x) + (p2.x-p1.x)*(p0.y-p2.y)
	if det > -1e-12 && det < 1e-12 {
		return
	}
	invDet := 1 / det

	minX := max(int(math.Floor(math.Min(p0.x, math.Min(p1.x, p2.x)))), 0)
	maxX := min(int(math.Ceil(math.Max(p0.x, math.Max(p1.x, p2.x)))), w-1)
	minY := max(int(math.Floor(math.Min(p0.y, math.Min(p1.y, p2.y)))), 0)
	maxY := min(int(math.Ceil(math.Max(p0.y, math.Max(p1.y, p2.y)))), h-1)
	if minX > maxX || minY > maxY {
		return
	}

	lod := 0.0
	if t != nil {
		tw, th := t.Size()
		texArea := math.Abs((p1.u-p0.u)*(p2.v-p0.v)-(p2.u-p0.u)*(p1.v-p0.v)) * float64(tw*th)
		lod = 0.5 * math.Log2(texArea/math.Abs(det))
	}

	dy12, dx21 := p1.y-p2.y, p2.x-p1.x
	dy20, dx02 := p2.y-p0.y, p0.x-p2.x
	depthTest := c.enabled[CapDepthTest]
	blend := c.enabled[CapBlend]

	for sy := minY; sy <= maxY; sy++ {
		py := float64(sy) + 0.5 - p2.y
		for sx := minX; sx <= maxX; sx++ {
			px := float64(sx) + 0.5 - p2.x
			w0 := (dy12*px + dx21*py) * invDet
			w1 := (dy20*px + dx02*py) * invDet
			w2 := 1 - w0 - w1
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}

			di := sy*w + sx
			z := float32(w0*p0.z + w1*p1.z + w2*p2.z)
			if depthTest && !c.depthPasses(z, c.depth[di]) {
				continue
			}

			src := [4]float64{1, 1, 1, 1}
			if t != nil {
				u := w0*p0.u + w1*p1.u + w2*p2.u
				v := w0*p0.v + w1*p1.v + w2*p2.v
				src = t.sample(u, v, lod)
			}
			for k := range src {
				src[k] *= opacity
			}

			o := c.frame.PixOffset(sx, sy)
			pix := c.frame.Pix[o : o+4 : o+4]
			var out [4]float64
			if blend {
				sf := factor(c.blendSrc, src[3])
				df := factor(c.blendDst, src[3])
				for k := 0; k < 4; k++ {
					out[k] = src[k]*sf + float64(pix[k])/255*df
				}
			} else {
				out = src
			}
			for k := 0; k < 4; k++ {
				pix[k] = unit(float32(out[k]))
			}
			if depthTest {
				c.depth[di] = z
			}
		}
	}
}

func (c *SoftContext) depthPasses(z, stored float32) bool {
	switch c.depthFunc {
	case DepthLess:
		return z < stored
	case DepthLEqual:
		return z <= stored
	}
	return true
}

func factor(f BlendFactor, srcAlpha float64) float64 {
	switch f {
	case BlendOne:
		return 1
	case BlendSrcAlpha:
		return srcAlpha
	case BlendOneMinusSrcAlpha:
		return 1 - srcAlpha
	}
	return 0
}

// sample filters the texture at (u, v) for the given level of detail.
func (t *softTexture) sample(u, v, lod float64) [4]float64 {
	linearMag := t.params.MagFilter != FilterNearest
	if lod <= 0 || t.params.MinFilter != FilterLinearMipmapLinear || len(t.levels) == 1 {
		linear := linearMag
		if lod > 0 {
			linear = t.params.MinFilter != FilterNearest
		}
		return sampleLevel(t.levels[0], u, v, t.params.Wrap, linear)
	}

	top := float64(len(t.levels) - 1)
	lod = math.Min(lod, top)
	lo := int(lod)
	hi := min(lo+1, len(t.levels)-1)
	f := lod - float64(lo)
	a := sampleLevel(t.levels[lo], u, v, t.params.Wrap, true)
	b := sampleLevel(t.levels[hi], u, v, t.params.Wrap, true)
	var out [4]float64
	for k := range out {
		out[k] = a[k]*(1-f) + b[k]*f
	}
	return out
}

func sampleLevel(img *image.RGBA, u, v float64, wrap Wrap, linear bool) [4]float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	u, v = wrapCoord(u, wrap), wrapCoord(v, wrap)

	fx := u*float64(w) - 0.5
	fy := v*float64(h) - 0.5
	if !linear {
		return texel(img, int(math.Floor(fx+0.5)), int(math.Floor(fy+0.5)), wrap)
	}

	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	dx, dy := fx-float64(x0), fy-float64(y0)
	t00 := texel(img, x0, y0, wrap)
	t10 := texel(img, x0+1, y0, wrap)
	t01 := texel(img, x0, y0+1, wrap)
	t11 := texel(img, x0+1, y0+1, wrap)

	var out [4]float64
	for k := range out {
		out[k] = t00[k]*(1-dx)*(1-dy) + t10[k]*dx*(1-dy) + t01[k]*(1-dx)*dy + t11[k]*dx*dy
	}
	return out
}

func texel(img *image.RGBA, x, y int, wrap Wrap) [4]float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if wrap == WrapRepeat {
		x, y = ((x%w)+w)%w, ((y%h)+h)%h
	} else {
		x, y = min(max(x, 0), w-1), min(max(y, 0), h-1)
	}
	o := img.PixOffset(x, y)
	p := img.Pix[o : o+4 : o+4]
	return [4]float64{float64(p[0]) / 255, float64(p[1]) / 255, float64(p[2]) / 255, float64(p[3]) / 255}
}

func wrapCoord(c float64, wrap Wrap) float64 {
	if wrap == WrapRepeat {
		return c - math.Floor(c)
	}
	return math.Min(math.Max(c, 0), 1)
}

func unit(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
