// internal/renderer/context.go
//
// Graphics context abstraction shared by the OpenGL and software backends
package renderer

import (
	"errors"
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrNoContext is returned when a surface cannot provide a graphics context.
var ErrNoContext = errors.New("surface has no usable graphics context")

type Capability int

const (
	CapBlend Capability = iota
	CapDepthTest
)

type BlendFactor int

const (
	BlendZero BlendFactor = iota
	BlendOne
	BlendSrcAlpha
	BlendOneMinusSrcAlpha
)

type DepthFunc int

const (
	DepthLess DepthFunc = iota
	DepthLEqual
	DepthAlways
)

type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
	FilterLinearMipmapLinear
)

type Wrap int

const (
	WrapClampToEdge Wrap = iota
	WrapRepeat
)

// TextureParams are the sampling parameters applied at upload.
type TextureParams struct {
	MinFilter Filter
	MagFilter Filter
	Wrap      Wrap
	Mipmaps   bool
}

// DefaultTextureParams returns trilinear filtering with edge clamping.
func DefaultTextureParams() TextureParams {
	return TextureParams{
		MinFilter: FilterLinearMipmapLinear,
		MagFilter: FilterLinear,
		Wrap:      WrapClampToEdge,
		Mipmaps:   true,
	}
}

// Texture is an uploaded image.
type Texture interface {
	Size() (w, h int)
	Delete()
}

// Mesh is an uploaded drawable. UVs and indices are fixed at creation;
// positions are streamed every frame.
type Mesh interface {
	SetPositions(pos []mgl32.Vec2)
	Delete()
}

// Context is the part of a graphics API the pipeline drives.
type Context interface {
	Enable(c Capability)
	BlendFunc(src, dst BlendFactor)
	DepthFunc(f DepthFunc)
	ClearColor(r, g, b, a float32)
	Clear()
	Viewport(x, y, w, h int)

	// FramebufferBinding reports the framebuffer currently bound.
	FramebufferBinding() uint32
	BindFramebuffer(fb uint32)

	// CreateTexture uploads img, whose pixels are premultiplied by alpha.
	CreateTexture(img *image.RGBA, p TextureParams) (Texture, error)
	CreateMesh(uvs []mgl32.Vec2, indices []uint32) (Mesh, error)
	Draw(m Mesh, t Texture, mvp mgl32.Mat4, opacity float32)
}

// Surface is anything the avatar can be drawn onto.
type Surface interface {
	// ClientSize is the drawable area in pixels.
	ClientSize() (w, h int)
	// Context returns the surface's graphics context, or nil when it has none.
	Context() Context
}
