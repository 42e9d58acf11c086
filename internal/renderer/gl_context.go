package renderer

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"
)

// GLContext drives OpenGL 4.1 core. It must be created and used on the
// thread that owns the current GL context, after gl.Init.
type GLContext struct {
	shader  *Shader
	watcher *ShaderWatcher
	log     zerolog.Logger
}

// NewGLContext compiles the drawable shader. When shaderDir holds
// drawable.vert and drawable.frag those are used and watched for edits;
// otherwise the built-in sources are compiled.
func NewGLContext(shaderDir string, log zerolog.Logger) (*GLContext, error) {
	c := &GLContext{log: log}

	if shaderDir != "" {
		vert := filepath.Join(shaderDir, "drawable.vert")
		frag := filepath.Join(shaderDir, "drawable.frag")
		shader, err := NewShaderFromFiles(vert, frag)
		if err == nil {
			c.shader = shader
			if w, err := NewShaderWatcher(log); err == nil {
				if err := w.Watch(shader); err != nil {
					log.Warn().Err(err).Msg("shader watch failed")
				}
				c.watcher = w
			}
		} else {
			log.Warn().Err(err).Str("dir", shaderDir).Msg("shader files unavailable, using built-in")
		}
	}

	if c.shader == nil {
		shader, err := NewShaderFromSource(drawableVertSrc, drawableFragSrc)
		if err != nil {
			return nil, fmt.Errorf("drawable shader: %w", err)
		}
		c.shader = shader
	}
	return c, nil
}

// ApplyShaderReloads picks up shader edits queued by the watcher.
func (c *GLContext) ApplyShaderReloads() {
	if c.watcher != nil {
		c.watcher.ApplyPending()
	}
}

func (c *GLContext) Release() {
	if c.watcher != nil {
		c.watcher.Close()
	}
	c.shader.Delete()
}

func (c *GLContext) Enable(k Capability) {
	switch k {
	case CapBlend:
		gl.Enable(gl.BLEND)
	case CapDepthTest:
		gl.Enable(gl.DEPTH_TEST)
	}
}

func glBlend(f BlendFactor) uint32 {
	switch f {
	case BlendOne:
		return gl.ONE
	case BlendSrcAlpha:
		return gl.SRC_ALPHA
	case BlendOneMinusSrcAlpha:
		return gl.ONE_MINUS_SRC_ALPHA
	}
	return gl.ZERO
}

func (c *GLContext) BlendFunc(src, dst BlendFactor) {
	gl.BlendFunc(glBlend(src), glBlend(dst))
}

func (c *GLContext) DepthFunc(f DepthFunc) {
	switch f {
	case DepthLess:
		gl.DepthFunc(gl.LESS)
	case DepthLEqual:
		gl.DepthFunc(gl.LEQUAL)
	default:
		gl.DepthFunc(gl.ALWAYS)
	}
}

func (c *GLContext) ClearColor(r, g, b, a float32) {
	gl.ClearColor(r, g, b, a)
}

func (c *GLContext) Clear() {
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

func (c *GLContext) Viewport(x, y, w, h int) {
	gl.Viewport(int32(x), int32(y), int32(w), int32(h))
}

func (c *GLContext) FramebufferBinding() uint32 {
	var fb int32
	gl.GetIntegerv(gl.FRAMEBUFFER_BINDING, &fb)
	return uint32(fb)
}

func (c *GLContext) BindFramebuffer(fb uint32) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, fb)
}

type glTexture struct {
	id   uint32
	w, h int
}

func (t *glTexture) Size() (int, int) { return t.w, t.h }

func (t *glTexture) Delete() {
	if t.id != 0 {
		gl.DeleteTextures(1, &t.id)
		t.id = 0
	}
}

func glFilter(f Filter) int32 {
	switch f {
	case FilterNearest:
		return gl.NEAREST
	case FilterLinearMipmapLinear:
		return gl.LINEAR_MIPMAP_LINEAR
	}
	return gl.LINEAR
}

func (c *GLContext) CreateTexture(img *image.RGBA, p TextureParams) (Texture, error) {
	b := img.Bounds()
	if img.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		img = Premultiply(img)
		b = img.Bounds()
	}

	t := &glTexture{w: b.Dx(), h: b.Dy()}
	gl.GenTextures(1, &t.id)
	gl.BindTexture(gl.TEXTURE_2D, t.id)

	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA,
		int32(t.w), int32(t.h),
		0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))

	if p.Mipmaps {
		gl.GenerateMipmap(gl.TEXTURE_2D)
	}

	wrap := int32(gl.CLAMP_TO_EDGE)
	if p.Wrap == WrapRepeat {
		wrap = gl.REPEAT
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, glFilter(p.MinFilter))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, glFilter(p.MagFilter))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, wrap)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, wrap)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if code := gl.GetError(); code != gl.NO_ERROR {
		t.Delete()
		return nil, fmt.Errorf("upload texture: gl error 0x%x", code)
	}
	return t, nil
}

type glMesh struct {
	vao, posVBO, uvVBO, ebo uint32
	indexCount              int32
	scratch                 []float32
}

func (c *GLContext) CreateMesh(uvs []mgl32.Vec2, indices []uint32) (Mesh, error) {
	m := &glMesh{indexCount: int32(len(indices))}
	if len(uvs) == 0 || len(indices) == 0 {
		return nil, fmt.Errorf("create mesh: empty geometry")
	}

	gl.GenVertexArrays(1, &m.vao)
	gl.BindVertexArray(m.vao)

	gl.GenBuffers(1, &m.posVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.posVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(uvs)*2*4, nil, gl.DYNAMIC_DRAW)
	gl.VertexAttribPointerWithOffset(0, 2, gl.FLOAT, false, 2*4, 0)
	gl.EnableVertexAttribArray(0)

	gl.GenBuffers(1, &m.uvVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.uvVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(uvs)*2*4, gl.Ptr(&uvs[0][0]), gl.STATIC_DRAW)
	gl.VertexAttribPointerWithOffset(1, 2, gl.FLOAT, false, 2*4, 0)
	gl.EnableVertexAttribArray(1)

	gl.GenBuffers(1, &m.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(indices)*4, gl.Ptr(indices), gl.STATIC_DRAW)

	gl.BindVertexArray(0)
	m.scratch = make([]float32, len(uvs)*2)
	return m, nil
}

func (m *glMesh) SetPositions(pos []mgl32.Vec2) {
	n := min(len(pos), len(m.scratch)/2)
	if n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		m.scratch[i*2] = pos[i][0]
		m.scratch[i*2+1] = pos[i][1]
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, m.posVBO)
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, n*2*4, gl.Ptr(m.scratch))
}

func (m *glMesh) Delete() {
	gl.DeleteVertexArrays(1, &m.vao)
	gl.DeleteBuffers(1, &m.posVBO)
	gl.DeleteBuffers(1, &m.uvVBO)
	gl.DeleteBuffers(1, &m.ebo)
}

func (c *GLContext) Draw(mesh Mesh, tex Texture, mvp mgl32.Mat4, opacity float32) {
	m, ok := mesh.(*glMesh)
	if !ok {
		return
	}
	c.shader.Use()
	c.shader.SetMat4("uMVP", mvp)
	c.shader.SetFloat("uOpacity", opacity)
	c.shader.SetInt("uTexture", 0)

	gl.ActiveTexture(gl.TEXTURE0)
	textured := int32(0)
	if t, ok := tex.(*glTexture); ok && t != nil {
		gl.BindTexture(gl.TEXTURE_2D, t.id)
		textured = 1
	} else {
		gl.BindTexture(gl.TEXTURE_2D, 0)
	}
	c.shader.SetInt("uTextured", textured)

	gl.BindVertexArray(m.vao)
	gl.DrawElements(gl.TRIANGLES, m.indexCount, gl.UNSIGNED_INT, nil)
	gl.BindVertexArray(0)
}

var drawableVertSrc = `#version 410 core

layout(location = 0) in vec2 aPosition;
layout(location = 1) in vec2 aTexCoord;

out vec2 vTexCoord;

uniform mat4 uMVP;

void main() {
    vTexCoord = aTexCoord;
    gl_Position = uMVP * vec4(aPosition, 0.0, 1.0);
}
` + "\x00"

// Texels are premultiplied, so opacity scales every channel.
var drawableFragSrc = `#version 410 core

in vec2 vTexCoord;
out vec4 FragColor;

uniform sampler2D uTexture;
uniform int uTextured;
uniform float uOpacity;

void main() {
    vec4 color = vec4(1.0);
    if (uTextured == 1) {
        color = texture(uTexture, vTexCoord);
    }
    FragColor = color * uOpacity;
}
` + "\x00"
