// internal/renderer/window.go
//
// GLFW window surface backed by an OpenGL 4.1 core context
package renderer

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/rs/zerolog"
)

type WindowConfig struct {
	Width       int
	Height      int
	Title       string
	VSync       bool
	MSAA        int
	Transparent bool
	// ShaderDir optionally holds drawable.vert/drawable.frag overrides.
	ShaderDir string
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Width:       1280,
		Height:      720,
		Title:       "Rig Avatar",
		VSync:       true,
		MSAA:        4,
		Transparent: true,
	}
}

// Window is a Surface. glfw.Init must have been called on the locked main
// thread before NewWindow.
type Window struct {
	window *glfw.Window
	ctx    *GLContext
	config WindowConfig
}

func NewWindow(cfg WindowConfig, log zerolog.Logger) (*Window, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	if cfg.MSAA > 0 {
		glfw.WindowHint(glfw.Samples, cfg.MSAA)
	}

	if cfg.Transparent {
		glfw.WindowHint(glfw.TransparentFramebuffer, glfw.True)
	}

	window, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		window.Destroy()
		return nil, fmt.Errorf("gl init: %w", err)
	}

	if cfg.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	if cfg.MSAA > 0 {
		gl.Enable(gl.MULTISAMPLE)
	}

	ctx, err := NewGLContext(cfg.ShaderDir, log)
	if err != nil {
		window.Destroy()
		return nil, err
	}

	log.Info().
		Str("gl", gl.GoStr(gl.GetString(gl.VERSION))).
		Int("width", cfg.Width).
		Int("height", cfg.Height).
		Msg("window created")

	return &Window{window: window, ctx: ctx, config: cfg}, nil
}

// ClientSize reports the framebuffer size, which differs from the window
// size on high-DPI displays.
func (w *Window) ClientSize() (int, int) {
	return w.window.GetFramebufferSize()
}

func (w *Window) Context() Context {
	if w.ctx == nil {
		return nil
	}
	return w.ctx
}

// OnResize registers fn for framebuffer size changes.
func (w *Window) OnResize(fn func(width, height int)) {
	w.window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		fn(width, height)
	})
}

func (w *Window) ShouldClose() bool {
	return w.window.ShouldClose()
}

// Present swaps buffers, applies queued shader reloads and polls events.
func (w *Window) Present() {
	w.window.SwapBuffers()
	w.ctx.ApplyShaderReloads()
	glfw.PollEvents()
}

func (w *Window) Destroy() {
	if w.ctx != nil {
		w.ctx.Release()
		w.ctx = nil
	}
	w.window.Destroy()
}
