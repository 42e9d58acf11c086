package renderer

import "image"

// Canvas is an offscreen Surface rendered by the software backend.
type Canvas struct {
	ctx *SoftContext
	w   int
	h   int
}

func NewCanvas(w, h int) *Canvas {
	return &Canvas{ctx: NewSoftContext(w, h), w: w, h: h}
}

func (c *Canvas) ClientSize() (int, int) { return c.w, c.h }

func (c *Canvas) Context() Context { return c.ctx }

// Soft exposes the backend for inspection.
func (c *Canvas) Soft() *SoftContext { return c.ctx }

// SetClientSize resizes the canvas. The frame is reallocated only when the
// size actually changes.
func (c *Canvas) SetClientSize(w, h int) {
	if w == c.w && h == c.h {
		return
	}
	c.w, c.h = w, h
	c.ctx.Resize(w, h)
}

// Image returns the last rendered frame.
func (c *Canvas) Image() *image.RGBA { return c.ctx.Frame() }
