// internal/renderer/matrix.go
//
// 4x4 transforms with absolute and relative setters, plus the model matrix
// that fits a model canvas to the view
package renderer

import "github.com/go-gl/mathgl/mgl32"

// Matrix44 is a column-major 4x4 transform. Scale and Translate* set
// components absolutely; the *Relative operations post-multiply.
type Matrix44 struct {
	m mgl32.Mat4
}

func NewMatrix44() Matrix44 {
	return Matrix44{m: mgl32.Ident4()}
}

func (t *Matrix44) LoadIdentity() {
	t.m = mgl32.Ident4()
}

// Mat4 returns a copy of the matrix.
func (t *Matrix44) Mat4() mgl32.Mat4 {
	return t.m
}

func (t *Matrix44) ScaleX() float32       { return t.m[0] }
func (t *Matrix44) ScaleY() float32       { return t.m[5] }
func (t *Matrix44) TranslationX() float32 { return t.m[12] }
func (t *Matrix44) TranslationY() float32 { return t.m[13] }

// Scale sets the x and y scale.
func (t *Matrix44) Scale(x, y float32) {
	t.m[0] = x
	t.m[5] = y
}

func (t *Matrix44) TranslateX(x float32) {
	t.m[12] = x
}

func (t *Matrix44) TranslateY(y float32) {
	t.m[13] = y
}

func (t *Matrix44) Translate(x, y float32) {
	t.m[12] = x
	t.m[13] = y
}

func (t *Matrix44) ScaleRelative(x, y float32) {
	t.m = t.m.Mul4(mgl32.Scale3D(x, y, 1))
}

func (t *Matrix44) TranslateRelative(x, y float32) {
	t.m = t.m.Mul4(mgl32.Translate3D(x, y, 0))
}

// MultiplyByMatrix post-multiplies by o.
func (t *Matrix44) MultiplyByMatrix(o *Matrix44) {
	t.m = t.m.Mul4(o.m)
}

// Transform maps a model-space point.
func (t *Matrix44) Transform(p mgl32.Vec2) mgl32.Vec2 {
	v := t.m.Mul4x1(mgl32.Vec4{p[0], p[1], 0, 1})
	return mgl32.Vec2{v[0], v[1]}
}

// ModelMatrix places a model canvas of width by height units in view space.
type ModelMatrix struct {
	Matrix44
	width  float32
	height float32
}

// NewModelMatrix returns a matrix that makes the canvas two units tall.
func NewModelMatrix(w, h float32) *ModelMatrix {
	mm := &ModelMatrix{Matrix44: NewMatrix44(), width: w, height: h}
	mm.SetHeight(2)
	return mm
}

func (mm *ModelMatrix) SetWidth(w float32) {
	s := w / mm.width
	mm.Scale(s, s)
}

func (mm *ModelMatrix) SetHeight(h float32) {
	s := h / mm.height
	mm.Scale(s, s)
}

// Bottom places the canvas's bottom edge at y.
func (mm *ModelMatrix) Bottom(y float32) {
	mm.TranslateY(y - mm.height*mm.ScaleY())
}

// CenterY places the canvas's vertical center at y.
func (mm *ModelMatrix) CenterY(y float32) {
	mm.TranslateY(y - mm.height*mm.ScaleY()/2)
}

func (mm *ModelMatrix) CenterX(x float32) {
	mm.TranslateX(x - mm.width*mm.ScaleX()/2)
}
